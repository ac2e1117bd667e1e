package zoomlimit

import (
	"regexp"
	"strings"
)

// MaxDimensionQuery asks the media proxy for the largest size it serves.
const MaxDimensionQuery = "width=8192&height=8192"

// mediaProxyMarker identifies URLs served by the resizing media proxy.
const mediaProxyMarker = ".discordapp.net/"

var dimensionPattern = regexp.MustCompile(`width=\d+&height=\d+`)

// IsMediaProxyURL reports whether raw points at the media proxy.
func IsMediaProxyURL(raw string) bool {
	return strings.Contains(raw, mediaProxyMarker)
}

// FormatURL strips the first width/height query token from raw. Unless
// removeMaxRes is set, it then appends MaxDimensionQuery, joined with "?" or
// "&" depending on whether raw already has a query.
func FormatURL(raw string, removeMaxRes bool) string {
	out := raw
	if loc := dimensionPattern.FindStringIndex(raw); loc != nil {
		out = raw[:loc[0]] + raw[loc[1]:]
	}
	if removeMaxRes {
		return out
	}
	if strings.Contains(out, "?") {
		return out + "&" + MaxDimensionQuery
	}
	return out + "?" + MaxDimensionQuery
}
