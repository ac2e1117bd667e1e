package hostapp

import (
	"strconv"
	"strings"

	"github.com/dshills/patchwork/internal/patcher/host"
)

// MediaClass identifies the media viewer widget.
const MediaClass = "widgets.media.WidgetMedia"

// MediaProxyHost marks URLs served by the resizing media proxy.
const MediaProxyHost = ".discordapp.net/"

// Context carries the display parameters used to size media requests.
type Context struct {
	Density        float32
	ViewportWidth  int
	ViewportHeight int
}

// URI is a media location.
type URI struct {
	raw string
}

// ParseURI wraps a raw location.
func ParseURI(raw string) *URI {
	return &URI{raw: raw}
}

// String returns the raw location.
func (u *URI) String() string {
	if u == nil {
		return ""
	}
	return u.raw
}

// MediaViewer opens images full screen.
type MediaViewer struct {
	class     *host.Class
	formatURL *host.CallSite
}

func newMediaViewer() *MediaViewer {
	v := &MediaViewer{}
	v.class = host.NewClass(MediaClass).
		Declare("getFormattedUrl", v.plainURL).
		Declare("getFormattedUrl", v.formattedURL).
		Declare("onViewBound", v.onViewBound).
		MustBuild()
	v.formatURL = v.class.Methods()[1].Site
	return v
}

// Class returns the viewer's declared class.
func (v *MediaViewer) Class() *host.Class {
	return v.class
}

// Open returns the URL the viewer will load for uri.
func (v *MediaViewer) Open(ctx *Context, uri *URI) (string, error) {
	res, err := v.formatURL.Invoke(v, ctx, uri)
	if err != nil {
		return "", err
	}
	return resultAs[string]("getFormattedUrl", res)
}

func (v *MediaViewer) plainURL(uri *URI) string {
	return uri.String()
}

// formattedURL asks the proxy for an image sized to the viewport.
func (v *MediaViewer) formattedURL(ctx *Context, uri *URI) string {
	raw := uri.String()
	if !strings.Contains(raw, MediaProxyHost) || ctx == nil {
		return raw
	}

	density := ctx.Density
	if density <= 0 {
		density = 1
	}
	w := int(float32(ctx.ViewportWidth) * density)
	h := int(float32(ctx.ViewportHeight) * density)

	sep := "?"
	if strings.Contains(raw, "?") {
		sep = "&"
	}
	return raw + sep + "width=" + strconv.Itoa(w) + "&height=" + strconv.Itoa(h)
}

func (v *MediaViewer) onViewBound(ctx *Context) {}
