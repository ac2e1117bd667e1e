package zoomlimit

import "testing"

func TestFormatURL(t *testing.T) {
	tests := []struct {
		name         string
		raw          string
		removeMaxRes bool
		want         string
	}{
		{
			name: "strip and append max",
			raw:  "foo?width=100&height=200&bar=1",
			want: "foo?&bar=1&width=8192&height=8192",
		},
		{
			name:         "strip only",
			raw:          "foo?width=100&height=200&bar=1",
			removeMaxRes: true,
			want:         "foo?&bar=1",
		},
		{
			name: "no query",
			raw:  "https://media.discordapp.net/a.png",
			want: "https://media.discordapp.net/a.png?width=8192&height=8192",
		},
		{
			name: "only the first token is stripped",
			raw:  "a?width=1&height=2&width=3&height=4",
			want: "a?&width=3&height=4&width=8192&height=8192",
		},
		{
			name:         "no token, flag set",
			raw:          "a?format=webp",
			removeMaxRes: true,
			want:         "a?format=webp",
		},
		{
			name: "token is the whole query",
			raw:  "a?width=10&height=20",
			want: "a?&width=8192&height=8192",
		},
		{
			name: "non-numeric dimensions are kept",
			raw:  "a?width=x&height=20",
			want: "a?width=x&height=20&width=8192&height=8192",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatURL(tt.raw, tt.removeMaxRes); got != tt.want {
				t.Errorf("FormatURL(%q, %v) = %q, want %q", tt.raw, tt.removeMaxRes, got, tt.want)
			}
		})
	}
}

func TestIsMediaProxyURL(t *testing.T) {
	if !IsMediaProxyURL("https://media.discordapp.net/attachments/1.png") {
		t.Error("proxy URL not recognized")
	}
	if IsMediaProxyURL("https://cdn.discordapp.com/attachments/1.png") {
		t.Error("CDN URL treated as proxy")
	}
}
