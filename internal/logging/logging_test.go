package logging

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func newTestLogger(level Level) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := New(Config{Level: level, Output: &buf, Prefix: "test"})
	l.sink.now = func() time.Time {
		return time.Date(2026, 1, 2, 3, 4, 5, 6_000_000, time.UTC)
	}
	return l, &buf
}

func TestLevelString(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("Level(%d).String() = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"ERROR", LevelError},
		{"unknown", LevelInfo},
		{"", LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestLoggerFormat(t *testing.T) {
	l, buf := newTestLogger(LevelDebug)

	l.WithField("target", "b.f.l.b.c.f").WithComponent("patcher").Debug("resolved %d method", 1)

	want := "2026-01-02T03:04:05.006 [DEBUG] test: resolved 1 method {component=patcher, target=b.f.l.b.c.f}\n"
	if got := buf.String(); got != want {
		t.Errorf("line = %q, want %q", got, want)
	}
}

func TestLoggerLevelFilter(t *testing.T) {
	l, buf := newTestLogger(LevelWarn)

	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("shown")
	l.Error("shown")

	if n := strings.Count(buf.String(), "shown"); n != 2 {
		t.Errorf("wrote %d lines at or above WARN, want 2", n)
	}
	if strings.Contains(buf.String(), "hidden") {
		t.Error("wrote a line below the level")
	}
}

func TestChildSharesLevel(t *testing.T) {
	l, buf := newTestLogger(LevelInfo)
	child := l.WithComponent("x")

	l.SetLevel(LevelDebug)
	child.Debug("from child")

	if !strings.Contains(buf.String(), "from child") {
		t.Error("child logger did not pick up the parent's level change")
	}
	if !child.Enabled(LevelDebug) {
		t.Error("Enabled(LevelDebug) = false")
	}
}

func TestWithFieldDoesNotMutateParent(t *testing.T) {
	l, buf := newTestLogger(LevelInfo)
	_ = l.WithField("k", "v")

	l.Info("plain")
	if strings.Contains(buf.String(), "k=v") {
		t.Error("parent logger carries the child's field")
	}
}

func TestDiscard(t *testing.T) {
	l := Discard()
	if l.Enabled(LevelError) {
		t.Error("Discard().Enabled(LevelError) = true")
	}
	l.Error("nothing happens")
}
