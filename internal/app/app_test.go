package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dshills/patchwork/internal/config"
	"github.com/dshills/patchwork/internal/hostapp"
	"github.com/dshills/patchwork/internal/logging"
)

func newTestApp(t *testing.T, opts Options) *Application {
	t.Helper()
	if opts.LogOutput == nil {
		opts.LogOutput = io.Discard
	}
	app, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return app
}

func TestStartPatchesHost(t *testing.T) {
	app := newTestApp(t, Options{})
	ctx := context.Background()

	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !app.IsRunning() {
		t.Error("IsRunning() = false after Start")
	}
	if err := app.Start(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}
	if app.Plugins().CountActive() != 1 {
		t.Errorf("CountActive() = %d, want 1", app.Plugins().CountActive())
	}

	// The guard allows a zoom the host alone would refuse.
	if applied, err := app.Host().Zoom.ZoomBy(2.5, 0, 0); err != nil || !applied {
		t.Errorf("ZoomBy(2.5) = %v, %v; want applied", applied, err)
	}

	if err := app.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if app.Registry().Len() != 0 {
		t.Errorf("registry holds %d hooks after shutdown", app.Registry().Len())
	}
	if err := app.Shutdown(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("second Shutdown() error = %v, want ErrNotRunning", err)
	}
}

func TestSettingsFileDrivesResolutionLimiter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	if err := os.WriteFile(path, []byte("removeMaxRes = true\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	app := newTestApp(t, Options{SettingsPath: path})
	if err := app.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer app.Shutdown()

	if !app.ZoomLimit().MaxResActive() {
		t.Error("resolution limiter not active with removeMaxRes = true")
	}
	if err := app.Settings().SetBool(config.KeyRemoveMaxRes, false); err != nil {
		t.Fatal(err)
	}
	if app.ZoomLimit().MaxResActive() {
		t.Error("resolution limiter still active after clearing the flag")
	}
}

func TestLogLevelFollowsSetting(t *testing.T) {
	app := newTestApp(t, Options{})
	if app.Logger().Level() != logging.LevelInfo {
		t.Errorf("Level() = %v, want info", app.Logger().Level())
	}
	if err := app.Settings().SetString(config.KeyLogLevel, "debug"); err != nil {
		t.Fatal(err)
	}
	if app.Logger().Level() != logging.LevelDebug {
		t.Errorf("Level() = %v, want debug", app.Logger().Level())
	}

	pinned := newTestApp(t, Options{LogLevel: "warn"})
	if err := pinned.Settings().SetString(config.KeyLogLevel, "debug"); err != nil {
		t.Fatal(err)
	}
	if pinned.Logger().Level() != logging.LevelWarn {
		t.Errorf("Level() = %v, want the pinned warn", pinned.Logger().Level())
	}
}

func TestScriptsAreLoaded(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wide.lua")
	src := `
		patch {
			class  = "b.c.a.a0.d",
			name   = "c",
			params = {"*hostapp.RotationOptions", "*hostapp.ResizeOptions", "*hostapp.EncodedImage", "int"},
			kind   = "instead",
			fn     = function() return 2 end,
		}
	`
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}

	var logs bytes.Buffer
	app := newTestApp(t, Options{Scripts: []string{path}, DisableZoomLimit: true, LogOutput: &logs})
	if err := app.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer app.Shutdown()

	if _, ok := app.Plugins().Get("wide"); !ok {
		t.Fatal("script plugin not loaded")
	}
	d, err := app.Host().Decoder.Decode(&hostapp.EncodedImage{Width: 100, Height: 100}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if d.SampleSize != 2 {
		t.Errorf("SampleSize = %d, want 2 from the script", d.SampleSize)
	}
	if !strings.Contains(logs.String(), "started with 1/1 plugins active") {
		t.Errorf("logs = %q", logs.String())
	}
}

func TestFailingPluginDoesNotStopStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.lua")
	if err := os.WriteFile(path, []byte("patch {"), 0o644); err != nil {
		t.Fatal(err)
	}

	app := newTestApp(t, Options{Scripts: []string{path}})
	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer app.Shutdown()

	if app.Plugins().CountActive() != 1 {
		t.Errorf("CountActive() = %d, want only zoomlimit", app.Plugins().CountActive())
	}
	if _, ok := app.Plugins().Errors()["broken"]; !ok {
		t.Error("broken script error not recorded")
	}
}

func TestInvalidSettingsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	if err := os.WriteFile(path, []byte("removeMaxRes = \n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := New(Options{SettingsPath: path, LogOutput: io.Discard})
	var ierr *InitError
	if !errors.As(err, &ierr) || ierr.Component != "settings" {
		t.Errorf("New() error = %v, want settings InitError", err)
	}
}

func TestMetricsServer(t *testing.T) {
	app := newTestApp(t, Options{MetricsAddr: "127.0.0.1:0"})
	if err := app.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	addr := app.MetricsAddr()
	if addr == "" {
		t.Fatal("MetricsAddr() is empty")
	}
	resp, err := http.Get("http://" + addr + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "patchwork_hooks_active") {
		t.Errorf("metrics body lacks hook gauge:\n%s", body)
	}

	if err := app.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if app.MetricsAddr() != "" {
		t.Error("MetricsAddr() set after shutdown")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	app := newTestApp(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for !app.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
	if app.Registry().Len() != 0 {
		t.Error("hooks left after Run returned")
	}
}
