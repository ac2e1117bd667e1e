package zoomlimit

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dshills/patchwork/internal/config"
	"github.com/dshills/patchwork/internal/hostapp"
	"github.com/dshills/patchwork/internal/metrics"
	"github.com/dshills/patchwork/internal/patcher/hook"
	"github.com/dshills/patchwork/internal/patcher/host"
	"github.com/dshills/patchwork/internal/patcher/signature"
	"github.com/dshills/patchwork/internal/plugin"
)

const proxied = "https://media.discordapp.net/attachments/1/2/a.png"

type fixture struct {
	app      *hostapp.App
	settings *config.Store
	manager  *plugin.Manager
	metrics  *metrics.Metrics
	plugin   *Plugin
}

func newFixture(t *testing.T, defaults map[string]any) *fixture {
	t.Helper()
	app := hostapp.New(hostapp.DefaultOptions())
	settings := config.NewMemory(config.WithDefaults(defaults))
	m := metrics.New()
	mgr := plugin.NewManager(plugin.ManagerConfig{
		Catalog:  app.Catalog(),
		Settings: settings,
		Metrics:  m,
	})
	p := New()
	if _, err := mgr.Load(p); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := mgr.Activate(context.Background(), Name); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	return &fixture{app: app, settings: settings, manager: mgr, metrics: m, plugin: p}
}

func (f *fixture) open(t *testing.T, raw string) string {
	t.Helper()
	got, err := f.app.Media.Open(&hostapp.Context{Density: 2, ViewportWidth: 400, ViewportHeight: 300}, hostapp.ParseURI(raw))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return got
}

func (f *fixture) decode(t *testing.T) int {
	t.Helper()
	d, err := f.app.Decoder.Decode(&hostapp.EncodedImage{Width: 1024, Height: 1024}, nil)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	return d.SampleSize
}

func TestURLFormatterRequestsMaxResolution(t *testing.T) {
	f := newFixture(t, nil)

	if got, want := f.open(t, proxied), proxied+"?&width=8192&height=8192"; got != want {
		t.Errorf("Open() = %q, want %q", got, want)
	}
	if got := f.open(t, "https://cdn.example.com/a.png"); got != "https://cdn.example.com/a.png" {
		t.Errorf("non-proxy URL rewritten: %q", got)
	}

	if err := f.settings.SetBool(config.KeyRemoveMaxRes, true); err != nil {
		t.Fatal(err)
	}
	if got, want := f.open(t, proxied), proxied+"?"; got != want {
		t.Errorf("Open() with removeMaxRes = %q, want %q", got, want)
	}
}

func TestZoomLimiterUsesGuard(t *testing.T) {
	f := newFixture(t, nil)
	z := f.app.Zoom

	// Blocked by the app's own limiter (MaxScale 2) but allowed by the guard.
	applied, err := z.ZoomBy(2.5, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !applied {
		t.Error("ZoomBy(2.5) refused, want guard to allow it")
	}

	z.Reset()
	applied, err = z.ZoomBy(3, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if applied {
		t.Error("ZoomBy(3) applied, want guard to block it")
	}
	if z.Matrix() != hostapp.Identity() {
		t.Errorf("blocked zoom changed matrix: %+v", z.Matrix())
	}

	const want = `
# HELP patchwork_guard_decisions_total Safety guard decisions, by result and mode
# TYPE patchwork_guard_decisions_total counter
patchwork_guard_decisions_total{mode="estimate",result="allow"} 1
patchwork_guard_decisions_total{mode="estimate",result="block"} 1
patchwork_guard_decisions_total{mode="fallback",result="allow"} 0
patchwork_guard_decisions_total{mode="fallback",result="block"} 0
`
	if err := testutil.CollectAndCompare(f.metrics, strings.NewReader(want), "patchwork_guard_decisions_total"); err != nil {
		t.Error(err)
	}
}

func TestResolutionLimiterFollowsSetting(t *testing.T) {
	f := newFixture(t, nil)

	if got := f.decode(t); got != 1 {
		t.Errorf("SampleSize = %d, want 1 with removeMaxRes off", got)
	}
	if f.plugin.MaxResActive() {
		t.Error("resolution limiter installed while setting is off")
	}

	if err := f.settings.SetBool(config.KeyRemoveMaxRes, true); err != nil {
		t.Fatal(err)
	}
	if got := f.decode(t); got != LimitedSampleSize {
		t.Errorf("SampleSize = %d, want %d", got, LimitedSampleSize)
	}
	if !f.plugin.MaxResActive() {
		t.Error("resolution limiter not installed")
	}

	if err := f.settings.SetBool(config.KeyRemoveMaxRes, false); err != nil {
		t.Fatal(err)
	}
	if got := f.decode(t); got != 1 {
		t.Errorf("SampleSize = %d after turning setting off, want 1", got)
	}
}

func TestResolutionLimiterToggledDuringDispatch(t *testing.T) {
	f := newFixture(t, nil)

	target, err := signature.Resolve(f.app.Decoder.Class(), resolutionSignature)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	calls := 0
	_, err = f.manager.Registry().Install(target, hook.Before, func(*hook.Call) (hook.Outcome, error) {
		calls++
		switch calls {
		case 1:
			return hook.Continue(), f.settings.SetBool(config.KeyRemoveMaxRes, true)
		case 3:
			return hook.Continue(), f.settings.SetBool(config.KeyRemoveMaxRes, false)
		}
		return hook.Continue(), nil
	})
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	// A call in flight finishes on the hooks it started with; the toggle
	// applies from the next call.
	var got []int
	for i := 0; i < 4; i++ {
		got = append(got, f.decode(t))
	}
	want := []int{1, LimitedSampleSize, LimitedSampleSize, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("SampleSize sequence = %v, want %v", got, want)
		}
	}
	if f.plugin.MaxResActive() {
		t.Error("resolution limiter still installed after setting turned off")
	}
}

func TestResolutionLimiterFromDefaults(t *testing.T) {
	f := newFixture(t, map[string]any{config.KeyRemoveMaxRes: true})

	if got := f.decode(t); got != LimitedSampleSize {
		t.Errorf("SampleSize = %d, want %d", got, LimitedSampleSize)
	}
}

func TestStopRestoresHost(t *testing.T) {
	f := newFixture(t, map[string]any{config.KeyRemoveMaxRes: true})

	if err := f.manager.Deactivate(context.Background(), Name); err != nil {
		t.Fatalf("Deactivate() error = %v", err)
	}
	if f.manager.Registry().Len() != 0 {
		t.Errorf("registry holds %d hooks after stop", f.manager.Registry().Len())
	}

	if got, want := f.open(t, proxied), proxied+"?width=800&height=600"; got != want {
		t.Errorf("Open() = %q, want %q", got, want)
	}
	if got := f.decode(t); got != 1 {
		t.Errorf("SampleSize = %d, want 1", got)
	}
	if applied, _ := f.app.Zoom.ZoomBy(2.5, 0, 0); applied {
		t.Error("app's own zoom limit not restored")
	}

	// Setting changes after stop must not reinstall anything.
	if err := f.settings.SetBool(config.KeyRemoveMaxRes, false); err != nil {
		t.Fatal(err)
	}
	if err := f.settings.SetBool(config.KeyRemoveMaxRes, true); err != nil {
		t.Fatal(err)
	}
	if f.manager.Registry().Len() != 0 {
		t.Errorf("setting change after stop installed %d hooks", f.manager.Registry().Len())
	}
}

func TestMissingClassesAreSkipped(t *testing.T) {
	app := hostapp.New(hostapp.DefaultOptions())
	media, _ := app.Catalog().Class(hostapp.MediaClass)
	cat, err := host.NewCatalog(media)
	if err != nil {
		t.Fatal(err)
	}

	settings := config.NewMemory(config.WithDefaults(map[string]any{config.KeyRemoveMaxRes: true}))
	mgr := plugin.NewManager(plugin.ManagerConfig{Catalog: cat, Settings: settings})
	if _, err := mgr.Load(New()); err != nil {
		t.Fatal(err)
	}
	if err := mgr.Activate(context.Background(), Name); err != nil {
		t.Fatalf("Activate() error = %v, want partial install to succeed", err)
	}
	if mgr.Registry().Len() != 1 {
		t.Errorf("Len() = %d, want only the URL hook", mgr.Registry().Len())
	}
}

func TestStartFailsWhenNothingResolves(t *testing.T) {
	cat, err := host.NewCatalog()
	if err != nil {
		t.Fatal(err)
	}
	mgr := plugin.NewManager(plugin.ManagerConfig{Catalog: cat})
	if _, err := mgr.Load(New()); err != nil {
		t.Fatal(err)
	}
	if err := mgr.Activate(context.Background(), Name); err == nil {
		t.Error("Activate() succeeded with an empty catalog")
	}
}
