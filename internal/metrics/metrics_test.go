package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dshills/patchwork/internal/patcher/guard"
	"github.com/dshills/patchwork/internal/patcher/hook"
	"github.com/dshills/patchwork/internal/patcher/host"
	"github.com/dshills/patchwork/internal/patcher/signature"
)

func newTarget(t *testing.T) *signature.Target {
	t.Helper()
	c := host.NewClass("x").Declare("f", func(n int) int { return n }).MustBuild()
	target, err := signature.Resolve(c, signature.New(1))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	return target
}

func TestRegisterTwiceFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := m.Register(reg); err == nil {
		t.Error("second Register() succeeded, want AlreadyRegisteredError")
	}
}

func TestHookMetrics(t *testing.T) {
	m := New()
	r := hook.NewRegistry()
	m.ObserveRegistry(r)
	target := newTarget(t)
	noop := func(*hook.Call) (hook.Outcome, error) { return hook.Continue(), nil }

	h1, _ := r.Install(target, hook.Before, noop)
	_, _ = r.Install(target, hook.InsteadOf, noop)
	h1.Revoke()

	if got := testutil.ToFloat64(m.hooksInstalled.WithLabelValues("before")); got != 1 {
		t.Errorf("installed{before} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.hooksInstalled.WithLabelValues("instead")); got != 1 {
		t.Errorf("installed{instead} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.hooksRevoked.WithLabelValues("before")); got != 1 {
		t.Errorf("revoked{before} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.hooksActive); got != 1 {
		t.Errorf("active = %v, want 1", got)
	}

	r.RevokeAll()
	if got := testutil.ToFloat64(m.hooksActive); got != 0 {
		t.Errorf("active after RevokeAll = %v, want 0", got)
	}

	target.Site().Seal()
	_, _ = r.Install(target, hook.After, noop)
	if got := testutil.ToFloat64(m.installFailures); got != 1 {
		t.Errorf("install failures = %v, want 1", got)
	}
}

func TestGuardMetrics(t *testing.T) {
	m := New()

	m.RecordGuardDecision(guard.Default.Evaluate(1, 1, 1))
	m.RecordGuardDecision(guard.Default.Evaluate(1, 1, 100))
	m.RecordGuardDecision(guard.Default.Evaluate(1, 1, 1e10))

	tests := []struct {
		result, mode string
		want         float64
	}{
		{"allow", "estimate", 1},
		{"block", "estimate", 1},
		{"block", "fallback", 1},
		{"allow", "fallback", 0},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(m.guardDecisions.WithLabelValues(tt.result, tt.mode)); got != tt.want {
			t.Errorf("decisions{%s,%s} = %v, want %v", tt.result, tt.mode, got, tt.want)
		}
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	m.RecordResolutionFailure("resolution_limiter")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, `patchwork_resolve_failures_total{feature="resolution_limiter"} 1`) {
		t.Errorf("metrics output missing resolution failure:\n%s", body)
	}
}
