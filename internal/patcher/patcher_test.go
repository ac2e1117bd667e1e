package patcher

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dshills/patchwork/internal/logging"
	"github.com/dshills/patchwork/internal/metrics"
	"github.com/dshills/patchwork/internal/patcher/hook"
	"github.com/dshills/patchwork/internal/patcher/host"
	"github.com/dshills/patchwork/internal/patcher/signature"
)

type options struct{ n int }

func calc() *host.Class {
	return host.NewClass("calc").
		Declare("m", func(a int) int { return a * 10 }).
		Declare("x", func(o *options, a int) int { return o.n + a }).
		Declare("y", func(o *options, a int) int { return o.n - a }).
		MustBuild()
}

func newPatcher(t *testing.T, opts ...Option) (*Patcher, *hook.Registry) {
	t.Helper()
	reg := hook.NewRegistry()
	return New("test", reg, opts...), reg
}

func TestPatchAndUnpatchAll(t *testing.T) {
	c := calc()
	p, reg := newPatcher(t)
	site := c.Method("m").Site

	if _, err := p.PatchSignature("double", c, signature.ByName("m", signature.TypeOf[int]()),
		hook.After, hook.Observe(func(call *hook.Call) error {
			call.SetResult(call.Result().(int) * 2)
			return nil
		})); err != nil {
		t.Fatalf("PatchSignature() error = %v", err)
	}
	target, err := p.Resolve("plus", c, signature.ByName("m", signature.TypeOf[int]()))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Before(target, hook.Observe(func(call *hook.Call) error {
		call.Args[0] = call.Args[0].(int) + 1
		return nil
	})); err != nil {
		t.Fatal(err)
	}

	res, err := site.Invoke(nil, 1)
	if err != nil {
		t.Fatal(err)
	}
	if res != 40 {
		t.Errorf("Invoke(1) = %v, want 40", res)
	}
	if p.Len() != 2 || reg.Len() != 2 {
		t.Errorf("Len() = %d, registry %d; want 2, 2", p.Len(), reg.Len())
	}

	if n := p.UnpatchAll(); n != 2 {
		t.Errorf("UnpatchAll() = %d, want 2", n)
	}
	if n := p.UnpatchAll(); n != 0 {
		t.Errorf("second UnpatchAll() = %d, want 0", n)
	}
	if site.Intercepted() {
		t.Error("site still intercepted")
	}
	if res, _ := site.Invoke(nil, 1); res != 10 {
		t.Errorf("Invoke(1) after unpatch = %v, want 10", res)
	}
}

func TestUnpatchAllLeavesOtherOwners(t *testing.T) {
	c := calc()
	reg := hook.NewRegistry()
	a := New("a", reg)
	b := New("b", reg)
	sig := signature.ByName("m", signature.TypeOf[int]())
	plusOne := hook.Observe(func(call *hook.Call) error {
		call.SetResult(call.Result().(int) + 1)
		return nil
	})

	if _, err := a.PatchSignature("a", c, sig, hook.After, plusOne); err != nil {
		t.Fatal(err)
	}
	if _, err := b.PatchSignature("b", c, sig, hook.After, plusOne); err != nil {
		t.Fatal(err)
	}

	a.UnpatchAll()
	if res, _ := c.Method("m").Site.Invoke(nil, 1); res != 11 {
		t.Errorf("Invoke(1) = %v, want 11 from b's hook", res)
	}
}

func TestInsteadReplacesBody(t *testing.T) {
	c := calc()
	p, _ := newPatcher(t)
	target, err := p.Resolve("const", c, signature.ByName("m", signature.TypeOf[int]()))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Instead(target, hook.Replace(func(*hook.Call) (any, error) {
		return 4, nil
	})); err != nil {
		t.Fatal(err)
	}
	if res, _ := target.Site().Invoke(nil, 9); res != 4 {
		t.Errorf("Invoke(9) = %v, want 4", res)
	}
}

func TestLenIgnoresRevokedHandles(t *testing.T) {
	c := calc()
	p, _ := newPatcher(t)
	target, _ := p.Resolve("m", c, signature.ByName("m", signature.TypeOf[int]()))

	h, err := p.After(target, hook.Observe(func(*hook.Call) error { return nil }))
	if err != nil {
		t.Fatal(err)
	}
	h.Revoke()
	if p.Len() != 0 {
		t.Errorf("Len() = %d after revoke, want 0", p.Len())
	}
	if _, err := p.After(target, hook.Observe(func(*hook.Call) error { return nil })); err != nil {
		t.Fatal(err)
	}
	if p.Len() != 1 {
		t.Errorf("Len() = %d, want 1", p.Len())
	}
	if n := p.UnpatchAll(); n != 1 {
		t.Errorf("UnpatchAll() = %d, want 1", n)
	}
}

func TestResolveFailureIsReported(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.Config{Level: logging.LevelDebug, Output: &buf})
	m := metrics.New()
	p, _ := newPatcher(t, WithLogger(logger), WithMetrics(m))

	_, err := p.PatchSignature("missing", calc(), signature.ByName("nope"), hook.After,
		hook.Observe(func(*hook.Call) error { return nil }))
	if !errors.Is(err, signature.ErrNotFound) {
		t.Fatalf("PatchSignature() error = %v, want ErrNotFound", err)
	}
	if p.Len() != 0 {
		t.Errorf("Len() = %d, want 0", p.Len())
	}

	out := buf.String()
	if !strings.Contains(out, "feature disabled") || !strings.Contains(out, "feature=missing") {
		t.Errorf("log output = %q", out)
	}

	const want = `
# HELP patchwork_resolve_failures_total Patch targets that could not be resolved, by feature
# TYPE patchwork_resolve_failures_total counter
patchwork_resolve_failures_total{feature="missing"} 1
`
	if err := testutil.CollectAndCompare(m, strings.NewReader(want), "patchwork_resolve_failures_total"); err != nil {
		t.Error(err)
	}
}

func TestResolveAmbiguousUsesFirstDeclared(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.Config{Level: logging.LevelDebug, Output: &buf})
	p, _ := newPatcher(t, WithLogger(logger))

	sig := signature.New(2, signature.At(0, signature.TypeOf[*options]()))
	target, err := p.Resolve("opts", calc(), sig)
	if err != nil {
		t.Fatal(err)
	}
	if target.Method().Name != "x" {
		t.Errorf("resolved %s, want x", target.Method().Name)
	}
	if !strings.Contains(buf.String(), "using first declared x") {
		t.Errorf("log output = %q", buf.String())
	}
}

func TestPatchOnSealedSite(t *testing.T) {
	c := calc()
	c.Method("m").Site.Seal()

	var buf bytes.Buffer
	logger := logging.New(logging.Config{Level: logging.LevelDebug, Output: &buf})
	p, _ := newPatcher(t, WithLogger(logger))

	_, err := p.PatchSignature("sealed", c, signature.ByName("m", signature.TypeOf[int]()),
		hook.After, hook.Observe(func(*hook.Call) error { return nil }))
	if err == nil {
		t.Fatal("PatchSignature() on a sealed site succeeded")
	}
	if !strings.Contains(buf.String(), "[WARN]") {
		t.Errorf("install failure not logged at warn: %q", buf.String())
	}
	if p.Len() != 0 {
		t.Errorf("Len() = %d, want 0", p.Len())
	}
}

func TestOwner(t *testing.T) {
	p, reg := newPatcher(t)
	if p.Owner() != "test" || p.Registry() != reg {
		t.Error("Owner() or Registry() mismatch")
	}
}
