package zoomlimit

import (
	"context"
	"errors"
	"sync"

	"github.com/dshills/patchwork/internal/config"
	"github.com/dshills/patchwork/internal/config/notify"
	"github.com/dshills/patchwork/internal/hostapp"
	"github.com/dshills/patchwork/internal/patcher/guard"
	"github.com/dshills/patchwork/internal/patcher/hook"
	"github.com/dshills/patchwork/internal/patcher/signature"
	"github.com/dshills/patchwork/internal/plugin"
)

// Name is the plugin name.
const Name = "zoomlimit"

// Feature names used in logs and metrics.
const (
	FeatureURL        = "url-formatter"
	FeatureZoom       = "zoom-limiter"
	FeatureResolution = "resolution-limiter"
)

// LimitedSampleSize is the sample size forced while removeMaxRes is on.
const LimitedSampleSize = 4

// Signatures of the patched routines.
var (
	urlSignature = signature.ByName("getFormattedUrl",
		signature.TypeOf[*hostapp.Context](),
		signature.TypeOf[*hostapp.URI](),
	)

	zoomSignature = signature.ByName("f",
		signature.TypeOf[*hostapp.Matrix](),
		signature.TypeOf[float32](),
		signature.TypeOf[float32](),
		signature.TypeOf[int](),
	)

	// The sample-size routine is obfuscated, so only its shape is known.
	resolutionSignature = signature.New(4,
		signature.At(0, signature.TypeOf[*hostapp.RotationOptions]()),
		signature.At(1, signature.TypeOf[*hostapp.ResizeOptions]()),
		signature.At(3, signature.TypeOf[int]()),
	)
)

// Plugin implements plugin.Plugin.
type Plugin struct {
	guard *guard.Guard

	mu     sync.Mutex
	env    *plugin.Env
	sub    *notify.Subscription
	maxRes *hook.Handle
}

// Option configures a Plugin.
type Option func(*Plugin)

// WithGuard replaces the default safety guard.
func WithGuard(g *guard.Guard) Option {
	return func(p *Plugin) {
		if g != nil {
			p.guard = g
		}
	}
}

// New creates the plugin.
func New(opts ...Option) *Plugin {
	p := &Plugin{guard: guard.Default}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return Name
}

// Start installs the hooks. It fails only when none of them could be
// installed.
func (p *Plugin) Start(ctx context.Context, env *plugin.Env) error {
	p.mu.Lock()
	p.env = env
	p.mu.Unlock()

	urlErr := p.patchURL(env)
	zoomErr := p.patchZoom(env)
	if urlErr != nil && zoomErr != nil {
		return errors.Join(urlErr, zoomErr)
	}

	sub := env.Settings.SubscribeKey(config.KeyRemoveMaxRes, func(notify.Change) {
		p.applyMaxRes()
	})
	p.mu.Lock()
	p.sub = sub
	p.mu.Unlock()
	p.applyMaxRes()
	return nil
}

// Stop drops the settings subscription and revokes every hook.
func (p *Plugin) Stop(ctx context.Context, env *plugin.Env) error {
	p.mu.Lock()
	sub := p.sub
	p.sub = nil
	p.maxRes = nil
	p.env = nil
	p.mu.Unlock()

	sub.Unsubscribe()
	env.Patcher.UnpatchAll()
	return nil
}

// MaxResActive reports whether the resolution limiter is installed.
func (p *Plugin) MaxResActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxRes != nil && !p.maxRes.Revoked()
}

func (p *Plugin) patchURL(env *plugin.Env) error {
	c, ok := env.Catalog.Class(hostapp.MediaClass)
	if !ok {
		env.Logger.Debug("%s: class %s not found", FeatureURL, hostapp.MediaClass)
		return errClassMissing(hostapp.MediaClass)
	}
	settings := env.Settings
	_, err := env.Patcher.PatchSignature(FeatureURL, c, urlSignature, hook.After,
		hook.Observe(func(call *hook.Call) error {
			raw, ok := call.Result().(string)
			if !ok || !IsMediaProxyURL(raw) {
				return nil
			}
			call.SetResult(FormatURL(raw, settings.Bool(config.KeyRemoveMaxRes, false)))
			return nil
		}))
	return err
}

func (p *Plugin) patchZoom(env *plugin.Env) error {
	c, ok := env.Catalog.Class(hostapp.ZoomClass)
	if !ok {
		env.Logger.Debug("%s: class %s not found", FeatureZoom, hostapp.ZoomClass)
		return errClassMissing(hostapp.ZoomClass)
	}
	g := p.guard
	logger := env.Logger
	m := env.Metrics
	_, err := env.Patcher.PatchSignature(FeatureZoom, c, zoomSignature, hook.InsteadOf,
		func(call *hook.Call) (hook.Outcome, error) {
			matrix, _ := call.Args[0].(*hostapp.Matrix)
			scale, ok := call.Args[1].(float32)
			if matrix == nil || !ok {
				res, err := call.Target.Site().CallOriginal(call.This, call.Args)
				return hook.ShortCircuit(res), err
			}
			d := g.Evaluate(matrix.ScaleX, matrix.ScaleY, scale)
			if m != nil {
				m.RecordGuardDecision(d)
			}
			if d.Block {
				logger.Debug("Preventing zoom that would exceed canvas size limit (%s)", d.Reason)
			}
			return hook.ShortCircuit(d.Block), nil
		})
	return err
}

// applyMaxRes installs or revokes the resolution limiter to match the
// current removeMaxRes setting.
func (p *Plugin) applyMaxRes() {
	p.mu.Lock()
	defer p.mu.Unlock()

	env := p.env
	if env == nil {
		return
	}
	want := env.Settings.Bool(config.KeyRemoveMaxRes, false)
	active := p.maxRes != nil && !p.maxRes.Revoked()

	switch {
	case want && !active:
		c, ok := env.Catalog.Class(hostapp.DecodeClass)
		if !ok {
			env.Logger.Debug("%s: class %s not found", FeatureResolution, hostapp.DecodeClass)
			return
		}
		target, err := env.Patcher.Resolve(FeatureResolution, c, resolutionSignature)
		if err != nil {
			return
		}
		env.Logger.Debug("Found obfuscated method to limit resolution: %s", target.Method().Name)
		h, err := env.Patcher.Instead(target, hook.Replace(func(*hook.Call) (any, error) {
			return LimitedSampleSize, nil
		}))
		if err != nil {
			return
		}
		p.maxRes = h
	case !want && active:
		p.maxRes.Revoke()
		p.maxRes = nil
		env.Logger.Debug("%s: revoked", FeatureResolution)
	}
}

type errClassMissing string

func (e errClassMissing) Error() string {
	return "class " + string(e) + " not found"
}
