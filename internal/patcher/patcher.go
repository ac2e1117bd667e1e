// Package patcher ties structural resolution and hook installation together
// for one owner, typically a plugin.
//
// A Patcher remembers every hook it installed so the owner can tear all of
// them down with a single UnpatchAll when it stops. Resolution and install
// failures are logged and reported as errors; callers treat them as "feature
// inactive" rather than as fatal.
package patcher

import (
	"errors"
	"slices"
	"sync"

	"github.com/dshills/patchwork/internal/logging"
	"github.com/dshills/patchwork/internal/metrics"
	"github.com/dshills/patchwork/internal/patcher/hook"
	"github.com/dshills/patchwork/internal/patcher/signature"
)

// Patcher installs hooks on behalf of one owner.
type Patcher struct {
	owner    string
	registry *hook.Registry
	logger   *logging.Logger
	metrics  *metrics.Metrics

	mu      sync.Mutex
	handles []*hook.Handle
}

// Option configures a Patcher.
type Option func(*Patcher)

// WithLogger sets the logger used for diagnostics.
func WithLogger(l *logging.Logger) Option {
	return func(p *Patcher) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics records resolution failures in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Patcher) {
		p.metrics = m
	}
}

// New creates a patcher installing into reg.
func New(owner string, reg *hook.Registry, opts ...Option) *Patcher {
	p := &Patcher{
		owner:    owner,
		registry: reg,
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.WithField("owner", owner)
	return p
}

// Owner returns the owner name.
func (p *Patcher) Owner() string {
	return p.owner
}

// Registry returns the registry hooks are installed into.
func (p *Patcher) Registry() *hook.Registry {
	return p.registry
}

// Resolve finds the target for a feature. A failure is logged at debug level
// and counted; the feature should then stay inactive.
func (p *Patcher) Resolve(feature string, c signature.Introspectable, sig signature.Signature) (*signature.Target, error) {
	target, err := signature.Resolve(c, sig)
	if err != nil {
		p.logger.WithField("feature", feature).Debug("feature disabled: %v", err)
		if p.metrics != nil {
			p.metrics.RecordResolutionFailure(feature)
		}
		return nil, err
	}
	if all := signature.ResolveAll(c, sig); len(all) > 1 {
		p.logger.WithField("feature", feature).Debug("%d callables match %s, using first declared %s", len(all), sig, target.Method().Name)
	}
	return target, nil
}

// Patch installs a hook on target and remembers its handle.
func (p *Patcher) Patch(target *signature.Target, kind hook.Kind, cb hook.Callback) (*hook.Handle, error) {
	h, err := p.registry.Install(target, kind, cb)
	if err != nil {
		var ierr *hook.InstallError
		if errors.As(err, &ierr) {
			p.logger.Warn("skipping %s hook: %v", kind, err)
		}
		return nil, err
	}

	p.mu.Lock()
	p.handles = slices.DeleteFunc(p.handles, (*hook.Handle).Revoked)
	p.handles = append(p.handles, h)
	p.mu.Unlock()
	return h, nil
}

// PatchSignature resolves a target for feature and installs a hook on it.
func (p *Patcher) PatchSignature(feature string, c signature.Introspectable, sig signature.Signature, kind hook.Kind, cb hook.Callback) (*hook.Handle, error) {
	target, err := p.Resolve(feature, c, sig)
	if err != nil {
		return nil, err
	}
	return p.Patch(target, kind, cb)
}

// Before installs a Before hook.
func (p *Patcher) Before(target *signature.Target, cb hook.Callback) (*hook.Handle, error) {
	return p.Patch(target, hook.Before, cb)
}

// After installs an After hook.
func (p *Patcher) After(target *signature.Target, cb hook.Callback) (*hook.Handle, error) {
	return p.Patch(target, hook.After, cb)
}

// Instead installs an InsteadOf hook.
func (p *Patcher) Instead(target *signature.Target, cb hook.Callback) (*hook.Handle, error) {
	return p.Patch(target, hook.InsteadOf, cb)
}

// UnpatchAll revokes every hook this patcher installed and returns how many
// were still live. It is safe to call repeatedly.
func (p *Patcher) UnpatchAll() int {
	p.mu.Lock()
	handles := p.handles
	p.handles = nil
	p.mu.Unlock()

	n := 0
	for _, h := range handles {
		if !h.Revoked() {
			n++
		}
		h.Revoke()
	}
	return n
}

// Len returns the number of live hooks this patcher installed.
func (p *Patcher) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, h := range p.handles {
		if !h.Revoked() {
			n++
		}
	}
	return n
}
