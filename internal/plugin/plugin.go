package plugin

import (
	"context"

	"github.com/dshills/patchwork/internal/config"
	"github.com/dshills/patchwork/internal/logging"
	"github.com/dshills/patchwork/internal/metrics"
	"github.com/dshills/patchwork/internal/patcher"
	"github.com/dshills/patchwork/internal/patcher/host"
)

// Plugin is a unit of behavior patched into the host.
//
// Start resolves targets and installs hooks through env.Patcher. A
// resolution failure should disable only the affected feature. Stop should
// release anything Start acquired; hooks installed through env.Patcher are
// revoked by the Manager regardless.
type Plugin interface {
	Name() string
	Start(ctx context.Context, env *Env) error
	Stop(ctx context.Context, env *Env) error
}

// Env is what a plugin gets to work with while it is active.
type Env struct {
	// Catalog lists the host classes that can be patched.
	Catalog *host.Catalog

	// Settings is the persisted settings store. It may be shared between
	// plugins.
	Settings *config.Store

	// Patcher installs hooks owned by this plugin.
	Patcher *patcher.Patcher

	// Logger is scoped to the plugin.
	Logger *logging.Logger

	// Metrics may be nil.
	Metrics *metrics.Metrics
}
