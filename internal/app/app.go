// Package app wires the patching runtime together: settings, logging,
// metrics, the hook registry, the host application and the plugin manager.
package app

import (
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dshills/patchwork/internal/config"
	"github.com/dshills/patchwork/internal/config/notify"
	"github.com/dshills/patchwork/internal/hostapp"
	"github.com/dshills/patchwork/internal/logging"
	"github.com/dshills/patchwork/internal/metrics"
	"github.com/dshills/patchwork/internal/patcher/hook"
	"github.com/dshills/patchwork/internal/plugin"
	"github.com/dshills/patchwork/internal/plugins/zoomlimit"
)

// Application is the central coordinator for all components.
type Application struct {
	mu sync.Mutex

	settings *config.Store
	logger   *logging.Logger
	metrics  *metrics.Metrics
	promReg  *prometheus.Registry
	registry *hook.Registry
	host     *hostapp.App
	plugins  *plugin.Manager
	zoom     *zoomlimit.Plugin

	levelSub *notify.Subscription
	server   *http.Server

	running atomic.Bool
	opts    Options
}

// Options configures the application.
type Options struct {
	// SettingsPath is the settings file. Empty keeps settings in memory.
	SettingsPath string

	// Watch reloads the settings file when it changes on disk.
	Watch bool

	// Scripts are Lua plugin files to load after the built-in plugin.
	Scripts []string

	// LogLevel overrides the logLevel setting when non-empty.
	LogLevel string

	// LogOutput defaults to os.Stderr.
	LogOutput io.Writer

	// MetricsAddr serves /metrics when non-empty, e.g. ":9090".
	MetricsAddr string

	// Host configures the simulated host application.
	Host hostapp.Options

	// DisableZoomLimit skips loading the built-in zoom-limit plugin.
	DisableZoomLimit bool
}

// New creates an application. Nothing is patched until Start.
func New(opts Options) (*Application, error) {
	app := &Application{opts: opts}
	if err := app.bootstrap(); err != nil {
		app.closeSettings()
		return nil, err
	}
	return app, nil
}

// Settings returns the settings store.
func (app *Application) Settings() *config.Store {
	return app.settings
}

// Logger returns the root logger.
func (app *Application) Logger() *logging.Logger {
	return app.logger
}

// Host returns the simulated host application.
func (app *Application) Host() *hostapp.App {
	return app.host
}

// Plugins returns the plugin manager.
func (app *Application) Plugins() *plugin.Manager {
	return app.plugins
}

// Registry returns the hook registry.
func (app *Application) Registry() *hook.Registry {
	return app.registry
}

// Gatherer returns the Prometheus registry holding the runtime metrics.
func (app *Application) Gatherer() prometheus.Gatherer {
	return app.promReg
}

// IsRunning reports whether Start has been called without Shutdown.
func (app *Application) IsRunning() bool {
	return app.running.Load()
}

// ZoomLimit returns the built-in zoom-limit plugin, or nil when disabled.
func (app *Application) ZoomLimit() *zoomlimit.Plugin {
	return app.zoom
}
