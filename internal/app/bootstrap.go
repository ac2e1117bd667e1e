package app

import (
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dshills/patchwork/internal/config"
	"github.com/dshills/patchwork/internal/config/notify"
	"github.com/dshills/patchwork/internal/hostapp"
	"github.com/dshills/patchwork/internal/logging"
	"github.com/dshills/patchwork/internal/metrics"
	"github.com/dshills/patchwork/internal/patcher/hook"
	"github.com/dshills/patchwork/internal/patcher/script"
	"github.com/dshills/patchwork/internal/plugin"
	"github.com/dshills/patchwork/internal/plugins/zoomlimit"
)

// defaultSettings are the values used when the settings file is silent.
var defaultSettings = map[string]any{
	config.KeyRemoveMaxRes: false,
	config.KeyLogLevel:     "info",
}

// bootstrap initializes all components in dependency order.
func (app *Application) bootstrap() error {
	// 1. Logger, so the store can report reload problems.
	out := app.opts.LogOutput
	if out == nil {
		out = os.Stderr
	}
	app.logger = logging.New(logging.Config{Level: logging.LevelInfo, Output: out})

	// 2. Settings
	storeOpts := []config.Option{
		config.WithDefaults(defaultSettings),
		config.WithLogger(app.logger.WithComponent("settings")),
	}
	if app.opts.SettingsPath == "" {
		app.settings = config.NewMemory(storeOpts...)
	} else {
		s, err := config.Open(app.opts.SettingsPath, storeOpts...)
		if err != nil {
			return &InitError{Component: "settings", Err: err}
		}
		app.settings = s
	}
	app.applyLogLevel()
	app.levelSub = app.settings.SubscribeKey(config.KeyLogLevel, func(notify.Change) {
		app.applyLogLevel()
	})

	// 3. Metrics
	app.metrics = metrics.New()
	app.promReg = prometheus.NewRegistry()
	if err := app.metrics.Register(app.promReg); err != nil {
		return &InitError{Component: "metrics", Err: err}
	}

	// 4. Hook registry
	app.registry = hook.NewRegistry()
	app.metrics.ObserveRegistry(app.registry)

	// 5. Host application
	app.host = hostapp.New(app.opts.Host)

	// 6. Plugins
	app.plugins = plugin.NewManager(plugin.ManagerConfig{
		Catalog:  app.host.Catalog(),
		Settings: app.settings,
		Registry: app.registry,
		Logger:   app.logger.WithComponent("plugin"),
		Metrics:  app.metrics,
	})
	if !app.opts.DisableZoomLimit {
		app.zoom = zoomlimit.New()
		if _, err := app.plugins.Load(app.zoom); err != nil {
			return &InitError{Component: "plugin " + zoomlimit.Name, Err: err}
		}
	}
	for _, path := range app.opts.Scripts {
		if _, err := app.plugins.Load(script.FromFile(path)); err != nil {
			return &InitError{Component: "script " + path, Err: err}
		}
	}

	return nil
}

// applyLogLevel sets the logger level from the options or the logLevel
// setting.
func (app *Application) applyLogLevel() {
	level := app.opts.LogLevel
	if level == "" {
		level = app.settings.String(config.KeyLogLevel, "info")
	}
	app.logger.SetLevel(logging.ParseLevel(level))
}

func (app *Application) closeSettings() {
	app.levelSub.Unsubscribe()
	if app.settings != nil {
		if err := app.settings.Close(); err != nil {
			app.logger.Warn("close settings: %v", err)
		}
	}
}
