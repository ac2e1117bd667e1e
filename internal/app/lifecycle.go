package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dshills/patchwork/internal/metrics"
)

// shutdownTimeout bounds plugin teardown and the metrics server drain.
const shutdownTimeout = 5 * time.Second

// Start watches the settings file if requested, serves metrics if requested
// and activates every loaded plugin. A plugin that fails to start is logged
// and left inactive; the others keep running.
func (app *Application) Start(ctx context.Context) error {
	if !app.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	if app.opts.Watch && app.settings.Path() != "" {
		if err := app.settings.Start(); err != nil {
			app.logger.Warn("settings watch disabled: %v", err)
		}
	}

	if app.opts.MetricsAddr != "" {
		if err := app.serveMetrics(app.opts.MetricsAddr); err != nil {
			app.running.Store(false)
			return &InitError{Component: "metrics server", Err: err}
		}
	}

	if err := app.plugins.ActivateAll(ctx); err != nil {
		app.logger.Warn("%v", err)
	}
	app.logger.Info("started with %d/%d plugins active, %d hooks", app.plugins.CountActive(), app.plugins.Count(), app.registry.Len())
	return nil
}

// Run starts the application and blocks until ctx is done, then shuts down.
func (app *Application) Run(ctx context.Context) error {
	if err := app.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return app.Shutdown()
}

// Shutdown deactivates every plugin, which revokes all hooks, then stops the
// metrics server and closes the settings store.
func (app *Application) Shutdown() error {
	if !app.running.CompareAndSwap(true, false) {
		return ErrNotRunning
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := app.plugins.DeactivateAll(ctx); err != nil {
		errs = append(errs, err)
	}
	if n := app.registry.Len(); n > 0 {
		app.logger.Warn("revoking %d hooks left after plugin shutdown", n)
		app.registry.RevokeAll()
	}

	app.mu.Lock()
	srv := app.server
	app.server = nil
	app.mu.Unlock()
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	app.closeSettings()
	app.logger.Info("shut down")
	return errors.Join(errs...)
}

// MetricsAddr returns the address the metrics server listens on, or "".
func (app *Application) MetricsAddr() string {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.server == nil {
		return ""
	}
	return app.server.Addr
}

func (app *Application) serveMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(app.promReg))
	srv := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	app.mu.Lock()
	app.server = srv
	app.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error("metrics server: %v", err)
		}
	}()
	app.logger.Info("serving metrics on %s", srv.Addr)
	return nil
}
