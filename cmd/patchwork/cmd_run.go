package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/patchwork/internal/app"
	"github.com/dshills/patchwork/internal/hostapp"
)

type runOptions struct {
	scripts     []string
	logLevel    string
	metricsAddr string
	demo        bool
	noWatch     bool
	noZoomLimit bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Patch the host application and keep the hooks active",
		Long: `Patch the host application and keep the hooks active until interrupted.

With --demo the patched routines are exercised once and the command exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch opts.logLevel {
			case "", "debug", "info", "warn", "error":
			default:
				return fmt.Errorf("invalid log level %q (must be debug, info, warn, or error)", opts.logLevel)
			}

			application, err := app.New(app.Options{
				SettingsPath:     root.path(),
				Watch:            !opts.noWatch && !opts.demo,
				Scripts:          opts.scripts,
				LogLevel:         opts.logLevel,
				LogOutput:        cmd.ErrOrStderr(),
				MetricsAddr:      opts.metricsAddr,
				Host:             hostapp.DefaultOptions(),
				DisableZoomLimit: opts.noZoomLimit,
			})
			if err != nil {
				return err
			}

			if opts.demo {
				if err := application.Start(cmd.Context()); err != nil {
					return err
				}
				defer application.Shutdown()
				return demo(cmd.OutOrStdout(), application.Host())
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return application.Run(ctx)
		},
	}

	f := cmd.Flags()
	f.StringArrayVar(&opts.scripts, "script", nil, "Lua script plugin to load (repeatable)")
	f.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides the logLevel setting")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	f.BoolVar(&opts.demo, "demo", false, "exercise the patched routines once and exit")
	f.BoolVar(&opts.noWatch, "no-watch", false, "do not reload the settings file on change")
	f.BoolVar(&opts.noZoomLimit, "no-zoomlimit", false, "do not load the built-in zoomlimit plugin")
	return cmd
}

// demo drives each patched routine once and prints what the host saw.
func demo(w io.Writer, host *hostapp.App) error {
	ctx := &hostapp.Context{Density: 2, ViewportWidth: 540, ViewportHeight: 960}
	url, err := host.Media.Open(ctx, hostapp.ParseURI("https://media.discordapp.net/attachments/1/2/image.png"))
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "media url: %s\n", url)

	host.Zoom.Reset()
	for _, step := range []float32{1.5, 1.5, 1.3, 2} {
		applied, err := host.Zoom.ZoomBy(step, 0, 0)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "zoom x%.1f: applied=%v scale=%.2f\n", step, applied, host.Zoom.Matrix().ScaleX)
	}

	d, err := host.Decoder.Decode(&hostapp.EncodedImage{Width: 4096, Height: 3072}, &hostapp.ResizeOptions{Width: 1080, Height: 1920})
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "decode 4096x3072: sample=%d size=%dx%d\n", d.SampleSize, d.Width, d.Height)
	return nil
}
