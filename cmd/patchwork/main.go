// Package main is the entry point for patchwork.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/patchwork/internal/config"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// rootOptions are the flags shared by every subcommand.
type rootOptions struct {
	settingsPath string
}

func (o *rootOptions) path() string {
	if o.settingsPath != "" {
		return o.settingsPath
	}
	return config.DefaultPath()
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "patchwork",
		Short: "Runtime method patching for a host application",
		Long: `patchwork installs hooks into a host application's routines at runtime.

The built-in zoomlimit plugin lifts the media viewer's zoom cap behind a
memory guard and can force a lower decode resolution. Lua scripts can add
further hooks.

Examples:
  patchwork run --demo                 Patch the host and exercise it once
  patchwork run --script extra.lua     Load an additional script plugin
  patchwork config set removeMaxRes true`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.settingsPath, "settings", "s", "", "settings file (default "+config.DefaultPath()+")")

	cmd.AddCommand(
		newRunCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "patchwork %s\n", version)
			fmt.Fprintf(out, "Commit: %s\n", commit)
			fmt.Fprintf(out, "Built: %s\n", date)
		},
	}
}
