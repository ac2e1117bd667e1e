package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dshills/patchwork/internal/config"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and write persisted settings",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "get [key]",
			Short: "Print one setting, or all settings",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := config.Open(opts.path(), config.WithDefaults(map[string]any{
					config.KeyRemoveMaxRes: false,
				}))
				if err != nil {
					return err
				}
				defer store.Close()

				keys := store.Keys()
				if len(args) == 1 {
					keys = args
				}
				for _, key := range keys {
					v, ok := store.Get(key)
					if !ok {
						return fmt.Errorf("%s: %w", key, config.ErrSettingNotFound)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", key, v)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Persist a setting",
			Long: `Persist a setting. Values "true" and "false" are stored as booleans,
anything else as a string. A running instance watching the same file picks
the change up immediately.`,
			Args: cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := config.Open(opts.path())
				if err != nil {
					return err
				}
				defer store.Close()

				key, raw := args[0], args[1]
				if b, perr := strconv.ParseBool(raw); perr == nil {
					err = store.SetBool(key, b)
				} else {
					err = store.SetString(key, raw)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, raw)
				return nil
			},
		},
	)
	return cmd
}
