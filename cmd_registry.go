package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"cohort/registry"
)

func registryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Inspect and maintain the registration ledger",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Print every ledger row as JSON",
			RunE: withLedger(func(cmd *cobra.Command, r *registry.Registry, _ []string) error {
				entries, err := r.List()
				if err != nil {
					return err
				}
				if entries == nil {
					entries = []registry.Entry{}
				}
				return writeJSON(cmd.OutOrStdout(), entries)
			}),
		},
		&cobra.Command{
			Use:   "prune",
			Short: "Drop active rows whose process has exited",
			RunE: withLedger(func(cmd *cobra.Command, r *registry.Registry, _ []string) error {
				pruned, err := r.Prune()
				for _, id := range pruned {
					fmt.Fprintf(cmd.OutOrStdout(), "pruned identity %d\n", id)
				}
				return err
			}),
		},
		&cobra.Command{
			Use:   "forget <identity>",
			Short: "Delete a row in any state, including leaked ones",
			Args:  cobra.ExactArgs(1),
			RunE: withLedger(func(cmd *cobra.Command, r *registry.Registry, args []string) error {
				id, err := strconv.ParseUint(args[0], 10, 8)
				if err != nil {
					return fmt.Errorf("identity %q: %w", args[0], err)
				}
				if err := r.Forget(uint8(id)); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "forgot identity %d\n", id)
				return nil
			}),
		},
	)
	return cmd
}

func withLedger(fn func(*cobra.Command, *registry.Registry, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		r, err := registry.Open(cfg.Registry.Path)
		if err != nil {
			return err
		}
		defer r.Close()
		return fn(cmd, r, args)
	}
}
