// ════════════════════════════════════════════════════════════════════════════════════════════════
// cohort - Accelerator Channel Tool
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: Command Line Entry Point
//
// Description:
//   Inspects channel layouts, exercises channels against the in-process loopback accelerator,
//   probes a real accelerator and maintains the registration ledger.
//
// Commands:
//   - info      layout, offsets and region size for a capacity/element size
//   - loopback  stream frames through an emulated accelerator and verify digests
//   - probe     register with the configured accelerator and hold until signalled
//   - registry  list, prune or forget ledger rows
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"cohort/accel"
	"cohort/accel/loopback"
	"cohort/channel"
	"cohort/config"
	"cohort/debug"
	"cohort/registry"
)

var (
	configPath string
	logLevel   string
	cfg        *config.Config
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		debug.DropError("FATAL", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cohort",
		Short:         "Shared-memory accelerator channel tool",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if cfg, err = config.Load(configPath); err != nil {
				return err
			}
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}
			if err := debug.Configure(cfg.Log.Level, cfg.Log.Console); err != nil {
				return fmt.Errorf("log level: %w", err)
			}
			_, err = maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
				debug.Logger().Debug().Str("tag", "MAXPROCS").Msgf(format, args...)
			}))
			return err
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level")

	root.AddCommand(infoCmd(), loopbackCmd(), probeCmd(), registryCmd())
	return root
}

// newAccelerator builds the accelerator named in the config.
func newAccelerator(c *config.Config) accel.Accelerator {
	if c.Accelerator.Kind == config.AcceleratorLoopback {
		return loopback.New(loopback.WithCore(c.Accelerator.Core))
	}
	return accel.Syscall{
		RegisterNr:   uintptr(c.Accelerator.RegisterNr),
		UnregisterNr: uintptr(c.Accelerator.UnregisterNr),
	}
}

// channelOptions maps the config's channel section onto Register options.
// The returned ledger, if any, must be closed by the caller.
func channelOptions(c *config.Config) ([]channel.Option, *registry.Registry, error) {
	opts := []channel.Option{
		channel.WithIdentity(c.Channel.Identity),
		channel.WithBackoff(c.Channel.Backoff),
		channel.WithAuxValue(c.Channel.AuxInitial),
		channel.WithUnregisterRetries(c.Channel.Retries, c.Channel.RetryDelay),
	}
	if c.Channel.LockMemory {
		opts = append(opts, channel.WithLockedMemory())
	}
	if c.Channel.CollectStats {
		opts = append(opts, channel.WithStats())
	}
	if !c.Registry.Enabled {
		return opts, nil, nil
	}
	reg, err := registry.Open(c.Registry.Path)
	if err != nil {
		return nil, nil, err
	}
	return append(opts, channel.WithLedger(reg)), reg, nil
}
