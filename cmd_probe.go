package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"cohort/channel"
	"cohort/debug"
	"cohort/metrics"
)

func probeCmd() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Register with the configured accelerator and hold until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, ledger, err := channelOptions(cfg)
			if err != nil {
				return err
			}
			if ledger != nil {
				defer ledger.Close()
			}
			acc := newAccelerator(cfg)
			ctx := cmd.Context()

			return channel.With(acc, cfg.Channel.Capacity, func(c *channel.Channel[frame]) error {
				if cfg.Metrics.Listen != "" {
					set := metrics.NewSet()
					tr := metrics.Track(set, c)
					defer tr.Untrack()
					go func() {
						if err := metrics.Serve(ctx, cfg.Metrics.Listen, set); err != nil {
							debug.DropError("METRICS", err)
						}
					}()
				}

				reg := c.Addresses()
				fmt.Fprintln(cmd.OutOrStdout(), reg.String())
				tick := time.NewTicker(interval)
				defer tick.Stop()
				for {
					select {
					case <-ctx.Done():
						debug.DropMessage("SIGNAL", "interrupt received, unregistering")
						return nil
					case <-tick.C:
						s := c.Stats()
						debug.Logger().Info().
							Str("tag", "PROBE").
							Uint8("identity", s.Identity).
							Uint64("aux", s.Aux).
							Int("sender_depth", s.SenderDepth).
							Int("receiver_depth", s.ReceiverDepth).
							Msg("channel state")
					}
				}
			}, opts...)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "how often to log the aux word")
	return cmd
}
