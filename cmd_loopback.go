package main

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/sugawarayuuta/sonnet"
	"golang.org/x/crypto/sha3"
	"golang.org/x/sync/errgroup"

	"cohort/accel/loopback"
	"cohort/channel"
	"cohort/debug"
	"cohort/mem"
	"cohort/metrics"
)

// frame is the element streamed by the loopback command: one cache line.
type frame struct {
	Seq  uint64
	Body [56]byte
}

func (f *frame) fill(seq uint64) {
	f.Seq = seq
	x := seq*0x9e3779b97f4a7c15 + 1
	for i := 0; i < len(f.Body); i += 8 {
		x ^= x << 13
		x ^= x >> 7
		x ^= x << 17
		binary.LittleEndian.PutUint64(f.Body[i:], x)
	}
}

type loopbackReport struct {
	Frames      uint64        `json:"frames"`
	Capacity    int           `json:"capacity"`
	Elapsed     time.Duration `json:"elapsed_ns"`
	FramesPerS  float64       `json:"frames_per_second"`
	SentSHA3    string        `json:"sent_sha3_256"`
	RecvSHA3    string        `json:"received_sha3_256"`
	Match       bool          `json:"match"`
	Stats       channel.Stats `json:"stats"`
	LeakedBytes int           `json:"leaked_bytes"`
}

func loopbackCmd() *cobra.Command {
	var (
		count    uint64
		capacity int
		core     int
	)
	cmd := &cobra.Command{
		Use:   "loopback",
		Short: "Stream frames through the loopback accelerator and verify them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("capacity") {
				capacity = cfg.Channel.Capacity
			}
			if !cmd.Flags().Changed("core") {
				core = cfg.Accelerator.Core
			}
			acc := loopback.New(loopback.WithCore(core))
			opts := []channel.Option{
				channel.WithIdentity(cfg.Channel.Identity),
				channel.WithBackoff(cfg.Channel.Backoff),
				channel.WithStats(),
			}
			return channel.With(acc, capacity, func(c *channel.Channel[frame]) error {
				rep, err := runLoopback(cmd.Context(), c, count)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), rep)
			}, opts...)
		},
	}
	cmd.Flags().Uint64Var(&count, "count", 1_000_000, "frames to send")
	cmd.Flags().IntVar(&capacity, "capacity", 1024, "usable slots per direction")
	cmd.Flags().IntVar(&core, "core", -1, "CPU to pin the loopback worker to")
	return cmd
}

func runLoopback(ctx context.Context, c *channel.Channel[frame], count uint64) (*loopbackReport, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

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

	sent, recv := sha3.New256(), sha3.New256()
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var f frame
		for i := uint64(0); i < count; i++ {
			f.fill(i)
			sent.Write(f.Body[:])
			for !c.TryPush(f) {
				if gctx.Err() != nil {
					return gctx.Err()
				}
			}
		}
		return nil
	})
	g.Go(func() error {
		for i := uint64(0); i < count; i++ {
			var (
				f  frame
				ok bool
			)
			for f, ok = c.TryPop(); !ok; f, ok = c.TryPop() {
				if gctx.Err() != nil {
					return gctx.Err()
				}
			}
			if f.Seq != i {
				return fmt.Errorf("frame %d arrived at position %d", f.Seq, i)
			}
			recv.Write(f.Body[:])
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	rep := &loopbackReport{
		Frames:      count,
		Capacity:    c.Cap(),
		Elapsed:     elapsed,
		FramesPerS:  float64(count) / elapsed.Seconds(),
		SentSHA3:    hex.EncodeToString(sent.Sum(nil)),
		RecvSHA3:    hex.EncodeToString(recv.Sum(nil)),
		Stats:       c.Stats(),
		LeakedBytes: mem.LeakedBytes(),
	}
	rep.Match = rep.SentSHA3 == rep.RecvSHA3
	if !rep.Match {
		return rep, errors.New("loopback: digest mismatch")
	}
	return rep, nil
}

func writeJSON(w io.Writer, v any) error {
	b, err := sonnet.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(append(b, '\n'))
	return err
}
