package main

import (
	"fmt"
	"io"
	"runtime"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/cpuid/v2"
	"github.com/spf13/cobra"

	"cohort/constants"
	"cohort/mem"
	"cohort/ring"
	"cohort/utils"
)

func infoCmd() *cobra.Command {
	var (
		capacity int
		elemSize uint
	)
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Print the shared region layout for a channel",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("capacity") {
				capacity = cfg.Channel.Capacity
			}
			l, err := ring.LayoutFor(uintptr(elemSize), capacity)
			if err != nil {
				return err
			}
			printInfo(cmd.OutOrStdout(), l)
			return nil
		},
	}
	cmd.Flags().IntVar(&capacity, "capacity", constants.DefaultCapacity, "usable slots per direction")
	cmd.Flags().UintVar(&elemSize, "elem-size", 64, "bytes per element")
	return cmd
}

func printInfo(w io.Writer, l ring.Layout) {
	region := uint64(constants.AuxCellSize) + 2*uint64(l.Size)
	page := uint64(mem.PageSize())
	mapped := (region + page - 1) / page * page

	fmt.Fprintf(w, "cpu            %s (%s/%s)\n", cpuid.CPU.BrandName, runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(w, "cache line     %d bytes (layout assumes %d)\n", cpuid.CPU.CacheLine, constants.Align)
	fmt.Fprintf(w, "page size      %s\n", humanize.IBytes(page))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "element        %d bytes\n", l.ElemSize)
	fmt.Fprintf(w, "capacity       %s slots (+1 sentinel)\n", humanize.Comma(int64(l.Capacity)))
	fmt.Fprintf(w, "control block  %d bytes (head @%d, tail @%d)\n", constants.ControlBlockSize, constants.HeadOffset, constants.TailOffset)
	fmt.Fprintf(w, "ring data      %s\n", humanize.IBytes(uint64(l.DataSize)))
	fmt.Fprintf(w, "ring total     %s\n", humanize.IBytes(uint64(l.Size)))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "aux word       offset %s\n", utils.Hex(0))
	fmt.Fprintf(w, "sender ring    offset %s\n", utils.Hex(constants.AuxCellSize))
	fmt.Fprintf(w, "receiver ring  offset %s\n", utils.Hex(constants.AuxCellSize+uint64(l.Size)))
	fmt.Fprintf(w, "region         %s (%s mapped)\n", humanize.IBytes(region), humanize.IBytes(mapped))
}
