// Copyright 2022 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command bintrace inspects and verifies binary memory traces.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/gensrr/memtrace/bintrace"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/exp/mmap"
)

var log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

func newRootCmd() *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:           "bintrace",
		Short:         "Inspect and verify binary memory traces",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				log = log.Level(zerolog.DebugLevel)
			} else {
				log = log.Level(zerolog.InfoLevel)
			}
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debugging detail")
	root.AddCommand(newPrintCmd())
	root.AddCommand(newCheckCmd())
	root.AddCommand(newRecoverCmd())
	root.AddCommand(newExploreCmd())
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// openTrace maps the trace at path and indexes it.
func openTrace(path string) (*mmap.ReaderAt, *bintrace.Trace, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to map trace: %v", err)
	}
	t, err := bintrace.NewTrace(r, int64(r.Len()))
	if err != nil {
		r.Close()
		return nil, nil, fmt.Errorf("%s: %v", path, err)
	}
	log.Debug().
		Str("trace", path).
		Uint32("events", t.Events()).
		Bool("finalized", t.Finalized()).
		Msg("indexed trace")
	return r, t, nil
}

// addLayoutFlags registers the flags describing how a trace was recorded.
func addLayoutFlags(fs *pflag.FlagSet, cfg *bintrace.Config) {
	fs.Var((*rangeValue)(&cfg.Memory.ROM), "rom", "ROM address range, as start-end in hex")
	fs.Var((*rangeValue)(&cfg.Memory.RAM), "ram", "work RAM address range, as start-end in hex")
	fs.Var(&rangeListValue{ranges: &cfg.Pointers.Ranges}, "pointer-range", "address range pointers may target (repeatable)")
	fs.Uint32Var(&cfg.Pointers.Align, "pointer-align", cfg.Pointers.Align, "alignment a pointer must have")
	fs.IntVar(&cfg.BlockCapacity, "block-capacity", cfg.BlockCapacity, "largest block record the recorder emits")
}

func parseRange(s string) (bintrace.AddressRange, error) {
	lo, hi, ok := strings.Cut(s, "-")
	if !ok {
		return bintrace.AddressRange{}, fmt.Errorf("range %q must be start-end", s)
	}
	start, err := strconv.ParseUint(strings.TrimPrefix(lo, "0x"), 16, 32)
	if err != nil {
		return bintrace.AddressRange{}, fmt.Errorf("range start: %v", err)
	}
	end, err := strconv.ParseUint(strings.TrimPrefix(hi, "0x"), 16, 32)
	if err != nil {
		return bintrace.AddressRange{}, fmt.Errorf("range end: %v", err)
	}
	if end < start {
		return bintrace.AddressRange{}, fmt.Errorf("range %q ends before it starts", s)
	}
	return bintrace.AddressRange{Start: uint32(start), End: uint32(end)}, nil
}

// rangeValue is a pflag.Value for a single address range.
type rangeValue bintrace.AddressRange

func (v *rangeValue) String() string {
	return bintrace.AddressRange(*v).String()
}

func (v *rangeValue) Set(s string) error {
	r, err := parseRange(s)
	if err != nil {
		return err
	}
	*v = rangeValue(r)
	return nil
}

func (v *rangeValue) Type() string {
	return "range"
}

// rangeListValue is a pflag.Value collecting address ranges. The first
// Set replaces the defaults.
type rangeListValue struct {
	ranges *[]bintrace.AddressRange
	set    bool
}

func (v *rangeListValue) String() string {
	if v.ranges == nil {
		return ""
	}
	var parts []string
	for _, r := range *v.ranges {
		parts = append(parts, r.String())
	}
	return strings.Join(parts, ",")
}

func (v *rangeListValue) Set(s string) error {
	var ranges []bintrace.AddressRange
	for _, part := range strings.Split(s, ",") {
		r, err := parseRange(part)
		if err != nil {
			return err
		}
		ranges = append(ranges, r)
	}
	if !v.set {
		*v.ranges = nil
		v.set = true
	}
	*v.ranges = append(*v.ranges, ranges...)
	return nil
}

func (v *rangeListValue) Type() string {
	return "ranges"
}
