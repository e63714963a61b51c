// Copyright 2022 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/gensrr/memtrace/bintrace"
	"github.com/spf13/cobra"
)

func newRecoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recover <trace>",
		Short: "Finalize the header of a trace whose session never closed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.OpenFile(args[0], os.O_RDWR, 0)
			if err != nil {
				return err
			}
			defer f.Close()
			fi, err := f.Stat()
			if err != nil {
				return err
			}
			h, err := bintrace.Recover(f, fi.Size())
			if err != nil {
				return fmt.Errorf("%s: %v", args[0], err)
			}
			if err := f.Sync(); err != nil {
				return err
			}
			log.Info().
				Str("trace", args[0]).
				Str("size", humanize.Bytes(uint64(fi.Size()))).
				Msg("recovered trace")
			fmt.Fprintf(cmd.OutOrStdout(), "%s: version %d, %d events, frames %d-%d\n",
				args[0], h.Version, h.EventCount, h.StartFrame, h.EndFrame)
			return nil
		},
	}
}
