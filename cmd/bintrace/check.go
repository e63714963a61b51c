// Copyright 2022 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/gensrr/memtrace/bintrace"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// maxErrors is the number of problems reported per trace before the
// rest are only counted.
const maxErrors = 20

func newCheckCmd() *cobra.Command {
	cfg := bintrace.DefaultConfig()
	cmd := &cobra.Command{
		Use:   "check <trace>...",
		Short: "Verify the structure and summary of one or more traces",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reports, err := checkTraces(cmd.Context(), args, cfg)
			if err != nil {
				return err
			}
			bad := 0
			for _, r := range reports {
				r.print(cmd.OutOrStdout())
				if len(r.problems) != 0 || r.dropped != 0 {
					bad++
				}
			}
			if bad != 0 {
				return fmt.Errorf("%d of %d traces failed checks", bad, len(reports))
			}
			return nil
		},
	}
	addLayoutFlags(cmd.Flags(), &cfg)
	return cmd
}

type checkReport struct {
	path     string
	trace    *bintrace.Trace
	problems []string
	dropped  int
}

func (r *checkReport) problem(format string, args ...interface{}) {
	if len(r.problems) == maxErrors {
		r.dropped++
		return
	}
	r.problems = append(r.problems, fmt.Sprintf(format, args...))
}

func (r *checkReport) print(w io.Writer) {
	t := r.trace
	status := "ok"
	if len(r.problems) != 0 || r.dropped != 0 {
		status = "FAIL"
	}
	fmt.Fprintf(w, "%s: %s\n", r.path, status)
	if t != nil {
		h := t.Header()
		fmt.Fprintf(w, "\tversion %d, %s, %s events, frames %d-%d\n",
			h.Version, humanize.Bytes(uint64(t.Size())), humanize.Comma(int64(t.Events())), t.StartFrame(), t.EndFrame())
		fmt.Fprintf(w, "\t%s writes, %s reads, %s block payload\n",
			humanize.Comma(int64(t.Count(bintrace.KindWrite)+t.Count(bintrace.KindWriteBlock))),
			humanize.Comma(int64(t.Count(bintrace.KindRead)+t.Count(bintrace.KindReadBlock))),
			humanize.Bytes(t.PayloadBytes()))
	}
	for _, p := range r.problems {
		fmt.Fprintf(w, "\terror: %s\n", p)
	}
	if r.dropped != 0 {
		fmt.Fprintf(w, "\t... and %d more\n", r.dropped)
	}
}

// checkTraces checks every trace concurrently. Problems found in a trace
// go into its report; the error is only for failing to check at all.
func checkTraces(ctx context.Context, paths []string, cfg bintrace.Config) ([]*checkReport, error) {
	reports := make([]*checkReport, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			r, err := checkTrace(ctx, path, cfg)
			if err != nil {
				return err
			}
			reports[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

func checkTrace(ctx context.Context, path string, cfg bintrace.Config) (*checkReport, error) {
	r := &checkReport{path: path}
	m, t, err := openTrace(path)
	if err != nil {
		r.problem("%v", err)
		return r, nil
	}
	defer m.Close()
	r.trace = t

	switch {
	case !t.Finalized():
		r.problem("trace was never finalized")
	case !t.Consistent():
		s, c := t.Summary(), t.Scanned()
		r.problem("summary says %d events in frames %d-%d, records say %d events in frames %d-%d",
			s.EventCount, s.StartFrame, s.EndFrame, c.EventCount, c.StartFrame, c.EndFrame)
	}
	if n := t.Truncated(); n != 0 {
		r.problem("%d trailing bytes of a partial record", n)
	}

	chk := bintrace.NewChecker(cfg)
	parser := bintrace.NewParser(t)
	for n := 0; ; n++ {
		if n%4096 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		off := parser.Offset()
		e, err := parser.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			r.problem("%v", err)
			break
		}
		if err := chk.Validate(e); err != nil {
			r.problem("offset 0x%x: %v", off, err)
		}
		chk.Feed(e)
	}
	log.Debug().Str("trace", path).Int("problems", len(r.problems)+r.dropped).Msg("checked trace")
	return r, nil
}
