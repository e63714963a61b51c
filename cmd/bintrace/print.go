// Copyright 2022 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/gensrr/memtrace/bintrace"
	"github.com/spf13/cobra"
)

func newPrintCmd() *cobra.Command {
	cfg := bintrace.DefaultConfig()
	var follow bool
	cmd := &cobra.Command{
		Use:   "print <trace>",
		Short: "Dump every event in the trace to the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chk := bintrace.NewChecker(cfg)
			if follow {
				return followTrace(cmd.Context(), args[0], cmd.OutOrStdout(), chk)
			}
			return printTrace(args[0], cmd.OutOrStdout(), chk)
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing events as a live session appends them")
	addLayoutFlags(cmd.Flags(), &cfg)
	return cmd
}

func printTrace(path string, w io.Writer, chk *bintrace.Checker) error {
	r, t, err := openTrace(path)
	if err != nil {
		return err
	}
	defer r.Close()
	if !t.Finalized() {
		log.Warn().Str("trace", path).Msg("trace was never finalized; its session may have crashed")
	}
	parser := bintrace.NewParser(t)
	for {
		e, err := parser.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		printEvent(w, &e, chk)
	}
	if n := t.Truncated(); n != 0 {
		log.Warn().Str("trace", path).Int64("bytes", n).Msg("trace ends in a partial record")
	}
	return nil
}

func printEvent(w io.Writer, e *bintrace.Event, chk *bintrace.Checker) {
	fmt.Fprintf(w, "[frame %d +%d] %s\n", e.Frame, e.FrameDelta, e)
	if err := chk.Validate(*e); err != nil {
		fmt.Fprintf(w, "error: %v\n", err)
	}
	chk.Feed(*e)
}

// followTrace prints the events of a trace that a session may still be
// appending to. It returns once the session closes the trace, the file
// goes away or ctx is done.
func followTrace(ctx context.Context, path string, w io.Writer, chk *bintrace.Checker) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watching trace: %v", err)
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("watching trace: %v", err)
	}

	parser := bintrace.NewLiveParser(f)
	closing := false
	for {
		e, err := parser.Next()
		if err == nil {
			printEvent(w, &e, chk)
			continue
		}
		if err != io.EOF {
			return err
		}
		if _, ok := parser.Summary(); ok || closing {
			return nil
		}
		// A closed v1 session flushes its records before finalizing the
		// header, so drain once more after seeing the flag.
		if parser.Header().Version == bintrace.Version1 {
			done, err := headerFinalized(f)
			if err != nil {
				return err
			}
			if done {
				closing = true
				continue
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				log.Info().Str("trace", path).Msg("trace file went away")
				return nil
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watching trace: %v", err)
		}
	}
}

func headerFinalized(f io.ReaderAt) (bool, error) {
	var buf [bintrace.HeaderSize]byte
	if _, err := f.ReadAt(buf[:], 0); err != nil {
		return false, fmt.Errorf("rereading header: %v", err)
	}
	h, err := bintrace.ParseHeader(buf[:])
	if err != nil {
		return false, err
	}
	return h.Finalized(), nil
}
