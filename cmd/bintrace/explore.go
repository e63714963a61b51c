// Copyright 2022 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/dustin/go-humanize"
	"github.com/gensrr/memtrace/bintrace"
	"github.com/spf13/cobra"
)

func newExploreCmd() *cobra.Command {
	cfg := bintrace.DefaultConfig()
	cmd := &cobra.Command{
		Use:   "explore <trace>",
		Short: "Step through a trace interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, t, err := openTrace(args[0])
			if err != nil {
				return err
			}
			defer r.Close()
			return explore(newExplorer(t, cfg))
		},
	}
	addLayoutFlags(cmd.Flags(), &cfg)
	return cmd
}

func explore(x *explorer) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "(bintrace) ",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("next"),
			readline.PcItem("frame"),
			readline.PcItem("find"),
			readline.PcItem("mem"),
			readline.PcItem("info"),
			readline.PcItem("reset"),
			readline.PcItem("help"),
			readline.PcItem("quit"),
		),
	})
	if err != nil {
		return err
	}
	defer rl.Close()
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				return nil
			}
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		quit, err := x.exec(line, rl.Stdout())
		if err != nil {
			fmt.Fprintf(rl.Stderr(), "error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

const exploreHelp = `commands:
	next [n]          print the next n events (default 1)
	frame N           skip to the first event at or after frame N
	find ADDR         skip to the next main memory access touching ADDR
	mem ADDR [LEN]    dump reconstructed main memory (LEN default 16)
	info              summarize the trace
	reset             go back to the start of the trace
	quit              leave
`

// maxDump is the largest memory dump mem prints.
const maxDump = 4096

// explorer steps through a trace, keeping a Checker fed with every event
// it passes so that memory can be inspected at any point.
type explorer struct {
	t      *bintrace.Trace
	cfg    bintrace.Config
	parser *bintrace.Parser
	chk    *bintrace.Checker
	frame  uint32
	end    bool
}

func newExplorer(t *bintrace.Trace, cfg bintrace.Config) *explorer {
	x := &explorer{t: t, cfg: cfg}
	x.reset()
	return x
}

func (x *explorer) reset() {
	x.parser = bintrace.NewParser(x.t)
	x.chk = bintrace.NewChecker(x.cfg)
	x.frame = 0
	x.end = false
}

// step returns the next event after validating and feeding it.
func (x *explorer) step(w io.Writer) (bintrace.Event, bool, error) {
	if x.end {
		return bintrace.Event{}, false, nil
	}
	e, err := x.parser.Next()
	if err == io.EOF {
		x.end = true
		return bintrace.Event{}, false, nil
	}
	if err != nil {
		return bintrace.Event{}, false, err
	}
	if err := x.chk.Validate(e); err != nil {
		fmt.Fprintf(w, "warning: %v\n", err)
	}
	x.chk.Feed(e)
	x.frame = e.Frame
	return e, true, nil
}

// exec runs one command line. It reports whether the session should end.
func (x *explorer) exec(line string, w io.Writer) (bool, error) {
	args := strings.Fields(line)
	if len(args) == 0 {
		return false, nil
	}
	switch cmd, args := args[0], args[1:]; cmd {
	case "quit", "q", "exit":
		return true, nil
	case "help", "h", "?":
		fmt.Fprint(w, exploreHelp)
	case "next", "n":
		n := uint64(1)
		if len(args) > 0 {
			var err error
			if n, err = strconv.ParseUint(args[0], 10, 32); err != nil {
				return false, fmt.Errorf("bad count %q", args[0])
			}
		}
		for i := uint64(0); i < n; i++ {
			e, ok, err := x.step(w)
			if err != nil {
				return false, err
			}
			if !ok {
				fmt.Fprintln(w, "end of trace")
				break
			}
			fmt.Fprintf(w, "[frame %d +%d] %s\n", e.Frame, e.FrameDelta, &e)
		}
	case "frame", "f":
		if len(args) != 1 {
			return false, errors.New("usage: frame N")
		}
		target, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return false, fmt.Errorf("bad frame %q", args[0])
		}
		if uint32(target) < x.frame {
			return false, fmt.Errorf("frame %d is behind the current frame %d; reset first", target, x.frame)
		}
		return false, x.skip(w, func(e *bintrace.Event) bool { return e.Frame >= uint32(target) })
	case "find":
		if len(args) != 1 {
			return false, errors.New("usage: find ADDR")
		}
		addr, err := parseAddr(args[0])
		if err != nil {
			return false, err
		}
		return false, x.skip(w, func(e *bintrace.Event) bool { return touches(e, addr) })
	case "mem", "m":
		if len(args) < 1 || len(args) > 2 {
			return false, errors.New("usage: mem ADDR [LEN]")
		}
		addr, err := parseAddr(args[0])
		if err != nil {
			return false, err
		}
		n := uint64(16)
		if len(args) == 2 {
			if n, err = strconv.ParseUint(args[1], 0, 32); err != nil || n == 0 || n > maxDump {
				return false, fmt.Errorf("bad length %q, must be 1-%d", args[1], maxDump)
			}
		}
		dumpMemory(w, x.chk.Memory(), addr, uint32(n))
	case "info", "i":
		x.info(w)
	case "reset":
		x.reset()
		fmt.Fprintln(w, "back at the start of the trace")
	default:
		return false, fmt.Errorf("unknown command %q; try help", cmd)
	}
	return false, nil
}

// skip steps until match accepts an event, and prints that event.
func (x *explorer) skip(w io.Writer, match func(e *bintrace.Event) bool) error {
	for {
		e, ok, err := x.step(w)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(w, "end of trace")
			return nil
		}
		if match(&e) {
			fmt.Fprintf(w, "[frame %d +%d] %s\n", e.Frame, e.FrameDelta, &e)
			return nil
		}
	}
}

func (x *explorer) info(w io.Writer) {
	t := x.t
	h := t.Summary()
	fmt.Fprintf(w, "version %d, finalized %v, %s\n", t.Header().Version, t.Finalized(), humanize.Bytes(uint64(t.Size())))
	fmt.Fprintf(w, "summary: %d events in frames %d-%d\n", h.EventCount, h.StartFrame, h.EndFrame)
	fmt.Fprintf(w, "records: %d events in frames %d-%d\n", t.Events(), t.StartFrame(), t.EndFrame())
	if t.MaxAddr() != 0 {
		fmt.Fprintf(w, "main memory touched: [%06x, %06x)\n", t.MinAddr(), t.MaxAddr())
	}
	for _, k := range []bintrace.Kind{
		bintrace.KindFrame, bintrace.KindExec,
		bintrace.KindRead, bintrace.KindWrite, bintrace.KindReadBlock, bintrace.KindWriteBlock,
		bintrace.KindVRAMWrite, bintrace.KindVRAMRead, bintrace.KindCRAMWrite, bintrace.KindCRAMRead,
		bintrace.KindVSRAMWrite, bintrace.KindVSRAMRead,
		bintrace.KindDMA, bintrace.KindPointerLoad,
	} {
		if n := t.Count(k); n != 0 {
			fmt.Fprintf(w, "\t%-12s %s\n", k, humanize.Comma(int64(n)))
		}
	}
	if x.end {
		fmt.Fprintln(w, "at end of trace")
	} else {
		fmt.Fprintf(w, "at frame %d\n", x.frame)
	}
}

// touches reports whether e is a main memory access covering addr.
func touches(e *bintrace.Event, addr uint32) bool {
	var n uint32
	switch {
	case e.Kind == bintrace.KindRead || e.Kind == bintrace.KindWrite:
		n = uint32(e.Size)
	case e.Kind.IsBlock():
		n = uint32(len(e.Data))
	default:
		return false
	}
	return addr >= e.Addr && addr-e.Addr < n
}

func parseAddr(s string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 32)
	if err != nil {
		return 0, fmt.Errorf("bad address %q", s)
	}
	return uint32(v), nil
}

// dumpMemory prints memory in rows of 16 bytes. Bytes never written
// print as "..".
func dumpMemory(w io.Writer, m *bintrace.Memory, addr, n uint32) {
	for row := uint32(0); row < n; row += 16 {
		fmt.Fprintf(w, "%06x:", addr+row)
		for i := row; i < row+16 && i < n; i++ {
			if b, ok := m.Byte(addr + i); ok {
				fmt.Fprintf(w, " %02x", b)
			} else {
				fmt.Fprint(w, " ..")
			}
		}
		fmt.Fprintln(w)
	}
}
