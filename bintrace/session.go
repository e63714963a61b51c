// Copyright 2022 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bintrace

import (
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Session records one trace. It's driven by the emulation thread and
// does no locking: callers with several producers must serialize calls.
//
// A Session may be opened, closed and opened again. Calls made while it
// is closed, or while the current frame is outside the configured
// window, are dropped without error.
type Session struct {
	cfg Config
	log zerolog.Logger
	ptr *PointerHeuristic

	id      string
	path    string
	active  bool
	out     *sink
	scratch []byte

	clock frameClock
	agg   aggBuffer

	count      uint32
	wrote      bool
	firstFrame uint32
	lastFrame  uint32
	lastFlush  uint32
}

// Option configures a Session.
type Option func(s *Session)

// WithLogger sets the logger the session reports lifecycle events to.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) {
		s.log = l
	}
}

// New creates a closed session that records according to cfg.
func New(cfg Config, opts ...Option) *Session {
	s := &Session{
		cfg: cfg,
		log: zerolog.Nop(),
		ptr: NewPointerHeuristic(cfg.Pointers),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init creates the file at path and starts recording into it.
func (s *Session) Init(path string) error {
	if s.active {
		return ErrSessionOpen
	}
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating trace: %w", err)
	}
	s.path = path
	if err := s.start(f, f); err != nil {
		f.Close()
		return err
	}
	return nil
}

// Start starts recording into w. If w is an io.WriteSeeker the header is
// rewritten in place by Close; otherwise, or if w is a file opened with
// O_APPEND, Close appends a summary record.
// The session never closes w.
func (s *Session) Start(w io.Writer) error {
	if s.active {
		return ErrSessionOpen
	}
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	s.path = ""
	return s.start(w, nil)
}

func (s *Session) start(w io.Writer, f *os.File) error {
	s.out = newSink(w, f, s.cfg.BufferSize)
	s.id = uuid.NewString()
	s.clock.reset(s.cfg.MarkerInterval)
	s.agg = newAggBuffer(s.cfg.BlockCapacity)
	s.count = 0
	s.wrote = false
	s.firstFrame, s.lastFrame, s.lastFlush = 0, 0, 0

	h := Header{Version: s.out.version()}
	if _, err := s.out.w.Write(h.appendTo(s.scratch[:0])); err != nil {
		return fmt.Errorf("writing trace header: %w", err)
	}
	s.active = true
	s.log.Info().
		Str("session", s.id).
		Str("path", s.path).
		Uint16("version", h.Version).
		Uint32("start_frame", s.cfg.StartFrame).
		Uint32("end_frame", s.cfg.EndFrame).
		Msg("trace session opened")
	return nil
}

// Close flushes pending aggregation, finalizes the header and releases
// the output. Calling Close on a closed session does nothing.
func (s *Session) Close() error {
	if !s.active {
		return nil
	}
	if err := s.flushRun(); err != nil {
		return err
	}
	h := Header{
		Version:    s.out.version(),
		StartFrame: s.firstFrame,
		EndFrame:   s.lastFrame,
		EventCount: s.count,
	}
	var err error
	if s.out.seeker != nil {
		h.Flags |= HeaderFinalized
		err = s.out.rewriteHeader(h)
	} else {
		_, err = s.out.w.Write(appendSummary(s.scratch[:0], h.StartFrame, h.EndFrame, h.EventCount))
	}
	if err != nil {
		return s.fail(err)
	}
	if err := s.out.close(); err != nil {
		s.active = false
		s.out = nil
		s.log.Error().Err(err).Str("session", s.id).Msg("closing trace")
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	s.active = false
	s.out = nil
	s.log.Info().
		Str("session", s.id).
		Uint32("events", h.EventCount).
		Uint32("first_frame", h.StartFrame).
		Uint32("last_frame", h.EndFrame).
		Msg("trace session closed")
	return nil
}

// fail closes the session after an I/O error. The trace is left
// unfinalized rather than silently partial.
func (s *Session) fail(err error) error {
	s.log.Error().Err(err).Str("session", s.id).Uint32("events", s.count).Msg("trace write failed, session closed")
	s.out.abandon()
	s.out = nil
	s.active = false
	return fmt.Errorf("%w: %w", ErrWriteFailed, err)
}

// Active reports whether the session is open.
func (s *Session) Active() bool {
	return s.active
}

// ID returns the identifier of the current or last session.
func (s *Session) ID() string {
	return s.id
}

// EventCount returns the number of records written so far.
func (s *Session) EventCount() uint32 {
	return s.count
}

// Frame returns the current frame.
func (s *Session) Frame() uint32 {
	return s.clock.current
}

// IsPointer reports whether v looks like a pointer under the session's
// pointer configuration.
func (s *Session) IsPointer(v uint32) bool {
	return s.ptr.IsPointer(v)
}

// recording reports whether an event at the current frame is kept.
func (s *Session) recording() bool {
	return s.active && s.cfg.InWindow(s.clock.current)
}

// FrameMarker moves the session to frame. A frame marker record is
// written when the frame changes, subject to the marker interval.
// Pending aggregation is flushed first since runs don't span frames.
//
// The frame is tracked while the session is closed too, so a session
// opened later starts at the right frame.
func (s *Session) FrameMarker(frame uint32) error {
	if !s.active {
		s.clock.advance(frame)
		return nil
	}
	if err := s.flushRun(); err != nil {
		return err
	}
	s.clock.advance(frame)
	if !s.cfg.InWindow(frame) {
		return s.flushOutput()
	}
	return s.clock.sync(s.writeMarker)
}

// MemAccess records a read or write of main memory. kind must be KindRead
// or KindWrite. The 68000 ignores address lines above A23, so addr is
// truncated to 24 bits; value is truncated to size.
func (s *Session) MemAccess(kind Kind, pc, addr, value uint32, size AccessSize) error {
	if !s.recording() {
		return nil
	}
	if kind != KindRead && kind != KindWrite {
		return fmt.Errorf("%w: %s is not a memory access", ErrInvalidAccess, kind)
	}
	if !size.Valid() {
		return fmt.Errorf("%w: access size %d", ErrInvalidAccess, size)
	}
	addr &= busAddrMask
	value &= size.mask()

	if int(size) > s.agg.capacity() {
		if err := s.flushRun(); err != nil {
			return err
		}
		e := Event{Kind: kind, PC: pc, Addr: addr, Size: size, Value: value}
		e.Flags = s.flags(&e)
		return s.record(&e)
	}
	if s.agg.active && !s.agg.fits(kind, addr, size) {
		if err := s.flushRun(); err != nil {
			return err
		}
	}
	if s.agg.active {
		s.agg.extend(addr, value, size)
	} else {
		s.agg.open(kind, pc, addr, value, size)
	}
	if s.agg.full() {
		return s.flushRun()
	}
	return nil
}

// Exec records the execution of the instruction at pc. Requires LogExec.
func (s *Session) Exec(pc uint32) error {
	if !s.recording() || !s.cfg.LogExec {
		return nil
	}
	if err := s.flushRun(); err != nil {
		return err
	}
	return s.record(&Event{Kind: KindExec, PC: pc})
}

// VDPAccess records an access to VRAM, CRAM or VSRAM. Requires LogVDP.
// Accesses are 8 or 16 bits wide.
func (s *Session) VDPAccess(kind Kind, pc uint32, addr uint16, value uint32, size AccessSize) error {
	if !s.recording() || !s.cfg.LogVDP {
		return nil
	}
	if !kind.IsVDP() {
		return fmt.Errorf("%w: %s is not a VDP access", ErrInvalidAccess, kind)
	}
	if !size.vdpValid() {
		return fmt.Errorf("%w: access size %d", ErrInvalidAccess, size)
	}
	if err := s.flushRun(); err != nil {
		return err
	}
	return s.record(&Event{Kind: kind, PC: pc, Addr: uint32(addr), Size: size, Value: value & size.mask()})
}

// DMA records a DMA transfer of length bytes from src into VDP memory.
// Requires LogDMA.
func (s *Session) DMA(pc, src uint32, dst, length uint16, space DMADest) error {
	if !s.recording() || !s.cfg.LogDMA {
		return nil
	}
	if !space.Valid() {
		return fmt.Errorf("%w: DMA destination %d", ErrInvalidAccess, space)
	}
	if err := s.flushRun(); err != nil {
		return err
	}
	return s.record(&Event{
		Kind:     KindDMA,
		Flags:    s.cfg.Memory.Classify(src),
		PC:       pc,
		Addr:     src,
		DMADst:   dst,
		DMALen:   length,
		DMASpace: space,
	})
}

// PointerLoad records a load of target from the pointer table entry at
// table, if target passes the pointer heuristic. Detecting table walks is
// up to the caller.
func (s *Session) PointerLoad(pc, table, target uint32) error {
	if !s.recording() || !s.ptr.IsPointer(target) {
		return nil
	}
	if err := s.flushRun(); err != nil {
		return err
	}
	return s.record(&Event{
		Kind:   KindPointerLoad,
		Flags:  s.cfg.Memory.Classify(table) | FlagPointer,
		PC:     pc,
		Addr:   table,
		Target: target,
	})
}

// Flush writes out any pending aggregation run and the output buffer.
func (s *Session) Flush() error {
	if !s.active {
		return nil
	}
	if err := s.flushRun(); err != nil {
		return err
	}
	return s.flushOutput()
}

// flushRun writes the pending aggregation run, if any.
func (s *Session) flushRun() error {
	if !s.agg.active {
		return nil
	}
	e := s.agg.event()
	e.Flags = s.flags(&e)
	err := s.record(&e)
	s.agg.reset()
	return err
}

// flags computes the annotation bits of a memory access record.
func (s *Session) flags(e *Event) Flags {
	f := s.cfg.Memory.Classify(e.Addr)
	switch {
	case e.Kind.IsBlock():
		if s.ptr.isPointerTable(e.Data) {
			f |= FlagPointer
		}
	case e.Size == Size32:
		if s.ptr.IsPointer(e.Value) {
			f |= FlagPointer
		}
	}
	return f
}

func (s *Session) flushOutput() error {
	if s.out.w.Buffered() == 0 {
		return nil
	}
	if err := s.out.w.Flush(); err != nil {
		return s.fail(err)
	}
	return nil
}

// record writes a non-marker record at the current frame, preceded by
// any frame markers it needs.
func (s *Session) record(e *Event) error {
	if err := s.clock.sync(s.writeMarker); err != nil {
		return err
	}
	e.FrameDelta = s.clock.delta()
	if err := s.write(e, s.clock.current); err != nil {
		return err
	}
	s.clock.wrote()
	return nil
}

func (s *Session) writeMarker(frame uint32, delta uint16) error {
	if err := s.write(&Event{Kind: KindFrame, FrameDelta: delta, Frame: frame}, frame); err != nil {
		return err
	}
	if frame-s.lastFlush >= s.cfg.FlushFrames {
		s.lastFlush = frame
		return s.flushOutput()
	}
	return nil
}

// write encodes e and appends it to the output.
func (s *Session) write(e *Event, frame uint32) error {
	var err error
	s.scratch, err = AppendEvent(s.scratch[:0], e)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidAccess, err)
	}
	if _, err := s.out.w.Write(s.scratch); err != nil {
		return s.fail(err)
	}
	if !s.wrote {
		s.wrote = true
		s.firstFrame = frame
	}
	s.lastFrame = frame
	s.count++
	return nil
}

// mask returns the bits of a value an access of size s carries.
func (s AccessSize) mask() uint32 {
	return uint32(uint64(1)<<(8*uint(s)) - 1)
}
