// Copyright 2022 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bintrace

import (
	"encoding/binary"
	"fmt"
)

// Checker replays a trace and reconstructs the contents of main memory
// from the writes it records.
type Checker struct {
	ptr      *PointerHeuristic
	capacity int

	frame  uint32 // Frame of the most recent marker.
	last   uint32 // Frame of the most recent event.
	marked bool
	mem    Memory
}

// NewChecker creates a Checker that expects traces written with cfg.
// Pointer flags are only checked if cfg has pointer ranges.
func NewChecker(cfg Config) *Checker {
	c := &Checker{capacity: cfg.BlockCapacity}
	if len(cfg.Pointers.Ranges) != 0 {
		c.ptr = NewPointerHeuristic(cfg.Pointers)
	}
	if c.capacity <= 0 {
		c.capacity = MaxBlockLen
	}
	return c
}

// Validate returns an error if there's something inconsistent about
// the provided event in the context of the events fed so far. Useful for
// detecting errors in the trace and in the trace writer. Should be called
// on an event that's about to be fed into the checker.
func (c *Checker) Validate(e Event) error {
	if e.Kind != KindFrame && !c.marked {
		return fmt.Errorf("%s record before the first frame marker", e.Kind)
	}
	rewind := e.Kind == KindFrame && e.FrameDelta == 0
	if c.marked && !rewind && e.Frame < c.last {
		return fmt.Errorf("%s went back from frame %d to %d without a marker", e.Kind, c.last, e.Frame)
	}
	switch {
	case e.Kind == KindFrame:
		if c.marked && e.FrameDelta != 0 && e.Frame != c.frame+uint32(e.FrameDelta) {
			return fmt.Errorf("frame marker %d has delta %d from marker %d", e.Frame, e.FrameDelta, c.frame)
		}
		if c.marked && rewind && e.Frame >= c.last {
			return fmt.Errorf("frame marker %d has a zero delta but doesn't go back from frame %d", e.Frame, c.last)
		}
	case e.Kind == KindRead || e.Kind == KindWrite:
		if !e.Size.Valid() {
			return fmt.Errorf("%s with size %d", e.Kind, e.Size)
		}
		if c.ptr != nil && e.Size == Size32 && c.ptr.IsPointer(e.Value) != (e.Flags&FlagPointer != 0) {
			return fmt.Errorf("%s of 0x%x at 0x%06x has pointer flag %v", e.Kind, e.Value, e.Addr, e.Flags&FlagPointer != 0)
		}
	case e.Kind.IsBlock():
		if len(e.Data) > c.capacity {
			return fmt.Errorf("%s of %d bytes exceeds block capacity %d", e.Kind, len(e.Data), c.capacity)
		}
		if c.ptr != nil && c.ptr.isPointerTable(e.Data) != (e.Flags&FlagPointer != 0) {
			return fmt.Errorf("%s at 0x%06x has pointer flag %v", e.Kind, e.Addr, e.Flags&FlagPointer != 0)
		}
	case e.Kind.IsVDP():
		if !e.Size.vdpValid() {
			return fmt.Errorf("%s with size %d", e.Kind, e.Size)
		}
	case e.Kind == KindDMA:
		if !e.DMASpace.Valid() {
			return fmt.Errorf("DMA into unknown destination %d", e.DMASpace)
		}
	case e.Kind == KindPointerLoad:
		if e.Flags&FlagPointer == 0 {
			return fmt.Errorf("pointer load at 0x%06x without pointer flag", e.Addr)
		}
		if c.ptr != nil && !c.ptr.IsPointer(e.Target) {
			return fmt.Errorf("pointer load of 0x%x which doesn't look like a pointer", e.Target)
		}
	}
	return nil
}

// Feed feeds an event into the checker, moving the frame forward and
// applying writes to main memory.
func (c *Checker) Feed(e Event) {
	c.last = e.Frame
	switch {
	case e.Kind == KindFrame:
		c.frame = e.Frame
		c.marked = true
	case e.Kind == KindWrite:
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], e.Value)
		c.mem.Store(e.Addr, buf[4-int(e.Size):])
	case e.Kind == KindWriteBlock:
		c.mem.Store(e.Addr, e.Data)
	}
}

// Frame returns the frame of the most recent marker.
func (c *Checker) Frame() uint32 {
	return c.frame
}

// Memory returns the reconstructed main memory.
//
// The returned Memory must not be modified and must not be observed after
// the next Feed call. To do either, Clone it first.
func (c *Checker) Memory() *Memory {
	return &c.mem
}

const (
	memPageShift = 12
	memPageSize  = 1 << memPageShift
)

// Memory is a sparse image of the 24-bit main address space holding the
// last value written to each byte.
type Memory struct {
	pages map[uint32]*memPage
}

type memPage struct {
	data  [memPageSize]byte
	known [memPageSize / 8]uint8
}

// Store records data as written at addr. Addresses wrap at 24 bits.
func (m *Memory) Store(addr uint32, data []byte) {
	if m.pages == nil {
		m.pages = make(map[uint32]*memPage)
	}
	for i, b := range data {
		a := (addr + uint32(i)) & busAddrMask
		p := m.pages[a>>memPageShift]
		if p == nil {
			p = new(memPage)
			m.pages[a>>memPageShift] = p
		}
		off := a & (memPageSize - 1)
		p.data[off] = b
		p.known[off/8] |= 1 << (off % 8)
	}
}

// Byte returns the last value written at addr, and whether it was ever
// written.
func (m *Memory) Byte(addr uint32) (byte, bool) {
	addr &= busAddrMask
	p := m.pages[addr>>memPageShift]
	if p == nil {
		return 0, false
	}
	off := addr & (memPageSize - 1)
	if p.known[off/8]&(1<<(off%8)) == 0 {
		return 0, false
	}
	return p.data[off], true
}

// Written returns the number of bytes in [addr, addr+size) that were
// written at least once.
func (m *Memory) Written(addr, size uint32) uint32 {
	var n uint32
	for i := uint32(0); i < size; i++ {
		if _, ok := m.Byte(addr + i); ok {
			n++
		}
	}
	return n
}

// Clone makes a copy of the Memory.
func (m *Memory) Clone() *Memory {
	m2 := &Memory{pages: make(map[uint32]*memPage, len(m.pages))}
	for k, p := range m.pages {
		p2 := *p
		m2.pages[k] = &p2
	}
	return m2
}
