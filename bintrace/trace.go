// Copyright 2022 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bintrace

import (
	"fmt"
	"io"
)

// Trace is an indexed, complete trace file.
type Trace struct {
	r      io.ReaderAt
	size   int64
	header Header

	// end is the offset just past the last complete record, not
	// counting a summary record.
	end int64

	// truncated is the number of trailing bytes that don't form a
	// complete record.
	truncated int64

	summary    Header
	hasSummary bool

	events     uint32
	kinds      [256]uint32
	startFrame uint32
	endFrame   uint32
	seenAddr   bool
	minAddr    uint32
	maxAddr    uint32
	payload    uint64
}

// NewTrace creates a new Trace from an encoded trace of size bytes.
//
// The trace is scanned once through, so that traces whose session never
// closed, and whose header therefore holds no counts, can still be read.
func NewTrace(r io.ReaderAt, size int64) (*Trace, error) {
	var buf [HeaderSize]byte
	if size < HeaderSize {
		return nil, fmt.Errorf("malformed trace: %d bytes is smaller than the header", size)
	}
	if _, err := r.ReadAt(buf[:], 0); err != nil && err != io.EOF {
		return nil, fmt.Errorf("reading header: %v", err)
	}
	h, err := ParseHeader(buf[:])
	if err != nil {
		return nil, err
	}
	t := &Trace{r: r, size: size, header: h, end: HeaderSize}

	p := &Parser{s: newStream(r, HeaderSize, size), header: h, haveHeader: true}
	first := true
	for {
		e, err := p.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if p.hasSummary {
			return nil, fmt.Errorf("malformed trace: records after summary at offset 0x%x", t.end)
		}
		t.end = p.Offset()
		t.events++
		t.kinds[e.Kind]++
		if first {
			t.startFrame = e.Frame
			first = false
		}
		t.endFrame = e.Frame
		t.noteAddr(&e)
		t.payload += uint64(len(e.Data))
	}
	t.summary, t.hasSummary = p.Summary()
	t.truncated = int64(p.s.pending())
	return t, nil
}

func (t *Trace) noteAddr(e *Event) {
	var lo, hi uint32
	switch {
	case e.Kind == KindRead || e.Kind == KindWrite:
		lo, hi = e.Addr, e.Addr+uint32(e.Size)
	case e.Kind.IsBlock():
		lo, hi = e.Addr, e.Addr+uint32(len(e.Data))
	default:
		return
	}
	if !t.seenAddr || lo < t.minAddr {
		t.minAddr = lo
	}
	if !t.seenAddr || hi > t.maxAddr {
		t.maxAddr = hi
	}
	t.seenAddr = true
}

// Header returns the header as stored in the file.
func (t *Trace) Header() Header {
	return t.header
}

// Finalized reports whether the session that wrote the trace closed
// cleanly: the header was finalized, or a summary record ends the trace.
func (t *Trace) Finalized() bool {
	if t.hasSummary {
		return true
	}
	return t.header.Version == Version1 && t.header.Finalized()
}

// Summary returns the session summary recorded in the trace, from the
// header or the summary record. Only meaningful if Finalized.
func (t *Trace) Summary() Header {
	if t.hasSummary {
		return t.summary
	}
	return t.header
}

// Scanned returns a header reconstructed from the records themselves.
func (t *Trace) Scanned() Header {
	return Header{
		Version:    Version1,
		Flags:      HeaderFinalized,
		StartFrame: t.startFrame,
		EndFrame:   t.endFrame,
		EventCount: t.events,
	}
}

// Consistent reports whether the trace is finalized and its summary
// agrees with the records.
func (t *Trace) Consistent() bool {
	if !t.Finalized() || t.truncated != 0 {
		return false
	}
	s, c := t.Summary(), t.Scanned()
	return s.EventCount == c.EventCount && s.StartFrame == c.StartFrame && s.EndFrame == c.EndFrame
}

// Events returns the number of complete records in the trace.
func (t *Trace) Events() uint32 {
	return t.events
}

// Count returns the number of records of kind k.
func (t *Trace) Count(k Kind) uint32 {
	return t.kinds[k]
}

// StartFrame returns the frame of the first record.
func (t *Trace) StartFrame() uint32 {
	return t.startFrame
}

// EndFrame returns the frame of the last record.
func (t *Trace) EndFrame() uint32 {
	return t.endFrame
}

// MinAddr returns the lowest main memory address accessed in the trace.
func (t *Trace) MinAddr() uint32 {
	return t.minAddr
}

// MaxAddr returns the address just past the highest main memory
// address accessed in the trace.
func (t *Trace) MaxAddr() uint32 {
	return t.maxAddr
}

// PayloadBytes returns the total size of all block payloads.
func (t *Trace) PayloadBytes() uint64 {
	return t.payload
}

// Size returns the size of the trace file in bytes.
func (t *Trace) Size() int64 {
	return t.size
}

// Truncated returns the number of trailing bytes that belong to a
// record the writer never completed.
func (t *Trace) Truncated() int64 {
	return t.truncated
}

// Recover finalizes the header of a trace whose session never closed,
// using counts reconstructed from its records. A trailing partial record
// is cut off if f can be truncated. Finalized traces are left untouched.
//
// Recover returns the header the trace ends up with.
func Recover(f interface {
	io.ReaderAt
	io.WriterAt
}, size int64) (Header, error) {
	t, err := NewTrace(f, size)
	if err != nil {
		return Header{}, err
	}
	if t.Finalized() {
		return t.Summary(), nil
	}
	h := t.Scanned()
	if _, err := f.WriteAt(h.appendTo(make([]byte, 0, HeaderSize)), 0); err != nil {
		return Header{}, fmt.Errorf("writing header: %v", err)
	}
	if tr, ok := f.(interface{ Truncate(int64) error }); ok && t.truncated != 0 {
		if err := tr.Truncate(t.end); err != nil {
			return Header{}, fmt.Errorf("truncating partial record: %v", err)
		}
	}
	return h, nil
}
