// Copyright 2022 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bintrace

import (
	"fmt"
	"io"
)

// readChunk is how much the reader asks for at a time. It's larger than
// the biggest possible record so that any record fits after one refill.
const readChunk = 128 << 10

// stream reads whole records out of an io.ReaderAt.
type stream struct {
	r     io.ReaderAt
	pos   int64 // File offset of buf[0].
	limit int64 // Offset to stop reading at, or -1 for none.
	store []byte
	buf   []byte // Unconsumed bytes.
}

func newStream(r io.ReaderAt, start, limit int64) stream {
	return stream{r: r, pos: start, limit: limit, store: make([]byte, readChunk)}
}

// fill reads more bytes after buf. Returns false if none were available.
func (s *stream) fill() (bool, error) {
	n := copy(s.store, s.buf)
	s.buf = s.store[:n]
	want := s.store[n:]
	off := s.pos + int64(n)
	if s.limit >= 0 {
		if off >= s.limit {
			return false, nil
		}
		if left := s.limit - off; int64(len(want)) > left {
			want = want[:left]
		}
	}
	m, err := s.r.ReadAt(want, off)
	s.buf = s.store[:n+m]
	if err != nil && err != io.EOF {
		return m > 0, err
	}
	return m > 0, nil
}

// next returns the raw bytes of the next record, valid until the next
// call. It returns io.EOF when no complete record is left; pending then
// reports how many bytes of a partial record were seen.
func (s *stream) next() ([]byte, error) {
	for {
		n, err := peekRecordSize(s.buf)
		if err == nil && len(s.buf) >= n {
			rec := s.buf[:n]
			s.buf = s.buf[n:]
			s.pos += int64(n)
			return rec, nil
		}
		if err != nil && err != ErrShortRecord {
			return nil, fmt.Errorf("offset 0x%x: %v", s.pos, err)
		}
		more, err := s.fill()
		if err != nil {
			return nil, err
		}
		if !more {
			return nil, io.EOF
		}
	}
}

// pending returns the number of read bytes not forming a complete record.
func (s *stream) pending() int {
	return len(s.buf)
}

// Parser decodes a trace record by record.
type Parser struct {
	s stream

	// header is read lazily for parsers following a live trace.
	header     Header
	haveHeader bool

	// frame is the absolute frame of the most recent marker.
	frame uint32

	summary    Header
	hasSummary bool
}

// NewParser creates a parser over the records indexed by t.
func NewParser(t *Trace) *Parser {
	return &Parser{
		s:          newStream(t.r, HeaderSize, t.end),
		header:     t.header,
		haveHeader: true,
	}
}

// NewLiveParser creates a parser for a trace that may still be written
// to. Next returns io.EOF whenever it catches up with the writer, and
// may be called again once more data is available.
func NewLiveParser(r io.ReaderAt) *Parser {
	return &Parser{s: newStream(r, 0, -1)}
}

// Header returns the trace header. It's the zero Header until a live
// parser has seen one.
func (p *Parser) Header() Header {
	return p.header
}

// Summary returns the trailing summary record, if the parser went past one.
func (p *Parser) Summary() (Header, bool) {
	return p.summary, p.hasSummary
}

// Offset returns the file offset of the next record.
func (p *Parser) Offset() int64 {
	return p.s.pos
}

func (p *Parser) readHeader() error {
	for len(p.s.buf) < HeaderSize {
		more, err := p.s.fill()
		if err != nil {
			return err
		}
		if !more {
			return io.EOF
		}
	}
	h, err := ParseHeader(p.s.buf)
	if err != nil {
		return err
	}
	p.header = h
	p.haveHeader = true
	p.s.buf = p.s.buf[HeaderSize:]
	p.s.pos += HeaderSize
	return nil
}

// Next returns the next event in the trace with its absolute Frame
// filled in.
//
// Returns io.EOF at the end of the trace.
func (p *Parser) Next() (Event, error) {
	if !p.haveHeader {
		if err := p.readHeader(); err != nil {
			return Event{}, err
		}
	}
	for {
		rec, err := p.s.next()
		if err != nil {
			return Event{}, err
		}
		if Kind(rec[0]) == KindSummary {
			start, end, count := decodeSummary(rec)
			p.summary = Header{Version: p.header.Version, StartFrame: start, EndFrame: end, EventCount: count}
			p.hasSummary = true
			continue
		}
		e, _, err := DecodeEvent(rec)
		if err != nil {
			return Event{}, fmt.Errorf("offset 0x%x: %v", p.s.pos-int64(len(rec)), err)
		}
		if e.Kind == KindFrame {
			p.frame = e.Frame
		} else {
			e.Frame = p.frame + uint32(e.FrameDelta)
		}
		return e, nil
	}
}
