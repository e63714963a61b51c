// Copyright 2022 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bintrace

import (
	"bufio"
	"io"
	"os"
)

// sink is the buffered output of a session.
type sink struct {
	w *bufio.Writer

	// seeker is non-nil if the header can be rewritten in place at
	// base, the offset the session started writing at.
	seeker io.WriteSeeker
	base   int64

	// file is set when the session created the output itself and
	// owns closing it.
	file *os.File
}

func newSink(w io.Writer, file *os.File, bufSize int) *sink {
	s := &sink{file: file}
	if bufSize > 0 {
		s.w = bufio.NewWriterSize(w, bufSize)
	} else {
		s.w = bufio.NewWriter(w)
	}
	if f, ok := w.(*os.File); ok && appendOnly(f) {
		// Writes to an O_APPEND file land at the end whatever the
		// offset, so the header can't be rewritten in place.
		return s
	}
	if ws, ok := w.(io.WriteSeeker); ok {
		if off, err := ws.Seek(0, io.SeekCurrent); err == nil {
			s.seeker = ws
			s.base = off
		}
	}
	return s
}

// version returns the header version this sink can produce.
func (s *sink) version() uint16 {
	if s.seeker != nil {
		return Version1
	}
	return Version2
}

// rewriteHeader overwrites the placeholder header and restores the
// write position to the end of the stream.
func (s *sink) rewriteHeader(h Header) error {
	if err := s.w.Flush(); err != nil {
		return err
	}
	end, err := s.seeker.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if _, err := s.seeker.Seek(s.base, io.SeekStart); err != nil {
		return err
	}
	if _, err := s.seeker.Write(h.appendTo(make([]byte, 0, HeaderSize))); err != nil {
		return err
	}
	_, err = s.seeker.Seek(end, io.SeekStart)
	return err
}

// close flushes buffered output and, if the sink owns a file, syncs it
// to stable storage and closes it.
func (s *sink) close() error {
	err := s.w.Flush()
	if s.file == nil {
		return err
	}
	if err == nil {
		err = syncFile(s.file)
	}
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// abandon releases the sink after a failure without flushing.
func (s *sink) abandon() {
	if s.file != nil {
		s.file.Close()
	}
}
