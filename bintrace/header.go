// Copyright 2022 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bintrace

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the size of the file header in bytes.
const HeaderSize = 32

// Magic is the tag every trace starts with.
const Magic = "BTRC"

const (
	// Version1 traces have their header rewritten in place at close.
	Version1 uint16 = 1

	// Version2 traces were written to a sink that can't seek. The header
	// is never finalized, and a summary record ends the stream instead.
	Version2 uint16 = 2
)

// HeaderFinalized is set in Header.Flags once the session closed cleanly
// and the counts in the header are final.
const HeaderFinalized uint16 = 1 << 0

// Header is the 32-byte summary at the start of every trace.
//
// On disk: magic [4]byte, version u16, flags u16, start_frame u32,
// end_frame u32, event_count u32, reserved [12]byte.
type Header struct {
	Version    uint16
	Flags      uint16
	StartFrame uint32
	EndFrame   uint32
	EventCount uint32
}

// Finalized reports whether the header was written by a clean close.
func (h Header) Finalized() bool {
	return h.Flags&HeaderFinalized != 0
}

// MarshalBinary encodes the header into its 32-byte form.
func (h Header) MarshalBinary() ([]byte, error) {
	return h.appendTo(make([]byte, 0, HeaderSize)), nil
}

func (h Header) appendTo(dst []byte) []byte {
	le := binary.LittleEndian
	dst = append(dst, Magic...)
	dst = le.AppendUint16(dst, h.Version)
	dst = le.AppendUint16(dst, h.Flags)
	dst = le.AppendUint32(dst, h.StartFrame)
	dst = le.AppendUint32(dst, h.EndFrame)
	dst = le.AppendUint32(dst, h.EventCount)
	var reserved [12]byte
	return append(dst, reserved[:]...)
}

// ParseHeader decodes the header at the start of buf.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("header: %w", ErrShortRecord)
	}
	if string(buf[:4]) != Magic {
		return Header{}, ErrBadMagic
	}
	le := binary.LittleEndian
	h := Header{
		Version:    le.Uint16(buf[4:6]),
		Flags:      le.Uint16(buf[6:8]),
		StartFrame: le.Uint32(buf[8:12]),
		EndFrame:   le.Uint32(buf[12:16]),
		EventCount: le.Uint32(buf[16:20]),
	}
	if h.Version != Version1 && h.Version != Version2 {
		return Header{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	return h, nil
}
