// Copyright 2022 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bintrace

import (
	"encoding/binary"
	"fmt"
)

// Record layout constants. All records are little-endian and packed,
// and every record starts with a 4-byte event header:
//
//	type u8 | flags u8 | frame_delta u16
const (
	eventHeaderSize   = 4
	frameRecordSize   = eventHeaderSize + 4
	execRecordSize    = eventHeaderSize + 4
	memRecordSize     = eventHeaderSize + 12
	blockPrefixSize   = eventHeaderSize + 12
	vdpRecordSize     = eventHeaderSize + 12
	dmaRecordSize     = eventHeaderSize + 16
	pointerRecordSize = eventHeaderSize + 12
	summaryRecordSize = eventHeaderSize + 12

	// maxRecordPrefix is the largest fixed part of any record.
	maxRecordPrefix = dmaRecordSize

	// MaxBlockLen is the largest payload a block record can carry.
	MaxBlockLen = 1<<16 - 1

	// MaxFrameDelta is the largest frame delta an event header can carry.
	MaxFrameDelta = 1<<16 - 1

	busAddrBits = 24
	busAddrMask = 1<<busAddrBits - 1
	vdpAddrMask = 1<<16 - 1
)

// prefixSize returns the size of the fixed part of a record of kind k,
// or 0 if k is unknown.
func prefixSize(k Kind) int {
	switch {
	case k == KindFrame:
		return frameRecordSize
	case k == KindExec:
		return execRecordSize
	case k == KindRead || k == KindWrite:
		return memRecordSize
	case k.IsBlock():
		return blockPrefixSize
	case k.IsVDP():
		return vdpRecordSize
	case k == KindDMA:
		return dmaRecordSize
	case k == KindPointerLoad:
		return pointerRecordSize
	case k == KindSummary:
		return summaryRecordSize
	}
	return 0
}

// RecordSize returns the encoded size of a record of kind k carrying
// dataLen payload bytes, or 0 if k is unknown.
func RecordSize(k Kind, dataLen int) int {
	n := prefixSize(k)
	if n != 0 && k.IsBlock() {
		n += dataLen
	}
	return n
}

// EncodedSize returns the number of bytes AppendEvent writes for e.
func (e *Event) EncodedSize() int {
	return RecordSize(e.Kind, len(e.Data))
}

// validate checks that every field of e fits its declared bit width.
func (e *Event) validate() error {
	switch {
	case e.Kind == KindFrame, e.Kind == KindExec, e.Kind == KindPointerLoad:
	case e.Kind == KindRead || e.Kind == KindWrite:
		if !e.Size.Valid() {
			return fmt.Errorf("%w: %s size %d", ErrInvalidEvent, e.Kind, e.Size)
		}
		if e.Addr > busAddrMask {
			return fmt.Errorf("%w: %s address 0x%x exceeds 24 bits", ErrInvalidEvent, e.Kind, e.Addr)
		}
	case e.Kind.IsBlock():
		if len(e.Data) == 0 || len(e.Data) > MaxBlockLen {
			return fmt.Errorf("%w: %s payload of %d bytes", ErrInvalidEvent, e.Kind, len(e.Data))
		}
	case e.Kind.IsVDP():
		if !e.Size.vdpValid() {
			return fmt.Errorf("%w: %s size %d", ErrInvalidEvent, e.Kind, e.Size)
		}
		if e.Addr > vdpAddrMask {
			return fmt.Errorf("%w: %s address 0x%x exceeds 16 bits", ErrInvalidEvent, e.Kind, e.Addr)
		}
	case e.Kind == KindDMA:
		if !e.DMASpace.Valid() {
			return fmt.Errorf("%w: DMA destination %d", ErrInvalidEvent, e.DMASpace)
		}
	default:
		return fmt.Errorf("%w: unknown kind %s", ErrInvalidEvent, e.Kind)
	}
	return nil
}

// AppendEvent appends the encoded record for e to dst.
//
// If e doesn't fit the record layout of its kind, AppendEvent returns
// dst unchanged and an error wrapping ErrInvalidEvent.
func AppendEvent(dst []byte, e *Event) ([]byte, error) {
	if err := e.validate(); err != nil {
		return dst, err
	}
	le := binary.LittleEndian
	dst = append(dst, uint8(e.Kind), uint8(e.Flags))
	dst = le.AppendUint16(dst, e.FrameDelta)
	switch {
	case e.Kind == KindFrame:
		dst = le.AppendUint32(dst, e.Frame)
	case e.Kind == KindExec:
		dst = le.AppendUint32(dst, e.PC)
	case e.Kind == KindRead || e.Kind == KindWrite:
		dst = le.AppendUint32(dst, e.PC)
		dst = le.AppendUint32(dst, e.Addr|uint32(e.Size)<<busAddrBits)
		dst = le.AppendUint32(dst, e.Value)
	case e.Kind.IsBlock():
		dst = le.AppendUint32(dst, e.PC)
		dst = le.AppendUint32(dst, e.Addr)
		dst = le.AppendUint16(dst, uint16(len(e.Data)))
		dst = le.AppendUint16(dst, 0)
		dst = append(dst, e.Data...)
	case e.Kind.IsVDP():
		dst = le.AppendUint32(dst, e.PC)
		dst = le.AppendUint16(dst, uint16(e.Addr))
		dst = append(dst, uint8(e.Size), 0)
		dst = le.AppendUint32(dst, e.Value)
	case e.Kind == KindDMA:
		dst = le.AppendUint32(dst, e.PC)
		dst = le.AppendUint32(dst, e.Addr)
		dst = le.AppendUint16(dst, e.DMADst)
		dst = le.AppendUint16(dst, e.DMALen)
		dst = append(dst, uint8(e.DMASpace), 0, 0, 0)
	case e.Kind == KindPointerLoad:
		dst = le.AppendUint32(dst, e.PC)
		dst = le.AppendUint32(dst, e.Addr)
		dst = le.AppendUint32(dst, e.Target)
	}
	return dst, nil
}

// appendSummary appends a summary record, which replaces the header
// back-patch on sinks that can't seek.
func appendSummary(dst []byte, startFrame, endFrame, count uint32) []byte {
	le := binary.LittleEndian
	dst = append(dst, uint8(KindSummary), 0, 0, 0)
	dst = le.AppendUint32(dst, startFrame)
	dst = le.AppendUint32(dst, endFrame)
	dst = le.AppendUint32(dst, count)
	return dst
}

// peekRecordSize returns the full size of the record at the start of buf.
//
// Returns ErrShortRecord if buf doesn't hold enough of the record to tell.
func peekRecordSize(buf []byte) (int, error) {
	if len(buf) < eventHeaderSize {
		return 0, ErrShortRecord
	}
	k := Kind(buf[0])
	n := prefixSize(k)
	if n == 0 {
		return 0, fmt.Errorf("unknown event type 0x%02x", buf[0])
	}
	if !k.IsBlock() {
		return n, nil
	}
	if len(buf) < blockPrefixSize {
		return 0, ErrShortRecord
	}
	dataLen := int(binary.LittleEndian.Uint16(buf[12:14]))
	if dataLen == 0 {
		return 0, fmt.Errorf("empty %s payload", k)
	}
	return n + dataLen, nil
}

// DecodeEvent parses the record at the start of buf.
//
// It returns the event and the number of bytes it occupied. Block
// payloads are copied out of buf. DecodeEvent returns ErrShortRecord if
// buf ends inside the record.
func DecodeEvent(buf []byte) (Event, int, error) {
	n, err := peekRecordSize(buf)
	if err != nil {
		return Event{}, 0, err
	}
	if len(buf) < n {
		return Event{}, 0, ErrShortRecord
	}
	le := binary.LittleEndian
	e := Event{
		Kind:       Kind(buf[0]),
		Flags:      Flags(buf[1]),
		FrameDelta: le.Uint16(buf[2:4]),
	}
	body := buf[eventHeaderSize:n]
	switch {
	case e.Kind == KindFrame:
		e.Frame = le.Uint32(body[0:4])
	case e.Kind == KindExec:
		e.PC = le.Uint32(body[0:4])
	case e.Kind == KindRead || e.Kind == KindWrite:
		e.PC = le.Uint32(body[0:4])
		packed := le.Uint32(body[4:8])
		e.Addr = packed & busAddrMask
		e.Size = AccessSize(packed >> busAddrBits)
		e.Value = le.Uint32(body[8:12])
		if !e.Size.Valid() {
			return Event{}, 0, fmt.Errorf("%s record with size %d", e.Kind, e.Size)
		}
	case e.Kind.IsBlock():
		e.PC = le.Uint32(body[0:4])
		e.Addr = le.Uint32(body[4:8])
		e.Data = append([]byte(nil), body[12:]...)
	case e.Kind.IsVDP():
		e.PC = le.Uint32(body[0:4])
		e.Addr = uint32(le.Uint16(body[4:6]))
		e.Size = AccessSize(body[6])
		e.Value = le.Uint32(body[8:12])
		if !e.Size.vdpValid() {
			return Event{}, 0, fmt.Errorf("%s record with size %d", e.Kind, e.Size)
		}
	case e.Kind == KindDMA:
		e.PC = le.Uint32(body[0:4])
		e.Addr = le.Uint32(body[4:8])
		e.DMADst = le.Uint16(body[8:10])
		e.DMALen = le.Uint16(body[10:12])
		e.DMASpace = DMADest(body[12])
	case e.Kind == KindPointerLoad:
		e.PC = le.Uint32(body[0:4])
		e.Addr = le.Uint32(body[4:8])
		e.Target = le.Uint32(body[8:12])
	case e.Kind == KindSummary:
		// Summary fields are read with decodeSummary.
	}
	return e, n, nil
}

// decodeSummary returns the fields of a summary record.
func decodeSummary(buf []byte) (startFrame, endFrame, count uint32) {
	le := binary.LittleEndian
	body := buf[eventHeaderSize:summaryRecordSize]
	return le.Uint32(body[0:4]), le.Uint32(body[4:8]), le.Uint32(body[8:12])
}
