// Copyright 2022 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bintrace

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"pgregory.net/rapid"
)

func TestEventLayout(t *testing.T) {
	tests := []struct {
		name string
		e    Event
		want []byte
	}{
		{
			name: "frame",
			e:    Event{Kind: KindFrame, FrameDelta: 3, Frame: 0x01020304},
			want: []byte{0x00, 0x00, 0x03, 0x00, 0x04, 0x03, 0x02, 0x01},
		},
		{
			name: "exec",
			e:    Event{Kind: KindExec, FrameDelta: 2, PC: 0x123456},
			want: []byte{0x01, 0x00, 0x02, 0x00, 0x56, 0x34, 0x12, 0x00},
		},
		{
			name: "write",
			e:    Event{Kind: KindWrite, Flags: FlagRAM, FrameDelta: 1, PC: 0x1234, Addr: 0xff0010, Size: Size16, Value: 0xbeef},
			want: []byte{
				0x03, 0x02, 0x01, 0x00,
				0x34, 0x12, 0x00, 0x00,
				0x10, 0x00, 0xff, 0x02,
				0xef, 0xbe, 0x00, 0x00,
			},
		},
		{
			name: "write block",
			e:    Event{Kind: KindWriteBlock, PC: 0x200, Addr: 0xff0000, Data: []byte{1, 2, 3}},
			want: []byte{
				0x05, 0x00, 0x00, 0x00,
				0x00, 0x02, 0x00, 0x00,
				0x00, 0x00, 0xff, 0x00,
				0x03, 0x00, 0x00, 0x00,
				0x01, 0x02, 0x03,
			},
		},
		{
			name: "vram write",
			e:    Event{Kind: KindVRAMWrite, PC: 0x300, Addr: 0xc000, Size: Size16, Value: 0x1234},
			want: []byte{
				0x10, 0x00, 0x00, 0x00,
				0x00, 0x03, 0x00, 0x00,
				0x00, 0xc0, 0x02, 0x00,
				0x34, 0x12, 0x00, 0x00,
			},
		},
		{
			name: "dma",
			e:    Event{Kind: KindDMA, Flags: FlagROM, PC: 0x400, Addr: 0x1000, DMADst: 0x2000, DMALen: 0x80, DMASpace: DMACRAM},
			want: []byte{
				0x20, 0x01, 0x00, 0x00,
				0x00, 0x04, 0x00, 0x00,
				0x00, 0x10, 0x00, 0x00,
				0x00, 0x20, 0x80, 0x00,
				0x01, 0x00, 0x00, 0x00,
			},
		},
		{
			name: "pointer load",
			e:    Event{Kind: KindPointerLoad, Flags: FlagROM | FlagPointer, PC: 0x500, Addr: 0x2000, Target: 0xff1000},
			want: []byte{
				0x30, 0x05, 0x00, 0x00,
				0x00, 0x05, 0x00, 0x00,
				0x00, 0x20, 0x00, 0x00,
				0x00, 0x10, 0xff, 0x00,
			},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := AppendEvent(nil, &test.e)
			if err != nil {
				t.Fatalf("AppendEvent: %v", err)
			}
			if !bytes.Equal(got, test.want) {
				t.Errorf("AppendEvent:\ngot  % x\nwant % x", got, test.want)
			}
			if n := test.e.EncodedSize(); n != len(test.want) {
				t.Errorf("EncodedSize = %d, want %d", n, len(test.want))
			}
			e, n, err := DecodeEvent(got)
			if err != nil {
				t.Fatalf("DecodeEvent: %v", err)
			}
			if n != len(got) {
				t.Errorf("DecodeEvent consumed %d bytes, want %d", n, len(got))
			}
			if !reflect.DeepEqual(e, test.e) {
				t.Errorf("DecodeEvent:\ngot  %+v\nwant %+v", e, test.e)
			}
		})
	}
}

func drawEvent(t *rapid.T) Event {
	kinds := []Kind{
		KindFrame, KindExec, KindRead, KindWrite, KindReadBlock, KindWriteBlock,
		KindVRAMWrite, KindVRAMRead, KindCRAMWrite, KindCRAMRead, KindVSRAMWrite, KindVSRAMRead,
		KindDMA, KindPointerLoad,
	}
	e := Event{
		Kind:       rapid.SampledFrom(kinds).Draw(t, "kind"),
		Flags:      Flags(rapid.Uint8().Draw(t, "flags")),
		FrameDelta: rapid.Uint16().Draw(t, "delta"),
	}
	sizes := []AccessSize{Size8, Size16, Size32}
	switch {
	case e.Kind == KindFrame:
		e.Frame = rapid.Uint32().Draw(t, "frame")
	case e.Kind == KindExec:
		e.PC = rapid.Uint32().Draw(t, "pc")
	case e.Kind == KindRead || e.Kind == KindWrite:
		e.PC = rapid.Uint32().Draw(t, "pc")
		e.Addr = rapid.Uint32Range(0, busAddrMask).Draw(t, "addr")
		e.Size = rapid.SampledFrom(sizes).Draw(t, "size")
		e.Value = rapid.Uint32().Draw(t, "value")
	case e.Kind.IsBlock():
		e.PC = rapid.Uint32().Draw(t, "pc")
		e.Addr = rapid.Uint32Range(0, busAddrMask).Draw(t, "addr")
		e.Data = rapid.SliceOfN(rapid.Byte(), 1, 512).Draw(t, "data")
	case e.Kind.IsVDP():
		e.PC = rapid.Uint32().Draw(t, "pc")
		e.Addr = rapid.Uint32Range(0, vdpAddrMask).Draw(t, "addr")
		e.Size = rapid.SampledFrom(sizes[:2]).Draw(t, "size")
		e.Value = rapid.Uint32().Draw(t, "value")
	case e.Kind == KindDMA:
		e.PC = rapid.Uint32().Draw(t, "pc")
		e.Addr = rapid.Uint32().Draw(t, "src")
		e.DMADst = rapid.Uint16().Draw(t, "dst")
		e.DMALen = rapid.Uint16().Draw(t, "len")
		e.DMASpace = rapid.SampledFrom([]DMADest{DMAVRAM, DMACRAM, DMAVSRAM}).Draw(t, "space")
	case e.Kind == KindPointerLoad:
		e.PC = rapid.Uint32().Draw(t, "pc")
		e.Addr = rapid.Uint32().Draw(t, "table")
		e.Target = rapid.Uint32().Draw(t, "target")
	}
	return e
}

func TestEventRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		e := drawEvent(t)
		buf, err := AppendEvent(nil, &e)
		if err != nil {
			t.Fatalf("AppendEvent(%+v): %v", e, err)
		}
		if len(buf) != e.EncodedSize() {
			t.Fatalf("encoded %d bytes, EncodedSize says %d", len(buf), e.EncodedSize())
		}
		got, n, err := DecodeEvent(buf)
		if err != nil {
			t.Fatalf("DecodeEvent: %v", err)
		}
		if n != len(buf) {
			t.Fatalf("DecodeEvent consumed %d of %d bytes", n, len(buf))
		}
		if !reflect.DeepEqual(got, e) {
			t.Fatalf("round trip:\ngot  %+v\nwant %+v", got, e)
		}
	})
}

func TestAppendEventInvalid(t *testing.T) {
	tests := []struct {
		name string
		e    Event
	}{
		{"odd size", Event{Kind: KindWrite, Addr: 0x100, Size: 3}},
		{"wide address", Event{Kind: KindRead, Addr: 0x1000000, Size: Size8}},
		{"empty block", Event{Kind: KindWriteBlock, Addr: 0x100}},
		{"huge block", Event{Kind: KindReadBlock, Data: make([]byte, MaxBlockLen+1)}},
		{"wide vdp address", Event{Kind: KindCRAMWrite, Addr: 0x10000, Size: Size16}},
		{"vdp size", Event{Kind: KindVSRAMRead, Size: 0}},
		{"vdp long", Event{Kind: KindVRAMWrite, Size: Size32}},
		{"dma space", Event{Kind: KindDMA, DMASpace: 3}},
		{"unknown kind", Event{Kind: 0x40}},
		{"summary", Event{Kind: KindSummary}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			dst := []byte{0xaa}
			got, err := AppendEvent(dst, &test.e)
			if !errors.Is(err, ErrInvalidEvent) {
				t.Errorf("AppendEvent error = %v, want ErrInvalidEvent", err)
			}
			if !bytes.Equal(got, dst) {
				t.Errorf("AppendEvent changed dst to % x", got)
			}
		})
	}
}

func TestDecodeEventShort(t *testing.T) {
	for _, e := range []Event{
		{Kind: KindFrame, Frame: 7},
		{Kind: KindDMA, Addr: 0x1000, DMALen: 2},
		{Kind: KindWriteBlock, Addr: 0xff0000, Data: []byte{1, 2, 3, 4, 5}},
	} {
		buf, err := AppendEvent(nil, &e)
		if err != nil {
			t.Fatal(err)
		}
		for i := 0; i < len(buf); i++ {
			if _, _, err := DecodeEvent(buf[:i]); err != ErrShortRecord {
				t.Errorf("DecodeEvent of %d of %d bytes of %s: err = %v, want ErrShortRecord", i, len(buf), e.Kind, err)
			}
		}
	}
}

func TestDecodeEventMalformed(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
	}{
		{"unknown kind", []byte{0x40, 0, 0, 0, 0, 0, 0, 0}},
		{"empty block", []byte{0x04, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}},
		{"bad size", []byte{0x02, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x03, 0, 0, 0, 0}},
		{"vdp long", []byte{0x10, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x04, 0, 0, 0, 0, 0}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, _, err := DecodeEvent(test.buf); err == nil || err == ErrShortRecord {
				t.Errorf("DecodeEvent error = %v, want a malformed record error", err)
			}
		})
	}
}

func TestSummaryRecord(t *testing.T) {
	buf := appendSummary(nil, 10, 20, 30)
	if len(buf) != RecordSize(KindSummary, 0) {
		t.Fatalf("summary is %d bytes, want %d", len(buf), RecordSize(KindSummary, 0))
	}
	n, err := peekRecordSize(buf)
	if err != nil || n != len(buf) {
		t.Fatalf("peekRecordSize = %d, %v", n, err)
	}
	start, end, count := decodeSummary(buf)
	if start != 10 || end != 20 || count != 30 {
		t.Errorf("decodeSummary = %d, %d, %d, want 10, 20, 30", start, end, count)
	}
}
