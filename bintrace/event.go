// Copyright 2022 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bintrace

import "fmt"

// Kind is the record type tag, the first byte of every record.
type Kind uint8

const (
	KindFrame       Kind = 0x00 // Frame marker.
	KindExec        Kind = 0x01 // Instruction execution.
	KindRead        Kind = 0x02 // Single memory read.
	KindWrite       Kind = 0x03 // Single memory write.
	KindReadBlock   Kind = 0x04 // Aggregated memory read.
	KindWriteBlock  Kind = 0x05 // Aggregated memory write.
	KindVRAMWrite   Kind = 0x10
	KindVRAMRead    Kind = 0x11
	KindCRAMWrite   Kind = 0x12
	KindCRAMRead    Kind = 0x13
	KindVSRAMWrite  Kind = 0x14
	KindVSRAMRead   Kind = 0x15
	KindDMA         Kind = 0x20 // DMA transfer into VDP space.
	KindPointerLoad Kind = 0x30 // Potential pointer table load.

	// KindSummary closes a trace written to a sink that can't seek.
	// It's never returned by the Parser.
	KindSummary Kind = 0x7f
)

// String returns a string representation of the record type.
func (k Kind) String() string {
	switch k {
	case KindFrame:
		return "Frame"
	case KindExec:
		return "Exec"
	case KindRead:
		return "Read"
	case KindWrite:
		return "Write"
	case KindReadBlock:
		return "ReadBlock"
	case KindWriteBlock:
		return "WriteBlock"
	case KindVRAMWrite:
		return "VRAMWrite"
	case KindVRAMRead:
		return "VRAMRead"
	case KindCRAMWrite:
		return "CRAMWrite"
	case KindCRAMRead:
		return "CRAMRead"
	case KindVSRAMWrite:
		return "VSRAMWrite"
	case KindVSRAMRead:
		return "VSRAMRead"
	case KindDMA:
		return "DMA"
	case KindPointerLoad:
		return "PointerLoad"
	case KindSummary:
		return "Summary"
	}
	return fmt.Sprintf("Kind(0x%02x)", uint8(k))
}

// IsVDP reports whether k is one of the VRAM, CRAM or VSRAM access kinds.
func (k Kind) IsVDP() bool {
	return k >= KindVRAMWrite && k <= KindVSRAMRead
}

// IsBlock reports whether k carries an inline payload.
func (k Kind) IsBlock() bool {
	return k == KindReadBlock || k == KindWriteBlock
}

// IsWrite reports whether k stores into memory.
func (k Kind) IsWrite() bool {
	switch k {
	case KindWrite, KindWriteBlock, KindVRAMWrite, KindCRAMWrite, KindVSRAMWrite:
		return true
	}
	return false
}

// blockKind returns the aggregated kind for a single memory access kind.
func (k Kind) blockKind() Kind {
	if k == KindWrite {
		return KindWriteBlock
	}
	return KindReadBlock
}

// Flags are per-record annotation bits.
type Flags uint8

const (
	FlagROM     Flags = 1 << 0 // Access was from the ROM region.
	FlagRAM     Flags = 1 << 1 // Access was from the RAM region.
	FlagPointer Flags = 1 << 2 // Value looks like a valid pointer.
)

func (f Flags) String() string {
	s := ""
	if f&FlagROM != 0 {
		s += "R"
	} else {
		s += "-"
	}
	if f&FlagRAM != 0 {
		s += "M"
	} else {
		s += "-"
	}
	if f&FlagPointer != 0 {
		s += "P"
	} else {
		s += "-"
	}
	return s
}

// DMADest is the VDP memory a DMA transfer targets.
type DMADest uint8

const (
	DMAVRAM DMADest = iota
	DMACRAM
	DMAVSRAM
)

// Valid reports whether d names a known VDP memory.
func (d DMADest) Valid() bool {
	return d <= DMAVSRAM
}

func (d DMADest) String() string {
	switch d {
	case DMAVRAM:
		return "VRAM"
	case DMACRAM:
		return "CRAM"
	case DMAVSRAM:
		return "VSRAM"
	}
	return fmt.Sprintf("DMADest(%d)", uint8(d))
}

// AccessSize is the width of a bus access in bytes.
type AccessSize uint8

const (
	Size8  AccessSize = 1
	Size16 AccessSize = 2
	Size32 AccessSize = 4
)

// Valid reports whether s is 1, 2 or 4.
func (s AccessSize) Valid() bool {
	return s == Size8 || s == Size16 || s == Size32
}

// vdpValid reports whether s is a width the VDP ports take. The VDP
// bus is 16 bits wide, so 32-bit CPU accesses arrive as two words.
func (s AccessSize) vdpValid() bool {
	return s == Size8 || s == Size16
}

// Event represents a single logical trace record.
type Event struct {
	// Kind indicates what kind of record this is.
	Kind Kind

	// Flags carries the annotation bits of the record.
	Flags Flags

	// FrameDelta is the number of frames elapsed since the most
	// recent frame marker. For a frame marker it is the distance
	// to the previous marker.
	FrameDelta uint16

	// Frame is the absolute frame number.
	//
	// Encoded only for KindFrame. The Parser fills it in for every
	// event from the most recent marker plus FrameDelta.
	Frame uint32

	// PC is the program counter of the instruction responsible for
	// the record. Valid for every kind except KindFrame.
	PC uint32

	// Addr is the accessed address: a 24-bit bus address for KindRead
	// and KindWrite, the start of the run for blocks, a 16-bit address
	// for VDP kinds, the source address for KindDMA and the table entry
	// address for KindPointerLoad.
	Addr uint32

	// Size is the access width. Valid for KindRead, KindWrite and the
	// VDP kinds.
	Size AccessSize

	// Value is the value read or written. Valid for KindRead,
	// KindWrite and the VDP kinds.
	Value uint32

	// DMADst, DMALen and DMASpace describe the destination of a
	// KindDMA transfer.
	DMADst   uint16
	DMALen   uint16
	DMASpace DMADest

	// Target is the candidate pointer value of a KindPointerLoad.
	Target uint32

	// Data is the inline payload of a block record.
	Data []byte
}

func (e *Event) String() string {
	switch {
	case e.Kind == KindFrame:
		return fmt.Sprintf("%s(%d)", e.Kind, e.Frame)
	case e.Kind == KindExec:
		return fmt.Sprintf("%s pc=%06x", e.Kind, e.PC)
	case e.Kind == KindRead || e.Kind == KindWrite:
		return fmt.Sprintf("%s pc=%06x [%06x].%d=%x %s", e.Kind, e.PC, e.Addr, e.Size, e.Value, e.Flags)
	case e.Kind.IsBlock():
		return fmt.Sprintf("%s pc=%06x [%06x..%06x) %s % x", e.Kind, e.PC, e.Addr, e.Addr+uint32(len(e.Data)), e.Flags, e.Data)
	case e.Kind.IsVDP():
		return fmt.Sprintf("%s pc=%06x [%04x].%d=%x", e.Kind, e.PC, e.Addr, e.Size, e.Value)
	case e.Kind == KindDMA:
		return fmt.Sprintf("%s pc=%06x %06x -> %s:%04x len=%d", e.Kind, e.PC, e.Addr, e.DMASpace, e.DMADst, e.DMALen)
	case e.Kind == KindPointerLoad:
		return fmt.Sprintf("%s pc=%06x [%06x] -> %06x", e.Kind, e.PC, e.Addr, e.Target)
	}
	return e.Kind.String()
}
