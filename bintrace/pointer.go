// Copyright 2022 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bintrace

import (
	"encoding/binary"
	"fmt"
)

// AddressRange is an inclusive range of addresses [Start, End].
type AddressRange struct {
	Start, End uint32
}

// Contains reports whether addr lies inside r.
func (r AddressRange) Contains(addr uint32) bool {
	return addr >= r.Start && addr <= r.End
}

func (r AddressRange) String() string {
	return fmt.Sprintf("%06x-%06x", r.Start, r.End)
}

// Default 68000 memory map of the Mega Drive.
var (
	DefaultROM = AddressRange{0x000000, 0x3fffff}

	// DefaultROMPointers is the part of ROM pointers are looked for in.
	// It leaves out the 68000 vector table and the cartridge header, so
	// that zeroed memory doesn't look like a table of pointers.
	DefaultROMPointers = AddressRange{0x000200, 0x3fffff}
	DefaultRAM = AddressRange{0xff0000, 0xffffff}

	// DefaultRAMShort is work RAM as seen through a sign-extended
	// absolute short address.
	DefaultRAMShort = AddressRange{0xffff0000, 0xffffffff}
)

// MemoryMap names the regions used to set FlagROM and FlagRAM.
type MemoryMap struct {
	ROM AddressRange
	RAM AddressRange
}

// Classify returns the region flags for addr.
func (m MemoryMap) Classify(addr uint32) Flags {
	var f Flags
	if m.ROM.Contains(addr) {
		f |= FlagROM
	}
	if m.RAM.Contains(addr) {
		f |= FlagRAM
	}
	return f
}

// PointerConfig configures the pointer heuristic.
type PointerConfig struct {
	// Ranges lists the address ranges a pointer may point into.
	Ranges []AddressRange

	// Align is the alignment a pointer must have. 0 and 1 disable
	// the alignment rule.
	Align uint32
}

// DefaultPointerConfig accepts word-aligned values in work RAM, or in ROM
// past the cartridge header.
func DefaultPointerConfig() PointerConfig {
	return PointerConfig{
		Ranges: []AddressRange{DefaultROMPointers, DefaultRAM, DefaultRAMShort},
		Align:  2,
	}
}

// PointerHeuristic classifies 32-bit values as plausible pointers.
//
// The zero value accepts nothing.
type PointerHeuristic struct {
	ranges []AddressRange
	align  uint32
}

// NewPointerHeuristic creates a heuristic from cfg. The ranges are copied.
func NewPointerHeuristic(cfg PointerConfig) *PointerHeuristic {
	return &PointerHeuristic{
		ranges: append([]AddressRange(nil), cfg.Ranges...),
		align:  cfg.Align,
	}
}

// IsPointer reports whether v falls in a configured range and satisfies
// the alignment rule. It depends only on v and the configuration.
func (h *PointerHeuristic) IsPointer(v uint32) bool {
	if h.align > 1 && v%h.align != 0 {
		return false
	}
	for _, r := range h.ranges {
		if r.Contains(v) {
			return true
		}
	}
	return false
}

// isPointerTable reports whether data is a whole number of big-endian
// longwords which all look like pointers.
func (h *PointerHeuristic) isPointerTable(data []byte) bool {
	if len(data) < 4 || len(data)%4 != 0 {
		return false
	}
	for i := 0; i < len(data); i += 4 {
		if !h.IsPointer(binary.BigEndian.Uint32(data[i : i+4])) {
			return false
		}
	}
	return true
}
