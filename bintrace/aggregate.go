// Copyright 2022 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bintrace

// aggBuffer accumulates a run of same-kind, address-contiguous memory
// accesses so that they can be written as one block record.
type aggBuffer struct {
	active bool
	kind   Kind // KindRead or KindWrite.
	pc     uint32
	start  uint32
	next   uint32 // Address the next access must have to extend the run.

	// first access of the run, written as a single record if the run
	// never grows.
	firstSize  AccessSize
	firstValue uint32

	data []byte // len(data) is the run length, cap(data) the capacity.
}

func newAggBuffer(capacity int) aggBuffer {
	return aggBuffer{data: make([]byte, 0, capacity)}
}

// capacity returns the maximum run length in bytes.
func (b *aggBuffer) capacity() int {
	return cap(b.data)
}

// full reports whether no further byte fits in the buffer.
func (b *aggBuffer) full() bool {
	return len(b.data) == cap(b.data)
}

// fits reports whether an access can extend the active run.
func (b *aggBuffer) fits(kind Kind, addr uint32, size AccessSize) bool {
	return b.active &&
		b.kind == kind &&
		addr == b.next &&
		len(b.data)+int(size) <= cap(b.data)
}

// open starts a new run with a single access. The buffer must be idle.
func (b *aggBuffer) open(kind Kind, pc, addr, value uint32, size AccessSize) {
	b.active = true
	b.kind = kind
	b.pc = pc
	b.start = addr
	b.next = addr
	b.firstSize = size
	b.firstValue = value
	b.data = b.data[:0]
	b.extend(addr, value, size)
}

// extend appends the bytes of an access in 68000 bus order. The caller
// must have checked fits.
func (b *aggBuffer) extend(addr, value uint32, size AccessSize) {
	for i := int(size) - 1; i >= 0; i-- {
		b.data = append(b.data, byte(value>>(8*uint(i))))
	}
	b.next = (addr + uint32(size)) & busAddrMask
}

// event returns the record for the active run: a single access record if
// the run is exactly its first access, a block record otherwise. The
// payload aliases the buffer and is only valid until the next open.
func (b *aggBuffer) event() Event {
	if len(b.data) == int(b.firstSize) {
		return Event{
			Kind:  b.kind,
			PC:    b.pc,
			Addr:  b.start,
			Size:  b.firstSize,
			Value: b.firstValue,
		}
	}
	return Event{
		Kind: b.kind.blockKind(),
		PC:   b.pc,
		Addr: b.start,
		Data: b.data,
	}
}

// reset returns the buffer to idle.
func (b *aggBuffer) reset() {
	b.active = false
	b.data = b.data[:0]
}
