// Copyright 2022 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bintrace

// frameClock tracks the current frame and the most recent frame marker,
// and decides when markers have to be written so that every frame delta
// fits in an event header.
type frameClock struct {
	current    uint32
	lastMarker uint32
	marked     bool // A marker has been written this session.
	interval   uint32

	// last is the frame of the most recent record written, marker or
	// not. A record at an earlier frame needs a rewind marker.
	last uint32
}

// delta returns the frame delta for a non-marker record written now.
func (c *frameClock) delta() uint16 {
	return uint16(c.current - c.lastMarker)
}

// advance moves the clock to frame. It doesn't write markers; see sync.
func (c *frameClock) advance(frame uint32) {
	c.current = frame
}

// wrote notes that a non-marker record reached the output at the
// current frame.
func (c *frameClock) wrote() {
	c.last = c.current
}

// sync calls mark for every marker needed before a record can be written
// at the current frame. mark receives the absolute frame of the marker and
// its distance from the previous marker.
//
// The first marker of a session, and any marker written because the frame
// moved back behind the last record, has a delta of 0. Gaps larger than
// MaxFrameDelta are bridged with intermediate markers.
func (c *frameClock) sync(mark func(frame uint32, delta uint16) error) error {
	if !c.marked || c.current < c.last {
		if err := mark(c.current, 0); err != nil {
			return err
		}
		c.marked = true
		c.lastMarker = c.current
		c.last = c.current
		return nil
	}
	gap := c.current - c.lastMarker
	for gap > MaxFrameDelta {
		next := c.lastMarker + MaxFrameDelta
		if err := mark(next, MaxFrameDelta); err != nil {
			return err
		}
		c.lastMarker = next
		c.last = next
		gap -= MaxFrameDelta
	}
	if gap != 0 && gap >= c.interval {
		if err := mark(c.current, uint16(gap)); err != nil {
			return err
		}
		c.lastMarker = c.current
		c.last = c.current
	}
	return nil
}

// reset returns the clock to its state at session start. The current
// frame is kept, so that a session opened mid-run marks the frame the
// emulator is on.
func (c *frameClock) reset(interval uint32) {
	*c = frameClock{current: c.current, interval: interval}
}
