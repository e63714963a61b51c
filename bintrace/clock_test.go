// Copyright 2022 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bintrace

import (
	"reflect"
	"testing"
)

type mark struct {
	frame uint32
	delta uint16
}

func syncMarks(t *testing.T, c *frameClock) []mark {
	t.Helper()
	var marks []mark
	err := c.sync(func(frame uint32, delta uint16) error {
		marks = append(marks, mark{frame, delta})
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return marks
}

func TestFrameClock(t *testing.T) {
	tests := []struct {
		name   string
		frames []uint32
		want   []mark
	}{
		{"first", []uint32{7}, []mark{{7, 0}}},
		{"same frame", []uint32{7, 7}, []mark{{7, 0}}},
		{"max gap", []uint32{0, MaxFrameDelta}, []mark{{0, 0}, {MaxFrameDelta, MaxFrameDelta}}},
		{"gap over max", []uint32{0, MaxFrameDelta + 1}, []mark{{0, 0}, {MaxFrameDelta, MaxFrameDelta}, {MaxFrameDelta + 1, 1}}},
		{"two bridges", []uint32{1, 1 + 2*MaxFrameDelta}, []mark{{1, 0}, {1 + MaxFrameDelta, MaxFrameDelta}, {1 + 2*MaxFrameDelta, MaxFrameDelta}}},
		{"rewind", []uint32{10, 3}, []mark{{10, 0}, {3, 0}}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var c frameClock
			c.reset(1)
			var got []mark
			for _, f := range test.frames {
				c.advance(f)
				got = append(got, syncMarks(t, &c)...)
			}
			if !reflect.DeepEqual(got, test.want) {
				t.Errorf("marks = %v, want %v", got, test.want)
			}
			if d := c.delta(); d != 0 {
				t.Errorf("delta after sync = %d, want 0", d)
			}
		})
	}
}

func TestFrameClockInterval(t *testing.T) {
	var c frameClock
	c.reset(4)
	var got []mark
	for f := uint32(0); f <= 9; f++ {
		c.advance(f)
		got = append(got, syncMarks(t, &c)...)
	}
	want := []mark{{0, 0}, {4, 4}, {8, 4}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("marks = %v, want %v", got, want)
	}
	if d := c.delta(); d != 1 {
		t.Errorf("delta at frame 9 = %d, want 1", d)
	}
}

func TestFrameClockRewindInsideInterval(t *testing.T) {
	var c frameClock
	c.reset(10)
	c.advance(10)
	syncMarks(t, &c)
	c.advance(15)
	if marks := syncMarks(t, &c); len(marks) != 0 {
		t.Fatalf("marks at 15 = %v, want none", marks)
	}
	c.wrote()

	c.advance(14)
	c.advance(12)
	if got, want := syncMarks(t, &c), []mark{{12, 0}}; !reflect.DeepEqual(got, want) {
		t.Errorf("marks after rewinding behind a record = %v, want %v", got, want)
	}
	c.wrote()
	// Frame 16 gets no records, so moving back from it needs no marker.
	c.advance(16)
	syncMarks(t, &c)
	c.advance(13)
	if marks := syncMarks(t, &c); len(marks) != 0 {
		t.Errorf("marks after going back past no record = %v, want none", marks)
	}
	if d := c.delta(); d != 1 {
		t.Errorf("delta = %d, want 1", d)
	}
}

func TestFrameClockResetKeepsFrame(t *testing.T) {
	var c frameClock
	c.reset(1)
	c.advance(500)
	c.reset(1)
	if got, want := syncMarks(t, &c), []mark{{500, 0}}; !reflect.DeepEqual(got, want) {
		t.Errorf("marks = %v, want %v", got, want)
	}
}
