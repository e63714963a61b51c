// Copyright 2022 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bintrace

import "fmt"

// DefaultBlockCapacity is the default size of the aggregation buffer.
const DefaultBlockCapacity = 256

// Config describes what a Session records.
type Config struct {
	// StartFrame and EndFrame bound the recording window, inclusive.
	// Zero leaves that side of the window open.
	StartFrame uint32
	EndFrame   uint32

	// Per-category switches. Memory accesses, frame markers and pointer
	// loads are always recorded.
	LogExec bool
	LogVDP  bool
	LogDMA  bool

	// BlockCapacity is the largest run, in bytes, that the aggregation
	// engine coalesces into one block record. 0 disables aggregation.
	BlockCapacity int

	// MarkerInterval is the number of frames between frame markers.
	// Must be between 1 and MaxFrameDelta.
	MarkerInterval uint32

	// FlushFrames is the maximum number of frames output stays buffered.
	FlushFrames uint32

	// BufferSize is the size of the output buffer in bytes.
	BufferSize int

	// Memory classifies access addresses into ROM and RAM.
	Memory MemoryMap

	// Pointers configures the pointer heuristic.
	Pointers PointerConfig
}

// DefaultConfig returns a configuration that records everything
// using the Mega Drive memory map.
func DefaultConfig() Config {
	return Config{
		LogExec:        false,
		LogVDP:         true,
		LogDMA:         true,
		BlockCapacity:  DefaultBlockCapacity,
		MarkerInterval: 1,
		FlushFrames:    60,
		BufferSize:     64 << 10,
		Memory:         MemoryMap{ROM: DefaultROM, RAM: DefaultRAM},
		Pointers:       DefaultPointerConfig(),
	}
}

// Validate reports the first problem found with c.
func (c *Config) Validate() error {
	if c.EndFrame != 0 && c.EndFrame < c.StartFrame {
		return fmt.Errorf("%w: end frame %d before start frame %d", ErrInvalidConfig, c.EndFrame, c.StartFrame)
	}
	if c.BlockCapacity < 0 || c.BlockCapacity > MaxBlockLen {
		return fmt.Errorf("%w: block capacity %d out of range [0, %d]", ErrInvalidConfig, c.BlockCapacity, MaxBlockLen)
	}
	if c.MarkerInterval == 0 || c.MarkerInterval > MaxFrameDelta {
		return fmt.Errorf("%w: marker interval %d out of range [1, %d]", ErrInvalidConfig, c.MarkerInterval, MaxFrameDelta)
	}
	if c.BufferSize < 0 {
		return fmt.Errorf("%w: negative buffer size", ErrInvalidConfig)
	}
	for _, r := range c.Pointers.Ranges {
		if r.End < r.Start {
			return fmt.Errorf("%w: empty pointer range %s", ErrInvalidConfig, r)
		}
	}
	return nil
}

// InWindow reports whether frame lies inside the recording window.
func (c *Config) InWindow(frame uint32) bool {
	if c.StartFrame != 0 && frame < c.StartFrame {
		return false
	}
	if c.EndFrame != 0 && frame > c.EndFrame {
		return false
	}
	return true
}
