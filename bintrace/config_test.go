// Copyright 2022 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bintrace

import (
	"errors"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(c *Config)
		valid bool
	}{
		{"default", func(c *Config) {}, true},
		{"open end", func(c *Config) { c.StartFrame = 100 }, true},
		{"window", func(c *Config) { c.StartFrame, c.EndFrame = 100, 200 }, true},
		{"single frame", func(c *Config) { c.StartFrame, c.EndFrame = 100, 100 }, true},
		{"inverted window", func(c *Config) { c.StartFrame, c.EndFrame = 200, 100 }, false},
		{"no aggregation", func(c *Config) { c.BlockCapacity = 0 }, true},
		{"negative capacity", func(c *Config) { c.BlockCapacity = -1 }, false},
		{"huge capacity", func(c *Config) { c.BlockCapacity = MaxBlockLen + 1 }, false},
		{"zero interval", func(c *Config) { c.MarkerInterval = 0 }, false},
		{"huge interval", func(c *Config) { c.MarkerInterval = MaxFrameDelta + 1 }, false},
		{"negative buffer", func(c *Config) { c.BufferSize = -1 }, false},
		{"empty range", func(c *Config) { c.Pointers.Ranges = []AddressRange{{0x200, 0x100}} }, false},
	}
	for _, test := range tests {
		cfg := DefaultConfig()
		test.edit(&cfg)
		err := cfg.Validate()
		if test.valid && err != nil {
			t.Errorf("%s: Validate = %v", test.name, err)
		}
		if !test.valid && !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("%s: Validate = %v, want ErrInvalidConfig", test.name, err)
		}
	}
}

func TestConfigInWindow(t *testing.T) {
	cfg := Config{StartFrame: 100, EndFrame: 200}
	for frame, want := range map[uint32]bool{0: false, 99: false, 100: true, 150: true, 200: true, 201: false} {
		if got := cfg.InWindow(frame); got != want {
			t.Errorf("InWindow(%d) = %v, want %v", frame, got, want)
		}
	}
	open := Config{}
	if !open.InWindow(0) || !open.InWindow(^uint32(0)) {
		t.Error("zero bounds don't leave the window open")
	}
}
