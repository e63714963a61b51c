// Copyright 2022 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build unix

package bintrace

import (
	"os"

	"golang.org/x/sys/unix"
)

func syncFile(f *os.File) error {
	return unix.Fsync(int(f.Fd()))
}

// appendOnly reports whether f was opened with O_APPEND.
func appendOnly(f *os.File) bool {
	flags, err := unix.FcntlInt(f.Fd(), unix.F_GETFL, 0)
	return err == nil && flags&unix.O_APPEND != 0
}
