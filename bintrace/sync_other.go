// Copyright 2022 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !unix

package bintrace

import "os"

func syncFile(f *os.File) error {
	return f.Sync()
}

func appendOnly(f *os.File) bool {
	return false
}
