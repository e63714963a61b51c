// Copyright 2022 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bintrace

import "errors"

var (
	// ErrSessionOpen is returned when opening a session that is already open.
	ErrSessionOpen = errors.New("trace session already open")

	// ErrInvalidConfig is returned when a Config fails validation.
	ErrInvalidConfig = errors.New("invalid trace configuration")

	// ErrInvalidAccess is returned by the session entry points when the
	// caller breaks the input contract (bad access size, unknown kind).
	// Nothing is written to the trace.
	ErrInvalidAccess = errors.New("invalid access")

	// ErrInvalidEvent is returned by the codec for an event whose fields
	// don't fit the record layout.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrWriteFailed wraps the I/O error that closed a session.
	ErrWriteFailed = errors.New("trace write failed")

	// ErrShortRecord is returned when a buffer ends in the middle of a record.
	ErrShortRecord = errors.New("short record")

	// ErrBadMagic is returned for data that doesn't start with a trace header.
	ErrBadMagic = errors.New("bad trace magic")

	// ErrUnsupportedVersion is returned for a header with an unknown version.
	ErrUnsupportedVersion = errors.New("unsupported trace version")
)
