// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package base holds the small set of types and contracts shared by every
// log-space-map package: extents, the external object-store contract, and
// the typed error taxonomy.
package base

import (
	"github.com/cockroachdb/errors"
)

// Error kinds returned across package boundaries. Callers should compare
// with errors.Is; the concrete values carry additional context via Wrapf.
var (
	// ErrCorruption marks a malformed record, a checksum mismatch, or an
	// impossible counter state. In debug builds these are usually fatal;
	// here they are always returned rather than panicking, leaving that
	// choice to the caller (Pool.Load treats them as fatal).
	ErrCorruption = errors.New("logsm: corruption")
	// ErrNotFound marks a missing object referenced by a live watermark.
	ErrNotFound = errors.New("logsm: not found")
	// ErrBusy marks an attempt to destroy an LSM with a nonzero mscount.
	ErrBusy = errors.New("logsm: busy")
	// ErrShutdown marks a clean cancellation of an in-flight prefetch
	// because the pool is unloading.
	ErrShutdown = errors.New("logsm: shutdown")
	// ErrNoSpace marks a transaction group assignment failure
	// propagated from the surrounding object store.
	ErrNoSpace = errors.New("logsm: no space")
)

// CorruptionErrorf wraps ErrCorruption with a formatted message, mirroring
// base.CorruptionErrorf in the teacher's own internal/base package.
func CorruptionErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrCorruption)
}

// NotFoundErrorf wraps ErrNotFound with a formatted message.
func NotFoundErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrNotFound)
}

// BusyErrorf wraps ErrBusy with a formatted message.
func BusyErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrBusy)
}

// NoSpaceErrorf wraps ErrNoSpace with a formatted message.
func NoSpaceErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrNoSpace)
}

// Assert panics with the formatted message if cond is false. Used in place
// of the original's ASSERT3U/VERIFY3U for invariants that indicate a bug
// rather than a recoverable runtime error.
func Assert(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(errors.Newf(format, args...))
	}
}
