// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package spacemap

import (
	"log"

	"github.com/loglsm/spacemap/internal/scheduler"
)

// Logger is the minimal logging surface the pool needs, shaped like
// pebble.Options.Logger so callers can plug in whatever structured
// logger they already use elsewhere.
type Logger interface {
	Infof(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

type defaultLogger struct{}

func (defaultLogger) Infof(format string, args ...interface{})  { log.Printf("[logsm] "+format, args...) }
func (defaultLogger) Fatalf(format string, args ...interface{}) { log.Fatalf("[logsm] "+format, args...) }

// Config bundles every tunable the engine consumes. Defaults are taken
// verbatim from spa_log_spacemap.c's zfs_unflushed_*/zfs_max_*/zfs_min_*
// module parameters.
type Config struct {
	Tunables scheduler.Tunables

	// BlockSize is the per-LSM object block size in bytes
	// (zfs_log_sm_blksz).
	BlockSize int
	// MetaslabShift is log2 of the per-metaslab address-space size,
	// used to derive (vdev, metaslab) from a global (vdev, offset)
	// pair on the allocation hot path.
	MetaslabShift uint
	// Ashift is log2 of the sector size records are counted in on the
	// wire (zfs_ashift): record offsets/runs are metaslab-local sector
	// counts, not raw bytes, so they fit the codec's 19-bit offset
	// field as long as MetaslabShift-Ashift is at most 19.
	Ashift uint
	// KeepLogSpacemapsAtExport suppresses the final flush-everything
	// pass on export, a testing knob mirroring
	// zfs_keep_log_spacemaps_at_export.
	KeepLogSpacemapsAtExport bool
	// PrefetchConcurrency bounds concurrent LSM reads during Load
	// (the P in spec.md §4.8 step 4).
	PrefetchConcurrency int
	// PrefetchBytesBudget caps total in-flight prefetch bytes during
	// Load, the Go analogue of dmu_prefetch_max.
	PrefetchBytesBudget int64

	Mem    scheduler.MemChecker
	Logger Logger
}

// DefaultConfig returns the tunables carried over from the original
// implementation's module parameters.
func DefaultConfig() Config {
	return Config{
		Tunables:             scheduler.DefaultTunables(),
		BlockSize:            1 << 17, // 128 KiB
		MetaslabShift:        30,      // 1 GiB metaslabs
		Ashift:               12,      // 4 KiB sectors
		PrefetchConcurrency:  16,
		PrefetchBytesBudget:  32 << 20,
		Mem:                  scheduler.NewSystemMemChecker(),
		Logger:               defaultLogger{},
	}
}
