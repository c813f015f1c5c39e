// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package record implements the log-space-map on-disk record codec
// (spec.md §4.2): fixed 8-byte little-endian LOC/SKIP words, chunked
// into checksummed buffers.
package record

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/loglsm/spacemap/internal/base"
)

// Kind distinguishes the two record types the core understands.
type Kind uint8

const (
	// KindLoc carries a single allocation or free delta.
	KindLoc Kind = iota
	// KindSkip advances the logical replay cursor across TXGs that had
	// no entries, without producing a tuple.
	KindSkip
)

// EntryKind distinguishes an allocation LOC from a free LOC.
type EntryKind uint8

const (
	// EntryAlloc marks an allocation delta.
	EntryAlloc EntryKind = iota
	// EntryFree marks a free delta.
	EntryFree
)

// Entry is one decoded LOC tuple. Offset and Run are metaslab-relative,
// counted in ashift-sized sectors rather than bytes — the same trick
// that lets a DVA pack a large byte offset into a fixed-width field.
type Entry struct {
	Kind   EntryKind
	Vdev   uint32
	MsID   uint32
	Offset uint64
	Run    uint64
}

// bit layout of the 8-byte little-endian word:
//
//	bits [63:62] record type (Kind)
//	LOC:
//	  bit  [61]    entry kind (alloc/free)
//	  bits [60:53] vdev id                       (8 bits)
//	  bits [52:37] metaslab id within the vdev    (16 bits)
//	  bits [36:18] ashift-sector offset, ms-local (19 bits)
//	  bits [17:0]  ashift-sector run              (18 bits)
//	SKIP:
//	  bits [61:0]  skip count (TXGs)
const (
	typeShift = 62
	typeMask  = 0x3

	locKindShift = 61
	locKindMask  = 0x1

	locVdevShift = 53
	locVdevBits  = 8
	locVdevMask  = (1 << locVdevBits) - 1

	locMsIDShift = 37
	locMsIDBits  = 16
	locMsIDMask  = (1 << locMsIDBits) - 1

	locOffsetShift = 18
	locOffsetBits  = 19
	locOffsetMask  = (1 << locOffsetBits) - 1

	locRunBits = 18
	locRunMask = (1 << locRunBits) - 1

	skipCountMask = (uint64(1) << 62) - 1
)

// EncodeLoc packs a LOC entry into its fixed 8-byte word. It returns an
// error if any field doesn't fit in its bit-packed width — the codec
// never emits a record wider than 8 bytes.
func EncodeLoc(e Entry) (uint64, error) {
	if e.Vdev > locVdevMask {
		return 0, base.CorruptionErrorf("logsm: vdev id %d overflows %d bits", e.Vdev, locVdevBits)
	}
	if e.MsID > locMsIDMask {
		return 0, base.CorruptionErrorf("logsm: metaslab id %d overflows %d bits", e.MsID, locMsIDBits)
	}
	if e.Offset > locOffsetMask {
		return 0, base.CorruptionErrorf("logsm: offset %d overflows %d bits", e.Offset, locOffsetBits)
	}
	if e.Run > locRunMask {
		return 0, base.CorruptionErrorf("logsm: run %d overflows %d bits", e.Run, locRunBits)
	}
	w := uint64(KindLoc) << typeShift
	w |= uint64(e.Kind&locKindMask) << locKindShift
	w |= uint64(e.Vdev) << locVdevShift
	w |= uint64(e.MsID&locMsIDMask) << locMsIDShift
	w |= (e.Offset & locOffsetMask) << locOffsetShift
	w |= e.Run & locRunMask
	return w, nil
}

// EncodeSkip packs a SKIP record advancing the cursor by n TXGs.
func EncodeSkip(n uint64) (uint64, error) {
	if n > skipCountMask {
		return 0, base.CorruptionErrorf("logsm: skip count %d overflows available bits", n)
	}
	return uint64(KindSkip)<<typeShift | (n & skipCountMask), nil
}

// Decode inspects the type tag of a word and returns the record kind.
// For KindLoc the entry is populated; for KindSkip skipCount is.
func Decode(w uint64) (kind Kind, entry Entry, skipCount uint64) {
	kind = Kind((w >> typeShift) & typeMask)
	switch kind {
	case KindLoc:
		entry = Entry{
			Kind:   EntryKind((w >> locKindShift) & locKindMask),
			Vdev:   uint32((w >> locVdevShift) & locVdevMask),
			MsID:   uint32((w >> locMsIDShift) & locMsIDMask),
			Offset: (w >> locOffsetShift) & locOffsetMask,
			Run:    w & locRunMask,
		}
	case KindSkip:
		skipCount = w & skipCountMask
	}
	return kind, entry, skipCount
}

// PutWord writes w as 8 little-endian bytes into buf, which must be at
// least 8 bytes long.
func PutWord(buf []byte, w uint64) {
	binary.LittleEndian.PutUint64(buf, w)
}

// GetWord reads 8 little-endian bytes from buf as a word.
func GetWord(buf []byte) uint64 {
	return binary.LittleEndian.Uint64(buf)
}

// WordSize is the fixed encoded size of every record.
const WordSize = 8

// ChecksumChunk computes the chunk checksum stored in the LSM's header
// block for one 16 MiB-bounded buffer of records, using xxhash as a
// fast non-cryptographic substitute for the original's fletcher4.
func ChecksumChunk(buf []byte) uint64 {
	return xxhash.Sum64(buf)
}
