// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package unflushed implements the per-metaslab unflushed change sets
// (spec.md §4.1): two disjoint interval sets, allocs and frees, holding
// the delta between a metaslab's on-disk space map and its true
// allocated state, plus the remove-xor-add semantics used to keep them
// disjoint as new records arrive.
package unflushed

import (
	"sort"

	"github.com/loglsm/spacemap/internal/base"
)

// IntervalSet is a sorted, non-overlapping set of half-open byte-offset
// extents. The zero value is an empty set.
type IntervalSet struct {
	extents []base.Extent
}

// Extents returns the set's extents in ascending order. The returned
// slice must not be mutated by the caller.
func (s *IntervalSet) Extents() []base.Extent {
	return s.extents
}

// Size returns the total number of bytes covered by the set.
func (s *IntervalSet) Size() uint64 {
	var total uint64
	for _, e := range s.extents {
		total += e.Len()
	}
	return total
}

// Empty reports whether the set covers no bytes.
func (s *IntervalSet) Empty() bool {
	return len(s.extents) == 0
}

// Clear empties the set in place.
func (s *IntervalSet) Clear() {
	s.extents = s.extents[:0]
}

// add inserts extent e into the set, merging with any adjacent or
// overlapping extents. RemoveXorAdd strips only the part of e that
// overlaps the opposite set, so e may still overlap this set (e.g. the
// same range allocated twice); add merges in that case.
func (s *IntervalSet) add(e base.Extent) {
	if e.Empty() {
		return
	}
	i := sort.Search(len(s.extents), func(i int) bool {
		return s.extents[i].Hi >= e.Lo
	})
	j := i
	lo, hi := e.Lo, e.Hi
	for j < len(s.extents) && s.extents[j].Lo <= hi {
		if s.extents[j].Lo < lo {
			lo = s.extents[j].Lo
		}
		if s.extents[j].Hi > hi {
			hi = s.extents[j].Hi
		}
		j++
	}
	merged := base.Extent{Lo: lo, Hi: hi}
	tail := append([]base.Extent{}, s.extents[j:]...)
	s.extents = append(s.extents[:i], merged)
	s.extents = append(s.extents, tail...)
}

// remove deletes the portion of e that overlaps the set, returning the
// sub-extents of e that did NOT overlap anything (the "non-overlap" half
// of remove-xor-add).
func (s *IntervalSet) remove(e base.Extent) []base.Extent {
	if e.Empty() {
		return nil
	}
	var nonOverlap []base.Extent
	cursor := e.Lo
	out := s.extents[:0:0]
	i := 0
	for ; i < len(s.extents); i++ {
		cur := s.extents[i]
		if cur.Hi <= e.Lo {
			out = append(out, cur)
			continue
		}
		if cur.Lo >= e.Hi {
			break
		}
		// cur overlaps [cursor, e.Hi).
		if cur.Lo > cursor {
			nonOverlap = append(nonOverlap, base.Extent{Lo: cursor, Hi: cur.Lo})
		}
		if cur.Lo < e.Lo {
			out = append(out, base.Extent{Lo: cur.Lo, Hi: e.Lo})
		}
		if cur.Hi > e.Hi {
			out = append(out, base.Extent{Lo: e.Hi, Hi: cur.Hi})
		}
		if cur.Hi > cursor {
			cursor = cur.Hi
		}
	}
	if cursor < e.Hi {
		nonOverlap = append(nonOverlap, base.Extent{Lo: cursor, Hi: e.Hi})
	}
	out = append(out, s.extents[i:]...)
	s.extents = out
	return nonOverlap
}

// RemoveXorAdd implements the XOR semantics of spec.md §4.1 and
// range_tree_remove_xor_add_segment in spa_log_spacemap.c: delete any
// portion of e that overlaps opposite, and insert the remaining,
// non-overlapping portion of e into target. target and opposite must
// not be the same set.
func RemoveXorAdd(e base.Extent, opposite, target *IntervalSet) {
	for _, rem := range opposite.remove(e) {
		target.add(rem)
	}
}
