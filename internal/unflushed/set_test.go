package unflushed

import (
	"testing"

	"github.com/loglsm/spacemap/internal/base"
	"github.com/stretchr/testify/require"
)

func ext(lo, hi uint64) base.Extent { return base.Extent{Lo: lo, Hi: hi} }

func TestIntervalSetAdd(t *testing.T) {
	var s IntervalSet
	s.add(ext(0, 10))
	s.add(ext(20, 30))
	require.Equal(t, []base.Extent{ext(0, 10), ext(20, 30)}, s.Extents())

	// Overlapping/adjacent insert merges.
	s.add(ext(10, 20))
	require.Equal(t, []base.Extent{ext(0, 30)}, s.Extents())
	require.Equal(t, uint64(30), s.Size())
}

func TestIntervalSetRemove(t *testing.T) {
	var s IntervalSet
	s.add(ext(0, 100))

	nonOverlap := s.remove(ext(40, 60))
	require.Empty(t, nonOverlap)
	require.Equal(t, []base.Extent{ext(0, 40), ext(60, 100)}, s.Extents())
}

func TestRemoveXorAddCancelsExactOverlap(t *testing.T) {
	var alloc, free IntervalSet
	free.add(ext(0, 8192))

	// An allocation over the same extent cancels the free entirely.
	RemoveXorAdd(ext(0, 8192), &free, &alloc)
	require.True(t, free.Empty())
	require.True(t, alloc.Empty())
}

func TestRemoveXorAddPartialOverlap(t *testing.T) {
	var alloc, free IntervalSet
	free.add(ext(0, 8192))

	RemoveXorAdd(ext(4096, 12288), &free, &alloc)
	// [0,4096) of the free entry survives; [8192,12288) is new alloc.
	require.Equal(t, []base.Extent{ext(0, 4096)}, free.Extents())
	require.Equal(t, []base.Extent{ext(8192, 12288)}, alloc.Extents())
}

func TestRemoveXorAddNoOverlap(t *testing.T) {
	var alloc, free IntervalSet
	free.add(ext(0, 100))

	RemoveXorAdd(ext(200, 300), &free, &alloc)
	require.Equal(t, []base.Extent{ext(0, 100)}, free.Extents())
	require.Equal(t, []base.Extent{ext(200, 300)}, alloc.Extents())
}
