package registry

import (
	"testing"

	"github.com/loglsm/spacemap/internal/testutil"
	"github.com/stretchr/testify/require"
)

func TestAddRequiresIncreasingTxg(t *testing.T) {
	var r Registry
	r.Add(10, 1)
	require.Panics(t, func() { r.Add(5, 2) })
}

func TestLookupOldestNewest(t *testing.T) {
	var r Registry
	r.Add(10, 1)
	r.Add(20, 2)
	r.Add(30, 3)

	l, ok := r.Lookup(20)
	require.True(t, ok)
	require.Equal(t, uint64(20), l.Txg)

	_, ok = r.Lookup(25)
	require.False(t, ok)

	require.Equal(t, uint64(10), r.Oldest().Txg)
	require.Equal(t, uint64(30), r.Newest().Txg)
	require.Equal(t, 3, r.Len())
}

func TestRemoveOldestRequiresZeroMsCount(t *testing.T) {
	var r Registry
	l := r.Add(10, 1)
	r.Add(20, 2)

	l.IncMsCount()
	_, err := r.RemoveOldest()
	require.Error(t, err)

	l.DecMsCount()
	removed, err := r.RemoveOldest()
	require.NoError(t, err)
	require.Equal(t, uint64(10), removed.Txg)
	require.Equal(t, uint64(20), r.Oldest().Txg)
}

func TestRemoveOldestOnEmptyRegistry(t *testing.T) {
	var r Registry
	_, err := r.RemoveOldest()
	require.Error(t, err)
}

func TestDecMsCountToleratesUnderflow(t *testing.T) {
	l := &LSM{Txg: 1}
	l.DecMsCount()
	require.Equal(t, uint64(0), l.MsCount)
}

// TestAllReflectsMsCountMutationsInOrder compares the full registry
// contents structurally after a sequence of inserts and mscount
// mutations, rather than asserting one field of one LSM at a time.
func TestAllReflectsMsCountMutationsInOrder(t *testing.T) {
	var r Registry
	a := r.Add(10, 1)
	b := r.Add(20, 2)
	c := r.Add(30, 3)
	a.NBlocks, b.NBlocks, c.NBlocks = 4, 5, 6

	a.IncMsCount()
	b.IncMsCount()
	b.IncMsCount()
	b.DecMsCount()

	want := []*LSM{
		{Txg: 10, NBlocks: 4, MsCount: 1, ObjectID: 1},
		{Txg: 20, NBlocks: 5, MsCount: 1, ObjectID: 2},
		{Txg: 30, NBlocks: 6, MsCount: 0, ObjectID: 3},
	}
	if diff := testutil.Diff(r.All(), want); diff != "" {
		t.Fatalf("registry contents mismatch:\n%s", diff)
	}
}
