package base

import "io"

// ObjectID names a single append-only byte object owned by the pool's
// meta-object-set. The zero value never names a real object.
type ObjectID uint64

// ObjectStore is the transactional object store contract the LSM engine
// consumes: create/append/free of plain byte objects at a configured
// block size. It is an external collaborator (spec.md §6) — the real
// allocator, DMU and vdev layers live below this interface and are out
// of scope here.
type ObjectStore interface {
	// Create allocates a new append-only object with the given block
	// size and returns its id.
	Create(blockSize int) (ObjectID, error)
	// Append writes p to the end of the object, buffering writes so
	// that callers can compute block counts from the final length.
	Append(id ObjectID, p []byte) error
	// Reader opens the object's current contents for sequential
	// reads. The object may still be open for appends
	// by the writer; readers only ever observe already-flushed bytes.
	Reader(id ObjectID) (io.ReadCloser, error)
	// Length returns the current byte length of the object.
	Length(id ObjectID) (int64, error)
	// Remove frees the object and all of its storage.
	Remove(id ObjectID) error
}

// KeyMap is the persistent, 64-bit-keyed map ("ZAP") contract: a
// TXG-keyed directory of log-space-map object ids, or a per-vdev,
// metaslab-id-keyed directory of unflushed-txg watermarks.
type KeyMap interface {
	Lookup(key uint64) (value uint64, ok bool)
	Put(key, value uint64) error
	Delete(key uint64) error
	// ForEach calls fn for every entry in unspecified order. fn must not
	// mutate the map.
	ForEach(fn func(key, value uint64)) error
	Len() int
}

// SpaceMapEntryKind distinguishes allocations from frees when iterating
// a metaslab's own on-disk space map.
type SpaceMapEntryKind uint8

const (
	// SpaceMapAlloc marks an allocation entry.
	SpaceMapAlloc SpaceMapEntryKind = iota
	// SpaceMapFree marks a free entry.
	SpaceMapFree
)

// SpaceMapEntry is one decoded entry of a metaslab's own space map, as
// surfaced by SpaceMap.Iterate.
type SpaceMapEntry struct {
	Kind   SpaceMapEntryKind
	Extent Extent
}

// SpaceMap is the per-metaslab accessor contract (spec.md §6): the
// metaslab's own on-disk log of allocations/frees, which unflushed
// changes eventually get drained into. The concrete implementation
// (metaslab loading, RAIDZ, etc.) is out of scope; only this narrow
// surface is needed by the log-space-map engine.
type SpaceMap interface {
	// NBlocks reports the physical block count of the space map.
	NBlocks() uint64
	// Allocated reports the bytes currently marked allocated.
	Allocated() uint64
	// Apply folds the given deltas into the space map, updating
	// Allocated() by alloc-free bytes and appending the necessary
	// records to the map's own backing object.
	Apply(allocs, frees []Extent) error
}
