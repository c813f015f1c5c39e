package unflushed

import "github.com/loglsm/spacemap/internal/base"

// Changes is the per-metaslab unflushed change set (spec.md §3): two
// disjoint interval sets plus the watermark TXG and dirty bit.
type Changes struct {
	Alloc, Free IntervalSet
	Txg         uint64
	Dirty       bool
}

// MemUsed approximates the bytes retained by this change set, used to
// feed the pool-wide memory heuristic (spec.md §4.6). Each extent is
// charged a fixed per-node overhead on top of its own two uint64 fields,
// mirroring the range_tree node accounting in the original.
func (c *Changes) MemUsed() uint64 {
	const nodeOverhead = 48
	n := uint64(len(c.Alloc.extents) + len(c.Free.extents))
	return n * (nodeOverhead + 16)
}

// ApplyAlloc folds an allocation of extent e, originating in TXG t, into
// the change set. onFirstDirty is invoked at most once, only when this
// call transitions Dirty from false to true, so callers can bump the
// owning summary row's dirty-metaslab count (spec.md §4.1).
func (c *Changes) ApplyAlloc(e base.Extent, t uint64, onFirstDirty func()) {
	base.Assert(t >= c.Txg, "logsm: alloc txg %d precedes watermark %d", t, c.Txg)
	RemoveXorAdd(e, &c.Free, &c.Alloc)
	c.markDirty(onFirstDirty)
}

// ApplyFree is the symmetric counterpart of ApplyAlloc.
func (c *Changes) ApplyFree(e base.Extent, t uint64, onFirstDirty func()) {
	base.Assert(t >= c.Txg, "logsm: free txg %d precedes watermark %d", t, c.Txg)
	RemoveXorAdd(e, &c.Alloc, &c.Free)
	c.markDirty(onFirstDirty)
}

func (c *Changes) markDirty(onFirstDirty func()) {
	if !c.Dirty {
		c.Dirty = true
		if onFirstDirty != nil {
			onFirstDirty()
		}
	}
}

// Rebaseline advances the watermark to newTxg without draining, used
// when a metaslab had nothing dirty to flush this TXG (spec.md §4.7
// step 4, the "else" branch) and after a successful DrainInto.
func (c *Changes) Rebaseline(newTxg uint64) {
	c.Txg = newTxg
	c.Dirty = false
}

// DrainInto folds the unflushed changes into sm, the metaslab's own
// space map, and empties both interval sets (spec.md §4.1). It does not
// touch Txg or Dirty; callers rebaseline separately once the drain
// succeeds.
func (c *Changes) DrainInto(sm base.SpaceMap) error {
	if err := sm.Apply(c.Alloc.Extents(), c.Free.Extents()); err != nil {
		return err
	}
	c.Alloc.Clear()
	c.Free.Clear()
	return nil
}
