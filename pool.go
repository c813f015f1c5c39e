// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package spacemap is the pool-level entry point for the log-space-map
// engine: it ties the unflushed change sets (internal/unflushed), the
// record codec (internal/record), the per-TXG registry
// (internal/registry), the summary queue (internal/summary), and the
// flush scheduler (internal/scheduler) together into the two
// operations a transaction-group pipeline actually calls:
// Pool.Sync at the end of every syncing TXG, and Pool.Load once at
// import.
package spacemap

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/loglsm/spacemap/internal/base"
	"github.com/loglsm/spacemap/internal/record"
	"github.com/loglsm/spacemap/internal/registry"
	"github.com/loglsm/spacemap/internal/summary"
)

// Stats is the pool-wide accounting snapshot of spec.md §3 ("Pool
// stats S").
type Stats struct {
	NBlocks    uint64
	MemUsed    uint64
	BlockLimit uint64
}

// Pool is the log-space-map engine for a single storage pool. Registry,
// summary and stats mutations happen only under mu, from sync context
// (spec.md §5); metaslab changes are additionally guarded by each
// Metaslab's own mu, acquired in pool-then-metaslab order.
type Pool struct {
	ID uuid.UUID

	cfg    Config
	store  base.ObjectStore
	txgMap base.KeyMap // txg -> LSM object id

	mu         sync.Mutex
	registry   registry.Registry
	summary    summary.Queue
	metaslabs  map[MetaslabKey]*Metaslab
	flushIndex []*Metaslab // sorted ascending by Changes.Txg

	syncingTxg    uint64
	syncingWriter *record.Writer

	exportRequested bool

	statsMu sync.RWMutex
	stats   Stats
}

// NewPool constructs an empty Pool. store backs every LSM object;
// txgMap persists the TXG -> LSM-object-id directory (the ZAP of
// spec.md §6).
func NewPool(cfg Config, store base.ObjectStore, txgMap base.KeyMap) *Pool {
	if cfg.Mem == nil {
		cfg.Mem = DefaultConfig().Mem
	}
	if cfg.Logger == nil {
		cfg.Logger = defaultLogger{}
	}
	return &Pool{
		ID:        uuid.New(),
		cfg:       cfg,
		store:     store,
		txgMap:    txgMap,
		metaslabs: make(map[MetaslabKey]*Metaslab),
	}
}

// Metrics returns a point-in-time snapshot of the pool's stats,
// acquired under statsMu the way a diagnostics reader would (spec.md
// §5's "pool-config reader lock").
func (p *Pool) Metrics() Stats {
	p.statsMu.RLock()
	defer p.statsMu.RUnlock()
	return p.stats
}

func (p *Pool) setStats(s Stats) {
	p.statsMu.Lock()
	p.stats = s
	p.statsMu.Unlock()
}

// AddMetaslab registers a metaslab with its backing space map. Must be
// called before any Allocate/Free referencing it, and is idempotent
// for the same key.
func (p *Pool) AddMetaslab(key MetaslabKey, sm base.SpaceMap) *Metaslab {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ms, ok := p.metaslabs[key]; ok {
		return ms
	}
	ms := &Metaslab{Key: key, SM: sm}
	p.metaslabs[key] = ms
	return ms
}

// RequestExportFlush marks the pool for a final flush-everything pass
// on its next Sync, mirroring spa_flush_all_logs_requested. It is a
// no-op when Config.KeepLogSpacemapsAtExport is set (a testing knob
// that deliberately leaves log spacemaps behind to exercise Load).
func (p *Pool) RequestExportFlush() {
	if p.cfg.KeepLogSpacemapsAtExport {
		return
	}
	p.mu.Lock()
	p.exportRequested = true
	p.mu.Unlock()
}

// msIDForOffset splits a vdev-global offset into its owning metaslab
// id and the local offset within that metaslab, using the configured
// MetaslabShift — the Go analogue of ZFS deriving a metaslab index
// from a DVA's offset and the vdev's ms_shift.
func (p *Pool) msIDForOffset(offset uint64) (msID uint64, local uint64) {
	msID = offset >> p.cfg.MetaslabShift
	local = offset - (msID << p.cfg.MetaslabShift)
	return msID, local
}

// Allocate records an allocation of run bytes at the given vdev-global
// offset, originating in txg. It is the per-metaslab allocation hot
// path of spec.md §5: it appends a LOC record to the current syncing
// LSM and folds the delta into the metaslab's unflushed change set.
func (p *Pool) Allocate(vdev uint32, offset, run, txg uint64) error {
	return p.recordChange(vdev, offset, run, txg, base.SpaceMapAlloc)
}

// Free is the symmetric counterpart of Allocate.
func (p *Pool) Free(vdev uint32, offset, run, txg uint64) error {
	return p.recordChange(vdev, offset, run, txg, base.SpaceMapFree)
}

func (p *Pool) recordChange(vdev uint32, offset, run, txg uint64, kind base.SpaceMapEntryKind) error {
	msID, local := p.msIDForOffset(offset)
	key := MetaslabKey{Vdev: vdev, ID: msID}

	p.mu.Lock()
	ms, ok := p.metaslabs[key]
	if !ok {
		p.mu.Unlock()
		return base.NotFoundErrorf("logsm: metaslab %+v not registered", key)
	}

	if err := p.ensureSyncingLSMLocked(txg); err != nil {
		p.mu.Unlock()
		return err
	}

	entryKind := record.EntryAlloc
	if kind == base.SpaceMapFree {
		entryKind = record.EntryFree
	}
	base.Assert(offset%(1<<p.cfg.Ashift) == 0, "logsm: offset %d is not ashift-%d aligned", offset, p.cfg.Ashift)
	base.Assert(run%(1<<p.cfg.Ashift) == 0, "logsm: run %d is not ashift-%d aligned", run, p.cfg.Ashift)
	word, err := record.EncodeLoc(record.Entry{
		Kind:   entryKind,
		Vdev:   vdev,
		MsID:   uint32(msID),
		Offset: local >> p.cfg.Ashift,
		Run:    run >> p.cfg.Ashift,
	})
	if err != nil {
		p.mu.Unlock()
		return errors.Wrapf(err, "logsm: encoding LOC record")
	}
	p.syncingWriter.Append(word)

	firstDirty := false
	wasTracked := ms.Tracked()
	p.mu.Unlock()

	ms.mu.Lock()
	e := base.Extent{Lo: local, Hi: local + run}
	switch kind {
	case base.SpaceMapAlloc:
		ms.Changes.ApplyAlloc(e, txg, func() { firstDirty = true })
	case base.SpaceMapFree:
		ms.Changes.ApplyFree(e, txg, func() { firstDirty = true })
	}
	if !wasTracked {
		ms.Changes.Txg = txg
	}
	ms.mu.Unlock()

	if !wasTracked {
		p.mu.Lock()
		p.trackMetaslabLocked(ms, txg)
		p.mu.Unlock()
	} else if firstDirty {
		// Re-dirtied after having been rebaselined clean at its
		// current watermark: bump the owning summary row's dirty
		// count (spec.md §4.1's "bump the corresponding summary
		// row's dirty metaslab count").
		p.mu.Lock()
		p.summary.MarkFlushedMetaslabDirty(ms.Changes.Txg)
		p.mu.Unlock()
	}
	return nil
}

// trackMetaslabLocked registers a metaslab that just became dirty for
// the first time: it inserts into the flush index and credits the
// owning LSM/summary row, establishing the invariant that every
// tracked metaslab's watermark names a registry entry with a nonzero
// reference count (spec.md §8 invariant 2). Callers must hold p.mu.
func (p *Pool) trackMetaslabLocked(ms *Metaslab, txg uint64) {
	lsm, ok := p.registry.Lookup(txg)
	base.Assert(ok, "logsm: no LSM registered for txg %d", txg)
	lsm.IncMsCount()
	p.summary.AddFlushedMetaslab(txg, true, p.summaryLimitsLocked())
	p.flushIndex = append(p.flushIndex, ms)
	p.sortFlushIndexLocked()
}

func (p *Pool) sortFlushIndexLocked() {
	sort.SliceStable(p.flushIndex, func(i, j int) bool {
		return p.flushIndex[i].Changes.Txg < p.flushIndex[j].Changes.Txg
	})
}

func (p *Pool) summaryLimitsLocked() summary.Limits {
	return summary.Limits{
		MaxRows:      p.cfg.Tunables.SummaryRows,
		MaxTxgPerRow: ceilDivU64(p.cfg.Tunables.LogTxgMax, p.cfg.Tunables.SummaryRows),
		BlockLimit:   p.stats.BlockLimit,
	}
}

func ceilDivU64(a, b uint64) uint64 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// ensureSyncingLSMLocked opens a fresh LSM object for txg if one isn't
// already syncing. Callers must hold p.mu.
func (p *Pool) ensureSyncingLSMLocked(txg uint64) error {
	if p.syncingWriter != nil {
		base.Assert(p.syncingTxg == txg, "logsm: syncing LSM for txg %d still open while txg %d starts", p.syncingTxg, txg)
		return nil
	}
	if newest := p.registry.Newest(); newest != nil {
		base.Assert(newest.Txg < txg, "logsm: registry already has an entry for txg %d", txg)
	}
	objID, err := p.store.Create(p.cfg.BlockSize)
	if err != nil {
		return errors.Wrapf(err, "logsm: creating LSM object for txg %d", txg)
	}
	if err := p.txgMap.Put(txg, uint64(objID)); err != nil {
		return errors.Wrapf(err, "logsm: recording LSM object for txg %d", txg)
	}
	p.registry.Add(txg, objID)
	p.syncingTxg = txg
	p.syncingWriter = record.NewWriter(record.DefaultChunkSize)
	return nil
}
