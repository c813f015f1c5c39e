// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package spacemap

import (
	"context"
	"io"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/loglsm/spacemap/internal/base"
	"github.com/loglsm/spacemap/internal/record"
	"github.com/loglsm/spacemap/internal/registry"
	"github.com/loglsm/spacemap/internal/summary"
	"github.com/loglsm/spacemap/internal/unflushed"
	"golang.org/x/sync/errgroup"
)

// Watermarks is the per-vdev persisted directory of metaslab ->
// unflushed_txg records (spec.md §6's "per-vdev top-level ZAP entry").
type Watermarks map[uint32]base.KeyMap

// Load rebuilds the in-memory registry, summary and unflushed change
// sets from on-disk state (spec.md §4.8). Every metaslab the pool will
// track must already be registered via AddMetaslab before Load runs.
// Watermark validation and prefetch happen before any mutation, so an
// error from them (most commonly a watermark naming a txg with no
// registered LSM) leaves the pool's prior in-memory state untouched.
// An error during replay leaves the registry, summary and flush index
// untouched but does not roll back the metaslab change sets already
// reset and partly replayed.
func (p *Pool) Load(ctx context.Context, wm Watermarks) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	type dirEntry struct{ txg, objID uint64 }
	var entries []dirEntry
	if err := p.txgMap.ForEach(func(txg, objID uint64) {
		entries = append(entries, dirEntry{txg: txg, objID: objID})
	}); err != nil {
		return errors.Wrapf(err, "logsm: walking LSM directory")
	}
	// ForEach order is unspecified; Registry.Add requires ascending txgs.
	sort.Slice(entries, func(i, j int) bool { return entries[i].txg < entries[j].txg })
	var reg registry.Registry
	for _, e := range entries {
		reg.Add(e.txg, base.ObjectID(e.objID))
	}
	blockSize := uint64(p.cfg.BlockSize)
	for _, lsm := range reg.All() {
		length, err := p.store.Length(lsm.ObjectID)
		if err != nil {
			return errors.Wrapf(err, "logsm: stat LSM object for txg %d", lsm.Txg)
		}
		if uint64(length)%blockSize != 0 {
			return base.CorruptionErrorf("logsm: LSM object for txg %d has length %d, not a multiple of block size %d",
				lsm.Txg, length, blockSize)
		}
		lsm.NBlocks = uint64(length) / blockSize
	}

	type watermark struct {
		ms  *Metaslab
		txg uint64
	}
	var watermarks []watermark
	for key, ms := range p.metaslabs {
		km, ok := wm[key.Vdev]
		if !ok {
			continue
		}
		txg, ok := km.Lookup(key.ID)
		if !ok || txg == 0 {
			continue
		}
		if _, ok := reg.Lookup(txg); !ok {
			return base.NotFoundErrorf("logsm: metaslab %+v watermark names unregistered txg %d", key, txg)
		}
		watermarks = append(watermarks, watermark{ms: ms, txg: txg})
	}

	// Everything below only mutates scratch state (reg, sum, a local
	// flushIndex) or metaslabs whose watermark has already been
	// validated above; the metaslab change sets are mutated in place.

	var sum summary.Queue
	lim := summary.Limits{
		MaxRows:      p.cfg.Tunables.SummaryRows,
		MaxTxgPerRow: ceilDivU64(p.cfg.Tunables.LogTxgMax, p.cfg.Tunables.SummaryRows),
		BlockLimit:   p.cfg.Tunables.LogBlockMax,
	}
	for _, lsm := range reg.All() {
		sum.AddIncomingBlocks(lsm.Txg, lsm.NBlocks, lim)
	}
	for _, w := range watermarks {
		lsm, _ := reg.Lookup(w.txg)
		lsm.IncMsCount()
		sum.AddFlushedMetaslab(w.txg, false, lim)
	}

	bodies, err := p.prefetchLocked(ctx, reg.All())
	if err != nil {
		return err
	}

	flushIndex := make([]*Metaslab, 0, len(watermarks))
	for _, w := range watermarks {
		w.ms.Changes = unflushed.Changes{Txg: w.txg}
		flushIndex = append(flushIndex, w.ms)
	}

	for _, lsm := range reg.All() {
		buf := bodies[lsm.Txg]
		if len(buf) == 0 {
			continue
		}
		if err := p.replayLSMLocked(lsm.Txg, buf, &sum); err != nil {
			return errors.Wrapf(err, "logsm: replaying LSM for txg %d", lsm.Txg)
		}
	}

	p.registry = reg
	p.summary = sum
	p.flushIndex = flushIndex
	p.sortFlushIndexLocked()
	p.recomputeStatsLocked()
	return nil
}

// prefetchLocked reads every LSM object's bytes, bounded by
// Config.PrefetchConcurrency, the Go analogue of the original's
// dmu_prefetch-windowed scan (spec.md §4.8 step 4). It is the only
// point in the whole engine where concurrent I/O happens (spec.md §5).
func (p *Pool) prefetchLocked(ctx context.Context, lsms []*registry.LSM) (map[uint64][]byte, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxInt(1, p.cfg.PrefetchConcurrency))

	var mu sync.Mutex
	results := make(map[uint64][]byte, len(lsms))
	budget := p.cfg.PrefetchBytesBudget

	for _, lsm := range lsms {
		lsm := lsm
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return errors.Mark(errors.Wrapf(err, "logsm: prefetch cancelled"), base.ErrShutdown)
			}
			r, err := p.store.Reader(lsm.ObjectID)
			if err != nil {
				return errors.Wrapf(err, "logsm: opening LSM object for txg %d", lsm.Txg)
			}
			defer r.Close()
			var buf []byte
			if budget > 0 {
				buf, err = io.ReadAll(io.LimitReader(r, budget))
			} else {
				buf, err = io.ReadAll(r)
			}
			if err != nil {
				return errors.Wrapf(err, "logsm: reading LSM object for txg %d", lsm.Txg)
			}
			mu.Lock()
			results[lsm.Txg] = buf
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// replayLSMLocked decodes every LOC record in buf (after verifying and
// stripping the header block) and folds it into the owning metaslab's
// unflushed change set, unless that metaslab's watermark has already
// advanced past this LSM's txg. Callers must hold p.mu.
func (p *Pool) replayLSMLocked(txg uint64, buf []byte, sum *summary.Queue) error {
	headers, chunks, err := record.DecodeHeaderBlock(buf)
	if err != nil {
		return err
	}
	if err := record.VerifyChunks(chunks, headers); err != nil {
		return err
	}
	d := record.NewDecoder(chunks)
	for {
		rec, ok, err := d.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if rec.IsSkip {
			continue
		}
		key := MetaslabKey{Vdev: rec.Entry.Vdev, ID: uint64(rec.Entry.MsID)}
		ms, ok := p.metaslabs[key]
		if !ok {
			return base.CorruptionErrorf("logsm: LSM txg=%d references unregistered metaslab %+v", txg, key)
		}
		if txg < ms.Changes.Txg {
			continue
		}
		local := rec.Entry.Offset << p.cfg.Ashift
		run := rec.Entry.Run << p.cfg.Ashift
		e := base.Extent{Lo: local, Hi: local + run}
		onFirstDirty := func() { sum.MarkFlushedMetaslabDirty(ms.Changes.Txg) }
		switch rec.Entry.Kind {
		case record.EntryAlloc:
			ms.Changes.ApplyAlloc(e, txg, onFirstDirty)
		case record.EntryFree:
			ms.Changes.ApplyFree(e, txg, onFirstDirty)
		}
	}
	return nil
}
