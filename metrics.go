// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package spacemap

import (
	"strconv"
	"sync"

	hdrhistogram "github.com/HdrHistogram/hdrhistogram-go"
	"github.com/cockroachdb/redact"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	descNBlocks = prometheus.NewDesc(
		"logsm_nblocks", "Physical block count retained across all log space maps.", []string{"pool"}, nil)
	descMemUsed = prometheus.NewDesc(
		"logsm_mem_used_bytes", "Bytes retained by unflushed per-metaslab change sets.", []string{"pool"}, nil)
	descBlockLimit = prometheus.NewDesc(
		"logsm_block_limit", "Current block budget computed from the dirty metaslab count.", []string{"pool"}, nil)
	descFlushedPerTxg = prometheus.NewDesc(
		"logsm_flushed_metaslabs_per_txg", "Distribution of metaslabs flushed per synced TXG.",
		[]string{"pool", "quantile"}, nil)
)

// Metrics adapts a Pool to prometheus.Collector, mirroring the
// LevelMetrics/CacheMetrics pattern of exposing a handful of Desc-bound
// gauges plus a latency-style histogram snapshot.
type Metrics struct {
	pool *Pool

	mu        sync.Mutex
	flushHist *hdrhistogram.Histogram
}

// NewMetrics wraps pool for Prometheus registration.
func NewMetrics(pool *Pool) *Metrics {
	return &Metrics{
		pool: pool,
		// Tracks 0..100000 flushed metaslabs per TXG at 3 significant
		// digits, comfortably above any realistic SummaryRows budget.
		flushHist: hdrhistogram.New(0, 100000, 3),
	}
}

// ObserveFlush records how many metaslabs Sync drained in one TXG. Call
// this once per Pool.Sync with the count it actually flushed.
func (m *Metrics) ObserveFlush(flushed int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_ = m.flushHist.RecordValue(flushed)
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- descNBlocks
	ch <- descMemUsed
	ch <- descBlockLimit
	ch <- descFlushedPerTxg
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	poolID := m.pool.ID.String()
	stats := m.pool.Metrics()

	ch <- prometheus.MustNewConstMetric(descNBlocks, prometheus.GaugeValue, float64(stats.NBlocks), poolID)
	ch <- prometheus.MustNewConstMetric(descMemUsed, prometheus.GaugeValue, float64(stats.MemUsed), poolID)
	ch <- prometheus.MustNewConstMetric(descBlockLimit, prometheus.GaugeValue, float64(stats.BlockLimit), poolID)

	m.mu.Lock()
	snapshot := m.flushHist.Export()
	m.mu.Unlock()
	h := hdrhistogram.Import(snapshot)
	for _, q := range []float64{50, 90, 99} {
		ch <- prometheus.MustNewConstMetric(descFlushedPerTxg, prometheus.GaugeValue,
			float64(h.ValueAtQuantile(q)), poolID, strconv.FormatFloat(q, 'g', -1, 64))
	}
}

// String renders a redaction-safe one-line summary, suitable for
// logging alongside the pool's own Logger. Pool IDs and sizes aren't
// sensitive, but the Stringer still routes through redact so this
// composes cleanly with call sites that do log sensitive fields.
func (s Stats) String() string {
	return redact.Sprintf("nblocks=%d memused=%d blocklimit=%d", s.NBlocks, s.MemUsed, s.BlockLimit).StripMarkers()
}
