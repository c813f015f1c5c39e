package scheduler

import (
	"testing"

	"github.com/loglsm/spacemap/internal/summary"
	"github.com/stretchr/testify/require"
)

type fakeMem struct{ total uint64 }

func (f fakeMem) TotalBytes() (uint64, error) { return f.total, nil }

func TestBlockLimitClampsToMinMax(t *testing.T) {
	tun := DefaultTunables()
	require.Equal(t, tun.LogBlockMin, tun.BlockLimit(0))
	require.Equal(t, tun.LogBlockMax, tun.BlockLimit(1<<30))
	require.Equal(t, uint64(1000), tun.BlockLimit(100)) // 100*400/100 = 400, raised to LogBlockMin
}

func TestOverMemoryBudgetAbsoluteCap(t *testing.T) {
	tun := DefaultTunables()
	over, err := OverMemoryBudget(tun, tun.MaxMemAmt+1, fakeMem{total: 1 << 40})
	require.NoError(t, err)
	require.True(t, over)
}

func TestOverMemoryBudgetPPMCap(t *testing.T) {
	tun := DefaultTunables()
	tun.MaxMemAmt = 1 << 60 // disable the absolute cap for this test
	total := uint64(1 << 30)
	allowed := (total * tun.MaxMemPPM) / 1000000
	over, err := OverMemoryBudget(tun, allowed+1, fakeMem{total: total})
	require.NoError(t, err)
	require.True(t, over)

	over, err = OverMemoryBudget(tun, allowed-1, fakeMem{total: total})
	require.NoError(t, err)
	require.False(t, over)
}

func TestEstimateIncomingBlocksAveragesRecentLogs(t *testing.T) {
	tun := DefaultTunables()
	require.Equal(t, uint64(0), tun.EstimateIncomingBlocks(nil))
	require.Equal(t, uint64(5), tun.EstimateIncomingBlocks([]uint64{10, 0}))
	// Only the most recent MaxLogWalking entries contribute.
	many := []uint64{10, 10, 10, 10, 10, 1000}
	require.Equal(t, uint64(10), tun.EstimateIncomingBlocks(many))
}

// TestEstimateMetaslabsToFlushE4 is spec.md's E4 scenario: a block
// limit of 10, an incoming rate of 2, and three summary rows each with
// txgcount=5, msdcount=4, blkcount=5 yield a flush estimate of 2.
func TestEstimateMetaslabsToFlushE4(t *testing.T) {
	tun := DefaultTunables()
	var q summary.Queue
	// A generous block budget keeps rows from closing on block count;
	// only the 5-TXG-per-row cap should apply.
	lim := summary.Limits{MaxRows: 10, MaxTxgPerRow: 5, BlockLimit: 1_000_000}
	for row := uint64(0); row < 3; row++ {
		for i := uint64(0); i < 5; i++ {
			txg := row*5 + i + 1
			q.AddIncomingBlocks(txg, 1, lim)
			if i < 4 {
				q.AddFlushedMetaslab(txg, true, lim)
			}
		}
	}
	require.Equal(t, 3, q.Len())
	for _, r := range q.Rows() {
		require.Equal(t, uint64(5), r.TxgCount)
		require.Equal(t, uint64(4), r.MsDirty)
		require.Equal(t, uint64(5), r.BlkCount)
	}

	got := EstimateMetaslabsToFlush(tun, &q, 10, 0, 2)
	require.Equal(t, uint64(2), got)
}

func TestEstimateMetaslabsToFlushFloorsAtMinimum(t *testing.T) {
	tun := DefaultTunables()
	var q summary.Queue
	got := EstimateMetaslabsToFlush(tun, &q, 1000, 0, 0)
	require.Equal(t, tun.MinMetaslabsToFlush, got)
}
