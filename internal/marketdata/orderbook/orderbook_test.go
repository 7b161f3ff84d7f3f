package orderbook

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sequex-io/marketsync/internal/marketdata/event"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func lvl(price, qty string) event.BookLevel {
	return event.NewBookLevel(d(price), d(qty))
}

// S1. Gap-free happy path.
func TestApplyDeltas_HappyPath(t *testing.T) {
	ob := New(DefaultConfig())
	ob.ApplySnapshot(
		[]event.BookLevel{lvl("10.0", "1"), lvl("9.9", "2")},
		[]event.BookLevel{lvl("10.1", "1")},
		100,
	)

	res := ob.ApplyDeltas([]event.BookLevel{lvl("10.0", "0")}, nil, 101, 105)
	require.Equal(t, Applied, res)
	bid, ok := ob.BestBid()
	require.True(t, ok)
	require.True(t, bid.Price.Equal(d("9.9")))
	require.True(t, bid.Qty.Equal(d("2")))

	res = ob.ApplyDeltas(nil, []event.BookLevel{lvl("10.1", "0.5")}, 106, 106)
	require.Equal(t, Applied, res)
	ask, ok := ob.BestAsk()
	require.True(t, ok)
	require.True(t, ask.Qty.Equal(d("0.5")))

	require.Equal(t, int64(106), ob.Sequence())
	require.True(t, ob.Spread().Equal(d("0.2")))
	require.True(t, ob.MidPrice().Equal(d("10.0")))
}

// S2. Buffered replay via the internal pending-buffer drain path.
func TestApplyDeltas_BufferedDrain(t *testing.T) {
	ob := New(DefaultConfig())
	ob.ApplySnapshot(nil, nil, 500)

	res := ob.ApplyDeltas(nil, nil, 498, 499)
	require.Equal(t, Duplicate, res)

	res = ob.ApplyDeltas([]event.BookLevel{lvl("10.0", "1")}, nil, 502, 503)
	require.Equal(t, Buffered, res)

	res = ob.ApplyDeltas([]event.BookLevel{lvl("9.9", "2")}, nil, 501, 501)
	require.Equal(t, Applied, res)

	require.Equal(t, int64(503), ob.Sequence())
	require.Equal(t, StateSynchronized, ob.State())
}

// S3. Unrecoverable gap.
func TestApplyDeltas_UnrecoverableGap(t *testing.T) {
	cfg := Config{MaxBufferSize: 10_000, MaxSequenceGap: 100}
	ob := New(cfg)
	ob.ApplySnapshot([]event.BookLevel{lvl("10.0", "1")}, []event.BookLevel{lvl("10.1", "1")}, 999)
	res := ob.ApplyDeltas(nil, nil, 1000, 1000)
	require.Equal(t, Applied, res)
	require.Equal(t, int64(1000), ob.Sequence())

	res = ob.ApplyDeltas(nil, nil, 2000, 2001)
	require.Equal(t, GapDetected, res)
	require.Equal(t, int64(1), ob.GapCount())
}

func TestApplyDelta_DuplicateIsIdempotent(t *testing.T) {
	ob := New(DefaultConfig())
	ob.ApplySnapshot([]event.BookLevel{lvl("10.0", "1")}, nil, 100)

	res := ob.ApplyDelta(lvl("10.0", "5"), true, 101)
	require.Equal(t, Applied, res)
	before, _ := ob.BestBid()

	res = ob.ApplyDelta(lvl("10.0", "5"), true, 101)
	require.Equal(t, Duplicate, res)
	after, _ := ob.BestBid()
	require.Equal(t, before, after)
}

func TestApplyDelta_ZeroQtyAtAbsentPrice(t *testing.T) {
	ob := New(DefaultConfig())
	ob.ApplySnapshot([]event.BookLevel{lvl("10.0", "1")}, nil, 100)

	res := ob.ApplyDelta(lvl("9.0", "0"), true, 101)
	require.Equal(t, Applied, res)
	require.True(t, ob.DepthAtPrice(d("9.0"), true).IsZero())
	require.Equal(t, int64(101), ob.Sequence())
}

func TestApplyDelta_ExactlyAtMaxGapIsBuffered(t *testing.T) {
	cfg := Config{MaxBufferSize: 10_000, MaxSequenceGap: 50}
	ob := New(cfg)
	ob.ApplySnapshot(nil, nil, 100) // expectedSequence = 101

	res := ob.ApplyDelta(lvl("10.0", "1"), true, 151) // 151-101 = 50 == maxGap
	require.Equal(t, Buffered, res)
}

func TestQueries_TotalAndCumulativeDepth(t *testing.T) {
	ob := New(DefaultConfig())
	ob.ApplySnapshot(
		[]event.BookLevel{lvl("10.0", "5"), lvl("9.9", "3"), lvl("9.8", "2")},
		[]event.BookLevel{lvl("10.1", "4"), lvl("10.2", "6")},
		100,
	)

	require.True(t, ob.TotalDepth(true).Equal(d("10")))
	require.True(t, ob.TotalDepth(false).Equal(d("10")))

	// CumulativeDepth(p, Bid) sums qty at price <= p — see DESIGN.md.
	cd100 := ob.CumulativeDepth(d("10.0"), true)
	cd99 := ob.CumulativeDepth(d("9.9"), true)
	cd98 := ob.CumulativeDepth(d("9.8"), true)
	require.True(t, cd100.Equal(d("10")))
	require.True(t, cd99.Equal(d("5")))
	require.True(t, cd98.Equal(d("2")))
	// Monotonically non-increasing as p decreases.
	require.True(t, cd100.GreaterThanOrEqual(cd99))
	require.True(t, cd99.GreaterThanOrEqual(cd98))
}

func TestMarketImpact_InsufficientLiquidityReturnsZero(t *testing.T) {
	ob := New(DefaultConfig())
	ob.ApplySnapshot(nil, []event.BookLevel{lvl("10.0", "1")}, 100)

	impact := ob.MarketImpact(d("5"), false)
	require.True(t, impact.IsZero())
}

func TestMarketImpact_WeightedAverage(t *testing.T) {
	ob := New(DefaultConfig())
	ob.ApplySnapshot(nil, []event.BookLevel{lvl("10.0", "1"), lvl("10.1", "1")}, 100)

	impact := ob.MarketImpact(d("2"), false)
	require.True(t, impact.Equal(d("10.05")))
}
