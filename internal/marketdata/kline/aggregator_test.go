package kline

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sequex-io/marketsync/internal/marketdata/event"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func trade(price, qty string, isBuyerMaker bool) event.TradeData {
	return event.TradeData{Price: d(price), Qty: d(qty), IsBuyerMaker: isBuyerMaker}
}

func TestProcessTrade_OpensAndUpdatesWithinBucket(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnabledIntervals = []Interval{Interval1m}
	a := New("BTCUSDT", cfg)

	a.ProcessTrade(trade("100", "1", false), 0)
	a.ProcessTrade(trade("105", "2", true), 30_000)
	a.ProcessTrade(trade("95", "1", false), 59_999)

	cur, ok := a.CurrentKline(Interval1m)
	require.True(t, ok)
	require.True(t, cur.Open.Equal(d("100")))
	require.True(t, cur.High.Equal(d("105")))
	require.True(t, cur.Low.Equal(d("95")))
	require.True(t, cur.Close.Equal(d("95")))
	require.True(t, cur.Volume.Equal(d("4")))
	require.Equal(t, int64(3), cur.TradeCount)

	wantVWAP := d("100").Mul(d("1")).Add(d("105").Mul(d("2"))).Add(d("95").Mul(d("1"))).Div(d("4"))
	require.True(t, cur.VWAP.Equal(wantVWAP))
}

func TestProcessTrade_ClosesOnBucketRollover(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnabledIntervals = []Interval{Interval1m}
	var closed []AggregatedKline
	a := New("BTCUSDT", cfg)
	a.OnClose(func(k AggregatedKline) { closed = append(closed, k) })

	a.ProcessTrade(trade("100", "1", false), 0)
	a.ProcessTrade(trade("110", "1", false), 60_000) // new bucket

	require.Len(t, closed, 1)
	require.True(t, closed[0].IsClosed)
	require.True(t, closed[0].Low.LessThanOrEqual(closed[0].Open))
	require.True(t, closed[0].High.GreaterThanOrEqual(closed[0].Close))

	hist := a.History(Interval1m, 10)
	require.Len(t, hist, 1)

	cur, ok := a.CurrentKline(Interval1m)
	require.True(t, ok)
	require.True(t, cur.Open.Equal(d("110")))
}

func TestHistory_TrimsToMaxAndOrdersNewestFirst(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnabledIntervals = []Interval{Interval1m}
	cfg.MaxHistoryPerInterval = 2
	a := New("BTCUSDT", cfg)

	for i := int64(0); i < 4; i++ {
		a.ProcessTrade(trade("100", "1", false), i*60_000)
	}
	a.ProcessTrade(trade("999", "1", false), 4*60_000) // forces the 4th close

	hist := a.History(Interval1m, 10)
	require.Len(t, hist, 2)
	require.True(t, hist[0].StartMs > hist[1].StartMs) // newest first
}

func TestRange_FiltersByStartMs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnabledIntervals = []Interval{Interval1m}
	a := New("BTCUSDT", cfg)
	for i := int64(0); i < 3; i++ {
		a.ProcessTrade(trade("100", "1", false), i*60_000)
	}
	a.ProcessTrade(trade("100", "1", false), 3*60_000)

	got := a.Range(Interval1m, 60_000, 120_000)
	require.Len(t, got, 2)
}
