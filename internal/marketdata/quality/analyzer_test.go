package quality

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sequex-io/marketsync/internal/marketdata/event"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func trade(price, qty string) event.TradeData {
	return event.TradeData{Price: d(price), Qty: d(qty)}
}

func fillWindow(a *Analyzer, price, qty string, n int) {
	for i := 0; i < n; i++ {
		a.ProcessTrade(trade(price, qty), int64(i))
	}
}

func TestProcessTrade_PriceSpikeDetected(t *testing.T) {
	a := New("BTCUSDT", DefaultConfig())
	fillWindow(a, "100", "1", 20)

	anomalies := a.ProcessTrade(trade("110", "1"), 100) // 10% move > 5% threshold
	require.Len(t, anomalies, 1)
	require.Equal(t, PriceSpike, anomalies[0].Kind)
	require.LessOrEqual(t, anomalies[0].Severity, 1.0)
	require.Equal(t, 100.0, anomalies[0].Expected)
	require.Equal(t, 110.0, anomalies[0].Actual)
	require.NotEmpty(t, anomalies[0].Description)
}

func TestProcessTrade_NoSpikeWithinThreshold(t *testing.T) {
	a := New("BTCUSDT", DefaultConfig())
	fillWindow(a, "100", "1", 20)

	anomalies := a.ProcessTrade(trade("101", "1"), 100) // 1% move
	require.Empty(t, anomalies)
}

func TestProcessTrade_VolumeDropRequiresTenSamples(t *testing.T) {
	a := New("BTCUSDT", DefaultConfig())
	fillWindow(a, "100", "10", 5) // < 10 samples
	anomalies := a.ProcessTrade(trade("100", "0.1"), 100)
	require.Empty(t, anomalies)

	fillWindow(a, "100", "10", 10) // now >= 10 samples total
	anomalies = a.ProcessTrade(trade("100", "0.1"), 200)
	require.Len(t, anomalies, 1)
	require.Equal(t, VolumeDrop, anomalies[0].Kind)
}

func TestCheckSpread_WideningDetected(t *testing.T) {
	a := New("BTCUSDT", DefaultConfig())
	anomalies := a.CheckSpread(d("100"), d("102"), 0) // ~198bps > 100bps default
	require.Len(t, anomalies, 1)
	require.Equal(t, SpreadWidening, anomalies[0].Kind)
}

func TestCheckStaleness_FiresAfterThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StaleThresholdMs = 1_000
	a := New("BTCUSDT", cfg)
	a.ProcessTrade(trade("100", "1"), 0)

	require.Empty(t, a.CheckStaleness(500))
	anomalies := a.CheckStaleness(2_000)
	require.Len(t, anomalies, 1)
	require.Equal(t, StaleData, anomalies[0].Kind)
}

func TestCheckTimestamp_SkewDetected(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxClockSkewMs = 100
	a := New("BTCUSDT", cfg)

	require.Empty(t, a.CheckTimestamp(1000, 1050))
	anomalies := a.CheckTimestamp(1000, 2000)
	require.Len(t, anomalies, 1)
	require.Equal(t, TimestampAnomaly, anomalies[0].Kind)
}

func TestQualityScore_BoundedInZeroOne(t *testing.T) {
	a := New("BTCUSDT", DefaultConfig())
	fillWindow(a, "100", "1", 5)
	a.RecordGap()
	a.RecordMalformed()
	a.CheckStaleness(0)

	score := a.QualityScore()
	for _, v := range []float64{score.Freshness, score.Completeness, score.Consistency, score.Reliability, score.Overall} {
		require.GreaterOrEqual(t, v, 0.0)
		require.LessOrEqual(t, v, 1.0)
	}
}

func TestAnomalyHistory_BoundedAtMaxAnomalyHistory(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxAnomalyHistory = 5
	a := New("BTCUSDT", cfg)
	for i := 0; i < 10; i++ {
		a.record(Anomaly{Kind: PriceSpike, Symbol: "BTCUSDT"})
	}
	require.Len(t, a.History(), 5)
}

func TestDataSampler_TimeInterval(t *testing.T) {
	s := NewDataSampler(SamplerConfig{Strategy: SampleTimeInterval, IntervalMs: 1000})
	require.True(t, s.Accept(0, d("100")))
	require.False(t, s.Accept(500, d("100")))
	require.True(t, s.Accept(1000, d("100")))
}

func TestDataSampler_CountInterval(t *testing.T) {
	s := NewDataSampler(SamplerConfig{Strategy: SampleCountInterval, CountInterval: 3})
	var accepted []bool
	for i := 0; i < 6; i++ {
		accepted = append(accepted, s.Accept(int64(i), d("100")))
	}
	require.Equal(t, []bool{true, false, false, true, false, false}, accepted)
}

func TestDataSampler_Adaptive(t *testing.T) {
	s := NewDataSampler(SamplerConfig{Strategy: SampleAdaptive, VolatilityThreshold: 0.05, IntervalMs: 1000})
	require.True(t, s.Accept(0, d("100")))
	require.False(t, s.Accept(100, d("101"))) // 1% move, no interval elapsed
	require.True(t, s.Accept(200, d("110")))  // 10% move
}
