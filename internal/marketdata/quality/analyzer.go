// Package quality implements MarketQualityAnalyzer and DataSampler (§4.4):
// rolling-window anomaly detection plus a composite quality score, built
// in the same plain-struct style as the teacher's order-book code.
package quality

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/sequex-io/marketsync/internal/marketdata/event"
)

// AnomalyKind discriminates the detections this analyzer can produce.
type AnomalyKind int

const (
	PriceSpike AnomalyKind = iota
	VolumeSpike
	VolumeDrop
	SpreadWidening
	StaleData
	TimestampAnomaly
)

func (k AnomalyKind) String() string {
	switch k {
	case PriceSpike:
		return "PriceSpike"
	case VolumeSpike:
		return "VolumeSpike"
	case VolumeDrop:
		return "VolumeDrop"
	case SpreadWidening:
		return "SpreadWidening"
	case StaleData:
		return "StaleData"
	case TimestampAnomaly:
		return "TimestampAnomaly"
	default:
		return "Unknown"
	}
}

// Anomaly is one detected quality event. Expected/Actual carry the
// comparison that triggered the detection (e.g. the rolling mean vs. the
// triggering trade price for a PriceSpike); Description is the
// human-readable summary of that comparison.
type Anomaly struct {
	Kind        AnomalyKind
	Symbol      string
	Severity    float64 // clamped to [0,1]
	Expected    float64
	Actual      float64
	Description string
	TsMs        int64
}

// Config carries the §4.4/§6 configuration surface.
type Config struct {
	PriceLookbackCount   int
	VolumeLookbackCount  int
	PriceSpikeThreshold  float64
	VolumeSpikeMultiplier float64
	VolumeDropThreshold  float64
	MaxSpreadBps         float64
	StaleThresholdMs     int64
	MaxClockSkewMs       int64
	MaxAnomalyHistory    int

	WeightFreshness   float64
	WeightCompleteness float64
	WeightConsistency float64
	WeightReliability float64
}

func DefaultConfig() Config {
	return Config{
		PriceLookbackCount:    20,
		VolumeLookbackCount:   20,
		PriceSpikeThreshold:   0.05,
		VolumeSpikeMultiplier: 5,
		VolumeDropThreshold:   0.1,
		MaxSpreadBps:          100,
		StaleThresholdMs:      10_000,
		MaxClockSkewMs:        5_000,
		MaxAnomalyHistory:     1_000,
		WeightFreshness:       0.25,
		WeightCompleteness:    0.25,
		WeightConsistency:     0.25,
		WeightReliability:     0.25,
	}
}

// Score is the composite quality result, each field in [0,1].
type Score struct {
	Freshness    float64
	Completeness float64
	Consistency  float64
	Reliability  float64
	Overall      float64
}

type counters struct {
	eventsSeen       int64
	malformedEvents  int64
	gapsDetected     int64
	staleChecks      int64
	staleHits        int64
}

// Analyzer is one symbol's rolling-window quality tracker.
type Analyzer struct {
	symbol string
	cfg    Config

	mu            sync.Mutex
	priceWindow   []decimal.Decimal // ring, oldest overwritten first
	volumeWindow  []decimal.Decimal
	lastEventTsMs int64
	history       []Anomaly
	counters      counters

	onAnomaly func(Anomaly)
}

func New(symbol string, cfg Config) *Analyzer {
	return &Analyzer{symbol: symbol, cfg: cfg}
}

func (a *Analyzer) OnAnomaly(f func(Anomaly)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onAnomaly = f
}

func mean(xs []decimal.Decimal) decimal.Decimal {
	if len(xs) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, x := range xs {
		sum = sum.Add(x)
	}
	return sum.Div(decimal.NewFromInt(int64(len(xs))))
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// ProcessTrade runs the per-trade detections (PriceSpike, VolumeSpike,
// VolumeDrop) and appends to the rolling windows.
func (a *Analyzer) ProcessTrade(trade event.TradeData, nowMs int64) []Anomaly {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.counters.eventsSeen++
	a.lastEventTsMs = nowMs

	var out []Anomaly

	if len(a.priceWindow) > 0 {
		priceMean := mean(a.priceWindow)
		if !priceMean.IsZero() {
			change, _ := trade.Price.Sub(priceMean).Abs().Div(priceMean).Float64()
			if change > a.cfg.PriceSpikeThreshold {
				severity := clamp01(change / (a.cfg.PriceSpikeThreshold * 3))
				expected, _ := priceMean.Float64()
				actual, _ := trade.Price.Float64()
				out = append(out, a.record(Anomaly{
					Kind: PriceSpike, Symbol: a.symbol, Severity: severity,
					Expected: expected, Actual: actual,
					Description: fmt.Sprintf("price %.8f deviates %.2f%% from rolling mean %.8f", actual, change*100, expected),
					TsMs:        nowMs,
				}))
			}
		}
	}

	if len(a.volumeWindow) > 0 {
		volMean := mean(a.volumeWindow)
		if !volMean.IsZero() {
			ratio, _ := trade.Qty.Div(volMean).Float64()
			expected, _ := volMean.Float64()
			actual, _ := trade.Qty.Float64()
			if ratio > a.cfg.VolumeSpikeMultiplier {
				severity := clamp01(ratio / (a.cfg.VolumeSpikeMultiplier * 3))
				out = append(out, a.record(Anomaly{
					Kind: VolumeSpike, Symbol: a.symbol, Severity: severity,
					Expected: expected, Actual: actual,
					Description: fmt.Sprintf("volume %.8f is %.1fx the rolling mean %.8f", actual, ratio, expected),
					TsMs:        nowMs,
				}))
			} else if len(a.volumeWindow) >= 10 && ratio < a.cfg.VolumeDropThreshold {
				severity := clamp01(1 - ratio/a.cfg.VolumeDropThreshold)
				out = append(out, a.record(Anomaly{
					Kind: VolumeDrop, Symbol: a.symbol, Severity: severity,
					Expected: expected, Actual: actual,
					Description: fmt.Sprintf("volume %.8f dropped to %.1fx the rolling mean %.8f", actual, ratio, expected),
					TsMs:        nowMs,
				}))
			}
		}
	}

	a.priceWindow = pushBounded(a.priceWindow, trade.Price, a.cfg.PriceLookbackCount)
	a.volumeWindow = pushBounded(a.volumeWindow, trade.Qty, a.cfg.VolumeLookbackCount)

	return out
}

func pushBounded(xs []decimal.Decimal, v decimal.Decimal, max int) []decimal.Decimal {
	xs = append(xs, v)
	if max > 0 && len(xs) > max {
		xs = xs[len(xs)-max:]
	}
	return xs
}

// CheckSpread runs SpreadWidening against a live bid/ask.
func (a *Analyzer) CheckSpread(bid, ask decimal.Decimal, nowMs int64) []Anomaly {
	a.mu.Lock()
	defer a.mu.Unlock()

	if bid.IsZero() && ask.IsZero() {
		return nil
	}
	mid := bid.Add(ask).Div(decimal.NewFromInt(2))
	if mid.IsZero() {
		return nil
	}
	bps, _ := ask.Sub(bid).Div(mid).Mul(decimal.NewFromInt(10_000)).Float64()
	if bps > a.cfg.MaxSpreadBps {
		return []Anomaly{a.record(Anomaly{
			Kind: SpreadWidening, Symbol: a.symbol, Severity: clamp01(bps / (a.cfg.MaxSpreadBps * 3)),
			Expected: a.cfg.MaxSpreadBps, Actual: bps,
			Description: fmt.Sprintf("spread %.2fbps exceeds max %.2fbps", bps, a.cfg.MaxSpreadBps),
			TsMs:        nowMs,
		})}
	}
	return nil
}

// CheckStaleness implements the passive check_staleness(now) detection.
func (a *Analyzer) CheckStaleness(nowMs int64) []Anomaly {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.counters.staleChecks++
	if a.counters.eventsSeen == 0 {
		return nil
	}
	elapsed := nowMs - a.lastEventTsMs
	if elapsed > a.cfg.StaleThresholdMs {
		a.counters.staleHits++
		return []Anomaly{a.record(Anomaly{
			Kind: StaleData, Symbol: a.symbol, Severity: 1,
			Expected: float64(a.cfg.StaleThresholdMs), Actual: float64(elapsed),
			Description: fmt.Sprintf("no events for %dms, exceeds %dms threshold", elapsed, a.cfg.StaleThresholdMs),
			TsMs:        nowMs,
		})}
	}
	return nil
}

// CheckTimestamp implements TimestampAnomaly against a (event_ts, recv_ts) pair.
func (a *Analyzer) CheckTimestamp(eventTsMs, recvTsMs int64) []Anomaly {
	a.mu.Lock()
	defer a.mu.Unlock()

	skew := eventTsMs - recvTsMs
	if skew < 0 {
		skew = -skew
	}
	if skew > a.cfg.MaxClockSkewMs {
		return []Anomaly{a.record(Anomaly{
			Kind: TimestampAnomaly, Symbol: a.symbol, Severity: 1,
			Expected: float64(a.cfg.MaxClockSkewMs), Actual: float64(skew),
			Description: fmt.Sprintf("clock skew %dms exceeds max %dms", skew, a.cfg.MaxClockSkewMs),
			TsMs:        recvTsMs,
		})}
	}
	return nil
}

// record appends to the bounded history and fires the callback. Caller
// must hold a.mu.
func (a *Analyzer) record(an Anomaly) Anomaly {
	a.history = append(a.history, an)
	if len(a.history) > a.cfg.MaxAnomalyHistory {
		a.history = a.history[len(a.history)-a.cfg.MaxAnomalyHistory:]
	}
	if a.onAnomaly != nil {
		a.onAnomaly(an)
	}
	return an
}

// History returns the recorded anomaly history, oldest first.
func (a *Analyzer) History() []Anomaly {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Anomaly, len(a.history))
	copy(out, a.history)
	return out
}

// QualityScore computes the composite (freshness, completeness,
// consistency, reliability, overall) tuple from counter ratios.
func (a *Analyzer) QualityScore() Score {
	a.mu.Lock()
	defer a.mu.Unlock()

	freshness := 1.0
	if a.counters.staleChecks > 0 {
		freshness = 1 - float64(a.counters.staleHits)/float64(a.counters.staleChecks)
	}

	completeness := 1.0
	if a.counters.eventsSeen > 0 {
		completeness = 1 - float64(a.counters.malformedEvents)/float64(a.counters.eventsSeen)
	}

	consistency := 1.0
	if a.counters.eventsSeen > 0 {
		consistency = 1 - float64(a.counters.gapsDetected)/float64(a.counters.eventsSeen)
	}

	reliability := clamp01(1 - float64(len(a.history))/float64(max(1, a.cfg.MaxAnomalyHistory)))

	overall := clamp01(freshness)*a.cfg.WeightFreshness +
		clamp01(completeness)*a.cfg.WeightCompleteness +
		clamp01(consistency)*a.cfg.WeightConsistency +
		reliability*a.cfg.WeightReliability

	return Score{
		Freshness:    clamp01(freshness),
		Completeness: clamp01(completeness),
		Consistency:  clamp01(consistency),
		Reliability:  reliability,
		Overall:      clamp01(overall),
	}
}

// RecordGap and RecordMalformed feed the consistency/completeness ratios
// from outside (the sync/transport layers observe these, not this package).
func (a *Analyzer) RecordGap() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counters.gapsDetected++
}

func (a *Analyzer) RecordMalformed() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counters.malformedEvents++
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
