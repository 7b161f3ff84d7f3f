// Package kline folds a trade stream into OHLCV candlesticks across
// several pre-enabled timeframes (§4.3), in the same plain-struct /
// receiver-method style as the teacher's internal/orderbook/orderbook.go.
package kline

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/sequex-io/marketsync/internal/marketdata/event"
)

// Interval identifies one of the fixed candle timeframes.
type Interval int

const (
	Interval1m Interval = iota
	Interval5m
	Interval15m
	Interval30m
	Interval1h
	Interval4h
	Interval1d
)

var allIntervals = []Interval{Interval1m, Interval5m, Interval15m, Interval30m, Interval1h, Interval4h, Interval1d}

func (i Interval) String() string {
	switch i {
	case Interval1m:
		return "1m"
	case Interval5m:
		return "5m"
	case Interval15m:
		return "15m"
	case Interval30m:
		return "30m"
	case Interval1h:
		return "1h"
	case Interval4h:
		return "4h"
	case Interval1d:
		return "1d"
	default:
		return "unknown"
	}
}

func (i Interval) Millis() int64 {
	switch i {
	case Interval1m:
		return 60_000
	case Interval5m:
		return 5 * 60_000
	case Interval15m:
		return 15 * 60_000
	case Interval30m:
		return 30 * 60_000
	case Interval1h:
		return 60 * 60_000
	case Interval4h:
		return 4 * 60 * 60_000
	case Interval1d:
		return 24 * 60 * 60_000
	default:
		return 0
	}
}

// AggregatedKline is one OHLCV candle, open or closed.
type AggregatedKline struct {
	Interval    Interval
	StartMs     int64
	Open        decimal.Decimal
	High        decimal.Decimal
	Low         decimal.Decimal
	Close       decimal.Decimal
	Volume      decimal.Decimal
	BuyVolume   decimal.Decimal
	SellVolume  decimal.Decimal
	VWAP        decimal.Decimal
	TradeCount  int64
	IsClosed    bool

	notional decimal.Decimal // running Σ(price*qty), internal VWAP accumulator
}

// Config carries the §6 configuration surface for KlineAggregator.
type Config struct {
	MaxHistoryPerInterval int
	EmitOnUpdate          bool
	EmitOnClose           bool
	EnabledIntervals      []Interval // nil/empty means all of allIntervals
}

func DefaultConfig() Config {
	return Config{
		MaxHistoryPerInterval: 1_000,
		EmitOnUpdate:          false,
		EmitOnClose:           true,
	}
}

type intervalState struct {
	enabled bool
	current *AggregatedKline
	history []AggregatedKline // oldest first
}

// Aggregator owns one per-interval state set for a single symbol.
type Aggregator struct {
	symbol string
	cfg    Config

	mu     sync.Mutex
	states map[Interval]*intervalState

	onUpdate func(AggregatedKline)
	onClose  func(AggregatedKline)
}

func New(symbol string, cfg Config) *Aggregator {
	enabled := cfg.EnabledIntervals
	if len(enabled) == 0 {
		enabled = allIntervals
	}
	states := make(map[Interval]*intervalState, len(enabled))
	for _, iv := range enabled {
		states[iv] = &intervalState{enabled: true}
	}
	return &Aggregator{symbol: symbol, cfg: cfg, states: states}
}

func (a *Aggregator) OnUpdate(f func(AggregatedKline)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onUpdate = f
}

func (a *Aggregator) OnClose(f func(AggregatedKline)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onClose = f
}

// ProcessTrade implements §4.3's process_trade algorithm for every
// enabled interval.
func (a *Aggregator) ProcessTrade(trade event.TradeData, tsMs int64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for iv, st := range a.states {
		if !st.enabled {
			continue
		}
		a.processOne(iv, st, trade, tsMs)
	}
}

func (a *Aggregator) processOne(iv Interval, st *intervalState, trade event.TradeData, tsMs int64) {
	bucketStart := (tsMs / iv.Millis()) * iv.Millis()

	buyQty, sellQty := decimal.Zero, decimal.Zero
	if trade.IsBuyerMaker {
		sellQty = trade.Qty
	} else {
		buyQty = trade.Qty
	}

	switch {
	case st.current == nil:
		st.current = a.openCandle(iv, bucketStart, trade, buyQty, sellQty)

	case bucketStart > st.current.StartMs:
		a.closeCurrentLocked(st)
		st.current = a.openCandle(iv, bucketStart, trade, buyQty, sellQty)

	default:
		c := st.current
		if trade.Price.GreaterThan(c.High) {
			c.High = trade.Price
		}
		if trade.Price.LessThan(c.Low) {
			c.Low = trade.Price
		}
		c.Close = trade.Price
		c.Volume = c.Volume.Add(trade.Qty)
		c.BuyVolume = c.BuyVolume.Add(buyQty)
		c.SellVolume = c.SellVolume.Add(sellQty)
		c.TradeCount++
		c.notional = c.notional.Add(trade.Price.Mul(trade.Qty))
		if !c.Volume.IsZero() {
			c.VWAP = c.notional.Div(c.Volume)
		}
	}

	if a.cfg.EmitOnUpdate && a.onUpdate != nil {
		a.onUpdate(*st.current)
	}
}

func (a *Aggregator) openCandle(iv Interval, bucketStart int64, trade event.TradeData, buyQty, sellQty decimal.Decimal) *AggregatedKline {
	return &AggregatedKline{
		Interval:   iv,
		StartMs:    bucketStart,
		Open:       trade.Price,
		High:       trade.Price,
		Low:        trade.Price,
		Close:      trade.Price,
		Volume:     trade.Qty,
		BuyVolume:  buyQty,
		SellVolume: sellQty,
		VWAP:       trade.Price,
		TradeCount: 1,
		notional:   trade.Price.Mul(trade.Qty),
	}
}

func (a *Aggregator) closeCurrentLocked(st *intervalState) {
	closed := *st.current
	closed.IsClosed = true

	st.history = append(st.history, closed)
	if len(st.history) > a.cfg.MaxHistoryPerInterval {
		st.history = st.history[len(st.history)-a.cfg.MaxHistoryPerInterval:]
	}

	if a.cfg.EmitOnClose && a.onClose != nil {
		a.onClose(closed)
	}
}

// CurrentKline returns the in-progress candle for an interval, if any.
func (a *Aggregator) CurrentKline(iv Interval) (AggregatedKline, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.states[iv]
	if !ok || st.current == nil {
		return AggregatedKline{}, false
	}
	return *st.current, true
}

// History returns the `count` most recently closed candles, newest first.
func (a *Aggregator) History(iv Interval, count int) []AggregatedKline {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.states[iv]
	if !ok || len(st.history) == 0 {
		return nil
	}
	n := count
	if n > len(st.history) || n <= 0 {
		n = len(st.history)
	}
	out := make([]AggregatedKline, n)
	for i := 0; i < n; i++ {
		out[i] = st.history[len(st.history)-1-i]
	}
	return out
}

// Range returns closed candles whose start falls within [startMs, endMs].
func (a *Aggregator) Range(iv Interval, startMs, endMs int64) []AggregatedKline {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.states[iv]
	if !ok {
		return nil
	}
	var out []AggregatedKline
	for _, k := range st.history {
		if k.StartMs >= startMs && k.StartMs <= endMs {
			out = append(out, k)
		}
	}
	return out
}
