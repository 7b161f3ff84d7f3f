// Package bus fans the raw event stream from a single transport out to
// the managed order-book pool and the three auxiliary consumers
// (KlineAggregator, MarketQualityAnalyzer, MarketMetrics), the same
// in-process publish/subscribe shape as the teacher's
// internal/orderbook/orderbookmanager.go BinanceOrderBookManager, but
// generalized to venue-agnostic MarketEvent envelopes instead of a
// single hard-coded exchange type.
package bus

import (
	"fmt"
	"sync"

	evbus "github.com/asaskevich/EventBus"
	"github.com/rs/zerolog"

	"github.com/sequex-io/marketsync/internal/marketdata/event"
	"github.com/sequex-io/marketsync/internal/marketdata/kline"
	"github.com/sequex-io/marketsync/internal/marketdata/metrics"
	"github.com/sequex-io/marketsync/internal/marketdata/quality"
	"github.com/sequex-io/marketsync/internal/marketdata/subscription"
	syncbook "github.com/sequex-io/marketsync/internal/marketdata/sync"
	"github.com/sequex-io/marketsync/internal/model/sqx"
)

func bookChannel(symbol string) string  { return fmt.Sprintf("%s:book", symbol) }
func tradeChannel(symbol string) string { return fmt.Sprintf("%s:trade", symbol) }

// Bus wires one symbol's ManagedOrderBook, KlineAggregator and
// quality.Analyzer to a shared event bus and metrics recorder. The
// registration maps are guarded by mu since Register/Unregister run on
// the owning event loop while HTTP handlers (api/marketdata) read them
// from another goroutine.
type Bus struct {
	eb      evbus.Bus
	log     zerolog.Logger
	metrics *metrics.Metrics
	subs    *subscription.Manager

	mu      sync.RWMutex
	managed map[string]*syncbook.ManagedOrderBook
	klines  map[string]*kline.Aggregator
	quals   map[string]*quality.Analyzer

	bookHandlers  map[string]func(event.BookData)
	tradeHandlers map[string]func(event.TradeData, int64)
}

// New wires a Bus to the shared metrics recorder and, when non-nil, a
// subscription.Manager whose (symbol, event_type) entries get their
// message_count/last_update_ns bumped as events flow through Publish.
func New(log zerolog.Logger, m *metrics.Metrics, subs *subscription.Manager) *Bus {
	return &Bus{
		eb:            evbus.New(),
		log:           log,
		metrics:       m,
		subs:          subs,
		managed:       make(map[string]*syncbook.ManagedOrderBook),
		klines:        make(map[string]*kline.Aggregator),
		quals:         make(map[string]*quality.Analyzer),
		bookHandlers:  make(map[string]func(event.BookData)),
		tradeHandlers: make(map[string]func(event.TradeData, int64)),
	}
}

// Register attaches a symbol's consumers and subscribes them to the bus
// channels that Publish will fan events into. sampler, if non-nil, gates
// which trades reach qa (kline aggregation always sees every trade, since
// VWAP/volume need the full stream).
func (b *Bus) Register(symbol string, mob *syncbook.ManagedOrderBook, agg *kline.Aggregator, qa *quality.Analyzer, sampler *quality.DataSampler) error {
	b.mu.Lock()
	b.managed[symbol] = mob
	b.klines[symbol] = agg
	b.quals[symbol] = qa
	b.mu.Unlock()

	bookHandler := func(data event.BookData) {
		mob.OnDelta(data)
	}
	tradeHandler := func(trade event.TradeData, tsMs int64) {
		agg.ProcessTrade(trade, tsMs)
		if sampler == nil || sampler.Accept(tsMs, trade.Price) {
			anomalies := qa.ProcessTrade(trade, tsMs)
			for _, an := range anomalies {
				b.log.Debug().Str("symbol", symbol).Str("kind", an.Kind.String()).Msg("anomaly detected")
			}
		}
	}

	if err := b.eb.SubscribeAsync(bookChannel(symbol), bookHandler, false); err != nil {
		return err
	}
	if err := b.eb.SubscribeAsync(tradeChannel(symbol), tradeHandler, false); err != nil {
		return err
	}

	b.mu.Lock()
	b.bookHandlers[symbol] = bookHandler
	b.tradeHandlers[symbol] = tradeHandler
	b.mu.Unlock()
	return nil
}

// Unregister detaches a symbol's consumers from the bus.
func (b *Bus) Unregister(symbol string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if h, ok := b.bookHandlers[symbol]; ok {
		b.eb.Unsubscribe(bookChannel(symbol), h)
		delete(b.bookHandlers, symbol)
	}
	if h, ok := b.tradeHandlers[symbol]; ok {
		b.eb.Unsubscribe(tradeChannel(symbol), h)
		delete(b.tradeHandlers, symbol)
	}
	delete(b.managed, symbol)
	delete(b.klines, symbol)
	delete(b.quals, symbol)
}

// Publish is the DeltaSource callback: it routes a MarketEvent to the
// right channel and bumps the shared metrics counters.
func (b *Bus) Publish(evt event.MarketEvent) {
	b.metrics.IncEvents()

	switch evt.Kind {
	case event.KindBookDelta, event.KindBookTop:
		if evt.Book == nil {
			return
		}
		b.recordMessage(evt.Symbol, sqx.DataTypeDepth.String(), evt.TsRecvNs)
		b.eb.Publish(bookChannel(evt.Symbol), *evt.Book)
	case event.KindTrade:
		if evt.Trade == nil {
			return
		}
		b.recordMessage(evt.Symbol, sqx.DataTypeTrade.String(), evt.TsRecvNs)
		b.eb.Publish(tradeChannel(evt.Symbol), *evt.Trade, evt.TsExchangeNs/1_000_000)
	}
}

func (b *Bus) recordMessage(symbol, eventType string, tsRecvNs int64) {
	if b.subs != nil {
		b.subs.RecordMessage(symbol, eventType, tsRecvNs)
	}
}

func (b *Bus) ManagedOrderBook(symbol string) (*syncbook.ManagedOrderBook, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	m, ok := b.managed[symbol]
	return m, ok
}

func (b *Bus) KlineAggregator(symbol string) (*kline.Aggregator, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	k, ok := b.klines[symbol]
	return k, ok
}

func (b *Bus) QualityAnalyzer(symbol string) (*quality.Analyzer, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.quals[symbol]
	return q, ok
}
