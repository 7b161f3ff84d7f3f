// Package event defines the value types that flow through the
// market-data pipeline: the wire-level book/trade/kline payloads and the
// tagged envelope that carries them from a transport into the core.
package event

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sequex-io/marketsync/internal/model/sqx"
)

// BookLevel is one price/quantity pair on either side of a book. A Qty of
// zero means "delete this level" when applied as part of a delta.
type BookLevel struct {
	Price decimal.Decimal
	Qty   decimal.Decimal
}

func NewBookLevel(price, qty decimal.Decimal) BookLevel {
	return BookLevel{Price: price, Qty: qty}
}

// BookData is an update batch: either a full snapshot or an incremental
// delta identified by a first/final update-id pair.
type BookData struct {
	Bids          []BookLevel
	Asks          []BookLevel
	Sequence      int64 // final_update_id (u)
	FirstUpdateID int64 // first_update_id (U)
	EventTimeMs   int64
	IsSnapshot    bool
}

// Valid reports whether the batch is structurally sound per the wire
// contract (§6): first_update_id <= sequence.
func (b BookData) Valid() bool {
	return b.FirstUpdateID <= b.Sequence
}

// TradeData is a single executed trade. IsBuyerMaker == true means the
// taker side was a seller.
type TradeData struct {
	TradeID      int64
	Price        decimal.Decimal
	Qty          decimal.Decimal
	IsBuyerMaker bool
	EventTimeMs  int64
}

// KlineData is a single OHLCV candle.
type KlineData struct {
	Open        decimal.Decimal
	High        decimal.Decimal
	Low         decimal.Decimal
	Close       decimal.Decimal
	Volume      decimal.Decimal
	StartTimeMs int64
	CloseTimeMs int64
}

// Kind discriminates the payload carried by a MarketEvent.
type Kind int

const (
	KindTrade Kind = iota
	KindBookTop
	KindBookDelta
	KindKline
	KindTicker
)

func (k Kind) String() string {
	switch k {
	case KindTrade:
		return "Trade"
	case KindBookTop:
		return "BookTop"
	case KindBookDelta:
		return "BookDelta"
	case KindKline:
		return "Kline"
	case KindTicker:
		return "Ticker"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// MarketEvent is the tagged envelope delivered by a DeltaSource. Exactly
// one of Trade/Book/Kline is populated, matching Kind.
type MarketEvent struct {
	Kind         Kind
	Venue        sqx.Exchange
	Symbol       string
	MarketKind   sqx.InstrumentType
	TsExchangeNs int64
	TsRecvNs     int64

	Trade *TradeData
	Book  *BookData
	Kline *KlineData
}
