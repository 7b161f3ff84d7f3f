package sqx

import (
	"strings"
)

// Exchange identifies the venue a MarketEvent originated from.
type Exchange int

const (
	ExchangeUnknown Exchange = iota
	ExchangeBinance
	ExchangeBinancePerp
	ExchangeBybit
)

func (e Exchange) String() string {
	return []string{"UNKNOWN", "BINANCE", "BINANCE_PERP", "BYBIT"}[e]
}

func NewExchange(exchange string) Exchange {
	switch strings.ToUpper(exchange) {
	case "BINANCE":
		return ExchangeBinance
	case "BINANCE_PERP":
		return ExchangeBinancePerp
	case "BYBIT":
		return ExchangeBybit
	}
	return ExchangeUnknown
}

// InstrumentType is the venue market segment (spot, perp, ...) a symbol
// trades on; it fills MarketEvent.MarketKind.
type InstrumentType int

const (
	InstrumentTypeUnknown InstrumentType = iota
	InstrumentTypeSpot
	InstrumentTypeMargin
	InstrumentTypePerp
	InstrumentTypeInverse
	InstrumentTypeFutures
	InstrumentTypeOption
)

func NewInstrumentType(instrumentType string) InstrumentType {
	switch strings.ToUpper(instrumentType) {
	case "SPOT":
		return InstrumentTypeSpot
	case "MARGIN":
		return InstrumentTypeMargin
	case "PERP":
		return InstrumentTypePerp
	case "INVERSE":
		return InstrumentTypeInverse
	case "FUTURES":
		return InstrumentTypeFutures
	case "OPTION":
		return InstrumentTypeOption
	}
	return InstrumentTypeUnknown
}

func (i InstrumentType) String() string {
	return []string{"UNKNOWN", "SPOT", "MARGIN", "PERP", "INVERSE", "FUTURES", "OPTION"}[i]
}

// DataType distinguishes the kind of market data a feed is configured to
// stream; its String() form is the event-type key used by the
// subscription manager and the bus's per-message accounting.
type DataType int

const (
	DataTypeUnknown DataType = iota
	DataTypeTrade
	DataTypeDepth
	DataTypeKline
)

func NewDataType(dataType string) DataType {
	switch strings.ToUpper(dataType) {
	case "TRADE":
		return DataTypeTrade
	case "DEPTH":
		return DataTypeDepth
	case "KLINE":
		return DataTypeKline
	}
	return DataTypeUnknown
}

func (d DataType) String() string {
	return []string{"UNKNOWN", "TRADE", "DEPTH", "KLINE"}[d]
}
