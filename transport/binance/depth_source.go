// Package binance adapts the trimmed pkg/exchange/binance websocket
// client into the two external collaborators the core expects (§6):
// a DeltaSource feeding MarketEvent envelopes, and a SnapshotFetcher
// pulling REST depth snapshots via go-resty.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	sqxbinance "github.com/sequex-io/marketsync/pkg/exchange/binance"

	"github.com/sequex-io/marketsync/internal/marketdata/event"
	"github.com/sequex-io/marketsync/internal/marketdata/marketerr"
	"github.com/sequex-io/marketsync/internal/model/sqx"
)

// EventHandler is the on_event callback from §6's DeltaSource contract.
type EventHandler func(event.MarketEvent)

// DepthSource streams combined diff-depth + trade events for a set of
// symbols over a single multiplexed websocket connection.
type DepthSource struct {
	conn     *sqxbinance.WSConnection
	log      zerolog.Logger
	handler  EventHandler
	symbols  []string
}

func NewDepthSource(cfg *sqxbinance.Config, log zerolog.Logger, symbols []string) *DepthSource {
	return &DepthSource{
		conn:    sqxbinance.NewWSConnection(cfg),
		log:     log,
		symbols: symbols,
	}
}

// Subscribe registers the on_event callback and opens the connection,
// subscribing to each symbol's @depth and @trade combined streams.
func (d *DepthSource) Subscribe(ctx context.Context, handler EventHandler) error {
	d.handler = handler
	d.conn.SetMessageHandler(d.handleMessage)
	d.conn.SetErrorHandler(func(err error) {
		d.log.Warn().Err(err).Msg("binance websocket error")
	})

	if err := d.conn.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	streams := make([]string, 0, len(d.symbols)*2)
	for _, s := range d.symbols {
		lower := strings.ToLower(s)
		streams = append(streams, lower+"@depth@100ms", lower+"@trade")
	}
	return d.conn.Subscribe(streams)
}

func (d *DepthSource) Close() error {
	return d.conn.Disconnect()
}

type combinedFrame struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

func (d *DepthSource) handleMessage(raw []byte) {
	recvNs := time.Now().UnixNano()

	var frame combinedFrame
	payload := raw
	if err := json.Unmarshal(raw, &frame); err == nil && frame.Stream != "" {
		payload = frame.Data
	}

	var probe struct {
		EventType string `json:"e"`
		Symbol    string `json:"s"`
		EventTime int64  `json:"E"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		d.log.Warn().Err(marketerr.Wrap(marketerr.KindMalformedEvent, "", "probe frame", err)).Msg("malformed market event payload")
		return
	}

	switch probe.EventType {
	case "depthUpdate":
		var upd sqxbinance.WSDepthUpdate
		if err := json.Unmarshal(payload, &upd); err != nil {
			d.log.Warn().Err(marketerr.Wrap(marketerr.KindMalformedEvent, probe.Symbol, "depth update", err)).Msg("malformed depth update")
			return
		}
		d.emit(event.MarketEvent{
			Kind:         event.KindBookDelta,
			Venue:        sqx.ExchangeBinance,
			Symbol:       upd.Symbol,
			MarketKind:   sqx.InstrumentTypeSpot,
			TsExchangeNs: upd.EventTime * 1_000_000,
			TsRecvNs:     recvNs,
			Book: &event.BookData{
				Bids:          toLevels(upd.BidUpdates),
				Asks:          toLevels(upd.AskUpdates),
				Sequence:      upd.FinalUpdateId,
				FirstUpdateID: upd.FirstUpdateId,
				EventTimeMs:   upd.EventTime,
			},
		})

	case "trade":
		var tr sqxbinance.WSTrade
		if err := json.Unmarshal(payload, &tr); err != nil {
			d.log.Warn().Err(marketerr.Wrap(marketerr.KindMalformedEvent, probe.Symbol, "trade event", err)).Msg("malformed trade event")
			return
		}
		price, _ := decimal.NewFromString(tr.Price)
		qty, _ := decimal.NewFromString(tr.Quantity)
		d.emit(event.MarketEvent{
			Kind:         event.KindTrade,
			Venue:        sqx.ExchangeBinance,
			Symbol:       tr.Symbol,
			MarketKind:   sqx.InstrumentTypeSpot,
			TsExchangeNs: tr.EventTime * 1_000_000,
			TsRecvNs:     recvNs,
			Trade: &event.TradeData{
				TradeID:      tr.TradeId,
				Price:        price,
				Qty:          qty,
				IsBuyerMaker: tr.IsBuyerMaker,
				EventTimeMs:  tr.TradeTime,
			},
		})
	}
}

func (d *DepthSource) emit(evt event.MarketEvent) {
	if d.handler != nil {
		d.handler(evt)
	}
}

func toLevels(levels []sqxbinance.PriceLevel) []event.BookLevel {
	out := make([]event.BookLevel, 0, len(levels))
	for _, l := range levels {
		price, err := decimal.NewFromString(l[0])
		if err != nil {
			continue
		}
		qty, err := decimal.NewFromString(l[1])
		if err != nil {
			continue
		}
		out = append(out, event.NewBookLevel(price, qty))
	}
	return out
}

// SnapshotFetcher implements sync.SnapshotFetcher against Binance's REST
// depth endpoint via go-resty, grounded on the 0xtitan6-polymarket-mm
// client's resty usage pattern.
type SnapshotFetcher struct {
	client  *resty.Client
	baseURL string
}

func NewSnapshotFetcher(baseURL string, timeout time.Duration) *SnapshotFetcher {
	client := resty.New().SetTimeout(timeout)
	return &SnapshotFetcher{client: client, baseURL: baseURL}
}

type restDepthResponse struct {
	LastUpdateID int64                      `json:"lastUpdateId"`
	Bids         []sqxbinance.PriceLevel    `json:"bids"`
	Asks         []sqxbinance.PriceLevel    `json:"asks"`
}

func (f *SnapshotFetcher) FetchSnapshot(ctx context.Context, symbol string) (event.BookData, error) {
	var body restDepthResponse
	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"symbol": symbol, "limit": "1000"}).
		SetResult(&body).
		Get(f.baseURL + sqxbinance.EndpointOrderBook)
	if err != nil {
		return event.BookData{}, marketerr.Wrap(marketerr.KindSnapshotFetchFailure, symbol, "rest request", err)
	}
	if resp.IsError() {
		var apiErr sqxbinance.APIError
		if jsonErr := json.Unmarshal(resp.Body(), &apiErr); jsonErr != nil || apiErr.Code == 0 {
			return event.BookData{}, marketerr.New(marketerr.KindSnapshotFetchFailure, symbol, fmt.Sprintf("status %d: %s", resp.StatusCode(), resp.String()))
		}
		detail := fmt.Sprintf("status %d: %s", resp.StatusCode(), apiErr.Error())
		if sqxbinance.IsRetryableError(&apiErr) {
			detail += " (retryable)"
		}
		return event.BookData{}, marketerr.Wrap(marketerr.KindSnapshotFetchFailure, symbol, detail, &apiErr)
	}

	return event.BookData{
		Bids:       toLevels(body.Bids),
		Asks:       toLevels(body.Asks),
		Sequence:   body.LastUpdateID,
		IsSnapshot: true,
	}, nil
}
