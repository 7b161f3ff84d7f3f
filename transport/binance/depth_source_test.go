package binance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/sequex-io/marketsync/internal/marketdata/event"
	"github.com/sequex-io/marketsync/internal/model/sqx"
	sqxbinance "github.com/sequex-io/marketsync/pkg/exchange/binance"
)

func TestHandleMessage_DepthUpdateEmitsBookDelta(t *testing.T) {
	d := &DepthSource{log: zerolog.Nop()}
	var got event.MarketEvent
	d.handler = func(e event.MarketEvent) { got = e }

	payload := []byte(`{"e":"depthUpdate","E":123456,"s":"BTCUSDT","U":100,"u":105,"b":[["10.0","1.5"]],"a":[["10.1","2.0"]]}`)
	d.handleMessage(payload)

	require.Equal(t, event.KindBookDelta, got.Kind)
	require.Equal(t, "BTCUSDT", got.Symbol)
	require.NotNil(t, got.Book)
	require.Equal(t, int64(100), got.Book.FirstUpdateID)
	require.Equal(t, int64(105), got.Book.Sequence)
	require.Len(t, got.Book.Bids, 1)
	require.Equal(t, sqx.ExchangeBinance, got.Venue)
	require.Equal(t, sqx.InstrumentTypeSpot, got.MarketKind)
}

func TestHandleMessage_TradeEmitsTradeEvent(t *testing.T) {
	d := &DepthSource{log: zerolog.Nop()}
	var got event.MarketEvent
	d.handler = func(e event.MarketEvent) { got = e }

	payload := []byte(`{"e":"trade","E":123456,"s":"BTCUSDT","t":999,"p":"10.5","q":"0.5","T":123400,"m":true}`)
	d.handleMessage(payload)

	require.Equal(t, event.KindTrade, got.Kind)
	require.NotNil(t, got.Trade)
	require.Equal(t, int64(999), got.Trade.TradeID)
	require.True(t, got.Trade.IsBuyerMaker)
}

func TestHandleMessage_CombinedStreamFrameUnwrapped(t *testing.T) {
	d := &DepthSource{log: zerolog.Nop()}
	var got event.MarketEvent
	d.handler = func(e event.MarketEvent) { got = e }

	payload := []byte(`{"stream":"btcusdt@trade","data":{"e":"trade","E":1,"s":"BTCUSDT","t":1,"p":"1","q":"1","T":1,"m":false}}`)
	d.handleMessage(payload)

	require.Equal(t, event.KindTrade, got.Kind)
	require.Equal(t, "BTCUSDT", got.Symbol)
}

func TestHandleMessage_MalformedPayloadDropped(t *testing.T) {
	d := &DepthSource{log: zerolog.Nop()}
	called := false
	d.handler = func(e event.MarketEvent) { called = true }

	d.handleMessage([]byte(`not json`))
	require.False(t, called)
}

func TestFetchSnapshot_RetryableAPIErrorWrapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"code":-1003,"msg":"Too many requests."}`))
	}))
	defer srv.Close()

	f := NewSnapshotFetcher(srv.URL, time.Second)
	_, err := f.FetchSnapshot(context.Background(), "BTCUSDT")
	require.Error(t, err)

	var apiErr *sqxbinance.APIError
	require.True(t, errors.As(err, &apiErr))
	require.True(t, sqxbinance.IsRetryableError(apiErr))
}

func TestToLevels_SkipsUnparsableEntries(t *testing.T) {
	levels := toLevels([]sqxbinance.PriceLevel{{"10.0", "1"}, {"bad", "1"}})
	require.Len(t, levels, 1)
}
