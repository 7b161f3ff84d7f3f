package sync

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sequex-io/marketsync/internal/marketdata/event"
)

func decStr(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func lvl(price, qty string) event.BookLevel {
	return event.NewBookLevel(decStr(price), decStr(qty))
}

type fakeFetcher struct {
	snap event.BookData
	err  error
}

func (f *fakeFetcher) FetchSnapshot(ctx context.Context, symbol string) (event.BookData, error) {
	return f.snap, f.err
}

func newTestManaged(fetcher SnapshotFetcher) *ManagedOrderBook {
	cfg := DefaultConfig()
	cfg.InitialBufferDelay = 0
	cfg.SnapshotRetryBackoff = 0
	return New("BTCUSDT", cfg, fetcher, zerolog.Nop())
}

// Invariant 6: is_synchronized() == true implies the most recently
// applied delta's final_update_id == order_book.sequence().
func TestManagedOrderBook_SynchronizedImpliesSequenceMatches(t *testing.T) {
	fetcher := &fakeFetcher{snap: event.BookData{
		Bids:     []event.BookLevel{lvl("10.0", "1")},
		Asks:     []event.BookLevel{lvl("10.1", "1")},
		Sequence: 500,
	}}
	m := newTestManaged(fetcher)
	m.Start(context.Background())
	waitForState(t, m, Synchronized)

	m.OnDelta(event.BookData{Bids: []event.BookLevel{lvl("10.0", "2")}, FirstUpdateID: 501, Sequence: 501})

	require.True(t, m.IsSynchronized())
	require.Equal(t, m.lastAppliedFinal, m.OrderBook().Sequence())
}

// Boundary: a pre-sync delta with U == Ls (not Ls+1) must not be treated
// as the replay's first accepted delta.
func TestManagedOrderBook_ReplayRejectsDeltaAtLs(t *testing.T) {
	fetcher := &fakeFetcher{snap: event.BookData{Sequence: 500}}
	m := newTestManaged(fetcher)

	m.mu.Lock()
	m.state = Buffering
	m.mu.Unlock()
	m.OnDelta(event.BookData{FirstUpdateID: 500, Sequence: 500})

	m.mu.Lock()
	m.installSnapshotLocked(fetcher.snap)
	m.mu.Unlock()

	require.Equal(t, int64(500), m.OrderBook().Sequence())
}

func TestManagedOrderBook_ReplayAcceptsStraddlingDelta(t *testing.T) {
	snap := event.BookData{Sequence: 500}
	m := newTestManaged(&fakeFetcher{snap: snap})

	m.mu.Lock()
	m.state = Buffering
	m.mu.Unlock()
	m.OnDelta(event.BookData{Bids: []event.BookLevel{lvl("9.9", "2")}, FirstUpdateID: 498, Sequence: 501})
	m.OnDelta(event.BookData{Bids: []event.BookLevel{lvl("10.0", "1")}, FirstUpdateID: 502, Sequence: 503})

	m.mu.Lock()
	m.installSnapshotLocked(snap)
	m.mu.Unlock()

	require.Equal(t, Synchronized, m.State())
	require.Equal(t, int64(503), m.OrderBook().Sequence())
}

func TestManagedOrderBook_OnDeltaBeforeStartIsDropped(t *testing.T) {
	m := newTestManaged(&fakeFetcher{snap: event.BookData{Sequence: 1}})
	m.OnDelta(event.BookData{FirstUpdateID: 1, Sequence: 1})
	require.Equal(t, Disconnected, m.State())
}

func waitForState(t *testing.T, m *ManagedOrderBook, want SyncState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("state = %v, want %v", m.State(), want)
}
