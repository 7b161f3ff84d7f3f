// Package sync implements the ManagedOrderBook synchronization protocol
// from spec §4.2 — a Go generalization of the teacher's
// internal/orderbook/orderbook.go handleDepthEvent three-way switch
// (normal apply / stale drop / gap-triggered resnapshot) into the full
// Buffering -> FetchingSnapshot -> Synchronizing -> Synchronized ->
// Resynchronizing lifecycle, driven by injected DeltaSource/
// SnapshotFetcher collaborators (§6) instead of a concrete exchange SDK.
package sync

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sequex-io/marketsync/internal/marketdata/event"
	"github.com/sequex-io/marketsync/internal/marketdata/marketerr"
	"github.com/sequex-io/marketsync/internal/marketdata/orderbook"
)

// SyncState is ManagedOrderBook's own top-level lifecycle, distinct from
// (and coarser than) OrderBook's internal State.
type SyncState int

const (
	Disconnected SyncState = iota
	Buffering
	FetchingSnapshot
	Synchronizing
	Synchronized
	Resynchronizing
)

func (s SyncState) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Buffering:
		return "Buffering"
	case FetchingSnapshot:
		return "FetchingSnapshot"
	case Synchronizing:
		return "Synchronizing"
	case Synchronized:
		return "Synchronized"
	case Resynchronizing:
		return "Resynchronizing"
	default:
		return "Unknown"
	}
}

// SnapshotFetcher is the async hook ManagedOrderBook uses to pull a full
// depth snapshot for a symbol (§6).
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context, symbol string) (event.BookData, error)
}

// Config carries the §6 configuration surface for ManagedOrderBook.
type Config struct {
	MaxBufferSize        int
	MaxDepthLevels        int
	SnapshotTimeout       time.Duration
	InitialBufferDelay    time.Duration // "short configurable delay" in step 2
	SnapshotRetryBackoff  time.Duration
	OrderBook             orderbook.Config
}

func DefaultConfig() Config {
	return Config{
		MaxBufferSize:        10_000,
		MaxDepthLevels:       1_000,
		SnapshotTimeout:      5 * time.Second,
		InitialBufferDelay:   100 * time.Millisecond,
		SnapshotRetryBackoff: time.Second,
		OrderBook:            orderbook.DefaultConfig(),
	}
}

// Stats are ManagedOrderBook's externally observable counters.
type Stats struct {
	GapCount                  int64
	DroppedDeltaCount          int64
	ResyncCount                int64
	SnapshotFetchCount         int64
	SnapshotFetchFailureCount  int64
}

// ManagedOrderBook owns one OrderBook plus the bounded pre-sync FIFO of
// raw deltas received before a snapshot has been installed.
type ManagedOrderBook struct {
	symbol   string
	cfg      Config
	fetcher  SnapshotFetcher
	log      zerolog.Logger

	mu              sync.Mutex
	state           SyncState
	book            *orderbook.OrderBook
	preSyncBuffer   []event.BookData
	lastAppliedFinal int64 // previous applied replay delta's u, for step-4 continuity check
	stats           Stats

	onUpdate func(*orderbook.OrderBook)

	started bool
}

func New(symbol string, cfg Config, fetcher SnapshotFetcher, log zerolog.Logger) *ManagedOrderBook {
	return &ManagedOrderBook{
		symbol:  symbol,
		cfg:     cfg,
		fetcher: fetcher,
		log:     log.With().Str("symbol", symbol).Logger(),
		state:   Disconnected,
		book:    orderbook.New(cfg.OrderBook),
	}
}

// OnUpdate registers the callback fired on every accepted mutation,
// per §6 "Update callback: fn(&OrderBook)".
func (m *ManagedOrderBook) OnUpdate(f func(*orderbook.OrderBook)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdate = f
}

// Start transitions into Buffering and begins the snapshot-acquisition
// timer (§4.2 step 1-2). Safe to call once; a second call is a no-op.
func (m *ManagedOrderBook) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.state = Buffering
	m.mu.Unlock()

	go m.fetchSnapshotLoop(ctx)
}

// RequestResync forces the protocol to restart from step 1, clearing all
// local state (§4.2 "request_resync").
func (m *ManagedOrderBook) RequestResync(ctx context.Context) {
	m.mu.Lock()
	m.resyncLocked()
	m.mu.Unlock()
	go m.fetchSnapshotLoop(ctx)
}

func (m *ManagedOrderBook) resyncLocked() {
	m.book.Reset()
	m.preSyncBuffer = nil
	m.lastAppliedFinal = 0
	m.state = Buffering
	m.stats.ResyncCount++
}

// fetchSnapshotLoop waits the configured initial delay, then retries
// FetchSnapshot with backoff until it succeeds or the context is done
// (§4.2 step 2, §4.2 failure semantics "stay in FetchingSnapshot ->
// schedule retry -> transition back to Buffering between attempts").
func (m *ManagedOrderBook) fetchSnapshotLoop(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(m.cfg.InitialBufferDelay):
	}

	for {
		m.mu.Lock()
		if m.state == Synchronized {
			m.mu.Unlock()
			return
		}
		m.state = FetchingSnapshot
		m.mu.Unlock()

		fetchCtx, cancel := context.WithTimeout(ctx, m.cfg.SnapshotTimeout)
		snap, err := m.fetcher.FetchSnapshot(fetchCtx, m.symbol)
		cancel()

		m.mu.Lock()
		m.stats.SnapshotFetchCount++
		if err != nil {
			m.stats.SnapshotFetchFailureCount++
			wrapped := err
			if !errors.As(err, new(*marketerr.Error)) {
				wrapped = marketerr.Wrap(marketerr.KindSnapshotFetchFailure, m.symbol, "fetch snapshot", err)
			}
			m.log.Warn().Err(wrapped).Msg("snapshot fetch failed, returning to Buffering")
			m.state = Buffering
			m.mu.Unlock()

			select {
			case <-ctx.Done():
				return
			case <-time.After(m.cfg.SnapshotRetryBackoff):
			}
			continue
		}

		m.installSnapshotLocked(snap)
		m.mu.Unlock()
		return
	}
}

// installSnapshotLocked implements §4.2 steps 3-5: install the snapshot,
// sort the pre-sync buffer by U, find the first straddling delta, and
// replay forward until a gap, staleness, or buffer exhaustion.
func (m *ManagedOrderBook) installSnapshotLocked(snap event.BookData) {
	m.book.ApplySnapshot(snap.Bids, snap.Asks, snap.Sequence)
	m.state = Synchronizing

	ls := snap.Sequence
	sort.Slice(m.preSyncBuffer, func(i, j int) bool {
		return m.preSyncBuffer[i].FirstUpdateID < m.preSyncBuffer[j].FirstUpdateID
	})

	buffered := m.preSyncBuffer
	m.preSyncBuffer = nil

	appliedFirst := false
	prevFinal := ls

	for _, delta := range buffered {
		if delta.Sequence <= ls {
			continue // drop: final_update_id <= Ls
		}

		if !appliedFirst {
			if delta.FirstUpdateID <= ls+1 && delta.Sequence >= ls+1 {
				m.book.ApplySynchronizingDelta(delta.Bids, delta.Asks, delta.Sequence)
				prevFinal = delta.Sequence
				appliedFirst = true
			}
			// else: no qualifying first delta yet; keep waiting (buffer
			// was already drained from m.preSyncBuffer, so a delta that
			// doesn't qualify here is simply dropped — it predates Ls).
			continue
		}

		switch {
		case delta.FirstUpdateID == prevFinal+1:
			m.book.ApplySynchronizingDelta(delta.Bids, delta.Asks, delta.Sequence)
			prevFinal = delta.Sequence
		case delta.FirstUpdateID > prevFinal+1:
			m.stats.GapCount++
			// Stop replay here; remaining (now-stale-relative) entries
			// are discarded. Live deltas continue from prevFinal via the
			// book's own gap-aware ApplyDeltas below.
			buffered = nil
		default:
			// stale continuation, drop and keep scanning forward
		}
		if buffered == nil {
			break
		}
	}

	m.lastAppliedFinal = prevFinal
	m.state = Synchronized
	m.fireUpdateLocked()
}

// OnDelta is the entry point for every inbound delta (§4.2 "on_delta").
func (m *ManagedOrderBook) OnDelta(delta event.BookData) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case Disconnected:
		return // not started; drop

	case Buffering, FetchingSnapshot, Synchronizing:
		if len(m.preSyncBuffer) >= m.cfg.MaxBufferSize {
			m.preSyncBuffer = m.preSyncBuffer[1:] // drop oldest
			m.stats.DroppedDeltaCount++
		}
		m.preSyncBuffer = append(m.preSyncBuffer, delta)

	case Synchronized:
		res := m.book.ApplyDeltas(delta.Bids, delta.Asks, delta.FirstUpdateID, delta.Sequence)
		switch res {
		case orderbook.Applied:
			m.lastAppliedFinal = delta.Sequence
			m.fireUpdateLocked()
		case orderbook.GapDetected:
			m.stats.GapCount++
			gapErr := marketerr.New(marketerr.KindProtocolGap, m.symbol, "unrecoverable sequence gap")
			m.log.Warn().Err(gapErr).Int64("first_update_id", delta.FirstUpdateID).Msg("resynchronizing")
			m.state = Resynchronizing
			m.resyncLocked()
			go m.fetchSnapshotLoop(context.Background())
		case orderbook.BufferOverflow:
			m.stats.DroppedDeltaCount++
			m.log.Debug().Err(marketerr.New(marketerr.KindBufferOverflow, m.symbol, "pending-update buffer full")).Msg("dropped delta")
		}
		// Buffered/Duplicate: the book self-heals internally; nothing
		// further for the manager to do.

	case Resynchronizing:
		// A resync was just kicked off by a prior call; treat this
		// delta like any other pre-sync delta.
		if len(m.preSyncBuffer) >= m.cfg.MaxBufferSize {
			m.preSyncBuffer = m.preSyncBuffer[1:]
			m.stats.DroppedDeltaCount++
		}
		m.preSyncBuffer = append(m.preSyncBuffer, delta)
	}
}

func (m *ManagedOrderBook) fireUpdateLocked() {
	if m.onUpdate != nil {
		m.onUpdate(m.book)
	}
}

func (m *ManagedOrderBook) State() SyncState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *ManagedOrderBook) IsSynchronized() bool {
	return m.State() == Synchronized
}

func (m *ManagedOrderBook) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

func (m *ManagedOrderBook) OrderBook() *orderbook.OrderBook {
	return m.book
}

func (m *ManagedOrderBook) Symbol() string {
	return m.symbol
}
