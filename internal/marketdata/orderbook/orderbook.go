// Package orderbook implements the price-indexed ladder described in
// spec §4.1: a gap-aware delta-applying order book with analytic
// queries. The ladder itself is grounded on the teacher's
// internal/orderbook/orderbook.go (decimalComparator + treemap.Map), now
// generalized away from a single Binance-specific book into a
// venue-agnostic component driven entirely through explicit sequence
// numbers.
package orderbook

import (
	"sort"
	"sync"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/shopspring/decimal"

	"github.com/sequex-io/marketsync/internal/marketdata/event"
)

// State is OrderBook's own internal lifecycle, independent of (and
// smaller-scoped than) ManagedOrderBook's SyncState.
type State int

const (
	StateEmpty State = iota
	StateSyncing
	StateSynchronized
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "Empty"
	case StateSyncing:
		return "Syncing"
	case StateSynchronized:
		return "Synchronized"
	default:
		return "Unknown"
	}
}

// UpdateResult is the discriminant returned by ApplyDelta/ApplyDeltas —
// the only error-shaped signal this package ever returns (§7: operations
// never abort; everything is reflected here or in counters).
type UpdateResult int

const (
	Applied UpdateResult = iota
	Buffered
	Duplicate
	GapDetected
	BufferOverflow
)

func (r UpdateResult) String() string {
	switch r {
	case Applied:
		return "Applied"
	case Buffered:
		return "Buffered"
	case Duplicate:
		return "Duplicate"
	case GapDetected:
		return "GapDetected"
	case BufferOverflow:
		return "BufferOverflow"
	default:
		return "Unknown"
	}
}

// Config carries the §6 configuration surface for OrderBook.
type Config struct {
	MaxBufferSize  int   // default 10_000
	MaxSequenceGap int64 // default 1_000
}

func DefaultConfig() Config {
	return Config{MaxBufferSize: 10_000, MaxSequenceGap: 1_000}
}

func decimalComparator(a, b interface{}) int {
	return a.(decimal.Decimal).Cmp(b.(decimal.Decimal))
}

// bufferedDelta is one pending entry in the post-snapshot, in-sequence
// gap buffer. It is logically a priority-queue entry ordered by
// FirstSequence (§9 "Buffer ordering"); this implementation keeps a
// plain slice and sorts on drain.
type bufferedDelta struct {
	bids, asks                []event.BookLevel
	firstSequence, finalSeq   int64
}

// OrderBook is a single symbol's price ladder. It is not safe for
// concurrent use from more than one goroutine without external
// synchronization beyond its own mutex — the mutex exists so a read
// (e.g. from an HTTP handler) can safely race a writer goroutine, not to
// promise lock-free concurrent mutation semantics.
type OrderBook struct {
	mu sync.RWMutex

	cfg Config

	bids treemap.Map // decimal.Decimal -> decimal.Decimal, descending read
	asks treemap.Map // decimal.Decimal -> decimal.Decimal, ascending read

	bidsCache []event.BookLevel // bids[0] highest price
	asksCache []event.BookLevel // asks[0] lowest price

	state            State
	sequence         int64 // last applied final_update_id
	expectedSequence int64

	pending []bufferedDelta

	gapCount       int64
	duplicateCount int64
}

func New(cfg Config) *OrderBook {
	return &OrderBook{
		cfg:   cfg,
		bids:  *treemap.NewWith(decimalComparator),
		asks:  *treemap.NewWith(decimalComparator),
		state: StateEmpty,
	}
}

func (ob *OrderBook) State() State {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.state
}

func (ob *OrderBook) Sequence() int64 {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.sequence
}

func (ob *OrderBook) GapCount() int64 {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.gapCount
}

func (ob *OrderBook) DuplicateCount() int64 {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.duplicateCount
}

// ApplySnapshot replaces the book wholesale (§4.1). Any buffered delta
// whose FinalSeq <= sequence is now stale and dropped; the rest are
// drained greedily in sequence order.
func (ob *OrderBook) ApplySnapshot(bids, asks []event.BookLevel, sequence int64) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	ob.bids.Clear()
	ob.asks.Clear()
	for _, lvl := range bids {
		if lvl.Qty.IsZero() {
			continue
		}
		ob.bids.Put(lvl.Price, lvl.Qty)
	}
	for _, lvl := range asks {
		if lvl.Qty.IsZero() {
			continue
		}
		ob.asks.Put(lvl.Price, lvl.Qty)
	}

	ob.sequence = sequence
	ob.expectedSequence = sequence + 1
	ob.state = StateSynchronized

	kept := ob.pending[:0]
	for _, bd := range ob.pending {
		if bd.finalSeq <= ob.sequence {
			continue // stale, dropped
		}
		kept = append(kept, bd)
	}
	ob.pending = kept

	ob.drainPendingLocked()
	ob.rebuildCaches()
}

// ApplyDelta applies a single-level update. Per the Open Question
// decision recorded in DESIGN.md, this is implemented in terms of
// ApplyDeltas with a one-element batch.
func (ob *OrderBook) ApplyDelta(level event.BookLevel, isBid bool, sequence int64) UpdateResult {
	if isBid {
		return ob.ApplyDeltas([]event.BookLevel{level}, nil, sequence, sequence)
	}
	return ob.ApplyDeltas(nil, []event.BookLevel{level}, sequence, sequence)
}

// ApplyDeltas applies a batched delta (§4.1). firstSequence must equal
// expectedSequence for immediate application; otherwise the batch is
// classified as Duplicate, Buffered, or GapDetected as a whole.
func (ob *OrderBook) ApplyDeltas(bids, asks []event.BookLevel, firstSequence, finalSequence int64) UpdateResult {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	switch {
	case ob.state != StateEmpty && firstSequence == ob.expectedSequence:
		ob.applyLevelsLocked(bids, asks)
		ob.sequence = finalSequence
		ob.expectedSequence = finalSequence + 1
		ob.state = StateSynchronized
		ob.drainPendingLocked()
		ob.rebuildCaches()
		return Applied

	case ob.state == StateEmpty:
		// No snapshot installed yet: treat as a pre-sync gap so the
		// caller's snapshot-request callback path (ManagedOrderBook)
		// has a chance to fetch one; buffer if there's room.
		return ob.bufferOrGapLocked(bids, asks, firstSequence, finalSequence)

	case firstSequence <= ob.sequence:
		ob.duplicateCount++
		return Duplicate

	default:
		return ob.bufferOrGapLocked(bids, asks, firstSequence, finalSequence)
	}
}

func (ob *OrderBook) bufferOrGapLocked(bids, asks []event.BookLevel, firstSequence, finalSequence int64) UpdateResult {
	gapSize := firstSequence - ob.expectedSequence
	if gapSize < 0 {
		gapSize = 0
	}

	if ob.state == StateEmpty || ob.state == StateSynchronized {
		ob.state = StateSyncing
	}

	if len(ob.pending) >= ob.cfg.MaxBufferSize {
		return BufferOverflow
	}

	entry := bufferedDelta{
		bids:          bids,
		asks:          asks,
		firstSequence: firstSequence,
		finalSeq:      finalSequence,
	}
	ob.pending = append(ob.pending, entry)

	if gapSize > ob.cfg.MaxSequenceGap {
		ob.gapCount++
		return GapDetected
	}

	return Buffered
}

// drainPendingLocked applies any buffered entry whose FirstSequence
// equals the current expectedSequence, repeating until no more entries
// qualify. Must be called with ob.mu held.
func (ob *OrderBook) drainPendingLocked() {
	for {
		sort.Slice(ob.pending, func(i, j int) bool {
			return ob.pending[i].firstSequence < ob.pending[j].firstSequence
		})

		applied := false
		remaining := ob.pending[:0]
		for _, bd := range ob.pending {
			switch {
			case bd.finalSeq <= ob.sequence:
				// stale, discard
			case bd.firstSequence == ob.expectedSequence:
				ob.applyLevelsLocked(bd.bids, bd.asks)
				ob.sequence = bd.finalSeq
				ob.expectedSequence = bd.finalSeq + 1
				applied = true
			default:
				remaining = append(remaining, bd) // ahead, keep
			}
		}
		ob.pending = remaining
		if !applied {
			break
		}
	}
	if len(ob.pending) == 0 && ob.state == StateSyncing {
		ob.state = StateSynchronized
	}
}

// applySynchronizingDeltaLocked force-installs a straddling/continuation delta
// during the ManagedOrderBook replay phase, bypassing the ordinary
// expectedSequence gate. See DESIGN.md "ManagedOrderBook replay installs
// bypass OrderBook's normal sequence gating" for why this exists.
func (ob *OrderBook) applySynchronizingDeltaLocked(bids, asks []event.BookLevel, finalSequence int64) {
	ob.applyLevelsLocked(bids, asks)
	ob.sequence = finalSequence
	ob.expectedSequence = finalSequence + 1
	ob.state = StateSynchronized
	ob.rebuildCaches()
}

// ApplySynchronizingDelta is the exported hook internal/marketdata/sync
// uses during its own buffered-replay protocol (§4.2 steps 3-5), where
// sequencing has already been validated by the caller.
func (ob *OrderBook) ApplySynchronizingDelta(bids, asks []event.BookLevel, finalSequence int64) {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	ob.applySynchronizingDeltaLocked(bids, asks, finalSequence)
}

// Reset clears the book back to Empty, releasing all buffered updates.
// Used by ManagedOrderBook when it enters Resynchronizing.
func (ob *OrderBook) Reset() {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	ob.bids.Clear()
	ob.asks.Clear()
	ob.bidsCache = nil
	ob.asksCache = nil
	ob.pending = nil
	ob.sequence = 0
	ob.expectedSequence = 0
	ob.state = StateEmpty
}

func (ob *OrderBook) applyLevelsLocked(bids, asks []event.BookLevel) {
	for _, lvl := range bids {
		if lvl.Qty.IsZero() {
			ob.bids.Remove(lvl.Price)
		} else {
			ob.bids.Put(lvl.Price, lvl.Qty)
		}
	}
	for _, lvl := range asks {
		if lvl.Qty.IsZero() {
			ob.asks.Remove(lvl.Price)
		} else {
			ob.asks.Put(lvl.Price, lvl.Qty)
		}
	}
}

// rebuildCaches rebuilds the ordered Vec caches (bids descending, asks
// ascending) per §3's cache invariant. Must be called with ob.mu held.
func (ob *OrderBook) rebuildCaches() {
	ob.asksCache = ob.asksCache[:0]
	it := ob.asks.Iterator()
	for it.Next() {
		ob.asksCache = append(ob.asksCache, event.NewBookLevel(it.Key().(decimal.Decimal), it.Value().(decimal.Decimal)))
	}

	ob.bidsCache = ob.bidsCache[:0]
	bit := ob.bids.Iterator()
	for bit.End(); bit.Prev(); {
		ob.bidsCache = append(ob.bidsCache, event.NewBookLevel(bit.Key().(decimal.Decimal), bit.Value().(decimal.Decimal)))
	}
}

// ---- read-only queries ----

func (ob *OrderBook) BestBid() (event.BookLevel, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	if len(ob.bidsCache) == 0 {
		return event.BookLevel{}, false
	}
	return ob.bidsCache[0], true
}

func (ob *OrderBook) BestAsk() (event.BookLevel, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	if len(ob.asksCache) == 0 {
		return event.BookLevel{}, false
	}
	return ob.asksCache[0], true
}

// Spread returns ask - bid, or zero if either side is empty.
func (ob *OrderBook) Spread() decimal.Decimal {
	bid, okB := ob.BestBid()
	ask, okA := ob.BestAsk()
	if !okB || !okA {
		return decimal.Zero
	}
	return ask.Price.Sub(bid.Price)
}

// MidPrice returns the midpoint of best bid/ask, or zero if either side
// is empty.
func (ob *OrderBook) MidPrice() decimal.Decimal {
	bid, okB := ob.BestBid()
	ask, okA := ob.BestAsk()
	if !okB || !okA {
		return decimal.Zero
	}
	return bid.Price.Add(ask.Price).Div(decimal.NewFromInt(2))
}

func (ob *OrderBook) DepthAtPrice(price decimal.Decimal, isBid bool) decimal.Decimal {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	m := &ob.asks
	if isBid {
		m = &ob.bids
	}
	if v, ok := m.Get(price); ok {
		return v.(decimal.Decimal)
	}
	return decimal.Zero
}

func (ob *OrderBook) TotalDepth(isBid bool) decimal.Decimal {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	cache := ob.asksCache
	if isBid {
		cache = ob.bidsCache
	}
	total := decimal.Zero
	for _, lvl := range cache {
		total = total.Add(lvl.Qty)
	}
	return total
}

// CumulativeDepth(p, side) sums qty over levels with price <= p, for
// either side uniformly. This is the one reading of the §8 "monotonically
// non-increasing as p decreases" invariant that holds for both sides;
// TestQueries_TotalAndCumulativeDepth in orderbook_test.go exercises it
// with concrete levels.
func (ob *OrderBook) CumulativeDepth(p decimal.Decimal, isBid bool) decimal.Decimal {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	cache := ob.asksCache
	if isBid {
		cache = ob.bidsCache
	}
	total := decimal.Zero
	for _, lvl := range cache {
		if lvl.Price.LessThanOrEqual(p) {
			total = total.Add(lvl.Qty)
		}
	}
	return total
}

// TopN returns the first n cached levels on the given side, clamped to
// the cache's size.
func (ob *OrderBook) TopN(isBid bool, n int) []event.BookLevel {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	cache := ob.asksCache
	if isBid {
		cache = ob.bidsCache
	}
	if n > len(cache) {
		n = len(cache)
	}
	out := make([]event.BookLevel, n)
	copy(out, cache[:n])
	return out
}

// walkWeighted accumulates a size-weighted average price over cache,
// stopping once qty units have been consumed. Returns (avgPrice,
// consumed, sufficientLiquidity).
func walkWeighted(cache []event.BookLevel, qty decimal.Decimal) (decimal.Decimal, decimal.Decimal, bool) {
	remaining := qty
	notional := decimal.Zero
	consumed := decimal.Zero
	for _, lvl := range cache {
		if remaining.LessThanOrEqual(decimal.Zero) {
			break
		}
		take := lvl.Qty
		if take.GreaterThan(remaining) {
			take = remaining
		}
		notional = notional.Add(lvl.Price.Mul(take))
		consumed = consumed.Add(take)
		remaining = remaining.Sub(take)
	}
	if remaining.GreaterThan(decimal.Zero) {
		return decimal.Zero, consumed, false
	}
	if consumed.IsZero() {
		return decimal.Zero, consumed, false
	}
	return notional.Div(consumed), consumed, true
}

// MarketImpact walks the book in execution order (asks ascending to buy,
// bids descending to sell) and returns the size-weighted average fill
// price for qty units, or zero if qty exceeds available liquidity.
func (ob *OrderBook) MarketImpact(qty decimal.Decimal, isBid bool) decimal.Decimal {
	ob.mu.RLock()
	cache := ob.asksCache
	if isBid {
		cache = ob.bidsCache
	}
	ob.mu.RUnlock()

	avg, _, ok := walkWeighted(cache, qty)
	if !ok {
		return decimal.Zero
	}
	return avg
}

// VolumeWeightedAveragePrice returns the weighted mean price of the
// first `depth` units of size on the given side, or zero if depth
// exceeds available liquidity.
func (ob *OrderBook) VolumeWeightedAveragePrice(isBid bool, depth decimal.Decimal) decimal.Decimal {
	return ob.MarketImpact(depth, isBid)
}

// LiquidityProfilePoint is one sample of cumulative depth at a price
// offset from the best price.
type LiquidityProfilePoint struct {
	Price decimal.Decimal
	Depth decimal.Decimal
}

// LiquidityProfile samples CumulativeDepth at fixed price steps starting
// at the best price and walking priceRange away from it (toward worse
// prices: downward for bids, upward for asks).
func (ob *OrderBook) LiquidityProfile(isBid bool, priceRange, step decimal.Decimal) []LiquidityProfilePoint {
	var best event.BookLevel
	var ok bool
	if isBid {
		best, ok = ob.BestBid()
	} else {
		best, ok = ob.BestAsk()
	}
	if !ok || step.LessThanOrEqual(decimal.Zero) {
		return nil
	}

	var points []LiquidityProfilePoint
	offset := decimal.Zero
	for offset.LessThanOrEqual(priceRange) {
		var price decimal.Decimal
		if isBid {
			price = best.Price.Sub(offset)
		} else {
			price = best.Price.Add(offset)
		}
		points = append(points, LiquidityProfilePoint{
			Price: price,
			Depth: ob.CumulativeDepth(price, isBid),
		})
		offset = offset.Add(step)
	}
	return points
}
