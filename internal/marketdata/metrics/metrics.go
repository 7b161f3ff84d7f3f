// Package metrics implements MarketMetrics (§4.6): a bounded-ring
// latency sampler plus event/drop/reconnect/gap counters, in the same
// plain-struct style as the rest of the marketdata packages.
package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
)

const ringSize = 10_000

// Metrics owns one latency ring buffer and a set of atomic counters.
type Metrics struct {
	mu       sync.Mutex
	ring     [ringSize]int64
	count    int // number of valid samples (caps at ringSize)
	writeIdx int

	events     int64
	drops      int64
	reconnects int64
	gaps       int64
}

func New() *Metrics {
	return &Metrics{}
}

// RecordLatency pushes one latency sample (nanoseconds) into the ring,
// overwriting the oldest entry once full.
func (m *Metrics) RecordLatency(ns int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ring[m.writeIdx] = ns
	m.writeIdx = (m.writeIdx + 1) % ringSize
	if m.count < ringSize {
		m.count++
	}
}

func (m *Metrics) IncEvents()     { atomic.AddInt64(&m.events, 1) }
func (m *Metrics) IncDrops()      { atomic.AddInt64(&m.drops, 1) }
func (m *Metrics) IncReconnects() { atomic.AddInt64(&m.reconnects, 1) }
func (m *Metrics) IncGaps()       { atomic.AddInt64(&m.gaps, 1) }

func (m *Metrics) Events() int64     { return atomic.LoadInt64(&m.events) }
func (m *Metrics) Drops() int64      { return atomic.LoadInt64(&m.drops) }
func (m *Metrics) Reconnects() int64 { return atomic.LoadInt64(&m.reconnects) }
func (m *Metrics) Gaps() int64       { return atomic.LoadInt64(&m.gaps) }

// PercentileNs copies and sorts the ring, then returns the value at
// percentile p (0..100). Returns 0 if no samples have been recorded.
func (m *Metrics) PercentileNs(p float64) int64 {
	m.mu.Lock()
	n := m.count
	samples := make([]int64, n)
	if n == ringSize {
		copy(samples, m.ring[:])
	} else {
		copy(samples, m.ring[:n])
	}
	m.mu.Unlock()

	if n == 0 {
		return 0
	}

	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })

	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[n-1]
	}
	idx := int(p / 100 * float64(n))
	if idx >= n {
		idx = n - 1
	}
	return samples[idx]
}

// SampleCount reports how many latency samples are currently held.
func (m *Metrics) SampleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}
