package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCounters_IncrementIndependently(t *testing.T) {
	m := New()
	m.IncEvents()
	m.IncEvents()
	m.IncDrops()
	m.IncReconnects()
	m.IncGaps()

	require.Equal(t, int64(2), m.Events())
	require.Equal(t, int64(1), m.Drops())
	require.Equal(t, int64(1), m.Reconnects())
	require.Equal(t, int64(1), m.Gaps())
}

func TestPercentileNs_EmptyReturnsZero(t *testing.T) {
	m := New()
	require.Equal(t, int64(0), m.PercentileNs(50))
}

func TestPercentileNs_SortsAndSelects(t *testing.T) {
	m := New()
	for _, v := range []int64{100, 50, 200, 150, 10} {
		m.RecordLatency(v)
	}
	require.Equal(t, int64(10), m.PercentileNs(0))
	require.Equal(t, int64(200), m.PercentileNs(100))
}

func TestRecordLatency_RingOverwritesOldest(t *testing.T) {
	m := New()
	for i := 0; i < ringSize+10; i++ {
		m.RecordLatency(int64(i))
	}
	require.Equal(t, ringSize, m.SampleCount())
	// The oldest 10 samples (0..9) should have been evicted; minimum
	// observed value must be >= 10.
	require.GreaterOrEqual(t, m.PercentileNs(0), int64(10))
}
