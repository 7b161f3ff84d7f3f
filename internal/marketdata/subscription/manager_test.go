package subscription

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubscribe_FirstSubscriberCreatesPendingEntry(t *testing.T) {
	m := New(DefaultConfig())
	ok := m.Subscribe("BTCUSDT", "depth", "sub1")
	require.True(t, ok)

	state, found := m.State("BTCUSDT", "depth")
	require.True(t, found)
	require.Equal(t, Pending, state)
	require.Equal(t, 1, m.SubscriberCount("BTCUSDT", "depth"))
}

func TestSubscribe_IsIdempotent(t *testing.T) {
	m := New(DefaultConfig())
	require.True(t, m.Subscribe("BTCUSDT", "depth", "sub1"))
	require.True(t, m.Subscribe("BTCUSDT", "depth", "sub1"))
	require.Equal(t, 1, m.SubscriberCount("BTCUSDT", "depth"))
}

func TestUnsubscribe_RemovesEntryWhenSetEmpty(t *testing.T) {
	m := New(DefaultConfig())
	m.Subscribe("BTCUSDT", "depth", "sub1")
	require.True(t, m.Unsubscribe("BTCUSDT", "depth", "sub1"))

	_, found := m.State("BTCUSDT", "depth")
	require.False(t, found)
}

func TestUnsubscribe_UnknownSubscriberIsNoop(t *testing.T) {
	m := New(DefaultConfig())
	require.False(t, m.Unsubscribe("BTCUSDT", "depth", "ghost"))
}

func TestUnsubscribe_FiresUnsubscribedTransition(t *testing.T) {
	m := New(DefaultConfig())
	m.Subscribe("BTCUSDT", "depth", "sub1")

	var lastNew State
	m.OnStateChange(func(symbol, eventType string, old, new State) {
		lastNew = new
	})
	m.Unsubscribe("BTCUSDT", "depth", "sub1")
	require.Equal(t, Unsubscribed, lastNew)
}

func TestRecordMessage_UpdatesCounters(t *testing.T) {
	m := New(DefaultConfig())
	m.Subscribe("BTCUSDT", "depth", "sub1")

	m.RecordMessage("BTCUSDT", "depth", 100)
	m.RecordMessage("BTCUSDT", "depth", 200)

	entry, ok := m.entries[key{"BTCUSDT", "depth"}]
	require.True(t, ok)
	require.Equal(t, int64(2), entry.MessageCount)
	require.Equal(t, int64(200), entry.LastUpdateNs)
}

func TestRecordMessage_NoopWithoutEntry(t *testing.T) {
	m := New(DefaultConfig())
	m.RecordMessage("BTCUSDT", "depth", 100) // no subscriber; must not panic
}

func TestConfirmSubscription_TransitionsPendingToActive(t *testing.T) {
	m := New(DefaultConfig())
	m.Subscribe("BTCUSDT", "depth", "sub1")
	m.ConfirmSubscription("BTCUSDT", "depth")

	state, _ := m.State("BTCUSDT", "depth")
	require.Equal(t, Active, state)
}

func TestMarkError_TransitionsToError(t *testing.T) {
	m := New(DefaultConfig())
	m.Subscribe("BTCUSDT", "depth", "sub1")
	m.MarkError("BTCUSDT", "depth", "boom")

	state, _ := m.State("BTCUSDT", "depth")
	require.Equal(t, Error, state)
}

func TestPauseAllResumeAll(t *testing.T) {
	m := New(DefaultConfig())
	m.Subscribe("BTCUSDT", "depth", "sub1")
	m.ConfirmSubscription("BTCUSDT", "depth")

	m.PauseAll()
	state, _ := m.State("BTCUSDT", "depth")
	require.Equal(t, Paused, state)

	m.ResumeAll()
	state, _ = m.State("BTCUSDT", "depth")
	require.Equal(t, Active, state)
}

func TestMaxSubscriptionsPerSymbol(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSubscriptionsPerSymbol = 1
	cfg.MaxSubscriptionsPerSecond = 1000
	m := New(cfg)

	require.True(t, m.Subscribe("BTCUSDT", "depth", "sub1"))
	require.False(t, m.Subscribe("BTCUSDT", "trade", "sub2"))
}

func TestStateChangeCallback_Fires(t *testing.T) {
	m := New(DefaultConfig())
	var calls int
	m.OnStateChange(func(symbol, eventType string, old, new State) {
		calls++
	})
	m.Subscribe("BTCUSDT", "depth", "sub1")
	m.ConfirmSubscription("BTCUSDT", "depth")
	require.GreaterOrEqual(t, calls, 2)
}

func TestActiveSymbolsAndEventTypes(t *testing.T) {
	m := New(DefaultConfig())
	m.Subscribe("BTCUSDT", "depth", "sub1")
	m.Subscribe("BTCUSDT", "trade", "sub1")
	m.Subscribe("ETHUSDT", "depth", "sub2")

	symbols := m.ActiveSymbols()
	require.ElementsMatch(t, []string{"BTCUSDT", "ETHUSDT"}, symbols)

	types := m.EventTypes("BTCUSDT")
	require.ElementsMatch(t, []string{"depth", "trade"}, types)
}

func TestCountersSnapshot(t *testing.T) {
	m := New(DefaultConfig())
	m.Subscribe("BTCUSDT", "depth", "sub1")
	m.ConfirmSubscription("BTCUSDT", "depth")
	m.Subscribe("ETHUSDT", "depth", "sub2")

	counters := m.CountersSnapshot()
	require.Equal(t, 2, counters.Total)
	require.Equal(t, 1, counters.Active)
	require.Equal(t, 1, counters.Pending)
}
