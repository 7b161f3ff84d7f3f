// Package subscription implements SubscriptionManager (§4.5): the
// control-plane counterpart to the data-plane components above,
// generalized from the teacher's orderbookmanager.go subscribe/
// unsubscribe-by-channel-name pattern into a handle-registry with
// lifecycle states and rate limiting.
package subscription

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// State is a subscription entry's lifecycle stage.
type State int

const (
	Pending State = iota
	Active
	Paused
	Error
	Unsubscribed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Active:
		return "Active"
	case Paused:
		return "Paused"
	case Error:
		return "Error"
	case Unsubscribed:
		return "Unsubscribed"
	default:
		return "Unknown"
	}
}

// Entry is the lifecycle record for one (symbol, event_type) pair.
type Entry struct {
	ID           uuid.UUID
	Symbol       string
	EventType    string
	State        State
	ErrorMsg     string
	CreatedAt    time.Time
	LastUpdateNs int64
	MessageCount int64
}

type key struct {
	symbol    string
	eventType string
}

// Config carries the §4.5/§6 rate-limit surface.
type Config struct {
	MaxSubscriptionsPerSecond  float64
	MaxTotalSubscriptions      int
	MaxSubscriptionsPerSymbol  int
}

func DefaultConfig() Config {
	return Config{
		MaxSubscriptionsPerSecond: 50,
		MaxTotalSubscriptions:     10_000,
		MaxSubscriptionsPerSymbol: 100,
	}
}

// Manager owns the subscriber-set map plus the parallel lifecycle map.
type Manager struct {
	cfg     Config
	limiter *rate.Limiter

	mu          sync.Mutex
	subscribers map[key]map[string]struct{}
	entries     map[key]*Entry
	total       int

	onStateChange func(symbol, eventType string, old, new State)
}

func New(cfg Config) *Manager {
	return &Manager{
		cfg:         cfg,
		limiter:     rate.NewLimiter(rate.Limit(cfg.MaxSubscriptionsPerSecond), int(cfg.MaxSubscriptionsPerSecond)),
		subscribers: make(map[key]map[string]struct{}),
		entries:     make(map[key]*Entry),
	}
}

func (m *Manager) OnStateChange(f func(symbol, eventType string, old, new State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = f
}

// Subscribe adds subscriberID to (symbol, eventType). Returns false if
// rejected by the rate limiter or a capacity cap.
func (m *Manager) Subscribe(symbol, eventType, subscriberID string) bool {
	if !m.limiter.Allow() {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	k := key{symbol, eventType}
	set, exists := m.subscribers[k]
	if !exists {
		if m.total >= m.cfg.MaxTotalSubscriptions {
			return false
		}
		if m.countForSymbolLocked(symbol) >= m.cfg.MaxSubscriptionsPerSymbol {
			return false
		}
		set = make(map[string]struct{})
		m.subscribers[k] = set
	}

	if _, already := set[subscriberID]; already {
		return true // idempotent no-op, AlreadySubscribed semantics
	}

	set[subscriberID] = struct{}{}
	m.total++

	if !exists {
		entry := &Entry{ID: uuid.New(), Symbol: symbol, EventType: eventType, State: Pending, CreatedAt: time.Now()}
		m.entries[k] = entry
		m.fireStateChangeLocked(symbol, eventType, Pending, Pending)
	}

	return true
}

func (m *Manager) countForSymbolLocked(symbol string) int {
	n := 0
	for k, set := range m.subscribers {
		if k.symbol == symbol {
			n += len(set)
		}
	}
	return n
}

// Unsubscribe removes subscriberID; when the set becomes empty, the
// lifecycle entry is removed entirely.
func (m *Manager) Unsubscribe(symbol, eventType, subscriberID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key{symbol, eventType}
	set, ok := m.subscribers[k]
	if !ok {
		return false
	}
	if _, ok := set[subscriberID]; !ok {
		return false // NotSubscribed, idempotent no-op
	}

	delete(set, subscriberID)
	m.total--

	if len(set) == 0 {
		delete(m.subscribers, k)
		if entry, ok := m.entries[k]; ok {
			old := entry.State
			entry.State = Unsubscribed
			m.fireStateChangeLocked(k.symbol, k.eventType, old, Unsubscribed)
		}
		delete(m.entries, k)
	}
	return true
}

// RecordMessage bumps the (symbol, eventType) entry's message_count and
// last_update_ns. No-op if no entry is subscribed, since a late message
// can race an Unsubscribe that already dropped the entry.
func (m *Manager) RecordMessage(symbol, eventType string, nowNs int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key{symbol, eventType}]
	if !ok {
		return
	}
	entry.MessageCount++
	entry.LastUpdateNs = nowNs
}

// ConfirmSubscription transitions Pending -> Active.
func (m *Manager) ConfirmSubscription(symbol, eventType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitionLocked(key{symbol, eventType}, Active, "")
}

// MarkError transitions any state -> Error with a stored message.
func (m *Manager) MarkError(symbol, eventType, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitionLocked(key{symbol, eventType}, Error, msg)
}

func (m *Manager) transitionLocked(k key, new State, errMsg string) {
	entry, ok := m.entries[k]
	if !ok {
		return
	}
	old := entry.State
	entry.State = new
	entry.ErrorMsg = errMsg
	if old != new {
		m.fireStateChangeLocked(k.symbol, k.eventType, old, new)
	}
}

// PauseAll flips every Active entry to Paused (used during reconnects).
func (m *Manager) PauseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, e := range m.entries {
		if e.State == Active {
			e.State = Paused
			m.fireStateChangeLocked(k.symbol, k.eventType, Active, Paused)
		}
	}
}

// ResumeAll flips every Paused entry back to Active.
func (m *Manager) ResumeAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, e := range m.entries {
		if e.State == Paused {
			e.State = Active
			m.fireStateChangeLocked(k.symbol, k.eventType, Paused, Active)
		}
	}
}

func (m *Manager) fireStateChangeLocked(symbol, eventType string, old, new State) {
	if m.onStateChange != nil {
		m.onStateChange(symbol, eventType, old, new)
	}
}

// --- Queries ---

func (m *Manager) SubscriberCount(symbol, eventType string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subscribers[key{symbol, eventType}])
}

func (m *Manager) IsSubscribed(symbol, eventType, subscriberID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.subscribers[key{symbol, eventType}]
	if !ok {
		return false
	}
	_, ok = set[subscriberID]
	return ok
}

func (m *Manager) State(symbol, eventType string) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key{symbol, eventType}]
	if !ok {
		return 0, false
	}
	return e.State, true
}

func (m *Manager) ActiveSymbols() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]struct{})
	var out []string
	for k := range m.subscribers {
		if _, ok := seen[k.symbol]; !ok {
			seen[k.symbol] = struct{}{}
			out = append(out, k.symbol)
		}
	}
	return out
}

func (m *Manager) EventTypes(symbol string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.subscribers {
		if k.symbol == symbol {
			out = append(out, k.eventType)
		}
	}
	return out
}

func (m *Manager) Subscribers(symbol, eventType string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.subscribers[key{symbol, eventType}]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// Counters is the {total, pending, active, error} tally across all entries.
type Counters struct {
	Total, Pending, Active, Error int
}

func (m *Manager) CountersSnapshot() Counters {
	m.mu.Lock()
	defer m.mu.Unlock()
	var c Counters
	for _, e := range m.entries {
		c.Total++
		switch e.State {
		case Pending:
			c.Pending++
		case Active:
			c.Active++
		case Error:
			c.Error++
		}
	}
	return c
}
