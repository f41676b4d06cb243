package observability

import (
	"sync"
)

// Metrics provides basic in-memory counters for relay operations.
type Metrics struct {
	mu       sync.Mutex
	counters map[string]int64
}

// Counter names recorded by the services.
const (
	CounterTicketsOpened       = "tickets_opened"
	CounterTicketsClaimed      = "tickets_claimed"
	CounterTicketsResolved     = "tickets_resolved"
	CounterTicketsClosed       = "tickets_closed"
	CounterTicketsAutoClosed   = "tickets_auto_closed"
	CounterInactivityWarnings  = "inactivity_warnings"
	CounterMessagesRelayed     = "messages_relayed"
	CounterAttachmentsInline   = "attachments_inline"
	CounterAttachmentsExternal = "attachments_external"
	CounterAttachmentsRejected = "attachments_rejected"
	CounterRelayFailures       = "relay_failures"
	CounterRequestErrors       = "request_errors"
)

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{counters: make(map[string]int64)}
}

// Inc increments a named counter by one.
func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

// Add increments a named counter by n.
func (m *Metrics) Add(name string, n int64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name] += n
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]int64 {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.counters))
	for k, v := range m.counters {
		out[k] = v
	}
	return out
}
