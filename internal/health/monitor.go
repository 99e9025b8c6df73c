package health

import (
	"sync"
	"time"
)

// SourceStats is the per-source slice of a snapshot.
type SourceStats struct {
	Messages      int64     `json:"messages"`
	Reconnects    int64     `json:"reconnects"`
	LastMessageAt time.Time `json:"last_message_at"`
}

// Snapshot is the full observability view at one instant.
type Snapshot struct {
	StartedAt time.Time              `json:"started_at"`
	Uptime    time.Duration          `json:"uptime"`
	Sources   map[string]SourceStats `json:"sources"`
}

// Monitor tracks ingestion liveness per source. It is explicitly
// constructed and injected at startup, never reached through a global.
type Monitor struct {
	mu        sync.Mutex
	startedAt time.Time
	sources   map[string]*SourceStats
	now       func() time.Time
}

// NewMonitor constructs a monitor with its uptime clock started.
func NewMonitor() *Monitor {
	m := &Monitor{now: func() time.Time { return time.Now().UTC() }}
	m.Reset()
	return m
}

// RecordMessage counts one inbound message for a source.
func (m *Monitor) RecordMessage(source string, ts time.Time) {
	m.mu.Lock()
	st := m.sourceLocked(source)
	st.Messages++
	if ts.After(st.LastMessageAt) {
		st.LastMessageAt = ts
	}
	m.mu.Unlock()
}

// RecordReconnect counts one reconnect cycle for a source.
func (m *Monitor) RecordReconnect(source string) {
	m.mu.Lock()
	m.sourceLocked(source).Reconnects++
	m.mu.Unlock()
}

// Snapshot returns an independent copy of all counters.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		StartedAt: m.startedAt,
		Uptime:    m.now().Sub(m.startedAt),
		Sources:   make(map[string]SourceStats, len(m.sources)),
	}
	for name, st := range m.sources {
		snap.Sources[name] = *st
	}
	return snap
}

// Reset zeroes every counter and restarts the uptime clock.
func (m *Monitor) Reset() {
	m.mu.Lock()
	m.startedAt = m.now()
	m.sources = make(map[string]*SourceStats)
	m.mu.Unlock()
}

func (m *Monitor) sourceLocked(source string) *SourceStats {
	st, ok := m.sources[source]
	if !ok {
		st = &SourceStats{}
		m.sources[source] = st
	}
	return st
}
