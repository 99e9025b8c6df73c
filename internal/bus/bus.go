package bus

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Event is the record published on the bus. Payload is shared by
// reference with every matching handler; handlers must treat it as
// read-only.
type Event struct {
	Source    string
	Channel   string
	Symbol    string
	Payload   map[string]any
	Timestamp float64
}

// Handler consumes one matching event.
type Handler func(Event)

// Any matches every value of a filter dimension. An empty filter string
// behaves the same way.
const Any = "*"

type subscription struct {
	handler Handler
	source  string
	channel string
	symbol  string
	active  bool
}

// Stats reports registry occupancy. Total counts every registered
// record including inactive ones; Compact reconciles the two.
type Stats struct {
	Total    int `json:"total_subscriptions"`
	Active   int `json:"active_handlers"`
	Inactive int `json:"inactive_subscriptions"`
}

// Bus is an in-process publish/subscribe multiplexer keyed by
// (source, channel, symbol). Unsubscribe is lazy: it deactivates the
// record, and Compact later removes dead entries.
type Bus struct {
	mu     sync.Mutex
	subs   []*subscription
	logger zerolog.Logger
}

// New constructs an empty bus.
func New(logger zerolog.Logger) *Bus {
	return &Bus{logger: logger.With().Str("component", "bus").Logger()}
}

// Subscribe registers a handler for events matching the given filters
// and returns the function that deactivates it. Symbol filters are
// uppercased at registration time.
func (b *Bus) Subscribe(handler Handler, source, channel, symbol string) func() {
	sub := &subscription{
		handler: handler,
		source:  normalizeFilter(source),
		channel: normalizeFilter(channel),
		symbol:  strings.ToUpper(normalizeFilter(symbol)),
		active:  true,
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		sub.active = false
		b.mu.Unlock()
	}
}

// Publish delivers the event to every matching active handler and
// returns how many handlers ran to completion. Matching happens under
// the registry lock; dispatch happens after release, so a handler may
// itself subscribe or unsubscribe without deadlocking. A handler added
// during dispatch does not see the event in flight.
func (b *Bus) Publish(ev Event) int {
	b.mu.Lock()
	matched := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.active && sub.matches(ev) {
			matched = append(matched, sub)
		}
	}
	b.mu.Unlock()

	fired := 0
	for _, sub := range matched {
		if b.invoke(sub, ev) {
			fired++
		}
	}
	return fired
}

// invoke isolates handler panics so one misbehaving consumer cannot
// starve its siblings or the publisher.
func (b *Bus) invoke(sub *subscription, ev Event) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			b.logger.Error().
				Str("source", ev.Source).
				Str("channel", ev.Channel).
				Str("symbol", ev.Symbol).
				Any("panic", r).
				Msg("subscriber handler panicked")
		}
	}()
	sub.handler(ev)
	return true
}

// Compact removes inactive records and returns how many were purged.
func (b *Bus) Compact() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.subs[:0]
	removed := 0
	for _, sub := range b.subs {
		if sub.active {
			kept = append(kept, sub)
		} else {
			removed++
		}
	}
	b.subs = kept
	return removed
}

// Stats snapshots registry occupancy.
func (b *Bus) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Stats{Total: len(b.subs)}
	for _, sub := range b.subs {
		if sub.active {
			s.Active++
		}
	}
	s.Inactive = s.Total - s.Active
	return s
}

func (s *subscription) matches(ev Event) bool {
	if s.source != Any && s.source != ev.Source {
		return false
	}
	if s.channel != Any && s.channel != ev.Channel {
		return false
	}
	if s.symbol != Any && s.symbol != strings.ToUpper(ev.Symbol) {
		return false
	}
	return true
}

func normalizeFilter(f string) string {
	if f == "" {
		return Any
	}
	return f
}
