package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"basis-alerts/internal/alerting"
	"basis-alerts/internal/bus"
	"basis-alerts/internal/gate"
	"basis-alerts/internal/protocol"
	"basis-alerts/internal/storage"
)

// SubscriberOptions tune the alerting consumer.
type SubscriberOptions struct {
	SpotSource    string
	LinearSource  string
	ThresholdPct  float64
	MinPrice      float64
	Allow         []string
	Deny          []string
	LocalCooldown time.Duration
}

// AlertSubscriber wires the bus, the gate, and the notifier together
// for the alerting use case. It keeps its own minimal spot/mark memory
// instead of reading the quote cache, so the alert path has no cache
// dependency.
type AlertSubscriber struct {
	opts     SubscriberOptions
	gate     *gate.Gate
	notifier alerting.Notifier
	audit    storage.AlertStore
	logger   zerolog.Logger

	allow map[string]struct{}
	deny  map[string]struct{}

	mu       sync.Mutex
	lastSpot map[string]float64
	lastMark map[string]float64
	lastSent map[string]time.Time
}

// NewAlertSubscriber constructs the subscriber. audit may be nil.
func NewAlertSubscriber(opts SubscriberOptions, g *gate.Gate, notifier alerting.Notifier, audit storage.AlertStore, logger zerolog.Logger) *AlertSubscriber {
	return &AlertSubscriber{
		opts:     opts,
		gate:     g,
		notifier: notifier,
		audit:    audit,
		logger:   logger.With().Str("component", "alert_subscriber").Logger(),
		allow:    symbolSet(opts.Allow),
		deny:     symbolSet(opts.Deny),
		lastSpot: make(map[string]float64),
		lastMark: make(map[string]float64),
		lastSent: make(map[string]time.Time),
	}
}

// Attach subscribes to ticker events from any source and returns the
// unsubscribe function.
func (s *AlertSubscriber) Attach(b *bus.Bus) func() {
	return b.Subscribe(s.handle, bus.Any, string(protocol.ChannelTicker), bus.Any)
}

func (s *AlertSubscriber) handle(ev bus.Event) {
	tick, ok := ev.Payload["data"].(*protocol.TickerData)
	if !ok || ev.Symbol == "" {
		return
	}
	symbol := strings.ToUpper(ev.Symbol)
	now := time.Unix(0, int64(ev.Timestamp*float64(time.Second))).UTC()

	s.mu.Lock()
	switch ev.Source {
	case s.opts.SpotSource:
		if tick.LastPrice != nil {
			s.lastSpot[symbol] = *tick.LastPrice
		}
	case s.opts.LinearSource:
		mark := tick.MarkPrice
		if mark == nil {
			mark = tick.LastPrice
		}
		if mark != nil {
			s.lastMark[symbol] = *mark
		}
	default:
		s.mu.Unlock()
		return
	}

	spot, haveSpot := s.lastSpot[symbol]
	mark, haveMark := s.lastMark[symbol]
	admitted := haveSpot && haveMark && s.admit(symbol, spot, mark, now)
	s.mu.Unlock()

	if !admitted {
		return
	}

	basis := (mark - spot) / spot * 100
	allow, reason := s.gate.ShouldSend(context.Background(), symbol, basis, now)
	if !allow {
		s.logger.Debug().Str("symbol", symbol).Str("reason", reason).Msg("alert suppressed")
		return
	}

	s.mu.Lock()
	s.lastSent[symbol] = now
	s.mu.Unlock()

	// Fire-and-forget: the send must never block bus delivery to the
	// other subscribers.
	go s.dispatch(symbol, spot, mark, basis, reason, now)
}

// admit applies the list/price/threshold/local-cooldown checks. Caller
// holds the mutex.
func (s *AlertSubscriber) admit(symbol string, spot, mark float64, now time.Time) bool {
	if len(s.allow) > 0 {
		if _, ok := s.allow[symbol]; !ok {
			return false
		}
	}
	if _, denied := s.deny[symbol]; denied {
		return false
	}
	if spot <= 0 || spot < s.opts.MinPrice {
		return false
	}
	basis := (mark - spot) / spot * 100
	if math.Abs(basis) < s.opts.ThresholdPct {
		return false
	}
	if s.opts.LocalCooldown > 0 {
		if sent, ok := s.lastSent[symbol]; ok && now.Sub(sent) < s.opts.LocalCooldown {
			return false
		}
	}
	return true
}

func (s *AlertSubscriber) dispatch(symbol string, spot, mark, basis float64, reason string, at time.Time) {
	text := formatAlert(symbol, spot, mark, basis, at)
	if err := s.notifier.SendText(context.Background(), text); err != nil {
		// Losing one alert is acceptable; the pipeline moves on.
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("alert send failed")
	}
	s.gate.Commit(context.Background(), symbol, basis, at)

	if s.audit != nil {
		rec := storage.AlertRecord{
			Symbol:       symbol,
			BasisPct:     decimal.NewFromFloat(basis),
			ThresholdPct: decimal.NewFromFloat(s.opts.ThresholdPct),
			Reason:       reason,
		}
		if _, err := s.audit.InsertAlert(context.Background(), rec); err != nil {
			s.logger.Warn().Err(err).Str("symbol", symbol).Msg("failed to persist alert record")
		}
	}

	s.logger.Info().
		Str("symbol", symbol).
		Float64("basis_pct", basis).
		Str("reason", reason).
		Msg("alert dispatched")
}

func formatAlert(symbol string, spot, mark, basis float64, at time.Time) string {
	b := strings.Builder{}
	b.WriteString("[basis-alerts]\n")
	b.WriteString(fmt.Sprintf("Symbol: %s\n", symbol))
	b.WriteString(fmt.Sprintf("Basis: %+.2f%%\n", basis))
	b.WriteString(fmt.Sprintf("Spot: %.6g\n", spot))
	b.WriteString(fmt.Sprintf("Mark: %.6g\n", mark))
	b.WriteString(fmt.Sprintf("At: %s UTC", at.UTC().Format(time.RFC3339)))
	return b.String()
}

func symbolSet(symbols []string) map[string]struct{} {
	if len(symbols) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		set[strings.ToUpper(s)] = struct{}{}
	}
	return set
}
