package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"basis-alerts/internal/quotes"
	"basis-alerts/internal/scheduler"
)

// Scanner periodically reports the top basis candidates. Surrounding
// selection or reporting logic consumes the same query; the scanner
// only logs, it never trades or alerts.
type Scanner struct {
	sched  *scheduler.Scheduler
	cache  *quotes.Cache
	filter quotes.Filter
	top    int
	logger zerolog.Logger
}

// NewScanner constructs the candidate scanner.
func NewScanner(sched *scheduler.Scheduler, cache *quotes.Cache, filter quotes.Filter, top int, logger zerolog.Logger) *Scanner {
	if top <= 0 {
		top = 10
	}
	return &Scanner{
		sched:  sched,
		cache:  cache,
		filter: filter,
		top:    top,
		logger: logger.With().Str("component", "candidate_scanner").Logger(),
	}
}

// Run blocks until ctx is cancelled, scanning on every tick.
func (s *Scanner) Run(ctx context.Context) error {
	return s.sched.Run(ctx, s.tick)
}

func (s *Scanner) tick(_ context.Context, _ time.Time) error {
	candidates := s.cache.Candidates(s.filter)
	if len(candidates) > s.top {
		candidates = candidates[:s.top]
	}
	if len(candidates) == 0 {
		s.logger.Debug().Int("tracked", s.cache.Len()).Msg("no candidates above threshold")
		return nil
	}

	arr := zerolog.Arr()
	for _, c := range candidates {
		arr.Str(c.Symbol)
	}
	s.logger.Info().
		Int("count", len(candidates)).
		Float64("top_basis_pct", candidates[0].BasisPct).
		Array("symbols", arr).
		Msg("basis candidates")
	return nil
}
