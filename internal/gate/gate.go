package gate

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State is the persisted per-symbol alert history.
type State struct {
	LastTimestamp time.Time
	LastBasisPct  float64
}

// Repository persists per-symbol state across restarts. The reference
// implementation is a single-table keyed upsert (internal/storage); any
// durable key-value store satisfies it.
type Repository interface {
	GetLast(ctx context.Context, symbol string) (State, bool, error)
	SetLast(ctx context.Context, symbol string, st State) error
}

// Options tune gate behaviour.
type Options struct {
	Cooldown       time.Duration
	SuppressEpsPct float64
	SuppressWindow time.Duration
}

// Gate is stateful admission control for alerts. It enforces a
// per-symbol cooldown and, nested inside the suppress window, an
// epsilon rule that filters sub-epsilon basis moves. Without a
// repository the state lives only in memory, so a restart forgets
// cooldowns; that is accepted behaviour, not a bug.
type Gate struct {
	mu     sync.Mutex
	opts   Options
	repo   Repository
	mem    map[string]State
	logger zerolog.Logger

	repoDegraded bool
}

// New constructs a gate. repo may be nil for memory-only operation.
func New(opts Options, repo Repository, logger zerolog.Logger) *Gate {
	return &Gate{
		opts:   opts,
		repo:   repo,
		mem:    make(map[string]State),
		logger: logger.With().Str("component", "alert_gate").Logger(),
	}
}

// ShouldSend decides whether an alert for the given observation may go
// out. The reason is "first" for a never-seen symbol, "ok" once the
// cooldown has elapsed, and otherwise a cooldown reason that may carry
// an additional delta-suppression marker.
func (g *Gate) ShouldSend(ctx context.Context, symbol string, basisPct float64, ts time.Time) (bool, string) {
	symbol = strings.ToUpper(symbol)

	g.mu.Lock()
	last, ok := g.mem[symbol]
	askRepo := !ok && g.repo != nil && !g.repoDegraded
	g.mu.Unlock()

	// The repository round-trip runs outside the mutex so a slow query
	// never stalls concurrent commits. The memo map is re-checked on
	// re-acquire: a commit that landed meanwhile is newer than whatever
	// the repository returned.
	if askRepo {
		st, found, err := g.repo.GetLast(ctx, symbol)

		g.mu.Lock()
		if err != nil {
			g.degrade(err)
		} else if cached, raced := g.mem[symbol]; raced {
			last, ok = cached, true
		} else if found {
			g.mem[symbol] = st
			last, ok = st, true
		}
		g.mu.Unlock()
	}

	if !ok {
		return true, "first"
	}

	elapsed := ts.Sub(last.LastTimestamp)
	if elapsed >= g.opts.Cooldown {
		return true, "ok"
	}

	reason := fmt.Sprintf("cooldown %.0fs/%.0fs", elapsed.Seconds(), g.opts.Cooldown.Seconds())
	if elapsed <= g.opts.SuppressWindow && g.opts.SuppressEpsPct > 0 {
		delta := math.Abs(basisPct - last.LastBasisPct)
		if delta < g.opts.SuppressEpsPct {
			reason += fmt.Sprintf(" Δbasis=%.2fpp<thr=%.2fpp", delta, g.opts.SuppressEpsPct)
		}
	}
	return false, reason
}

// Commit unconditionally overwrites the per-symbol state. Callers must
// commit only after actually dispatching an alert, never after a mere
// evaluation. The repository write stays under the mutex so the persisted
// order can never diverge from the memo map.
func (g *Gate) Commit(ctx context.Context, symbol string, basisPct float64, ts time.Time) {
	symbol = strings.ToUpper(symbol)
	st := State{LastTimestamp: ts, LastBasisPct: basisPct}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.mem[symbol] = st
	if g.repo == nil || g.repoDegraded {
		return
	}
	if err := g.repo.SetLast(ctx, symbol, st); err != nil {
		g.degrade(err)
	}
}

func (g *Gate) degrade(err error) {
	if !g.repoDegraded {
		g.logger.Warn().Err(err).Msg("alert-state repository unavailable, continuing in memory only")
		g.repoDegraded = true
	}
}
