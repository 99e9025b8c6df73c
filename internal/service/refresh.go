package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"basis-alerts/internal/fetcher"
	"basis-alerts/internal/quotes"
	"basis-alerts/internal/scheduler"
)

// VolumeRefresher periodically pulls daily ticker stats over REST and
// bulk-merges the turnover figures into the quote cache volume
// side-table. Streaming tickers keep volumes fresh between pulls; the
// REST pass covers symbols whose streams are quiet.
type VolumeRefresher struct {
	sched      *scheduler.Scheduler
	stats      fetcher.TickerStatsFetcher
	cache      *quotes.Cache
	categories []string
	logger     zerolog.Logger
}

// NewVolumeRefresher constructs the refresher for the given categories.
func NewVolumeRefresher(sched *scheduler.Scheduler, stats fetcher.TickerStatsFetcher, cache *quotes.Cache, categories []string, logger zerolog.Logger) *VolumeRefresher {
	return &VolumeRefresher{
		sched:      sched,
		stats:      stats,
		cache:      cache,
		categories: categories,
		logger:     logger.With().Str("component", "volume_refresher").Logger(),
	}
}

// Run blocks until ctx is cancelled, refreshing on every tick.
func (r *VolumeRefresher) Run(ctx context.Context) error {
	return r.sched.Run(ctx, r.tick)
}

func (r *VolumeRefresher) tick(ctx context.Context, _ time.Time) error {
	for _, category := range r.categories {
		stats, err := r.stats.FetchTickerStats(ctx, category)
		if err != nil {
			r.logger.Warn().Err(err).Str("category", category).Msg("ticker stats fetch failed")
			continue
		}
		vols := make(map[string]float64, len(stats))
		for _, st := range stats {
			vols[st.Symbol] = st.Turnover24h.InexactFloat64()
		}
		r.cache.UpdateVolumes(vols)
		r.logger.Debug().Str("category", category).Int("symbols", len(vols)).Msg("volumes refreshed")
	}
	return nil
}
