package service

import (
	"time"

	"github.com/rs/zerolog"

	"basis-alerts/internal/bus"
	"basis-alerts/internal/protocol"
	"basis-alerts/internal/quotes"
)

// CacheUpdater feeds ticker events from both venues into the quote
// cache. It is an independent bus subscriber, deliberately not gated:
// the cache must stay current even while alerts are suppressed.
type CacheUpdater struct {
	cache        *quotes.Cache
	spotSource   string
	linearSource string
	logger       zerolog.Logger
}

// NewCacheUpdater constructs the updater for the two source tags.
func NewCacheUpdater(cache *quotes.Cache, spotSource, linearSource string, logger zerolog.Logger) *CacheUpdater {
	return &CacheUpdater{
		cache:        cache,
		spotSource:   spotSource,
		linearSource: linearSource,
		logger:       logger.With().Str("component", "cache_updater").Logger(),
	}
}

// Attach subscribes the updater to ticker events from any source and
// returns the unsubscribe function.
func (u *CacheUpdater) Attach(b *bus.Bus) func() {
	return b.Subscribe(u.handle, bus.Any, string(protocol.ChannelTicker), bus.Any)
}

func (u *CacheUpdater) handle(ev bus.Event) {
	tick, ok := ev.Payload["data"].(*protocol.TickerData)
	if !ok || ev.Symbol == "" {
		return
	}
	ts := time.Unix(0, int64(ev.Timestamp*float64(time.Second))).UTC()

	switch ev.Source {
	case u.spotSource:
		if tick.LastPrice != nil {
			u.cache.Update(ev.Symbol, tick.LastPrice, nil, ts)
		}
	case u.linearSource:
		// Mark price carries the derivative leg; fall back to last.
		mark := tick.MarkPrice
		if mark == nil {
			mark = tick.LastPrice
		}
		if mark != nil {
			u.cache.Update(ev.Symbol, nil, mark, ts)
		}
	default:
		return
	}

	if tick.Turnover24h != nil {
		u.cache.UpdateVolume(ev.Symbol, *tick.Turnover24h)
	}
}
