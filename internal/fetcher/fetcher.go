package fetcher

import (
	"context"

	"github.com/shopspring/decimal"
)

// TickerStat is one symbol's daily statistics from the venue REST API.
type TickerStat struct {
	Symbol      string
	LastPrice   decimal.Decimal
	Turnover24h decimal.Decimal
}

// TickerStatsFetcher retrieves per-symbol daily stats for one market
// category. It feeds the quote cache volume side-table.
type TickerStatsFetcher interface {
	FetchTickerStats(ctx context.Context, category string) ([]TickerStat, error)
}
