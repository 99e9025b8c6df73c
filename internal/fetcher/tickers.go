package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const tickersPath = "/v5/market/tickers"

// TickersOptions parameterise the REST stats fetcher.
type TickersOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Tickers fetches daily ticker statistics over the venue REST API.
type Tickers struct {
	opts    TickersOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewTickers constructs a stats fetcher.
func NewTickers(opts TickersOptions, logger zerolog.Logger) *Tickers {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.bybit.com"
	}

	return &Tickers{
		opts:    opts,
		logger:  logger.With().Str("component", "ticker_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchTickerStats retrieves stats for every symbol in one category.
// Symbols with an unparseable turnover are skipped, not fatal.
func (t *Tickers) FetchTickerStats(ctx context.Context, category string) ([]TickerStat, error) {
	if category == "" {
		return nil, fmt.Errorf("category required")
	}

	endpoint := fmt.Sprintf("%s%s?category=%s", t.baseURL, tickersPath, url.QueryEscape(category))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(t.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tickers api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var body tickersResponse
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("decode tickers response: %w", err)
	}
	if body.RetCode != 0 {
		return nil, fmt.Errorf("tickers api error (retCode %d): %s", body.RetCode, body.RetMsg)
	}

	stats := make([]TickerStat, 0, len(body.Result.List))
	for _, entry := range body.Result.List {
		if entry.Symbol == "" {
			continue
		}
		turnover, err := decimal.NewFromString(entry.Turnover24h)
		if err != nil {
			t.logger.Debug().Str("symbol", entry.Symbol).Msg("skipping unparseable turnover")
			continue
		}
		stat := TickerStat{Symbol: strings.ToUpper(entry.Symbol), Turnover24h: turnover}
		if last, err := decimal.NewFromString(entry.LastPrice); err == nil {
			stat.LastPrice = last
		}
		stats = append(stats, stat)
	}
	return stats, nil
}

type tickersResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		Category string `json:"category"`
		List     []struct {
			Symbol      string `json:"symbol"`
			LastPrice   string `json:"lastPrice"`
			Turnover24h string `json:"turnover24h"`
		} `json:"list"`
	} `json:"result"`
}

var _ TickerStatsFetcher = (*Tickers)(nil)
