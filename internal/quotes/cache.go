package quotes

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// Row is the latest known state for one symbol. Prices start out as NaN
// until the corresponding leg has been observed at least once.
type Row struct {
	Symbol     string
	Spot       float64
	LinearMark float64
	BasisPct   float64
	TsSpot     time.Time
	TsLinear   time.Time
	TsBasis    time.Time
}

// Candidate is one symbol passing the admission filter.
type Candidate struct {
	Symbol   string
	BasisPct float64
}

// Filter parameterises the candidate query.
type Filter struct {
	ThresholdPct float64
	MinPrice     float64
	MinVolumeUSD float64
	Allow        []string
	Deny         []string
}

// Cache is the single point of truth for the latest basis per symbol.
// Two independent ingestion goroutines (spot and linear) mutate it, so
// every path serialises through one cache-wide lock. Rows live for the
// process lifetime; there is no eviction.
type Cache struct {
	mu   sync.Mutex
	rows map[string]*Row
	vols map[string]float64
}

// NewCache constructs an empty cache.
func NewCache() *Cache {
	return &Cache{
		rows: make(map[string]*Row),
		vols: make(map[string]float64),
	}
}

// Update merges whichever legs are provided (nil means "no change") and
// returns the recomputed basis percentage, which stays NaN until both
// legs are known and spot is positive.
func (c *Cache) Update(symbol string, spot, linearMark *float64, ts time.Time) float64 {
	symbol = strings.ToUpper(symbol)
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	row, ok := c.rows[symbol]
	if !ok {
		row = &Row{Symbol: symbol, Spot: math.NaN(), LinearMark: math.NaN(), BasisPct: math.NaN()}
		c.rows[symbol] = row
	}

	if spot != nil {
		row.Spot = *spot
		row.TsSpot = ts
	}
	if linearMark != nil {
		row.LinearMark = *linearMark
		row.TsLinear = ts
	}

	if !math.IsNaN(row.Spot) && !math.IsNaN(row.LinearMark) && row.Spot > 0 {
		row.BasisPct = (row.LinearMark - row.Spot) / row.Spot * 100
		row.TsBasis = ts
	} else {
		row.BasisPct = math.NaN()
	}
	return row.BasisPct
}

// UpdateVolume records the 24h USD turnover for one symbol. The volume
// side-table is used only for admission filtering and is decoupled from
// the price rows.
func (c *Cache) UpdateVolume(symbol string, usd float64) {
	c.mu.Lock()
	c.vols[strings.ToUpper(symbol)] = usd
	c.mu.Unlock()
}

// UpdateVolumes bulk-merges a symbol-to-turnover map.
func (c *Cache) UpdateVolumes(vols map[string]float64) {
	c.mu.Lock()
	for symbol, usd := range vols {
		c.vols[strings.ToUpper(symbol)] = usd
	}
	c.mu.Unlock()
}

// Snapshot returns an independent copy of the row for one symbol.
func (c *Cache) Snapshot(symbol string) (Row, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	row, ok := c.rows[strings.ToUpper(symbol)]
	if !ok {
		return Row{}, false
	}
	return *row, true
}

// Len reports how many symbols have at least one observed leg.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rows)
}

// Candidates returns the symbols passing the admission filter, sorted
// by absolute basis descending. A non-empty allow list is exclusive; a
// missing volume record does not exclude a symbol.
func (c *Cache) Candidates(f Filter) []Candidate {
	allow := toSet(f.Allow)
	deny := toSet(f.Deny)

	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Candidate, 0, len(c.rows))
	for symbol, row := range c.rows {
		if len(allow) > 0 {
			if _, ok := allow[symbol]; !ok {
				continue
			}
		}
		if _, denied := deny[symbol]; denied {
			continue
		}
		if math.IsNaN(row.Spot) || math.IsNaN(row.BasisPct) {
			continue
		}
		if row.Spot < f.MinPrice {
			continue
		}
		if math.Abs(row.BasisPct) < f.ThresholdPct {
			continue
		}
		if vol, ok := c.vols[symbol]; ok && vol < f.MinVolumeUSD {
			continue
		}
		out = append(out, Candidate{Symbol: symbol, BasisPct: row.BasisPct})
	}

	sort.Slice(out, func(i, j int) bool {
		return math.Abs(out[i].BasisPct) > math.Abs(out[j].BasisPct)
	})
	return out
}

func toSet(symbols []string) map[string]struct{} {
	if len(symbols) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		set[strings.ToUpper(s)] = struct{}{}
	}
	return set
}
