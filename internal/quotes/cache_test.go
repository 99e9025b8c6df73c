package quotes

import (
	"math"
	"sync"
	"testing"
	"time"
)

func f(v float64) *float64 { return &v }

func TestBasisStaysNaNUntilBothLegs(t *testing.T) {
	c := NewCache()

	basis := c.Update("X", f(100), nil, time.Now())
	if !math.IsNaN(basis) {
		t.Fatalf("basis should be NaN with one leg, got %g", basis)
	}

	basis = c.Update("X", nil, f(101), time.Now())
	if math.Abs(basis-1.0) > 1e-9 {
		t.Fatalf("expected basis 1.00, got %g", basis)
	}

	row, ok := c.Snapshot("x")
	if !ok {
		t.Fatal("snapshot should exist regardless of symbol case")
	}
	if math.Abs(row.BasisPct-1.0) > 1e-9 {
		t.Fatalf("snapshot basis wrong: %g", row.BasisPct)
	}
}

func TestBasisGuardsZeroSpot(t *testing.T) {
	c := NewCache()
	basis := c.Update("Z", f(0), f(5), time.Now())
	if !math.IsNaN(basis) {
		t.Fatalf("zero spot must keep basis NaN, got %g", basis)
	}
}

func TestCandidatesFiltering(t *testing.T) {
	c := NewCache()
	now := time.Now()
	c.Update("X", f(100), f(101), now)

	got := c.Candidates(Filter{ThresholdPct: 0.5, MinPrice: 1})
	if len(got) != 1 || got[0].Symbol != "X" || math.Abs(got[0].BasisPct-1.0) > 1e-9 {
		t.Fatalf("expected X with basis 1.00, got %#v", got)
	}

	if got := c.Candidates(Filter{ThresholdPct: 0.5, MinPrice: 150}); len(got) != 0 {
		t.Fatalf("min price above spot should exclude, got %#v", got)
	}

	if got := c.Candidates(Filter{ThresholdPct: 2, MinPrice: 1}); len(got) != 0 {
		t.Fatalf("threshold above basis should exclude, got %#v", got)
	}
}

func TestCandidatesVolumeAndLists(t *testing.T) {
	c := NewCache()
	now := time.Now()
	c.Update("AAA", f(10), f(10.5), now)  // basis 5.0
	c.Update("BBB", f(10), f(10.2), now)  // basis 2.0
	c.Update("CCC", f(10), f(10.95), now) // basis 9.5

	c.UpdateVolume("BBB", 500)

	// BBB has a volume on record below the floor; AAA and CCC have no
	// record and must not be excluded.
	got := c.Candidates(Filter{ThresholdPct: 1, MinPrice: 1, MinVolumeUSD: 1000})
	if len(got) != 2 || got[0].Symbol != "CCC" || got[1].Symbol != "AAA" {
		t.Fatalf("expected [CCC AAA] sorted by |basis| desc, got %#v", got)
	}

	got = c.Candidates(Filter{ThresholdPct: 1, MinPrice: 1, Allow: []string{"bbb"}})
	if len(got) != 1 || got[0].Symbol != "BBB" {
		t.Fatalf("allow list should be exclusive and case-insensitive, got %#v", got)
	}

	got = c.Candidates(Filter{ThresholdPct: 1, MinPrice: 1, Deny: []string{"CCC"}})
	for _, cand := range got {
		if cand.Symbol == "CCC" {
			t.Fatal("deny list should exclude CCC")
		}
	}
}

func TestConcurrentUpdates(t *testing.T) {
	c := NewCache()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				if g%2 == 0 {
					c.Update("BTCUSDT", f(100+float64(i)), nil, time.Now())
				} else {
					c.Update("BTCUSDT", nil, f(101+float64(i)), time.Now())
				}
				c.Candidates(Filter{ThresholdPct: 0, MinPrice: 0})
			}
		}(g)
	}
	wg.Wait()

	row, ok := c.Snapshot("BTCUSDT")
	if !ok || math.IsNaN(row.BasisPct) {
		t.Fatalf("expected a computed basis after concurrent updates, got %#v", row)
	}
}
