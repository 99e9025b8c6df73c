package bus

import (
	"testing"

	"github.com/rs/zerolog"
)

func newTestBus() *Bus {
	return New(zerolog.Nop())
}

func tickerEvent(source, symbol string) Event {
	return Event{
		Source:  source,
		Channel: "ticker",
		Symbol:  symbol,
		Payload: map[string]any{"lastPrice": 100.0},
	}
}

func TestPublishFiltersAndLazyUnsubscribe(t *testing.T) {
	b := newTestBus()

	var hits [3]int
	unsub := b.Subscribe(func(Event) { hits[0]++ }, "SPOT", "", "")
	b.Subscribe(func(Event) { hits[1]++ }, "", "ticker", "")
	b.Subscribe(func(Event) { hits[2]++ }, "", "", "btcusdt")

	if fired := b.Publish(tickerEvent("SPOT", "BTCUSDT")); fired != 3 {
		t.Fatalf("expected 3 handlers fired, got %d", fired)
	}
	for i, h := range hits {
		if h != 1 {
			t.Fatalf("handler %d fired %d times", i, h)
		}
	}

	unsub()
	if fired := b.Publish(tickerEvent("SPOT", "BTCUSDT")); fired != 2 {
		t.Fatalf("after unsubscribe expected 2 fired, got %d", fired)
	}

	stats := b.Stats()
	if stats.Total != 3 || stats.Active != 2 || stats.Inactive != 1 {
		t.Fatalf("lazy unsubscribe stats wrong: %+v", stats)
	}

	if removed := b.Compact(); removed != 1 {
		t.Fatalf("compact should remove 1, removed %d", removed)
	}
	stats = b.Stats()
	if stats.Total != 2 || stats.Active != 2 || stats.Inactive != 0 {
		t.Fatalf("post-compact stats wrong: %+v", stats)
	}
}

func TestPublishNonMatching(t *testing.T) {
	b := newTestBus()
	b.Subscribe(func(Event) { t.Fatal("must not fire") }, "LINEAR", "", "")
	if fired := b.Publish(tickerEvent("SPOT", "BTCUSDT")); fired != 0 {
		t.Fatalf("expected 0 fired, got %d", fired)
	}
}

func TestHandlerPanicIsolated(t *testing.T) {
	b := newTestBus()
	second := 0
	b.Subscribe(func(Event) { panic("boom") }, "", "", "")
	b.Subscribe(func(Event) { second++ }, "", "", "")

	if fired := b.Publish(tickerEvent("SPOT", "BTCUSDT")); fired != 1 {
		t.Fatalf("panicking handler must not count as fired, got %d", fired)
	}
	if second != 1 {
		t.Fatal("sibling handler should still run after a panic")
	}
}

func TestHandlerMaySubscribeDuringDispatch(t *testing.T) {
	b := newTestBus()
	lateFired := 0
	b.Subscribe(func(Event) {
		b.Subscribe(func(Event) { lateFired++ }, "", "", "")
	}, "", "", "")

	if fired := b.Publish(tickerEvent("SPOT", "BTCUSDT")); fired != 1 {
		t.Fatalf("expected only the original handler, got %d", fired)
	}
	if lateFired != 0 {
		t.Fatal("subscription added mid-dispatch must not see the in-flight event")
	}
	if fired := b.Publish(tickerEvent("SPOT", "BTCUSDT")); fired != 2 {
		t.Fatalf("second publish should reach the first two handlers, got %d", fired)
	}
	if lateFired != 1 {
		t.Fatalf("late handler should see the second event once, got %d", lateFired)
	}
}

func TestRepublishIsReproducible(t *testing.T) {
	b := newTestBus()
	count := 0
	b.Subscribe(func(Event) { count++ }, "SPOT", "ticker", "BTCUSDT")

	ev := tickerEvent("SPOT", "BTCUSDT")
	for i := 0; i < 5; i++ {
		if fired := b.Publish(ev); fired != 1 {
			t.Fatalf("publish %d fired %d", i, fired)
		}
	}
	if count != 5 {
		t.Fatalf("expected 5 invocations, got %d", count)
	}
}
