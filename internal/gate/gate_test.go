package gate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newMemGate(opts Options) *Gate {
	return New(opts, nil, zerolog.Nop())
}

func TestFirstObservationAlwaysAllowed(t *testing.T) {
	g := newMemGate(Options{Cooldown: 300 * time.Second})
	allow, reason := g.ShouldSend(context.Background(), "BTCUSDT", 1.5, time.Now())
	if !allow || reason != "first" {
		t.Fatalf("expected first-observation allow, got %v %q", allow, reason)
	}
}

func TestCooldownThenFree(t *testing.T) {
	ctx := context.Background()
	g := newMemGate(Options{Cooldown: 300 * time.Second, SuppressEpsPct: 0.2, SuppressWindow: 15 * time.Minute})
	t0 := time.Unix(1_700_000_000, 0)
	g.Commit(ctx, "BTCUSDT", 1.50, t0)

	allow, reason := g.ShouldSend(ctx, "BTCUSDT", 1.60, t0.Add(299*time.Second))
	if allow || !strings.Contains(reason, "cooldown") {
		t.Fatalf("inside cooldown should deny with cooldown reason, got %v %q", allow, reason)
	}

	allow, reason = g.ShouldSend(ctx, "BTCUSDT", 1.60, t0.Add(301*time.Second))
	if !allow || reason != "ok" {
		t.Fatalf("past cooldown should allow, got %v %q", allow, reason)
	}
}

func TestDeltaSuppressionNestsInsideCooldown(t *testing.T) {
	ctx := context.Background()
	g := newMemGate(Options{Cooldown: 600 * time.Second, SuppressEpsPct: 0.2, SuppressWindow: 15 * time.Minute})
	t0 := time.Unix(1_700_000_000, 0)
	g.Commit(ctx, "BTCUSDT", 1.50, t0)

	at := t0.Add(5 * time.Minute)

	allow, reason := g.ShouldSend(ctx, "BTCUSDT", 1.58, at)
	if allow {
		t.Fatal("sub-epsilon move inside cooldown must be denied")
	}
	if !strings.Contains(reason, "cooldown") || !strings.Contains(reason, "Δbasis") {
		t.Fatalf("expected cooldown plus delta marker, got %q", reason)
	}

	allow, reason = g.ShouldSend(ctx, "BTCUSDT", 1.85, at)
	if allow {
		t.Fatal("cooldown still denies even a large move")
	}
	if !strings.Contains(reason, "cooldown") || strings.Contains(reason, "Δbasis") {
		t.Fatalf("large move should carry no delta marker, got %q", reason)
	}
}

func TestEpsilonNeverFiresOutsideCooldown(t *testing.T) {
	ctx := context.Background()
	// Suppress window wider than cooldown: once cooldown has elapsed the
	// epsilon rule must not fire regardless of the window.
	g := newMemGate(Options{Cooldown: 60 * time.Second, SuppressEpsPct: 0.2, SuppressWindow: time.Hour})
	t0 := time.Unix(1_700_000_000, 0)
	g.Commit(ctx, "ETHUSDT", 1.50, t0)

	allow, reason := g.ShouldSend(ctx, "ETHUSDT", 1.51, t0.Add(2*time.Minute))
	if !allow || reason != "ok" {
		t.Fatalf("outside cooldown the epsilon rule is inert, got %v %q", allow, reason)
	}
}

func TestCommitOverwrites(t *testing.T) {
	ctx := context.Background()
	g := newMemGate(Options{Cooldown: 300 * time.Second})
	t0 := time.Unix(1_700_000_000, 0)
	g.Commit(ctx, "BTCUSDT", 1.0, t0)
	g.Commit(ctx, "BTCUSDT", 2.0, t0.Add(time.Hour))

	allow, _ := g.ShouldSend(ctx, "BTCUSDT", 2.1, t0.Add(time.Hour).Add(10*time.Second))
	if allow {
		t.Fatal("second commit should restart the cooldown")
	}
}

type fakeRepo struct {
	states  map[string]State
	getErr  error
	setErr  error
	setSeen int
}

func (f *fakeRepo) GetLast(_ context.Context, symbol string) (State, bool, error) {
	if f.getErr != nil {
		return State{}, false, f.getErr
	}
	st, ok := f.states[symbol]
	return st, ok, nil
}

func (f *fakeRepo) SetLast(_ context.Context, symbol string, st State) error {
	f.setSeen++
	if f.setErr != nil {
		return f.setErr
	}
	if f.states == nil {
		f.states = make(map[string]State)
	}
	f.states[symbol] = st
	return nil
}

func TestRepositoryBacksCooldownAcrossInstances(t *testing.T) {
	ctx := context.Background()
	repo := &fakeRepo{}
	t0 := time.Unix(1_700_000_000, 0)

	g1 := New(Options{Cooldown: 300 * time.Second}, repo, zerolog.Nop())
	g1.Commit(ctx, "BTCUSDT", 1.5, t0)

	// A fresh gate instance simulates a restart; state comes back from
	// the repository.
	g2 := New(Options{Cooldown: 300 * time.Second}, repo, zerolog.Nop())
	allow, reason := g2.ShouldSend(ctx, "BTCUSDT", 1.6, t0.Add(10*time.Second))
	if allow || !strings.Contains(reason, "cooldown") {
		t.Fatalf("persisted state should enforce cooldown after restart, got %v %q", allow, reason)
	}
}

// blockingRepo parks GetLast until release is closed, so tests can hold a
// repository read open while exercising the gate from other goroutines.
type blockingRepo struct {
	entered chan struct{}
	release chan struct{}
	state   State
	found   bool

	inner fakeRepo
}

func (b *blockingRepo) GetLast(_ context.Context, _ string) (State, bool, error) {
	close(b.entered)
	<-b.release
	return b.state, b.found, nil
}

func (b *blockingRepo) SetLast(ctx context.Context, symbol string, st State) error {
	return b.inner.SetLast(ctx, symbol, st)
}

func TestCommitNotBlockedBySlowRepositoryRead(t *testing.T) {
	ctx := context.Background()
	repo := &blockingRepo{entered: make(chan struct{}), release: make(chan struct{})}
	g := New(Options{Cooldown: 300 * time.Second}, repo, zerolog.Nop())

	evalDone := make(chan struct{})
	go func() {
		g.ShouldSend(ctx, "BTCUSDT", 1.5, time.Now())
		close(evalDone)
	}()
	<-repo.entered

	committed := make(chan struct{})
	go func() {
		g.Commit(ctx, "ETHUSDT", 1.0, time.Now())
		close(committed)
	}()

	select {
	case <-committed:
	case <-time.After(2 * time.Second):
		t.Fatal("commit stalled behind an in-flight repository read")
	}

	close(repo.release)
	<-evalDone
}

func TestCommitDuringRepositoryReadWins(t *testing.T) {
	ctx := context.Background()
	t0 := time.Unix(1_700_000_000, 0)

	// The repository holds a long-expired row; a commit that lands while
	// the read is in flight must drive the decision instead.
	repo := &blockingRepo{
		entered: make(chan struct{}),
		release: make(chan struct{}),
		state:   State{LastTimestamp: t0.Add(-time.Hour), LastBasisPct: 1.0},
		found:   true,
	}
	g := New(Options{Cooldown: 300 * time.Second}, repo, zerolog.Nop())

	type verdict struct {
		allow  bool
		reason string
	}
	got := make(chan verdict)
	go func() {
		allow, reason := g.ShouldSend(ctx, "BTCUSDT", 1.6, t0.Add(10*time.Second))
		got <- verdict{allow, reason}
	}()
	<-repo.entered

	g.Commit(ctx, "BTCUSDT", 1.5, t0)
	close(repo.release)

	v := <-got
	if v.allow || !strings.Contains(v.reason, "cooldown") {
		t.Fatalf("stale repository row must lose to a concurrent commit, got %v %q", v.allow, v.reason)
	}
}

func TestRepositoryFaultDegradesToMemory(t *testing.T) {
	ctx := context.Background()
	repo := &fakeRepo{getErr: errors.New("connection refused")}
	g := New(Options{Cooldown: 300 * time.Second}, repo, zerolog.Nop())

	allow, reason := g.ShouldSend(ctx, "BTCUSDT", 1.5, time.Now())
	if !allow || reason != "first" {
		t.Fatalf("repository fault must not block the alert path, got %v %q", allow, reason)
	}

	// After degrading, commits stay in memory and still drive decisions.
	t0 := time.Unix(1_700_000_000, 0)
	g.Commit(ctx, "BTCUSDT", 1.5, t0)
	allow, _ = g.ShouldSend(ctx, "BTCUSDT", 1.6, t0.Add(time.Second))
	if allow {
		t.Fatal("in-memory state should enforce cooldown after degradation")
	}
}
