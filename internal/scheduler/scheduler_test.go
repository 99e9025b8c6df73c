package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRunTicksUntilCancelled(t *testing.T) {
	s, err := New(Options{Interval: 5 * time.Millisecond, RunAtStart: true}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ticks := make(chan time.Time, 16)

	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(_ context.Context, at time.Time) error {
			ticks <- at
			return errors.New("tick failed") // must not stop the loop
		})
	}()

	for i := 0; i < 3; i++ {
		select {
		case <-ticks:
		case <-time.After(time.Second):
			t.Fatalf("tick %d never fired", i)
		}
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}

func TestCancelDuringStartupDelay(t *testing.T) {
	s, err := New(Options{Interval: time.Minute, StartupDelay: time.Minute}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(context.Context, time.Time) error { return nil })
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not honour cancellation during the startup delay")
	}
}

func TestNewRejectsNonPositiveInterval(t *testing.T) {
	if _, err := New(Options{Interval: 0}, zerolog.Nop()); err == nil {
		t.Fatal("zero interval should fail construction")
	}
}
