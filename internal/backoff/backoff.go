package backoff

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

// Options parameterise an exponential backoff policy.
type Options struct {
	Base     time.Duration
	Factor   float64
	Cap      time.Duration
	MaxSleep time.Duration
	Jitter   float64
}

const defaultJitter = 0.25

// Policy produces bounded, jittered reconnect delays. Jitter only ever
// shrinks a delay below its nominal step, so the worst case stays bounded
// while simultaneous reconnect storms are desynchronised.
type Policy struct {
	mu      sync.Mutex
	opts    Options
	attempt int
	rng     *rand.Rand
}

// New validates the options and constructs a policy.
func New(opts Options) (*Policy, error) {
	if opts.Base <= 0 {
		return nil, fmt.Errorf("backoff: base must be positive, got %s", opts.Base)
	}
	if opts.Factor <= 0 {
		return nil, fmt.Errorf("backoff: factor must be positive, got %g", opts.Factor)
	}
	if opts.Cap <= 0 {
		return nil, fmt.Errorf("backoff: cap must be positive, got %s", opts.Cap)
	}
	if opts.MaxSleep < opts.Cap {
		return nil, fmt.Errorf("backoff: max sleep %s below cap %s", opts.MaxSleep, opts.Cap)
	}
	if opts.Jitter <= 0 || opts.Jitter > 1 {
		opts.Jitter = defaultJitter
	}
	return &Policy{
		opts: opts,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// NextDelay advances the policy and returns the delay to sleep before the
// next attempt. The result never exceeds the unjittered nominal step for
// that attempt and never exceeds MaxSleep.
func (p *Policy) NextDelay() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	nominal := ComputeNth(p.opts.Base.Seconds(), p.opts.Factor, p.opts.Cap.Seconds(), p.attempt)
	p.attempt++

	shrink := 1 - p.rng.Float64()*p.opts.Jitter
	delay := time.Duration(nominal * shrink * float64(time.Second))
	if delay < 0 {
		delay = 0
	}
	if delay > p.opts.MaxSleep {
		delay = p.opts.MaxSleep
	}
	return delay
}

// Reset returns the policy to its initial base step.
func (p *Policy) Reset() {
	p.mu.Lock()
	p.attempt = 0
	p.mu.Unlock()
}

// Attempt reports how many delays have been issued since the last reset.
func (p *Policy) Attempt() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempt
}

// ComputeNth returns the n-th unjittered delay in seconds for the given
// base/factor/cap series. It is pure, which keeps reconnect schedules
// deterministic in tests.
func ComputeNth(base, factor, cap float64, n int) float64 {
	if base <= 0 || factor <= 0 || cap <= 0 || n < 0 {
		return 0
	}
	v := base * math.Pow(factor, float64(n))
	if math.IsInf(v, 1) || v > cap {
		return cap
	}
	return v
}
