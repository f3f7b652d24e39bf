package runner

import (
	"math/rand"
	"sync"
	"time"
)

// Backoff defaults.
const (
	DefaultInitialBackoff    = time.Second
	DefaultMaxBackoff        = 30 * time.Second
	DefaultBackoffMultiplier = 2.0
	DefaultBackoffJitter     = 0.1
)

// Backoff computes the delay before a retry: Initial * Multiplier^(n-1),
// capped at Max, then spread by up to ±Jitter of itself.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64 // fraction in [0, 1]

	mu  sync.Mutex
	rng *rand.Rand
}

// DefaultBackoff returns the default policy: 1s doubling to 30s with 10%
// jitter.
func DefaultBackoff() *Backoff {
	return &Backoff{
		Initial:    DefaultInitialBackoff,
		Max:        DefaultMaxBackoff,
		Multiplier: DefaultBackoffMultiplier,
		Jitter:     DefaultBackoffJitter,
	}
}

// Delay returns the wait before retry number retry (1-based).
func (b *Backoff) Delay(retry int) time.Duration {
	initial, max, mult := b.Initial, b.Max, b.Multiplier
	if initial <= 0 {
		initial = DefaultInitialBackoff
	}
	if max <= 0 {
		max = DefaultMaxBackoff
	}
	if mult < 1 {
		mult = DefaultBackoffMultiplier
	}

	d := float64(initial)
	for i := 1; i < retry; i++ {
		d *= mult
		if d >= float64(max) {
			d = float64(max)
			break
		}
	}
	if d > float64(max) {
		d = float64(max)
	}

	if b.Jitter > 0 {
		j := b.Jitter
		if j > 1 {
			j = 1
		}
		d += d * j * (2*b.random() - 1)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

func (b *Backoff) random() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rng == nil {
		b.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return b.rng.Float64()
}
