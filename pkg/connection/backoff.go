package connection

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Backoff defaults.
const (
	// DefaultBase is the delay unit between reconnection attempts.
	DefaultBase = 2 * time.Second

	// DefaultMaxAttempts is the number of reconnection attempts before giving up.
	DefaultMaxAttempts = 3

	// DefaultMultiplier is the growth factor in exponential mode.
	DefaultMultiplier = 2.0
)

// Mode selects how the delay grows with the attempt number.
type Mode uint8

const (
	// ModeLinear waits Base * attempt.
	ModeLinear Mode = iota

	// ModeExponential waits Base * Multiplier^(attempt-1).
	ModeExponential
)

// BackoffConfig allows customizing backoff parameters.
type BackoffConfig struct {
	Mode       Mode
	Base       time.Duration
	Max        time.Duration // zero means uncapped
	Multiplier float64
	Jitter     float64 // fraction of the base delay, 0 disables
}

// Backoff calculates the wait before a reconnection attempt.
type Backoff struct {
	mu  sync.Mutex
	cfg BackoffConfig
	rng *rand.Rand
}

// NewBackoff creates a linear 2s-per-attempt backoff without jitter.
func NewBackoff() *Backoff {
	return NewBackoffWithConfig(BackoffConfig{})
}

// NewBackoffWithConfig creates a backoff calculator with custom settings.
func NewBackoffWithConfig(cfg BackoffConfig) *Backoff {
	if cfg.Base <= 0 {
		cfg.Base = DefaultBase
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = DefaultMultiplier
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}

	return &Backoff{
		cfg: cfg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Delay returns the wait before the given 1-based attempt.
func (b *Backoff) Delay(attempt int) time.Duration {
	return b.addJitter(b.base(attempt))
}

// Sequence returns the delays (without jitter) for attempts 1..n.
func (b *Backoff) Sequence(n int) []time.Duration {
	out := make([]time.Duration, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, b.base(i))
	}
	return out
}

// base returns the unjittered delay for an attempt.
func (b *Backoff) base(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	var d time.Duration
	switch b.cfg.Mode {
	case ModeExponential:
		d = time.Duration(float64(b.cfg.Base) * math.Pow(b.cfg.Multiplier, float64(attempt-1)))
	default:
		d = b.cfg.Base * time.Duration(attempt)
	}

	if b.cfg.Max > 0 && d > b.cfg.Max {
		d = b.cfg.Max
	}
	return d
}

// addJitter adds random jitter to a delay.
func (b *Backoff) addJitter(d time.Duration) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cfg.Jitter <= 0 {
		return d
	}
	return d + time.Duration(float64(d)*b.cfg.Jitter*b.rng.Float64())
}
