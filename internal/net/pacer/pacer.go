// Package pacer smooths outbound packet transmission to the rate the
// congestion controller currently allows, replacing bursty back-to-back
// writes with a token-bucket drip (SPEC_FULL §11: pacing is a real
// component, not folded into the engine or the congestion controller).
package pacer

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// minBurst keeps the limiter usable at very low rates: with a burst smaller
// than one typical uTP packet, WaitN would return an error for that packet,
// since a request larger than the burst can never be granted.
const minBurst = 1500

// Config configures a new Pacer.
type Config struct {
	// BurstBytes floors the token bucket's burst size. Zero falls back to
	// minBurst.
	BurstBytes int
}

// DefaultConfig returns the default pacer configuration.
func DefaultConfig() *Config {
	return &Config{BurstBytes: minBurst}
}

// Pacer is a byte-rate token bucket. Callers report bytes before sending
// them; Wait blocks until the bucket has capacity.
type Pacer struct {
	mu         sync.Mutex
	limiter    *rate.Limiter
	burstFloor int
}

// New creates a Pacer starting at ratePerSec bytes/sec with the default
// burst floor. A ratePerSec of 0 means unpaced (the limiter is not
// consulted).
func New(ratePerSec uint64) *Pacer {
	return NewWithConfig(ratePerSec, nil)
}

// NewWithConfig creates a Pacer using cfg's burst floor (DefaultConfig if
// cfg is nil or BurstBytes is zero).
func NewWithConfig(ratePerSec uint64, cfg *Config) *Pacer {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	burstFloor := cfg.BurstBytes
	if burstFloor <= 0 {
		burstFloor = minBurst
	}
	p := &Pacer{burstFloor: burstFloor}
	p.SetRate(ratePerSec)
	return p
}

// SetRate updates the pacing rate, e.g. after a fresh bbr.BBR.Bandwidth()
// or bbr.BBR.Stats().PacingRate reading.
func (p *Pacer) SetRate(ratePerSec uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ratePerSec == 0 {
		p.limiter = nil
		return
	}
	burst := p.burstFloor
	if burst <= 0 {
		burst = minBurst
	}
	if int(ratePerSec) > burst {
		burst = int(ratePerSec)
	}
	if p.limiter == nil {
		p.limiter = rate.NewLimiter(rate.Limit(ratePerSec), burst)
		return
	}
	p.limiter.SetLimit(rate.Limit(ratePerSec))
	p.limiter.SetBurst(burst)
}

// Wait blocks until n bytes' worth of send budget is available, or ctx is
// cancelled. An unpaced Pacer (rate 0) returns immediately.
func (p *Pacer) Wait(ctx context.Context, n int) error {
	p.mu.Lock()
	limiter := p.limiter
	p.mu.Unlock()

	if limiter == nil || n <= 0 {
		return nil
	}
	return limiter.WaitN(ctx, n)
}
