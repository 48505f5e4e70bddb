// Package pacing spaces out successive calls to an external service.
package pacing

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer blocks until the next call may start.
type Pacer interface {
	Wait(ctx context.Context) error
}

// None returns a pacer that never waits.
func None() Pacer {
	return nonePacer{}
}

type nonePacer struct{}

func (nonePacer) Wait(ctx context.Context) error {
	return ctx.Err()
}

// Interval returns a pacer that keeps at least d between the start of
// successive calls. The first call is not delayed. A non-positive d
// disables pacing.
func Interval(d time.Duration) Pacer {
	if d <= 0 {
		return None()
	}
	return &intervalPacer{interval: d, now: time.Now}
}

type intervalPacer struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	now      func() time.Time
}

func (p *intervalPacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.last.IsZero() {
		if wait := p.interval - p.now().Sub(p.last); wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p.last = p.now()
	return nil
}

// TokenBucket returns a pacer allowing rps calls per second on average
// with bursts of up to burst calls.
func TokenBucket(rps float64, burst int) Pacer {
	if rps <= 0 || math.IsInf(rps, 1) {
		return None()
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}
