package session

import (
	"context"
	"time"
)

// Mode describes how the session advances the simulation.
type Mode int

const (
	// Accelerated iterates as fast as the loop can run. Used for headless
	// runs and tests.
	Accelerated Mode = iota
	// Paced iterates on a fixed ticker so a live view receives snapshots
	// at a steady rate.
	Paced
)

const defaultTickInterval = 16 * time.Millisecond

// pacer gates the iteration loop. In Paced mode it waits out a ticker
// between iterations; in Accelerated mode it only checks for cancellation.
type pacer struct {
	ticker *time.Ticker
}

func newPacer(mode Mode, interval time.Duration) *pacer {
	if mode != Paced {
		return &pacer{}
	}
	if interval <= 0 {
		interval = defaultTickInterval
	}
	return &pacer{ticker: time.NewTicker(interval)}
}

// wait blocks until the next iteration may begin. It reports false when the
// context is done.
func (p *pacer) wait(ctx context.Context) bool {
	if p.ticker == nil {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}
	select {
	case <-p.ticker.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *pacer) stop() {
	if p.ticker != nil {
		p.ticker.Stop()
	}
}
