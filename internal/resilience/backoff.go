package resilience

import (
	"context"
	"time"
)

// Backoff computes capped exponential retry delays. The zero value uses a
// 500ms initial delay capped at 30s.
type Backoff struct {
	// Initial is the delay before the second attempt.
	Initial time.Duration

	// Max caps every delay.
	Max time.Duration
}

const (
	defaultBackoffInitial = 500 * time.Millisecond
	defaultBackoffMax     = 30 * time.Second
)

// Delay returns the wait after the given failed attempt (1-based). The delay
// doubles per attempt until it reaches Max.
func (b Backoff) Delay(attempt int) time.Duration {
	initial := b.Initial
	if initial <= 0 {
		initial = defaultBackoffInitial
	}
	maxDelay := b.Max
	if maxDelay <= 0 {
		maxDelay = defaultBackoffMax
	}
	if attempt < 1 {
		attempt = 1
	}
	d := initial
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxDelay {
			return maxDelay
		}
	}
	return min(d, maxDelay)
}

// Sleep waits for d or until ctx is cancelled, whichever comes first. It
// returns ctx.Err() on cancellation.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
