package utils

import (
	"context"
	"time"
)

// Throttle pauses after every N calls to Tick, to stay under platform rate limits
// during bulk operations.
type Throttle struct {
	every int
	pause time.Duration
	count int
	sleep func(context.Context, time.Duration) error
}

func NewThrottle(every int, pause time.Duration) *Throttle {
	return &Throttle{every: every, pause: pause, sleep: Sleep}
}

// WithSleep replaces the pause function; tests pass a recorder.
func (t *Throttle) WithSleep(sleep func(context.Context, time.Duration) error) *Throttle {
	t.sleep = sleep
	return t
}

func (t *Throttle) Tick(ctx context.Context) error {
	if t.every <= 0 || t.pause <= 0 {
		return ctx.Err()
	}
	t.count++
	if t.count%t.every != 0 {
		return ctx.Err()
	}
	return t.sleep(ctx, t.pause)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
