package utils

import (
	"context"
	"testing"
	"time"
)

func TestThrottlePausesEveryN(t *testing.T) {
	var pauses []time.Duration
	throttle := NewThrottle(3, time.Second).WithSleep(func(_ context.Context, d time.Duration) error {
		pauses = append(pauses, d)
		return nil
	})
	for i := 0; i < 7; i++ {
		if err := throttle.Tick(context.Background()); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}
	if len(pauses) != 2 {
		t.Fatalf("expected 2 pauses, got %d", len(pauses))
	}
}

func TestThrottleDisabled(t *testing.T) {
	throttle := NewThrottle(0, time.Second).WithSleep(func(context.Context, time.Duration) error {
		t.Fatal("unexpected pause")
		return nil
	})
	if err := throttle.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
}

func TestSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Hour); err == nil {
		t.Fatal("expected context error")
	}
}
