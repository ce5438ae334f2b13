package scraper

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// Pauser waits between page requests.
type Pauser interface {
	Pause(ctx context.Context, d time.Duration) error
}

type timerPauser struct{}

func (timerPauser) Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("pause interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

// jitter returns a duration drawn uniformly from [minDelay, maxDelay].
func jitter(minDelay, maxDelay time.Duration, int64n func(int64) int64) time.Duration {
	if maxDelay <= minDelay {
		return minDelay
	}
	if int64n == nil {
		int64n = rand.Int64N
	}
	return minDelay + time.Duration(int64n(int64(maxDelay-minDelay)+1))
}
