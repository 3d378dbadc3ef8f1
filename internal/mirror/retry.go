package mirror

import (
	"math"
	"time"
)

// RetryPolicy shapes the backoff between failed upload attempts. The zero
// value retries nothing; use DefaultRetryPolicy for sane settings. Values are
// never mutated, so a single policy is safe to share across tasks.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt, so a task
	// makes at most MaxRetries+1 attempts.
	MaxRetries        int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        3,
		InitialDelay:      time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2,
	}
}

// DelayForAttempt returns the wait before retry n (0-based): the initial
// delay grown by the multiplier n times, capped at the max delay.
func (p RetryPolicy) DelayForAttempt(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	d := float64(p.InitialDelay) * math.Pow(p.BackoffMultiplier, float64(n))
	if d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}
