package pipeline

import (
	"math/rand"
	"time"
)

// backoffDelay computes the delay before the next attempt using exponential
// backoff with jitter. attempt is 1-based (delay before attempt 2 uses
// attempt=1). Jitter stays within ±12.5% so successive delays remain
// strictly increasing until the cap is reached.
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	exp := base << uint(attempt-1) //nolint:gosec // attempt is bounded by max_attempts

	jitter := time.Duration(rand.Int63n(int64(exp)/4+1)) - exp/8
	delay := exp + jitter

	if max > 0 && delay > max {
		delay = max
	}
	return delay
}
