package retry

import "time"

// ExponentialBackoff returns delay based on attempt number.
// The delay doubles with each attempt: base * 2^attempt, capped so a
// runaway attempt counter cannot overflow into a negative duration.
func ExponentialBackoff(attempt int, base time.Duration) time.Duration {
	if attempt > 16 {
		attempt = 16
	}
	return base * (1 << attempt)
}
