package node

import "time"

// DefaultBackoffShift caps the backoff factor at 1<<3 = 8.
const DefaultBackoffShift = 3

// Backoff returns the delay before reconnect attempt number attempt:
// base << min(attempt, maxShift). Negative attempts are treated as zero.
func Backoff(attempt int, base time.Duration, maxShift uint) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	shift := uint(attempt)
	if shift > maxShift {
		shift = maxShift
	}
	return base << shift
}
