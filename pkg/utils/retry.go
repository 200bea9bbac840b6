package utils

import (
	"math/rand/v2"
	"time"
)

// CalculateBackoff returns exponential backoff with up to 25% jitter, capped at 30s.
// Attempt 0 means no delay.
func CalculateBackoff(baseDelay time.Duration, attempt int) time.Duration {
	if attempt <= 0 || baseDelay <= 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}
	backoff := baseDelay * time.Duration(1<<uint(attempt-1))
	if backoff > 30*time.Second || backoff <= 0 {
		backoff = 30 * time.Second
	}
	if quarter := int64(backoff) / 4; quarter > 0 {
		backoff += time.Duration(rand.Int64N(2*quarter)) - time.Duration(quarter)
	}
	return backoff
}
