package throttle

import (
	"math/rand/v2"
	"time"
)

// Backoff returns the pre-jitter delay for the given attempt index:
// min(retry * 2^attempt, maxRetry). It never overflows, so very large
// attempt indices clamp to maxRetry exactly.
func Backoff(retry, maxRetry time.Duration, attempt int) time.Duration {
	if retry <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	if retry >= maxRetry {
		return maxRetry
	}
	// retry*2^attempt > maxRetry  <=>  retry > maxRetry>>attempt
	if attempt >= 63 || retry > maxRetry>>uint(attempt) {
		return maxRetry
	}
	return retry << uint(attempt)
}

// Jitter spreads a base delay over [base/2, base).
func Jitter(base time.Duration) time.Duration {
	half := base / 2
	if half <= 0 {
		return base
	}
	return half + rand.N(half)
}
