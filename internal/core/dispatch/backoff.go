package dispatch

import (
	"math"
	"time"
)

// retryDelay computes the wait before retrying after failed attempt number
// attempt (1-indexed, post-increment). Exponential growth with uniform
// jitter, capped at MaxDelay; rate-limited failures never retry sooner than
// RateLimitFloor.
func (s *Scheduler) retryDelay(attempt int, class Class) time.Duration {
	delay := time.Duration(float64(s.cfg.BaseDelay) * math.Pow(2, float64(attempt-1)))
	if delay <= 0 || delay > s.cfg.MaxDelay {
		// Also catches overflow from large attempt counts.
		delay = s.cfg.MaxDelay
	} else {
		delay += time.Duration(s.randFloat() * float64(s.cfg.JitterMax))
		if delay > s.cfg.MaxDelay {
			delay = s.cfg.MaxDelay
		}
	}

	if class == ClassRateLimited && delay < s.cfg.RateLimitFloor {
		delay = s.cfg.RateLimitFloor
	}
	return delay
}
