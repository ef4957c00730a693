// Package core holds the shared domain types for dispatch-quota persistence.
package core

import "time"

// QuotaState is the persisted dispatch-quota snapshot for one provider.
// WindowCount and WindowResetAt mirror the scheduler's fixed quota window;
// LastRateLimitAt records the most recent rate-limited failure, if any.
type QuotaState struct {
	WindowCount     int
	WindowResetAt   time.Time
	LastDispatchAt  time.Time
	LastRateLimitAt *time.Time
	TotalDispatched uint64
}

// Expired reports whether the persisted window has already lapsed at now.
// Expired state is safe to discard; a scheduler seeded from it would start
// a fresh window anyway.
func (s *QuotaState) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	return !s.WindowResetAt.After(now)
}
