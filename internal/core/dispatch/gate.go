package dispatch

import (
	"context"
	"time"
)

// quotaWindow tracks dispatches inside the current fixed window.
// count <= limit holds immediately after every admission.
type quotaWindow struct {
	count   int
	resetAt time.Time
}

// admit blocks until the next dispatch is allowed: first the quota window,
// then the minimum inter-dispatch spacing. It counts the dispatch attempt
// (not its eventual success) and stamps lastDispatchAt on the way out.
//
// A window that fills up is reset as soon as the wait for resetAt completes
// rather than rolling per-dispatch. This mirrors the behavior the provider
// quotas were tuned against; the worst case is a short burst straddling a
// window boundary.
func (s *Scheduler) admit(ctx context.Context, meta Meta) error {
	now := s.now()

	s.mu.Lock()
	if !now.Before(s.window.resetAt) {
		s.window.count = 0
		s.window.resetAt = now.Add(s.cfg.QuotaWindow)
	}
	var quotaWait time.Duration
	if s.window.count >= s.cfg.QuotaLimit {
		quotaWait = s.window.resetAt.Sub(now)
	}
	s.mu.Unlock()

	if quotaWait > 0 {
		s.emitQuotaWait(meta, quotaWait)
		if err := s.sleep(ctx, quotaWait); err != nil {
			return err
		}
		now = s.now()
		s.mu.Lock()
		s.window.count = 0
		s.window.resetAt = now.Add(s.cfg.QuotaWindow)
		s.mu.Unlock()
	}

	s.mu.Lock()
	last := s.lastDispatchAt
	s.mu.Unlock()

	if !last.IsZero() {
		if elapsed := now.Sub(last); elapsed < s.cfg.MinInterval {
			if err := s.sleep(ctx, s.cfg.MinInterval-elapsed); err != nil {
				return err
			}
		}
	}

	s.mu.Lock()
	s.window.count++
	s.lastDispatchAt = s.now()
	s.totalDispatched++
	s.mu.Unlock()
	return nil
}
