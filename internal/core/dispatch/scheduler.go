// Package dispatch serializes calls to a quota-constrained external service.
//
// One Scheduler guards one provider. Callers submit retryable calls and get a
// Pending future back immediately; a single dispatch loop drains the queue in
// strict FIFO order, spacing dispatches by MinInterval, holding to the
// per-window quota, and retrying transient and rate-limited failures with
// exponential backoff and jitter. Fatal failures surface to the caller on the
// first attempt.
//
// Schedulers are constructed explicitly and passed to whatever needs
// throttled access, one per provider instance, each with its own limits.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
)

// Scheduler is the rate-limited dispatcher for one external service.
//
// Submit is safe for concurrent use. The exported function fields are test
// seams and optional overrides; set them before the first Submit, or leave
// them nil for real time, real sleeps, and math/rand jitter.
type Scheduler struct {
	Clock      func() time.Time
	Sleep      func(ctx context.Context, d time.Duration) error
	Rand       func() float64
	Classifier Classifier
	Hooks      Hooks

	cfg Config

	mu              sync.Mutex
	queue           []*envelope
	dispatching     bool
	lastDispatchAt  time.Time
	window          quotaWindow
	totalDispatched uint64
	totalRetries    uint64
	totalSucceeded  uint64
	totalFailed     uint64
}

// Hooks are optional observability callbacks. All fields are nil-safe and
// carry no behavioral contract; they fire from the dispatch loop goroutine.
type Hooks struct {
	OnEnqueue   func(meta Meta, queued int)
	OnDispatch  func(meta Meta, attempt int)
	OnQuotaWait func(meta Meta, wait time.Duration)
	OnRetryWait func(meta Meta, attempt int, class Class, delay time.Duration)
	OnDone      func(meta Meta, attempts int, elapsed time.Duration, err error)
}

// ChainHooks combines hook sets; each callback fires in argument order.
func ChainHooks(hooks ...Hooks) Hooks {
	var out Hooks
	for _, h := range hooks {
		h := h
		prev := out
		if h.OnEnqueue != nil {
			if prev.OnEnqueue == nil {
				out.OnEnqueue = h.OnEnqueue
			} else {
				out.OnEnqueue = func(meta Meta, queued int) {
					prev.OnEnqueue(meta, queued)
					h.OnEnqueue(meta, queued)
				}
			}
		}
		if h.OnDispatch != nil {
			if prev.OnDispatch == nil {
				out.OnDispatch = h.OnDispatch
			} else {
				out.OnDispatch = func(meta Meta, attempt int) {
					prev.OnDispatch(meta, attempt)
					h.OnDispatch(meta, attempt)
				}
			}
		}
		if h.OnQuotaWait != nil {
			if prev.OnQuotaWait == nil {
				out.OnQuotaWait = h.OnQuotaWait
			} else {
				out.OnQuotaWait = func(meta Meta, wait time.Duration) {
					prev.OnQuotaWait(meta, wait)
					h.OnQuotaWait(meta, wait)
				}
			}
		}
		if h.OnRetryWait != nil {
			if prev.OnRetryWait == nil {
				out.OnRetryWait = h.OnRetryWait
			} else {
				out.OnRetryWait = func(meta Meta, attempt int, class Class, delay time.Duration) {
					prev.OnRetryWait(meta, attempt, class, delay)
					h.OnRetryWait(meta, attempt, class, delay)
				}
			}
		}
		if h.OnDone != nil {
			if prev.OnDone == nil {
				out.OnDone = h.OnDone
			} else {
				out.OnDone = func(meta Meta, attempts int, elapsed time.Duration, err error) {
					prev.OnDone(meta, attempts, elapsed, err)
					h.OnDone(meta, attempts, elapsed, err)
				}
			}
		}
	}
	return out
}

// Stats is a point-in-time snapshot of scheduler state.
type Stats struct {
	Queued          int
	Dispatching     bool
	WindowCount     int
	WindowLimit     int
	WindowResetAt   time.Time
	LastDispatchAt  time.Time
	TotalDispatched uint64
	TotalRetries    uint64
	TotalSucceeded  uint64
	TotalFailed     uint64
}

// New returns a scheduler for the given configuration. Zero config fields
// take the package defaults.
func New(cfg Config) *Scheduler {
	cfg = cfg.withDefaults()
	return &Scheduler{
		cfg:        cfg,
		Classifier: NewKeywordClassifier(cfg.RateLimitKeywords, cfg.TransientKeywords),
	}
}

// Config returns the effective (defaulted) configuration.
func (s *Scheduler) Config() Config {
	return s.cfg
}

// Submit appends call to the dispatch queue and returns its pending result.
// It never blocks: admission, execution, and retries all happen on the
// dispatch loop. ctx governs the call's own execution and retry waits, not
// the queue position; canceling it fails the call when the loop reaches it.
func (s *Scheduler) Submit(ctx context.Context, call Call, meta Meta) *Pending {
	if ctx == nil {
		ctx = context.Background()
	}

	pending := newPending()
	if call == nil {
		pending.complete(nil, errors.New("call is required"))
		return pending
	}

	env := &envelope{
		call:        call,
		meta:        meta,
		ctx:         ctx,
		submittedAt: s.now(),
		pending:     pending,
	}

	s.mu.Lock()
	s.queue = append(s.queue, env)
	queued := len(s.queue)
	start := !s.dispatching
	if start {
		s.dispatching = true
	}
	s.mu.Unlock()

	s.emitEnqueue(meta, queued)
	if start {
		go s.run()
	}
	return pending
}

// Do submits call and waits for its terminal outcome.
func (s *Scheduler) Do(ctx context.Context, call Call, meta Meta) (any, error) {
	return s.Submit(ctx, call, meta).Wait(ctx)
}

// Restore seeds the quota window from persisted state. Call before the first
// Submit; a reset time in the past is ignored so a fresh window starts clean.
func (s *Scheduler) Restore(windowCount int, windowResetAt, lastDispatchAt time.Time) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if windowResetAt.After(now) {
		s.window.count = windowCount
		s.window.resetAt = windowResetAt
	}
	if lastDispatchAt.After(s.lastDispatchAt) {
		s.lastDispatchAt = lastDispatchAt
	}
}

// Snapshot returns current queue and quota state.
func (s *Scheduler) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Queued:          len(s.queue),
		Dispatching:     s.dispatching,
		WindowCount:     s.window.count,
		WindowLimit:     s.cfg.QuotaLimit,
		WindowResetAt:   s.window.resetAt,
		LastDispatchAt:  s.lastDispatchAt,
		TotalDispatched: s.totalDispatched,
		TotalRetries:    s.totalRetries,
		TotalSucceeded:  s.totalSucceeded,
		TotalFailed:     s.totalFailed,
	}
}

// run is the dispatch loop: the sole queue consumer. It exits when the queue
// drains; the next Submit restarts it.
func (s *Scheduler) run() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.dispatching = false
			s.mu.Unlock()
			return
		}
		env := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		value, err := s.service(env)

		s.mu.Lock()
		if err != nil {
			s.totalFailed++
		} else {
			s.totalSucceeded++
		}
		s.mu.Unlock()

		s.emitDone(env.meta, env.attempts, s.now().Sub(env.submittedAt), err)
		env.pending.complete(value, err)
	}
}

func (s *Scheduler) service(env *envelope) (any, error) {
	if err := s.admit(env.ctx, env.meta); err != nil {
		return nil, err
	}
	return s.execute(env)
}

// execute runs one envelope to a terminal state, retrying rate-limited and
// transient failures. The attempt budget is checked before the fatal check,
// so a final-attempt failure always reports as retries exhausted.
func (s *Scheduler) execute(env *envelope) (any, error) {
	for {
		env.attempts++
		s.emitDispatch(env.meta, env.attempts)

		value, err := s.invoke(env)
		if err == nil {
			return value, nil
		}

		class := s.classify(err)
		if env.attempts >= s.cfg.MaxRetries {
			return nil, &RetriesExhaustedError{Attempts: env.attempts, Err: err}
		}
		if class == ClassFatal {
			return nil, err
		}

		s.mu.Lock()
		s.totalRetries++
		s.mu.Unlock()

		delay := s.retryDelay(env.attempts, class)
		s.emitRetryWait(env.meta, env.attempts, class, delay)
		if werr := s.sleep(env.ctx, delay); werr != nil {
			return nil, werr
		}
	}
}

// invoke runs a single attempt, applying the per-attempt timeout when
// configured. A timeout is rewritten so the keyword classifier sees it as
// transient rather than fatal.
func (s *Scheduler) invoke(env *envelope) (any, error) {
	if s.cfg.AttemptTimeout <= 0 {
		return env.call(env.ctx)
	}

	ctx, cancel := context.WithTimeout(env.ctx, s.cfg.AttemptTimeout)
	defer cancel()

	value, err := env.call(ctx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && env.ctx.Err() == nil {
		err = fmt.Errorf("attempt timeout after %s: %w", s.cfg.AttemptTimeout, err)
	}
	return value, err
}

func (s *Scheduler) classify(err error) Class {
	if s.Classifier == nil {
		return ClassFatal
	}
	return s.Classifier.Classify(err)
}

func (s *Scheduler) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now().UTC()
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) error {
	if s.Sleep != nil {
		return s.Sleep(ctx, d)
	}
	return sleepContext(ctx, d)
}

func (s *Scheduler) randFloat() float64 {
	if s.Rand != nil {
		return s.Rand()
	}
	return rand.Float64()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// nil-safe hook emitters

func (s *Scheduler) emitEnqueue(meta Meta, queued int) {
	if s.Hooks.OnEnqueue != nil {
		s.Hooks.OnEnqueue(meta, queued)
	}
}

func (s *Scheduler) emitDispatch(meta Meta, attempt int) {
	if s.Hooks.OnDispatch != nil {
		s.Hooks.OnDispatch(meta, attempt)
	}
}

func (s *Scheduler) emitQuotaWait(meta Meta, wait time.Duration) {
	if s.Hooks.OnQuotaWait != nil {
		s.Hooks.OnQuotaWait(meta, wait)
	}
}

func (s *Scheduler) emitRetryWait(meta Meta, attempt int, class Class, delay time.Duration) {
	if s.Hooks.OnRetryWait != nil {
		s.Hooks.OnRetryWait(meta, attempt, class, delay)
	}
}

func (s *Scheduler) emitDone(meta Meta, attempts int, elapsed time.Duration, err error) {
	if s.Hooks.OnDone != nil {
		s.Hooks.OnDone(meta, attempts, elapsed, err)
	}
}
