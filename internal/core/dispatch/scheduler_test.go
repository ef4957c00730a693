package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// timeline is a deterministic clock: sleeps advance it instantly and are
// recorded, so timing assertions do not depend on wall-clock time.
type timeline struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newTimeline() *timeline {
	return &timeline{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (tl *timeline) Now() time.Time {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return tl.now
}

func (tl *timeline) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.sleeps = append(tl.sleeps, d)
	tl.now = tl.now.Add(d)
	return nil
}

func (tl *timeline) Sleeps() []time.Duration {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	out := make([]time.Duration, len(tl.sleeps))
	copy(out, tl.sleeps)
	return out
}

func newTestScheduler(cfg Config) (*Scheduler, *timeline) {
	tl := newTimeline()
	s := New(cfg)
	s.Clock = tl.Now
	s.Sleep = tl.Sleep
	s.Rand = func() float64 { return 0 }
	return s, tl
}

func succeedWith(value string) Call {
	return func(ctx context.Context) (any, error) { return value, nil }
}

// failNTimes fails the first n attempts with message, then succeeds.
func failNTimes(n int, message string) Call {
	attempts := 0
	return func(ctx context.Context) (any, error) {
		attempts++
		if attempts <= n {
			return nil, errors.New(message)
		}
		return "ok", nil
	}
}

func TestSubmitDeliversResult(t *testing.T) {
	s, _ := newTestScheduler(Config{})

	value, err := s.Do(context.Background(), succeedWith("hello"), Meta{"section": "overview"})
	require.NoError(t, err)
	require.Equal(t, "hello", value)

	stats := s.Snapshot()
	require.Equal(t, uint64(1), stats.TotalDispatched)
	require.Equal(t, uint64(1), stats.TotalSucceeded)
	require.Equal(t, uint64(0), stats.TotalFailed)
}

func TestFIFOOrderingSingleFlight(t *testing.T) {
	s, _ := newTestScheduler(Config{})

	var mu sync.Mutex
	var order []int
	inFlight := 0
	maxInFlight := 0

	var pendings []*Pending
	for i := 0; i < 5; i++ {
		i := i
		pendings = append(pendings, s.Submit(context.Background(), func(ctx context.Context) (any, error) {
			mu.Lock()
			inFlight++
			if inFlight > maxInFlight {
				maxInFlight = inFlight
			}
			order = append(order, i)
			inFlight--
			mu.Unlock()
			return i, nil
		}, nil))
	}

	for i, p := range pendings {
		value, err := p.Wait(context.Background())
		require.NoError(t, err)
		require.Equal(t, i, value)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
	require.Equal(t, 1, maxInFlight)
}

func TestMinimumSpacingBetweenDispatches(t *testing.T) {
	s, tl := newTestScheduler(Config{MinInterval: 2 * time.Second})

	var mu sync.Mutex
	var starts []time.Time
	s.Hooks.OnDispatch = func(meta Meta, attempt int) {
		mu.Lock()
		starts = append(starts, tl.Now())
		mu.Unlock()
	}

	var pendings []*Pending
	for i := 0; i < 4; i++ {
		pendings = append(pendings, s.Submit(context.Background(), succeedWith("ok"), nil))
	}
	for _, p := range pendings {
		_, err := p.Wait(context.Background())
		require.NoError(t, err)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, starts, 4)
	for i := 1; i < len(starts); i++ {
		require.GreaterOrEqual(t, starts[i].Sub(starts[i-1]), 2*time.Second,
			"dispatch %d violated minimum spacing", i)
	}
}

// Sixteen instant calls against a 15-per-minute quota: the first fifteen go
// out spaced by the minimum interval, the sixteenth waits for the window.
func TestQuotaWindowBlocksSixteenthCall(t *testing.T) {
	s, tl := newTestScheduler(Config{
		QuotaLimit:  15,
		QuotaWindow: time.Minute,
		MinInterval: 2 * time.Second,
	})

	var mu sync.Mutex
	var quotaWaits []time.Duration
	s.Hooks.OnQuotaWait = func(meta Meta, wait time.Duration) {
		mu.Lock()
		quotaWaits = append(quotaWaits, wait)
		mu.Unlock()
	}

	start := tl.Now()
	var pendings []*Pending
	for i := 0; i < 16; i++ {
		pendings = append(pendings, s.Submit(context.Background(), succeedWith("ok"), nil))
	}
	for _, p := range pendings {
		_, err := p.Wait(context.Background())
		require.NoError(t, err)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, quotaWaits, 1)

	// Calls 1-15 dispatch at 0s, 2s, ..., 28s. The window opened at 0s, so
	// call 16 waits the remaining 32s and dispatches at the 60s boundary.
	require.Equal(t, 32*time.Second, quotaWaits[0])
	require.Equal(t, start.Add(60*time.Second), s.Snapshot().LastDispatchAt)

	stats := s.Snapshot()
	require.Equal(t, uint64(16), stats.TotalDispatched)
	require.Equal(t, 1, stats.WindowCount, "sixteenth dispatch lands in a fresh window")
}

func TestTransientFailureRetriesThenSucceeds(t *testing.T) {
	s, _ := newTestScheduler(Config{BaseDelay: time.Second, JitterMax: time.Second, MaxDelay: 30 * time.Second})
	s.Rand = func() float64 { return 0.5 }

	var mu sync.Mutex
	attempts := 0
	var retryWaits []time.Duration
	s.Hooks.OnDispatch = func(meta Meta, attempt int) {
		mu.Lock()
		attempts = attempt
		mu.Unlock()
	}
	s.Hooks.OnRetryWait = func(meta Meta, attempt int, class Class, delay time.Duration) {
		mu.Lock()
		retryWaits = append(retryWaits, delay)
		mu.Unlock()
		require.Equal(t, ClassTransient, class)
	}

	value, err := s.Do(context.Background(), failNTimes(2, "503 Service Unavailable"), nil)
	require.NoError(t, err)
	require.Equal(t, "ok", value)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 3, attempts)
	require.Len(t, retryWaits, 2)

	// base*2^0 + jitter/2, then base*2^1 + jitter/2.
	require.Equal(t, 1500*time.Millisecond, retryWaits[0])
	require.Equal(t, 2500*time.Millisecond, retryWaits[1])
}

func TestBackoffGrowthStaysWithinBounds(t *testing.T) {
	s, _ := newTestScheduler(Config{
		BaseDelay: time.Second,
		JitterMax: time.Second,
		MaxDelay:  30 * time.Second,
	})

	for _, jitter := range []float64{0, 0.999} {
		s.Rand = func() float64 { return jitter }
		for attempt := 1; attempt <= 6; attempt++ {
			delay := s.retryDelay(attempt, ClassTransient)
			lower := time.Duration(1<<(attempt-1)) * time.Second
			upper := lower + time.Second
			if lower > 30*time.Second {
				lower = 30 * time.Second
			}
			if upper > 30*time.Second {
				upper = 30 * time.Second
			}
			require.GreaterOrEqual(t, delay, lower, "attempt %d jitter %v", attempt, jitter)
			require.LessOrEqual(t, delay, upper, "attempt %d jitter %v", attempt, jitter)
		}
	}
}

func TestRateLimitFloorOverridesEarlyBackoff(t *testing.T) {
	s, _ := newTestScheduler(Config{
		BaseDelay:      time.Second,
		RateLimitFloor: 10 * time.Second,
	})

	var mu sync.Mutex
	var waits []time.Duration
	s.Hooks.OnRetryWait = func(meta Meta, attempt int, class Class, delay time.Duration) {
		require.Equal(t, ClassRateLimited, class)
		mu.Lock()
		waits = append(waits, delay)
		mu.Unlock()
	}

	value, err := s.Do(context.Background(), failNTimes(1, "429 Too Many Requests"), nil)
	require.NoError(t, err)
	require.Equal(t, "ok", value)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, waits, 1)
	require.GreaterOrEqual(t, waits[0], 10*time.Second)
}

func TestFatalErrorFailsFast(t *testing.T) {
	s, tl := newTestScheduler(Config{MinInterval: time.Millisecond})

	fatal := errors.New("400 Bad Request: missing model")
	attempts := 0
	_, err := s.Do(context.Background(), func(ctx context.Context) (any, error) {
		attempts++
		return nil, fatal
	}, nil)

	require.ErrorIs(t, err, fatal)
	require.Equal(t, 1, attempts)

	var exhausted *RetriesExhaustedError
	require.False(t, errors.As(err, &exhausted))

	// No retry-wait sleeps: the only recorded sleeps come from admission,
	// and the first dispatch needs none.
	require.Empty(t, tl.Sleeps())
}

func TestRetriesExhaustedAfterMaxAttempts(t *testing.T) {
	s, _ := newTestScheduler(Config{MaxRetries: 5})

	attempts := 0
	_, err := s.Do(context.Background(), func(ctx context.Context) (any, error) {
		attempts++
		return nil, fmt.Errorf("timeout contacting provider (attempt %d)", attempts)
	}, nil)

	require.Equal(t, 5, attempts)

	var exhausted *RetriesExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, 5, exhausted.Attempts)
	require.Contains(t, err.Error(), "Max retries (5) exceeded")
	require.Contains(t, err.Error(), "timeout contacting provider (attempt 5)")
}

func TestFatalOnFinalAttemptReportsExhausted(t *testing.T) {
	s, _ := newTestScheduler(Config{MaxRetries: 2})

	calls := 0
	_, err := s.Do(context.Background(), func(ctx context.Context) (any, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("503 Service Unavailable")
		}
		return nil, errors.New("400 Bad Request")
	}, nil)

	// The attempt budget is checked before classification takes effect, so
	// the final failure surfaces as retries exhausted even though it is
	// fatal on its own.
	var exhausted *RetriesExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, 2, exhausted.Attempts)
	require.Contains(t, err.Error(), "400 Bad Request")
}

func TestQuotaWindowResetsAfterIdle(t *testing.T) {
	s, tl := newTestScheduler(Config{QuotaLimit: 2, QuotaWindow: time.Minute, MinInterval: time.Second})

	for i := 0; i < 2; i++ {
		_, err := s.Do(context.Background(), succeedWith("ok"), nil)
		require.NoError(t, err)
	}
	require.Equal(t, 2, s.Snapshot().WindowCount)

	// Idle past the window boundary; the next admission starts a new window.
	tl.mu.Lock()
	tl.now = tl.now.Add(2 * time.Minute)
	tl.mu.Unlock()

	_, err := s.Do(context.Background(), succeedWith("ok"), nil)
	require.NoError(t, err)
	require.Equal(t, 1, s.Snapshot().WindowCount)
}

func TestSubmitNilCall(t *testing.T) {
	s, _ := newTestScheduler(Config{})
	_, err := s.Submit(context.Background(), nil, nil).Wait(context.Background())
	require.Error(t, err)
}

func TestPendingWaitHonorsContext(t *testing.T) {
	s, _ := newTestScheduler(Config{})

	release := make(chan struct{})
	pending := s.Submit(context.Background(), func(ctx context.Context) (any, error) {
		<-release
		return "late", nil
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := pending.Wait(ctx)
	require.ErrorIs(t, err, context.Canceled)

	// The call itself is unaffected by the abandoned wait.
	close(release)
	value, err := pending.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, "late", value)
}

func TestConcurrentSubmitKeepsAllResults(t *testing.T) {
	s, _ := newTestScheduler(Config{})

	const n = 20
	results := make([]*Pending, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = s.Submit(context.Background(), succeedWith(fmt.Sprintf("r%d", i)), nil)
		}()
	}
	wg.Wait()

	for i, p := range results {
		value, err := p.Wait(context.Background())
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("r%d", i), value)
	}

	stats := s.Snapshot()
	require.Equal(t, uint64(n), stats.TotalSucceeded)
	require.Equal(t, 0, stats.Queued)
}

// Per-attempt timeouts are the optional strengthening over the baseline
// behavior: without AttemptTimeout a stalled call would block the queue
// forever.
func TestAttemptTimeoutRetriesAsTransient(t *testing.T) {
	tl := newTimeline()
	s := New(Config{MaxRetries: 2, AttemptTimeout: 10 * time.Millisecond})
	s.Clock = tl.Now
	s.Sleep = tl.Sleep
	s.Rand = func() float64 { return 0 }

	var mu sync.Mutex
	var classes []Class
	s.Hooks.OnRetryWait = func(meta Meta, attempt int, class Class, delay time.Duration) {
		mu.Lock()
		classes = append(classes, class)
		mu.Unlock()
	}

	_, err := s.Do(context.Background(), func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, nil)

	var exhausted *RetriesExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Contains(t, err.Error(), "attempt timeout")

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []Class{ClassTransient}, classes)
}
