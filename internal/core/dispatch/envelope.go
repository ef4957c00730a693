package dispatch

import (
	"context"
	"time"
)

// Call is one retryable unit of work against an external service. The
// scheduler may invoke it several times on transient failure, so it must be
// safe to repeat; at-most-once side effects are the caller's responsibility.
type Call func(ctx context.Context) (any, error)

// Meta is caller-supplied context attached to a call for logging and metrics.
// The scheduler never inspects it for control flow.
type Meta map[string]string

// envelope pairs a pending call with its retry bookkeeping. It is owned by
// the dispatch loop from the moment it is popped off the queue.
type envelope struct {
	call        Call
	meta        Meta
	ctx         context.Context
	attempts    int
	submittedAt time.Time
	pending     *Pending
}

// Pending is the single-assignment result slot for a submitted call. The
// dispatch loop completes it exactly once; Wait can be called from any
// goroutine, any number of times.
type Pending struct {
	done  chan struct{}
	value any
	err   error
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

// Wait blocks until the call reaches a terminal state or ctx is canceled.
// Cancellation abandons the wait only; the call itself stays queued.
func (p *Pending) Wait(ctx context.Context) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done returns a channel closed when the call has a terminal outcome.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// complete records the outcome. Closing done a second time panics, which
// enforces the set-exactly-once invariant.
func (p *Pending) complete(value any, err error) {
	p.value = value
	p.err = err
	close(p.done)
}
