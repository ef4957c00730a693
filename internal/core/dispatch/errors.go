package dispatch

import "fmt"

// RetriesExhaustedError is the terminal error for a call whose retryable
// failures outlasted the attempt budget. It wraps the last underlying error
// so callers can distinguish "the provider is broken for this call" from
// "the provider is slow".
type RetriesExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetriesExhaustedError) Error() string {
	if e == nil {
		return "retries exhausted"
	}
	return fmt.Sprintf("Max retries (%d) exceeded: %v", e.Attempts, e.Err)
}

func (e *RetriesExhaustedError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
