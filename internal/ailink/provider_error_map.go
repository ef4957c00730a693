package ailink

import (
	"context"
	"errors"
	"strings"

	"github.com/brdforge/brdforge/internal/ailink/driver"
	"github.com/brdforge/brdforge/internal/core/dispatch"
)

// MapProviderError normalizes a provider call failure into a CallError so
// transports outside this package can classify it.
func MapProviderError(err error) *CallError {
	return mapProviderError(err)
}

func mapProviderError(err error) *CallError {
	if err == nil {
		return nil
	}

	var exhausted *dispatch.RetriesExhaustedError
	if errors.As(err, &exhausted) {
		return &CallError{Code: "AILINK_RETRIES_EXHAUSTED", Message: err.Error(), Details: detailsOf(exhausted.Err)}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &CallError{Code: "AILINK_PROVIDER_TIMEOUT", Message: "provider request timed out"}
	}

	var perr *driver.ProviderError
	if errors.As(err, &perr) && perr != nil {
		status := perr.StatusCode
		details := strings.TrimSpace(perr.Message)
		switch {
		case status == 401 || status == 403:
			return &CallError{Code: "AILINK_PROVIDER_AUTH", Message: "provider authentication failed", Details: details}
		case status == 429:
			return &CallError{Code: "AILINK_PROVIDER_RATE_LIMIT", Message: "provider rate limited", Details: details}
		case status >= 500 && status <= 599:
			return &CallError{Code: "AILINK_PROVIDER_UNAVAILABLE", Message: "provider unavailable", Details: details}
		case status >= 400 && status <= 499:
			return &CallError{Code: "AILINK_PROVIDER_BAD_REQUEST", Message: "provider rejected request", Details: details}
		default:
			return &CallError{Code: "AILINK_PROVIDER_ERROR", Message: "provider request failed", Details: details}
		}
	}

	return &CallError{Code: "AILINK_PROVIDER_ERROR", Message: "provider request failed", Details: err.Error()}
}

func detailsOf(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
