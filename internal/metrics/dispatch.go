package metrics

import (
	"time"

	"github.com/brdforge/brdforge/internal/core/dispatch"
	"github.com/brdforge/brdforge/internal/observability"
)

// Dispatch scheduler metric names
const (
	DispatchEnqueuedTotal   = "dispatch_enqueued_total"
	DispatchAttemptsTotal   = "dispatch_attempts_total"
	DispatchRetriesTotal    = "dispatch_retries_total"
	DispatchQuotaWaitTotal  = "dispatch_quota_waits_total"
	DispatchQuotaWaitMs     = "dispatch_quota_wait_duration_ms"
	DispatchOutcomesTotal   = "dispatch_outcomes_total"
	DispatchCallDurationMs  = "dispatch_call_duration_ms"
	DispatchQueueDepthGauge = "dispatch_queue_depth"
)

// SchedulerHooks returns dispatch hooks that emit telemetry counters for one
// provider's scheduler. Safe to install even when telemetry is disabled; each
// callback no-ops without an initialized telemetry system.
func SchedulerHooks(providerID string) dispatch.Hooks {
	return dispatch.Hooks{
		OnEnqueue: func(meta dispatch.Meta, queued int) {
			recordDispatchEnqueue(providerID, queued)
		},
		OnDispatch: func(meta dispatch.Meta, attempt int) {
			recordDispatchAttempt(providerID)
		},
		OnQuotaWait: func(meta dispatch.Meta, wait time.Duration) {
			recordDispatchQuotaWait(providerID, wait)
		},
		OnRetryWait: func(meta dispatch.Meta, attempt int, class dispatch.Class, delay time.Duration) {
			recordDispatchRetry(providerID, string(class))
		},
		OnDone: func(meta dispatch.Meta, attempts int, elapsed time.Duration, err error) {
			recordDispatchOutcome(providerID, elapsed, err)
		},
	}
}

func recordDispatchEnqueue(providerID string, queued int) {
	if observability.TelemetrySystem == nil {
		return
	}
	labels := map[string]string{"provider": providerID}
	_ = observability.TelemetrySystem.Counter(DispatchEnqueuedTotal, 1, labels)
	_ = observability.TelemetrySystem.Gauge(DispatchQueueDepthGauge, float64(queued), labels)
}

func recordDispatchAttempt(providerID string) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(
		DispatchAttemptsTotal,
		1,
		map[string]string{"provider": providerID},
	)
}

func recordDispatchQuotaWait(providerID string, wait time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	labels := map[string]string{"provider": providerID}
	_ = observability.TelemetrySystem.Counter(DispatchQuotaWaitTotal, 1, labels)
	_ = observability.TelemetrySystem.Histogram(DispatchQuotaWaitMs, wait, labels)
}

func recordDispatchRetry(providerID string, class string) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(
		DispatchRetriesTotal,
		1,
		map[string]string{
			"provider": providerID,
			"class":    class,
		},
	)
}

func recordDispatchOutcome(providerID string, elapsed time.Duration, err error) {
	if observability.TelemetrySystem == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	labels := map[string]string{
		"provider": providerID,
		"status":   status,
	}
	_ = observability.TelemetrySystem.Counter(DispatchOutcomesTotal, 1, labels)
	_ = observability.TelemetrySystem.Histogram(
		DispatchCallDurationMs,
		elapsed,
		map[string]string{"provider": providerID},
	)
}
