package metrics

import (
	"time"

	"github.com/tollgate/tollgate/internal/observability"
)

// Application-level metrics following Prometheus conventions
var (
	DecisionsTotal    = "ratelimit_decisions_total"
	FailOpenTotal     = "ratelimit_fail_open_total"
	AuditFailureTotal = "ratelimit_audit_failures_total"

	ActiveEntries = "ratelimit_active_entries"

	SweepsTotal   = "ratelimit_sweeps_total"
	SweepRemoved  = "ratelimit_sweep_removed"
	SweepDuration = "ratelimit_sweep_duration_ms"

	// Server lifecycle metrics
	ServerStartTime = "app_server_start_time_seconds"
	ServerUptime    = "app_server_uptime_seconds"
)

// RecordDecision records one rate limit decision with its outcome.
func RecordDecision(endpoint string, tier string, allowed bool) {
	if observability.TelemetrySystem == nil {
		return
	}

	outcome := "allowed"
	if !allowed {
		outcome = "denied"
	}

	_ = observability.TelemetrySystem.Counter(
		DecisionsTotal,
		1,
		map[string]string{
			"endpoint": endpoint,
			"tier":     tier,
			"outcome":  outcome,
		},
	)
}

// RecordFailOpen records a degraded decision where the store errored and the
// request was allowed anyway.
func RecordFailOpen(operation string) {
	if observability.TelemetrySystem == nil {
		return
	}

	_ = observability.TelemetrySystem.Counter(
		FailOpenTotal,
		1,
		map[string]string{
			"operation": operation,
		},
	)
}

// RecordAuditFailure records a failed best-effort audit append.
func RecordAuditFailure() {
	if observability.TelemetrySystem == nil {
		return
	}

	_ = observability.TelemetrySystem.Counter(AuditFailureTotal, 1, nil)
}

// SetActiveEntries sets the current number of live window entries.
func SetActiveEntries(count int64) {
	if observability.TelemetrySystem == nil {
		return
	}

	_ = observability.TelemetrySystem.Gauge(ActiveEntries, float64(count), nil)
}

// RecordSweep records one sweeper pass.
func RecordSweep(removed int, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}

	_ = observability.TelemetrySystem.Counter(SweepsTotal, 1, nil)

	_ = observability.TelemetrySystem.Gauge(SweepRemoved, float64(removed), nil)

	_ = observability.TelemetrySystem.Histogram(SweepDuration, duration, nil)
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			ServerStartTime,
			float64(timestamp),
			nil,
		)
	}
}

// SetServerUptime records the server uptime in seconds
func SetServerUptime(seconds int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			ServerUptime,
			float64(seconds),
			nil,
		)
	}
}
