package engine

import (
	"context"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/tollgate/tollgate/internal/core"
	"github.com/tollgate/tollgate/internal/metrics"
)

// AuditSink receives one record per decision, best effort. Errors from the
// sink are logged by the engine and never reach the request path.
type AuditSink interface {
	Append(ctx context.Context, record core.AuditRecord) error
}

const auditTimeout = 2 * time.Second

// Limiter decides, per caller and endpoint, whether a request may proceed.
//
// CheckLimit and RecordUsage are deliberately separate calls so the HTTP
// layer can emit headers before the handler runs and commit usage after.
// Two concurrent requests for one key can both pass CheckLimit before either
// commits; that brief over-admission is an accepted trade-off for decision
// latency. TryAcquire collapses both into one atomic step for callers that
// want the stricter behavior.
type Limiter struct {
	store  Store
	policy *TierPolicy
	clock  func() time.Time
	audit  AuditSink
	logger *logging.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source, mainly for tests.
func WithClock(clock func() time.Time) Option {
	return func(l *Limiter) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// WithAuditSink attaches a best-effort audit sink.
func WithAuditSink(sink AuditSink) Option {
	return func(l *Limiter) { l.audit = sink }
}

// WithLogger attaches a structured logger for degraded-path reporting.
func WithLogger(logger *logging.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

// WithStore overrides the counter store.
func WithStore(store Store) Option {
	return func(l *Limiter) {
		if store != nil {
			l.store = store
		}
	}
}

// New constructs a Limiter with explicit collaborators; there is no ambient
// global state.
func New(policy *TierPolicy, opts ...Option) *Limiter {
	l := &Limiter{
		store:  NewWindowStore(),
		policy: policy,
		clock:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CheckLimit is the read-only admission decision for one request. It never
// mutates counters. If the store errors the engine fails open: the request
// is allowed with a neutral remaining value and the fault is logged, so a
// degraded limiter never takes the API down with it.
func (l *Limiter) CheckLimit(identity core.Identity, endpoint string) core.Decision {
	now := l.clock()
	quota := l.policy.Resolve(identity.Tier)
	key := core.Key{UserID: identity.UserID, Endpoint: endpoint}

	count, windowStart, err := l.store.CurrentCount(key, now, quota.Window)
	if err != nil {
		l.failOpen("check", key, err)
		return core.Decision{
			Allowed:   true,
			Limit:     quota.Limit,
			Remaining: quota.Limit,
			ResetAt:   now.Add(quota.Window),
		}
	}

	decision := decide(count, quota, windowStart, now)
	l.observe(identity, endpoint, decision, now)
	return decision
}

// RecordUsage commits one unit of usage for the caller. It is only meant to
// be invoked after CheckLimit allowed the same logical request, but the
// store does not trust the caller: the increment is always safe and simply
// advances the counter, rolling the window over first when needed.
func (l *Limiter) RecordUsage(identity core.Identity, endpoint string) {
	now := l.clock()
	quota := l.policy.Resolve(identity.Tier)
	key := core.Key{UserID: identity.UserID, Endpoint: endpoint}

	if _, _, err := l.store.Increment(key, now, quota.Window); err != nil {
		l.failOpen("record", key, err)
	}
}

// TryAcquire is the atomic check-and-commit variant: the counter only
// advances when the request is admitted, and concurrent callers on one key
// can never jointly exceed the limit.
func (l *Limiter) TryAcquire(identity core.Identity, endpoint string) core.Decision {
	now := l.clock()
	quota := l.policy.Resolve(identity.Tier)
	key := core.Key{UserID: identity.UserID, Endpoint: endpoint}

	count, windowStart, err := l.store.CurrentCount(key, now, quota.Window)
	if err != nil {
		l.failOpen("acquire", key, err)
		return core.Decision{
			Allowed:   true,
			Limit:     quota.Limit,
			Remaining: quota.Limit,
			ResetAt:   now.Add(quota.Window),
		}
	}

	if count >= quota.Limit {
		decision := decide(count, quota, windowStart, now)
		l.observe(identity, endpoint, decision, now)
		return decision
	}

	newCount, newStart, err := l.store.Increment(key, now, quota.Window)
	if err != nil {
		l.failOpen("acquire", key, err)
		return core.Decision{
			Allowed:   true,
			Limit:     quota.Limit,
			Remaining: quota.Limit,
			ResetAt:   now.Add(quota.Window),
		}
	}

	decision := decide(newCount-1, quota, newStart, now)
	l.observe(identity, endpoint, decision, now)
	return decision
}

func decide(count int, quota core.TierQuota, windowStart, now time.Time) core.Decision {
	resetAt := windowStart.Add(quota.Window)

	remaining := quota.Limit - count
	if remaining < 0 {
		remaining = 0
	}

	decision := core.Decision{
		Allowed:   count < quota.Limit,
		Limit:     quota.Limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
	if !decision.Allowed {
		decision.RetryAfter = resetAt.Sub(now)
	}
	return decision
}

// observe emits metrics and the best-effort audit record. The audit append
// runs on its own goroutine with a bounded timeout; its completion is never
// awaited on the request path and its failure never surfaces to the caller.
func (l *Limiter) observe(identity core.Identity, endpoint string, decision core.Decision, now time.Time) {
	metrics.RecordDecision(endpoint, string(identity.Tier), decision.Allowed)

	if l.audit == nil {
		return
	}

	record := core.AuditRecord{
		UserID:      identity.UserID,
		Endpoint:    endpoint,
		Tier:        identity.Tier,
		Outcome:     core.OutcomeAllowed,
		RequestedAt: now,
	}
	if !decision.Allowed {
		record.Outcome = core.OutcomeDenied
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
		defer cancel()

		if err := l.audit.Append(ctx, record); err != nil {
			metrics.RecordAuditFailure()
			if l.logger != nil {
				l.logger.Warn("Audit append failed",
					zap.String("user_id", record.UserID),
					zap.String("endpoint", record.Endpoint),
					zap.Error(err))
			}
		}
	}()
}

func (l *Limiter) failOpen(operation string, key core.Key, err error) {
	metrics.RecordFailOpen(operation)
	if l.logger != nil {
		l.logger.Error("Rate limit store degraded, failing open",
			zap.String("operation", operation),
			zap.String("user_id", key.UserID),
			zap.String("endpoint", key.Endpoint),
			zap.Error(err))
	}
}
