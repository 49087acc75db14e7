package core

import "time"

// Tier identifies a quota class assigned to an authenticated caller.
type Tier string

const (
	TierOne   Tier = "tier1"
	TierTwo   Tier = "tier2"
	TierThree Tier = "tier3"
)

// Identity is the authenticated caller as seen by the rate limiter.
// Authentication itself happens upstream; the limiter only needs a stable
// unique id and the caller's tier.
type Identity struct {
	UserID string
	Tier   Tier
}

// Key is the composite identity a counter is tracked under. Equality is
// structural, so it is usable directly as a map key.
type Key struct {
	UserID   string
	Endpoint string
}

// TierQuota is the static per-tier quota, loaded once at startup.
type TierQuota struct {
	Limit  int
	Window time.Duration
}

// Decision is the outcome of a rate limit check.
//
// RetryAfter is zero when the request is allowed; when denied it is the
// time until the window resets.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// RetryAfterSeconds returns the Retry-After value in whole seconds,
// rounded up so callers never retry early.
func (d Decision) RetryAfterSeconds() int {
	if d.RetryAfter <= 0 {
		return 0
	}
	secs := int((d.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Outcome records how a decision went, for the audit trail.
type Outcome string

const (
	OutcomeAllowed Outcome = "allowed"
	OutcomeDenied  Outcome = "denied"
)

// AuditRecord is one best-effort audit entry per decision.
type AuditRecord struct {
	UserID      string
	Endpoint    string
	Tier        Tier
	Outcome     Outcome
	RequestedAt time.Time
}
