package middleware

import (
	"net/http"
	"strconv"

	"github.com/fulmenhq/gofulmen/errors"

	"github.com/tollgate/tollgate/internal/core"
	"github.com/tollgate/tollgate/internal/core/engine"
)

// Rate limit response headers, matched by the published client examples.
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderRetryAfter         = "Retry-After"
)

// Trusted identity headers populated by the upstream authentication layer.
const (
	HeaderAuthUser = "X-Auth-User"
	HeaderAuthTier = "X-Auth-Tier"
)

// IdentityFunc resolves the authenticated caller for a request. The second
// return is false when no identity is present, in which case the limiter is
// skipped (authentication itself is enforced upstream).
type IdentityFunc func(r *http.Request) (core.Identity, bool)

// HeaderIdentity resolves identity from the trusted gateway headers.
func HeaderIdentity(r *http.Request) (core.Identity, bool) {
	userID := r.Header.Get(HeaderAuthUser)
	if userID == "" {
		return core.Identity{}, false
	}
	return core.Identity{
		UserID: userID,
		Tier:   core.Tier(r.Header.Get(HeaderAuthTier)),
	}, true
}

// RateLimit enforces per-caller, per-endpoint quotas. Mount it inline on the
// routes it protects (router.With(...)) so the chi route pattern is resolved
// before the decision; parameterized routes then share one counter instead
// of one per raw URL.
//
// Every response carries the X-RateLimit header triple. A denied request
// gets 429 with Retry-After and a structured body; the handler is not run
// and no usage is recorded. An allowed request runs the handler first and
// commits usage after, keeping the decision itself side-effect free.
func RateLimit(limiter *engine.Limiter, identify IdentityFunc) func(http.Handler) http.Handler {
	if identify == nil {
		identify = HeaderIdentity
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := identify(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			endpoint := r.Method + " " + getEndpointPattern(r)
			decision := limiter.CheckLimit(identity, endpoint)

			// The decision reads the pre-commit count; the advertised
			// remaining accounts for this request being admitted.
			remaining := decision.Remaining
			if decision.Allowed && remaining > 0 {
				remaining--
			}

			w.Header().Set(HeaderRateLimitLimit, strconv.Itoa(decision.Limit))
			w.Header().Set(HeaderRateLimitRemaining, strconv.Itoa(remaining))
			w.Header().Set(HeaderRateLimitReset, strconv.FormatInt(decision.ResetAt.Unix(), 10))

			if !decision.Allowed {
				retryAfter := decision.RetryAfterSeconds()
				w.Header().Set(HeaderRetryAfter, strconv.Itoa(retryAfter))

				envelope := errors.NewErrorEnvelope("RATE_LIMITED", "Rate limit exceeded for this endpoint").
					WithCorrelationID(GetRequestID(r.Context()))
				envelope, _ = envelope.WithContext(map[string]interface{}{
					"limit":               decision.Limit,
					"retry_after_seconds": retryAfter,
				})

				writeErrorResponse(w, envelope, http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)

			limiter.RecordUsage(identity, endpoint)
		})
	}
}
