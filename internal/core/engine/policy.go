package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/tollgate/tollgate/internal/core"
)

// TierPolicy maps tier identifiers to quotas. It is a pure lookup built once
// at startup and never mutated afterwards.
type TierPolicy struct {
	quotas   map[core.Tier]core.TierQuota
	fallback core.TierQuota
}

// DefaultQuotas are the shipped per-tier quotas.
var DefaultQuotas = map[core.Tier]core.TierQuota{
	core.TierOne:   {Limit: 60, Window: time.Minute},
	core.TierTwo:   {Limit: 120, Window: time.Minute},
	core.TierThree: {Limit: 300, Window: time.Minute},
}

// NewTierPolicy validates the supplied quotas and returns a policy. The most
// restrictive quota (lowest limit) becomes the fallback for unknown tiers, so
// an unrecognized tier fails safely toward the tightest limit instead of
// erroring.
func NewTierPolicy(quotas map[core.Tier]core.TierQuota) (*TierPolicy, error) {
	if len(quotas) == 0 {
		return nil, fmt.Errorf("tier policy requires at least one tier")
	}

	copied := make(map[core.Tier]core.TierQuota, len(quotas))
	var fallback core.TierQuota
	haveFallback := false

	for tier, quota := range quotas {
		name := core.Tier(strings.TrimSpace(string(tier)))
		if name == "" {
			return nil, fmt.Errorf("tier policy has an empty tier name")
		}
		if quota.Limit <= 0 {
			return nil, fmt.Errorf("tier %s: limit must be positive, got %d", name, quota.Limit)
		}
		if quota.Window <= 0 {
			return nil, fmt.Errorf("tier %s: window must be positive, got %s", name, quota.Window)
		}
		copied[name] = quota

		if !haveFallback || quota.Limit < fallback.Limit {
			fallback = quota
			haveFallback = true
		}
	}

	return &TierPolicy{quotas: copied, fallback: fallback}, nil
}

// Resolve returns the quota for a tier. Unknown tiers resolve to the most
// restrictive configured quota.
func (p *TierPolicy) Resolve(tier core.Tier) core.TierQuota {
	if p == nil {
		return core.TierQuota{Limit: 1, Window: time.Minute}
	}
	if quota, ok := p.quotas[core.Tier(strings.TrimSpace(string(tier)))]; ok {
		return quota
	}
	return p.fallback
}

// MinWindow returns the smallest configured window duration. The sweeper uses
// it to sanity-check its interval.
func (p *TierPolicy) MinWindow() time.Duration {
	if p == nil || len(p.quotas) == 0 {
		return time.Minute
	}
	min := time.Duration(0)
	for _, quota := range p.quotas {
		if min == 0 || quota.Window < min {
			min = quota.Window
		}
	}
	return min
}
