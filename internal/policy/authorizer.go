// Package policy evaluates role, ownership and mute rules against a
// resolved principal. Every check is a small pure predicate; handlers
// compose exactly the checks their action needs rather than routing
// through a per-endpoint policy table.
package policy

import (
	"time"

	"github.com/chapterhouse/chapterhouse/internal/identity"
)

// Metrics receives a signal for every denied check.
type Metrics interface {
	PolicyDenied(reason string)
}

// Authorizer evaluates access checks. The zero value uses wall-clock time.
type Authorizer struct {
	now     func() time.Time
	metrics Metrics
}

// NewAuthorizer constructs an Authorizer.
func NewAuthorizer() *Authorizer {
	return &Authorizer{now: time.Now}
}

// SetMetrics attaches a denial counter. Nil disables reporting.
func (a *Authorizer) SetMetrics(m Metrics) {
	a.metrics = m
}

func (a *Authorizer) deny(d Decision) Decision {
	if a.metrics != nil {
		a.metrics.PolicyDenied(d.Reason.String())
	}
	return d
}

// RequireAuth denies when there is no principal or the account is banned.
func (a *Authorizer) RequireAuth(p *identity.Principal) Decision {
	if p == nil {
		return a.deny(Deny(ReasonUnauthenticated))
	}
	if p.Banned {
		return a.deny(Deny(ReasonBanned))
	}
	return Allow()
}

// RequireRole allows principals whose role satisfies the minimum. The
// hierarchy is a total order, so ADMIN satisfies every requirement.
func (a *Authorizer) RequireRole(p *identity.Principal, min identity.Role) Decision {
	if d := a.RequireAuth(p); !d.Allowed {
		return d
	}
	if !p.Role.AtLeast(min) {
		return a.deny(Deny(ReasonInsufficientRole))
	}
	return Allow()
}

// RequireOwnership allows the resource owner and any admin. The admin
// override exists to support moderation of arbitrary resources.
func (a *Authorizer) RequireOwnership(p *identity.Principal, resourceOwnerID int64) Decision {
	if d := a.RequireAuth(p); !d.Allowed {
		return d
	}
	if p.ID == resourceOwnerID || p.Role == identity.RoleAdmin {
		return Allow()
	}
	return a.deny(Deny(ReasonNotOwner))
}

// RequireNotMuted denies while a mute is in effect. A mute without an
// expiry is indefinite. The expiry, when present, is surfaced on the
// decision for display.
func (a *Authorizer) RequireNotMuted(p *identity.Principal) Decision {
	if d := a.RequireAuth(p); !d.Allowed {
		return d
	}
	if !p.Muted {
		return Allow()
	}
	if p.MutedUntil != nil && !p.MutedUntil.After(a.nowFn()) {
		// Expired mute not yet healed in storage; treat as cleared.
		return Allow()
	}
	d := Deny(ReasonMuted)
	d.MutedUntil = p.MutedUntil
	return a.deny(d)
}

// RequireTier allows principals whose subscription tier satisfies the
// minimum, gating entitlement-only content such as early-access chapters.
func (a *Authorizer) RequireTier(p *identity.Principal, min identity.Tier) Decision {
	if d := a.RequireAuth(p); !d.Allowed {
		return d
	}
	if !p.Tier.AtLeast(min) {
		return a.deny(Deny(ReasonInsufficientTier))
	}
	return Allow()
}

func (a *Authorizer) nowFn() time.Time {
	if a.now != nil {
		return a.now()
	}
	return time.Now()
}
