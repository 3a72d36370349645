package identity

import (
	"fmt"
	"time"
)

// Role is the platform role, a total order: each role satisfies every
// requirement of the roles below it.
type Role int

const (
	RoleUser Role = iota + 1
	RoleCreator
	RoleModerator
	RoleAdmin
)

var roleNames = map[Role]string{
	RoleUser:      "USER",
	RoleCreator:   "CREATOR",
	RoleModerator: "MODERATOR",
	RoleAdmin:     "ADMIN",
}

// String returns the storage representation of the role.
func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("ROLE(%d)", int(r))
}

// Rank exposes the ordering used by role comparisons.
func (r Role) Rank() int { return int(r) }

// AtLeast reports whether the role satisfies the given minimum.
func (r Role) AtLeast(min Role) bool { return r.Rank() >= min.Rank() }

// ParseRole converts a stored role string into a Role.
func ParseRole(s string) (Role, error) {
	for role, name := range roleNames {
		if name == s {
			return role, nil
		}
	}
	return 0, fmt.Errorf("identity: unknown role %q", s)
}

// Tier is the subscription tier, ordered from free to VIP.
type Tier int

const (
	TierFree Tier = iota + 1
	TierBasic
	TierPremium
	TierVIP
)

var tierNames = map[Tier]string{
	TierFree:    "FREE",
	TierBasic:   "BASIC",
	TierPremium: "PREMIUM",
	TierVIP:     "VIP",
}

// String returns the storage representation of the tier.
func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TIER(%d)", int(t))
}

// Rank exposes the ordering used by tier comparisons.
func (t Tier) Rank() int { return int(t) }

// AtLeast reports whether the tier satisfies the given minimum.
func (t Tier) AtLeast(min Tier) bool { return t.Rank() >= min.Rank() }

// ParseTier converts a stored tier string into a Tier.
func ParseTier(s string) (Tier, error) {
	for tier, name := range tierNames {
		if name == s {
			return tier, nil
		}
	}
	return 0, fmt.Errorf("identity: unknown tier %q", s)
}

// Principal is the resolved identity and status for one request. It is
// built fresh per request and never cached, so ban, mute and tier state
// are read-consistent at decision time.
type Principal struct {
	ID            int64
	Username      string
	Role          Role
	Banned        bool
	Muted         bool
	MutedUntil    *time.Time
	Tier          Tier
	TierExpiresAt *time.Time
}
