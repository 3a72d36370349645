package policy

import (
	"time"

	"github.com/chapterhouse/chapterhouse/internal/shared"
)

// Reason classifies the outcome of an access check.
type Reason int

const (
	ReasonOK Reason = iota
	ReasonUnauthenticated
	ReasonInsufficientRole
	ReasonNotOwner
	ReasonBanned
	ReasonMuted
	ReasonRateLimited
	ReasonInsufficientTier
)

var reasonNames = map[Reason]string{
	ReasonOK:               "OK",
	ReasonUnauthenticated:  "UNAUTHENTICATED",
	ReasonInsufficientRole: "INSUFFICIENT_ROLE",
	ReasonNotOwner:         "NOT_OWNER",
	ReasonBanned:           "BANNED",
	ReasonMuted:            "MUTED",
	ReasonRateLimited:      "RATE_LIMITED",
	ReasonInsufficientTier: "INSUFFICIENT_TIER",
}

func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return "UNKNOWN"
}

// Decision is the value result of an access check. It is request-scoped
// and never persisted; only the reason propagates to audit records and
// error responses.
type Decision struct {
	Allowed    bool
	Reason     Reason
	MutedUntil *time.Time
}

// Allow is the single allowed decision.
func Allow() Decision {
	return Decision{Allowed: true, Reason: ReasonOK}
}

// Deny builds a denied decision for the given reason.
func Deny(reason Reason) Decision {
	return Decision{Reason: reason}
}

// Err translates a denied decision into the shared error taxonomy.
// Allowed decisions return nil.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	switch d.Reason {
	case ReasonUnauthenticated:
		return shared.ErrUnauthenticated
	case ReasonInsufficientRole, ReasonInsufficientTier:
		return shared.ErrForbidden
	case ReasonNotOwner:
		return shared.ErrNotOwner
	case ReasonBanned:
		return shared.ErrBanned
	case ReasonMuted:
		return &shared.MutedError{Until: d.MutedUntil}
	default:
		return shared.ErrForbidden
	}
}
