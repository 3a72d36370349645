package shared

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates a uniqueness conflict.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrValidation indicates the request payload failed validation.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthenticated indicates no valid session.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden indicates the principal lacks the required role.
	ErrForbidden = errors.New("forbidden")
	// ErrNotOwner indicates the principal does not own the resource.
	ErrNotOwner = errors.New("not resource owner")
	// ErrBanned indicates the account is banned.
	ErrBanned = errors.New("account is banned")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// MutedError reports a mute in effect, carrying the expiry for display.
// A nil Until means the mute is indefinite.
type MutedError struct {
	Until *time.Time
}

func (e *MutedError) Error() string {
	if e.Until == nil {
		return "account is muted"
	}
	return fmt.Sprintf("account is muted until %s", e.Until.UTC().Format(time.RFC3339))
}

// RateLimitedError reports an exhausted quota and when it resets.
type RateLimitedError struct {
	Limit   int
	ResetAt time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit of %d exceeded, resets at %s", e.Limit, e.ResetAt.UTC().Format(time.RFC3339))
}

// RetryAfter returns the wait until the window resets, floored at one second.
func (e *RateLimitedError) RetryAfter(now time.Time) time.Duration {
	d := e.ResetAt.Sub(now)
	if d < time.Second {
		return time.Second
	}
	return d
}
