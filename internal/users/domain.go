// Package users exposes public profiles, the subscription endpoint and
// the moderation controls over accounts (ban, mute).
package users

import "time"

// Profile is the public view of an account plus the status fields
// moderation acts on.
type Profile struct {
	ID         int64      `json:"id"`
	Username   string     `json:"username"`
	Bio        string     `json:"bio,omitempty"`
	AvatarURL  string     `json:"avatar_url,omitempty"`
	Role       string     `json:"role"`
	Tier       string     `json:"tier"`
	Banned     bool       `json:"banned"`
	Muted      bool       `json:"muted"`
	MutedUntil *time.Time `json:"muted_until,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ProfileInput is the payload for editing a profile.
type ProfileInput struct {
	Bio       string `json:"bio" validate:"max=500"`
	AvatarURL string `json:"avatar_url" validate:"omitempty,url"`
}

// MuteInput is the payload for muting an account. A zero duration means
// the mute holds until it is lifted by hand.
type MuteInput struct {
	Minutes int    `json:"minutes" validate:"min=0,max=525600"`
	Reason  string `json:"reason" validate:"max=500"`
}

// BanInput carries the reason attached to the audit record.
type BanInput struct {
	Reason string `json:"reason" validate:"max=500"`
}

// SubscriptionInput is the payload for changing the caller's own tier.
type SubscriptionInput struct {
	Tier   string `json:"tier" validate:"required,oneof=BASIC PREMIUM VIP"`
	Months int    `json:"months" validate:"required,min=1,max=24"`
}
