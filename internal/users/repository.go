package users

import (
	"context"
	"time"
)

// Repository defines persistence operations for user profiles and
// account status.
type Repository interface {
	FindProfile(ctx context.Context, id int64) (*Profile, error)
	UpdateProfile(ctx context.Context, id int64, bio, avatarURL string) error
	SetBan(ctx context.Context, id int64, banned bool) error
	SetMute(ctx context.Context, id int64, until *time.Time) error
	ClearMute(ctx context.Context, id int64) error
	SetTier(ctx context.Context, id int64, tier string, expiresAt time.Time) error
}
