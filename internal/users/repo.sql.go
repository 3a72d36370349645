package users

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chapterhouse/chapterhouse/internal/shared"
)

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindProfile fetches the public view of an account.
func (r *PGRepository) FindProfile(ctx context.Context, id int64) (*Profile, error) {
	const query = `
		SELECT id, username, COALESCE(bio, ''), COALESCE(avatar_url, ''),
		       role, subscription_tier, is_banned, is_muted, muted_until, created_at
		FROM users WHERE id = $1`
	var p Profile
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Username, &p.Bio, &p.AvatarURL,
		&p.Role, &p.Tier, &p.Banned, &p.Muted, &p.MutedUntil, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// UpdateProfile rewrites the editable profile fields.
func (r *PGRepository) UpdateProfile(ctx context.Context, id int64, bio, avatarURL string) error {
	const query = `
		UPDATE users SET bio = NULLIF($2, ''), avatar_url = NULLIF($3, ''), updated_at = NOW()
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, bio, avatarURL)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SetBan flips the ban flag.
func (r *PGRepository) SetBan(ctx context.Context, id int64, banned bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET is_banned = $2, updated_at = NOW() WHERE id = $1`, id, banned)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SetMute places a mute. A nil until is an indefinite mute.
func (r *PGRepository) SetMute(ctx context.Context, id int64, until *time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET is_muted = TRUE, muted_until = $2, updated_at = NOW() WHERE id = $1`, id, until)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ClearMute lifts a mute. The guard keeps the write idempotent.
func (r *PGRepository) ClearMute(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET is_muted = FALSE, muted_until = NULL, updated_at = NOW() WHERE id = $1 AND is_muted`, id)
	return err
}

// SetTier applies a subscription change with its expiry.
func (r *PGRepository) SetTier(ctx context.Context, id int64, tier string, expiresAt time.Time) error {
	const query = `
		UPDATE users SET subscription_tier = $2, subscription_expires_at = $3, updated_at = NOW()
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, tier, expiresAt.UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

var _ Repository = (*PGRepository)(nil)
