package identity

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

// FindUser fetches the policy-relevant fields of a user row.
func (r *PGRepository) FindUser(ctx context.Context, id int64) (*Principal, error) {
	const query = `
		SELECT id, username, role, is_banned, is_muted, muted_until, subscription_tier, subscription_expires_at
		FROM users
		WHERE id = $1`

	var (
		p          Principal
		roleStr    string
		tierStr    string
		mutedUntil *time.Time
		tierExpiry *time.Time
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Username, &roleStr, &p.Banned, &p.Muted, &mutedUntil, &tierStr, &tierExpiry,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}

	role, err := ParseRole(roleStr)
	if err != nil {
		return nil, err
	}
	tier, err := ParseTier(tierStr)
	if err != nil {
		return nil, err
	}
	p.Role = role
	p.Tier = tier
	p.MutedUntil = mutedUntil
	p.TierExpiresAt = tierExpiry
	return &p, nil
}

// ClearMute removes an expired mute. Idempotent: the guard clause makes
// concurrent duplicate clears no-ops.
func (r *PGRepository) ClearMute(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET is_muted = FALSE, muted_until = NULL WHERE id = $1 AND is_muted`, id)
	return err
}

// ClearExpiredTier resets a lapsed subscription to the free tier.
func (r *PGRepository) ClearExpiredTier(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET subscription_tier = 'FREE', subscription_expires_at = NULL WHERE id = $1 AND subscription_tier <> 'FREE'`, id)
	return err
}

var _ Repository = (*PGRepository)(nil)
