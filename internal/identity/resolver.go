package identity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/chapterhouse/chapterhouse/internal/shared"
)

// Repository defines the durable user state the resolver reads and heals.
type Repository interface {
	FindUser(ctx context.Context, id int64) (*Principal, error)
	ClearMute(ctx context.Context, id int64) error
	ClearExpiredTier(ctx context.Context, id int64) error
}

// Resolver assembles a Principal from durable user state. It decides
// nothing itself; authorization is the policy package's job.
type Resolver struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewResolver constructs a Resolver.
func NewResolver(repo Repository, logger *slog.Logger) *Resolver {
	return &Resolver{repo: repo, logger: logger, now: time.Now}
}

// Resolve loads the principal for the given user id. A mute observed past
// its expiry is cleared in storage on the spot; concurrent duplicate
// clears are harmless. Expired subscription tiers degrade to FREE the
// same way.
func (r *Resolver) Resolve(ctx context.Context, userID int64) (*Principal, error) {
	p, err := r.repo.FindUser(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrUnauthenticated
		}
		return nil, err
	}

	now := r.now()

	if p.Muted && p.MutedUntil != nil && !p.MutedUntil.After(now) {
		if err := r.repo.ClearMute(ctx, p.ID); err != nil {
			// Keep serving the unmuted view; the next resolve retries the write.
			r.logger.Warn("clear expired mute", slog.Int64("user_id", p.ID), slog.Any("error", err))
		}
		p.Muted = false
		p.MutedUntil = nil
	}

	if p.Tier > TierFree && p.TierExpiresAt != nil && !p.TierExpiresAt.After(now) {
		if err := r.repo.ClearExpiredTier(ctx, p.ID); err != nil {
			r.logger.Warn("clear expired tier", slog.Int64("user_id", p.ID), slog.Any("error", err))
		}
		p.Tier = TierFree
		p.TierExpiresAt = nil
	}

	return p, nil
}
