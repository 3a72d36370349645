package users

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chapterhouse/chapterhouse/internal/tagcache"
)

func userTag(id int64) string { return fmt.Sprintf("user:%d", id) }

// Service implements profile reads and account-status writes. Profile
// reads are cached long; any status change invalidates the profile so
// the public view reflects moderation immediately.
type Service struct {
	repo   Repository
	cache  *tagcache.Cache
	ttl    tagcache.TTLSet
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the users service.
func NewService(repo Repository, cache *tagcache.Cache, ttl tagcache.TTLSet, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, ttl: ttl, logger: logger, now: time.Now}
}

// GetProfile returns the public view of an account, cached.
func (s *Service) GetProfile(ctx context.Context, id int64) (*Profile, error) {
	key := fmt.Sprintf("user:%d:profile", id)
	value, err := s.cache.GetOrCompute(ctx, key, []string{userTag(id)}, s.ttl.Long, func(ctx context.Context) (any, error) {
		return s.repo.FindProfile(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return value.(*Profile), nil
}

// UpdateProfile rewrites the editable fields.
func (s *Service) UpdateProfile(ctx context.Context, id int64, in ProfileInput) error {
	if err := s.repo.UpdateProfile(ctx, id, strings.TrimSpace(in.Bio), in.AvatarURL); err != nil {
		return err
	}
	s.cache.Invalidate(userTag(id))
	return nil
}

// Ban blocks the account from any authenticated action.
func (s *Service) Ban(ctx context.Context, id int64) error {
	if err := s.repo.SetBan(ctx, id, true); err != nil {
		return err
	}
	s.cache.Invalidate(userTag(id))
	return nil
}

// Unban lifts a ban.
func (s *Service) Unban(ctx context.Context, id int64) error {
	if err := s.repo.SetBan(ctx, id, false); err != nil {
		return err
	}
	s.cache.Invalidate(userTag(id))
	return nil
}

// Mute silences the account. minutes == 0 mutes until lifted by hand.
func (s *Service) Mute(ctx context.Context, id int64, minutes int) (*time.Time, error) {
	var until *time.Time
	if minutes > 0 {
		t := s.now().Add(time.Duration(minutes) * time.Minute)
		until = &t
	}
	if err := s.repo.SetMute(ctx, id, until); err != nil {
		return nil, err
	}
	s.cache.Invalidate(userTag(id))
	return until, nil
}

// Unmute lifts a mute.
func (s *Service) Unmute(ctx context.Context, id int64) error {
	if err := s.repo.ClearMute(ctx, id); err != nil {
		return err
	}
	s.cache.Invalidate(userTag(id))
	return nil
}

// Subscribe applies a tier change for the given number of months.
func (s *Service) Subscribe(ctx context.Context, id int64, in SubscriptionInput) (time.Time, error) {
	expiresAt := s.now().AddDate(0, in.Months, 0)
	if err := s.repo.SetTier(ctx, id, in.Tier, expiresAt); err != nil {
		return time.Time{}, err
	}
	s.cache.Invalidate(userTag(id))
	return expiresAt, nil
}
