package identity_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chapterhouse/chapterhouse/internal/identity"
	"github.com/chapterhouse/chapterhouse/internal/shared"
	_ "github.com/chapterhouse/chapterhouse/testing"
)

type stubRepo struct {
	user           *identity.Principal
	err            error
	muteCleared    int
	tierCleared    int
	clearMuteErr   error
	clearTierErr   error
}

func (s *stubRepo) FindUser(ctx context.Context, id int64) (*identity.Principal, error) {
	if s.err != nil {
		return nil, s.err
	}
	cp := *s.user
	return &cp, nil
}

func (s *stubRepo) ClearMute(ctx context.Context, id int64) error {
	s.muteCleared++
	if s.clearMuteErr != nil {
		return s.clearMuteErr
	}
	s.user.Muted = false
	s.user.MutedUntil = nil
	return nil
}

func (s *stubRepo) ClearExpiredTier(ctx context.Context, id int64) error {
	s.tierCleared++
	if s.clearTierErr != nil {
		return s.clearTierErr
	}
	s.user.Tier = identity.TierFree
	s.user.TierExpiresAt = nil
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestResolveUnknownUser(t *testing.T) {
	resolver := identity.NewResolver(&stubRepo{err: shared.ErrNotFound}, testLogger())

	_, err := resolver.Resolve(context.Background(), 42)
	assert.ErrorIs(t, err, shared.ErrUnauthenticated)
}

func TestResolvePropagatesStorageError(t *testing.T) {
	storageErr := errors.New("connection reset")
	resolver := identity.NewResolver(&stubRepo{err: storageErr}, testLogger())

	_, err := resolver.Resolve(context.Background(), 42)
	assert.ErrorIs(t, err, storageErr)
}

func TestResolveExpiredMuteSelfHeals(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	repo := &stubRepo{user: &identity.Principal{
		ID:         7,
		Role:       identity.RoleUser,
		Tier:       identity.TierFree,
		Muted:      true,
		MutedUntil: &past,
	}}
	resolver := identity.NewResolver(repo, testLogger())

	p, err := resolver.Resolve(context.Background(), 7)
	require.NoError(t, err)
	assert.False(t, p.Muted)
	assert.Nil(t, p.MutedUntil)
	assert.Equal(t, 1, repo.muteCleared)

	// Subsequent resolutions see the healed state and do not re-clear.
	p, err = resolver.Resolve(context.Background(), 7)
	require.NoError(t, err)
	assert.False(t, p.Muted)
	assert.Equal(t, 1, repo.muteCleared)
}

func TestResolveActiveMuteKept(t *testing.T) {
	future := time.Now().Add(time.Hour)
	repo := &stubRepo{user: &identity.Principal{
		ID:         7,
		Role:       identity.RoleUser,
		Tier:       identity.TierFree,
		Muted:      true,
		MutedUntil: &future,
	}}
	resolver := identity.NewResolver(repo, testLogger())

	p, err := resolver.Resolve(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, p.Muted)
	assert.Equal(t, 0, repo.muteCleared)
}

func TestResolveIndefiniteMuteKept(t *testing.T) {
	repo := &stubRepo{user: &identity.Principal{
		ID:    7,
		Role:  identity.RoleUser,
		Tier:  identity.TierFree,
		Muted: true,
	}}
	resolver := identity.NewResolver(repo, testLogger())

	p, err := resolver.Resolve(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, p.Muted)
	assert.Equal(t, 0, repo.muteCleared)
}

func TestResolveClearMuteFailureStillUnmutes(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	repo := &stubRepo{
		user: &identity.Principal{
			ID:         7,
			Role:       identity.RoleUser,
			Tier:       identity.TierFree,
			Muted:      true,
			MutedUntil: &past,
		},
		clearMuteErr: errors.New("write failed"),
	}
	resolver := identity.NewResolver(repo, testLogger())

	p, err := resolver.Resolve(context.Background(), 7)
	require.NoError(t, err)
	assert.False(t, p.Muted)
}

func TestResolveExpiredTierDegradesToFree(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	repo := &stubRepo{user: &identity.Principal{
		ID:            9,
		Role:          identity.RoleUser,
		Tier:          identity.TierPremium,
		TierExpiresAt: &past,
	}}
	resolver := identity.NewResolver(repo, testLogger())

	p, err := resolver.Resolve(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, identity.TierFree, p.Tier)
	assert.Nil(t, p.TierExpiresAt)
	assert.Equal(t, 1, repo.tierCleared)
}

func TestRoleOrdering(t *testing.T) {
	ordered := []identity.Role{identity.RoleUser, identity.RoleCreator, identity.RoleModerator, identity.RoleAdmin}
	for i, lower := range ordered {
		for _, higher := range ordered[i:] {
			assert.True(t, higher.AtLeast(lower), "%s should satisfy %s", higher, lower)
		}
		for _, higher := range ordered[i+1:] {
			assert.False(t, lower.AtLeast(higher), "%s should not satisfy %s", lower, higher)
		}
	}
}

func TestParseRole(t *testing.T) {
	role, err := identity.ParseRole("MODERATOR")
	require.NoError(t, err)
	assert.Equal(t, identity.RoleModerator, role)

	_, err = identity.ParseRole("SUPERUSER")
	assert.Error(t, err)
}

func TestParseTier(t *testing.T) {
	tier, err := identity.ParseTier("PREMIUM")
	require.NoError(t, err)
	assert.Equal(t, identity.TierPremium, tier)

	_, err = identity.ParseTier("GOLD")
	assert.Error(t, err)
}
