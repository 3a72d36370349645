// Package auth implements account registration and session login. The
// password hash never leaves this package; everything downstream works
// from the resolved principal instead.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/unicode/norm"

	"github.com/chapterhouse/chapterhouse/internal/shared"
)

// Service implements registration and credential checks.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService constructs the auth service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Register creates a new account and returns its id. Usernames are
// NFC-normalised so visually identical names cannot coexist.
func (s *Service) Register(ctx context.Context, reg Registration) (int64, error) {
	email := strings.ToLower(strings.TrimSpace(reg.Email))
	username := norm.NFC.String(strings.TrimSpace(reg.Username))

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}

	id, err := s.repo.CreateUser(ctx, email, username, string(hash))
	if err != nil {
		if errors.Is(err, shared.ErrDuplicate) {
			return 0, shared.ErrDuplicate
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// Authenticate verifies credentials and returns the matching user. An
// unknown email and a wrong password both map to ErrInvalidCredentials
// so the response does not reveal which field failed.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (*User, error) {
	email := strings.ToLower(strings.TrimSpace(creds.Email))

	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(creds.Password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// TrackSession records login session metadata for the audit trail.
// Failures are logged and swallowed; the login itself already succeeded.
func (s *Service) TrackSession(ctx context.Context, sessionID string, userID int64, expiresAt time.Time, ip, ua string) {
	if err := s.repo.CreateSession(ctx, sessionID, userID, expiresAt, ip, ua); err != nil {
		s.logger.Warn("track session", slog.Int64("user_id", userID), slog.Any("error", err))
	}
}

// ForgetSession drops the session record on logout.
func (s *Service) ForgetSession(ctx context.Context, sessionID string) {
	if err := s.repo.DeleteSession(ctx, sessionID); err != nil {
		s.logger.Warn("forget session", slog.Any("error", err))
	}
}
