package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/skillforge/server/internal/model"
	"github.com/skillforge/server/internal/repo"
)

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	SessionID        uuid.UUID
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Service orchestrates credential checks, token issuance and session state.
// It is the only writer of the session store.
type Service struct {
	users    repo.UserRepo
	sessions repo.SessionRepo
	hasher   *PasswordHasher
	codec    *TokenCodec

	// rotateRefresh controls whether Refresh also rotates the refresh token.
	// Rotation closes the replay window of an exfiltrated refresh token and
	// is the default; the non-rotating variant is a config choice.
	rotateRefresh bool

	// dummyDigest is verified against when an email lookup misses. It comes
	// from the service's own hasher, so both login failure paths burn the
	// same argon2 cost and response timing does not reveal whether the
	// email exists.
	dummyDigest string

	now func() time.Time
}

// NewService creates an auth service.
func NewService(users repo.UserRepo, sessions repo.SessionRepo, hasher *PasswordHasher, codec *TokenCodec, rotateRefresh bool) *Service {
	dummy, err := hasher.Hash(uuid.NewString())
	if err != nil {
		panic(err)
	}
	return &Service{
		users:         users,
		sessions:      sessions,
		hasher:        hasher,
		codec:         codec,
		rotateRefresh: rotateRefresh,
		dummyDigest:   dummy,
		now:           time.Now,
	}
}

// WithClock replaces the service clock. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// NormalizeEmail lowercases and trims an email before any directory lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register hashes the password and creates a user record.
func (s *Service) Register(ctx context.Context, email, password string) (model.User, error) {
	email = NormalizeEmail(email)
	digest, err := s.hasher.Hash(password)
	if err != nil {
		return model.User{}, err
	}
	user, err := s.users.Create(ctx, email, digest)
	if err != nil {
		return model.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Login verifies credentials and opens a session. Unknown email and wrong
// password return the identical ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string, meta model.SessionMetadata) (TokenPair, error) {
	now := s.now()

	user, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			// Burn the same CPU as a real verify so the response time does
			// not reveal whether the email exists.
			_, _ = s.hasher.Verify(password, s.dummyDigest)
			return TokenPair{}, ErrInvalidCredentials
		}
		return TokenPair{}, fmt.Errorf("lookup user: %w", err)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return TokenPair{}, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return TokenPair{}, ErrInvalidCredentials
	}

	return s.openSession(ctx, user.ID, now, meta)
}

func (s *Service) openSession(ctx context.Context, userID uuid.UUID, now time.Time, meta model.SessionMetadata) (TokenPair, error) {
	access, accessExp, err := s.codec.Issue(userID, ClassAccess, now)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := s.codec.Issue(userID, ClassRefresh, now)
	if err != nil {
		return TokenPair{}, err
	}

	// Session expiry mirrors the refresh token's.
	sessionID, err := s.sessions.Create(ctx, userID, Fingerprint(access), Fingerprint(refresh), refreshExp, meta)
	if err != nil {
		return TokenPair{}, fmt.Errorf("create session: %w", err)
	}

	return TokenPair{
		SessionID:        sessionID,
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Refresh validates a refresh token and mints a new access token for its
// session. With rotation enabled the refresh token is replaced too and the
// old one matches nothing afterwards.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	now := s.now()

	claims, err := s.codec.Verify(refreshToken, ClassRefresh, now)
	if err != nil {
		return TokenPair{}, err
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: bad subject", ErrTokenInvalid)
	}

	session, err := s.sessions.GetByRefreshFingerprint(ctx, Fingerprint(refreshToken), now)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return TokenPair{}, ErrSessionNotFound
		}
		return TokenPair{}, fmt.Errorf("lookup session: %w", err)
	}
	if session.UserID != userID {
		return TokenPair{}, ErrSessionNotFound
	}

	access, accessExp, err := s.codec.Issue(userID, ClassAccess, now)
	if err != nil {
		return TokenPair{}, err
	}

	pair := TokenPair{
		SessionID:        session.ID,
		AccessToken:      access,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: session.ExpiresAt,
	}

	if s.rotateRefresh {
		newRefresh, _, err := s.codec.Issue(userID, ClassRefresh, now)
		if err != nil {
			return TokenPair{}, err
		}
		if err := s.sessions.RotateTokens(ctx, session.ID, Fingerprint(access), Fingerprint(newRefresh)); err != nil {
			return TokenPair{}, s.rotateErr(err)
		}
		// The session window does not extend on rotation; the new refresh
		// token dies with the session even though its own exp claim is later.
		pair.RefreshToken = newRefresh
	} else {
		if err := s.sessions.RotateAccess(ctx, session.ID, Fingerprint(access)); err != nil {
			return TokenPair{}, s.rotateErr(err)
		}
	}

	if err := s.sessions.Touch(ctx, session.ID, now); err != nil {
		return TokenPair{}, fmt.Errorf("touch session: %w", err)
	}
	return pair, nil
}

func (s *Service) rotateErr(err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return ErrSessionNotFound
	}
	return fmt.Errorf("rotate session: %w", err)
}

// Authenticate validates an access token against its session and advances
// last_used. Returns the owning session.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (model.Session, error) {
	now := s.now()

	claims, err := s.codec.Verify(accessToken, ClassAccess, now)
	if err != nil {
		return model.Session{}, err
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return model.Session{}, fmt.Errorf("%w: bad subject", ErrTokenInvalid)
	}

	session, err := s.sessions.GetByAccessFingerprint(ctx, Fingerprint(accessToken), now)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.Session{}, ErrSessionNotFound
		}
		return model.Session{}, fmt.Errorf("lookup session: %w", err)
	}
	if session.UserID != userID {
		return model.Session{}, ErrSessionNotFound
	}

	if err := s.sessions.Touch(ctx, session.ID, now); err != nil {
		return model.Session{}, fmt.Errorf("touch session: %w", err)
	}
	session.LastUsedAt = now
	return session, nil
}

// Logout revokes the session holding the given refresh token. Expired or
// unknown tokens are treated as already logged out.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	now := s.now()

	session, err := s.sessions.GetByRefreshFingerprint(ctx, Fingerprint(refreshToken), now)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("lookup session: %w", err)
	}
	return s.RevokeSession(ctx, session.ID)
}

// RevokeSession hard-deletes a session. Idempotent.
func (s *Service) RevokeSession(ctx context.Context, sessionID uuid.UUID) error {
	if err := s.sessions.Revoke(ctx, sessionID); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// RevokeAllForUser terminates every session the user holds.
func (s *Service) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	if err := s.sessions.RevokeAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("revoke all sessions: %w", err)
	}
	return nil
}

// ListSessions returns the user's live sessions.
func (s *Service) ListSessions(ctx context.Context, userID uuid.UUID) ([]model.Session, error) {
	return s.sessions.ListByUser(ctx, userID, s.now())
}

// ChangePassword verifies the current password, replaces the digest
// wholesale, and revokes every session of the user.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, current, next string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}

	ok, err := s.hasher.Verify(current, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return ErrInvalidCredentials
	}

	digest, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, userID, digest); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return s.RevokeAllForUser(ctx, userID)
}

// ReapExpiredSessions deletes sessions past expiry. Called by the periodic
// reaper, not per-request.
func (s *Service) ReapExpiredSessions(ctx context.Context) (int64, error) {
	return s.sessions.ReapExpired(ctx, s.now())
}
