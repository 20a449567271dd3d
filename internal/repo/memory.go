// In-memory implementations of the repositories, for tests and for running
// the API without Postgres in dev mode.
package repo

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/skillforge/server/internal/model"
)

// MemoryUserRepo implements UserRepo in memory.
type MemoryUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]model.User
}

// NewMemoryUserRepo creates an empty in-memory user directory.
func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{users: make(map[uuid.UUID]model.User)}
}

var _ UserRepo = (*MemoryUserRepo)(nil)

// GetByID retrieves a user by ID.
func (m *MemoryUserRepo) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return user, nil
}

// GetByEmail retrieves a user by email (case-insensitive).
func (m *MemoryUserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, user := range m.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return model.User{}, ErrNotFound
}

// Create inserts a new user. Duplicate email returns ErrDuplicate.
func (m *MemoryUserRepo) Create(ctx context.Context, email, passwordHash string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, user := range m.users {
		if strings.EqualFold(user.Email, email) {
			return model.User{}, ErrDuplicate
		}
	}
	user := model.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	m.users[user.ID] = user
	return user, nil
}

// UpdatePassword replaces the stored digest.
func (m *MemoryUserRepo) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	user.PasswordHash = passwordHash
	m.users[id] = user
	return nil
}

// MemorySessionRepo implements SessionRepo in memory. The single mutex is
// fine here: this store backs tests and single-process dev runs, not
// production traffic.
type MemorySessionRepo struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]model.Session
}

// NewMemorySessionRepo creates an empty in-memory session store.
func NewMemorySessionRepo() *MemorySessionRepo {
	return &MemorySessionRepo{sessions: make(map[uuid.UUID]model.Session)}
}

var _ SessionRepo = (*MemorySessionRepo)(nil)

// Create inserts a new session.
func (m *MemorySessionRepo) Create(ctx context.Context, userID uuid.UUID, accessFP, refreshFP string, expiresAt time.Time, meta model.SessionMetadata) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	s := model.Session{
		ID:                 uuid.New(),
		UserID:             userID,
		AccessFingerprint:  accessFP,
		RefreshFingerprint: refreshFP,
		UserAgent:          meta.UserAgent,
		IP:                 meta.IP,
		CreatedAt:          now,
		ExpiresAt:          expiresAt,
		LastUsedAt:         now,
	}
	m.sessions[s.ID] = s
	return s.ID, nil
}

// GetByID returns the session if it exists and has not expired.
func (m *MemorySessionRepo) GetByID(ctx context.Context, id uuid.UUID, now time.Time) (model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok || s.Expired(now) {
		return model.Session{}, ErrNotFound
	}
	return s, nil
}

// GetByRefreshFingerprint returns the live session holding the fingerprint.
func (m *MemorySessionRepo) GetByRefreshFingerprint(ctx context.Context, refreshFP string, now time.Time) (model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.sessions {
		if s.RefreshFingerprint == refreshFP && !s.Expired(now) {
			return s, nil
		}
	}
	return model.Session{}, ErrNotFound
}

// GetByAccessFingerprint returns the live session holding the fingerprint.
func (m *MemorySessionRepo) GetByAccessFingerprint(ctx context.Context, accessFP string, now time.Time) (model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.sessions {
		if s.AccessFingerprint == accessFP && !s.Expired(now) {
			return s, nil
		}
	}
	return model.Session{}, ErrNotFound
}

// ListByUser returns all live sessions for a user, most recent first.
func (m *MemorySessionRepo) ListByUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var sessions []model.Session
	for _, s := range m.sessions {
		if s.UserID == userID && !s.Expired(now) {
			sessions = append(sessions, s)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions, nil
}

// Touch advances last_used_at, never backwards. No-op on expired sessions.
func (m *MemorySessionRepo) Touch(ctx context.Context, id uuid.UUID, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok || s.Expired(now) {
		return nil
	}
	if now.After(s.LastUsedAt) {
		s.LastUsedAt = now
		m.sessions[id] = s
	}
	return nil
}

// RotateAccess replaces only the access-token fingerprint.
func (m *MemorySessionRepo) RotateAccess(ctx context.Context, id uuid.UUID, newAccessFP string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.AccessFingerprint = newAccessFP
	m.sessions[id] = s
	return nil
}

// RotateTokens replaces both fingerprints atomically.
func (m *MemorySessionRepo) RotateTokens(ctx context.Context, id uuid.UUID, newAccessFP, newRefreshFP string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.AccessFingerprint = newAccessFP
	s.RefreshFingerprint = newRefreshFP
	m.sessions[id] = s
	return nil
}

// Revoke deletes the session. Idempotent.
func (m *MemorySessionRepo) Revoke(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, id)
	return nil
}

// RevokeAllForUser deletes every session owned by the user.
func (m *MemorySessionRepo) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, id)
		}
	}
	return nil
}

// ReapExpired deletes all sessions past their expiry.
func (m *MemorySessionRepo) ReapExpired(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, s := range m.sessions {
		if s.Expired(now) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}
