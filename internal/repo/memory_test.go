package repo

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillforge/server/internal/model"
)

func TestMemoryUserRepo(t *testing.T) {
	users := NewMemoryUserRepo()
	ctx := context.Background()

	user, err := users.Create(ctx, "bob@example.com", "digest-1")
	require.NoError(t, err)

	_, err = users.Create(ctx, "BOB@example.com", "digest-2")
	assert.ErrorIs(t, err, ErrDuplicate, "email uniqueness is case-insensitive")

	got, err := users.GetByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = users.GetByEmail(ctx, "missing@example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, users.UpdatePassword(ctx, user.ID, "digest-3"))
	got, err = users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "digest-3", got.PasswordHash)

	assert.ErrorIs(t, users.UpdatePassword(ctx, uuid.New(), "x"), ErrNotFound)
}

func TestMemorySessionRepo_Lifecycle(t *testing.T) {
	sessions := NewMemorySessionRepo()
	ctx := context.Background()
	now := time.Now()
	userID := uuid.New()

	id, err := sessions.Create(ctx, userID, "fp-access", "fp-refresh", now.Add(time.Hour), model.SessionMetadata{UserAgent: "test", IP: "127.0.0.1"})
	require.NoError(t, err)

	s, err := sessions.GetByID(ctx, id, now)
	require.NoError(t, err)
	assert.Equal(t, userID, s.UserID)
	assert.Equal(t, "fp-access", s.AccessFingerprint)

	s, err = sessions.GetByRefreshFingerprint(ctx, "fp-refresh", now)
	require.NoError(t, err)
	assert.Equal(t, id, s.ID)

	_, err = sessions.GetByRefreshFingerprint(ctx, "no-such-fp", now)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, sessions.RotateAccess(ctx, id, "fp-access-2"))
	_, err = sessions.GetByAccessFingerprint(ctx, "fp-access", now)
	assert.ErrorIs(t, err, ErrNotFound, "old access fingerprint matches nothing after rotation")
	s, err = sessions.GetByAccessFingerprint(ctx, "fp-access-2", now)
	require.NoError(t, err)
	assert.Equal(t, "fp-refresh", s.RefreshFingerprint, "refresh fingerprint untouched by RotateAccess")

	require.NoError(t, sessions.RotateTokens(ctx, id, "fp-access-3", "fp-refresh-2"))
	_, err = sessions.GetByRefreshFingerprint(ctx, "fp-refresh", now)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, sessions.Revoke(ctx, id))
	require.NoError(t, sessions.Revoke(ctx, id), "revoking twice is not an error")
	_, err = sessions.GetByID(ctx, id, now)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, sessions.RotateAccess(ctx, id, "x"), ErrNotFound)
	assert.ErrorIs(t, sessions.RotateTokens(ctx, id, "x", "y"), ErrNotFound)
}

func TestMemorySessionRepo_TouchMonotonic(t *testing.T) {
	sessions := NewMemorySessionRepo()
	ctx := context.Background()
	now := time.Now()

	id, err := sessions.Create(ctx, uuid.New(), "a", "r", now.Add(time.Hour), model.SessionMetadata{})
	require.NoError(t, err)

	later := now.Add(10 * time.Minute)
	require.NoError(t, sessions.Touch(ctx, id, later))

	s, err := sessions.GetByID(ctx, id, now)
	require.NoError(t, err)
	assert.Equal(t, later, s.LastUsedAt)

	// An older touch never moves last_used backwards
	require.NoError(t, sessions.Touch(ctx, id, now.Add(5*time.Minute)))
	s, err = sessions.GetByID(ctx, id, now)
	require.NoError(t, err)
	assert.Equal(t, later, s.LastUsedAt)

	// Touching past expiry is a no-op, not an error
	require.NoError(t, sessions.Touch(ctx, id, now.Add(2*time.Hour)))
}

func TestMemorySessionRepo_ExpiryAndReap(t *testing.T) {
	sessions := NewMemorySessionRepo()
	ctx := context.Background()
	now := time.Now()
	userID := uuid.New()

	live, err := sessions.Create(ctx, userID, "a1", "r1", now.Add(time.Hour), model.SessionMetadata{})
	require.NoError(t, err)
	expired, err := sessions.Create(ctx, userID, "a2", "r2", now.Add(-time.Minute), model.SessionMetadata{})
	require.NoError(t, err)

	// Expired rows behave as not found on every read path
	_, err = sessions.GetByID(ctx, expired, now)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = sessions.GetByRefreshFingerprint(ctx, "r2", now)
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := sessions.ListByUser(ctx, userID, now)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, live, list[0].ID)

	n, err := sessions.ReapExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = sessions.ReapExpired(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, n, "reap is idempotent")
}

func TestMemorySessionRepo_RevokeAllForUser(t *testing.T) {
	sessions := NewMemorySessionRepo()
	ctx := context.Background()
	now := time.Now()
	alice := uuid.New()
	bob := uuid.New()

	_, err := sessions.Create(ctx, alice, "a1", "r1", now.Add(time.Hour), model.SessionMetadata{})
	require.NoError(t, err)
	_, err = sessions.Create(ctx, alice, "a2", "r2", now.Add(time.Hour), model.SessionMetadata{})
	require.NoError(t, err)
	keep, err := sessions.Create(ctx, bob, "a3", "r3", now.Add(time.Hour), model.SessionMetadata{})
	require.NoError(t, err)

	require.NoError(t, sessions.RevokeAllForUser(ctx, alice))

	list, err := sessions.ListByUser(ctx, alice, now)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = sessions.GetByID(ctx, keep, now)
	assert.NoError(t, err, "other users' sessions survive")
}
