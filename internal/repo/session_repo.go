package repo

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/skillforge/server/internal/model"
)

// SessionRepo persists one record per active login. Reads filter out expired
// rows, so "exists but expired" behaves identically to "not found". Every
// mutation is a single-row statement, which serializes concurrent writers on
// the same session at the database.
type SessionRepo interface {
	Create(ctx context.Context, userID uuid.UUID, accessFP, refreshFP string, expiresAt time.Time, meta model.SessionMetadata) (uuid.UUID, error)
	GetByID(ctx context.Context, id uuid.UUID, now time.Time) (model.Session, error)
	GetByRefreshFingerprint(ctx context.Context, refreshFP string, now time.Time) (model.Session, error)
	GetByAccessFingerprint(ctx context.Context, accessFP string, now time.Time) (model.Session, error)
	ListByUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]model.Session, error)
	Touch(ctx context.Context, id uuid.UUID, now time.Time) error
	RotateAccess(ctx context.Context, id uuid.UUID, newAccessFP string) error
	RotateTokens(ctx context.Context, id uuid.UUID, newAccessFP, newRefreshFP string) error
	Revoke(ctx context.Context, id uuid.UUID) error
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) error
	ReapExpired(ctx context.Context, now time.Time) (int64, error)
}

type sessionRepo struct {
	db *sql.DB
}

// NewSessionRepo creates a Postgres-backed SessionRepo.
func NewSessionRepo(db *sql.DB) SessionRepo {
	return &sessionRepo{db: db}
}

const sessionColumns = `id, user_id, access_fingerprint, refresh_fingerprint, user_agent, ip, created_at, expires_at, last_used_at`

// Create inserts a new session row.
func (r *sessionRepo) Create(ctx context.Context, userID uuid.UUID, accessFP, refreshFP string, expiresAt time.Time, meta model.SessionMetadata) (uuid.UUID, error) {
	var idStr string
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO sessions (user_id, access_fingerprint, refresh_fingerprint, user_agent, ip, expires_at, last_used_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING id
	`, userID, accessFP, refreshFP, meta.UserAgent, meta.IP, expiresAt).Scan(&idStr)
	if err != nil {
		return uuid.Nil, wrapDBErr("insert session", err)
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse session ID: %w", err)
	}
	return id, nil
}

// GetByID returns the session if it exists and has not expired.
func (r *sessionRepo) GetByID(ctx context.Context, id uuid.UUID, now time.Time) (model.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE id = $1 AND expires_at > $2
	`, id, now)
	return scanSession(row)
}

// GetByRefreshFingerprint returns the live session holding the given refresh
// fingerprint. A revoked or rotated-out token matches nothing.
func (r *sessionRepo) GetByRefreshFingerprint(ctx context.Context, refreshFP string, now time.Time) (model.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE refresh_fingerprint = $1 AND expires_at > $2
	`, refreshFP, now)
	return scanSession(row)
}

// GetByAccessFingerprint returns the live session holding the given access
// fingerprint.
func (r *sessionRepo) GetByAccessFingerprint(ctx context.Context, accessFP string, now time.Time) (model.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE access_fingerprint = $1 AND expires_at > $2
	`, accessFP, now)
	return scanSession(row)
}

// ListByUser returns all live sessions for a user, most recent first.
func (r *sessionRepo) ListByUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]model.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE user_id = $1 AND expires_at > $2
		ORDER BY created_at DESC
	`, userID, now)
	if err != nil {
		return nil, wrapDBErr("list sessions", err)
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		s, err := scanSessionRows(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr("list sessions", err)
	}
	return sessions, nil
}

// Touch advances last_used_at. GREATEST keeps it monotonically non-decreasing
// under concurrent validations; touching an expired session is a no-op.
func (r *sessionRepo) Touch(ctx context.Context, id uuid.UUID, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions
		SET last_used_at = GREATEST(last_used_at, $2)
		WHERE id = $1 AND expires_at > $2
	`, id, now)
	if err != nil {
		return wrapDBErr("touch session", err)
	}
	return nil
}

// RotateAccess replaces only the access-token fingerprint.
func (r *sessionRepo) RotateAccess(ctx context.Context, id uuid.UUID, newAccessFP string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET access_fingerprint = $2 WHERE id = $1
	`, id, newAccessFP)
	if err != nil {
		return wrapDBErr("rotate access fingerprint", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RotateTokens replaces both fingerprints in one statement, invalidating the
// prior refresh token.
func (r *sessionRepo) RotateTokens(ctx context.Context, id uuid.UUID, newAccessFP, newRefreshFP string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET access_fingerprint = $2, refresh_fingerprint = $3 WHERE id = $1
	`, id, newAccessFP, newRefreshFP)
	if err != nil {
		return wrapDBErr("rotate session tokens", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Revoke hard-deletes the session. Revoking twice is not an error.
func (r *sessionRepo) Revoke(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return wrapDBErr("revoke session", err)
	}
	return nil
}

// RevokeAllForUser hard-deletes every session owned by the user.
func (r *sessionRepo) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID); err != nil {
		return wrapDBErr("revoke all sessions for user", err)
	}
	return nil
}

// ReapExpired deletes all sessions past their expiry and returns the count.
// Intended for a periodic sweep, not per-request.
func (r *sessionRepo) ReapExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, wrapDBErr("reap expired sessions", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

func scanSession(row *sql.Row) (model.Session, error) {
	var s model.Session
	var idStr, userIDStr string
	err := row.Scan(&idStr, &userIDStr, &s.AccessFingerprint, &s.RefreshFingerprint,
		&s.UserAgent, &s.IP, &s.CreatedAt, &s.ExpiresAt, &s.LastUsedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Session{}, ErrNotFound
		}
		return model.Session{}, wrapDBErr("query session", err)
	}
	return finishSession(s, idStr, userIDStr)
}

func scanSessionRows(rows *sql.Rows) (model.Session, error) {
	var s model.Session
	var idStr, userIDStr string
	err := rows.Scan(&idStr, &userIDStr, &s.AccessFingerprint, &s.RefreshFingerprint,
		&s.UserAgent, &s.IP, &s.CreatedAt, &s.ExpiresAt, &s.LastUsedAt)
	if err != nil {
		return model.Session{}, wrapDBErr("scan session", err)
	}
	return finishSession(s, idStr, userIDStr)
}

func finishSession(s model.Session, idStr, userIDStr string) (model.Session, error) {
	var err error
	s.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.Session{}, fmt.Errorf("parse session ID: %w", err)
	}
	s.UserID, err = uuid.Parse(userIDStr)
	if err != nil {
		return model.Session{}, fmt.Errorf("parse user ID: %w", err)
	}
	return s, nil
}

// wrapDBErr maps infrastructure failures to ErrUnavailable so callers can
// retry without treating an outage as a security decision.
func wrapDBErr(op string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, driver.ErrBadConn) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
