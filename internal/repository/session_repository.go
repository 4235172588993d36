package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

const sessionColumns = `id, user_id, token_hash, expires_at, created_at, revoked_at, ip_address, user_agent`

// CreateSession stores a newly issued refresh token.
func (r *UserRepository) CreateSession(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_sessions (`+sessionColumns+`) VALUES ($1, $2, $3, $4, $5, NULL, $6, $7)`,
		session.ID, session.UserID, session.TokenHash, session.ExpiresAt, session.CreatedAt, session.IPAddress, session.UserAgent)
	if err != nil {
		return fmt.Errorf("insert session for user %s: %w", session.UserID, err)
	}
	return nil
}

// FindSession looks a session up by its token hash. Revoked and expired
// sessions are returned too so callers can tell reuse from garbage.
func (r *UserRepository) FindSession(ctx context.Context, tokenHash string) (*models.Session, error) {
	var session models.Session
	err := r.db.GetContext(ctx, &session, `SELECT `+sessionColumns+` FROM user_sessions WHERE token_hash = $1`, tokenHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &session, nil
}

// RevokeSession revokes one live session and reports whether this call did
// it. A false result means another request got there first.
func (r *UserRepository) RevokeSession(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE user_sessions SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`, id, at)
	if err != nil {
		return false, fmt.Errorf("revoke session %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoke session %s: %w", id, err)
	}
	return n == 1, nil
}

// RevokeAllSessions signs a user out everywhere.
func (r *UserRepository) RevokeAllSessions(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE user_sessions SET revoked_at = $2 WHERE user_id = $1 AND revoked_at IS NULL`, userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("revoke sessions of user %s: %w", userID, err)
	}
	return nil
}
