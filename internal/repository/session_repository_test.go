package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

func TestCreateSessionStoresHashOnly(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	expires := time.Now().Add(time.Hour)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO user_sessions")).
		WithArgs(sqlmock.AnyArg(), "u1", "hash-1", expires, sqlmock.AnyArg(), "10.0.0.1", "curl").
		WillReturnResult(sqlmock.NewResult(0, 1))

	session := &models.Session{UserID: "u1", TokenHash: "hash-1", ExpiresAt: expires, IPAddress: "10.0.0.1", UserAgent: "curl"}
	require.NoError(t, repo.CreateSession(context.Background(), session))
	assert.NotEmpty(t, session.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindSession(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	revoked := time.Now().Add(-time.Minute)
	columns := []string{"id", "user_id", "token_hash", "expires_at", "created_at", "revoked_at", "ip_address", "user_agent"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM user_sessions WHERE token_hash = $1")).
		WithArgs("hash-1").
		WillReturnRows(sqlmock.NewRows(columns).AddRow("s1", "u1", "hash-1", time.Now().Add(time.Hour), time.Now(), revoked, "", ""))
	mock.ExpectQuery(regexp.QuoteMeta("FROM user_sessions WHERE token_hash = $1")).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(columns))

	session, err := repo.FindSession(context.Background(), "hash-1")
	require.NoError(t, err)
	assert.True(t, session.Revoked())
	assert.False(t, session.Expired(time.Now()))

	_, err = repo.FindSession(context.Background(), "nope")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRevokeSessionReportsRace(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)
	at := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE user_sessions SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL")).
		WithArgs("s1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE user_sessions SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL")).
		WithArgs("s1", at).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("WHERE user_id = $1 AND revoked_at IS NULL")).
		WithArgs("u1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 4))

	won, err := repo.RevokeSession(context.Background(), "s1", at)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = repo.RevokeSession(context.Background(), "s1", at)
	require.NoError(t, err)
	assert.False(t, won)

	require.NoError(t, repo.RevokeAllSessions(context.Background(), "u1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
