package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

var registrationRowColumns = []string{"id", "user_id", "status", "reviewed_by", "reviewed_at", "review_note", "created_at", "email", "full_name", "role"}

func TestRegistrationRepositoryCreateWithUser(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO registrations (id, user_id, status, created_at)")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), models.RegistrationPending, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	user := &models.User{Email: "siti@school.id", FullName: "Siti", Role: models.RoleStudent}
	reg := &models.Registration{}
	require.NoError(t, repo.CreateWithUser(context.Background(), user, reg))
	assert.NotEmpty(t, reg.ID)
	assert.Equal(t, user.ID, reg.UserID)
	assert.Equal(t, models.RegistrationPending, reg.Status)
	assert.Equal(t, models.RoleStudent, reg.RequestRole)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryCreateWithUserDuplicateEmail(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users").WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := repo.CreateWithUser(context.Background(), &models.User{Email: "taken@school.id", Role: models.RoleTeacher}, &models.Registration{})
	assert.ErrorIs(t, err, ErrEmailTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryList(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(registrationRowColumns).
		AddRow("reg-1", "u1", "PENDING", nil, nil, nil, now, "siti@school.id", "Siti", "STUDENT")
	mock.ExpectQuery(regexp.QuoteMeta("WHERE r.status = $1 ORDER BY r.created_at ASC LIMIT 20 OFFSET 20")).
		WithArgs(models.RegistrationPending).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM registrations r WHERE r.status = $1")).
		WithArgs(models.RegistrationPending).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(21))

	regs, total, err := repo.List(context.Background(), models.RegistrationFilter{Status: models.RegistrationPending, Page: 2})
	require.NoError(t, err)
	require.Len(t, regs, 1)
	assert.Equal(t, 21, total)
	assert.Equal(t, "Siti", regs[0].FullName)
	assert.Equal(t, models.RoleStudent, regs[0].RequestRole)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryReviewApproveActivatesUser(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	at := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE registrations SET status = $2")).
		WithArgs("reg-1", models.RegistrationApproved, "admin-1", at, nil).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("u1"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET active = TRUE")).
		WithArgs("u1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Review(context.Background(), "reg-1", models.RegistrationApproved, "admin-1", nil, at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryReviewAlreadyReviewed(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE registrations SET status = $2")).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := repo.Review(context.Background(), "reg-1", models.RegistrationRejected, "admin-1", nil, time.Now())
	assert.ErrorIs(t, err, ErrAlreadyReviewed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
