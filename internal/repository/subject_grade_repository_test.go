package repository

import (
	"context"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

func TestSubjectGradeRepositoryUpsert(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubjectGradeRepository(db)

	overall := 85.5
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO subject_grades").
		WithArgs(sqlmock.AnyArg(), "gb-1", "enr-1", sqlmock.AnyArg(), overall, true, "PASSED", false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO subject_grades").
		WithArgs(sqlmock.AnyArg(), "gb-1", "enr-2", sqlmock.AnyArg(), nil, true, "NO_GRADE", false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	grades := []models.SubjectGrade{
		{GradebookID: "gb-1", EnrollmentID: "enr-1", OverallGrade: &overall, Provisional: true, Remark: "PASSED"},
		{GradebookID: "gb-1", EnrollmentID: "enr-2", Provisional: true, Remark: "NO_GRADE"},
	}
	require.NoError(t, repo.Upsert(context.Background(), grades))
	assert.NotEmpty(t, grades[0].ID)
	assert.False(t, grades[1].CalculatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubjectGradeRepositoryUpsertRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO subject_grades").WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	err := NewSubjectGradeRepository(db).Upsert(context.Background(), []models.SubjectGrade{{GradebookID: "gb-1", EnrollmentID: "enr-1"}})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubjectGradeRepositoryUpsertEmpty(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()

	require.NoError(t, NewSubjectGradeRepository(db).Upsert(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}
