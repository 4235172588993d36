package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskRepositoryListByGradebookQuarter(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTaskRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM gradebook_tasks WHERE gradebook_id = $1 AND quarter = $2 ORDER BY quarter ASC, position ASC")).
		WithArgs("gb-1", 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "gradebook_id", "category_id", "quarter", "label", "points_possible", "position", "created_at"}).
			AddRow("ww2", "gb-1", "cat-ww", 2, "Quiz 2", 10.0, 0, now))

	tasks, err := repo.ListByGradebook(context.Background(), "gb-1", 2)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, 10.0, tasks[0].PointsPossible)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskRepositoryCountByCategory(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTaskRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT category_id, COUNT(*) FROM gradebook_tasks WHERE gradebook_id = $1 GROUP BY category_id")).
		WithArgs("gb-1").
		WillReturnRows(sqlmock.NewRows([]string{"category_id", "count"}).AddRow("cat-ww", 3).AddRow("cat-qe", 1))

	counts, err := repo.CountByCategory(context.Background(), "gb-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"cat-ww": 3, "cat-qe": 1}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskRepositoryDeleteRemovesScores(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTaskRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM task_scores WHERE task_id = $1")).WithArgs("ww1").WillReturnResult(sqlmock.NewResult(0, 12))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM gradebook_tasks WHERE id = $1")).WithArgs("ww1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Delete(context.Background(), "ww1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
