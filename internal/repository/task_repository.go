package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

const taskColumns = `id, gradebook_id, category_id, quarter, label, points_possible, position, created_at`

// TaskRepository persists gradebook tasks.
type TaskRepository struct {
	db *sqlx.DB
}

// NewTaskRepository constructs the repository.
func NewTaskRepository(db *sqlx.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Create inserts a task placed after the existing tasks of its category and quarter.
func (r *TaskRepository) Create(ctx context.Context, task *models.GradebookTask) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO gradebook_tasks (id, gradebook_id, category_id, quarter, label, points_possible, position, created_at)
        VALUES (:id, :gradebook_id, :category_id, :quarter, :label, :points_possible,
        (SELECT COALESCE(MAX(position) + 1, 0) FROM gradebook_tasks WHERE category_id = :category_id AND quarter = :quarter), :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, task); err != nil {
		return fmt.Errorf("create gradebook task: %w", err)
	}
	return nil
}

// FindByID returns a task by identifier.
func (r *TaskRepository) FindByID(ctx context.Context, id string) (*models.GradebookTask, error) {
	query := `SELECT ` + taskColumns + ` FROM gradebook_tasks WHERE id = $1`
	var task models.GradebookTask
	if err := r.db.GetContext(ctx, &task, query, id); err != nil {
		return nil, err
	}
	return &task, nil
}

// ListByGradebook returns the tasks of a gradebook. A quarter of 0 returns all quarters.
func (r *TaskRepository) ListByGradebook(ctx context.Context, gradebookID string, quarter int) ([]models.GradebookTask, error) {
	query := `SELECT ` + taskColumns + ` FROM gradebook_tasks WHERE gradebook_id = $1`
	args := []interface{}{gradebookID}
	if quarter > 0 {
		query += " AND quarter = $2"
		args = append(args, quarter)
	}
	query += " ORDER BY quarter ASC, position ASC"
	var tasks []models.GradebookTask
	if err := r.db.SelectContext(ctx, &tasks, query, args...); err != nil {
		return nil, fmt.Errorf("list gradebook tasks: %w", err)
	}
	return tasks, nil
}

// CountByCategory returns the number of tasks per category of a gradebook.
func (r *TaskRepository) CountByCategory(ctx context.Context, gradebookID string) (map[string]int, error) {
	const query = `SELECT category_id, COUNT(*) FROM gradebook_tasks WHERE gradebook_id = $1 GROUP BY category_id`
	rows, err := r.db.QueryxContext(ctx, query, gradebookID)
	if err != nil {
		return nil, fmt.Errorf("count tasks by category: %w", err)
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var categoryID string
		var count int
		if err := rows.Scan(&categoryID, &count); err != nil {
			return nil, fmt.Errorf("scan task count: %w", err)
		}
		counts[categoryID] = count
	}
	return counts, rows.Err()
}

// Delete removes a task and its scores.
func (r *TaskRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM task_scores WHERE task_id = $1`, id); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("delete task scores: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM gradebook_tasks WHERE id = $1`, id); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("delete gradebook task: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit task delete: %w", err)
	}
	return nil
}
