package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

// ErrGradebookFinalized is returned when scores are written to a gradebook
// that was finalized.
var ErrGradebookFinalized = errors.New("gradebook finalized")

// ScoreRepository persists the points students earned on tasks.
type ScoreRepository struct {
	db *sqlx.DB
}

// NewScoreRepository constructs the repository.
func NewScoreRepository(db *sqlx.DB) *ScoreRepository {
	return &ScoreRepository{db: db}
}

// Upsert stores scores of gradebookID in one transaction. A nil PointsEarned
// clears the score. The gradebook row is share-locked for the duration, so a
// concurrent finalization either waits for the scores or makes the write fail
// with ErrGradebookFinalized.
func (r *ScoreRepository) Upsert(ctx context.Context, gradebookID string, scores []models.TaskScore) error {
	if len(scores) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	var finalized bool
	if err := tx.GetContext(ctx, &finalized, `SELECT finalized FROM gradebooks WHERE id = $1 FOR SHARE`, gradebookID); err != nil {
		tx.Rollback() //nolint:errcheck
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return fmt.Errorf("lock gradebook: %w", err)
	}
	if finalized {
		tx.Rollback() //nolint:errcheck
		return ErrGradebookFinalized
	}
	const query = `INSERT INTO task_scores (id, task_id, enrollment_id, points_earned, recorded_by, updated_at)
        VALUES (:id, :task_id, :enrollment_id, :points_earned, :recorded_by, :updated_at)
        ON CONFLICT (task_id, enrollment_id)
        DO UPDATE SET points_earned = EXCLUDED.points_earned, recorded_by = EXCLUDED.recorded_by, updated_at = EXCLUDED.updated_at`
	now := time.Now().UTC()
	for i := range scores {
		if scores[i].ID == "" {
			scores[i].ID = uuid.NewString()
		}
		scores[i].UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, query, scores[i]); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("upsert task score: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit task scores: %w", err)
	}
	return nil
}

// ListByGradebook returns every score recorded against the gradebook's tasks.
func (r *ScoreRepository) ListByGradebook(ctx context.Context, gradebookID string) ([]models.TaskScore, error) {
	const query = `SELECT s.id, s.task_id, s.enrollment_id, s.points_earned, s.recorded_by, s.updated_at
        FROM task_scores s
        JOIN gradebook_tasks t ON t.id = s.task_id
        WHERE t.gradebook_id = $1`
	var scores []models.TaskScore
	if err := r.db.SelectContext(ctx, &scores, query, gradebookID); err != nil {
		return nil, fmt.Errorf("list gradebook scores: %w", err)
	}
	return scores, nil
}

// ListByEnrollment returns the scores of one student in a gradebook.
func (r *ScoreRepository) ListByEnrollment(ctx context.Context, gradebookID, enrollmentID string) ([]models.TaskScore, error) {
	const query = `SELECT s.id, s.task_id, s.enrollment_id, s.points_earned, s.recorded_by, s.updated_at
        FROM task_scores s
        JOIN gradebook_tasks t ON t.id = s.task_id
        WHERE t.gradebook_id = $1 AND s.enrollment_id = $2`
	var scores []models.TaskScore
	if err := r.db.SelectContext(ctx, &scores, query, gradebookID, enrollmentID); err != nil {
		return nil, fmt.Errorf("list enrollment scores: %w", err)
	}
	return scores, nil
}
