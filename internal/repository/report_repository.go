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

const (
	reportJobSelect = `SELECT id, type, params, status, progress, attempts, result_url, created_by, created_at, finished_at, error_message FROM report_jobs`

	claimedProgress = 10
)

// ReportRepository stores export jobs. Every state change is a guarded
// UPDATE so two workers never move the same job at once.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs the repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Create inserts a queued job, filling in its id and timestamp.
func (r *ReportRepository) Create(ctx context.Context, job *models.ReportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	job.Status = models.ReportStatusQueued
	job.Progress = 0
	job.Attempts = 0

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO report_jobs (id, type, params, status, progress, attempts, created_by, created_at) VALUES ($1, $2, $3, $4, 0, 0, $5, $6)`,
		job.ID, job.Type, job.Params, job.Status, job.CreatedBy, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert report job %s: %w", job.ID, err)
	}
	return nil
}

// GetByID returns sql.ErrNoRows unwrapped when the job does not exist.
func (r *ReportRepository) GetByID(ctx context.Context, id string) (*models.ReportJob, error) {
	var job models.ReportJob
	err := r.db.GetContext(ctx, &job, reportJobSelect+` WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("get report job %s: %w", id, err)
	}
	return &job, nil
}

// Claim moves a queued job to PROCESSING and counts the attempt. It returns
// false when the job was not queued, e.g. a duplicate delivery.
func (r *ReportRepository) Claim(ctx context.Context, id string) (bool, error) {
	return r.transition(ctx, "claim",
		`UPDATE report_jobs SET status = 'PROCESSING', progress = $2, attempts = attempts + 1 WHERE id = $1 AND status = 'QUEUED'`,
		id, claimedProgress)
}

// Requeue puts a processing job back in the queue after a failed attempt.
func (r *ReportRepository) Requeue(ctx context.Context, id, reason string) (bool, error) {
	return r.transition(ctx, "requeue",
		`UPDATE report_jobs SET status = 'QUEUED', progress = 0, error_message = $2 WHERE id = $1 AND status = 'PROCESSING'`,
		id, reason)
}

// Finish records the download link of a processed job.
func (r *ReportRepository) Finish(ctx context.Context, id, resultURL string, at time.Time) (bool, error) {
	return r.transition(ctx, "finish",
		`UPDATE report_jobs SET status = 'FINISHED', progress = 100, result_url = $2, error_message = NULL, finished_at = $3 WHERE id = $1 AND status = 'PROCESSING'`,
		id, resultURL, at)
}

// Fail closes a job that is not already finished or failed.
func (r *ReportRepository) Fail(ctx context.Context, id, reason string, at time.Time) (bool, error) {
	return r.transition(ctx, "fail",
		`UPDATE report_jobs SET status = 'FAILED', progress = 100, error_message = $2, finished_at = $3 WHERE id = $1 AND status IN ('QUEUED', 'PROCESSING')`,
		id, reason, at)
}

// ReleaseStale requeues jobs left PROCESSING by a worker that died.
func (r *ReportRepository) ReleaseStale(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE report_jobs SET status = 'QUEUED', progress = 0 WHERE status = 'PROCESSING'`)
	if err != nil {
		return 0, fmt.Errorf("release stale report jobs: %w", err)
	}
	return res.RowsAffected()
}

// ListQueued returns the oldest queued jobs first.
func (r *ReportRepository) ListQueued(ctx context.Context, limit int) ([]models.ReportJob, error) {
	return r.list(ctx, "queued", `WHERE status = 'QUEUED' ORDER BY created_at ASC LIMIT $1`, clampLimit(limit, 20))
}

// ListByCreator returns a user's newest jobs first.
func (r *ReportRepository) ListByCreator(ctx context.Context, userID string, limit int) ([]models.ReportJob, error) {
	return r.list(ctx, "by creator", `WHERE created_by = $1 ORDER BY created_at DESC LIMIT $2`, userID, clampLimit(limit, 20))
}

// ListFinishedBefore returns finished jobs whose files are due for cleanup.
func (r *ReportRepository) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error) {
	return r.list(ctx, "finished", `WHERE status = 'FINISHED' AND finished_at < $1 ORDER BY finished_at ASC LIMIT $2`, cutoff, clampLimit(limit, 50))
}

func (r *ReportRepository) transition(ctx context.Context, name, query string, args ...interface{}) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s report job: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s report job: %w", name, err)
	}
	return n == 1, nil
}

func (r *ReportRepository) list(ctx context.Context, name, clause string, args ...interface{}) ([]models.ReportJob, error) {
	jobs := []models.ReportJob{}
	if err := r.db.SelectContext(ctx, &jobs, reportJobSelect+" "+clause, args...); err != nil {
		return nil, fmt.Errorf("list %s report jobs: %w", name, err)
	}
	return jobs, nil
}

func clampLimit(limit, fallback int) int {
	if limit <= 0 || limit > 500 {
		return fallback
	}
	return limit
}
