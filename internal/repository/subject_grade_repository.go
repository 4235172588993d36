package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

// SubjectGradeRepository stores computed subject results per enrollment.
type SubjectGradeRepository struct {
	db *sqlx.DB
}

// NewSubjectGradeRepository constructs the repository.
func NewSubjectGradeRepository(db *sqlx.DB) *SubjectGradeRepository {
	return &SubjectGradeRepository{db: db}
}

// Upsert bulk upserts computed results of one gradebook.
func (r *SubjectGradeRepository) Upsert(ctx context.Context, grades []models.SubjectGrade) error {
	if len(grades) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	const query = `INSERT INTO subject_grades (id, gradebook_id, enrollment_id, quarters, overall_grade, provisional, remark, official, calculated_at)
        VALUES (:id, :gradebook_id, :enrollment_id, :quarters, :overall_grade, :provisional, :remark, :official, :calculated_at)
        ON CONFLICT (gradebook_id, enrollment_id)
        DO UPDATE SET quarters = EXCLUDED.quarters, overall_grade = EXCLUDED.overall_grade, provisional = EXCLUDED.provisional,
        remark = EXCLUDED.remark, official = EXCLUDED.official, calculated_at = EXCLUDED.calculated_at`
	now := time.Now().UTC()
	for i := range grades {
		if grades[i].ID == "" {
			grades[i].ID = uuid.NewString()
		}
		if grades[i].CalculatedAt.IsZero() {
			grades[i].CalculatedAt = now
		}
		if _, err := tx.NamedExecContext(ctx, query, grades[i]); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("upsert subject grade: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit subject grades: %w", err)
	}
	return nil
}
