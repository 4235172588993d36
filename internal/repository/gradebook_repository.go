package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

const gradebookColumns = `g.id, g.class_id, g.subject_id, g.term_id, g.quarter_count, g.passing_grade, g.finalized, g.finalized_at, g.created_by, g.created_at, g.updated_at`

// GradebookRepository persists gradebooks and their weighted categories.
type GradebookRepository struct {
	db *sqlx.DB
}

// NewGradebookRepository constructs the repository.
func NewGradebookRepository(db *sqlx.DB) *GradebookRepository {
	return &GradebookRepository{db: db}
}

// Create inserts a gradebook together with its categories.
func (r *GradebookRepository) Create(ctx context.Context, gb *models.Gradebook) error {
	if gb.ID == "" {
		gb.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	gb.CreatedAt = now
	gb.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	const query = `INSERT INTO gradebooks (id, class_id, subject_id, term_id, quarter_count, passing_grade, finalized, finalized_at, created_by, created_at, updated_at)
        VALUES (:id, :class_id, :subject_id, :term_id, :quarter_count, :passing_grade, :finalized, :finalized_at, :created_by, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, gb); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("create gradebook: %w", err)
	}
	for i := range gb.Categories {
		if err := upsertCategory(ctx, tx, gb.ID, i, &gb.Categories[i], now); err != nil {
			tx.Rollback() //nolint:errcheck
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit gradebook: %w", err)
	}
	return nil
}

// FindByID returns a gradebook with its categories ordered by position.
func (r *GradebookRepository) FindByID(ctx context.Context, id string) (*models.Gradebook, error) {
	query := `SELECT ` + gradebookColumns + ` FROM gradebooks g WHERE g.id = $1`
	var gb models.Gradebook
	if err := r.db.GetContext(ctx, &gb, query, id); err != nil {
		return nil, err
	}
	categories, err := r.ListCategories(ctx, gb.ID)
	if err != nil {
		return nil, err
	}
	gb.Categories = categories
	return &gb, nil
}

// FindByScope returns the gradebook of a class subject for a term.
func (r *GradebookRepository) FindByScope(ctx context.Context, classID, subjectID, termID string) (*models.Gradebook, error) {
	query := `SELECT ` + gradebookColumns + ` FROM gradebooks g WHERE g.class_id = $1 AND g.subject_id = $2 AND g.term_id = $3`
	var gb models.Gradebook
	if err := r.db.GetContext(ctx, &gb, query, classID, subjectID, termID); err != nil {
		return nil, err
	}
	categories, err := r.ListCategories(ctx, gb.ID)
	if err != nil {
		return nil, err
	}
	gb.Categories = categories
	return &gb, nil
}

// List returns gradebooks matching the filter without categories.
func (r *GradebookRepository) List(ctx context.Context, filter models.GradebookFilter) ([]models.Gradebook, error) {
	query := `SELECT ` + gradebookColumns + ` FROM gradebooks g`
	var conditions []string
	var args []interface{}
	if filter.TeacherID != "" {
		query += ` JOIN class_subjects cs ON cs.class_id = g.class_id AND cs.subject_id = g.subject_id`
		conditions = append(conditions, fmt.Sprintf("cs.teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("g.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.SubjectID != "" {
		conditions = append(conditions, fmt.Sprintf("g.subject_id = $%d", len(args)+1))
		args = append(args, filter.SubjectID)
	}
	if filter.TermID != "" {
		conditions = append(conditions, fmt.Sprintf("g.term_id = $%d", len(args)+1))
		args = append(args, filter.TermID)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY g.created_at DESC"

	var gradebooks []models.Gradebook
	if err := r.db.SelectContext(ctx, &gradebooks, query, args...); err != nil {
		return nil, fmt.Errorf("list gradebooks: %w", err)
	}
	return gradebooks, nil
}

// ListCategories returns the categories of a gradebook ordered by position.
func (r *GradebookRepository) ListCategories(ctx context.Context, gradebookID string) ([]models.GradebookCategory, error) {
	const query = `SELECT id, gradebook_id, code, label, weight, kind, position, created_at FROM gradebook_categories WHERE gradebook_id = $1 ORDER BY position ASC`
	var categories []models.GradebookCategory
	if err := r.db.SelectContext(ctx, &categories, query, gradebookID); err != nil {
		return nil, fmt.Errorf("list gradebook categories: %w", err)
	}
	return categories, nil
}

// ReplaceCategories stores categories as the full configuration of the
// gradebook. Existing categories missing from the list are deleted; callers
// must ensure they carry no tasks.
func (r *GradebookRepository) ReplaceCategories(ctx context.Context, gradebookID string, categories []models.GradebookCategory) error {
	now := time.Now().UTC()
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	keep := make([]string, 0, len(categories))
	for i := range categories {
		if err := upsertCategory(ctx, tx, gradebookID, i, &categories[i], now); err != nil {
			tx.Rollback() //nolint:errcheck
			return err
		}
		keep = append(keep, categories[i].ID)
	}

	args := []interface{}{gradebookID}
	placeholders := make([]string, len(keep))
	for i, id := range keep {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, id)
	}
	del := "DELETE FROM gradebook_categories WHERE gradebook_id = $1"
	if len(keep) > 0 {
		del += fmt.Sprintf(" AND id NOT IN (%s)", strings.Join(placeholders, ","))
	}
	if _, err := tx.ExecContext(ctx, del, args...); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("delete removed categories: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE gradebooks SET updated_at = $2 WHERE id = $1`, gradebookID, now); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("touch gradebook: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit categories: %w", err)
	}
	return nil
}

func upsertCategory(ctx context.Context, tx *sqlx.Tx, gradebookID string, position int, cat *models.GradebookCategory, now time.Time) error {
	if cat.ID == "" {
		cat.ID = uuid.NewString()
	}
	if cat.CreatedAt.IsZero() {
		cat.CreatedAt = now
	}
	cat.GradebookID = gradebookID
	cat.Position = position
	const query = `INSERT INTO gradebook_categories (id, gradebook_id, code, label, weight, kind, position, created_at)
        VALUES (:id, :gradebook_id, :code, :label, :weight, :kind, :position, :created_at)
        ON CONFLICT (id) DO UPDATE SET code = EXCLUDED.code, label = EXCLUDED.label, weight = EXCLUDED.weight, kind = EXCLUDED.kind, position = EXCLUDED.position`
	if _, err := tx.NamedExecContext(ctx, query, cat); err != nil {
		return fmt.Errorf("upsert gradebook category: %w", err)
	}
	return nil
}

// MarkFinalized flags the gradebook finalized. It reports false when the
// gradebook was already finalized.
func (r *GradebookRepository) MarkFinalized(ctx context.Context, id string, at time.Time) (bool, error) {
	const query = `UPDATE gradebooks SET finalized = TRUE, finalized_at = $2, updated_at = $2 WHERE id = $1 AND finalized = FALSE`
	res, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return false, fmt.Errorf("finalize gradebook: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("finalize gradebook rows: %w", err)
	}
	return affected > 0, nil
}

// Summary counts gradebooks, optionally scoped to a term.
func (r *GradebookRepository) Summary(ctx context.Context, termID string) (models.GradebookSummary, error) {
	query := `SELECT COUNT(*) AS total, COUNT(*) FILTER (WHERE finalized) AS finalized FROM gradebooks`
	var args []interface{}
	if termID != "" {
		query += " WHERE term_id = $1"
		args = append(args, termID)
	}
	var summary models.GradebookSummary
	if err := r.db.GetContext(ctx, &summary, query, args...); err != nil {
		return models.GradebookSummary{}, fmt.Errorf("summarize gradebooks: %w", err)
	}
	return summary, nil
}
