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

const classSubjectSelect = `SELECT cs.id, cs.class_id, cs.subject_id, cs.teacher_id, cs.created_at,
        c.name AS class_name, s.name AS subject_name, s.code AS subject_code
        FROM class_subjects cs
        JOIN classes c ON c.id = cs.class_id
        JOIN subjects s ON s.id = cs.subject_id`

// ClassRepository manages classes and the subjects taught in them.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs a new class repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// FindByID returns a class record by ID.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	const query = `SELECT id, name, grade, track, created_at, updated_at FROM classes WHERE id = $1`
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// FindClassSubject returns the class subject mapping with display names.
func (r *ClassRepository) FindClassSubject(ctx context.Context, classID, subjectID string) (*models.ClassSubject, error) {
	query := classSubjectSelect + ` WHERE cs.class_id = $1 AND cs.subject_id = $2`
	var cs models.ClassSubject
	if err := r.db.GetContext(ctx, &cs, query, classID, subjectID); err != nil {
		return nil, err
	}
	return &cs, nil
}

// ListByTeacher returns the class subjects assigned to a teacher.
func (r *ClassRepository) ListByTeacher(ctx context.Context, teacherID string) ([]models.ClassSubject, error) {
	query := classSubjectSelect + ` WHERE cs.teacher_id = $1 ORDER BY c.name, s.name`
	var subjects []models.ClassSubject
	if err := r.db.SelectContext(ctx, &subjects, query, teacherID); err != nil {
		return nil, fmt.Errorf("list teacher class subjects: %w", err)
	}
	return subjects, nil
}

// ListByClass returns every subject taught in a class.
func (r *ClassRepository) ListByClass(ctx context.Context, classID string) ([]models.ClassSubject, error) {
	query := classSubjectSelect + ` WHERE cs.class_id = $1 ORDER BY s.name`
	var subjects []models.ClassSubject
	if err := r.db.SelectContext(ctx, &subjects, query, classID); err != nil {
		return nil, fmt.Errorf("list class subjects: %w", err)
	}
	return subjects, nil
}

// AssignTeacher sets the teacher of a class subject, creating the mapping if needed.
func (r *ClassRepository) AssignTeacher(ctx context.Context, classID, subjectID, teacherID string) (*models.ClassSubject, error) {
	const query = `INSERT INTO class_subjects (id, class_id, subject_id, teacher_id, created_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (class_id, subject_id) DO UPDATE SET teacher_id = EXCLUDED.teacher_id`
	if _, err := r.db.ExecContext(ctx, query, uuid.NewString(), classID, subjectID, teacherID, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("assign class subject teacher: %w", err)
	}
	return r.FindClassSubject(ctx, classID, subjectID)
}

// HasTeacherAccess reports whether teacherID teaches subjectID in classID. An
// empty subjectID matches any subject of the class.
func (r *ClassRepository) HasTeacherAccess(ctx context.Context, teacherID, classID, subjectID string) (bool, error) {
	query := `SELECT 1 FROM class_subjects WHERE teacher_id = $1 AND class_id = $2`
	args := []interface{}{teacherID, classID}
	if subjectID != "" {
		query += fmt.Sprintf(" AND subject_id = $%d", len(args)+1)
		args = append(args, subjectID)
	}
	query += " LIMIT 1"
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check teacher access: %w", err)
	}
	return true, nil
}
