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

// ErrAlreadyEnrolled is returned when the student already holds an active
// seat in the class for the term.
var ErrAlreadyEnrolled = errors.New("student already enrolled")

const enrollmentSelect = `SELECT id, student_id, class_id, term_id, joined_at, left_at, status FROM enrollments`

// EnrollmentRepository stores class rosters. At most one ACTIVE row exists
// per student, class and term.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// FindByID returns sql.ErrNoRows when the enrollment is unknown.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	var e models.Enrollment
	if err := r.db.GetContext(ctx, &e, enrollmentSelect+` WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &e, nil
}

// ExistsActive reports whether the student already sits in the class roster
// for the term.
func (r *EnrollmentRepository) ExistsActive(ctx context.Context, studentID, classID, termID string) (bool, error) {
	const query = `SELECT EXISTS (
		SELECT 1 FROM enrollments
		WHERE student_id = $1 AND class_id = $2 AND term_id = $3 AND status = $4)`
	var exists bool
	err := r.db.GetContext(ctx, &exists, query, studentID, classID, termID, models.EnrollmentStatusActive)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("check active enrollment: %w", err)
	}
	return exists, nil
}

// Create inserts an ACTIVE enrollment. Losing a race against a concurrent
// enrollment of the same student yields ErrAlreadyEnrolled.
func (r *EnrollmentRepository) Create(ctx context.Context, e *models.Enrollment) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.JoinedAt.IsZero() {
		e.JoinedAt = time.Now().UTC()
	}
	e.Status = models.EnrollmentStatusActive
	e.LeftAt = nil

	const query = `INSERT INTO enrollments (id, student_id, class_id, term_id, joined_at, status)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.ExecContext(ctx, query, e.ID, e.StudentID, e.ClassID, e.TermID, e.JoinedAt, e.Status)
	switch {
	case isUniqueViolation(err):
		return ErrAlreadyEnrolled
	case err != nil:
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// Withdraw moves an ACTIVE enrollment to WITHDRAWN and stamps left_at. It
// reports false when the enrollment was not active.
func (r *EnrollmentRepository) Withdraw(ctx context.Context, id string, at time.Time) (bool, error) {
	const query = `UPDATE enrollments SET status = $2, left_at = $3 WHERE id = $1 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, id, models.EnrollmentStatusWithdrawn, at, models.EnrollmentStatusActive)
	if err != nil {
		return false, fmt.Errorf("withdraw enrollment %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("withdraw enrollment %s: %w", id, err)
	}
	return n == 1, nil
}

// ListRoster returns the active students of a class in a term, by name.
func (r *EnrollmentRepository) ListRoster(ctx context.Context, classID, termID string) ([]models.RosterEntry, error) {
	const query = `SELECT e.id, e.student_id, e.class_id, e.term_id, e.joined_at, e.left_at, e.status,
		u.full_name AS student_name, u.email AS student_email
		FROM enrollments e
		JOIN users u ON u.id = e.student_id
		WHERE e.class_id = $1 AND e.term_id = $2 AND e.status = $3
		ORDER BY u.full_name, e.id`
	roster := []models.RosterEntry{}
	if err := r.db.SelectContext(ctx, &roster, query, classID, termID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list roster %s/%s: %w", classID, termID, err)
	}
	return roster, nil
}

// ListActiveByStudentAndTerm returns the student's active enrollments in a term.
func (r *EnrollmentRepository) ListActiveByStudentAndTerm(ctx context.Context, studentID, termID string) ([]models.Enrollment, error) {
	return r.listActive(ctx, enrollmentSelect+` WHERE student_id = $1 AND status = $2 AND term_id = $3 ORDER BY class_id`,
		studentID, models.EnrollmentStatusActive, termID)
}

// ListActiveByStudent returns every active enrollment of a student, newest first.
func (r *EnrollmentRepository) ListActiveByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error) {
	return r.listActive(ctx, enrollmentSelect+` WHERE student_id = $1 AND status = $2 ORDER BY joined_at DESC`,
		studentID, models.EnrollmentStatusActive)
}

func (r *EnrollmentRepository) listActive(ctx context.Context, query string, args ...interface{}) ([]models.Enrollment, error) {
	out := []models.Enrollment{}
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return out, nil
}
