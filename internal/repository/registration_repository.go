package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

// ErrAlreadyReviewed is returned when a registration is no longer pending.
var ErrAlreadyReviewed = errors.New("registration already reviewed")

// ErrEmailTaken is returned when another account already uses the email.
var ErrEmailTaken = errors.New("email already registered")

const registrationSelect = `SELECT r.id, r.user_id, r.status, r.reviewed_by, r.reviewed_at, r.review_note, r.created_at,
        u.email, u.full_name, u.role
        FROM registrations r
        JOIN users u ON u.id = r.user_id`

// RegistrationRepository persists signup requests awaiting review.
type RegistrationRepository struct {
	db *sqlx.DB
}

// NewRegistrationRepository constructs the repository.
func NewRegistrationRepository(db *sqlx.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

// CreateWithUser inserts the inactive account and its pending registration atomically.
func (r *RegistrationRepository) CreateWithUser(ctx context.Context, user *models.User, reg *models.Registration) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := insertUser(ctx, tx, user); err != nil {
		tx.Rollback() //nolint:errcheck
		if isUniqueViolation(err) {
			return ErrEmailTaken
		}
		return err
	}

	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	reg.UserID = user.ID
	reg.Status = models.RegistrationPending
	reg.Email = user.Email
	reg.FullName = user.FullName
	reg.RequestRole = user.Role
	if reg.CreatedAt.IsZero() {
		reg.CreatedAt = user.CreatedAt
	}
	const query = `INSERT INTO registrations (id, user_id, status, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := tx.ExecContext(ctx, query, reg.ID, reg.UserID, reg.Status, reg.CreatedAt); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("create registration: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit registration: %w", err)
	}
	return nil
}

// FindByID returns a registration with the applicant details.
func (r *RegistrationRepository) FindByID(ctx context.Context, id string) (*models.Registration, error) {
	query := registrationSelect + ` WHERE r.id = $1`
	var reg models.Registration
	if err := r.db.GetContext(ctx, &reg, query, id); err != nil {
		return nil, err
	}
	return &reg, nil
}

// List returns registrations matching the filter with total count.
func (r *RegistrationRepository) List(ctx context.Context, filter models.RegistrationFilter) ([]models.Registration, int, error) {
	where := ""
	var args []interface{}
	if filter.Status != "" {
		where = " WHERE r.status = $1"
		args = append(args, filter.Status)
	}

	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf("%s%s ORDER BY r.created_at ASC LIMIT %d OFFSET %d", registrationSelect, where, size, offset)
	var regs []models.Registration
	if err := r.db.SelectContext(ctx, &regs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list registrations: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM registrations r"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count registrations: %w", err)
	}
	return regs, total, nil
}

// CountPending returns the number of registrations awaiting review.
func (r *RegistrationRepository) CountPending(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM registrations WHERE status = $1`, models.RegistrationPending); err != nil {
		return 0, fmt.Errorf("count pending registrations: %w", err)
	}
	return total, nil
}

// Review records the decision on a pending registration. Approval activates
// the account in the same transaction. ErrAlreadyReviewed is returned when the
// registration is no longer pending.
func (r *RegistrationRepository) Review(ctx context.Context, id string, status models.RegistrationStatus, reviewerID string, note *string, at time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	const update = `UPDATE registrations SET status = $2, reviewed_by = $3, reviewed_at = $4, review_note = $5
        WHERE id = $1 AND status = 'PENDING' RETURNING user_id`
	var userID string
	if err := tx.GetContext(ctx, &userID, update, id, status, reviewerID, at, note); err != nil {
		tx.Rollback() //nolint:errcheck
		if errors.Is(err, sql.ErrNoRows) {
			return ErrAlreadyReviewed
		}
		return fmt.Errorf("review registration: %w", err)
	}
	if status == models.RegistrationApproved {
		if _, err := tx.ExecContext(ctx, `UPDATE users SET active = TRUE, updated_at = $2 WHERE id = $1`, userID, at); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("activate user: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit registration review: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
