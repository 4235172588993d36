package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

const userSelect = `SELECT id, email, password_hash, full_name, role, active, last_login, created_at, updated_at FROM users`

// UserRepository reads and writes accounts, their sessions and the audit
// trail.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail matches email case-insensitively. A missing account yields
// sql.ErrNoRows.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, "email", userSelect+` WHERE LOWER(email) = LOWER($1)`, email)
}

// FindByID returns sql.ErrNoRows when the account does not exist.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	return r.findOne(ctx, "id", userSelect+` WHERE id = $1`, id)
}

func (r *UserRepository) findOne(ctx context.Context, by, query string, arg interface{}) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("find user by %s: %w", by, err)
	}
	return &user, nil
}

// UpdateLastLogin stamps a successful sign in.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	return r.exec(ctx, "touch last login", `UPDATE users SET last_login = $2, updated_at = $2 WHERE id = $1`, id, ts)
}

// UpdatePassword replaces the stored bcrypt hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	return r.exec(ctx, "update password", `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`, id, passwordHash, updatedAt)
}

// Create inserts an account. A duplicate email yields ErrEmailTaken.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	err := insertUser(ctx, r.db, user)
	if isUniqueViolation(err) {
		return ErrEmailTaken
	}
	return err
}

// Update persists the profile, role and active flag.
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()
	return r.exec(ctx, "update user",
		`UPDATE users SET full_name = $2, role = $3, active = $4, updated_at = $5 WHERE id = $1`,
		user.ID, user.FullName, user.Role, user.Active, user.UpdatedAt)
}

// Deactivate marks the account inactive. Accounts are never deleted because
// scores and audit entries point at them.
func (r *UserRepository) Deactivate(ctx context.Context, id string) error {
	return r.exec(ctx, "deactivate user", `UPDATE users SET active = FALSE, updated_at = $2 WHERE id = $1`, id, time.Now().UTC())
}

// List returns one page of accounts, sorted by name, plus the total match
// count.
func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	where, args := userFilterClause(filter)
	page, size := models.NormalizePage(filter.Page, filter.PageSize)

	users := []models.User{}
	query := fmt.Sprintf("%s%s ORDER BY full_name ASC, id ASC LIMIT %d OFFSET %d", userSelect, where, size, (page-1)*size)
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM users"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}
	return users, total, nil
}

// CountActiveByRole feeds the admin dashboard head counts.
func (r *UserRepository) CountActiveByRole(ctx context.Context) ([]models.RoleCount, error) {
	counts := []models.RoleCount{}
	err := r.db.SelectContext(ctx, &counts, `SELECT role, COUNT(*) AS count FROM users WHERE active = TRUE GROUP BY role ORDER BY role`)
	if err != nil {
		return nil, fmt.Errorf("count users by role: %w", err)
	}
	return counts, nil
}

func (r *UserRepository) exec(ctx context.Context, op, query string, args ...interface{}) error {
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func userFilterClause(filter models.UserFilter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, strings.ReplaceAll(cond, "?", fmt.Sprintf("$%d", len(args))))
	}
	if filter.Role != nil {
		add("role = ?", *filter.Role)
	}
	if filter.Active != nil {
		add("active = ?", *filter.Active)
	}
	if term := strings.TrimSpace(filter.Search); term != "" {
		add("(LOWER(email) LIKE ? OR LOWER(full_name) LIKE ?)", "%"+strings.ToLower(term)+"%")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func insertUser(ctx context.Context, db execer, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	_, err := db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, full_name, role, active, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		user.ID, user.Email, user.PasswordHash, user.FullName, user.Role, user.Active, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert user %s: %w", user.Email, err)
	}
	return nil
}

// CreateAuditLog appends an entry to the audit trail.
func (r *UserRepository) CreateAuditLog(ctx context.Context, entry *models.AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	return r.exec(ctx, "insert audit log "+entry.Action,
		`INSERT INTO audit_logs (id, user_id, action, resource, resource_id, old_values, new_values, ip_address, user_agent, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.ID, entry.UserID, entry.Action, entry.Resource, entry.ResourceID, entry.OldValues, entry.NewValues, entry.IPAddress, entry.UserAgent, entry.CreatedAt)
}
