package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/sma-gradebook-api/internal/authz"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	"github.com/noah-isme/sma-gradebook-api/internal/repository"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
	"github.com/noah-isme/sma-gradebook-api/pkg/validation"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Deactivate(ctx context.Context, id string) error
	RevokeAllSessions(ctx context.Context, userID string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// CreateUserRequest represents payload for creating users.
type CreateUserRequest struct {
	Email    string `json:"email" validate:"required,email"`
	FullName string `json:"full_name" validate:"required,notblank,min=2,max=120"`
	Role     string `json:"role" validate:"required"`
	Active   bool   `json:"active"`
	Password string `json:"password" validate:"required,min=8"`
}

// UpdateUserRequest payload for updating users.
type UpdateUserRequest struct {
	FullName string `json:"full_name" validate:"required,notblank,min=2,max=120"`
	Role     string `json:"role" validate:"required"`
	Active   *bool  `json:"active"`
}

// RequestMeta carries client details recorded in audit entries.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// UserService handles account management by admins.
type UserService struct {
	repo       userRepository
	dashboards dashboardInvalidator
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewUserService creates an instance of UserService. dashboards may be nil.
func NewUserService(repo userRepository, dashboards dashboardInvalidator, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validation.New()
	}
	return &UserService{repo: repo, dashboards: dashboards, validator: validate, logger: logger}
}

// List returns paginated users and pagination metadata.
func (s *UserService) List(ctx context.Context, actor authz.Principal, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	if !authz.Can(actor, authz.ActionManageUsers) {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to list users")
	}
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list users")
	}
	return users, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, actor authz.Principal, id string) (*models.User, error) {
	if !authz.Can(actor, authz.ActionManageUsers) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view users")
	}
	return s.load(ctx, id)
}

// Create adds a new account. Only super admins may create admin accounts.
func (s *UserService) Create(ctx context.Context, actor authz.Principal, req CreateUserRequest, meta RequestMeta) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid create user payload")
	}
	role, err := models.ParseRole(req.Role)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown role")
	}
	if !authz.CanManageRole(actor, role) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to create "+role.String()+" accounts")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Internal(err, "failed to check email uniqueness")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to hash password")
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		FullName:     strings.TrimSpace(req.FullName),
		Role:         role,
		Active:       req.Active,
		PasswordHash: string(passwordHash),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
		}
		return nil, appErrors.Internal(err, "failed to create user")
	}

	newPayload, _ := json.Marshal(map[string]interface{}{"id": user.ID, "email": user.Email, "role": user.Role})
	s.audit(ctx, actor, models.AuditActionUserCreate, user.ID, nil, newPayload, meta)
	s.invalidateDashboards(ctx)
	return user, nil
}

// Update modifies the profile, role or active flag of a user. Both the
// current and the requested role must be manageable by actor.
func (s *UserService) Update(ctx context.Context, actor authz.Principal, id string, req UpdateUserRequest, meta RequestMeta) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid update payload")
	}
	role, err := models.ParseRole(req.Role)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown role")
	}

	user, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authz.CanManageRole(actor, user.Role) || !authz.CanManageRole(actor, role) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to manage this account")
	}
	if user.ID == actor.UserID && (role != user.Role || (req.Active != nil && !*req.Active)) {
		return nil, appErrors.Clone(appErrors.ErrConflict, "cannot change own role or deactivate own account")
	}

	oldPayload, _ := json.Marshal(map[string]interface{}{"full_name": user.FullName, "role": user.Role, "active": user.Active})
	wasActive := user.Active

	user.FullName = strings.TrimSpace(req.FullName)
	user.Role = role
	if req.Active != nil {
		user.Active = *req.Active
	}
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Internal(err, "failed to update user")
	}
	if wasActive && !user.Active {
		s.revokeSessions(ctx, user.ID)
	}

	newPayload, _ := json.Marshal(map[string]interface{}{"full_name": user.FullName, "role": user.Role, "active": user.Active})
	s.audit(ctx, actor, models.AuditActionUserUpdate, user.ID, oldPayload, newPayload, meta)
	s.invalidateDashboards(ctx)
	return user, nil
}

// Deactivate disables an account and revokes its refresh tokens.
func (s *UserService) Deactivate(ctx context.Context, actor authz.Principal, id string, meta RequestMeta) error {
	user, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !authz.CanManageRole(actor, user.Role) {
		return appErrors.Clone(appErrors.ErrForbidden, "not allowed to manage this account")
	}
	if user.ID == actor.UserID {
		return appErrors.Clone(appErrors.ErrConflict, "cannot deactivate own account")
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Internal(err, "failed to deactivate user")
	}
	s.revokeSessions(ctx, id)

	oldPayload, _ := json.Marshal(map[string]interface{}{"active": user.Active})
	newPayload, _ := json.Marshal(map[string]interface{}{"active": false})
	s.audit(ctx, actor, models.AuditActionUserDeactivate, user.ID, oldPayload, newPayload, meta)
	s.invalidateDashboards(ctx)
	return nil
}

func (s *UserService) load(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Internal(err, "failed to load user")
	}
	return user, nil
}

func (s *UserService) revokeSessions(ctx context.Context, userID string) {
	if err := s.repo.RevokeAllSessions(ctx, userID); err != nil {
		s.logger.Warn("failed to revoke refresh tokens", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *UserService) audit(ctx context.Context, actor authz.Principal, action, userID string, oldValues, newValues []byte, meta RequestMeta) {
	actorID := actor.UserID
	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "users",
		ResourceID: &userID,
		OldValues:  oldValues,
		NewValues:  newValues,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record user audit log", zap.String("action", action), zap.Error(err))
	}
}

func (s *UserService) invalidateDashboards(ctx context.Context) {
	if s.dashboards != nil {
		s.dashboards.InvalidateDashboards(ctx)
	}
}
