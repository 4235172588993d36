package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/sma-gradebook-api/internal/authz"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	"github.com/noah-isme/sma-gradebook-api/internal/repository"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
	"github.com/noah-isme/sma-gradebook-api/pkg/validation"
)

type registrationRepository interface {
	CreateWithUser(ctx context.Context, user *models.User, reg *models.Registration) error
	FindByID(ctx context.Context, id string) (*models.Registration, error)
	List(ctx context.Context, filter models.RegistrationFilter) ([]models.Registration, int, error)
	Review(ctx context.Context, id string, status models.RegistrationStatus, reviewerID string, note *string, at time.Time) error
}

type registrationUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type registrationNotifier interface {
	RegistrationReceived(ctx context.Context, user *models.User)
	RegistrationReviewed(ctx context.Context, user *models.User, status models.RegistrationStatus, note *string)
}

type dashboardInvalidator interface {
	InvalidateDashboards(ctx context.Context)
}

// RegisterRequest is the public signup payload.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	FullName string `json:"full_name" validate:"required,notblank,min=2,max=120"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"required,oneof=STUDENT TEACHER student teacher"`
}

// ReviewRegistrationRequest carries an optional reviewer note.
type ReviewRegistrationRequest struct {
	Note string `json:"note" validate:"max=500"`
}

// RegistrationService handles self-service signups and their review.
type RegistrationService struct {
	repo       registrationRepository
	users      registrationUserRepository
	notifier   registrationNotifier
	dashboards dashboardInvalidator
	validator  *validator.Validate
	logger     *zap.Logger
	enabled    bool
}

// RegistrationServiceParams groups the registration service collaborators.
type RegistrationServiceParams struct {
	Repo       registrationRepository
	Users      registrationUserRepository
	Notifier   registrationNotifier
	Dashboards dashboardInvalidator
	Validator  *validator.Validate
	Logger     *zap.Logger
	Enabled    bool
}

// NewRegistrationService constructs a registration service.
func NewRegistrationService(params RegistrationServiceParams) *RegistrationService {
	validate := params.Validator
	if validate == nil {
		validate = validation.New()
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistrationService{
		repo:       params.Repo,
		users:      params.Users,
		notifier:   params.Notifier,
		dashboards: params.Dashboards,
		validator:  validate,
		logger:     logger,
		enabled:    params.Enabled,
	}
}

// Register creates an inactive account with a pending registration.
func (s *RegistrationService) Register(ctx context.Context, req RegisterRequest) (*models.Registration, error) {
	if !s.enabled {
		return nil, appErrors.Clone(appErrors.ErrFeatureDisabled, "registration disabled")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid registration payload")
	}
	role, err := models.ParseRole(req.Role)
	if err != nil || (role != models.RoleStudent && role != models.RoleTeacher) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "role must be STUDENT or TEACHER")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Internal(err, "failed to check email")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to hash password")
	}
	user := &models.User{
		Email:        email,
		PasswordHash: string(hash),
		FullName:     strings.TrimSpace(req.FullName),
		Role:         role,
		Active:       false,
	}
	reg := &models.Registration{}
	if err := s.repo.CreateWithUser(ctx, user, reg); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
		}
		return nil, appErrors.Internal(err, "failed to create registration")
	}

	s.logger.Info("registration received", zap.String("registration_id", reg.ID), zap.String("role", role.String()))
	s.invalidateDashboards(ctx)
	if s.notifier != nil {
		s.notifier.RegistrationReceived(ctx, user)
	}
	return reg, nil
}

// List returns registrations filtered by status.
func (s *RegistrationService) List(ctx context.Context, filter models.RegistrationFilter) ([]models.Registration, *models.Pagination, error) {
	if filter.Status != "" {
		filter.Status = models.RegistrationStatus(strings.ToUpper(string(filter.Status)))
		switch filter.Status {
		case models.RegistrationPending, models.RegistrationApproved, models.RegistrationRejected:
		default:
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid registration status")
		}
	}
	regs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list registrations")
	}
	return regs, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// ListPending returns the first page of registrations awaiting review.
func (s *RegistrationService) ListPending(ctx context.Context) ([]models.Registration, *models.Pagination, error) {
	return s.List(ctx, models.RegistrationFilter{Status: models.RegistrationPending})
}

// Approve activates the applicant's account.
func (s *RegistrationService) Approve(ctx context.Context, reviewer authz.Principal, id string, req ReviewRegistrationRequest) (*models.Registration, error) {
	return s.review(ctx, reviewer, id, models.RegistrationApproved, req)
}

// Reject closes the registration without activating the account.
func (s *RegistrationService) Reject(ctx context.Context, reviewer authz.Principal, id string, req ReviewRegistrationRequest) (*models.Registration, error) {
	return s.review(ctx, reviewer, id, models.RegistrationRejected, req)
}

func (s *RegistrationService) review(ctx context.Context, reviewer authz.Principal, id string, status models.RegistrationStatus, req ReviewRegistrationRequest) (*models.Registration, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid review payload")
	}
	if !authz.Can(reviewer, authz.ActionApproveRegistrations) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to review registrations")
	}
	reg, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		}
		return nil, appErrors.Internal(err, "failed to load registration")
	}
	if !authz.CanReviewRole(reviewer, reg.RequestRole) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to review this role")
	}
	if reg.Status != models.RegistrationPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "registration already reviewed")
	}

	var note *string
	if trimmed := strings.TrimSpace(req.Note); trimmed != "" {
		note = &trimmed
	}
	now := time.Now().UTC()
	if err := s.repo.Review(ctx, id, status, reviewer.UserID, note, now); err != nil {
		if errors.Is(err, repository.ErrAlreadyReviewed) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "registration already reviewed")
		}
		return nil, appErrors.Internal(err, "failed to review registration")
	}
	reg.Status = status
	reg.ReviewedBy = &reviewer.UserID
	reg.ReviewedAt = &now
	reg.ReviewNote = note

	reviewerID := reviewer.UserID
	if err := s.users.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &reviewerID,
		Action:     models.AuditActionRegistrationReview,
		Resource:   "registration",
		ResourceID: &reg.ID,
		NewValues:  []byte(`{"status":"` + string(status) + `"}`),
	}); err != nil {
		s.logger.Warn("failed to record registration audit log", zap.Error(err))
	}

	s.logger.Info("registration reviewed",
		zap.String("registration_id", reg.ID),
		zap.String("status", string(status)),
		zap.String("reviewer_id", reviewer.UserID))
	s.invalidateDashboards(ctx)

	if s.notifier != nil {
		applicant := &models.User{ID: reg.UserID, Email: reg.Email, FullName: reg.FullName, Role: reg.RequestRole}
		s.notifier.RegistrationReviewed(ctx, applicant, status, note)
	}
	return reg, nil
}

func (s *RegistrationService) invalidateDashboards(ctx context.Context) {
	if s.dashboards != nil {
		s.dashboards.InvalidateDashboards(ctx)
	}
}
