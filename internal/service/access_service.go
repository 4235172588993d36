package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-gradebook-api/internal/authz"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
)

type teacherAccessChecker interface {
	HasTeacherAccess(ctx context.Context, teacherID, classID, subjectID string) (bool, error)
}

// Scope identifies the records an action touches. Empty fields are not checked.
type Scope struct {
	ClassID   string
	SubjectID string
	StudentID string
}

// AccessService resolves conditional authz decisions against assignments.
type AccessService struct {
	assignments teacherAccessChecker
	logger      *zap.Logger
}

// NewAccessService constructs an access service.
func NewAccessService(assignments teacherAccessChecker, logger *zap.Logger) *AccessService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccessService{assignments: assignments, logger: logger}
}

// Authorize returns nil when the principal may perform action on scope.
func (s *AccessService) Authorize(ctx context.Context, principal authz.Principal, action authz.Action, scope Scope) error {
	switch authz.Decide(principal, action) {
	case authz.Allow:
		return nil
	case authz.AllowIfSelf:
		if scope.StudentID != "" && scope.StudentID == principal.UserID {
			return nil
		}
		return appErrors.Clone(appErrors.ErrForbidden, "access limited to own records")
	case authz.AllowIfAssigned:
		if scope.ClassID == "" {
			return appErrors.Clone(appErrors.ErrForbidden, "class scope required")
		}
		ok, err := s.assignments.HasTeacherAccess(ctx, principal.UserID, scope.ClassID, scope.SubjectID)
		if err != nil {
			return appErrors.Internal(err, "failed to verify teacher assignment")
		}
		if !ok {
			s.logger.Debug("teacher not assigned",
				zap.String("teacher_id", principal.UserID),
				zap.String("class_id", scope.ClassID),
				zap.String("subject_id", scope.SubjectID),
				zap.String("action", string(action)))
			return appErrors.Clone(appErrors.ErrForbidden, "not assigned to this class")
		}
		return nil
	default:
		return appErrors.ErrForbidden
	}
}
