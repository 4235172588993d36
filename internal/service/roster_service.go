package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
	"github.com/noah-isme/sma-gradebook-api/internal/repository"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
	"github.com/noah-isme/sma-gradebook-api/pkg/validation"
)

type rosterEnrollmentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	ExistsActive(ctx context.Context, studentID, classID, termID string) (bool, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	Withdraw(ctx context.Context, id string, at time.Time) (bool, error)
	ListRoster(ctx context.Context, classID, termID string) ([]models.RosterEntry, error)
}

type rosterClassRepository interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
	FindClassSubject(ctx context.Context, classID, subjectID string) (*models.ClassSubject, error)
	AssignTeacher(ctx context.Context, classID, subjectID, teacherID string) (*models.ClassSubject, error)
	HasTeacherAccess(ctx context.Context, teacherID, classID, subjectID string) (bool, error)
}

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type classGradeInvalidator interface {
	InvalidateClass(ctx context.Context, classID, termID string)
}

// EnrollStudentRequest places a student on a class roster.
type EnrollStudentRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	TermID    string `json:"term_id" validate:"required"`
}

// AssignTeacherRequest sets the teacher of a class subject.
type AssignTeacherRequest struct {
	TeacherID string `json:"teacher_id" validate:"required"`
}

// RosterService manages class enrollments and teacher assignments.
type RosterService struct {
	enrollments rosterEnrollmentRepository
	classes     rosterClassRepository
	users       userReader
	grades      classGradeInvalidator
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewRosterService wires the roster service. grades may be nil.
func NewRosterService(enrollments rosterEnrollmentRepository, classes rosterClassRepository, users userReader, grades classGradeInvalidator, validate *validator.Validate, logger *zap.Logger) *RosterService {
	if validate == nil {
		validate = validation.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterService{
		enrollments: enrollments,
		classes:     classes,
		users:       users,
		grades:      grades,
		validator:   validate,
		logger:      logger,
	}
}

// Enroll registers a student to a class for a term.
func (s *RosterService) Enroll(ctx context.Context, classID string, req EnrollStudentRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid enrollment payload")
	}
	if _, err := s.classes.FindByID(ctx, classID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Internal(err, "failed to load class")
	}
	student, err := s.users.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Internal(err, "failed to load student")
	}
	if student.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user is not a student")
	}
	if !student.Active {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "student inactive")
	}
	exists, err := s.enrollments.ExistsActive(ctx, req.StudentID, classID, req.TermID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to validate enrollment")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student already enrolled in class for term")
	}
	enrollment := &models.Enrollment{
		StudentID: req.StudentID,
		ClassID:   classID,
		TermID:    req.TermID,
		JoinedAt:  time.Now().UTC(),
		Status:    models.EnrollmentStatusActive,
	}
	if err := s.enrollments.Create(ctx, enrollment); err != nil {
		if errors.Is(err, repository.ErrAlreadyEnrolled) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "student already enrolled in class for term")
		}
		return nil, appErrors.Internal(err, "failed to create enrollment")
	}
	s.invalidate(ctx, classID, req.TermID)
	s.logger.Info("student enrolled",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("student_id", enrollment.StudentID),
		zap.String("class_id", classID))
	return enrollment, nil
}

// Withdraw marks an active enrollment as withdrawn.
func (s *RosterService) Withdraw(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.enrollments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Internal(err, "failed to load enrollment")
	}
	if !enrollment.Active() {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment already inactive")
	}
	leftAt := time.Now().UTC()
	withdrawn, err := s.enrollments.Withdraw(ctx, id, leftAt)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to withdraw enrollment")
	}
	if !withdrawn {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment already inactive")
	}
	enrollment.Status = models.EnrollmentStatusWithdrawn
	enrollment.LeftAt = &leftAt
	s.invalidate(ctx, enrollment.ClassID, enrollment.TermID)
	return enrollment, nil
}

// Roster lists the active students of a class in a term.
func (s *RosterService) Roster(ctx context.Context, classID, termID string) ([]models.RosterEntry, error) {
	if termID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "termId is required")
	}
	if _, err := s.classes.FindByID(ctx, classID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Internal(err, "failed to load class")
	}
	entries, err := s.enrollments.ListRoster(ctx, classID, termID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list roster")
	}
	return entries, nil
}

// AssignTeacher sets the teacher responsible for a subject in a class.
func (s *RosterService) AssignTeacher(ctx context.Context, classID, subjectID string, req AssignTeacherRequest) (*models.ClassSubject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid assignment payload")
	}
	if _, err := s.classes.FindClassSubject(ctx, classID, subjectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not offered in class")
		}
		return nil, appErrors.Internal(err, "failed to load class subject")
	}
	teacher, err := s.users.FindByID(ctx, req.TeacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Internal(err, "failed to load teacher")
	}
	if teacher.Role != models.RoleTeacher {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user is not a teacher")
	}
	if !teacher.Active {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "teacher inactive")
	}
	assignment, err := s.classes.AssignTeacher(ctx, classID, subjectID, req.TeacherID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to assign teacher")
	}
	s.logger.Info("teacher assigned",
		zap.String("class_id", classID),
		zap.String("subject_id", subjectID),
		zap.String("teacher_id", req.TeacherID))
	return assignment, nil
}

// HasClassAccess reports whether the teacher teaches subjectID in classID.
// An empty subjectID matches any subject of the class.
func (s *RosterService) HasClassAccess(ctx context.Context, teacherID, classID, subjectID string) (bool, error) {
	ok, err := s.classes.HasTeacherAccess(ctx, teacherID, classID, subjectID)
	if err != nil {
		return false, appErrors.Internal(err, "failed to verify teacher assignment")
	}
	return ok, nil
}

func (s *RosterService) invalidate(ctx context.Context, classID, termID string) {
	if s.grades != nil {
		s.grades.InvalidateClass(ctx, classID, termID)
	}
}
