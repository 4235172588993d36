package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-gradebook-api/internal/authz"
	"github.com/noah-isme/sma-gradebook-api/internal/dto"
	"github.com/noah-isme/sma-gradebook-api/internal/grading"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	"github.com/noah-isme/sma-gradebook-api/internal/repository"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
	"github.com/noah-isme/sma-gradebook-api/pkg/validation"
)

type gradebookStore interface {
	Create(ctx context.Context, gb *models.Gradebook) error
	FindByID(ctx context.Context, id string) (*models.Gradebook, error)
	FindByScope(ctx context.Context, classID, subjectID, termID string) (*models.Gradebook, error)
	List(ctx context.Context, filter models.GradebookFilter) ([]models.Gradebook, error)
	ReplaceCategories(ctx context.Context, gradebookID string, categories []models.GradebookCategory) error
	MarkFinalized(ctx context.Context, id string, at time.Time) (bool, error)
}

type gradebookTaskStore interface {
	Create(ctx context.Context, task *models.GradebookTask) error
	FindByID(ctx context.Context, id string) (*models.GradebookTask, error)
	ListByGradebook(ctx context.Context, gradebookID string, quarter int) ([]models.GradebookTask, error)
	CountByCategory(ctx context.Context, gradebookID string) (map[string]int, error)
	Delete(ctx context.Context, id string) error
}

type scoreWriter interface {
	Upsert(ctx context.Context, gradebookID string, scores []models.TaskScore) error
}

type gradebookEnrollmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
}

type gradeRecomputer interface {
	Recompute(ctx context.Context, gb *models.Gradebook) (*dto.ClassGradeRoster, error)
	InvalidateGradebook(ctx context.Context, gb *models.Gradebook)
}

// CategoryInput describes one weighted category of a gradebook. ID is set
// when updating an existing category.
type CategoryInput struct {
	ID     string  `json:"id"`
	Code   string  `json:"code" validate:"required,notblank,max=32"`
	Label  string  `json:"label" validate:"required,notblank,max=120"`
	Weight float64 `json:"weight" validate:"gte=0,lte=1"`
	Kind   string  `json:"kind" validate:"required,oneof=REGULAR QUARTERLY_EXAM"`
}

// CreateGradebookRequest configures grading of a class subject for a term.
type CreateGradebookRequest struct {
	ClassID      string          `json:"class_id" validate:"required"`
	SubjectID    string          `json:"subject_id" validate:"required"`
	TermID       string          `json:"term_id" validate:"required"`
	QuarterCount int             `json:"quarter_count" validate:"omitempty,min=1,max=6"`
	PassingGrade *float64        `json:"passing_grade" validate:"omitempty,gte=0,lte=100"`
	Categories   []CategoryInput `json:"categories" validate:"required,min=1,dive"`
}

// UpdateCategoriesRequest replaces the category set of a gradebook.
type UpdateCategoriesRequest struct {
	Categories []CategoryInput `json:"categories" validate:"required,min=1,dive"`
}

// CreateTaskRequest adds a scored task to a category and quarter.
type CreateTaskRequest struct {
	CategoryID     string  `json:"category_id" validate:"required"`
	Quarter        int     `json:"quarter" validate:"required,min=1"`
	Label          string  `json:"label" validate:"required,notblank,max=120"`
	PointsPossible float64 `json:"points_possible" validate:"gt=0"`
}

// ScoreEntry records the points of one student on one task. A null
// points_earned clears the score back to ungraded.
type ScoreEntry struct {
	TaskID       string   `json:"task_id" validate:"required"`
	EnrollmentID string   `json:"enrollment_id" validate:"required"`
	PointsEarned *float64 `json:"points_earned"`
}

// RecordScoresRequest is a single or bulk score submission.
type RecordScoresRequest struct {
	Scores []ScoreEntry `json:"scores" validate:"required,min=1,max=1000,dive"`
}

// RecordScoresResult reports how many scores were stored and which were clamped.
type RecordScoresResult struct {
	Recorded int               `json:"recorded"`
	Cleared  int               `json:"cleared"`
	Warnings []grading.Warning `json:"warnings,omitempty"`
}

// GradebookServiceConfig carries term defaults.
type GradebookServiceConfig struct {
	QuartersPerTerm int
	PassingGrade    float64
}

// GradebookServiceParams groups the gradebook service collaborators.
type GradebookServiceParams struct {
	Gradebooks    gradebookStore
	Tasks         gradebookTaskStore
	Scores        scoreWriter
	Enrollments   gradebookEnrollmentReader
	ClassSubjects gradeClassSubjectReader
	Grades        gradeRecomputer
	Access        accessAuthorizer
	Validator     *validator.Validate
	Config        GradebookServiceConfig
	Logger        *zap.Logger
}

// GradebookService manages gradebook configuration, tasks and scores.
type GradebookService struct {
	gradebooks    gradebookStore
	tasks         gradebookTaskStore
	scores        scoreWriter
	enrollments   gradebookEnrollmentReader
	classSubjects gradeClassSubjectReader
	grades        gradeRecomputer
	access        accessAuthorizer
	validator     *validator.Validate
	config        GradebookServiceConfig
	logger        *zap.Logger
}

// NewGradebookService constructs a gradebook service.
func NewGradebookService(params GradebookServiceParams) *GradebookService {
	validate := params.Validator
	if validate == nil {
		validate = validation.New()
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := params.Config
	if cfg.QuartersPerTerm <= 0 {
		cfg.QuartersPerTerm = 4
	}
	if cfg.PassingGrade <= 0 || cfg.PassingGrade > 100 {
		cfg.PassingGrade = 75
	}
	return &GradebookService{
		gradebooks:    params.Gradebooks,
		tasks:         params.Tasks,
		scores:        params.Scores,
		enrollments:   params.Enrollments,
		classSubjects: params.ClassSubjects,
		grades:        params.Grades,
		access:        params.Access,
		validator:     validate,
		config:        cfg,
		logger:        logger,
	}
}

// Create configures a new gradebook for a class subject and term.
func (s *GradebookService) Create(ctx context.Context, principal authz.Principal, req CreateGradebookRequest) (*models.Gradebook, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid gradebook payload")
	}
	if err := s.access.Authorize(ctx, principal, authz.ActionConfigureGradebook, Scope{ClassID: req.ClassID, SubjectID: req.SubjectID}); err != nil {
		return nil, err
	}
	if _, err := s.classSubjects.FindClassSubject(ctx, req.ClassID, req.SubjectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not offered in class")
		}
		return nil, appErrors.Internal(err, "failed to load class subject")
	}
	if _, err := s.gradebooks.FindByScope(ctx, req.ClassID, req.SubjectID, req.TermID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "gradebook already exists for class subject and term")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Internal(err, "failed to check gradebook")
	}

	categories, err := buildCategories(req.Categories, nil)
	if err != nil {
		return nil, err
	}
	gb := &models.Gradebook{
		ClassID:      req.ClassID,
		SubjectID:    req.SubjectID,
		TermID:       req.TermID,
		QuarterCount: req.QuarterCount,
		PassingGrade: s.config.PassingGrade,
		CreatedBy:    principal.UserID,
		Categories:   categories,
	}
	if gb.QuarterCount == 0 {
		gb.QuarterCount = s.config.QuartersPerTerm
	}
	if req.PassingGrade != nil {
		gb.PassingGrade = *req.PassingGrade
	}
	if err := s.gradebooks.Create(ctx, gb); err != nil {
		return nil, appErrors.Internal(err, "failed to create gradebook")
	}
	s.logger.Info("gradebook created",
		zap.String("gradebook_id", gb.ID),
		zap.String("class_id", gb.ClassID),
		zap.String("subject_id", gb.SubjectID),
		zap.String("term_id", gb.TermID))
	return gb, nil
}

// Get returns a gradebook with its categories.
func (s *GradebookService) Get(ctx context.Context, principal authz.Principal, id string) (*models.Gradebook, error) {
	gb, err := s.loadGradebook(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, principal, authz.ActionViewClassGrades, gb); err != nil {
		return nil, err
	}
	return gb, nil
}

// List returns gradebooks visible to the caller. Teachers only see their own.
func (s *GradebookService) List(ctx context.Context, principal authz.Principal, filter models.GradebookFilter) ([]models.Gradebook, error) {
	switch authz.Decide(principal, authz.ActionViewClassGrades) {
	case authz.Allow:
	case authz.AllowIfAssigned:
		filter.TeacherID = principal.UserID
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to list gradebooks")
	}
	gradebooks, err := s.gradebooks.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list gradebooks")
	}
	return gradebooks, nil
}

// UpdateCategories replaces the categories of an open gradebook. Removed
// categories must not carry tasks.
func (s *GradebookService) UpdateCategories(ctx context.Context, principal authz.Principal, id string, req UpdateCategoriesRequest) (*models.Gradebook, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid categories payload")
	}
	gb, err := s.openGradebook(ctx, principal, authz.ActionConfigureGradebook, id)
	if err != nil {
		return nil, err
	}
	categories, err := buildCategories(req.Categories, gb.Categories)
	if err != nil {
		return nil, err
	}

	counts, err := s.tasks.CountByCategory(ctx, gb.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to count tasks")
	}
	kept := make(map[string]bool, len(categories))
	for _, c := range categories {
		kept[c.ID] = true
	}
	for _, existing := range gb.Categories {
		if !kept[existing.ID] && counts[existing.ID] > 0 {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("category %s still has tasks", existing.Code))
		}
	}

	if err := s.gradebooks.ReplaceCategories(ctx, gb.ID, categories); err != nil {
		return nil, appErrors.Internal(err, "failed to update categories")
	}
	gb.Categories = categories
	s.grades.InvalidateGradebook(ctx, gb)
	return gb, nil
}

// AddTask creates a task in a category and quarter of an open gradebook.
func (s *GradebookService) AddTask(ctx context.Context, principal authz.Principal, gradebookID string, req CreateTaskRequest) (*models.GradebookTask, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid task payload")
	}
	gb, err := s.openGradebook(ctx, principal, authz.ActionConfigureGradebook, gradebookID)
	if err != nil {
		return nil, err
	}
	if req.Quarter > gb.QuarterCount {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("quarter must be between 1 and %d", gb.QuarterCount))
	}
	if !hasCategory(gb, req.CategoryID) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "category not part of gradebook")
	}
	task := &models.GradebookTask{
		GradebookID:    gb.ID,
		CategoryID:     req.CategoryID,
		Quarter:        req.Quarter,
		Label:          strings.TrimSpace(req.Label),
		PointsPossible: req.PointsPossible,
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, appErrors.Internal(err, "failed to create task")
	}
	s.grades.InvalidateGradebook(ctx, gb)
	return task, nil
}

// ListTasks returns the tasks of a gradebook, optionally for one quarter.
func (s *GradebookService) ListTasks(ctx context.Context, principal authz.Principal, gradebookID string, quarter int) ([]models.GradebookTask, error) {
	gb, err := s.loadGradebook(ctx, gradebookID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, principal, authz.ActionViewClassGrades, gb); err != nil {
		return nil, err
	}
	if quarter < 0 || quarter > gb.QuarterCount {
		return nil, appErrors.Clone(appErrors.ErrValidation, "quarter out of range")
	}
	tasks, err := s.tasks.ListByGradebook(ctx, gb.ID, quarter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list tasks")
	}
	return tasks, nil
}

// DeleteTask removes a task and its scores from an open gradebook.
func (s *GradebookService) DeleteTask(ctx context.Context, principal authz.Principal, gradebookID, taskID string) error {
	gb, err := s.openGradebook(ctx, principal, authz.ActionConfigureGradebook, gradebookID)
	if err != nil {
		return err
	}
	task, err := s.tasks.FindByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "task not found")
		}
		return appErrors.Internal(err, "failed to load task")
	}
	if task.GradebookID != gb.ID {
		return appErrors.Clone(appErrors.ErrNotFound, "task not found")
	}
	if err := s.tasks.Delete(ctx, task.ID); err != nil {
		return appErrors.Internal(err, "failed to delete task")
	}
	s.grades.InvalidateGradebook(ctx, gb)
	return nil
}

// RecordScores stores points for tasks of an open gradebook. Points outside
// the task range are stored as given; the grading core clamps them and the
// result lists a warning for each.
func (s *GradebookService) RecordScores(ctx context.Context, principal authz.Principal, gradebookID string, req RecordScoresRequest) (*RecordScoresResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid scores payload")
	}
	gb, err := s.openGradebook(ctx, principal, authz.ActionRecordScores, gradebookID)
	if err != nil {
		return nil, err
	}
	tasks, err := s.tasks.ListByGradebook(ctx, gb.ID, 0)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load tasks")
	}
	taskByID := make(map[string]models.GradebookTask, len(tasks))
	for _, t := range tasks {
		taskByID[t.ID] = t
	}

	result := &RecordScoresResult{}
	checked := make(map[string]bool)
	scores := make([]models.TaskScore, 0, len(req.Scores))
	for i, entry := range req.Scores {
		task, ok := taskByID[entry.TaskID]
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("scores[%d]: task not part of gradebook", i))
		}
		if !checked[entry.EnrollmentID] {
			if err := s.checkEnrollment(ctx, gb, entry.EnrollmentID); err != nil {
				return nil, err
			}
			checked[entry.EnrollmentID] = true
		}
		if entry.PointsEarned == nil {
			result.Cleared++
		} else {
			scored, err := grading.ScoreTask(grading.Task{ID: task.ID, Label: task.Label, PointsEarned: entry.PointsEarned, PointsPossible: task.PointsPossible})
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInvalidConfiguration.Code, appErrors.ErrInvalidConfiguration.Status, err.Error())
			}
			if scored.Warning != nil {
				result.Warnings = append(result.Warnings, *scored.Warning)
			}
		}
		scores = append(scores, models.TaskScore{
			TaskID:       entry.TaskID,
			EnrollmentID: entry.EnrollmentID,
			PointsEarned: entry.PointsEarned,
			RecordedBy:   principal.UserID,
		})
	}
	if err := s.scores.Upsert(ctx, gb.ID, scores); err != nil {
		if errors.Is(err, repository.ErrGradebookFinalized) {
			return nil, appErrors.Clone(appErrors.ErrFinalized, "gradebook finalized")
		}
		return nil, appErrors.Internal(err, "failed to record scores")
	}
	result.Recorded = len(scores) - result.Cleared
	s.grades.InvalidateGradebook(ctx, gb)
	if len(result.Warnings) > 0 {
		s.logger.Warn("scores outside task range recorded",
			zap.String("gradebook_id", gb.ID),
			zap.Int("count", len(result.Warnings)))
	}
	return result, nil
}

// Finalize computes and stores the official results of a gradebook. Later
// configuration or score edits are rejected.
func (s *GradebookService) Finalize(ctx context.Context, principal authz.Principal, id string) (*dto.ClassGradeRoster, error) {
	gb, err := s.openGradebook(ctx, principal, authz.ActionFinalizeGrades, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.grades.Recompute(ctx, gb); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	updated, err := s.gradebooks.MarkFinalized(ctx, gb.ID, now)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to finalize gradebook")
	}
	if !updated {
		return nil, appErrors.Clone(appErrors.ErrFinalized, "gradebook already finalized")
	}
	gb.Finalized = true
	gb.FinalizedAt = &now
	s.grades.InvalidateGradebook(ctx, gb)

	roster, err := s.grades.Recompute(ctx, gb)
	if err != nil {
		return nil, err
	}
	s.logger.Info("gradebook finalized",
		zap.String("gradebook_id", gb.ID),
		zap.String("finalized_by", principal.UserID),
		zap.Int("students", len(roster.Rows)))
	return roster, nil
}

func (s *GradebookService) checkEnrollment(ctx context.Context, gb *models.Gradebook, enrollmentID string) error {
	enrollment, err := s.enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "enrollment not found")
		}
		return appErrors.Internal(err, "failed to load enrollment")
	}
	if enrollment.ClassID != gb.ClassID || enrollment.TermID != gb.TermID {
		return appErrors.Clone(appErrors.ErrValidation, "enrollment not in gradebook class")
	}
	if !enrollment.Active() {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment not active")
	}
	return nil
}

func (s *GradebookService) openGradebook(ctx context.Context, principal authz.Principal, action authz.Action, id string) (*models.Gradebook, error) {
	gb, err := s.loadGradebook(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, principal, action, gb); err != nil {
		return nil, err
	}
	if gb.Finalized {
		return nil, appErrors.Clone(appErrors.ErrFinalized, "gradebook finalized")
	}
	return gb, nil
}

func (s *GradebookService) authorize(ctx context.Context, principal authz.Principal, action authz.Action, gb *models.Gradebook) error {
	return s.access.Authorize(ctx, principal, action, Scope{ClassID: gb.ClassID, SubjectID: gb.SubjectID})
}

func (s *GradebookService) loadGradebook(ctx context.Context, id string) (*models.Gradebook, error) {
	gb, err := s.gradebooks.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "gradebook not found")
		}
		return nil, appErrors.Internal(err, "failed to load gradebook")
	}
	return gb, nil
}

// buildCategories validates inputs and maps them to models. Inputs with an ID
// must reference one of existing.
func buildCategories(inputs []CategoryInput, existing []models.GradebookCategory) ([]models.GradebookCategory, error) {
	known := make(map[string]models.GradebookCategory, len(existing))
	for _, c := range existing {
		known[c.ID] = c
	}
	codes := make(map[string]bool, len(inputs))
	exams := 0
	categories := make([]models.GradebookCategory, 0, len(inputs))
	forCore := make([]grading.GradeCategory, 0, len(inputs))
	for _, in := range inputs {
		code := strings.ToUpper(strings.TrimSpace(in.Code))
		if codes[code] {
			return nil, appErrors.Clone(appErrors.ErrInvalidConfiguration, fmt.Sprintf("duplicate category code %s", code))
		}
		codes[code] = true
		kind := models.CategoryKind(in.Kind)
		if kind == models.CategoryKindQuarterlyExam {
			exams++
		}
		cat := models.GradebookCategory{Code: code, Label: strings.TrimSpace(in.Label), Weight: in.Weight, Kind: kind}
		if in.ID != "" {
			prev, ok := known[in.ID]
			if !ok {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown category %s", in.ID))
			}
			cat.ID = prev.ID
			cat.CreatedAt = prev.CreatedAt
		}
		categories = append(categories, cat)
		forCore = append(forCore, grading.GradeCategory{ID: code, Label: cat.Label, Weight: cat.Weight})
	}
	if exams != 1 {
		return nil, appErrors.Clone(appErrors.ErrInvalidConfiguration, "exactly one QUARTERLY_EXAM category required")
	}
	if err := grading.ValidateWeights(forCore); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidConfiguration.Code, appErrors.ErrInvalidConfiguration.Status, err.Error())
	}
	return categories, nil
}

func hasCategory(gb *models.Gradebook, categoryID string) bool {
	for _, c := range gb.Categories {
		if c.ID == categoryID {
			return true
		}
	}
	return false
}
