package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-gradebook-api/internal/authz"
	"github.com/noah-isme/sma-gradebook-api/internal/dto"
	"github.com/noah-isme/sma-gradebook-api/internal/grading"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
)

type gradeGradebookReader interface {
	FindByID(ctx context.Context, id string) (*models.Gradebook, error)
	List(ctx context.Context, filter models.GradebookFilter) ([]models.Gradebook, error)
}

type gradeTaskLister interface {
	ListByGradebook(ctx context.Context, gradebookID string, quarter int) ([]models.GradebookTask, error)
}

type gradeScoreLister interface {
	ListByGradebook(ctx context.Context, gradebookID string) ([]models.TaskScore, error)
	ListByEnrollment(ctx context.Context, gradebookID, enrollmentID string) ([]models.TaskScore, error)
}

type gradeEnrollmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	ListRoster(ctx context.Context, classID, termID string) ([]models.RosterEntry, error)
	ListActiveByStudentAndTerm(ctx context.Context, studentID, termID string) ([]models.Enrollment, error)
}

type gradeClassSubjectReader interface {
	FindClassSubject(ctx context.Context, classID, subjectID string) (*models.ClassSubject, error)
}

type subjectGradeWriter interface {
	Upsert(ctx context.Context, grades []models.SubjectGrade) error
}

type accessAuthorizer interface {
	Authorize(ctx context.Context, principal authz.Principal, action authz.Action, scope Scope) error
}

// GradeServiceConfig tunes grade computation.
type GradeServiceConfig struct {
	CacheTTL time.Duration
}

// GradeServiceParams groups the grade service collaborators.
type GradeServiceParams struct {
	Gradebooks    gradeGradebookReader
	Tasks         gradeTaskLister
	Scores        gradeScoreLister
	Enrollments   gradeEnrollmentReader
	ClassSubjects gradeClassSubjectReader
	Users         userReader
	SubjectGrades subjectGradeWriter
	Access        accessAuthorizer
	Cache         *CacheService
	Metrics       *MetricsService
	Config        GradeServiceConfig
	Logger        *zap.Logger
}

// GradeService turns stored gradebooks, tasks and scores into grade records.
// It reads through the grading core and caches the results; the core itself
// never persists anything.
type GradeService struct {
	gradebooks    gradeGradebookReader
	tasks         gradeTaskLister
	scores        gradeScoreLister
	enrollments   gradeEnrollmentReader
	classSubjects gradeClassSubjectReader
	users         userReader
	subjectGrades subjectGradeWriter
	access        accessAuthorizer
	cache         *CacheService
	metrics       *MetricsService
	config        GradeServiceConfig
	logger        *zap.Logger
	now           func() time.Time
}

// NewGradeService constructs a grade service.
func NewGradeService(params GradeServiceParams) *GradeService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := params.Config
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	return &GradeService{
		gradebooks:    params.Gradebooks,
		tasks:         params.Tasks,
		scores:        params.Scores,
		enrollments:   params.Enrollments,
		classSubjects: params.ClassSubjects,
		users:         params.Users,
		subjectGrades: params.SubjectGrades,
		access:        params.Access,
		cache:         params.Cache,
		metrics:       params.Metrics,
		config:        cfg,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// StudentRecord returns the quarter breakdown and overall result of one enrollment.
func (s *GradeService) StudentRecord(ctx context.Context, principal authz.Principal, gradebookID, enrollmentID string) (*dto.StudentGradeRecord, error) {
	gb, err := s.loadGradebook(ctx, gradebookID)
	if err != nil {
		return nil, err
	}
	enrollment, err := s.enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Internal(err, "failed to load enrollment")
	}
	if enrollment.ClassID != gb.ClassID || enrollment.TermID != gb.TermID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not in gradebook")
	}
	scope := Scope{ClassID: gb.ClassID, SubjectID: gb.SubjectID, StudentID: enrollment.StudentID}
	if err := s.access.Authorize(ctx, principal, authz.ActionViewStudentGrades, scope); err != nil {
		return nil, err
	}

	key := studentRecordCacheKey(gb, enrollment.ID)
	var cached dto.StudentGradeRecord
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	start := time.Now()
	scores, err := s.scores.ListByEnrollment(ctx, gb.ID, enrollment.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load scores")
	}
	layout, err := s.layout(ctx, gb)
	if err != nil {
		return nil, err
	}
	snapshot := layout.record(*enrollment, indexScores(scores))
	result, err := s.evaluate(gb, snapshot)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveGradeComputation("student", clampedCount(result), time.Since(start))

	record := &dto.StudentGradeRecord{
		GradebookID:  gb.ID,
		EnrollmentID: enrollment.ID,
		StudentID:    enrollment.StudentID,
		StudentName:  s.studentName(ctx, enrollment.StudentID),
		ClassID:      gb.ClassID,
		SubjectID:    gb.SubjectID,
		TermID:       gb.TermID,
		PassingGrade: gb.PassingGrade,
		Official:     gb.Finalized,
		Quarters:     layout.quarterViews(snapshot, result),
		Overall:      overallView(result),
		CalculatedAt: s.now(),
	}
	s.persist(ctx, []models.SubjectGrade{subjectGradeRow(gb, enrollment.ID, result)})
	s.store(ctx, key, record)
	return record, nil
}

// ClassRoster returns the grade table of a gradebook for the caller.
func (s *GradeService) ClassRoster(ctx context.Context, principal authz.Principal, gradebookID string) (*dto.ClassGradeRoster, error) {
	gb, err := s.loadGradebook(ctx, gradebookID)
	if err != nil {
		return nil, err
	}
	if err := s.access.Authorize(ctx, principal, authz.ActionViewClassGrades, Scope{ClassID: gb.ClassID, SubjectID: gb.SubjectID}); err != nil {
		return nil, err
	}
	return s.RosterFor(ctx, gb)
}

// RosterFor computes the roster of gb without access checks. Results are
// served from cache when available.
func (s *GradeService) RosterFor(ctx context.Context, gb *models.Gradebook) (*dto.ClassGradeRoster, error) {
	var roster dto.ClassGradeRoster
	_, err := s.cache.Remember(ctx, rosterCacheKey(gb), s.config.CacheTTL, &roster, func(ctx context.Context) (interface{}, error) {
		return s.Recompute(ctx, gb)
	})
	if err != nil {
		return nil, err
	}
	return &roster, nil
}

// Recompute evaluates every active enrollment of gb, bypassing the cache, and
// refreshes the stored subject grades.
func (s *GradeService) Recompute(ctx context.Context, gb *models.Gradebook) (*dto.ClassGradeRoster, error) {
	start := time.Now()
	entries, err := s.enrollments.ListRoster(ctx, gb.ClassID, gb.TermID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load roster")
	}
	scores, err := s.scores.ListByGradebook(ctx, gb.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load scores")
	}
	layout, err := s.layout(ctx, gb)
	if err != nil {
		return nil, err
	}
	idx := indexScores(scores)

	roster := &dto.ClassGradeRoster{
		GradebookID:  gb.ID,
		ClassID:      gb.ClassID,
		SubjectID:    gb.SubjectID,
		TermID:       gb.TermID,
		QuarterCount: gb.QuarterCount,
		PassingGrade: gb.PassingGrade,
		Finalized:    gb.Finalized,
		Rows:         make([]dto.RosterRow, 0, len(entries)),
	}
	if cs, err := s.classSubjects.FindClassSubject(ctx, gb.ClassID, gb.SubjectID); err == nil {
		roster.ClassName = cs.ClassName
		roster.SubjectName = cs.SubjectName
	} else if !errors.Is(err, sql.ErrNoRows) {
		s.logger.Warn("failed to load class subject", zap.String("gradebook_id", gb.ID), zap.Error(err))
	}

	results := make([]grading.RecordResult, 0, len(entries))
	rows := make([]models.SubjectGrade, 0, len(entries))
	clamped := 0
	for _, entry := range entries {
		result, err := s.evaluate(gb, layout.record(entry.Enrollment, idx))
		if err != nil {
			return nil, err
		}
		clamped += clampedCount(result)
		results = append(results, result)
		rows = append(rows, subjectGradeRow(gb, entry.ID, result))
		roster.Rows = append(roster.Rows, dto.RosterRow{
			EnrollmentID: entry.ID,
			StudentID:    entry.StudentID,
			StudentName:  entry.StudentName,
			Quarters:     quarterSummaries(result),
			Overall:      overallView(result),
		})
	}
	roster.Summary = summarize(results)
	roster.CalculatedAt = s.now()
	s.metrics.ObserveGradeComputation("roster", clamped, time.Since(start))
	s.persist(ctx, rows)
	return roster, nil
}

// ReportCard returns every gradebook the student is graded in for a term.
func (s *GradeService) ReportCard(ctx context.Context, principal authz.Principal, studentID, termID string) (*dto.ReportCard, error) {
	if termID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "termId is required")
	}
	enrollments, err := s.enrollments.ListActiveByStudentAndTerm(ctx, studentID, termID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load enrollments")
	}
	if err := s.authorizeStudent(ctx, principal, studentID, enrollments); err != nil {
		return nil, err
	}
	return s.reportCard(ctx, studentID, termID, enrollments)
}

// ReportCardFor builds a report card without access checks.
func (s *GradeService) ReportCardFor(ctx context.Context, studentID, termID string) (*dto.ReportCard, error) {
	enrollments, err := s.enrollments.ListActiveByStudentAndTerm(ctx, studentID, termID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load enrollments")
	}
	return s.reportCard(ctx, studentID, termID, enrollments)
}

func (s *GradeService) reportCard(ctx context.Context, studentID, termID string, enrollments []models.Enrollment) (*dto.ReportCard, error) {
	key := reportCardCacheKey(termID, studentID)
	var cached dto.ReportCard
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	start := time.Now()
	card := &dto.ReportCard{
		StudentID:   studentID,
		StudentName: s.studentName(ctx, studentID),
		TermID:      termID,
		Subjects:    []dto.ReportCardSubject{},
	}
	var sum float64
	graded, clamped := 0, 0
	for _, enrollment := range enrollments {
		gradebooks, err := s.gradebooks.List(ctx, models.GradebookFilter{ClassID: enrollment.ClassID, TermID: termID})
		if err != nil {
			return nil, appErrors.Internal(err, "failed to list gradebooks")
		}
		for i := range gradebooks {
			gb, err := s.loadGradebook(ctx, gradebooks[i].ID)
			if err != nil {
				return nil, err
			}
			scores, err := s.scores.ListByEnrollment(ctx, gb.ID, enrollment.ID)
			if err != nil {
				return nil, appErrors.Internal(err, "failed to load scores")
			}
			layout, err := s.layout(ctx, gb)
			if err != nil {
				return nil, err
			}
			result, err := s.evaluate(gb, layout.record(enrollment, indexScores(scores)))
			if err != nil {
				return nil, err
			}
			clamped += clampedCount(result)
			subject := dto.ReportCardSubject{
				GradebookID: gb.ID,
				ClassID:     gb.ClassID,
				SubjectID:   gb.SubjectID,
				Official:    gb.Finalized,
				Quarters:    quarterSummaries(result),
				Overall:     overallView(result),
			}
			if cs, err := s.classSubjects.FindClassSubject(ctx, gb.ClassID, gb.SubjectID); err == nil {
				subject.ClassName = cs.ClassName
				subject.SubjectName = cs.SubjectName
				subject.SubjectCode = cs.SubjectCode
			}
			if v, ok := result.Overall.Grade.Value(); ok {
				sum += v
				graded++
			}
			card.Subjects = append(card.Subjects, subject)
		}
	}
	if graded > 0 {
		card.Average = grading.Defined(sum / float64(graded)).Round(gradeDecimals)
	}
	card.CalculatedAt = s.now()
	s.metrics.ObserveGradeComputation("report_card", clamped, time.Since(start))
	s.store(ctx, key, card)
	return card, nil
}

// InvalidateGradebook drops cached results derived from gb.
func (s *GradeService) InvalidateGradebook(ctx context.Context, gb *models.Gradebook) {
	s.invalidate(ctx,
		fmt.Sprintf("grades:class:%s:gradebook:%s:*", gb.ClassID, gb.ID),
		fmt.Sprintf("grades:term:%s:*", gb.TermID),
		dashboardCachePattern)
}

// InvalidateClass drops cached results of every gradebook of a class.
func (s *GradeService) InvalidateClass(ctx context.Context, classID, termID string) {
	s.invalidate(ctx,
		fmt.Sprintf("grades:class:%s:*", classID),
		fmt.Sprintf("grades:term:%s:*", termID),
		dashboardCachePattern)
}

func (s *GradeService) invalidate(ctx context.Context, patterns ...string) {
	_ = s.cache.Invalidate(ctx, patterns...)
}

// authorizeStudent accepts the student themself, staff, or a teacher of any
// class the student attends that term.
func (s *GradeService) authorizeStudent(ctx context.Context, principal authz.Principal, studentID string, enrollments []models.Enrollment) error {
	if authz.Decide(principal, authz.ActionViewStudentGrades) != authz.AllowIfAssigned {
		return s.access.Authorize(ctx, principal, authz.ActionViewStudentGrades, Scope{StudentID: studentID})
	}
	var lastErr error = appErrors.Clone(appErrors.ErrForbidden, "not assigned to this student")
	for _, e := range enrollments {
		err := s.access.Authorize(ctx, principal, authz.ActionViewStudentGrades, Scope{ClassID: e.ClassID, StudentID: studentID})
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return lastErr
}

func (s *GradeService) loadGradebook(ctx context.Context, id string) (*models.Gradebook, error) {
	gb, err := s.gradebooks.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "gradebook not found")
		}
		return nil, appErrors.Internal(err, "failed to load gradebook")
	}
	return gb, nil
}

func (s *GradeService) layout(ctx context.Context, gb *models.Gradebook) (gradebookLayout, error) {
	tasks, err := s.tasks.ListByGradebook(ctx, gb.ID, 0)
	if err != nil {
		return gradebookLayout{}, appErrors.Internal(err, "failed to load tasks")
	}
	return newGradebookLayout(gb, tasks), nil
}

// evaluate runs the grading core. The remark is derived from the rounded
// overall grade so it always agrees with the displayed value.
func (s *GradeService) evaluate(gb *models.Gradebook, record grading.StudentSubjectRecord) (grading.RecordResult, error) {
	result, err := grading.EvaluateRecord(record, gb.PassingGrade)
	if err != nil {
		if errors.Is(err, grading.ErrInvalidConfiguration) {
			s.metrics.RecordInvalidConfiguration()
			s.logger.Warn("invalid gradebook configuration", zap.String("gradebook_id", gb.ID), zap.Error(err))
			return result, appErrors.Wrap(err, appErrors.ErrInvalidConfiguration.Code, appErrors.ErrInvalidConfiguration.Status, err.Error())
		}
		return result, appErrors.Internal(err, "failed to compute grades")
	}
	rounded := result.Overall
	rounded.Grade = rounded.Grade.Round(gradeDecimals)
	result.Remark = grading.RemarkFor(rounded, gb.PassingGrade)
	for _, w := range result.Warnings {
		s.logger.Warn("score clamped",
			zap.String("gradebook_id", gb.ID),
			zap.String("student_id", record.StudentID),
			zap.String("task_id", w.TaskID),
			zap.String("detail", w.Message))
	}
	return result, nil
}

func (s *GradeService) studentName(ctx context.Context, studentID string) string {
	if s.users == nil {
		return ""
	}
	user, err := s.users.FindByID(ctx, studentID)
	if err != nil {
		return ""
	}
	return user.FullName
}

func (s *GradeService) persist(ctx context.Context, rows []models.SubjectGrade) {
	if s.subjectGrades == nil || len(rows) == 0 {
		return
	}
	if err := s.subjectGrades.Upsert(ctx, rows); err != nil {
		s.logger.Warn("failed to store subject grades", zap.String("gradebook_id", rows[0].GradebookID), zap.Error(err))
	}
}

func (s *GradeService) store(ctx context.Context, key string, value interface{}) {
	_ = s.cache.Set(ctx, key, value, s.config.CacheTTL)
}

func studentRecordCacheKey(gb *models.Gradebook, enrollmentID string) string {
	return fmt.Sprintf("grades:class:%s:gradebook:%s:enrollment:%s", gb.ClassID, gb.ID, enrollmentID)
}

func rosterCacheKey(gb *models.Gradebook) string {
	return fmt.Sprintf("grades:class:%s:gradebook:%s:roster", gb.ClassID, gb.ID)
}

func reportCardCacheKey(termID, studentID string) string {
	return fmt.Sprintf("grades:term:%s:student:%s:card", termID, studentID)
}
