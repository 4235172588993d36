package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/sma-gradebook-api/internal/authz"
	"github.com/noah-isme/sma-gradebook-api/internal/dto"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
)

const dashboardCachePattern = "dash:*"

type pendingRegistrationCounter interface {
	CountPending(ctx context.Context) (int, error)
}

type roleCounter interface {
	CountActiveByRole(ctx context.Context) ([]models.RoleCount, error)
}

type dashboardGradebookReader interface {
	FindByID(ctx context.Context, id string) (*models.Gradebook, error)
	List(ctx context.Context, filter models.GradebookFilter) ([]models.Gradebook, error)
	Summary(ctx context.Context, termID string) (models.GradebookSummary, error)
}

type teacherClassLister interface {
	ListByTeacher(ctx context.Context, teacherID string) ([]models.ClassSubject, error)
}

type studentEnrollmentLister interface {
	ListActiveByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error)
}

type dashboardGrades interface {
	RosterFor(ctx context.Context, gb *models.Gradebook) (*dto.ClassGradeRoster, error)
	ReportCardFor(ctx context.Context, studentID, termID string) (*dto.ReportCard, error)
}

// DashboardServiceConfig tunes dashboard caching and fan-out.
type DashboardServiceConfig struct {
	CacheTTL    time.Duration
	Concurrency int
}

// DashboardServiceParams groups dashboard dependencies.
type DashboardServiceParams struct {
	Registrations pendingRegistrationCounter
	Users         roleCounter
	Gradebooks    dashboardGradebookReader
	Classes       teacherClassLister
	Enrollments   studentEnrollmentLister
	Grades        dashboardGrades
	Cache         *CacheService
	Metrics       *MetricsService
	Config        DashboardServiceConfig
	Logger        *zap.Logger
}

// DashboardService aggregates role-scoped landing pages.
type DashboardService struct {
	registrations pendingRegistrationCounter
	users         roleCounter
	gradebooks    dashboardGradebookReader
	classes       teacherClassLister
	enrollments   studentEnrollmentLister
	grades        dashboardGrades
	cache         *CacheService
	metrics       *MetricsService
	cfg           DashboardServiceConfig
	logger        *zap.Logger
	now           func() time.Time
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(params DashboardServiceParams) *DashboardService {
	cfg := params.Config
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		registrations: params.Registrations,
		users:         params.Users,
		gradebooks:    params.Gradebooks,
		classes:       params.Classes,
		enrollments:   params.Enrollments,
		grades:        params.Grades,
		cache:         params.Cache,
		metrics:       params.Metrics,
		cfg:           cfg,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// For resolves the caller's home dashboard. The boolean reports a cache hit.
func (s *DashboardService) For(ctx context.Context, principal authz.Principal, termID string) (*dto.DashboardResponse, bool, error) {
	kind, ok := authz.HomeDashboard(principal.Role)
	if !ok {
		return nil, false, appErrors.ErrForbidden
	}
	resp := &dto.DashboardResponse{Kind: string(kind)}
	var hit bool
	var err error
	switch kind {
	case authz.DashboardAdmin:
		if !authz.Can(principal, authz.ActionViewAdminDashboard) {
			return nil, false, appErrors.ErrForbidden
		}
		resp.Admin, hit, err = s.Admin(ctx, termID)
	case authz.DashboardTeacher:
		if !authz.Can(principal, authz.ActionViewTeacherDashboard) {
			return nil, false, appErrors.ErrForbidden
		}
		resp.Teacher, hit, err = s.Teacher(ctx, principal.UserID, termID)
	case authz.DashboardStudent:
		if !authz.Can(principal, authz.ActionViewStudentDashboard) {
			return nil, false, appErrors.ErrForbidden
		}
		resp.Student, hit, err = s.Student(ctx, principal.UserID, termID)
	}
	if err != nil {
		return nil, false, err
	}
	return resp, hit, nil
}

// Admin returns the school-wide summary.
func (s *DashboardService) Admin(ctx context.Context, termID string) (*dto.AdminDashboard, bool, error) {
	key := fmt.Sprintf("dash:admin:%s", termOrAll(termID))
	var cached dto.AdminDashboard
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, true, nil
	}

	summary := &dto.AdminDashboard{TermID: termID}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pending, err := s.registrations.CountPending(gctx)
		if err != nil {
			return appErrors.Internal(err, "failed to count registrations")
		}
		summary.PendingRegistrations = pending
		return nil
	})
	g.Go(func() error {
		counts, err := s.users.CountActiveByRole(gctx)
		if err != nil {
			return appErrors.Internal(err, "failed to count users")
		}
		summary.Users = counts
		return nil
	})
	g.Go(func() error {
		gb, err := s.gradebooks.Summary(gctx, termID)
		if err != nil {
			return appErrors.Internal(err, "failed to summarize gradebooks")
		}
		summary.Gradebooks = dto.GradebookCounts{Total: gb.Total, Finalized: gb.Finalized, Open: gb.Total - gb.Finalized}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, false, err
	}
	if summary.Users == nil {
		summary.Users = []models.RoleCount{}
	}
	summary.System = s.metrics.Snapshot()
	summary.GeneratedAt = s.now()
	s.persistCache(ctx, key, summary)
	return summary, false, nil
}

// Teacher lists the class subjects of a teacher with grading progress.
func (s *DashboardService) Teacher(ctx context.Context, teacherID, termID string) (*dto.TeacherDashboard, bool, error) {
	if teacherID == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "teacherId is required")
	}
	key := fmt.Sprintf("dash:teacher:%s:%s", teacherID, termOrAll(termID))
	var cached dto.TeacherDashboard
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, true, nil
	}

	subjects, err := s.classes.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, false, appErrors.Internal(err, "failed to list class subjects")
	}
	gradebooks, err := s.gradebooks.List(ctx, models.GradebookFilter{TeacherID: teacherID, TermID: termID})
	if err != nil {
		return nil, false, appErrors.Internal(err, "failed to list gradebooks")
	}
	// List is newest first; keep the latest gradebook per class subject.
	latest := make(map[string]string, len(gradebooks))
	for _, gb := range gradebooks {
		k := gb.ClassID + "|" + gb.SubjectID
		if _, ok := latest[k]; !ok {
			latest[k] = gb.ID
		}
	}

	highlights := make([]dto.TeacherClassHighlight, len(subjects))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, cs := range subjects {
		i, cs := i, cs
		highlights[i] = dto.TeacherClassHighlight{
			ClassID:     cs.ClassID,
			ClassName:   cs.ClassName,
			SubjectID:   cs.SubjectID,
			SubjectName: cs.SubjectName,
		}
		gbID, ok := latest[cs.ClassID+"|"+cs.SubjectID]
		if !ok {
			continue
		}
		g.Go(func() error {
			gb, err := s.gradebooks.FindByID(gctx, gbID)
			if err != nil {
				return appErrors.Internal(err, "failed to load gradebook")
			}
			roster, err := s.grades.RosterFor(gctx, gb)
			if err != nil {
				// A misconfigured gradebook should not hide the rest of the dashboard.
				s.logger.Warn("dashboard roster unavailable", zap.String("gradebook_id", gbID), zap.Error(err))
				highlights[i].GradebookID = gb.ID
				highlights[i].Finalized = gb.Finalized
				return nil
			}
			h := &highlights[i]
			h.GradebookID = gb.ID
			h.Finalized = gb.Finalized
			h.Students = roster.Summary.Students
			h.Average = roster.Summary.Average
			if roster.Summary.Students > 0 {
				h.CompletionRatio = float64(roster.Summary.Complete) / float64(roster.Summary.Students)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, false, err
	}

	summary := &dto.TeacherDashboard{TeacherID: teacherID, TermID: termID, Classes: highlights, GeneratedAt: s.now()}
	s.persistCache(ctx, key, summary)
	return summary, false, nil
}

// Student lists a student's subjects for a term. Without termID the term of
// the most recent active enrollment is used.
func (s *DashboardService) Student(ctx context.Context, studentID, termID string) (*dto.StudentDashboard, bool, error) {
	if studentID == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "studentId is required")
	}
	if termID == "" {
		enrollments, err := s.enrollments.ListActiveByStudent(ctx, studentID)
		if err != nil {
			return nil, false, appErrors.Internal(err, "failed to list enrollments")
		}
		if len(enrollments) == 0 {
			return &dto.StudentDashboard{StudentID: studentID, Subjects: []dto.StudentSubjectHighlight{}, GeneratedAt: s.now()}, false, nil
		}
		termID = enrollments[0].TermID
	}
	key := fmt.Sprintf("dash:student:%s:%s", studentID, termID)
	var cached dto.StudentDashboard
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, true, nil
	}

	card, err := s.grades.ReportCardFor(ctx, studentID, termID)
	if err != nil {
		return nil, false, err
	}
	summary := &dto.StudentDashboard{
		StudentID:   studentID,
		TermID:      termID,
		Subjects:    make([]dto.StudentSubjectHighlight, 0, len(card.Subjects)),
		GeneratedAt: s.now(),
	}
	for _, subject := range card.Subjects {
		summary.Subjects = append(summary.Subjects, dto.StudentSubjectHighlight{
			GradebookID: subject.GradebookID,
			SubjectID:   subject.SubjectID,
			SubjectName: subject.SubjectName,
			Overall:     subject.Overall.Grade,
			Provisional: subject.Overall.Provisional,
			Remark:      subject.Overall.Remark,
		})
	}
	s.persistCache(ctx, key, summary)
	return summary, false, nil
}

// InvalidateDashboards drops every cached dashboard.
func (s *DashboardService) InvalidateDashboards(ctx context.Context) {
	_ = s.cache.Invalidate(ctx, dashboardCachePattern)
}

func (s *DashboardService) persistCache(ctx context.Context, key string, value interface{}) {
	if err := s.cache.Set(ctx, key, value, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("dashboard cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func termOrAll(termID string) string {
	if termID == "" {
		return "all"
	}
	return termID
}
