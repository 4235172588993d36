package service

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-gradebook-api/internal/authz"
	"github.com/noah-isme/sma-gradebook-api/internal/dto"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
	"github.com/noah-isme/sma-gradebook-api/pkg/jobs"
	"github.com/noah-isme/sma-gradebook-api/pkg/storage"
	"github.com/noah-isme/sma-gradebook-api/pkg/validation"
)

type reportJobStore interface {
	Create(ctx context.Context, job *models.ReportJob) error
	GetByID(ctx context.Context, id string) (*models.ReportJob, error)
	Claim(ctx context.Context, id string) (bool, error)
	Requeue(ctx context.Context, id, reason string) (bool, error)
	Finish(ctx context.Context, id, resultURL string, at time.Time) (bool, error)
	Fail(ctx context.Context, id, reason string, at time.Time) (bool, error)
	ReleaseStale(ctx context.Context) (int64, error)
	ListQueued(ctx context.Context, limit int) ([]models.ReportJob, error)
	ListByCreator(ctx context.Context, userID string, limit int) ([]models.ReportJob, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type reportEnrollmentLister interface {
	ListActiveByStudentAndTerm(ctx context.Context, studentID, termID string) ([]models.Enrollment, error)
}

type reportExporter interface {
	ParseToken(token string, allowExpired bool) (storage.DownloadClaims, error)
	Open(relPath string) (*os.File, error)
	Delete(relPath string) error
	Cleanup(ttl time.Duration) ([]string, error)
}

// ReportServiceConfig governs queue recovery and cleanup.
type ReportServiceConfig struct {
	ResultTTL       time.Duration
	CleanupInterval time.Duration
}

// ReportServiceParams groups report collaborators.
type ReportServiceParams struct {
	Repo        reportJobStore
	Gradebooks  exportGradebookReader
	Enrollments reportEnrollmentLister
	Access      accessAuthorizer
	Queue       jobDispatcher
	Exporter    reportExporter
	Metrics     *MetricsService
	Validator   *validator.Validate
	Config      ReportServiceConfig
	Logger      *zap.Logger
}

// ReportService orchestrates report job lifecycle management.
type ReportService struct {
	repo        reportJobStore
	gradebooks  exportGradebookReader
	enrollments reportEnrollmentLister
	access      accessAuthorizer
	queue       jobDispatcher
	exporter    reportExporter
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         ReportServiceConfig
}

// ReportDownload aggregates resolved download data.
type ReportDownload struct {
	File      *os.File
	Filename  string
	Format    models.ReportFormat
	ExpiresAt time.Time
}

// NewReportService constructs the report service.
func NewReportService(params ReportServiceParams) *ReportService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := params.Validator
	if validate == nil {
		validate = validation.New()
	}
	cfg := params.Config
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ReportService{
		repo:        params.Repo,
		gradebooks:  params.Gradebooks,
		enrollments: params.Enrollments,
		access:      params.Access,
		queue:       params.Queue,
		exporter:    params.Exporter,
		metrics:     params.Metrics,
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
	}
}

// CreateJob validates the request, persists the job and enqueues processing.
func (s *ReportService) CreateJob(ctx context.Context, principal authz.Principal, req dto.ReportRequest) (*dto.ReportJobResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid report payload")
	}
	params, err := s.resolveParams(ctx, principal, req)
	if err != nil {
		return nil, err
	}
	job := &models.ReportJob{
		Type:      req.Type,
		Params:    params,
		CreatedBy: principal.UserID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Internal(err, "failed to create report job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type)}); err != nil {
		if _, failErr := s.repo.Fail(ctx, job.ID, "failed to enqueue job", time.Now().UTC()); failErr != nil {
			s.logger.Warn("failed to close unqueued report job", zap.String("job_id", job.ID), zap.Error(failErr))
		}
		s.metrics.RecordReportJob(string(models.ReportStatusFailed))
		return nil, appErrors.Internal(err, "failed to enqueue report job")
	}
	s.logger.Info("report job queued",
		zap.String("job_id", job.ID),
		zap.String("type", string(job.Type)),
		zap.String("created_by", principal.UserID))
	return &dto.ReportJobResponse{ID: job.ID, Status: job.Status, Progress: job.Progress}, nil
}

// GetStatus exposes job metadata. Only the creator or staff may see a job.
func (s *ReportService) GetStatus(ctx context.Context, principal authz.Principal, id string) (*dto.ReportStatusResponse, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
		}
		return nil, appErrors.Internal(err, "failed to load report job")
	}
	if job.CreatedBy != principal.UserID && authz.Decide(principal, authz.ActionExportReports) != authz.Allow {
		return nil, appErrors.ErrForbidden
	}
	return s.statusResponse(job), nil
}

// ListMine returns the most recent jobs created by the caller.
func (s *ReportService) ListMine(ctx context.Context, principal authz.Principal, limit int) ([]dto.ReportStatusResponse, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	records, err := s.repo.ListByCreator(ctx, principal.UserID, limit)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list report jobs")
	}
	out := make([]dto.ReportStatusResponse, 0, len(records))
	for i := range records {
		out = append(out, *s.statusResponse(&records[i]))
	}
	return out, nil
}

// ResolveDownload validates the token and opens the stored export file.
func (s *ReportService) ResolveDownload(ctx context.Context, token string) (*ReportDownload, error) {
	claims, err := s.exporter.ParseToken(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, err := s.repo.GetByID(ctx, claims.JobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Internal(err, "failed to load report job")
	}
	if job.ResultURL == nil || !strings.HasSuffix(*job.ResultURL, token) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	if job.Status != models.ReportStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "report not ready")
	}
	file, err := s.exporter.Open(claims.Path)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to open export file")
	}
	return &ReportDownload{
		File:      file,
		Filename:  filepath.Base(claims.Path),
		Format:    job.Params.Format,
		ExpiresAt: claims.ExpiresAt,
	}, nil
}

// RecoverPendingJobs replays queued jobs after a restart. Jobs a previous
// process left PROCESSING are queued again first.
func (s *ReportService) RecoverPendingJobs(ctx context.Context) {
	if released, err := s.repo.ReleaseStale(ctx); err != nil {
		s.logger.Sugar().Warnw("failed to release stale report jobs", "error", err)
	} else if released > 0 {
		s.logger.Sugar().Infow("released stale report jobs", "count", released)
	}
	pending, err := s.repo.ListQueued(ctx, 50)
	if err != nil {
		s.logger.Sugar().Warnw("failed to recover queued report jobs", "error", err)
		return
	}
	for _, job := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type)}); err != nil {
			s.logger.Sugar().Warnw("failed to requeue pending job", "job_id", job.ID, "error", err)
		}
	}
}

// StartCleanup boots a goroutine that purges expired exports periodically.
func (s *ReportService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cleanupExpired(ctx)
			}
		}
	}()
}

func (s *ReportService) cleanupExpired(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.ResultTTL)
	for {
		finished, err := s.repo.ListFinishedBefore(ctx, cutoff, 100)
		if err != nil {
			s.logger.Sugar().Warnw("cleanup list failed", "error", err)
			return
		}
		for _, job := range finished {
			token := extractToken(job.ResultURL)
			if token == "" {
				continue
			}
			claims, err := s.exporter.ParseToken(token, true)
			if err != nil {
				continue
			}
			if err := s.exporter.Delete(claims.Path); err != nil {
				s.logger.Sugar().Warnw("cleanup delete failed", "job_id", job.ID, "error", err)
			}
		}
		if len(finished) < 100 {
			break
		}
	}
	if _, err := s.exporter.Cleanup(s.cfg.ResultTTL); err != nil {
		s.logger.Sugar().Warnw("filesystem cleanup failed", "error", err)
	}
}

// resolveParams checks the caller may export the requested records and
// fills the stored job parameters.
func (s *ReportService) resolveParams(ctx context.Context, principal authz.Principal, req dto.ReportRequest) (models.ReportJobParams, error) {
	params := models.ReportJobParams{Format: req.Format}
	switch req.Type {
	case models.ReportTypeGradeSheet:
		gb, err := s.gradebooks.FindByID(ctx, req.GradebookID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return params, appErrors.Clone(appErrors.ErrNotFound, "gradebook not found")
			}
			return params, appErrors.Internal(err, "failed to load gradebook")
		}
		if err := s.access.Authorize(ctx, principal, authz.ActionExportReports, Scope{ClassID: gb.ClassID, SubjectID: gb.SubjectID}); err != nil {
			return params, err
		}
		params.GradebookID = gb.ID
		params.TermID = gb.TermID
	case models.ReportTypeReportCard:
		if err := s.authorizeReportCard(ctx, principal, req.StudentID, req.TermID); err != nil {
			return params, err
		}
		params.StudentID = req.StudentID
		params.TermID = req.TermID
	default:
		return params, appErrors.Clone(appErrors.ErrValidation, "unsupported report type")
	}
	return params, nil
}

func (s *ReportService) authorizeReportCard(ctx context.Context, principal authz.Principal, studentID, termID string) error {
	if authz.Decide(principal, authz.ActionExportReports) != authz.AllowIfAssigned {
		return s.access.Authorize(ctx, principal, authz.ActionExportReports, Scope{StudentID: studentID})
	}
	enrollments, err := s.enrollments.ListActiveByStudentAndTerm(ctx, studentID, termID)
	if err != nil {
		return appErrors.Internal(err, "failed to load enrollments")
	}
	for _, e := range enrollments {
		if s.access.Authorize(ctx, principal, authz.ActionExportReports, Scope{ClassID: e.ClassID, StudentID: studentID}) == nil {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrForbidden, "not assigned to this student")
}

func (s *ReportService) statusResponse(job *models.ReportJob) *dto.ReportStatusResponse {
	resp := &dto.ReportStatusResponse{
		ID:         job.ID,
		Type:       job.Type,
		Status:     job.Status,
		Progress:   job.Progress,
		ResultURL:  job.ResultURL,
		FinishedAt: job.FinishedAt,
	}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		resp.Error = job.ErrorMessage
	}
	if token := extractToken(job.ResultURL); token != "" {
		if claims, err := s.exporter.ParseToken(token, true); err == nil {
			expires := claims.ExpiresAt
			resp.ExpiresAt = &expires
		}
	}
	return resp
}

func extractToken(url *string) string {
	if url == nil || *url == "" {
		return ""
	}
	parts := strings.Split(*url, "/")
	return parts[len(parts)-1]
}

type exportGenerator interface {
	Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error)
}

// ReportWorker bridges queue jobs to ExportService.
type ReportWorker struct {
	repo     reportJobStore
	exporter exportGenerator
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewReportWorker constructs a worker.
func NewReportWorker(repo reportJobStore, exporter exportGenerator, metrics *MetricsService, logger *zap.Logger) *ReportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportWorker{repo: repo, exporter: exporter, metrics: metrics, logger: logger}
}

// Handle processes a queue job. A failed attempt puts the job back in the
// queue with the last error; GiveUp marks it failed once retries run out.
func (w *ReportWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, err := w.repo.GetByID(ctx, job.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return jobs.Permanent(err)
		}
		return err
	}
	claimed, err := w.repo.Claim(ctx, job.ID)
	if err != nil {
		return err
	}
	if !claimed {
		w.logger.Sugar().Infow("report job not claimable, skipping", "job_id", job.ID, "status", record.Status)
		return nil
	}

	result, err := w.exporter.Generate(ctx, record)
	if err != nil {
		if _, requeueErr := w.repo.Requeue(ctx, job.ID, err.Error()); requeueErr != nil {
			w.logger.Sugar().Warnw("failed to requeue report job", "job_id", job.ID, "error", requeueErr)
		}
		if unrecoverable(err) {
			return jobs.Permanent(err)
		}
		return err
	}

	if _, err := w.repo.Finish(ctx, job.ID, result.URL, time.Now().UTC()); err != nil {
		w.logger.Sugar().Warnw("failed to mark job finished", "job_id", job.ID, "error", err)
		return err
	}
	w.metrics.RecordReportJob(string(models.ReportStatusFinished))
	return nil
}

// unrecoverable reports export failures that another attempt cannot fix:
// the gradebook is gone, the requester lost access, or its configuration
// cannot be graded.
func unrecoverable(err error) bool {
	return appErrors.IsCode(err, appErrors.ErrNotFound) ||
		appErrors.IsCode(err, appErrors.ErrForbidden) ||
		appErrors.IsCode(err, appErrors.ErrInvalidConfiguration)
}

// GiveUp marks a job failed after the queue exhausted its retries.
func (w *ReportWorker) GiveUp(ctx context.Context, job jobs.Job, cause error) {
	failed, err := w.repo.Fail(ctx, job.ID, cause.Error(), time.Now().UTC())
	if err != nil {
		w.logger.Sugar().Warnw("failed to mark job failed", "job_id", job.ID, "error", err)
		return
	}
	if failed {
		w.metrics.RecordReportJob(string(models.ReportStatusFailed))
	}
}
