package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-gradebook-api/internal/dto"
	"github.com/noah-isme/sma-gradebook-api/internal/grading"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	"github.com/noah-isme/sma-gradebook-api/pkg/export"
	"github.com/noah-isme/sma-gradebook-api/pkg/storage"
)

type exportGradebookReader interface {
	FindByID(ctx context.Context, id string) (*models.Gradebook, error)
}

type exportGradeSource interface {
	RosterFor(ctx context.Context, gb *models.Gradebook) (*dto.ClassGradeRoster, error)
	ReportCardFor(ctx context.Context, studentID, termID string) (*dto.ReportCard, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type datasetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ReportFormat
	ExpiresAt    time.Time
}

// ExportServiceParams groups export collaborators. Nil renderers fall back to
// the CSV and PDF exporters.
type ExportServiceParams struct {
	Gradebooks exportGradebookReader
	Grades     exportGradeSource
	Storage    fileStorage
	Signer     *storage.SignedURLSigner
	CSV        datasetRenderer
	PDF        datasetRenderer
	Config     ExportConfig
	Logger     *zap.Logger
}

// ExportService builds grade datasets and persists rendered files.
type ExportService struct {
	gradebooks exportGradebookReader
	grades     exportGradeSource
	storage    fileStorage
	signer     *storage.SignedURLSigner
	csv        datasetRenderer
	pdf        datasetRenderer
	logger     *zap.Logger
	cfg        ExportConfig
	now        func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(params ExportServiceParams) *ExportService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := params.Config
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	csv := params.CSV
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	pdf := params.PDF
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		gradebooks: params.Gradebooks,
		grades:     params.Grades,
		storage:    params.Storage,
		signer:     params.Signer,
		csv:        csv,
		pdf:        pdf,
		logger:     logger,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Generate builds the dataset for job and stores the rendered export.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	dataset, err := s.buildDataset(ctx, job)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch job.Params.Format {
	case models.ReportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ReportFormatPDF:
		payload, err = s.pdf.Render(dataset)
	default:
		err = fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	if err != nil {
		return nil, err
	}

	relPath, err := s.storage.Save(s.buildFilename(job), payload)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	s.logger.Debug("export stored", zap.String("job_id", job.ID), zap.String("path", relPath), zap.Int("bytes", len(payload)))
	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/export/%s", prefix, token),
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (storage.DownloadClaims, error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl, or the configured ResultTTL when ttl <= 0.
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(job *models.ReportJob) string {
	timestamp := s.now().Format("20060102_150405")
	subject := job.Params.GradebookID
	if job.Type == models.ReportTypeReportCard {
		subject = job.Params.StudentID + "_" + job.Params.TermID
	}
	return fmt.Sprintf("%s_%s_%s%s", job.Type, sanitizeFilename(subject), timestamp, job.Params.Format.Extension())
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func (s *ExportService) buildDataset(ctx context.Context, job *models.ReportJob) (export.Dataset, error) {
	switch job.Type {
	case models.ReportTypeGradeSheet:
		gb, err := s.gradebooks.FindByID(ctx, job.Params.GradebookID)
		if err != nil {
			return export.Dataset{}, fmt.Errorf("load gradebook: %w", err)
		}
		roster, err := s.grades.RosterFor(ctx, gb)
		if err != nil {
			return export.Dataset{}, err
		}
		return gradeSheetDataset(roster), nil
	case models.ReportTypeReportCard:
		card, err := s.grades.ReportCardFor(ctx, job.Params.StudentID, job.Params.TermID)
		if err != nil {
			return export.Dataset{}, err
		}
		return reportCardDataset(card), nil
	default:
		return export.Dataset{}, fmt.Errorf("unsupported report type %s", job.Type)
	}
}

func gradeSheetDataset(roster *dto.ClassGradeRoster) export.Dataset {
	headers := []string{"No", "Student"}
	for q := 1; q <= roster.QuarterCount; q++ {
		headers = append(headers, quarterHeader(q))
	}
	headers = append(headers, "Overall", "Status", "Remark")

	rows := make([]map[string]string, 0, len(roster.Rows))
	for i, r := range roster.Rows {
		row := map[string]string{
			"No":      strconv.Itoa(i + 1),
			"Student": r.StudentName,
			"Overall": formatScore(r.Overall.Grade),
			"Status":  provisionalLabel(r.Overall.Provisional),
			"Remark":  string(r.Overall.Remark),
		}
		for _, q := range r.Quarters {
			row[quarterHeader(q.Quarter)] = formatScore(q.Grade)
		}
		rows = append(rows, row)
	}

	title := strings.TrimSpace(fmt.Sprintf("Grade Sheet %s %s", roster.ClassName, roster.SubjectName))
	sum := roster.Summary
	return export.Dataset{
		Title:   title,
		Headers: headers,
		Rows:    rows,
		Summary: []export.SummaryLine{
			{Label: "Students", Value: strconv.Itoa(sum.Students)},
			{Label: "Graded", Value: strconv.Itoa(sum.Graded)},
			{Label: "Average", Value: formatScore(sum.Average)},
			{Label: "Highest", Value: formatScore(sum.Max)},
			{Label: "Lowest", Value: formatScore(sum.Min)},
			{Label: "Passed / Failed", Value: fmt.Sprintf("%d / %d", sum.Passed, sum.Failed)},
			{Label: "Passing grade", Value: strconv.FormatFloat(roster.PassingGrade, 'f', -1, 64)},
		},
	}
}

func reportCardDataset(card *dto.ReportCard) export.Dataset {
	quarters := 0
	for _, subject := range card.Subjects {
		if len(subject.Quarters) > quarters {
			quarters = len(subject.Quarters)
		}
	}
	headers := []string{"Code", "Subject"}
	for q := 1; q <= quarters; q++ {
		headers = append(headers, quarterHeader(q))
	}
	headers = append(headers, "Overall", "Remark", "Official")

	rows := make([]map[string]string, 0, len(card.Subjects))
	for _, subject := range card.Subjects {
		row := map[string]string{
			"Code":     subject.SubjectCode,
			"Subject":  subject.SubjectName,
			"Overall":  formatScore(subject.Overall.Grade),
			"Remark":   string(subject.Overall.Remark),
			"Official": yesNo(subject.Official),
		}
		for _, q := range subject.Quarters {
			row[quarterHeader(q.Quarter)] = formatScore(q.Grade)
		}
		rows = append(rows, row)
	}
	name := card.StudentName
	if name == "" {
		name = card.StudentID
	}
	return export.Dataset{
		Title:   fmt.Sprintf("Report Card %s", name),
		Headers: headers,
		Rows:    rows,
		Summary: []export.SummaryLine{
			{Label: "Term", Value: card.TermID},
			{Label: "Subjects", Value: strconv.Itoa(len(card.Subjects))},
			{Label: "General average", Value: formatScore(card.Average)},
		},
	}
}

func quarterHeader(q int) string {
	return "Q" + strconv.Itoa(q)
}

func formatScore(score grading.Score) string {
	v, ok := score.Value()
	if !ok {
		return export.NoValue
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func provisionalLabel(provisional bool) string {
	if provisional {
		return "Provisional"
	}
	return "Final"
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
