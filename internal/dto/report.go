package dto

import (
	"time"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

// ReportRequest captures POST /reports payload. Grade sheets need a gradebook,
// report cards need a student and term.
type ReportRequest struct {
	Type        models.ReportType   `json:"type" validate:"required,oneof=grade_sheet report_card"`
	GradebookID string              `json:"gradebookId,omitempty" validate:"required_if=Type grade_sheet"`
	StudentID   string              `json:"studentId,omitempty" validate:"required_if=Type report_card"`
	TermID      string              `json:"termId,omitempty" validate:"required_if=Type report_card"`
	Format      models.ReportFormat `json:"format" validate:"required,oneof=csv pdf"`
}

// ReportJobResponse is returned after enqueueing a report.
type ReportJobResponse struct {
	ID       string              `json:"id"`
	Status   models.ReportStatus `json:"status"`
	Progress int                 `json:"progress"`
}

// ReportStatusResponse exposes job progress metadata.
type ReportStatusResponse struct {
	ID         string              `json:"id"`
	Type       models.ReportType   `json:"type"`
	Status     models.ReportStatus `json:"status"`
	Progress   int                 `json:"progress"`
	ResultURL  *string             `json:"resultUrl,omitempty"`
	ExpiresAt  *time.Time          `json:"expiresAt,omitempty"`
	FinishedAt *time.Time          `json:"finishedAt,omitempty"`
	Error      *string             `json:"error,omitempty"`
}
