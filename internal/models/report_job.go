package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ReportType names an export the worker knows how to render.
type ReportType string

const (
	// ReportTypeGradeSheet renders a gradebook roster with quarter and overall grades.
	ReportTypeGradeSheet ReportType = "grade_sheet"
	// ReportTypeReportCard renders every subject of one student in a term.
	ReportTypeReportCard ReportType = "report_card"
)

// ReportFormat is the file format of a rendered export.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// Extension returns the file extension written for the format.
func (f ReportFormat) Extension() string {
	return "." + string(f)
}

// ReportStatus is the lifecycle state of an export job.
//
//	QUEUED -> PROCESSING -> FINISHED
//	            |    ^
//	            v    |
//	          QUEUED (retry)  -> FAILED
type ReportStatus string

const (
	ReportStatusQueued     ReportStatus = "QUEUED"
	ReportStatusProcessing ReportStatus = "PROCESSING"
	ReportStatusFinished   ReportStatus = "FINISHED"
	ReportStatusFailed     ReportStatus = "FAILED"
)

// Terminal reports whether no further transition is possible.
func (s ReportStatus) Terminal() bool {
	return s == ReportStatusFinished || s == ReportStatusFailed
}

// ReportJob is one export request and its progress.
type ReportJob struct {
	ID           string          `db:"id" json:"id"`
	Type         ReportType      `db:"type" json:"type"`
	Params       ReportJobParams `db:"params" json:"params"`
	Status       ReportStatus    `db:"status" json:"status"`
	Progress     int             `db:"progress" json:"progress"`
	Attempts     int             `db:"attempts" json:"attempts"`
	ResultURL    *string         `db:"result_url" json:"result_url,omitempty"`
	CreatedBy    string          `db:"created_by" json:"created_by"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time      `db:"finished_at" json:"finished_at,omitempty"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
}

// ReportJobParams holds what the export covers. Stored as a JSONB column.
type ReportJobParams struct {
	GradebookID string       `json:"gradebookId,omitempty"`
	StudentID   string       `json:"studentId,omitempty"`
	TermID      string       `json:"termId,omitempty"`
	Format      ReportFormat `json:"format"`
}

// Value implements driver.Valuer.
func (p ReportJobParams) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements sql.Scanner. NULL and empty payloads decode to zero params.
func (p *ReportJobParams) Scan(src interface{}) error {
	*p = ReportJobParams{}
	var raw []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("report job params: cannot scan %T", src)
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return errors.Join(errors.New("report job params: invalid json"), err)
	}
	return nil
}
