package dto

import (
	"time"

	"github.com/noah-isme/sma-gradebook-api/internal/grading"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

// DashboardResponse wraps whichever dashboard the caller's role resolves to.
type DashboardResponse struct {
	Kind    string            `json:"kind"`
	Admin   *AdminDashboard   `json:"admin,omitempty"`
	Teacher *TeacherDashboard `json:"teacher,omitempty"`
	Student *StudentDashboard `json:"student,omitempty"`
}

// AdminDashboard captures the aggregated admin dashboard payload.
type AdminDashboard struct {
	TermID               string             `json:"termId,omitempty"`
	PendingRegistrations int                `json:"pendingRegistrations"`
	Users                []models.RoleCount `json:"users"`
	Gradebooks           GradebookCounts    `json:"gradebooks"`
	System               SystemMetrics      `json:"system"`
	GeneratedAt          time.Time          `json:"generatedAt"`
}

// GradebookCounts summarises gradebook lifecycle states.
type GradebookCounts struct {
	Total     int `json:"total"`
	Finalized int `json:"finalized"`
	Open      int `json:"open"`
}

// SystemMetrics summarises runtime health for administrators.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cacheHitRatio"`
	CacheHits                uint64    `json:"cacheHits"`
	CacheMisses              uint64    `json:"cacheMisses"`
	RequestsTotal            uint64    `json:"requestsTotal"`
	AverageRequestDurationMs float64   `json:"avgRequestMs"`
	GradeComputations        uint64    `json:"gradeComputations"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generatedAt"`
}

// TeacherDashboard lists the gradebooks a teacher is responsible for.
type TeacherDashboard struct {
	TeacherID   string                  `json:"teacherId"`
	TermID      string                  `json:"termId,omitempty"`
	Classes     []TeacherClassHighlight `json:"classes"`
	GeneratedAt time.Time               `json:"generatedAt"`
}

// TeacherClassHighlight is one class subject with grading progress.
type TeacherClassHighlight struct {
	ClassID         string        `json:"classId"`
	ClassName       string        `json:"className"`
	SubjectID       string        `json:"subjectId"`
	SubjectName     string        `json:"subjectName"`
	GradebookID     string        `json:"gradebookId,omitempty"`
	Finalized       bool          `json:"finalized"`
	Students        int           `json:"students"`
	CompletionRatio float64       `json:"completionRatio"`
	Average         grading.Score `json:"average"`
}

// StudentDashboard lists a student's subjects and standing.
type StudentDashboard struct {
	StudentID   string                    `json:"studentId"`
	TermID      string                    `json:"termId,omitempty"`
	Subjects    []StudentSubjectHighlight `json:"subjects"`
	GeneratedAt time.Time                 `json:"generatedAt"`
}

// StudentSubjectHighlight is a student's standing in one subject.
type StudentSubjectHighlight struct {
	GradebookID string         `json:"gradebookId"`
	SubjectID   string         `json:"subjectId"`
	SubjectName string         `json:"subjectName"`
	Overall     grading.Score  `json:"overall"`
	Provisional bool           `json:"provisional"`
	Remark      grading.Remark `json:"remark"`
}
