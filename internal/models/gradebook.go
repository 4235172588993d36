package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// CategoryKind distinguishes the quarterly exam from regular categories.
type CategoryKind string

const (
	CategoryKindRegular       CategoryKind = "REGULAR"
	CategoryKindQuarterlyExam CategoryKind = "QUARTERLY_EXAM"
)

// Gradebook is the grading configuration of one class+subject+term.
type Gradebook struct {
	ID           string              `db:"id" json:"id"`
	ClassID      string              `db:"class_id" json:"class_id"`
	SubjectID    string              `db:"subject_id" json:"subject_id"`
	TermID       string              `db:"term_id" json:"term_id"`
	QuarterCount int                 `db:"quarter_count" json:"quarter_count"`
	PassingGrade float64             `db:"passing_grade" json:"passing_grade"`
	Finalized    bool                `db:"finalized" json:"finalized"`
	FinalizedAt  *time.Time          `db:"finalized_at" json:"finalized_at,omitempty"`
	CreatedBy    string              `db:"created_by" json:"created_by"`
	CreatedAt    time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time           `db:"updated_at" json:"updated_at"`
	Categories   []GradebookCategory `json:"categories,omitempty"`
}

// GradebookCategory is a weighted grade category within a gradebook.
type GradebookCategory struct {
	ID          string       `db:"id" json:"id"`
	GradebookID string       `db:"gradebook_id" json:"gradebook_id"`
	Code        string       `db:"code" json:"code"`
	Label       string       `db:"label" json:"label"`
	Weight      float64      `db:"weight" json:"weight"`
	Kind        CategoryKind `db:"kind" json:"kind"`
	Position    int          `db:"position" json:"position"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
}

// GradebookTask is a scored activity placed in a category and quarter.
type GradebookTask struct {
	ID             string    `db:"id" json:"id"`
	GradebookID    string    `db:"gradebook_id" json:"gradebook_id"`
	CategoryID     string    `db:"category_id" json:"category_id"`
	Quarter        int       `db:"quarter" json:"quarter"`
	Label          string    `db:"label" json:"label"`
	PointsPossible float64   `db:"points_possible" json:"points_possible"`
	Position       int       `db:"position" json:"position"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// TaskScore is the points a student earned on a task. A nil PointsEarned
// means the task has not been graded.
type TaskScore struct {
	ID           string    `db:"id" json:"id"`
	TaskID       string    `db:"task_id" json:"task_id"`
	EnrollmentID string    `db:"enrollment_id" json:"enrollment_id"`
	PointsEarned *float64  `db:"points_earned" json:"points_earned"`
	RecordedBy   string    `db:"recorded_by" json:"recorded_by"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// GradebookFilter scopes gradebook listings.
type GradebookFilter struct {
	ClassID   string
	SubjectID string
	TermID    string
	TeacherID string
}

// GradebookSummary counts gradebooks for dashboards.
type GradebookSummary struct {
	Total     int `db:"total" json:"total"`
	Finalized int `db:"finalized" json:"finalized"`
}

// QuarterGrade is the cached outcome of one quarter.
type QuarterGrade struct {
	Quarter  int      `json:"quarter"`
	Grade    *float64 `json:"grade"`
	Complete bool     `json:"complete"`
}

// QuarterGrades is persisted as JSONB.
type QuarterGrades []QuarterGrade

// Value marshals quarter grades for persistence.
func (q QuarterGrades) Value() (driver.Value, error) {
	if q == nil {
		q = QuarterGrades{}
	}
	data, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("marshal quarter grades: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into quarter grades.
func (q *QuarterGrades) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*q = nil
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for QuarterGrades", value)
	}
	if len(data) == 0 {
		*q = nil
		return nil
	}
	return json.Unmarshal(data, q)
}

// SubjectGrade caches the computed result of a student in a gradebook.
type SubjectGrade struct {
	ID           string        `db:"id" json:"id"`
	GradebookID  string        `db:"gradebook_id" json:"gradebook_id"`
	EnrollmentID string        `db:"enrollment_id" json:"enrollment_id"`
	Quarters     QuarterGrades `db:"quarters" json:"quarters"`
	OverallGrade *float64      `db:"overall_grade" json:"overall_grade"`
	Provisional  bool          `db:"provisional" json:"provisional"`
	Remark       string        `db:"remark" json:"remark"`
	Official     bool          `db:"official" json:"official"`
	CalculatedAt time.Time     `db:"calculated_at" json:"calculated_at"`
}
