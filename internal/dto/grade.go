package dto

import (
	"time"

	"github.com/noah-isme/sma-gradebook-api/internal/grading"
)

// TaskView is a task with a student's score. Percentage is null while ungraded.
type TaskView struct {
	TaskID         string        `json:"taskId"`
	Label          string        `json:"label"`
	PointsEarned   *float64      `json:"pointsEarned"`
	PointsPossible float64       `json:"pointsPossible"`
	Percentage     grading.Score `json:"percentage"`
}

// CategoryView is the aggregated result of one category within a quarter.
type CategoryView struct {
	CategoryID           string        `json:"categoryId"`
	Code                 string        `json:"code"`
	Label                string        `json:"label"`
	Kind                 string        `json:"kind"`
	Weight               float64       `json:"weight"`
	RawAverage           grading.Score `json:"rawAverage"`
	WeightedContribution grading.Score `json:"weightedContribution"`
	GradedTasks          int           `json:"gradedTasks"`
	TotalTasks           int           `json:"totalTasks"`
	Tasks                []TaskView    `json:"tasks,omitempty"`
}

// QuarterView is a quarter breakdown for one student.
type QuarterView struct {
	Quarter               int               `json:"quarter"`
	Complete              bool              `json:"complete"`
	QuarterlyExamRecorded bool              `json:"quarterlyExamRecorded"`
	Final                 grading.Score     `json:"final"`
	Expected              grading.Score     `json:"expected"`
	Categories            []CategoryView    `json:"categories"`
	Warnings              []grading.Warning `json:"warnings,omitempty"`
}

// OverallView is the term-level outcome.
type OverallView struct {
	Grade            grading.Score  `json:"grade"`
	Provisional      bool           `json:"provisional"`
	Remark           grading.Remark `json:"remark"`
	GradedQuarters   int            `json:"gradedQuarters"`
	CompleteQuarters int            `json:"completeQuarters"`
	TotalQuarters    int            `json:"totalQuarters"`
}

// StudentGradeRecord is the full grade breakdown of a student in a gradebook.
type StudentGradeRecord struct {
	GradebookID  string        `json:"gradebookId"`
	EnrollmentID string        `json:"enrollmentId"`
	StudentID    string        `json:"studentId"`
	StudentName  string        `json:"studentName"`
	ClassID      string        `json:"classId"`
	SubjectID    string        `json:"subjectId"`
	TermID       string        `json:"termId"`
	PassingGrade float64       `json:"passingGrade"`
	Official     bool          `json:"official"`
	Quarters     []QuarterView `json:"quarters"`
	Overall      OverallView   `json:"overall"`
	CalculatedAt time.Time     `json:"calculatedAt"`
}

// QuarterSummary is the compact per-quarter grade used in tables.
type QuarterSummary struct {
	Quarter  int           `json:"quarter"`
	Grade    grading.Score `json:"grade"`
	Complete bool          `json:"complete"`
}

// RosterRow is one student line of a class grade roster.
type RosterRow struct {
	EnrollmentID string           `json:"enrollmentId"`
	StudentID    string           `json:"studentId"`
	StudentName  string           `json:"studentName"`
	Quarters     []QuarterSummary `json:"quarters"`
	Overall      OverallView      `json:"overall"`
}

// ClassSummary aggregates overall grades across a roster.
type ClassSummary struct {
	Students int           `json:"students"`
	Graded   int           `json:"graded"`
	Complete int           `json:"complete"`
	Passed   int           `json:"passed"`
	Failed   int           `json:"failed"`
	Average  grading.Score `json:"average"`
	Min      grading.Score `json:"min"`
	Max      grading.Score `json:"max"`
}

// ClassGradeRoster is the grade table of a gradebook.
type ClassGradeRoster struct {
	GradebookID  string       `json:"gradebookId"`
	ClassID      string       `json:"classId"`
	ClassName    string       `json:"className"`
	SubjectID    string       `json:"subjectId"`
	SubjectName  string       `json:"subjectName"`
	TermID       string       `json:"termId"`
	QuarterCount int          `json:"quarterCount"`
	PassingGrade float64      `json:"passingGrade"`
	Finalized    bool         `json:"finalized"`
	Rows         []RosterRow  `json:"rows"`
	Summary      ClassSummary `json:"summary"`
	CalculatedAt time.Time    `json:"calculatedAt"`
}

// ReportCardSubject is one subject line of a report card.
type ReportCardSubject struct {
	GradebookID string           `json:"gradebookId"`
	ClassID     string           `json:"classId"`
	ClassName   string           `json:"className"`
	SubjectID   string           `json:"subjectId"`
	SubjectCode string           `json:"subjectCode"`
	SubjectName string           `json:"subjectName"`
	Official    bool             `json:"official"`
	Quarters    []QuarterSummary `json:"quarters"`
	Overall     OverallView      `json:"overall"`
}

// ReportCard lists every graded subject of a student in a term.
type ReportCard struct {
	StudentID    string              `json:"studentId"`
	StudentName  string              `json:"studentName"`
	TermID       string              `json:"termId"`
	Subjects     []ReportCardSubject `json:"subjects"`
	Average      grading.Score       `json:"average"`
	CalculatedAt time.Time           `json:"calculatedAt"`
}
