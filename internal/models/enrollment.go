package models

import "time"

// EnrollmentStatus is the roster state of an enrollment.
type EnrollmentStatus string

const (
	EnrollmentStatusActive    EnrollmentStatus = "ACTIVE"
	EnrollmentStatusWithdrawn EnrollmentStatus = "WITHDRAWN"
)

// Enrollment places a student on a class roster for a term. Withdrawn rows
// are kept so past grades still resolve to a student.
type Enrollment struct {
	ID        string           `db:"id" json:"id"`
	StudentID string           `db:"student_id" json:"student_id"`
	ClassID   string           `db:"class_id" json:"class_id"`
	TermID    string           `db:"term_id" json:"term_id"`
	JoinedAt  time.Time        `db:"joined_at" json:"joined_at"`
	LeftAt    *time.Time       `db:"left_at" json:"left_at,omitempty"`
	Status    EnrollmentStatus `db:"status" json:"status"`
}

// Active reports whether the student still sits on the roster.
func (e Enrollment) Active() bool {
	return e.Status == EnrollmentStatusActive && e.LeftAt == nil
}

// RosterEntry is an enrollment joined with the student's account.
type RosterEntry struct {
	Enrollment
	StudentName  string `db:"student_name" json:"student_name"`
	StudentEmail string `db:"student_email" json:"student_email"`
}
