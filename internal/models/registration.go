package models

import "time"

// RegistrationStatus tracks the review state of a self-service signup.
type RegistrationStatus string

const (
	RegistrationPending  RegistrationStatus = "PENDING"
	RegistrationApproved RegistrationStatus = "APPROVED"
	RegistrationRejected RegistrationStatus = "REJECTED"
)

// Registration is a signup request awaiting administrator review.
type Registration struct {
	ID          string             `db:"id" json:"id"`
	UserID      string             `db:"user_id" json:"user_id"`
	Status      RegistrationStatus `db:"status" json:"status"`
	ReviewedBy  *string            `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time         `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ReviewNote  *string            `db:"review_note" json:"review_note,omitempty"`
	CreatedAt   time.Time          `db:"created_at" json:"created_at"`
	Email       string             `db:"email" json:"email"`
	FullName    string             `db:"full_name" json:"full_name"`
	RequestRole Role               `db:"role" json:"role"`
}

// RegistrationFilter scopes registration listings.
type RegistrationFilter struct {
	Status   RegistrationStatus
	Page     int
	PageSize int
}
