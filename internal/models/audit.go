package models

import "time"

// Audit actions recorded in audit_logs.
const (
	AuditActionLogin              = "LOGIN"
	AuditActionLogout             = "LOGOUT"
	AuditActionPasswordChange     = "PASSWORD_CHANGE"
	AuditActionTokenReuse         = "REFRESH_TOKEN_REUSE"
	AuditActionRegistrationReview = "REGISTRATION_REVIEW"
	AuditActionGradebookConfigure = "GRADEBOOK_CONFIGURE"
	AuditActionScoresRecord       = "SCORES_RECORD"
	AuditActionGradesFinalize     = "GRADES_FINALIZE"
	AuditActionRosterUpdate       = "ROSTER_UPDATE"
	AuditActionUserCreate         = "USER_CREATE"
	AuditActionUserUpdate         = "USER_UPDATE"
	AuditActionUserDeactivate     = "USER_DEACTIVATE"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
