// Package authz decides which actions a principal may perform. Checks are
// explicit: every entry point asks Decide/Can with the caller it received
// instead of reading an ambient current user.
package authz

import "github.com/noah-isme/sma-gradebook-api/internal/models"

// Action is a capability guarded by the policy.
type Action string

const (
	ActionManageUsers          Action = "users:manage"
	ActionManageAdmins         Action = "admins:manage"
	ActionApproveRegistrations Action = "registrations:approve"
	ActionManageRoster         Action = "roster:manage"
	ActionConfigureGradebook   Action = "gradebook:configure"
	ActionRecordScores         Action = "scores:record"
	ActionFinalizeGrades       Action = "grades:finalize"
	ActionViewClassGrades      Action = "grades:view-class"
	ActionViewStudentGrades    Action = "grades:view-student"
	ActionExportReports        Action = "reports:export"
	ActionViewAdminDashboard   Action = "dashboard:admin"
	ActionViewTeacherDashboard Action = "dashboard:teacher"
	ActionViewStudentDashboard Action = "dashboard:student"
	ActionChangeOwnPassword    Action = "account:change-password"
)

// Decision is the outcome of a policy check.
type Decision int

const (
	// Deny refuses the action.
	Deny Decision = iota
	// Allow grants the action on any resource.
	Allow
	// AllowIfAssigned grants the action on classes the teacher is assigned to.
	AllowIfAssigned
	// AllowIfSelf grants the action on the principal's own records.
	AllowIfSelf
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case AllowIfAssigned:
		return "allow_if_assigned"
	case AllowIfSelf:
		return "allow_if_self"
	default:
		return "deny"
	}
}

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Role   models.Role
}

// PrincipalFromClaims builds a principal from access token claims.
func PrincipalFromClaims(claims *models.JWTClaims) Principal {
	if claims == nil {
		return Principal{}
	}
	return Principal{UserID: claims.UserID, Role: claims.Role}
}

// Decide returns the decision for action performed by p.
func Decide(p Principal, action Action) Decision {
	if p.UserID == "" {
		return Deny
	}
	switch p.Role {
	case models.RoleSuperAdmin:
		return Allow
	case models.RoleAdmin:
		return adminDecision(action)
	case models.RoleTeacher:
		return teacherDecision(action)
	case models.RoleStudent:
		return studentDecision(action)
	default:
		return Deny
	}
}

// Can reports whether p may attempt action on at least some resource.
func Can(p Principal, action Action) bool {
	return Decide(p, action) != Deny
}

func adminDecision(action Action) Decision {
	switch action {
	case ActionManageAdmins, ActionViewTeacherDashboard, ActionViewStudentDashboard:
		return Deny
	default:
		return Allow
	}
}

func teacherDecision(action Action) Decision {
	switch action {
	case ActionConfigureGradebook, ActionRecordScores, ActionFinalizeGrades,
		ActionViewClassGrades, ActionViewStudentGrades, ActionExportReports:
		return AllowIfAssigned
	case ActionViewTeacherDashboard, ActionChangeOwnPassword:
		return Allow
	default:
		return Deny
	}
}

func studentDecision(action Action) Decision {
	switch action {
	case ActionViewStudentGrades:
		return AllowIfSelf
	case ActionViewStudentDashboard, ActionChangeOwnPassword:
		return Allow
	default:
		return Deny
	}
}

// CanReviewRole reports whether p may approve accounts that request role.
func CanReviewRole(p Principal, role models.Role) bool {
	if !Can(p, ActionApproveRegistrations) {
		return false
	}
	switch role {
	case models.RoleStudent, models.RoleTeacher:
		return true
	case models.RoleAdmin, models.RoleSuperAdmin:
		return p.Role == models.RoleSuperAdmin
	default:
		return false
	}
}

// CanManageRole reports whether p may create or modify accounts holding role.
// Admin accounts are reserved to super admins.
func CanManageRole(p Principal, role models.Role) bool {
	switch role {
	case models.RoleStudent, models.RoleTeacher:
		return Can(p, ActionManageUsers)
	case models.RoleAdmin, models.RoleSuperAdmin:
		return Can(p, ActionManageAdmins)
	default:
		return false
	}
}

// Dashboard identifies the landing view of a role.
type Dashboard string

const (
	DashboardAdmin   Dashboard = "admin"
	DashboardTeacher Dashboard = "teacher"
	DashboardStudent Dashboard = "student"
)

// HomeDashboard returns the landing dashboard for role.
func HomeDashboard(role models.Role) (Dashboard, bool) {
	switch role {
	case models.RoleSuperAdmin, models.RoleAdmin:
		return DashboardAdmin, true
	case models.RoleTeacher:
		return DashboardTeacher, true
	case models.RoleStudent:
		return DashboardStudent, true
	default:
		return "", false
	}
}

// HomePath is the client route a freshly authenticated user lands on.
func HomePath(role models.Role) string {
	dash, ok := HomeDashboard(role)
	if !ok {
		return "/"
	}
	return "/dashboard/" + string(dash)
}
