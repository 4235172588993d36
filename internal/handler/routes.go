package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-gradebook-api/internal/authz"
	"github.com/noah-isme/sma-gradebook-api/internal/middleware"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

// Handlers groups every HTTP handler mounted under the API prefix.
type Handlers struct {
	Auth          *AuthHandler
	Users         *UserHandler
	Registrations *RegistrationHandler
	Roster        *RosterHandler
	Gradebooks    *GradebookHandler
	Grades        *GradeHandler
	Dashboard     *DashboardHandler
	Reports       *ReportHandler
}

// RouteDeps carries the cross cutting collaborators of the protected routes.
type RouteDeps struct {
	Tokens              middleware.TokenValidator
	Audit               middleware.AuditWriter
	Logger              *zap.Logger
	RegistrationEnabled bool
	ReportsEnabled      bool
}

// RegisterRoutes mounts the API under prefix. Nil handlers are skipped.
func RegisterRoutes(router gin.IRouter, prefix string, h Handlers, deps RouteDeps) {
	api := router.Group(prefix)
	authed := api.Group("")
	authed.Use(middleware.JWT(deps.Tokens))

	guard := middleware.Authorize
	audit := func(action, resource string) gin.HandlerFunc {
		return middleware.Audit(deps.Audit, deps.Logger, action, resource)
	}

	if h.Auth != nil {
		api.POST("/auth/login", h.Auth.Login)
		api.POST("/auth/refresh", h.Auth.Refresh)
		authed.POST("/auth/logout", h.Auth.Logout)
		authed.POST("/auth/change-password", guard(authz.ActionChangeOwnPassword), h.Auth.ChangePassword)
		authed.GET("/auth/me", h.Auth.Me)
	}

	if h.Users != nil {
		users := authed.Group("/users", guard(authz.ActionManageUsers))
		users.GET("", h.Users.List)
		users.GET("/:id", h.Users.Get)
		users.POST("", h.Users.Create)
		users.PUT("/:id", h.Users.Update)
		users.DELETE("/:id", h.Users.Deactivate)
	}

	if h.Registrations != nil {
		if deps.RegistrationEnabled {
			api.POST("/registrations", h.Registrations.Register)
		}
		reviews := authed.Group("/registrations", guard(authz.ActionApproveRegistrations))
		reviews.GET("", h.Registrations.List)
		reviews.POST("/:id/approve", audit(models.AuditActionRegistrationReview, "registration"), h.Registrations.Approve)
		reviews.POST("/:id/reject", audit(models.AuditActionRegistrationReview, "registration"), h.Registrations.Reject)
	}

	if h.Roster != nil {
		rosterAudit := audit(models.AuditActionRosterUpdate, "class")
		authed.POST("/classes/:id/enrollments", guard(authz.ActionManageRoster), rosterAudit, h.Roster.Enroll)
		authed.DELETE("/enrollments/:id", guard(authz.ActionManageRoster), audit(models.AuditActionRosterUpdate, "enrollment"), h.Roster.Withdraw)
		authed.GET("/classes/:id/roster", guard(authz.ActionViewClassGrades), h.Roster.Roster)
		authed.POST("/classes/:id/subjects/:subjectId/teacher", guard(authz.ActionManageRoster), rosterAudit, h.Roster.AssignTeacher)
	}

	if h.Gradebooks != nil {
		configure := []gin.HandlerFunc{guard(authz.ActionConfigureGradebook), audit(models.AuditActionGradebookConfigure, "gradebook")}
		view := guard(authz.ActionViewClassGrades)

		gradebooks := authed.Group("/gradebooks")
		gradebooks.POST("", append(configure, h.Gradebooks.Create)...)
		gradebooks.GET("", view, h.Gradebooks.List)
		gradebooks.GET("/:id", view, h.Gradebooks.Get)
		gradebooks.PUT("/:id/categories", append(configure, h.Gradebooks.UpdateCategories)...)
		gradebooks.POST("/:id/tasks", append(configure, h.Gradebooks.AddTask)...)
		gradebooks.GET("/:id/tasks", view, h.Gradebooks.ListTasks)
		gradebooks.DELETE("/:id/tasks/:taskId", append(configure, h.Gradebooks.DeleteTask)...)
		gradebooks.POST("/:id/scores", guard(authz.ActionRecordScores), audit(models.AuditActionScoresRecord, "gradebook"), h.Gradebooks.RecordScores)
		gradebooks.POST("/:id/finalize", guard(authz.ActionFinalizeGrades), audit(models.AuditActionGradesFinalize, "gradebook"), h.Gradebooks.Finalize)
	}

	if h.Grades != nil {
		authed.GET("/gradebooks/:id/roster", guard(authz.ActionViewClassGrades), h.Grades.ClassRoster)
		authed.GET("/gradebooks/:id/students/:enrollmentId", guard(authz.ActionViewStudentGrades), h.Grades.StudentRecord)
		authed.GET("/students/:id/report-card", guard(authz.ActionViewStudentGrades), h.Grades.ReportCard)
	}

	if h.Dashboard != nil {
		authed.GET("/dashboard", h.Dashboard.Get)
	}

	if h.Reports != nil && deps.ReportsEnabled {
		reports := authed.Group("/reports", guard(authz.ActionExportReports))
		reports.POST("", h.Reports.Create)
		reports.GET("", h.Reports.List)
		reports.GET("/:id", h.Reports.Status)
		api.GET("/export/:token", h.Reports.Download)
	}
}
