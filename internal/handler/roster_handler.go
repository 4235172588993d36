package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-gradebook-api/internal/authz"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	"github.com/noah-isme/sma-gradebook-api/internal/service"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
	"github.com/noah-isme/sma-gradebook-api/pkg/response"
)

type rosterService interface {
	Enroll(ctx context.Context, classID string, req service.EnrollStudentRequest) (*models.Enrollment, error)
	Withdraw(ctx context.Context, id string) (*models.Enrollment, error)
	Roster(ctx context.Context, classID, termID string) ([]models.RosterEntry, error)
	AssignTeacher(ctx context.Context, classID, subjectID string, req service.AssignTeacherRequest) (*models.ClassSubject, error)
}

type scopeAuthorizer interface {
	Authorize(ctx context.Context, principal authz.Principal, action authz.Action, scope service.Scope) error
}

// RosterHandler manages class membership endpoints.
type RosterHandler struct {
	service rosterService
	access  scopeAuthorizer
}

// NewRosterHandler constructs the handler.
func NewRosterHandler(svc rosterService, access scopeAuthorizer) *RosterHandler {
	return &RosterHandler{service: svc, access: access}
}

// Enroll godoc
// @Summary Enroll a student into a class
// @Tags Roster
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body service.EnrollStudentRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /classes/{id}/enrollments [post]
func (h *RosterHandler) Enroll(c *gin.Context) {
	var req service.EnrollStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid enrollment payload"))
		return
	}
	enrollment, err := h.service.Enroll(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// Withdraw godoc
// @Summary Withdraw an enrollment
// @Tags Roster
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id} [delete]
func (h *RosterHandler) Withdraw(c *gin.Context) {
	enrollment, err := h.service.Withdraw(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Roster godoc
// @Summary List active students of a class
// @Tags Roster
// @Produce json
// @Param id path string true "Class ID"
// @Param termId query string true "Term ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/roster [get]
func (h *RosterHandler) Roster(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	termID := strings.TrimSpace(c.Query("termId"))
	if termID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "termId is required"))
		return
	}
	classID := c.Param("id")
	if h.access != nil {
		if err := h.access.Authorize(c.Request.Context(), principal, authz.ActionViewClassGrades, service.Scope{ClassID: classID}); err != nil {
			response.Error(c, err)
			return
		}
	}
	entries, err := h.service.Roster(c.Request.Context(), classID, termID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil, map[string]interface{}{"count": len(entries)})
}

// AssignTeacher godoc
// @Summary Assign the teacher of a class subject
// @Tags Roster
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param subjectId path string true "Subject ID"
// @Param payload body service.AssignTeacherRequest true "Teacher"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/subjects/{subjectId}/teacher [post]
func (h *RosterHandler) AssignTeacher(c *gin.Context) {
	var req service.AssignTeacherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid assignment payload"))
		return
	}
	assignment, err := h.service.AssignTeacher(c.Request.Context(), c.Param("id"), c.Param("subjectId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignment, nil)
}
