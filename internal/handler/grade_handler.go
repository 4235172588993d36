package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-gradebook-api/internal/authz"
	"github.com/noah-isme/sma-gradebook-api/internal/dto"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
	"github.com/noah-isme/sma-gradebook-api/pkg/response"
)

type gradeService interface {
	StudentRecord(ctx context.Context, principal authz.Principal, gradebookID, enrollmentID string) (*dto.StudentGradeRecord, error)
	ClassRoster(ctx context.Context, principal authz.Principal, gradebookID string) (*dto.ClassGradeRoster, error)
	ReportCard(ctx context.Context, principal authz.Principal, studentID, termID string) (*dto.ReportCard, error)
}

// GradeHandler serves computed grades.
type GradeHandler struct {
	service gradeService
}

// NewGradeHandler constructs the handler.
func NewGradeHandler(svc gradeService) *GradeHandler {
	return &GradeHandler{service: svc}
}

// ClassRoster godoc
// @Summary Computed grades for every student of a gradebook
// @Tags Grades
// @Produce json
// @Param id path string true "Gradebook ID"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /gradebooks/{id}/roster [get]
func (h *GradeHandler) ClassRoster(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	roster, err := h.service.ClassRoster(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, roster, nil)
}

// StudentRecord godoc
// @Summary Quarter and overall breakdown for one enrollment
// @Tags Grades
// @Produce json
// @Param id path string true "Gradebook ID"
// @Param enrollmentId path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /gradebooks/{id}/students/{enrollmentId} [get]
func (h *GradeHandler) StudentRecord(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	record, err := h.service.StudentRecord(c.Request.Context(), principal, c.Param("id"), c.Param("enrollmentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// ReportCard godoc
// @Summary Term report card of a student
// @Tags Grades
// @Produce json
// @Param id path string true "Student ID"
// @Param termId query string true "Term ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/report-card [get]
func (h *GradeHandler) ReportCard(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	termID := strings.TrimSpace(c.Query("termId"))
	if termID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "termId is required"))
		return
	}
	card, err := h.service.ReportCard(c.Request.Context(), principal, c.Param("id"), termID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, card, nil)
}
