package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-gradebook-api/internal/authz"
	"github.com/noah-isme/sma-gradebook-api/internal/dto"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	"github.com/noah-isme/sma-gradebook-api/internal/service"
	"github.com/noah-isme/sma-gradebook-api/pkg/response"
)

type gradebookService interface {
	Create(ctx context.Context, principal authz.Principal, req service.CreateGradebookRequest) (*models.Gradebook, error)
	Get(ctx context.Context, principal authz.Principal, id string) (*models.Gradebook, error)
	List(ctx context.Context, principal authz.Principal, filter models.GradebookFilter) ([]models.Gradebook, error)
	UpdateCategories(ctx context.Context, principal authz.Principal, id string, req service.UpdateCategoriesRequest) (*models.Gradebook, error)
	AddTask(ctx context.Context, principal authz.Principal, gradebookID string, req service.CreateTaskRequest) (*models.GradebookTask, error)
	ListTasks(ctx context.Context, principal authz.Principal, gradebookID string, quarter int) ([]models.GradebookTask, error)
	DeleteTask(ctx context.Context, principal authz.Principal, gradebookID, taskID string) error
	RecordScores(ctx context.Context, principal authz.Principal, gradebookID string, req service.RecordScoresRequest) (*service.RecordScoresResult, error)
	Finalize(ctx context.Context, principal authz.Principal, id string) (*dto.ClassGradeRoster, error)
}

// GradebookHandler exposes gradebook configuration and score entry.
type GradebookHandler struct {
	service gradebookService
}

// NewGradebookHandler constructs the handler.
func NewGradebookHandler(svc gradebookService) *GradebookHandler {
	return &GradebookHandler{service: svc}
}

// Create godoc
// @Summary Create a gradebook for a class subject and term
// @Tags Gradebooks
// @Accept json
// @Produce json
// @Param payload body service.CreateGradebookRequest true "Gradebook"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /gradebooks [post]
func (h *GradebookHandler) Create(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var req service.CreateGradebookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid gradebook payload"))
		return
	}
	gb, err := h.service.Create(c.Request.Context(), principal, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gb)
}

// List godoc
// @Summary List gradebooks
// @Tags Gradebooks
// @Produce json
// @Param classId query string false "Class ID"
// @Param subjectId query string false "Subject ID"
// @Param termId query string false "Term ID"
// @Success 200 {object} response.Envelope
// @Router /gradebooks [get]
func (h *GradebookHandler) List(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	filter := models.GradebookFilter{
		ClassID:   strings.TrimSpace(c.Query("classId")),
		SubjectID: strings.TrimSpace(c.Query("subjectId")),
		TermID:    strings.TrimSpace(c.Query("termId")),
	}
	items, err := h.service.List(c.Request.Context(), principal, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Get godoc
// @Summary Get a gradebook with its categories
// @Tags Gradebooks
// @Produce json
// @Param id path string true "Gradebook ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /gradebooks/{id} [get]
func (h *GradebookHandler) Get(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	gb, err := h.service.Get(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gb, nil)
}

// UpdateCategories godoc
// @Summary Replace the grading categories of a gradebook
// @Tags Gradebooks
// @Accept json
// @Produce json
// @Param id path string true "Gradebook ID"
// @Param payload body service.UpdateCategoriesRequest true "Categories"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /gradebooks/{id}/categories [put]
func (h *GradebookHandler) UpdateCategories(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var req service.UpdateCategoriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid categories payload"))
		return
	}
	gb, err := h.service.UpdateCategories(c.Request.Context(), principal, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gb, nil)
}

// AddTask godoc
// @Summary Add a graded task
// @Tags Gradebooks
// @Accept json
// @Produce json
// @Param id path string true "Gradebook ID"
// @Param payload body service.CreateTaskRequest true "Task"
// @Success 201 {object} response.Envelope
// @Router /gradebooks/{id}/tasks [post]
func (h *GradebookHandler) AddTask(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var req service.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid task payload"))
		return
	}
	task, err := h.service.AddTask(c.Request.Context(), principal, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, task)
}

// ListTasks godoc
// @Summary List tasks of a gradebook
// @Tags Gradebooks
// @Produce json
// @Param id path string true "Gradebook ID"
// @Param quarter query int false "Quarter filter"
// @Success 200 {object} response.Envelope
// @Router /gradebooks/{id}/tasks [get]
func (h *GradebookHandler) ListTasks(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	quarter, err := queryInt(c, "quarter", 0)
	if err != nil {
		response.Error(c, err)
		return
	}
	tasks, err := h.service.ListTasks(c.Request.Context(), principal, c.Param("id"), quarter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tasks, nil)
}

// DeleteTask godoc
// @Summary Delete a task and its scores
// @Tags Gradebooks
// @Param id path string true "Gradebook ID"
// @Param taskId path string true "Task ID"
// @Success 204
// @Router /gradebooks/{id}/tasks/{taskId} [delete]
func (h *GradebookHandler) DeleteTask(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	if err := h.service.DeleteTask(c.Request.Context(), principal, c.Param("id"), c.Param("taskId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RecordScores godoc
// @Summary Record or clear task scores in bulk
// @Tags Gradebooks
// @Accept json
// @Produce json
// @Param id path string true "Gradebook ID"
// @Param payload body service.RecordScoresRequest true "Scores"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /gradebooks/{id}/scores [post]
func (h *GradebookHandler) RecordScores(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var req service.RecordScoresRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid scores payload"))
		return
	}
	result, err := h.service.RecordScores(c.Request.Context(), principal, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Finalize godoc
// @Summary Finalize a gradebook and publish official grades
// @Tags Gradebooks
// @Produce json
// @Param id path string true "Gradebook ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /gradebooks/{id}/finalize [post]
func (h *GradebookHandler) Finalize(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	roster, err := h.service.Finalize(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, roster, nil)
}
