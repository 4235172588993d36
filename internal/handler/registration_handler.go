package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-gradebook-api/internal/authz"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	"github.com/noah-isme/sma-gradebook-api/internal/service"
	"github.com/noah-isme/sma-gradebook-api/pkg/response"
)

type registrationService interface {
	Register(ctx context.Context, req service.RegisterRequest) (*models.Registration, error)
	List(ctx context.Context, filter models.RegistrationFilter) ([]models.Registration, *models.Pagination, error)
	Approve(ctx context.Context, reviewer authz.Principal, id string, req service.ReviewRegistrationRequest) (*models.Registration, error)
	Reject(ctx context.Context, reviewer authz.Principal, id string, req service.ReviewRegistrationRequest) (*models.Registration, error)
}

// RegistrationHandler exposes self-service signup and review endpoints.
type RegistrationHandler struct {
	service registrationService
}

// NewRegistrationHandler constructs the handler.
func NewRegistrationHandler(svc registrationService) *RegistrationHandler {
	return &RegistrationHandler{service: svc}
}

// Register godoc
// @Summary Submit a registration request
// @Tags Registrations
// @Accept json
// @Produce json
// @Param payload body service.RegisterRequest true "Registration payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /registrations [post]
func (h *RegistrationHandler) Register(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid registration payload"))
		return
	}
	reg, err := h.service.Register(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, reg)
}

// List godoc
// @Summary List registration requests
// @Tags Registrations
// @Produce json
// @Param status query string false "PENDING, APPROVED or REJECTED"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /registrations [get]
func (h *RegistrationHandler) List(c *gin.Context) {
	var q struct {
		pageQuery
		Status string `form:"status"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, bindError(err, "invalid query"))
		return
	}
	filter := models.RegistrationFilter{
		Status:   models.RegistrationStatus(strings.ToUpper(strings.TrimSpace(q.Status))),
		Page:     q.Page,
		PageSize: q.PageSize,
	}
	items, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Approve godoc
// @Summary Approve a registration request
// @Tags Registrations
// @Accept json
// @Produce json
// @Param id path string true "Registration ID"
// @Param payload body service.ReviewRegistrationRequest false "Review note"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /registrations/{id}/approve [post]
func (h *RegistrationHandler) Approve(c *gin.Context) {
	h.review(c, h.service.Approve)
}

// Reject godoc
// @Summary Reject a registration request
// @Tags Registrations
// @Accept json
// @Produce json
// @Param id path string true "Registration ID"
// @Param payload body service.ReviewRegistrationRequest false "Review note"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /registrations/{id}/reject [post]
func (h *RegistrationHandler) Reject(c *gin.Context) {
	h.review(c, h.service.Reject)
}

type reviewFunc func(ctx context.Context, reviewer authz.Principal, id string, req service.ReviewRegistrationRequest) (*models.Registration, error)

func (h *RegistrationHandler) review(c *gin.Context, fn reviewFunc) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var req service.ReviewRegistrationRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, bindError(err, "invalid review payload"))
			return
		}
	}
	reg, err := fn(c.Request.Context(), principal, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reg, nil)
}
