package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-gradebook-api/internal/authz"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	"github.com/noah-isme/sma-gradebook-api/internal/service"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
)

type registrationServiceMock struct {
	filter   models.RegistrationFilter
	reviewer authz.Principal
	note     string
	err      error
}

func (m *registrationServiceMock) Register(ctx context.Context, req service.RegisterRequest) (*models.Registration, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.Registration{ID: "reg-1", RequestRole: models.RoleStudent, Status: models.RegistrationPending}, nil
}

func (m *registrationServiceMock) List(ctx context.Context, filter models.RegistrationFilter) ([]models.Registration, *models.Pagination, error) {
	m.filter = filter
	return nil, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize}, nil
}

func (m *registrationServiceMock) Approve(ctx context.Context, reviewer authz.Principal, id string, req service.ReviewRegistrationRequest) (*models.Registration, error) {
	m.reviewer, m.note = reviewer, req.Note
	if m.err != nil {
		return nil, m.err
	}
	return &models.Registration{ID: id, RequestRole: models.RoleTeacher, Status: models.RegistrationApproved}, nil
}

func (m *registrationServiceMock) Reject(ctx context.Context, reviewer authz.Principal, id string, req service.ReviewRegistrationRequest) (*models.Registration, error) {
	m.reviewer, m.note = reviewer, req.Note
	return &models.Registration{ID: id, RequestRole: models.RoleStudent, Status: models.RegistrationRejected}, m.err
}

func TestRegistrationHandlerRegister(t *testing.T) {
	h := NewRegistrationHandler(&registrationServiceMock{})

	body := mustJSON(t, service.RegisterRequest{Email: "ana@example.com", FullName: "Ana", Password: "secret12", Role: "STUDENT"})
	c, w := newGinContext(http.MethodPost, "/registrations", body)
	h.Register(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"PENDING"`)
	assert.Contains(t, w.Body.String(), `"role":"STUDENT"`)
}

func TestRegistrationHandlerRegisterDuplicate(t *testing.T) {
	h := NewRegistrationHandler(&registrationServiceMock{err: appErrors.Clone(appErrors.ErrConflict, "email already registered")})

	body := mustJSON(t, service.RegisterRequest{Email: "ana@example.com", FullName: "Ana", Password: "secret12", Role: "STUDENT"})
	c, w := newGinContext(http.MethodPost, "/registrations", body)
	h.Register(c)

	require.Equal(t, http.StatusConflict, w.Code)
}

func TestRegistrationHandlerListNormalizesStatus(t *testing.T) {
	svc := &registrationServiceMock{}
	h := NewRegistrationHandler(svc)

	c, w := newGinContext(http.MethodGet, "/registrations?status=pending&pageSize=10", nil)
	withUser(c, "admin", models.RoleAdmin)
	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.RegistrationPending, svc.filter.Status)
	assert.Equal(t, 1, svc.filter.Page)
	assert.Equal(t, 10, svc.filter.PageSize)
}

func TestRegistrationHandlerApproveWithNote(t *testing.T) {
	svc := &registrationServiceMock{}
	h := NewRegistrationHandler(svc)

	c, w := newGinContext(http.MethodPost, "/registrations/reg-1/approve", []byte(`{"note":"welcome"}`))
	c.Request.ContentLength = int64(len(`{"note":"welcome"}`))
	c.Params = gin.Params{{Key: "id", Value: "reg-1"}}
	withUser(c, "admin", models.RoleAdmin)
	h.Approve(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin", svc.reviewer.UserID)
	assert.Equal(t, "welcome", svc.note)
}

func TestRegistrationHandlerRejectWithoutBody(t *testing.T) {
	svc := &registrationServiceMock{}
	h := NewRegistrationHandler(svc)

	c, w := newGinContext(http.MethodPost, "/registrations/reg-1/reject", nil)
	c.Params = gin.Params{{Key: "id", Value: "reg-1"}}
	withUser(c, "admin", models.RoleAdmin)
	h.Reject(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"REJECTED"`)
	assert.Empty(t, svc.note)
}
