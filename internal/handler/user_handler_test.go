package handler

import (
	"context"
	"encoding/json"
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

type userServiceMock struct {
	filter      models.UserFilter
	meta        service.RequestMeta
	deactivated string
	err         error
}

func (m *userServiceMock) List(ctx context.Context, actor authz.Principal, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	m.filter = filter
	if m.err != nil {
		return nil, nil, m.err
	}
	return []models.User{{ID: "u1", Role: models.RoleTeacher}}, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: 1}, nil
}

func (m *userServiceMock) Get(ctx context.Context, actor authz.Principal, id string) (*models.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.User{ID: id, Role: models.RoleStudent}, nil
}

func (m *userServiceMock) Create(ctx context.Context, actor authz.Principal, req service.CreateUserRequest, meta service.RequestMeta) (*models.User, error) {
	m.meta = meta
	if m.err != nil {
		return nil, m.err
	}
	role, err := models.ParseRole(req.Role)
	if err != nil {
		return nil, err
	}
	return &models.User{ID: "u2", Email: req.Email, Role: role}, nil
}

func (m *userServiceMock) Update(ctx context.Context, actor authz.Principal, id string, req service.UpdateUserRequest, meta service.RequestMeta) (*models.User, error) {
	return &models.User{ID: id, FullName: req.FullName, Role: models.RoleTeacher}, m.err
}

func (m *userServiceMock) Deactivate(ctx context.Context, actor authz.Principal, id string, meta service.RequestMeta) error {
	m.deactivated = id
	return m.err
}

func TestUserHandlerListParsesFilters(t *testing.T) {
	svc := &userServiceMock{}
	h := NewUserHandler(svc)

	c, w := newGinContext(http.MethodGet, "/users?page=2&pageSize=5&role=teacher&active=true&search=%20ana%20", nil)
	withUser(c, "admin", models.RoleAdmin)

	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, svc.filter.Page)
	assert.Equal(t, 5, svc.filter.PageSize)
	require.NotNil(t, svc.filter.Role)
	assert.Equal(t, models.RoleTeacher, *svc.filter.Role)
	require.NotNil(t, svc.filter.Active)
	assert.True(t, *svc.filter.Active)
	assert.Equal(t, "ana", svc.filter.Search)

	env := decode(t, w)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 1, env.Pagination.TotalCount)
}

func TestUserHandlerListRejectsUnknownRole(t *testing.T) {
	h := NewUserHandler(&userServiceMock{})
	c, w := newGinContext(http.MethodGet, "/users?role=parent", nil)
	withUser(c, "admin", models.RoleAdmin)

	h.List(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, appErrors.ErrValidation.Code, decode(t, w).Error.Code)
}

func TestUserHandlerCreatePassesRequestMeta(t *testing.T) {
	svc := &userServiceMock{}
	h := NewUserHandler(svc)

	body := mustJSON(t, service.CreateUserRequest{Email: "new@example.com", FullName: "New User", Role: "STUDENT", Password: "secret12"})
	c, w := newGinContext(http.MethodPost, "/users", body)
	c.Request.Header.Set("User-Agent", "gradebook-test")
	withUser(c, "admin", models.RoleAdmin)

	h.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "gradebook-test", svc.meta.UserAgent)

	var user models.User
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &user))
	assert.Equal(t, "u2", user.ID)
	assert.Equal(t, models.RoleStudent, user.Role)
}

func TestUserHandlerCreateForbidden(t *testing.T) {
	h := NewUserHandler(&userServiceMock{err: appErrors.Clone(appErrors.ErrForbidden, "not allowed to create ADMIN accounts")})

	body := mustJSON(t, service.CreateUserRequest{Email: "ops@example.com", FullName: "Ops", Role: "ADMIN", Password: "secret12"})
	c, w := newGinContext(http.MethodPost, "/users", body)
	withUser(c, "admin", models.RoleAdmin)

	h.Create(c)

	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestUserHandlerDeactivate(t *testing.T) {
	svc := &userServiceMock{}
	h := NewUserHandler(svc)

	c, w := newGinContext(http.MethodDelete, "/users/u1", nil)
	c.Params = gin.Params{{Key: "id", Value: "u1"}}
	withUser(c, "admin", models.RoleAdmin)

	serve(c, h.Deactivate)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "u1", svc.deactivated)
	assert.Empty(t, w.Body.String())
}
