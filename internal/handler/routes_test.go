package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
)

type routeTokens map[string]*models.JWTClaims

func (r routeTokens) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := r[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

func newRoutedEngine(deps RouteDeps) *gin.Engine {
	gin.SetMode(gin.TestMode)
	deps.Tokens = routeTokens{
		"admin":   {UserID: "admin", Role: models.RoleAdmin},
		"teacher": {UserID: "teacher-1", Role: models.RoleTeacher},
		"student": {UserID: "student-1", Role: models.RoleStudent},
	}
	r := gin.New()
	RegisterRoutes(r, "/api/v1", Handlers{
		Users:         NewUserHandler(&userServiceMock{}),
		Registrations: NewRegistrationHandler(&registrationServiceMock{}),
		Gradebooks:    NewGradebookHandler(&gradebookServiceMock{}),
		Grades:        NewGradeHandler(&gradeServiceMock{}),
		Reports:       NewReportHandler(&reportServiceMock{}),
	}, deps)
	return r
}

func call(r *gin.Engine, method, path, token string) int {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRoutesEnforceCapabilities(t *testing.T) {
	r := newRoutedEngine(RouteDeps{RegistrationEnabled: true, ReportsEnabled: true})

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"missing token", http.MethodGet, "/api/v1/users", "", http.StatusUnauthorized},
		{"teacher cannot manage users", http.MethodGet, "/api/v1/users", "teacher", http.StatusForbidden},
		{"admin lists users", http.MethodGet, "/api/v1/users", "admin", http.StatusOK},
		{"student cannot configure gradebooks", http.MethodDelete, "/api/v1/gradebooks/gb-1/tasks/t1", "student", http.StatusForbidden},
		{"teacher cannot review registrations", http.MethodGet, "/api/v1/registrations", "teacher", http.StatusForbidden},
		{"student cannot export", http.MethodGet, "/api/v1/reports", "student", http.StatusForbidden},
		{"teacher lists exports", http.MethodGet, "/api/v1/reports", "teacher", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, call(r, tc.method, tc.path, tc.token))
		})
	}
}

func TestRoutesRespectFeatureFlags(t *testing.T) {
	r := newRoutedEngine(RouteDeps{})

	assert.Equal(t, http.StatusNotFound, call(r, http.MethodPost, "/api/v1/registrations", ""))
	assert.Equal(t, http.StatusNotFound, call(r, http.MethodGet, "/api/v1/reports", "teacher"))
	assert.Equal(t, http.StatusForbidden, call(r, http.MethodGet, "/api/v1/registrations", "student"))
}
