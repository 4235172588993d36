package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-gradebook-api/internal/authz"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
)

type tokenStub map[string]*models.JWTClaims

func (s tokenStub) ValidateToken(token string) (*models.JWTClaims, error) {
	claims, ok := s[token]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return claims, nil
}

type auditRecorder struct {
	logs []*models.AuditLog
}

func (a *auditRecorder) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func newTestRouter(audit *auditRecorder) *gin.Engine {
	gin.SetMode(gin.TestMode)
	tokens := tokenStub{
		"teacher": {UserID: "t1", Role: models.RoleTeacher},
		"student": {UserID: "s1", Role: models.RoleStudent},
	}
	r := gin.New()
	group := r.Group("/gradebooks", JWT(tokens))
	group.POST("/:id/finalize",
		Authorize(authz.ActionFinalizeGrades),
		Audit(audit, nil, models.AuditActionGradesFinalize, "gradebook"),
		func(c *gin.Context) {
			if c.Query("fail") != "" {
				c.Status(http.StatusConflict)
				return
			}
			c.Status(http.StatusOK)
		})
	return r
}

func serve(r *gin.Engine, method, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestJWTRejectsMissingAndInvalidTokens(t *testing.T) {
	r := newTestRouter(&auditRecorder{})

	missing := serve(r, http.MethodPost, "/gradebooks/gb-1/finalize", "")
	assert.Equal(t, http.StatusUnauthorized, missing.Code)
	assert.Equal(t, bearerChallenge, missing.Header().Get("WWW-Authenticate"))
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodPost, "/gradebooks/gb-1/finalize", "forged").Code)

	req := httptest.NewRequest(http.MethodPost, "/gradebooks/gb-1/finalize", nil)
	req.Header.Set("Authorization", "Basic abc")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBearerToken(t *testing.T) {
	token, err := bearerToken("  bearer   abc.def ")
	require.NoError(t, err)
	assert.Equal(t, "abc.def", token)

	for _, header := range []string{"", "Bearer", "Bearer   ", "Token abc"} {
		_, err := bearerToken(header)
		assert.Error(t, err, header)
	}
}

func TestAuthorizeAndAudit(t *testing.T) {
	audit := &auditRecorder{}
	r := newTestRouter(audit)

	rec := serve(r, http.MethodPost, "/gradebooks/gb-1/finalize", "student")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, audit.logs)

	rec = serve(r, http.MethodPost, "/gradebooks/gb-1/finalize", "teacher")
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, audit.logs, 1)
	log := audit.logs[0]
	assert.Equal(t, models.AuditActionGradesFinalize, log.Action)
	require.NotNil(t, log.UserID)
	assert.Equal(t, "t1", *log.UserID)
	require.NotNil(t, log.ResourceID)
	assert.Equal(t, "gb-1", *log.ResourceID)

	rec = serve(r, http.MethodPost, "/gradebooks/gb-1/finalize?fail=1", "teacher")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Len(t, audit.logs, 1)
}

func TestPrincipalWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	_, ok := Principal(c)
	assert.False(t, ok)

	c.Set(ContextUserKey, &models.JWTClaims{UserID: "a1", Role: models.RoleAdmin})
	p, ok := Principal(c)
	require.True(t, ok)
	assert.Equal(t, authz.Principal{UserID: "a1", Role: models.RoleAdmin}, p)
}

func TestResponseMetaRecordsCacheHit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(WithResponseMeta())
	var meta map[string]interface{}
	r.GET("/cached", func(c *gin.Context) {
		SetCacheHit(c, true)
		meta = ExtractMeta(c)
		c.Status(http.StatusOK)
	})
	r.GET("/plain", func(c *gin.Context) {
		meta = ExtractMeta(c)
		c.Status(http.StatusOK)
	})

	rec := serve(r, http.MethodGet, "/cached", "")
	assert.Equal(t, "HIT", rec.Header().Get(CacheHeader))
	require.NotNil(t, meta)
	assert.Equal(t, true, meta["cache_hit"])
	assert.Contains(t, meta, "processing_time_ms")

	rec = serve(r, http.MethodGet, "/plain", "")
	assert.Empty(t, rec.Header().Get(CacheHeader))
	assert.Nil(t, meta)
}

type observation struct {
	method string
	route  string
	status int
}

type observerStub struct {
	seen []observation
}

func (o *observerStub) ObserveHTTPRequest(method, path string, status int, _ time.Duration) {
	o.seen = append(o.seen, observation{method: method, route: path, status: status})
}

func TestMetricsLabelsRouteTemplates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	obs := &observerStub{}
	r := gin.New()
	r.Use(Metrics(obs))
	r.GET("/gradebooks/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/gradebooks/abc", "/gradebooks/def", "/wp-login.php", "/metrics"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.Len(t, obs.seen, 3)
	assert.Equal(t, observation{http.MethodGet, "/gradebooks/:id", http.StatusOK}, obs.seen[0])
	assert.Equal(t, "/gradebooks/:id", obs.seen[1].route)
	assert.Equal(t, observation{http.MethodGet, unmatchedRoute, http.StatusNotFound}, obs.seen[2])
}
