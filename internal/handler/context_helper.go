package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-gradebook-api/internal/authz"
	"github.com/noah-isme/sma-gradebook-api/internal/middleware"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
	"github.com/noah-isme/sma-gradebook-api/pkg/response"
)

// requirePrincipal writes 401 and reports false when the request carries no
// authenticated caller.
func requirePrincipal(c *gin.Context) (authz.Principal, bool) {
	principal, ok := middleware.Principal(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return authz.Principal{}, false
	}
	return principal, true
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, appErrors.Clone(appErrors.ErrValidation, key+" must be an integer")
	}
	return v, nil
}

// pageQuery is the page/pageSize pair shared by list endpoints. Range
// clamping happens in models.NormalizePage.
type pageQuery struct {
	Page     int `form:"page,default=1"`
	PageSize int `form:"pageSize,default=20"`
}

func bindError(err error, message string) error {
	return appErrors.Validation(err, message)
}
