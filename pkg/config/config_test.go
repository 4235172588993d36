package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(overrides map[string]interface{}) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	for k, val := range overrides {
		v.Set(k, val)
	}
	return v
}

func TestDecodeDefaults(t *testing.T) {
	cfg, err := decode(newViper(nil))
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, "gradebook", cfg.Redis.KeyPrefix)
	assert.Equal(t, 24*time.Hour, cfg.JWT.Expiration)
	assert.Equal(t, 75.0, cfg.Grades.PassingGrade)
	assert.Equal(t, 4, cfg.Grades.QuartersPerTerm)
	assert.Equal(t, 10*time.Minute, cfg.Grades.CacheTTL)
	assert.Equal(t, MailDriverLog, cfg.Mail.Driver)
	assert.True(t, cfg.Registration.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestDecodeNormalizesOutOfRangeValues(t *testing.T) {
	cfg, err := decode(newViper(map[string]interface{}{
		"GRADES_PASSING_GRADE":       140,
		"GRADES_QUARTERS_PER_TERM":   0,
		"REPORTS_WORKER_CONCURRENCY": -2,
		"MAIL_DRIVER":                " SendGrid ",
		"ALLOWED_ORIGINS":            " https://a.test, ,https://b.test ",
	}))
	require.NoError(t, err)

	assert.Equal(t, 75.0, cfg.Grades.PassingGrade)
	assert.Equal(t, 4, cfg.Grades.QuartersPerTerm)
	assert.Equal(t, 1, cfg.Reports.WorkerConcurrency)
	assert.Equal(t, MailDriverSendgrid, cfg.Mail.Driver)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.CORS.AllowedOrigins)
}

func TestDecodeRejectsMalformedDuration(t *testing.T) {
	_, err := decode(newViper(map[string]interface{}{"GRADES_CACHE_TTL": "soon"}))
	assert.Error(t, err)
}

func TestValidateCollectsProblems(t *testing.T) {
	cfg, err := decode(newViper(map[string]interface{}{
		"ENV":                 "Production",
		"PORT":                0,
		"API_PREFIX":          "api",
		"DASHBOARD_CACHE_TTL": "0s",
	}))
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"PORT 0", "API_PREFIX", "changed in production", "DASHBOARD_CACHE_TTL"} {
		assert.ErrorContains(t, err, want)
	}
}
