package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

const (
	MailDriverLog      = "log"
	MailDriverSendgrid = "sendgrid"
)

const (
	defaultPassingGrade    = 75
	defaultQuartersPerTerm = 4
	devJWTSecret           = "dev_secret"
)

// Config is the process configuration. Every field is read from a flat
// environment key; nested sections are squashed into the same namespace.
type Config struct {
	Env       string `mapstructure:"env"`
	Port      int    `mapstructure:"port"`
	APIPrefix string `mapstructure:"api_prefix"`

	Database     DatabaseConfig     `mapstructure:",squash"`
	Redis        RedisConfig        `mapstructure:",squash"`
	JWT          JWTConfig          `mapstructure:",squash"`
	CORS         CORSConfig         `mapstructure:",squash"`
	Log          LogConfig          `mapstructure:",squash"`
	Grades       GradesConfig       `mapstructure:",squash"`
	Dashboard    DashboardConfig    `mapstructure:",squash"`
	Reports      ReportsConfig      `mapstructure:",squash"`
	Mail         MailConfig         `mapstructure:",squash"`
	Registration RegistrationConfig `mapstructure:",squash"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"db_host"`
	Port         int    `mapstructure:"db_port"`
	User         string `mapstructure:"db_user"`
	Password     string `mapstructure:"db_password"`
	Name         string `mapstructure:"db_name"`
	SSLMode      string `mapstructure:"db_ssl_mode"`
	MaxOpenConns int    `mapstructure:"db_max_open_conns"`
	MaxIdleConns int    `mapstructure:"db_max_idle_conns"`
}

type RedisConfig struct {
	Host      string `mapstructure:"redis_host"`
	Port      int    `mapstructure:"redis_port"`
	Password  string `mapstructure:"redis_password"`
	DB        int    `mapstructure:"redis_db"`
	KeyPrefix string `mapstructure:"redis_key_prefix"`
}

type JWTConfig struct {
	Secret            string        `mapstructure:"jwt_secret"`
	Expiration        time.Duration `mapstructure:"jwt_expiration"`
	RefreshExpiration time.Duration `mapstructure:"refresh_token_expiration"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LogConfig struct {
	Level  string `mapstructure:"log_level"`
	Format string `mapstructure:"log_format"`
}

// GradesConfig tunes grade computation defaults and result caching.
type GradesConfig struct {
	CacheEnabled    bool          `mapstructure:"grades_cache_enabled"`
	CacheTTL        time.Duration `mapstructure:"grades_cache_ttl"`
	PassingGrade    float64       `mapstructure:"grades_passing_grade"`
	QuartersPerTerm int           `mapstructure:"grades_quarters_per_term"`
}

type DashboardConfig struct {
	CacheTTL time.Duration `mapstructure:"dashboard_cache_ttl"`
}

// ReportsConfig configures asynchronous grade sheet generation.
type ReportsConfig struct {
	Enabled           bool          `mapstructure:"enable_reports"`
	StorageDir        string        `mapstructure:"reports_storage_dir"`
	SignedURLSecret   string        `mapstructure:"reports_signed_url_secret"`
	SignedURLTTL      time.Duration `mapstructure:"reports_signed_url_ttl"`
	CleanupInterval   time.Duration `mapstructure:"reports_cleanup_interval"`
	WorkerConcurrency int           `mapstructure:"reports_worker_concurrency"`
	WorkerRetries     int           `mapstructure:"reports_worker_retries"`
}

type MailConfig struct {
	Driver         string `mapstructure:"mail_driver"`
	SendgridAPIKey string `mapstructure:"sendgrid_api_key"`
	FromName       string `mapstructure:"mail_from_name"`
	FromAddress    string `mapstructure:"mail_from_address"`
}

type RegistrationConfig struct {
	Enabled bool `mapstructure:"registration_enabled"`
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	setDefaults(v)

	// With SetConfigFile a missing .env surfaces as a plain fs error.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read .env: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	c.CORS.AllowedOrigins = compact(c.CORS.AllowedOrigins)

	if c.Grades.PassingGrade < 0 || c.Grades.PassingGrade > 100 {
		c.Grades.PassingGrade = defaultPassingGrade
	}
	if c.Grades.QuartersPerTerm <= 0 {
		c.Grades.QuartersPerTerm = defaultQuartersPerTerm
	}
	if c.Reports.WorkerConcurrency <= 0 {
		c.Reports.WorkerConcurrency = 1
	}

	c.Mail.Driver = strings.ToLower(strings.TrimSpace(c.Mail.Driver))
	if c.Mail.Driver != MailDriverSendgrid {
		c.Mail.Driver = MailDriverLog
	}
}

// Validate reports settings the server cannot start with. Production
// refuses the development signing secret.
func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}
	if !strings.HasPrefix(c.APIPrefix, "/") {
		errs = append(errs, fmt.Errorf("API_PREFIX %q must start with /", c.APIPrefix))
	}
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Env == EnvProduction && c.JWT.Secret == devJWTSecret {
		errs = append(errs, errors.New("JWT_SECRET must be changed in production"))
	}
	for name, d := range map[string]time.Duration{
		"JWT_EXPIRATION":           c.JWT.Expiration,
		"REFRESH_TOKEN_EXPIRATION": c.JWT.RefreshExpiration,
		"GRADES_CACHE_TTL":         c.Grades.CacheTTL,
		"DASHBOARD_CACHE_TTL":      c.Dashboard.CacheTTL,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.Reports.Enabled && c.Reports.StorageDir == "" {
		errs = append(errs, errors.New("REPORTS_STORAGE_DIR is required when reports are enabled"))
	}
	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	for key, value := range map[string]interface{}{
		"ENV":        EnvDevelopment,
		"PORT":       8080,
		"API_PREFIX": "/api/v1",

		"DB_HOST":           "localhost",
		"DB_PORT":           5432,
		"DB_USER":           "postgres",
		"DB_PASSWORD":       "postgres",
		"DB_NAME":           "sma_gradebook",
		"DB_SSL_MODE":       "disable",
		"DB_MAX_OPEN_CONNS": 10,
		"DB_MAX_IDLE_CONNS": 5,

		"REDIS_HOST":       "localhost",
		"REDIS_PORT":       6379,
		"REDIS_PASSWORD":   "",
		"REDIS_DB":         0,
		"REDIS_KEY_PREFIX": "gradebook",

		"JWT_SECRET":               devJWTSecret,
		"JWT_EXPIRATION":           "24h",
		"REFRESH_TOKEN_EXPIRATION": "168h",

		"ALLOWED_ORIGINS": "",
		"LOG_LEVEL":       "info",
		"LOG_FORMAT":      "json",

		"GRADES_CACHE_ENABLED":     true,
		"GRADES_CACHE_TTL":         "10m",
		"GRADES_PASSING_GRADE":     defaultPassingGrade,
		"GRADES_QUARTERS_PER_TERM": defaultQuartersPerTerm,
		"DASHBOARD_CACHE_TTL":      "5m",

		"ENABLE_REPORTS":             true,
		"REPORTS_STORAGE_DIR":        "./exports",
		"REPORTS_SIGNED_URL_SECRET":  "",
		"REPORTS_SIGNED_URL_TTL":     "24h",
		"REPORTS_CLEANUP_INTERVAL":   "1h",
		"REPORTS_WORKER_CONCURRENCY": 1,
		"REPORTS_WORKER_RETRIES":     3,

		"MAIL_DRIVER":       MailDriverLog,
		"SENDGRID_API_KEY":  "",
		"MAIL_FROM_NAME":    "SMA Gradebook",
		"MAIL_FROM_ADDRESS": "no-reply@sma.local",

		"REGISTRATION_ENABLED": true,
	} {
		v.SetDefault(key, value)
	}
}

func compact(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
