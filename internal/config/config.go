package config

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DirectoryDriverMonday = "monday"
	DirectoryDriverGorm   = "gorm"

	StoreDriverMonday = "monday"
	StoreDriverRedis  = "redis"
	StoreDriverMemory = "memory"
)

type Config struct {
	Env           string
	HTTPAddr      string
	PublicBaseURL string
	CORSOrigins   []string

	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	SessionTTL  time.Duration

	MagicLinkDefaultTTL time.Duration
	MagicLinkMaxTTL     time.Duration
	IssuerAPIKey        string

	CollaboratorTimeout time.Duration

	DirectoryDriver       string
	MondayAPIURL          string
	MondayAPIToken        string
	MondayAPIVersion      string
	MondayUsersBoardID    string
	MondayEmailColumnID   string
	MondayCompanyColumnID string
	MondayMaxPages        int
	MondayStorageURL      string
	DirectoryMissCacheTTL time.Duration

	StoreDriver   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	DatabaseDriver string
	DatabaseURL    string

	RateLimitIssueRPM    int
	RateLimitExchangeRPM int

	OTELServiceName           string
	OTELEnvironment           string
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELMetricsEnabled        bool
	OTELTracingEnabled        bool
	OTELLogsEnabled           bool
	OTELMetricsExportInterval time.Duration

	ShutdownTimeout              time.Duration
	ShutdownHTTPDrainTimeout     time.Duration
	ShutdownObservabilityTimeout time.Duration
}

// Load builds the configuration from getenv. It is the only place environment state is read;
// callers pass os.Getenv.
func Load(getenv func(string) string) (*Config, error) {
	cfg, err := load(getenv)
	recordLoad(context.Background(), getenv("APP_ENV"), err)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func load(getenv func(string) string) (*Config, error) {
	e := envReader{getenv: getenv}
	cfg := &Config{
		Env:           e.str("APP_ENV", "development"),
		HTTPAddr:      e.str("HTTP_ADDR", ":8080"),
		PublicBaseURL: strings.TrimRight(e.str("PUBLIC_BASE_URL", "http://localhost:3000"), "/"),
		CORSOrigins:   e.list("CORS_ORIGINS", []string{"http://localhost:3000"}),

		JWTSecret:   e.str("JWT_SECRET", ""),
		JWTIssuer:   e.str("JWT_ISSUER", "portal-credential-exchange"),
		JWTAudience: e.str("JWT_AUDIENCE", "client-portal"),
		SessionTTL:  e.duration("SESSION_TTL", 24*time.Hour),

		MagicLinkDefaultTTL: e.duration("MAGIC_LINK_DEFAULT_TTL", 24*time.Hour),
		MagicLinkMaxTTL:     e.duration("MAGIC_LINK_MAX_TTL", 168*time.Hour),
		IssuerAPIKey:        e.str("ISSUER_API_KEY", ""),

		CollaboratorTimeout: e.duration("COLLABORATOR_TIMEOUT", 10*time.Second),

		DirectoryDriver:       strings.ToLower(e.str("DIRECTORY_DRIVER", DirectoryDriverMonday)),
		MondayAPIURL:          e.str("MONDAY_API_URL", "https://api.monday.com/v2"),
		MondayAPIToken:        e.str("MONDAY_API_TOKEN", ""),
		MondayAPIVersion:      e.str("MONDAY_API_VERSION", "2024-10"),
		MondayUsersBoardID:    e.str("MONDAY_USERS_BOARD_ID", ""),
		MondayEmailColumnID:   e.str("MONDAY_EMAIL_COLUMN_ID", "email"),
		MondayCompanyColumnID: e.str("MONDAY_COMPANY_COLUMN_ID", ""),
		MondayMaxPages:        e.int("MONDAY_MAX_PAGES", 50),
		MondayStorageURL:      e.str("MONDAY_STORAGE_URL", "https://apps-storage.monday.com/app_storage_api/v2"),
		DirectoryMissCacheTTL: e.duration("DIRECTORY_MISS_CACHE_TTL", 0),

		StoreDriver:   strings.ToLower(e.str("STORE_DRIVER", StoreDriverMonday)),
		RedisAddr:     e.str("REDIS_ADDR", ""),
		RedisPassword: e.str("REDIS_PASSWORD", ""),
		RedisDB:       e.int("REDIS_DB", 0),

		DatabaseDriver: strings.ToLower(e.str("DATABASE_DRIVER", "postgres")),
		DatabaseURL:    e.str("DATABASE_URL", ""),

		RateLimitIssueRPM:    e.int("RATE_LIMIT_ISSUE_RPM", 30),
		RateLimitExchangeRPM: e.int("RATE_LIMIT_EXCHANGE_RPM", 60),

		OTELServiceName:           e.str("OTEL_SERVICE_NAME", "portal-credential-exchange"),
		OTELEnvironment:           e.str("OTEL_ENVIRONMENT", "development"),
		OTELExporterOTLPEndpoint:  e.str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELExporterOTLPInsecure:  e.bool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELMetricsEnabled:        e.bool("OTEL_METRICS_ENABLED", false),
		OTELTracingEnabled:        e.bool("OTEL_TRACING_ENABLED", false),
		OTELLogsEnabled:           e.bool("OTEL_LOGS_ENABLED", false),
		OTELMetricsExportInterval: e.duration("OTEL_METRICS_EXPORT_INTERVAL", 15*time.Second),

		ShutdownTimeout:              e.duration("SHUTDOWN_TIMEOUT", 20*time.Second),
		ShutdownHTTPDrainTimeout:     e.duration("SHUTDOWN_HTTP_DRAIN_TIMEOUT", 10*time.Second),
		ShutdownObservabilityTimeout: e.duration("SHUTDOWN_OBSERVABILITY_TIMEOUT", 5*time.Second),
	}
	if len(e.errs) > 0 {
		return nil, errors.Join(e.errs...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, &ValidationError{Err: err}
	}
	return cfg, nil
}

// Validate checks structural constraints. Missing collaborator credentials are not rejected here:
// they surface per request as CONFIGURATION_ERROR so the health endpoints stay reachable.
func (c *Config) Validate() error {
	var errs []error
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("HTTP_ADDR is required"))
	}
	if c.PublicBaseURL == "" {
		errs = append(errs, errors.New("PUBLIC_BASE_URL is required"))
	}
	if c.JWTSecret != "" && len(c.JWTSecret) < 32 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 32 characters"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if c.MagicLinkDefaultTTL <= 0 {
		errs = append(errs, errors.New("MAGIC_LINK_DEFAULT_TTL must be positive"))
	}
	if c.MagicLinkMaxTTL < c.MagicLinkDefaultTTL {
		errs = append(errs, errors.New("MAGIC_LINK_MAX_TTL must not be below MAGIC_LINK_DEFAULT_TTL"))
	}
	if c.CollaboratorTimeout < 5*time.Second || c.CollaboratorTimeout > 15*time.Second {
		errs = append(errs, errors.New("COLLABORATOR_TIMEOUT must be between 5s and 15s"))
	}
	switch c.DirectoryDriver {
	case DirectoryDriverMonday:
	case DirectoryDriverGorm:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the gorm directory"))
		}
		if c.DatabaseDriver != "postgres" && c.DatabaseDriver != "sqlite" {
			errs = append(errs, fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported DIRECTORY_DRIVER %q", c.DirectoryDriver))
	}
	switch c.StoreDriver {
	case StoreDriverMonday, StoreDriverMemory:
	case StoreDriverRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for the redis store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver))
	}
	if c.DirectoryMissCacheTTL < 0 || c.DirectoryMissCacheTTL > 10*time.Minute {
		errs = append(errs, errors.New("DIRECTORY_MISS_CACHE_TTL must be between 0 and 10m"))
	}
	if c.MondayMaxPages <= 0 {
		errs = append(errs, errors.New("MONDAY_MAX_PAGES must be positive"))
	}
	if c.RateLimitIssueRPM <= 0 || c.RateLimitExchangeRPM <= 0 {
		errs = append(errs, errors.New("rate limits must be positive"))
	}
	return errors.Join(errs...)
}

type envReader struct {
	getenv func(string) string
	errs   []error
}

func (e *envReader) raw(key string) string {
	return strings.TrimSpace(e.getenv(key))
}

func (e *envReader) str(key, def string) string {
	if v := e.raw(key); v != "" {
		return v
	}
	return def
}

func (e *envReader) int(key string, def int) int {
	v := e.raw(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, &ParseError{Key: key, Err: err})
		return def
	}
	return n
}

func (e *envReader) bool(key string, def bool) bool {
	v := e.raw(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, &ParseError{Key: key, Err: err})
		return def
	}
	return b
}

func (e *envReader) duration(key string, def time.Duration) time.Duration {
	v := e.raw(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, &ParseError{Key: key, Err: err})
		return def
	}
	return d
}

func (e *envReader) list(key string, def []string) []string {
	v := e.raw(key)
	if v == "" {
		return def
	}
	out := make([]string, 0)
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
