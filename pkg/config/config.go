package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/r3aper2020/Gamut-MGMT/pkg/audit"
	"github.com/r3aper2020/Gamut-MGMT/pkg/identity"
	"github.com/r3aper2020/Gamut-MGMT/pkg/observability"
	"github.com/r3aper2020/Gamut-MGMT/pkg/store"
)

// Identity modes
const (
	IdentityModeLocal = "local"
	IdentityModeOIDC  = "oidc"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Document store configuration
	Store store.Config

	Identity  IdentityConfig
	RBAC      RBACConfig
	RateLimit RateLimitConfig
	Reconcile ReconcileConfig
	Audit     AuditConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// IdentityConfig selects and configures the identity provider
type IdentityConfig struct {
	Mode string

	// Local directory
	TokenSecret       string
	TokenIssuer       string
	TokenTTL          time.Duration
	BcryptCost        int
	MinPasswordLength int

	// External issuer
	OIDC          identity.OIDCConfig
	SecureCookies bool

	// Claims cache; size 0 disables it
	CacheSize int
	CacheTTL  time.Duration
}

// RBACConfig points at an optional permission tables file
type RBACConfig struct {
	TablesFile string
}

// RateLimitConfig throttles the public endpoints
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerWindow int
	Window            time.Duration
	Burst             int
	FailOpen          bool

	// Redis shares limits across instances
	Redis         bool
	RedisURL      string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string
}

// ReconcileConfig schedules the consistency sweep
type ReconcileConfig struct {
	Enabled     bool
	Schedule    string
	Timeout     time.Duration
	DryRun      bool
	Concurrency int
	GracePeriod time.Duration
}

// AuditConfig selects the audit sinks
type AuditConfig struct {
	LogEnabled bool
	Async      bool

	FileEnabled bool
	File        audit.FileLoggerConfig

	S3Enabled       bool
	S3              audit.S3Config
	S3BatchSize     int
	S3FlushInterval time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
	OTelSampleRatio    float64
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Store:         loadStoreConfig(),
		Identity:      loadIdentityConfig(),
		RBAC:          RBACConfig{TablesFile: getEnv("GAMUT_RBAC_TABLES_FILE", "")},
		RateLimit:     loadRateLimitConfig(),
		Reconcile:     loadReconcileConfig(),
		Audit:         loadAuditConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("GAMUT_HOST", "0.0.0.0"),
		Port:            getEnv("GAMUT_PORT", "8080"),
		ReadTimeout:     getEnvDuration("GAMUT_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("GAMUT_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("GAMUT_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("GAMUT_SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxBodyBytes:    getEnvInt64("GAMUT_MAX_BODY_BYTES", 1<<20),
		HealthPort:      getEnv("GAMUT_HEALTH_PORT", "9090"),
	}
}

// loadStoreConfig loads document store configuration from environment
func loadStoreConfig() store.Config {
	cfg := store.DefaultConfig()

	if storeType := getEnv("GAMUT_STORE_TYPE", ""); storeType != "" {
		cfg.Type = strings.ToLower(storeType)
	}

	// SQL config
	if pgURL := getEnv("GAMUT_POSTGRES_URL", ""); pgURL != "" {
		cfg.PostgresURL = pgURL
	}
	if sqlitePath := getEnv("GAMUT_SQLITE_PATH", ""); sqlitePath != "" {
		cfg.SQLitePath = sqlitePath
	}
	if maxConns := getEnvInt("GAMUT_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns := getEnvInt("GAMUT_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.MinConns = minConns
	}
	if timeout := getEnvDuration("GAMUT_STORE_TIMEOUT", 0); timeout > 0 {
		cfg.Timeout = timeout
	}

	// Redis config
	if redisURL := getEnv("GAMUT_REDIS_URL", ""); redisURL != "" {
		cfg.Redis.URL = redisURL
	}
	if redisPassword := getEnv("GAMUT_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.Redis.Password = redisPassword
	}
	if redisDB := getEnvInt("GAMUT_REDIS_DB", -1); redisDB >= 0 {
		cfg.Redis.DB = redisDB
	}
	if redisPoolSize := getEnvInt("GAMUT_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.Redis.PoolSize = redisPoolSize
	}
	if prefix := getEnv("GAMUT_REDIS_KEY_PREFIX", ""); prefix != "" {
		cfg.Redis.KeyPrefix = prefix
	}

	return cfg
}

func loadIdentityConfig() IdentityConfig {
	return IdentityConfig{
		Mode:              strings.ToLower(getEnv("GAMUT_IDENTITY_MODE", IdentityModeLocal)),
		TokenSecret:       getEnv("GAMUT_TOKEN_SECRET", ""),
		TokenIssuer:       getEnv("GAMUT_TOKEN_ISSUER", "gamut"),
		TokenTTL:          getEnvDuration("GAMUT_TOKEN_TTL", time.Hour),
		BcryptCost:        getEnvInt("GAMUT_BCRYPT_COST", 0),
		MinPasswordLength: getEnvInt("GAMUT_MIN_PASSWORD_LENGTH", 6),
		OIDC: identity.OIDCConfig{
			IssuerURL:    getEnv("GAMUT_OIDC_ISSUER_URL", ""),
			ClientID:     getEnv("GAMUT_OIDC_CLIENT_ID", ""),
			ClientSecret: getEnv("GAMUT_OIDC_CLIENT_SECRET", ""),
			RedirectURL:  getEnv("GAMUT_OIDC_REDIRECT_URL", ""),
			Scopes:       getEnvList("GAMUT_OIDC_SCOPES"),
		},
		SecureCookies: getEnvBool("GAMUT_SECURE_COOKIES", true),
		CacheSize:     getEnvInt("GAMUT_IDENTITY_CACHE_SIZE", 1024),
		CacheTTL:      getEnvDuration("GAMUT_IDENTITY_CACHE_TTL", 30*time.Second),
	}
}

func loadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:           getEnvBool("GAMUT_RATELIMIT_ENABLED", true),
		RequestsPerWindow: getEnvInt("GAMUT_RATELIMIT_REQUESTS", 20),
		Window:            getEnvDuration("GAMUT_RATELIMIT_WINDOW", time.Minute),
		Burst:             getEnvInt("GAMUT_RATELIMIT_BURST", 5),
		FailOpen:          getEnvBool("GAMUT_RATELIMIT_FAIL_OPEN", true),
		Redis:             getEnvBool("GAMUT_RATELIMIT_REDIS", false),
		RedisURL:          getEnv("GAMUT_RATELIMIT_REDIS_URL", getEnv("GAMUT_REDIS_URL", "redis://localhost:6379/0")),
		RedisPassword:     getEnv("GAMUT_RATELIMIT_REDIS_PASSWORD", getEnv("GAMUT_REDIS_PASSWORD", "")),
		RedisDB:           getEnvInt("GAMUT_RATELIMIT_REDIS_DB", 0),
		KeyPrefix:         getEnv("GAMUT_RATELIMIT_KEY_PREFIX", "gamut:ratelimit"),
	}
}

func loadReconcileConfig() ReconcileConfig {
	return ReconcileConfig{
		Enabled:     getEnvBool("GAMUT_RECONCILE_ENABLED", true),
		Schedule:    getEnv("GAMUT_RECONCILE_SCHEDULE", "@every 1h"),
		Timeout:     getEnvDuration("GAMUT_RECONCILE_TIMEOUT", 5*time.Minute),
		DryRun:      getEnvBool("GAMUT_RECONCILE_DRY_RUN", false),
		Concurrency: getEnvInt("GAMUT_RECONCILE_CONCURRENCY", 8),
		GracePeriod: getEnvDuration("GAMUT_RECONCILE_GRACE_PERIOD", 10*time.Minute),
	}
}

func loadAuditConfig() AuditConfig {
	file := audit.DefaultFileLoggerConfig()
	if dir := getEnv("GAMUT_AUDIT_FILE_DIR", ""); dir != "" {
		file.BasePath = dir
	}
	file.MaxSizeMB = getEnvInt("GAMUT_AUDIT_FILE_MAX_SIZE_MB", file.MaxSizeMB)
	file.MaxBackups = getEnvInt("GAMUT_AUDIT_FILE_MAX_BACKUPS", file.MaxBackups)
	file.MaxAgeDays = getEnvInt("GAMUT_AUDIT_FILE_MAX_AGE_DAYS", file.MaxAgeDays)
	file.Compress = getEnvBool("GAMUT_AUDIT_FILE_COMPRESS", file.Compress)

	return AuditConfig{
		LogEnabled:  getEnvBool("GAMUT_AUDIT_LOG_ENABLED", true),
		Async:       getEnvBool("GAMUT_AUDIT_ASYNC", false),
		FileEnabled: getEnvBool("GAMUT_AUDIT_FILE_ENABLED", false),
		File:        file,
		S3Enabled:   getEnvBool("GAMUT_AUDIT_S3_ENABLED", false),
		S3: audit.S3Config{
			Bucket:       getEnv("GAMUT_AUDIT_S3_BUCKET", ""),
			Prefix:       getEnv("GAMUT_AUDIT_S3_PREFIX", "audit"),
			Region:       getEnv("GAMUT_AUDIT_S3_REGION", "us-east-1"),
			Endpoint:     getEnv("GAMUT_AUDIT_S3_ENDPOINT", ""),
			AccessKey:    getEnv("GAMUT_AUDIT_S3_ACCESS_KEY", ""),
			SecretKey:    getEnv("GAMUT_AUDIT_S3_SECRET_KEY", ""),
			UsePathStyle: getEnvBool("GAMUT_AUDIT_S3_USE_PATH_STYLE", false),
		},
		S3BatchSize:     getEnvInt("GAMUT_AUDIT_S3_BATCH_SIZE", 500),
		S3FlushInterval: getEnvDuration("GAMUT_AUDIT_S3_FLUSH_INTERVAL", time.Minute),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("GAMUT_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("GAMUT_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("GAMUT_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("GAMUT_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("GAMUT_OTEL_SERVICE_NAME", "gamut"),
		OTelServiceVersion: getEnv("GAMUT_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("GAMUT_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("GAMUT_OTEL_SAMPLE_RATIO", 1),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	// Validate store config based on type
	switch c.Store.Type {
	case store.TypeMemory:
	case store.TypePostgres:
		if c.Store.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres store")
		}
	case store.TypeSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for sqlite store")
		}
	case store.TypeRedis:
		if c.Store.Redis.URL == "" {
			return fmt.Errorf("redis URL is required for redis store")
		}
	default:
		return fmt.Errorf("invalid store type: %s (must be memory, postgres, sqlite, or redis)", c.Store.Type)
	}

	// The local directory signs password sessions in both modes
	if len(c.Identity.TokenSecret) < 32 {
		return fmt.Errorf("token secret of at least 32 bytes is required")
	}
	switch c.Identity.Mode {
	case IdentityModeLocal:
	case IdentityModeOIDC:
		if err := c.Identity.OIDC.Validate(); err != nil {
			return fmt.Errorf("invalid OIDC configuration: %w", err)
		}
	default:
		return fmt.Errorf("invalid identity mode: %s (must be local or oidc)", c.Identity.Mode)
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerWindow <= 0 || c.RateLimit.Window <= 0 {
			return fmt.Errorf("rate limit requests and window must be positive")
		}
		if c.RateLimit.Redis && c.RateLimit.RedisURL == "" {
			return fmt.Errorf("redis URL is required for distributed rate limiting")
		}
	}

	if c.Reconcile.Enabled {
		if _, err := cron.ParseStandard(c.Reconcile.Schedule); err != nil {
			return fmt.Errorf("invalid reconcile schedule %q: %w", c.Reconcile.Schedule, err)
		}
	}

	if c.Audit.S3Enabled && c.Audit.S3.Bucket == "" {
		return fmt.Errorf("audit S3 bucket is required when S3 archiving is enabled")
	}
	if c.Audit.FileEnabled && c.Audit.File.BasePath == "" {
		return fmt.Errorf("audit file directory is required when file logging is enabled")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated environment variable, dropping empty items
func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
