package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/controlplane/pkg/audit"
	"github.com/platinummonkey/controlplane/pkg/identity"
	"github.com/platinummonkey/controlplane/pkg/kvstore"
	"github.com/platinummonkey/controlplane/pkg/observability"
	"github.com/platinummonkey/controlplane/pkg/ratelimit"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server"`

	// Key-value store configuration
	Store StoreConfig `yaml:"store"`

	// Bearer token verification
	Identity IdentityConfig `yaml:"identity"`

	// Audit log retention and archiving
	Audit AuditConfig `yaml:"audit"`

	// Observability configuration
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	CORSOrigins     []string      `yaml:"cors_origins"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`

	// Per-caller limits on state-changing routes
	RateLimitEnabled  bool          `yaml:"rate_limit_enabled"`
	RateLimitRequests int           `yaml:"rate_limit_requests"`
	RateLimitWindow   time.Duration `yaml:"rate_limit_window"`
	RateLimitBurst    int           `yaml:"rate_limit_burst"`
}

// StoreConfig selects and configures the key-value backend
type StoreConfig struct {
	Backend   string `yaml:"backend"`
	Namespace string `yaml:"namespace"`

	RedisURL        string `yaml:"redis_url"`
	RedisPassword   string `yaml:"redis_password"`
	RedisDB         int    `yaml:"redis_db"`
	RedisMaxRetries int    `yaml:"redis_max_retries"`
	RedisPoolSize   int    `yaml:"redis_pool_size"`

	PostgresURL      string `yaml:"postgres_url"`
	PostgresMaxConns int    `yaml:"postgres_max_conns"`

	SQLitePath string `yaml:"sqlite_path"`
}

// IdentityConfig configures how bearer tokens are verified
type IdentityConfig struct {
	Mode string `yaml:"mode"`

	JWTSecret   string        `yaml:"jwt_secret"`
	JWTIssuer   string        `yaml:"jwt_issuer"`
	JWTAudience string        `yaml:"jwt_audience"`
	JWTLeeway   time.Duration `yaml:"jwt_leeway"`

	OIDCIssuerURL string `yaml:"oidc_issuer_url"`
	OIDCClientID  string `yaml:"oidc_client_id"`

	// StaticTokens maps a bearer token to an identity in static mode
	StaticTokens map[string]StaticIdentity `yaml:"static_tokens"`

	CacheSize int           `yaml:"cache_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

// StaticIdentity is one identity accepted in static mode
type StaticIdentity struct {
	ID    string `yaml:"id"`
	Email string `yaml:"email"`
	Name  string `yaml:"name"`
}

// AuditConfig holds audit log settings
type AuditConfig struct {
	Retention     int    `yaml:"retention"`
	SweepSchedule string `yaml:"sweep_schedule"`

	ArchiveEnabled bool   `yaml:"archive_enabled"`
	ArchiveBucket  string `yaml:"archive_bucket"`
	ArchivePrefix  string `yaml:"archive_prefix"`
	S3Region       string `yaml:"s3_region"`
	S3Endpoint     string `yaml:"s3_endpoint"`
	S3AccessKey    string `yaml:"s3_access_key"`
	S3SecretKey    string `yaml:"s3_secret_key"`
	S3UsePathStyle bool   `yaml:"s3_use_path_style"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Metrics
	MetricsEnabled bool `yaml:"metrics_enabled"`

	// OpenTelemetry
	OTelEnabled        bool    `yaml:"otel_enabled"`
	OTelEndpoint       string  `yaml:"otel_endpoint"`
	OTelServiceName    string  `yaml:"otel_service_name"`
	OTelServiceVersion string  `yaml:"otel_service_version"`
	OTelInsecure       bool    `yaml:"otel_insecure"` // Use insecure gRPC connection
	OTelSampleRatio    float64 `yaml:"otel_sample_ratio"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    1 << 20,
			HealthPort:      "9090",

			RateLimitEnabled:  true,
			RateLimitRequests: 30,
			RateLimitWindow:   time.Minute,
			RateLimitBurst:    10,
		},
		Store: StoreConfig{
			Backend:          kvstore.BackendMemory,
			PostgresMaxConns: 10,
			SQLitePath:       "controlplane.db",
		},
		Identity: IdentityConfig{
			Mode:      identity.ModeJWT,
			JWTLeeway: 30 * time.Second,
			CacheSize: 10000,
			CacheTTL:  time.Minute,
		},
		Audit: AuditConfig{
			Retention:     audit.DefaultRetention,
			SweepSchedule: "@every 5m",
			ArchivePrefix: "audit",
			S3Region:      "us-east-1",
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			LogFormat:          string(observability.FormatJSON),
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "controlplane",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
			OTelSampleRatio:    1.0,
		},
	}
}

// LoadConfig loads configuration from the file named by CP_CONFIG_FILE (if
// any) and then from environment variables, which take precedence.
func LoadConfig() (*Config, error) {
	return Load(os.Getenv("CP_CONFIG_FILE"))
}

// Load reads path as a YAML base layer over the defaults, applies
// environment overrides and validates the result. An empty path skips the
// file.
func Load(path string) (*Config, error) {
	return load(path, (*Config).Validate)
}

// LoadOperatorConfig is LoadConfig for tools that only touch the store and
// the audit log. Server and identity settings are not validated.
func LoadOperatorConfig() (*Config, error) {
	return load(os.Getenv("CP_CONFIG_FILE"), (*Config).ValidateOperator)
}

func load(path string, validate func(*Config) error) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	// Server
	c.Server.Host = getEnv("CP_HOST", c.Server.Host)
	c.Server.Port = getEnv("CP_PORT", c.Server.Port)
	c.Server.HealthPort = getEnv("CP_HEALTH_PORT", c.Server.HealthPort)
	c.Server.ReadTimeout = getEnvDuration("CP_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("CP_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("CP_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("CP_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	c.Server.MaxBodyBytes = getEnvInt64("CP_MAX_BODY_BYTES", c.Server.MaxBodyBytes)
	c.Server.RateLimitEnabled = getEnvBool("CP_RATE_LIMIT_ENABLED", c.Server.RateLimitEnabled)
	c.Server.RateLimitRequests = getEnvInt("CP_RATE_LIMIT_REQUESTS", c.Server.RateLimitRequests)
	c.Server.RateLimitWindow = getEnvDuration("CP_RATE_LIMIT_WINDOW", c.Server.RateLimitWindow)
	c.Server.RateLimitBurst = getEnvInt("CP_RATE_LIMIT_BURST", c.Server.RateLimitBurst)
	if origins := getEnv("CP_CORS_ORIGINS", ""); origins != "" {
		c.Server.CORSOrigins = splitList(origins)
	}

	// Store
	c.Store.Backend = getEnv("CP_STORE_BACKEND", c.Store.Backend)
	c.Store.Namespace = getEnv("CP_STORE_NAMESPACE", c.Store.Namespace)
	c.Store.RedisURL = getEnv("CP_REDIS_URL", c.Store.RedisURL)
	c.Store.RedisPassword = getEnv("CP_REDIS_PASSWORD", c.Store.RedisPassword)
	c.Store.RedisDB = getEnvInt("CP_REDIS_DB", c.Store.RedisDB)
	c.Store.RedisMaxRetries = getEnvInt("CP_REDIS_MAX_RETRIES", c.Store.RedisMaxRetries)
	c.Store.RedisPoolSize = getEnvInt("CP_REDIS_POOL_SIZE", c.Store.RedisPoolSize)
	c.Store.PostgresURL = getEnv("CP_POSTGRES_URL", c.Store.PostgresURL)
	c.Store.PostgresMaxConns = getEnvInt("CP_POSTGRES_MAX_CONNS", c.Store.PostgresMaxConns)
	c.Store.SQLitePath = getEnv("CP_SQLITE_PATH", c.Store.SQLitePath)

	// Identity
	c.Identity.Mode = getEnv("CP_IDENTITY_MODE", c.Identity.Mode)
	c.Identity.JWTSecret = getEnv("CP_JWT_SECRET", c.Identity.JWTSecret)
	c.Identity.JWTIssuer = getEnv("CP_JWT_ISSUER", c.Identity.JWTIssuer)
	c.Identity.JWTAudience = getEnv("CP_JWT_AUDIENCE", c.Identity.JWTAudience)
	c.Identity.JWTLeeway = getEnvDuration("CP_JWT_LEEWAY", c.Identity.JWTLeeway)
	c.Identity.OIDCIssuerURL = getEnv("CP_OIDC_ISSUER_URL", c.Identity.OIDCIssuerURL)
	c.Identity.OIDCClientID = getEnv("CP_OIDC_CLIENT_ID", c.Identity.OIDCClientID)
	c.Identity.CacheSize = getEnvInt("CP_IDENTITY_CACHE_SIZE", c.Identity.CacheSize)
	c.Identity.CacheTTL = getEnvDuration("CP_IDENTITY_CACHE_TTL", c.Identity.CacheTTL)

	// Audit
	c.Audit.Retention = getEnvInt("CP_AUDIT_RETENTION", c.Audit.Retention)
	c.Audit.SweepSchedule = getEnv("CP_AUDIT_SWEEP_SCHEDULE", c.Audit.SweepSchedule)
	c.Audit.ArchiveEnabled = getEnvBool("CP_AUDIT_ARCHIVE_ENABLED", c.Audit.ArchiveEnabled)
	c.Audit.ArchiveBucket = getEnv("CP_AUDIT_ARCHIVE_BUCKET", c.Audit.ArchiveBucket)
	c.Audit.ArchivePrefix = getEnv("CP_AUDIT_ARCHIVE_PREFIX", c.Audit.ArchivePrefix)
	c.Audit.S3Region = getEnv("CP_S3_REGION", c.Audit.S3Region)
	c.Audit.S3Endpoint = getEnv("CP_S3_ENDPOINT", c.Audit.S3Endpoint)
	c.Audit.S3AccessKey = getEnv("CP_S3_ACCESS_KEY", c.Audit.S3AccessKey)
	c.Audit.S3SecretKey = getEnv("CP_S3_SECRET_KEY", c.Audit.S3SecretKey)
	c.Audit.S3UsePathStyle = getEnvBool("CP_S3_USE_PATH_STYLE", c.Audit.S3UsePathStyle)

	// Observability
	c.Observability.LogLevel = getEnv("CP_LOG_LEVEL", c.Observability.LogLevel)
	c.Observability.LogFormat = getEnv("CP_LOG_FORMAT", c.Observability.LogFormat)
	c.Observability.MetricsEnabled = getEnvBool("CP_METRICS_ENABLED", c.Observability.MetricsEnabled)
	c.Observability.OTelEnabled = getEnvBool("CP_OTEL_ENABLED", c.Observability.OTelEnabled)
	c.Observability.OTelEndpoint = getEnv("CP_OTEL_ENDPOINT", c.Observability.OTelEndpoint)
	c.Observability.OTelServiceName = getEnv("CP_OTEL_SERVICE_NAME", c.Observability.OTelServiceName)
	c.Observability.OTelServiceVersion = getEnv("CP_OTEL_SERVICE_VERSION", c.Observability.OTelServiceVersion)
	c.Observability.OTelInsecure = getEnvBool("CP_OTEL_INSECURE", c.Observability.OTelInsecure)
	c.Observability.OTelSampleRatio = getEnvFloat("CP_OTEL_SAMPLE_RATIO", c.Observability.OTelSampleRatio)
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
	if c.Server.RateLimitEnabled && (c.Server.RateLimitRequests <= 0 || c.Server.RateLimitWindow <= 0) {
		return fmt.Errorf("rate limit requests and window must be positive when rate limiting is enabled")
	}

	if err := c.validateStore(); err != nil {
		return err
	}

	// Validate identity config based on mode
	switch c.Identity.Mode {
	case identity.ModeJWT:
		if c.Identity.JWTSecret == "" {
			return fmt.Errorf("jwt secret is required for jwt identity mode")
		}
	case identity.ModeOIDC:
		if c.Identity.OIDCIssuerURL == "" || c.Identity.OIDCClientID == "" {
			return fmt.Errorf("oidc issuer URL and client ID are required for oidc identity mode")
		}
	case identity.ModeStatic:
		if len(c.Identity.StaticTokens) == 0 {
			return fmt.Errorf("static tokens are required for static identity mode")
		}
	default:
		return fmt.Errorf("invalid identity mode: %s (must be jwt, oidc, or static)", c.Identity.Mode)
	}

	if err := c.validateAudit(); err != nil {
		return err
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

// ValidateOperator checks only the store and audit sections
func (c *Config) ValidateOperator() error {
	if err := c.validateStore(); err != nil {
		return err
	}
	return c.validateAudit()
}

func (c *Config) validateStore() error {
	switch c.Store.Backend {
	case kvstore.BackendMemory:
	case kvstore.BackendRedis:
		if c.Store.RedisURL == "" {
			return fmt.Errorf("redis URL is required for redis store")
		}
	case kvstore.BackendPostgres:
		if c.Store.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres store")
		}
	case kvstore.BackendSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for sqlite store")
		}
	default:
		return fmt.Errorf("invalid store backend: %s (must be memory, redis, postgres, or sqlite)", c.Store.Backend)
	}
	return nil
}

func (c *Config) validateAudit() error {
	if c.Audit.Retention <= 0 {
		return fmt.Errorf("audit retention must be positive")
	}
	if c.Audit.ArchiveEnabled && c.Audit.ArchiveBucket == "" {
		return fmt.Errorf("archive bucket is required when audit archiving is enabled")
	}
	return nil
}

// KVStore converts the store section for kvstore.Open
func (c *Config) KVStore() kvstore.Config {
	return kvstore.Config{
		Backend:          c.Store.Backend,
		Namespace:        c.Store.Namespace,
		RedisURL:         c.Store.RedisURL,
		RedisPassword:    c.Store.RedisPassword,
		RedisDB:          c.Store.RedisDB,
		RedisMaxRetries:  c.Store.RedisMaxRetries,
		RedisPoolSize:    c.Store.RedisPoolSize,
		PostgresURL:      c.Store.PostgresURL,
		PostgresMaxConns: c.Store.PostgresMaxConns,
		SQLitePath:       c.Store.SQLitePath,
	}
}

// IdentityVerifier converts the identity section for identity.New
func (c *Config) IdentityVerifier() identity.Config {
	var static map[string]identity.Identity
	if len(c.Identity.StaticTokens) > 0 {
		static = make(map[string]identity.Identity, len(c.Identity.StaticTokens))
		for token, ident := range c.Identity.StaticTokens {
			var metadata map[string]interface{}
			if ident.Name != "" {
				metadata = map[string]interface{}{"full_name": ident.Name}
			}
			static[token] = identity.Identity{ID: ident.ID, Email: ident.Email, Metadata: metadata}
		}
	}

	return identity.Config{
		Mode: c.Identity.Mode,
		JWT: identity.JWTConfig{
			Secret:   c.Identity.JWTSecret,
			Issuer:   c.Identity.JWTIssuer,
			Audience: c.Identity.JWTAudience,
			Leeway:   c.Identity.JWTLeeway,
		},
		OIDC: identity.OIDCConfig{
			IssuerURL: c.Identity.OIDCIssuerURL,
			ClientID:  c.Identity.OIDCClientID,
		},
		StaticTokens: static,
		CacheSize:    c.Identity.CacheSize,
		CacheTTL:     c.Identity.CacheTTL,
	}
}

// RateLimit converts the server rate limit settings
func (c *Config) RateLimit() ratelimit.Config {
	return ratelimit.Config{
		RequestsPerWindow: c.Server.RateLimitRequests,
		Window:            c.Server.RateLimitWindow,
		Burst:             c.Server.RateLimitBurst,
	}
}

// S3Archive converts the archive settings for audit.NewS3Archiver
func (c *Config) S3Archive() audit.S3Config {
	return audit.S3Config{
		Bucket:       c.Audit.ArchiveBucket,
		Prefix:       c.Audit.ArchivePrefix,
		Region:       c.Audit.S3Region,
		Endpoint:     c.Audit.S3Endpoint,
		AccessKey:    c.Audit.S3AccessKey,
		SecretKey:    c.Audit.S3SecretKey,
		UsePathStyle: c.Audit.S3UsePathStyle,
	}
}

// AuditOptions builds the audit.Log options for this configuration,
// including the S3 archiver when archiving is enabled. metrics may be nil.
func (c *Config) AuditOptions(ctx context.Context, metrics *observability.Metrics) ([]audit.Option, error) {
	opts := []audit.Option{
		audit.WithRetention(c.Audit.Retention),
		audit.WithMetrics(metrics),
	}
	if !c.Audit.ArchiveEnabled {
		return opts, nil
	}

	archiver, err := audit.NewS3Archiver(ctx, c.S3Archive())
	if err != nil {
		return nil, fmt.Errorf("failed to create audit archiver: %w", err)
	}
	return append(opts, audit.WithArchiver(archiver)), nil
}

// OTel converts the tracing settings for observability.InitTracing
func (c *Config) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        c.Observability.OTelEnabled,
		Endpoint:       c.Observability.OTelEndpoint,
		ServiceName:    c.Observability.OTelServiceName,
		ServiceVersion: c.Observability.OTelServiceVersion,
		Insecure:       c.Observability.OTelInsecure,
		SampleRatio:    c.Observability.OTelSampleRatio,
	}
}

// Level returns the parsed log level
func (c *Config) Level() logrus.Level {
	return observability.ParseLevel(c.Observability.LogLevel)
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

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
