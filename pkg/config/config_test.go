package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/platinummonkey/controlplane/pkg/audit"
	"github.com/platinummonkey/controlplane/pkg/identity"
	"github.com/platinummonkey/controlplane/pkg/kvstore"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("CP_TEST_STRING", "custom")
	t.Setenv("CP_TEST_BOOL", "1")
	t.Setenv("CP_TEST_INT", "42")
	t.Setenv("CP_TEST_BAD_INT", "forty-two")
	t.Setenv("CP_TEST_DURATION", "90s")
	t.Setenv("CP_TEST_FLOAT", "0.25")

	assert.Equal(t, "custom", getEnv("CP_TEST_STRING", "default"))
	assert.Equal(t, "default", getEnv("CP_TEST_UNSET", "default"))
	assert.True(t, getEnvBool("CP_TEST_BOOL", false))
	assert.True(t, getEnvBool("CP_TEST_UNSET", true))
	assert.Equal(t, 42, getEnvInt("CP_TEST_INT", 0))
	assert.Equal(t, 7, getEnvInt("CP_TEST_BAD_INT", 7))
	assert.Equal(t, int64(42), getEnvInt64("CP_TEST_INT", 0))
	assert.Equal(t, 90*time.Second, getEnvDuration("CP_TEST_DURATION", 0))
	assert.Equal(t, 0.25, getEnvFloat("CP_TEST_FLOAT", 1))
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b "))
}

func TestLoadRequiresJWTSecretByDefault(t *testing.T) {
	t.Setenv("CP_JWT_SECRET", "")

	_, err := Load("")
	assert.ErrorContains(t, err, "jwt secret")

	t.Setenv("CP_JWT_SECRET", "s3cret")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, kvstore.BackendMemory, cfg.Store.Backend)
	assert.Equal(t, 1000, cfg.Audit.Retention)
	assert.Equal(t, "8080", cfg.Server.Port)
}

func TestLoadOperatorConfigSkipsIdentity(t *testing.T) {
	t.Setenv("CP_CONFIG_FILE", "")
	t.Setenv("CP_JWT_SECRET", "")
	t.Setenv("CP_AUDIT_RETENTION", "50")

	cfg, err := LoadOperatorConfig()
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Audit.Retention)

	t.Setenv("CP_STORE_BACKEND", "etcd")
	_, err = LoadOperatorConfig()
	assert.ErrorContains(t, err, "invalid store backend")
}

func writeFile(t *testing.T, dir, contents string) string {
	t.Helper()
	path := filepath.Join(dir, "controlplane.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeFile(t, t.TempDir(), `
server:
  port: "8181"
  read_timeout: 5s
store:
  backend: sqlite
  sqlite_path: /tmp/kv.db
identity:
  mode: static
  static_tokens:
    dev-token:
      id: dev
      email: dev@example.com
      name: Dev User
audit:
  retention: 50
observability:
  log_level: debug
`)
	t.Setenv("CP_AUDIT_RETENTION", "75")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "8181", cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, kvstore.BackendSQLite, cfg.Store.Backend)
	assert.Equal(t, 75, cfg.Audit.Retention)
	assert.Equal(t, logrus.DebugLevel, cfg.Level())

	ic := cfg.IdentityVerifier()
	assert.Equal(t, identity.ModeStatic, ic.Mode)
	require.Contains(t, ic.StaticTokens, "dev-token")
	assert.Equal(t, "dev", ic.StaticTokens["dev-token"].ID)
	assert.Equal(t, "Dev User", ic.StaticTokens["dev-token"].MetadataString("full_name"))

	kc := cfg.KVStore()
	assert.Equal(t, "/tmp/kv.db", kc.SQLitePath)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	path := writeFile(t, t.TempDir(), "server: [unterminated")
	_, err = Load(path)
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"same ports", func(c *Config) { c.Server.HealthPort = c.Server.Port }, "must be different"},
		{"zero rate limit", func(c *Config) { c.Server.RateLimitRequests = 0 }, "rate limit"},
		{"rate limit disabled", func(c *Config) {
			c.Server.RateLimitEnabled = false
			c.Server.RateLimitRequests = 0
		}, ""},
		{"unknown backend", func(c *Config) { c.Store.Backend = "etcd" }, "invalid store backend"},
		{"redis without url", func(c *Config) { c.Store.Backend = kvstore.BackendRedis }, "redis URL"},
		{"postgres without url", func(c *Config) { c.Store.Backend = kvstore.BackendPostgres }, "postgres URL"},
		{"oidc without issuer", func(c *Config) { c.Identity.Mode = identity.ModeOIDC }, "oidc issuer"},
		{"static without tokens", func(c *Config) { c.Identity.Mode = identity.ModeStatic }, "static tokens"},
		{"unknown mode", func(c *Config) { c.Identity.Mode = "saml" }, "invalid identity mode"},
		{"zero retention", func(c *Config) { c.Audit.Retention = 0 }, "retention"},
		{"archive without bucket", func(c *Config) { c.Audit.ArchiveEnabled = true }, "archive bucket"},
		{"otel without endpoint", func(c *Config) {
			c.Observability.OTelEnabled = true
			c.Observability.OTelEndpoint = ""
		}, "endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Identity.JWTSecret = "s3cret"
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestWatchReloads(t *testing.T) {
	t.Setenv("CP_JWT_SECRET", "s3cret")
	dir := t.TempDir()
	path := writeFile(t, dir, "observability:\n  log_level: info\n")

	logger, _ := test.NewNullLogger()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 16)
	require.NoError(t, Watch(ctx, path, logger, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	}))

	writeFile(t, dir, "observability:\n  log_level: error\n")

	// a truncate-then-write can surface an intermediate empty file first
	timeout := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-reloaded:
			if cfg.Level() != logrus.ErrorLevel {
				continue
			}
			ApplyHotReload(logger, cfg)
			assert.Equal(t, logrus.ErrorLevel, logger.GetLevel())
			return
		case <-timeout:
			t.Fatal("config was not reloaded")
		}
	}
}

func TestAuditOptions(t *testing.T) {
	ctx := context.Background()
	cfg := Default()
	cfg.Audit.Retention = 7

	opts, err := cfg.AuditOptions(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 7, audit.NewLog(kvstore.NewMemory(), opts...).Retention())

	cfg.Audit.ArchiveEnabled = true
	_, err = cfg.AuditOptions(ctx, nil)
	assert.ErrorContains(t, err, "archive bucket is required")

	cfg.Audit.ArchiveBucket = "audit-archive"
	cfg.Audit.S3Endpoint = "http://localhost:9000"
	cfg.Audit.S3AccessKey = "minio"
	cfg.Audit.S3SecretKey = "minio123"
	opts, err = cfg.AuditOptions(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, opts, 3)
}
