// Package config provides application configuration management.
//
// # Overview
//
// Defaults are overlaid by an optional YAML file (CP_CONFIG_FILE) and then by
// environment variables, which always win. The result is validated before it
// is returned.
//
// # Environment
//
// Server settings:
//
//	CP_HOST="0.0.0.0"
//	CP_PORT="8080"
//	CP_HEALTH_PORT="9090"
//	CP_READ_TIMEOUT="15s"
//	CP_CORS_ORIGINS="https://app.example.com,https://admin.example.com"
//
// Store settings:
//
//	CP_STORE_BACKEND="redis"  # memory, redis, postgres, sqlite
//	CP_STORE_NAMESPACE="prod:"
//	CP_REDIS_URL="redis://localhost:6379/0"
//	CP_POSTGRES_URL="postgres://localhost/controlplane"
//	CP_SQLITE_PATH="/var/lib/controlplane/kv.db"
//
// Identity settings:
//
//	CP_IDENTITY_MODE="jwt"  # jwt, oidc, static
//	CP_JWT_SECRET="..."
//	CP_OIDC_ISSUER_URL="https://accounts.example.com"
//	CP_OIDC_CLIENT_ID="controlplane"
//	CP_IDENTITY_CACHE_TTL="1m"
//
// Audit settings:
//
//	CP_AUDIT_RETENTION="1000"
//	CP_AUDIT_SWEEP_SCHEDULE="@every 5m"
//	CP_AUDIT_ARCHIVE_ENABLED="true"
//	CP_AUDIT_ARCHIVE_BUCKET="controlplane-audit"
//
// Observability settings:
//
//	CP_LOG_LEVEL="info"
//	CP_LOG_FORMAT="json"  # json, text
//	CP_OTEL_ENABLED="true"
//	CP_OTEL_ENDPOINT="localhost:4317"
//
// # File
//
// The YAML file mirrors the structure of Config with snake_case keys:
//
//	store:
//	  backend: postgres
//	  postgres_url: postgres://localhost/controlplane
//	identity:
//	  mode: static
//	  static_tokens:
//	    dev-token: {id: dev, email: dev@example.com}
//
// # Reloading
//
// Watch re-reads the file on change. Only the log level is applied live
// (ApplyHotReload); everything else takes effect on restart.
package config
