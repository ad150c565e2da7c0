package kvstore

import (
	"context"
	"fmt"

	"github.com/platinummonkey/controlplane/pkg/observability"
)

// Backend names accepted by Open
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Config selects and configures a store backend
type Config struct {
	Backend   string
	Namespace string

	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int

	PostgresURL      string
	PostgresMaxConns int

	SQLitePath string
}

// Open builds the configured backend and wraps it with instrumentation
func Open(ctx context.Context, cfg Config, metrics *observability.Metrics) (Store, error) {
	var (
		store Store
		err   error
	)

	switch cfg.Backend {
	case BackendMemory, "":
		store = NewMemory()
	case BackendRedis:
		store, err = NewRedisStore(cfg)
	case BackendPostgres:
		store, err = OpenSQLStore(ctx, DialectPostgres, cfg.PostgresURL, cfg.PostgresMaxConns)
	case BackendSQLite:
		store, err = OpenSQLStore(ctx, DialectSQLite, cfg.SQLitePath, 1)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	backend := cfg.Backend
	if backend == "" {
		backend = BackendMemory
	}
	return NewInstrumented(store, backend, metrics), nil
}
