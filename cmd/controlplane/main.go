package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/controlplane/pkg/access"
	"github.com/platinummonkey/controlplane/pkg/admin"
	"github.com/platinummonkey/controlplane/pkg/audit"
	"github.com/platinummonkey/controlplane/pkg/config"
	"github.com/platinummonkey/controlplane/pkg/httputil"
	"github.com/platinummonkey/controlplane/pkg/identity"
	"github.com/platinummonkey/controlplane/pkg/kvstore"
	"github.com/platinummonkey/controlplane/pkg/observability"
	"github.com/platinummonkey/controlplane/pkg/profile"
	"github.com/platinummonkey/controlplane/pkg/ratelimit"
	"github.com/platinummonkey/controlplane/pkg/rbac"
	"github.com/platinummonkey/controlplane/pkg/usage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var version = "dev"

func main() {
	configFile := flag.String("config", os.Getenv("CP_CONFIG_FILE"), "Path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Level(), observability.LogFormat(cfg.Observability.LogFormat), os.Stdout)
	ctx := context.Background()

	tp, err := observability.InitTracing(ctx, cfg.OTel(), logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize tracing")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	kv, err := kvstore.Open(ctx, cfg.KVStore(), metrics)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open key-value store")
	}
	logger.WithField("backend", cfg.Store.Backend).Info("Key-value store ready")

	verifier, err := identity.New(ctx, cfg.IdentityVerifier(), metrics)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create identity verifier")
	}

	auditOpts, err := cfg.AuditOptions(ctx, metrics)
	if err != nil {
		logger.WithError(err).Fatal("Failed to configure audit log")
	}

	profiles := profile.NewResolver(kv)
	roles := rbac.NewResolver(kv)
	gate := access.NewGate(verifier, profiles, roles, metrics)
	service := admin.NewService(profiles, roles, usage.NewRecords(kv), audit.NewLog(kv, auditOpts...))

	var handlerOpts []admin.HandlerOption
	if cfg.Server.RateLimitEnabled {
		limiter := newLimiter(ctx, cfg, kv)
		handlerOpts = append(handlerOpts, admin.WithMutationLimit(ratelimit.Middleware(limiter, ratelimit.CallerKey, metrics)))
	}

	router := mux.NewRouter()
	admin.NewHandlers(service, gate, handlerOpts...).RegisterRoutes(router)

	handler := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(logger),
		httputil.RecoveryMiddleware,
		httputil.CORSMiddleware(cfg.Server.CORSOrigins),
		httputil.MaxBytesMiddleware(cfg.Server.MaxBodyBytes),
	)(router)
	if cfg.Observability.MetricsEnabled {
		router.Use(observability.HTTPMetricsMiddleware(metrics))
	}

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      otelhttp.NewHandler(handler, "controlplane"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(version, map[string]observability.Pinger{
		"kvstore": kv,
	}))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthMux,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, apiServer, healthServer)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return observability.ShutdownTracing(ctx, tp, logger)
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return kv.Close()
	})

	if *configFile != "" {
		watchCtx, stopWatch := context.WithCancel(ctx)
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			stopWatch()
			return nil
		})
		go func() {
			defer observability.RecoverPanic(logger, "config watcher")
			err := config.Watch(watchCtx, *configFile, logger, func(next *config.Config) {
				config.ApplyHotReload(logger, next)
			})
			if err != nil {
				logger.WithError(err).Warn("Config watcher stopped")
			}
		}()
	}

	go serve(logger, healthServer, "health")
	go serve(logger, apiServer, "api")

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("Shutdown finished with errors")
		os.Exit(1)
	}
}

// newLimiter shares counters through Redis when the store is Redis-backed and
// falls back to a per-process limiter otherwise.
func newLimiter(ctx context.Context, cfg *config.Config, kv kvstore.Store) ratelimit.Limiter {
	if inst, ok := kv.(*kvstore.Instrumented); ok {
		if rs, ok := inst.Unwrap().(*kvstore.RedisStore); ok {
			return ratelimit.NewRedisLimiter(rs.GetClient(), cfg.RateLimit(), cfg.Store.Namespace+"ratelimit")
		}
	}
	limiter := ratelimit.NewMemoryLimiter(cfg.RateLimit())
	limiter.StartCleanup(ctx)
	return limiter
}

func serve(logger *logrus.Logger, server *http.Server, name string) {
	logger.WithFields(logrus.Fields{
		"server": name,
		"addr":   server.Addr,
	}).Info("Listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).WithField("server", name).Fatal("Server failed")
	}
}
