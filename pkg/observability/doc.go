// Package observability provides structured logging, Prometheus metrics, and OpenTelemetry tracing.
//
// # Structured Logging
//
// Loggers are logrus loggers configured from pkg/config:
//
//	logger := observability.NewLogger(logrus.InfoLevel, observability.FormatJSON, os.Stdout)
//	logger.WithField("port", 8080).Info("Server started")
//
// Request-scoped entries travel in the context:
//
//	ctx = observability.WithLogger(ctx, logrus.NewEntry(logger))
//	observability.FromContext(ctx).WithError(err).Error("Role update failed")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.GateDecisionsTotal.WithLabelValues("admin", "authorized").Inc()
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(version, map[string]observability.Pinger{"kv": store})
//	status := checker.Check(ctx)
//
// # OpenTelemetry
//
//	tp, err := observability.InitTracing(ctx, cfg, logger)
//	defer observability.ShutdownTracing(ctx, tp, logger)
//
// # Related Packages
//
//   - pkg/config: Observability configuration
//   - pkg/httputil: Request logging middleware
package observability
