package kvstore

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/controlplane/pkg/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Instrumented wraps a Store with Prometheus metrics and trace spans
type Instrumented struct {
	next    Store
	backend string
	metrics *observability.Metrics
	tracer  trace.Tracer
}

// NewInstrumented wraps next. metrics may be nil.
func NewInstrumented(next Store, backend string, metrics *observability.Metrics) *Instrumented {
	return &Instrumented{
		next:    next,
		backend: backend,
		metrics: metrics,
		tracer:  otel.Tracer("github.com/platinummonkey/controlplane/pkg/kvstore"),
	}
}

func (s *Instrumented) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, done := s.start(ctx, "get", attribute.String("kv.key", key))
	value, err := s.next.Get(ctx, key)
	done(err)
	return value, err
}

func (s *Instrumented) Set(ctx context.Context, key string, value []byte) error {
	ctx, done := s.start(ctx, "set", attribute.String("kv.key", key), attribute.Int("kv.size", len(value)))
	err := s.next.Set(ctx, key, value)
	done(err)
	return err
}

func (s *Instrumented) Delete(ctx context.Context, key string) error {
	ctx, done := s.start(ctx, "delete", attribute.String("kv.key", key))
	err := s.next.Delete(ctx, key)
	done(err)
	return err
}

func (s *Instrumented) ScanPrefix(ctx context.Context, prefix string) ([]Item, error) {
	ctx, done := s.start(ctx, "scan_prefix", attribute.String("kv.prefix", prefix))
	items, err := s.next.ScanPrefix(ctx, prefix)
	if err == nil {
		trace.SpanFromContext(ctx).SetAttributes(attribute.Int("kv.items", len(items)))
	}
	done(err)
	return items, err
}

func (s *Instrumented) Ping(ctx context.Context) error {
	return s.next.Ping(ctx)
}

func (s *Instrumented) Close() error {
	return s.next.Close()
}

// Unwrap returns the wrapped store
func (s *Instrumented) Unwrap() Store {
	return s.next
}

func (s *Instrumented) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	begin := time.Now()
	ctx, span := s.tracer.Start(ctx, "kv."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append(attrs, attribute.String("kv.backend", s.backend))...),
	)

	return ctx, func(err error) {
		status := "ok"
		switch {
		case errors.Is(err, ErrNotFound):
			status = "not_found"
		case err != nil:
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		if s.metrics != nil {
			s.metrics.StoreOperationsTotal.WithLabelValues(op, s.backend, status).Inc()
			s.metrics.StoreOperationDuration.WithLabelValues(op, s.backend).Observe(time.Since(begin).Seconds())
		}
	}
}
