package kvstore

import (
	"context"
	"testing"

	"github.com/platinummonkey/controlplane/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrumentedRecordsOutcomes(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	store := NewInstrumented(NewMemory(), BackendMemory, metrics)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "user_role_u1", []byte(`{"role":"user"}`)))
	_, err := store.Get(ctx, "user_role_u1")
	require.NoError(t, err)
	_, err = store.Get(ctx, "user_role_u2")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = store.ScanPrefix(ctx, "user_role_")
	require.NoError(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.StoreOperationsTotal.WithLabelValues("set", BackendMemory, "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.StoreOperationsTotal.WithLabelValues("get", BackendMemory, "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.StoreOperationsTotal.WithLabelValues("get", BackendMemory, "not_found")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.StoreOperationsTotal.WithLabelValues("scan_prefix", BackendMemory, "ok")))
}

func TestInstrumentedWithoutMetrics(t *testing.T) {
	store := NewInstrumented(NewMemory(), BackendMemory, nil)
	runStoreContract(t, store)
}
