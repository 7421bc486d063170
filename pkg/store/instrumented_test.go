package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/r3aper2020/Gamut-MGMT/pkg/observability"
)

func TestInstrumentedStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store {
		return Instrument(NewMemoryStore(), "memory", nil, nil)
	})
}

func TestInstrumentedStoreRecordsMetrics(t *testing.T) {
	ctx := context.Background()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	reader := sdkmetric.NewManualReader()
	otelMetrics, err := observability.NewOTelMetricsWithMeter(
		sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test"))
	require.NoError(t, err)

	s := Instrument(NewMemoryStore(), "memory", metrics, otelMetrics)

	require.NoError(t, s.Set(ctx, CollectionUsers, "u1", map[string]interface{}{"role": "admin"}))
	_, err = s.Get(ctx, CollectionUsers, "ghost")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.Increment(ctx, CollectionTeams, "t1", "bad name", 1)
	require.ErrorIs(t, err, ErrInvalidField)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.StoreOperationsTotal.WithLabelValues("set", "memory", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.StoreOperationsTotal.WithLabelValues("get", "memory", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.StoreOperationsTotal.WithLabelValues("increment", "memory", "error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.StoreErrorsTotal.WithLabelValues("increment", "memory", "invalid_field")))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.NotEmpty(t, rm.ScopeMetrics)
	names := map[string]bool{}
	for _, m := range rm.ScopeMetrics[0].Metrics {
		names[m.Name] = true
	}
	assert.True(t, names["gamut.store.operations"])
	assert.True(t, names["gamut.store.duration"])
}

func TestErrorType(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrNotFound, "not_found"},
		{fmt.Errorf("wrapped: %w", ErrAlreadyExists), "already_exists"},
		{ErrInvalidField, "invalid_field"},
		{ErrNotANumber, "not_a_number"},
		{context.DeadlineExceeded, "timeout"},
		{fmt.Errorf("boom"), "backend"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, errorType(tt.err))
	}
}

func TestUnwrap(t *testing.T) {
	inner := NewMemoryStore()
	assert.Same(t, inner, Instrument(inner, "memory", nil, nil).Unwrap())
}
