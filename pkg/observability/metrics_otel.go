package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics holds OpenTelemetry metric instruments exported over OTLP.
// A nil *OTelMetrics records nothing.
type OTelMetrics struct {
	storeOperations    metric.Int64Counter
	storeDuration      metric.Float64Histogram
	identityDuration   metric.Float64Histogram
	policyDecisions    metric.Int64Counter
	counterAdjustments metric.Int64Counter
}

// NewOTelMetrics creates instruments on the global meter provider
func NewOTelMetrics() (*OTelMetrics, error) {
	return NewOTelMetricsWithMeter(otel.Meter(instrumentationName))
}

// NewOTelMetricsWithMeter creates instruments on meter
func NewOTelMetricsWithMeter(meter metric.Meter) (*OTelMetrics, error) {
	m := &OTelMetrics{}
	var err error

	m.storeOperations, err = meter.Int64Counter(
		"gamut.store.operations",
		metric.WithDescription("Total number of document store operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create store operations counter: %w", err)
	}

	m.storeDuration, err = meter.Float64Histogram(
		"gamut.store.duration",
		metric.WithDescription("Document store operation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create store duration histogram: %w", err)
	}

	m.identityDuration, err = meter.Float64Histogram(
		"gamut.identity.duration",
		metric.WithDescription("Identity provider call duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity duration histogram: %w", err)
	}

	m.policyDecisions, err = meter.Int64Counter(
		"gamut.policy.decisions",
		metric.WithDescription("Total number of authorization decisions"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create policy decisions counter: %w", err)
	}

	m.counterAdjustments, err = meter.Int64Counter(
		"gamut.team.counter_adjustments",
		metric.WithDescription("Team member counter adjustments applied"),
		metric.WithUnit("{adjustment}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter adjustments counter: %w", err)
	}

	return m, nil
}

// RecordStoreOperation records a document store call
func (m *OTelMetrics) RecordStoreOperation(ctx context.Context, operation, backend string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("backend", backend),
		attribute.Bool("error", err != nil),
	)
	m.storeOperations.Add(ctx, 1, attrs)
	m.storeDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordIdentityOperation records an identity provider call
func (m *OTelMetrics) RecordIdentityOperation(ctx context.Context, operation, provider string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.identityDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("provider", provider),
		attribute.Bool("error", err != nil),
	))
}

// RecordDecision records an authorization decision
func (m *OTelMetrics) RecordDecision(ctx context.Context, operation, outcome string) {
	if m == nil {
		return
	}
	m.policyDecisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

// RecordCounterAdjustment records a team member counter change
func (m *OTelMetrics) RecordCounterAdjustment(ctx context.Context, delta int64, err error) {
	if m == nil {
		return
	}
	direction := "increment"
	if delta < 0 {
		direction = "decrement"
	}
	m.counterAdjustments.Add(ctx, 1, metric.WithAttributes(
		attribute.String("direction", direction),
		attribute.Bool("error", err != nil),
	))
}
