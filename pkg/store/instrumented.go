package store

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/r3aper2020/Gamut-MGMT/pkg/observability"
)

// InstrumentedStore records metrics and spans around every call of a Store
type InstrumentedStore struct {
	next    Store
	backend string
	metrics *observability.Metrics
	otel    *observability.OTelMetrics
}

// Instrument wraps next. metrics and otelMetrics may be nil.
func Instrument(next Store, backend string, metrics *observability.Metrics, otelMetrics *observability.OTelMetrics) *InstrumentedStore {
	return &InstrumentedStore{next: next, backend: backend, metrics: metrics, otel: otelMetrics}
}

// Unwrap returns the wrapped store
func (s *InstrumentedStore) Unwrap() Store {
	return s.next
}

func (s *InstrumentedStore) observe(ctx context.Context, op, collection string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "store."+op, trace.WithAttributes(
		attribute.String("store.backend", s.backend),
		attribute.String("store.collection", collection),
	))
	return ctx, func(err error) {
		d := time.Since(start)
		// Expected outcomes are not recorded as failures.
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyExists) {
			span.SetAttributes(attribute.String("store.outcome", errorType(err)))
			err = nil
		}
		s.metrics.RecordStoreOperation(op, s.backend, err, errorType(err), d)
		s.otel.RecordStoreOperation(ctx, op, s.backend, d, err)
		observability.EndSpan(span, err)
	}
}

func errorType(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrInvalidField):
		return "invalid_field"
	case errors.Is(err, ErrNotANumber):
		return "not_a_number"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "backend"
	}
}

func (s *InstrumentedStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	ctx, done := s.observe(ctx, "get", collection)
	doc, err := s.next.Get(ctx, collection, id)
	done(err)
	return doc, err
}

func (s *InstrumentedStore) Set(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	ctx, done := s.observe(ctx, "set", collection)
	err := s.next.Set(ctx, collection, id, fields)
	done(err)
	return err
}

func (s *InstrumentedStore) Create(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	ctx, done := s.observe(ctx, "create", collection)
	err := s.next.Create(ctx, collection, id, fields)
	done(err)
	return err
}

func (s *InstrumentedStore) Add(ctx context.Context, collection string, fields map[string]interface{}) (string, error) {
	ctx, done := s.observe(ctx, "add", collection)
	id, err := s.next.Add(ctx, collection, fields)
	done(err)
	return id, err
}

func (s *InstrumentedStore) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	ctx, done := s.observe(ctx, "update", collection)
	err := s.next.Update(ctx, collection, id, fields)
	done(err)
	return err
}

func (s *InstrumentedStore) Delete(ctx context.Context, collection, id string) error {
	ctx, done := s.observe(ctx, "delete", collection)
	err := s.next.Delete(ctx, collection, id)
	done(err)
	return err
}

func (s *InstrumentedStore) Query(ctx context.Context, collection string, filters ...Filter) ([]*Document, error) {
	ctx, done := s.observe(ctx, "query", collection)
	docs, err := s.next.Query(ctx, collection, filters...)
	done(err)
	return docs, err
}

func (s *InstrumentedStore) Increment(ctx context.Context, collection, id, field string, delta int64) (int64, error) {
	ctx, done := s.observe(ctx, "increment", collection)
	value, err := s.next.Increment(ctx, collection, id, field, delta)
	done(err)
	return value, err
}

func (s *InstrumentedStore) Ping(ctx context.Context) error {
	ctx, done := s.observe(ctx, "ping", "")
	err := s.next.Ping(ctx)
	done(err)
	return err
}

func (s *InstrumentedStore) Close() error {
	return s.next.Close()
}
