package identity

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/r3aper2020/Gamut-MGMT/pkg/observability"
)

type instrumented struct {
	next    Provider
	name    string
	metrics *observability.Metrics
	otel    *observability.OTelMetrics
}

// Instrument wraps a provider with metrics and spans. metrics and otelMetrics may be nil.
func Instrument(next Provider, name string, metrics *observability.Metrics, otelMetrics *observability.OTelMetrics) Provider {
	return &instrumented{next: next, name: name, metrics: metrics, otel: otelMetrics}
}

func (p *instrumented) observe(ctx context.Context, op string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "identity."+op, trace.WithAttributes(
		attribute.String("identity.provider", p.name),
	))
	return ctx, func(err error) {
		d := time.Since(start)
		p.metrics.RecordIdentityOperation(op, p.name, err, d)
		p.otel.RecordIdentityOperation(ctx, op, p.name, d, err)
		observability.EndSpan(span, err)
	}
}

func (p *instrumented) Verify(ctx context.Context, credential string) (*Identity, error) {
	ctx, done := p.observe(ctx, "verify")
	ident, err := p.next.Verify(ctx, credential)
	done(err)
	return ident, err
}

func (p *instrumented) CreateIdentity(ctx context.Context, email, secret, displayName string) (*Identity, error) {
	ctx, done := p.observe(ctx, "create_identity")
	ident, err := p.next.CreateIdentity(ctx, email, secret, displayName)
	done(err)
	return ident, err
}

func (p *instrumented) SetClaims(ctx context.Context, id string, claims Claims) error {
	ctx, done := p.observe(ctx, "set_claims")
	err := p.next.SetClaims(ctx, id, claims)
	done(err)
	return err
}

func (p *instrumented) GetIdentity(ctx context.Context, id string) (*Identity, error) {
	ctx, done := p.observe(ctx, "get_identity")
	ident, err := p.next.GetIdentity(ctx, id)
	done(err)
	return ident, err
}

func (p *instrumented) DeleteIdentity(ctx context.Context, id string) error {
	ctx, done := p.observe(ctx, "delete_identity")
	err := p.next.DeleteIdentity(ctx, id)
	done(err)
	return err
}
