package orgs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/r3aper2020/Gamut-MGMT/pkg/audit"
	"github.com/r3aper2020/Gamut-MGMT/pkg/identity"
	"github.com/r3aper2020/Gamut-MGMT/pkg/observability"
	"github.com/r3aper2020/Gamut-MGMT/pkg/rbac"
	"github.com/r3aper2020/Gamut-MGMT/pkg/store"
)

// Config wires the service to its collaborators
type Config struct {
	Store    store.Store
	Identity identity.Provider
	// Authenticator enables password sign-in. Optional.
	Authenticator identity.Authenticator
	Engine        *rbac.Engine
	Metrics       *observability.Metrics
	OTel          *observability.OTelMetrics
}

// Service implements organization, team and user management. Every mutation
// is gated by the policy engine before any write happens.
type Service struct {
	store      store.Store
	identities identity.Provider
	auth       identity.Authenticator
	engine     *rbac.Engine
	metrics    *observability.Metrics
	otel       *observability.OTelMetrics
	now        func() time.Time
}

// NewService creates a new Service
func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Identity == nil {
		return nil, fmt.Errorf("identity provider is required")
	}
	engine := cfg.Engine
	if engine == nil {
		engine = rbac.NewEngine(nil)
	}
	return &Service{
		store:      cfg.Store,
		identities: cfg.Identity,
		auth:       cfg.Authenticator,
		engine:     engine,
		metrics:    cfg.Metrics,
		otel:       cfg.OTel,
		now:        time.Now,
	}, nil
}

// Engine returns the policy engine
func (s *Service) Engine() *rbac.Engine {
	return s.engine
}

// Ping checks the document store
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Health reports liveness of the service itself
func (s *Service) Health() map[string]string {
	return map[string]string{"status": "ok", "message": "Backend is running"}
}

// startSpan opens a span for a service operation
func (s *Service) startSpan(ctx context.Context, op string, caller rbac.Subject) (context.Context, trace.Span) {
	ctx, span := observability.StartSpan(ctx, "orgs."+op)
	span.SetAttributes(attribute.String("orgs.operation", op))
	if caller.ID != "" {
		span.SetAttributes(
			attribute.String("caller.id", caller.ID),
			attribute.String("caller.role", string(caller.Role)),
		)
		ctx = observability.WithUserID(ctx, caller.ID)
	}
	if caller.OrganizationID != "" {
		ctx = observability.WithOrganizationID(ctx, caller.OrganizationID)
	}
	return ctx, span
}

// decide records a policy outcome and emits an audit event for denials
func (s *Service) decide(ctx context.Context, op string, caller rbac.Subject, err error) error {
	outcome := "allow"
	if err != nil {
		outcome = "deny"
	}
	s.metrics.RecordDecision(op, outcome)
	s.otel.RecordDecision(ctx, op, outcome)

	if rbac.IsKind(err, rbac.KindAuthorization) {
		event := audit.NewEvent(ctx, audit.EventTypeAuthzAccessDenied, audit.EventStatusDenied, actorOf(caller)).
			WithMessage(err.Error()).
			WithMetadata("operation", op)
		s.emit(ctx, event)
	}
	return err
}

func (s *Service) emit(ctx context.Context, event *audit.Event) {
	audit.Emit(ctx, audit.FromContext(ctx), event)
}

func actorOf(caller rbac.Subject) audit.Actor {
	return audit.Actor{
		ID:             caller.ID,
		Email:          caller.Email,
		Role:           string(caller.Role),
		OrganizationID: caller.OrganizationID,
	}
}

// adjustCounters applies team member count deltas. Failures are logged and never returned.
func (s *Service) adjustCounters(ctx context.Context, op string, deltas []rbac.CounterDelta) {
	for _, d := range deltas {
		_, err := s.store.Increment(ctx, store.CollectionTeams, d.TeamID, fieldMemberCount, d.Delta)
		s.otel.RecordCounterAdjustment(ctx, d.Delta, err)
		if err != nil {
			s.metrics.RecordCounterFailure(op)
			observability.FromContext(ctx).
				WithError(err).
				WithFields(map[string]interface{}{"team_id": d.TeamID, "delta": d.Delta, "operation": op}).
				Warn("team member count update failed")
		}
	}
}

// compensateIdentity removes an identity created earlier in a failed operation
func (s *Service) compensateIdentity(ctx context.Context, op, identityID string) {
	ctx = context.WithoutCancel(ctx)
	if err := s.identities.DeleteIdentity(ctx, identityID); err != nil && !errors.Is(err, identity.ErrNotFound) {
		s.metrics.RecordCompensationFailure(op, "delete_identity")
		observability.FromContext(ctx).
			WithError(err).
			WithFields(map[string]interface{}{"identity_id": identityID, "operation": op}).
			Error("failed to remove identity after partial failure; left for reconciliation")
	}
}

// compensateDocument removes a document created earlier in a failed operation
func (s *Service) compensateDocument(ctx context.Context, op, collection, id string) {
	ctx = context.WithoutCancel(ctx)
	if err := s.store.Delete(ctx, collection, id); err != nil {
		s.metrics.RecordCompensationFailure(op, "delete_"+collection)
		observability.FromContext(ctx).
			WithError(err).
			WithFields(map[string]interface{}{"collection": collection, "id": id, "operation": op}).
			Error("failed to remove document after partial failure")
	}
}

// identityError maps directory failures onto the service taxonomy
func identityError(err error, msg string) error {
	switch {
	case errors.Is(err, identity.ErrEmailExists):
		return rbac.Validation("an account with this email already exists")
	case errors.Is(err, identity.ErrInvalidInput):
		return rbac.Validation(err.Error())
	case errors.Is(err, identity.ErrNotFound):
		return rbac.NotFound("user not found")
	default:
		return rbac.Infrastructure(msg, err)
	}
}

func (s *Service) loadUser(ctx context.Context, id string) (*User, error) {
	if id == "" {
		return nil, rbac.NotFound("user not found")
	}
	doc, err := s.store.Get(ctx, store.CollectionUsers, id)
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidField) {
		return nil, rbac.NotFound("user not found")
	}
	if err != nil {
		return nil, rbac.Infrastructure("failed to load user", err)
	}
	u, err := userFromDoc(doc)
	if err != nil {
		return nil, rbac.Infrastructure("failed to load user", err)
	}
	return u, nil
}

// loadTeam returns a team that belongs to orgID, or NotFound
func (s *Service) loadTeam(ctx context.Context, orgID, id string) (*Team, error) {
	if id == "" {
		return nil, rbac.NotFound("team not found")
	}
	doc, err := s.store.Get(ctx, store.CollectionTeams, id)
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidField) {
		return nil, rbac.NotFound("team not found")
	}
	if err != nil {
		return nil, rbac.Infrastructure("failed to load team", err)
	}
	team, err := teamFromDoc(doc)
	if err != nil {
		return nil, rbac.Infrastructure("failed to load team", err)
	}
	if team.OrganizationID != orgID {
		return nil, rbac.NotFound("team not found")
	}
	return team, nil
}

// generalTeam returns the organization's default team, or nil if it has none
func (s *Service) generalTeam(ctx context.Context, orgID string) (*Team, error) {
	docs, err := s.store.Query(ctx, store.CollectionTeams,
		store.Eq(fieldOrganizationID, orgID),
		store.Eq(fieldIsDefault, true),
	)
	if err != nil {
		return nil, rbac.Infrastructure("failed to look up default team", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	team, err := teamFromDoc(docs[0])
	if err != nil {
		return nil, rbac.Infrastructure("failed to look up default team", err)
	}
	return team, nil
}
