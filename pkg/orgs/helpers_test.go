package orgs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/r3aper2020/Gamut-MGMT/pkg/audit"
	"github.com/r3aper2020/Gamut-MGMT/pkg/identity"
	"github.com/r3aper2020/Gamut-MGMT/pkg/rbac"
	"github.com/r3aper2020/Gamut-MGMT/pkg/store"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

const testPassword = "s3cret!"

// faultyStore injects errors per "op:collection" key and counts writes
type faultyStore struct {
	store.Store

	mu     sync.Mutex
	fail   map[string]error
	writes int
}

func (s *faultyStore) failOn(key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[key] = err
}

func (s *faultyStore) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = map[string]error{}
}

func (s *faultyStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *faultyStore) check(op, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[op+":"+collection]; err != nil {
		return err
	}
	if op != "get" && op != "query" {
		s.writes++
	}
	return nil
}

func (s *faultyStore) Get(ctx context.Context, collection, id string) (*store.Document, error) {
	if err := s.check("get", collection); err != nil {
		return nil, err
	}
	return s.Store.Get(ctx, collection, id)
}

func (s *faultyStore) Set(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	if err := s.check("set", collection); err != nil {
		return err
	}
	return s.Store.Set(ctx, collection, id, fields)
}

func (s *faultyStore) Create(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	if err := s.check("create", collection); err != nil {
		return err
	}
	return s.Store.Create(ctx, collection, id, fields)
}

func (s *faultyStore) Add(ctx context.Context, collection string, fields map[string]interface{}) (string, error) {
	if err := s.check("add", collection); err != nil {
		return "", err
	}
	return s.Store.Add(ctx, collection, fields)
}

func (s *faultyStore) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	if err := s.check("update", collection); err != nil {
		return err
	}
	return s.Store.Update(ctx, collection, id, fields)
}

func (s *faultyStore) Delete(ctx context.Context, collection, id string) error {
	if err := s.check("delete", collection); err != nil {
		return err
	}
	return s.Store.Delete(ctx, collection, id)
}

func (s *faultyStore) Query(ctx context.Context, collection string, filters ...store.Filter) ([]*store.Document, error) {
	if err := s.check("query", collection); err != nil {
		return nil, err
	}
	return s.Store.Query(ctx, collection, filters...)
}

func (s *faultyStore) Increment(ctx context.Context, collection, id, field string, delta int64) (int64, error) {
	if err := s.check("increment", collection); err != nil {
		return 0, err
	}
	return s.Store.Increment(ctx, collection, id, field, delta)
}

// faultyProvider injects directory errors and counts mutations
type faultyProvider struct {
	identity.Provider

	mu            sync.Mutex
	failSetClaims error
	failDelete    error
	mutations     int
}

func (p *faultyProvider) mutationCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mutations
}

func (p *faultyProvider) CreateIdentity(ctx context.Context, email, secret, displayName string) (*identity.Identity, error) {
	p.mu.Lock()
	p.mutations++
	p.mu.Unlock()
	return p.Provider.CreateIdentity(ctx, email, secret, displayName)
}

func (p *faultyProvider) SetClaims(ctx context.Context, id string, claims identity.Claims) error {
	p.mu.Lock()
	p.mutations++
	err := p.failSetClaims
	p.mu.Unlock()
	if err != nil {
		return err
	}
	return p.Provider.SetClaims(ctx, id, claims)
}

func (p *faultyProvider) DeleteIdentity(ctx context.Context, id string) error {
	p.mu.Lock()
	p.mutations++
	err := p.failDelete
	p.mu.Unlock()
	if err != nil {
		return err
	}
	return p.Provider.DeleteIdentity(ctx, id)
}

// captureAudit records emitted audit events
type captureAudit struct {
	mu     sync.Mutex
	events []*audit.Event
}

func (c *captureAudit) Log(ctx context.Context, event *audit.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *captureAudit) Close() error { return nil }

func (c *captureAudit) types() []audit.EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]audit.EventType, len(c.events))
	for i, e := range c.events {
		out[i] = e.EventType
	}
	return out
}

type testEnv struct {
	svc      *Service
	docs     *faultyStore
	local    *identity.LocalProvider
	provider *faultyProvider
	audit    *captureAudit
	ctx      context.Context
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	local, err := identity.NewLocalProvider(store.NewMemoryStore(), identity.LocalConfig{
		TokenSecret: testSecret,
		TokenTTL:    time.Hour,
		BcryptCost:  bcrypt.MinCost,
	})
	require.NoError(t, err)

	docs := &faultyStore{Store: store.NewMemoryStore(), fail: map[string]error{}}
	provider := &faultyProvider{Provider: local}
	svc, err := NewService(Config{
		Store:         docs,
		Identity:      provider,
		Authenticator: local,
	})
	require.NoError(t, err)

	capture := &captureAudit{}
	return &testEnv{
		svc:      svc,
		docs:     docs,
		local:    local,
		provider: provider,
		audit:    capture,
		ctx:      audit.WithLogger(context.Background(), capture),
	}
}

// signIn resolves a caller the way the HTTP layer does
func (e *testEnv) signIn(t *testing.T, email string) rbac.Subject {
	t.Helper()
	session, err := e.svc.SignIn(e.ctx, email, testPassword)
	require.NoError(t, err)
	caller, err := e.svc.ResolveCaller(e.ctx, session.Token)
	require.NoError(t, err)
	return caller
}

// acme registers alice as owner of Acme and returns her refreshed caller and the org
func (e *testEnv) acme(t *testing.T) (rbac.Subject, *Organization) {
	t.Helper()
	alice, err := e.svc.Signup(e.ctx, SignupRequest{Email: "alice@x.com", Password: testPassword, DisplayName: "Alice"})
	require.NoError(t, err)
	org, err := e.svc.CreateOrganization(e.ctx, alice.Subject(), CreateOrganizationRequest{
		Name:     "Acme",
		Timezone: "UTC",
		Currency: "USD",
	})
	require.NoError(t, err)
	return e.signIn(t, "alice@x.com"), org
}

func (e *testEnv) createUser(t *testing.T, caller rbac.Subject, email, role, teamID string) *User {
	t.Helper()
	u, err := e.svc.CreateUser(e.ctx, caller, CreateUserRequest{
		Email:       email,
		Password:    testPassword,
		DisplayName: email,
		Role:        role,
		TeamID:      teamID,
	})
	require.NoError(t, err)
	return u
}

func (e *testEnv) memberCount(t *testing.T, teamID string) int64 {
	t.Helper()
	doc, err := e.docs.Store.Get(context.Background(), store.CollectionTeams, teamID)
	require.NoError(t, err)
	return doc.Int(fieldMemberCount)
}

func (e *testEnv) record(t *testing.T, uid string) *User {
	t.Helper()
	u, err := e.svc.loadUser(context.Background(), uid)
	require.NoError(t, err)
	return u
}

func requireKind(t *testing.T, err error, kind rbac.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, rbac.KindOf(err), "unexpected error: %v", err)
}
