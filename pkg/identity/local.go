package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/r3aper2020/Gamut-MGMT/pkg/ids"
	"github.com/r3aper2020/Gamut-MGMT/pkg/store"
)

const (
	collectionIdentities = "identities"
	collectionEmails     = "identity_emails"

	defaultMinSecretLength = 6
	maxDisplayNameLength   = 256
)

// LocalConfig configures a LocalProvider
type LocalConfig struct {
	TokenSecret     []byte
	Issuer          string
	TokenTTL        time.Duration
	BcryptCost      int
	MinSecretLength int
}

// LocalProvider is an identity provider backed by the document store.
// Each identity is a document in "identities"; a second document keyed by a
// hash of the email reserves the address so concurrent sign-ups cannot share it.
type LocalProvider struct {
	store     store.Store
	tokens    *TokenIssuer
	cost      int
	minSecret int

	dummyOnce sync.Once
	dummy     string
}

type identityRecord struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	SecretHash  string `json:"secretHash"`
	Claims      Claims `json:"claims"`
}

// NewLocalProvider creates a store-backed provider
func NewLocalProvider(st store.Store, cfg LocalConfig) (*LocalProvider, error) {
	ttl := cfg.TokenTTL
	if ttl == 0 {
		ttl = time.Hour
	}
	tokens, err := NewTokenIssuer(cfg.TokenSecret, cfg.Issuer, ttl)
	if err != nil {
		return nil, err
	}
	minSecret := cfg.MinSecretLength
	if minSecret <= 0 {
		minSecret = defaultMinSecretLength
	}
	return &LocalProvider{store: st, tokens: tokens, cost: cfg.BcryptCost, minSecret: minSecret}, nil
}

// Tokens returns the issuer used for local credentials
func (p *LocalProvider) Tokens() *TokenIssuer {
	return p.tokens
}

func (p *LocalProvider) dummyHash() string {
	p.dummyOnce.Do(func() {
		p.dummy, _ = HashSecret(ids.New(), p.cost)
	})
	return p.dummy
}

func emailKey(email string) string {
	sum := sha256.Sum256([]byte(email))
	return hex.EncodeToString(sum[:])
}

// CreateIdentity registers a new account
func (p *LocalProvider) CreateIdentity(ctx context.Context, email, secret, displayName string) (*Identity, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if len(secret) < p.minSecret {
		return nil, fmt.Errorf("%w: secret must be at least %d characters", ErrInvalidInput, p.minSecret)
	}
	displayName = strings.TrimSpace(displayName)
	if len(displayName) > maxDisplayNameLength {
		return nil, fmt.Errorf("%w: display name too long", ErrInvalidInput)
	}

	hash, err := HashSecret(secret, p.cost)
	if err != nil {
		return nil, err
	}

	id := ids.NewLower()
	key := emailKey(email)
	if err := p.store.Create(ctx, collectionEmails, key, map[string]interface{}{"uid": id}); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("failed to reserve email: %w", err)
	}

	fields, err := store.Fields(identityRecord{Email: email, DisplayName: displayName, SecretHash: hash})
	if err != nil {
		return nil, err
	}
	if err := p.store.Create(ctx, collectionIdentities, id, fields); err != nil {
		_ = p.store.Delete(ctx, collectionEmails, key)
		return nil, fmt.Errorf("failed to create identity: %w", err)
	}

	return &Identity{ID: id, Email: email, DisplayName: displayName, CreatedAt: time.Now().UTC()}, nil
}

// SetClaims replaces the custom claims of an identity
func (p *LocalProvider) SetClaims(ctx context.Context, id string, claims Claims) error {
	fields, err := store.Fields(claims)
	if err != nil {
		return err
	}
	err = p.store.Update(ctx, collectionIdentities, id, map[string]interface{}{"claims": fields})
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidField) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to set claims: %w", err)
	}
	return nil
}

// GetIdentity returns an identity with its current claims
func (p *LocalProvider) GetIdentity(ctx context.Context, id string) (*Identity, error) {
	rec, doc, err := p.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Identity{
		ID:          id,
		Email:       rec.Email,
		DisplayName: rec.DisplayName,
		Claims:      rec.Claims,
		CreatedAt:   doc.CreatedAt,
	}, nil
}

// DeleteIdentity removes an identity and releases its email
func (p *LocalProvider) DeleteIdentity(ctx context.Context, id string) error {
	rec, _, err := p.load(ctx, id)
	if err != nil {
		return err
	}
	if err := p.store.Delete(ctx, collectionIdentities, id); err != nil {
		return fmt.Errorf("failed to delete identity: %w", err)
	}
	if err := p.store.Delete(ctx, collectionEmails, emailKey(rec.Email)); err != nil {
		return fmt.Errorf("failed to release email: %w", err)
	}
	return nil
}

// LookupEmail returns the identity registered under an email
func (p *LocalProvider) LookupEmail(ctx context.Context, email string) (*Identity, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, ErrNotFound
	}
	doc, err := p.store.Get(ctx, collectionEmails, emailKey(email))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up email: %w", err)
	}
	return p.GetIdentity(ctx, doc.String("uid"))
}

// SignIn checks an email and secret and issues a token
func (p *LocalProvider) SignIn(ctx context.Context, email, secret string) (*Session, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, ErrInvalidCredential
	}
	doc, err := p.store.Get(ctx, collectionEmails, emailKey(email))
	if errors.Is(err, store.ErrNotFound) {
		// Unknown emails take as long as wrong secrets.
		_ = CheckSecret(p.dummyHash(), secret)
		return nil, ErrInvalidCredential
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up email: %w", err)
	}

	id := doc.String("uid")
	rec, identityDoc, err := p.load(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredential
	}
	if err != nil {
		return nil, err
	}
	if err := CheckSecret(rec.SecretHash, secret); err != nil {
		return nil, err
	}

	ident := &Identity{
		ID:          id,
		Email:       rec.Email,
		DisplayName: rec.DisplayName,
		Claims:      rec.Claims,
		CreatedAt:   identityDoc.CreatedAt,
	}
	token, expires, err := p.tokens.Issue(ident)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: expires, Identity: ident}, nil
}

// Verify checks a locally issued token
func (p *LocalProvider) Verify(ctx context.Context, credential string) (*Identity, error) {
	return p.tokens.Verify(ctx, credential)
}

// ListIdentityIDs returns the ids of every registered identity
func (p *LocalProvider) ListIdentityIDs(ctx context.Context) ([]string, error) {
	docs, err := p.store.Query(ctx, collectionIdentities)
	if err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out, nil
}

// Ping checks the backing store
func (p *LocalProvider) Ping(ctx context.Context) error {
	return p.store.Ping(ctx)
}

func (p *LocalProvider) load(ctx context.Context, id string) (*identityRecord, *store.Document, error) {
	doc, err := p.store.Get(ctx, collectionIdentities, id)
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidField) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get identity: %w", err)
	}
	var rec identityRecord
	if err := doc.Decode(&rec); err != nil {
		return nil, nil, err
	}
	return &rec, doc, nil
}
