package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// OIDCConfig configures verification of ID tokens from an external issuer
type OIDCConfig struct {
	IssuerURL       string
	ClientID        string
	ClientSecret    string
	RedirectURL     string
	Scopes          []string
	SkipIssuerCheck bool
}

// Validate checks the configuration
func (c *OIDCConfig) Validate() error {
	if c.IssuerURL == "" {
		return fmt.Errorf("issuer_url is required")
	}
	if c.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	if c.RedirectURL != "" && c.ClientSecret == "" {
		return fmt.Errorf("client_secret is required for the login flow")
	}
	return nil
}

// EmailLinker resolves a verified email to a directory identity
type EmailLinker interface {
	LookupEmail(ctx context.Context, email string) (*Identity, error)
}

type oidcClaims struct {
	Email          string `json:"email"`
	EmailVerified  *bool  `json:"email_verified"`
	Name           string `json:"name"`
	Role           string `json:"role"`
	OrganizationID string `json:"organizationId"`
	TeamID         string `json:"teamId"`
}

// OIDCVerifier verifies ID tokens issued by an OpenID Connect provider and
// maps their subjects onto directory identities by verified email
type OIDCVerifier struct {
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config
	linker       EmailLinker
}

// NewOIDCVerifier discovers the issuer and builds a verifier
func NewOIDCVerifier(ctx context.Context, cfg OIDCConfig, linker EmailLinker) (*OIDCVerifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	v := &OIDCVerifier{
		verifier: provider.Verifier(&oidc.Config{
			ClientID:        cfg.ClientID,
			SkipIssuerCheck: cfg.SkipIssuerCheck,
		}),
		linker: linker,
	}

	if cfg.RedirectURL != "" {
		scopes := cfg.Scopes
		if len(scopes) == 0 {
			scopes = []string{oidc.ScopeOpenID, "profile", "email"}
		}
		v.oauth2Config = &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
		}
	}
	return v, nil
}

// NewOIDCVerifierWithKeySet builds a verifier from a fixed key set without discovery
func NewOIDCVerifierWithKeySet(issuer, clientID string, keys oidc.KeySet, linker EmailLinker) *OIDCVerifier {
	return &OIDCVerifier{
		verifier: oidc.NewVerifier(issuer, keys, &oidc.Config{ClientID: clientID}),
		linker:   linker,
	}
}

// Verify checks an ID token and resolves it to an identity
func (v *OIDCVerifier) Verify(ctx context.Context, credential string) (*Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, ErrInvalidCredential
	}

	token, err := v.verifier.Verify(ctx, credential)
	if err != nil {
		var expired *oidc.TokenExpiredError
		if errors.As(err, &expired) {
			return nil, ErrExpiredCredential
		}
		return nil, ErrInvalidCredential
	}

	var claims oidcClaims
	if err := token.Claims(&claims); err != nil {
		return nil, ErrInvalidCredential
	}

	ident := &Identity{
		ID:          token.Subject,
		Email:       strings.ToLower(claims.Email),
		DisplayName: claims.Name,
		Claims: Claims{
			Role:           claims.Role,
			OrganizationID: claims.OrganizationID,
			TeamID:         claims.TeamID,
		},
	}

	if v.linker == nil || ident.Email == "" {
		return ident, nil
	}
	if claims.EmailVerified != nil && !*claims.EmailVerified {
		return nil, fmt.Errorf("%w: email not verified", ErrInvalidCredential)
	}

	linked, err := v.linker.LookupEmail(ctx, ident.Email)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: no account for %s", ErrInvalidCredential, ident.Email)
	}
	if err != nil {
		return nil, err
	}
	return linked, nil
}

// LoginEnabled reports whether the authorization code flow is configured
func (v *OIDCVerifier) LoginEnabled() bool {
	return v.oauth2Config != nil
}

// AuthCodeURL returns the issuer's authorization URL
func (v *OIDCVerifier) AuthCodeURL(state string) (string, error) {
	if v.oauth2Config == nil {
		return "", errors.New("OIDC login flow is not configured")
	}
	return v.oauth2Config.AuthCodeURL(state), nil
}

// Exchange trades an authorization code for a verified raw ID token
func (v *OIDCVerifier) Exchange(ctx context.Context, code string) (string, error) {
	if v.oauth2Config == nil {
		return "", errors.New("OIDC login flow is not configured")
	}
	if code == "" {
		return "", fmt.Errorf("%w: missing authorization code", ErrInvalidCredential)
	}

	tok, err := v.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("failed to exchange token: %w", err)
	}
	raw, ok := tok.Extra("id_token").(string)
	if !ok {
		return "", fmt.Errorf("%w: missing id_token in response", ErrInvalidCredential)
	}
	if _, err := v.verifier.Verify(ctx, raw); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	return raw, nil
}
