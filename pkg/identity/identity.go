package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

var (
	// ErrInvalidCredential is returned for malformed, forged or unknown credentials
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrExpiredCredential is returned for credentials past their expiry
	ErrExpiredCredential = errors.New("credential expired")
	// ErrNotFound is returned when an identity does not exist
	ErrNotFound = errors.New("identity not found")
	// ErrEmailExists is returned when creating an identity with a taken email
	ErrEmailExists = errors.New("email already in use")
	// ErrInvalidInput is returned for malformed email, secret or display name
	ErrInvalidInput = errors.New("invalid identity input")
)

// Claims are the custom attributes attached to an identity
type Claims struct {
	Role           string `json:"role,omitempty"`
	OrganizationID string `json:"organizationId,omitempty"`
	TeamID         string `json:"teamId,omitempty"`
}

// Identity is an account known to the identity provider
type Identity struct {
	ID          string    `json:"uid"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName,omitempty"`
	Claims      Claims    `json:"claims"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
}

// Verifier checks bearer credentials
type Verifier interface {
	// Verify returns the identity named by a credential. Claims reflect the
	// credential's contents, which may be stale; use Directory.GetIdentity for
	// the current values.
	Verify(ctx context.Context, credential string) (*Identity, error)
}

// Directory manages accounts and their claims
type Directory interface {
	CreateIdentity(ctx context.Context, email, secret, displayName string) (*Identity, error)
	SetClaims(ctx context.Context, id string, claims Claims) error
	GetIdentity(ctx context.Context, id string) (*Identity, error)
	DeleteIdentity(ctx context.Context, id string) error
}

// Provider is a complete identity provider
type Provider interface {
	Verifier
	Directory
}

// Session is an issued credential
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Identity  *Identity `json:"user"`
}

// Authenticator exchanges an email and secret for a credential
type Authenticator interface {
	SignIn(ctx context.Context, email, secret string) (*Session, error)
}

type composite struct {
	Verifier
	Directory
}

// Compose builds a Provider from a separate verifier and directory
func Compose(v Verifier, d Directory) Provider {
	return composite{Verifier: v, Directory: d}
}

// NormalizeEmail lowercases and validates an email address
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	}
	return email, nil
}
