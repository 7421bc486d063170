// Package contextkeys provides context key definitions shared by the HTTP
// layer and the handlers it wraps.
//
// USAGE PATTERN:
//
//	ctx = contextkeys.WithCaller(ctx, subject)
//	caller, ok := contextkeys.Caller(ctx)
package contextkeys

import (
	"context"

	"github.com/r3aper2020/Gamut-MGMT/pkg/rbac"
)

// Key is the type for context keys to prevent collisions
type Key string

const (
	// CallerKey contains the verified rbac.Subject
	// Set by: middleware.AuthMiddleware (pkg/middleware/auth.go)
	// Required by: every authenticated endpoint
	CallerKey Key = "caller"

	// CredentialKey contains the raw bearer credential
	// Set by: middleware.AuthMiddleware
	CredentialKey Key = "credential"
)

// WithCaller adds the verified caller to the context
func WithCaller(ctx context.Context, caller rbac.Subject) context.Context {
	return context.WithValue(ctx, CallerKey, caller)
}

// Caller retrieves the verified caller
func Caller(ctx context.Context) (rbac.Subject, bool) {
	caller, ok := ctx.Value(CallerKey).(rbac.Subject)
	return caller, ok
}

// WithCredential adds the raw bearer credential to the context
func WithCredential(ctx context.Context, credential string) context.Context {
	return context.WithValue(ctx, CredentialKey, credential)
}

// Credential retrieves the raw bearer credential
func Credential(ctx context.Context) string {
	if c, ok := ctx.Value(CredentialKey).(string); ok {
		return c
	}
	return ""
}
