package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/r3aper2020/Gamut-MGMT/pkg/contextkeys"
	"github.com/r3aper2020/Gamut-MGMT/pkg/httputil"
	"github.com/r3aper2020/Gamut-MGMT/pkg/observability"
	"github.com/r3aper2020/Gamut-MGMT/pkg/rbac"
)

// CallerResolver turns a bearer credential into a verified caller
type CallerResolver interface {
	ResolveCaller(ctx context.Context, credential string) (rbac.Subject, error)
}

// AuthMiddleware requires a valid bearer credential on every request
type AuthMiddleware struct {
	resolver CallerResolver
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(resolver CallerResolver) *AuthMiddleware {
	return &AuthMiddleware{resolver: resolver}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		credential, ok := bearerToken(r)
		if !ok {
			httputil.WriteUnauthorized(w, "no token provided")
			return
		}

		caller, err := m.resolver.ResolveCaller(r.Context(), credential)
		if err != nil {
			httputil.WriteServiceError(w, r, err)
			return
		}

		ctx := contextkeys.WithCaller(r.Context(), caller)
		ctx = contextkeys.WithCredential(ctx, credential)
		ctx = observability.WithUserID(ctx, caller.ID)
		if caller.OrganizationID != "" {
			ctx = observability.WithOrganizationID(ctx, caller.OrganizationID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken extracts the credential from "Authorization: Bearer <token>"
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// GetCaller extracts the verified caller from a request
func GetCaller(r *http.Request) (rbac.Subject, bool) {
	return contextkeys.Caller(r.Context())
}
