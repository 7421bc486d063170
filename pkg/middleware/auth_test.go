package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3aper2020/Gamut-MGMT/pkg/contextkeys"
	"github.com/r3aper2020/Gamut-MGMT/pkg/rbac"
)

type stubResolver struct {
	callers map[string]rbac.Subject
	err     error
}

func (s *stubResolver) ResolveCaller(ctx context.Context, credential string) (rbac.Subject, error) {
	if s.err != nil {
		return rbac.Subject{}, s.err
	}
	caller, ok := s.callers[credential]
	if !ok {
		return rbac.Subject{}, rbac.Authentication("invalid token")
	}
	return caller, nil
}

func echoCaller(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := GetCaller(r)
		require.True(t, ok)
		assert.NotEmpty(t, contextkeys.Credential(r.Context()))
		_ = json.NewEncoder(w).Encode(caller)
	})
}

func TestAuthMiddleware(t *testing.T) {
	resolver := &stubResolver{callers: map[string]rbac.Subject{
		"good": {ID: "u1", Role: rbac.RoleAdmin, OrganizationID: "o1"},
	}}
	handler := NewAuthMiddleware(resolver).Handler(echoCaller(t))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic good", http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
		{"unknown token", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "Bearer good", http.StatusOK},
		{"scheme is case insensitive", "bearer good", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestAuthMiddlewareStoresCaller(t *testing.T) {
	resolver := &stubResolver{callers: map[string]rbac.Subject{
		"good": {ID: "u1", Role: rbac.RoleAdmin, OrganizationID: "o1", TeamID: "t1"},
	}}
	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	NewAuthMiddleware(resolver).Handler(echoCaller(t)).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var got rbac.Subject
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "u1", got.ID)
	assert.Equal(t, "t1", got.TeamID)
}

func TestAuthMiddlewareHidesInfrastructureErrors(t *testing.T) {
	resolver := &stubResolver{err: rbac.Infrastructure("failed to verify credential", assert.AnError)}
	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.Header.Set("Authorization", "Bearer anything")
	w := httptest.NewRecorder()
	NewAuthMiddleware(resolver).Handler(echoCaller(t)).ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), assert.AnError.Error())
}
