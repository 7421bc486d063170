package httputil

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3aper2020/Gamut-MGMT/pkg/observability"
	"github.com/r3aper2020/Gamut-MGMT/pkg/rbac"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"message": "success"}

	err := WriteJSON(w, http.StatusOK, data)

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "success")
}

func TestWriteHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(w http.ResponseWriter)
		status int
		body   string
	}{
		{"error message", func(w http.ResponseWriter) { WriteErrorMessage(w, http.StatusConflict, "conflict") }, http.StatusConflict, `{"error":"conflict"}`},
		{"bad request", func(w http.ResponseWriter) { WriteBadRequest(w, "invalid input") }, http.StatusBadRequest, `{"error":"invalid input"}`},
		{"unauthorized", func(w http.ResponseWriter) { WriteUnauthorized(w, "no token provided") }, http.StatusUnauthorized, `{"error":"no token provided"}`},
		{"not found", func(w http.ResponseWriter) { WriteNotFound(w, "user not found") }, http.StatusNotFound, `{"error":"user not found"}`},
		{"too many requests", func(w http.ResponseWriter) { WriteTooManyRequests(w, "slow down") }, http.StatusTooManyRequests, `{"error":"slow down"}`},
		{"message", func(w http.ResponseWriter) { _ = WriteMessage(w, "User deleted") }, http.StatusOK, `{"message":"User deleted"}`},
		{"created", func(w http.ResponseWriter) { _ = WriteCreated(w, map[string]string{"id": "t1"}) }, http.StatusCreated, `{"id":"t1"}`},
		{"success", func(w http.ResponseWriter) { _ = WriteSuccess(w, []string{}) }, http.StatusOK, `[]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)
			assert.Equal(t, tt.status, w.Code)
			assert.JSONEq(t, tt.body, w.Body.String())
		})
	}
}

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"authentication", rbac.Authentication("invalid token"), http.StatusUnauthorized, `{"error":"invalid token"}`},
		{"authorization", rbac.Authorization("admin access required"), http.StatusForbidden, `{"error":"admin access required"}`},
		{"not found", rbac.NotFound("team not found"), http.StatusNotFound, `{"error":"team not found"}`},
		{"validation", rbac.Validation("name is required"), http.StatusBadRequest, `{"error":"name is required"}`},
		{
			"assignment denial with roles",
			rbac.AssignmentDenied("cannot assign role admin", []rbac.Role{rbac.RoleLead, rbac.RoleMember}),
			http.StatusForbidden,
			`{"error":"cannot assign role admin","allowed":["lead","member"]}`,
		},
		{
			"assignment denial with no roles",
			rbac.AssignmentDenied("cannot assign role admin", nil),
			http.StatusForbidden,
			`{"error":"cannot assign role admin","allowed":[]}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteServiceError(w, httptest.NewRequest(http.MethodGet, "/api/users", nil), tt.err)
			assert.Equal(t, tt.status, w.Code)
			assert.JSONEq(t, tt.body, w.Body.String())
		})
	}
}

func TestWriteServiceErrorMasksInfrastructure(t *testing.T) {
	var logs bytes.Buffer
	logger := observability.NewLogger(observability.DebugLevel, &logs)
	req := httptest.NewRequest(http.MethodDelete, "/api/admin/users/u1", nil)
	req = req.WithContext(observability.WithLogger(req.Context(), logger))

	for _, err := range []error{
		rbac.Infrastructure("failed to delete identity", errors.New("connection refused")),
		errors.New("connection refused"),
	} {
		w := httptest.NewRecorder()
		WriteServiceError(w, req, err)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		var body ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "internal server error", body.Error)
		assert.Nil(t, body.Allowed)
		assert.NotContains(t, w.Body.String(), "connection refused")
	}
	assert.Contains(t, logs.String(), "connection refused")
	assert.Contains(t, logs.String(), "request failed")
}
