package audit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware_InjectsLoggerAndRequest(t *testing.T) {
	mock := &mockLogger{}
	handler := NewMiddleware(mock).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		event := NewEvent(r.Context(), EventTypeTeamCreate, EventStatusSuccess, Actor{ID: "u1"})
		Emit(r.Context(), FromContext(r.Context()), event)
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest("POST", "/api/teams", nil)
	req.RemoteAddr = "198.51.100.4:4444"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	events := mock.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "198.51.100.4", events[0].IPAddress)
	assert.Equal(t, "/api/teams", events[0].Path)
}

func TestMiddleware_FailedLogin(t *testing.T) {
	mock := &mockLogger{}
	handler := NewMiddleware(mock).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	for _, path := range []string{"/api/login", "/api/users"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", path, nil))
	}

	events := mock.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventTypeAuthLoginFailed, events[0].EventType)
	assert.Equal(t, EventStatusFailure, events[0].Status)
}

func TestMiddleware_NilLogger(t *testing.T) {
	handler := NewMiddleware(nil).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotNil(t, FromContext(r.Context()))
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
}
