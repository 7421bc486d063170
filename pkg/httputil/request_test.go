package httputil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type teamBody struct {
	Name      string `json:"name"`
	Specialty string `json:"specialty"`
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    teamBody
		wantErr string
	}{
		{name: "valid", body: `{"name":"Sales","specialty":"Roofing"}`, want: teamBody{Name: "Sales", Specialty: "Roofing"}},
		{name: "empty body", body: "", want: teamBody{Name: "unchanged"}},
		{name: "malformed", body: `{"name":`, wantErr: "invalid JSON"},
		{name: "trailing value", body: `{"name":"a"} {"name":"b"}`, wantErr: "unexpected data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			body := teamBody{Name: "unchanged"}
			err := DecodeJSON(req, &body)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, body)
		})
	}
}

func TestBindJSON(t *testing.T) {
	t.Run("malformed is a bad request", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`not json`))
		var body teamBody

		assert.False(t, BindJSON(w, req, &body))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("oversized body is rejected with 413", func(t *testing.T) {
		handler := MaxBytesMiddleware(16)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body teamBody
			if BindJSON(w, r, &body) {
				w.WriteHeader(http.StatusNoContent)
			}
		}))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a very long team name"}`)))
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Contains(t, w.Body.String(), "request body too large")
	})
}

func TestPathParam(t *testing.T) {
	router := mux.NewRouter()
	var got string
	var ok bool
	router.HandleFunc("/api/teams/{id}", func(w http.ResponseWriter, r *http.Request) {
		got, ok = PathParam(w, r, "id")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/teams/t-42", nil))
	assert.True(t, ok)
	assert.Equal(t, "t-42", got)

	w = httptest.NewRecorder()
	val, okMissing := PathParam(w, httptest.NewRequest(http.MethodGet, "/api/teams/", nil), "id")
	assert.False(t, okMissing)
	assert.Empty(t, val)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQueryParam(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/auth/oidc/callback?state=abc", nil)
	assert.Equal(t, "abc", QueryParam(req, "state", ""))
	assert.Equal(t, "fallback", QueryParam(req, "code", "fallback"))
}
