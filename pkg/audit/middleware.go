package audit

import (
	"net/http"
	"strings"

	"github.com/r3aper2020/Gamut-MGMT/pkg/httputil"
)

// Middleware attaches the audit logger and request metadata to each request
type Middleware struct {
	logger Logger
}

// NewMiddleware creates a new audit middleware. A nil logger discards events.
func NewMiddleware(logger Logger) *Middleware {
	if logger == nil {
		logger = NoOp()
	}
	return &Middleware{logger: logger}
}

// Handler wraps an HTTP handler. Requests to /api that end in 401 without a
// handler-emitted event are recorded as failed logins when they hit a login path.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithLogger(r.Context(), m.logger)
		ctx = WithRequest(ctx, r)

		rec := httputil.NewStatusRecorder(w)
		next.ServeHTTP(rec, r.WithContext(ctx))

		if rec.Status() == http.StatusUnauthorized && isLoginPath(r.URL.Path) {
			event := NewEvent(ctx, EventTypeAuthLoginFailed, EventStatusFailure, Actor{}).
				On(ResourceTypeUser, "").
				WithMessage("login rejected")
			Emit(ctx, m.logger, event)
		}
	})
}

func isLoginPath(path string) bool {
	return path == "/api/login" || strings.HasPrefix(path, "/api/oidc/callback")
}
