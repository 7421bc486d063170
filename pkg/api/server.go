package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/r3aper2020/Gamut-MGMT/pkg/audit"
	"github.com/r3aper2020/Gamut-MGMT/pkg/httputil"
	"github.com/r3aper2020/Gamut-MGMT/pkg/identity"
	"github.com/r3aper2020/Gamut-MGMT/pkg/middleware"
	"github.com/r3aper2020/Gamut-MGMT/pkg/observability"
	"github.com/r3aper2020/Gamut-MGMT/pkg/orgs"
	"github.com/r3aper2020/Gamut-MGMT/pkg/rbac"
)

// Service is the organization service the handlers drive
type Service interface {
	Health() map[string]string
	Signup(ctx context.Context, req orgs.SignupRequest) (*orgs.User, error)
	SignIn(ctx context.Context, email, password string) (*identity.Session, error)
	ResolveCaller(ctx context.Context, credential string) (rbac.Subject, error)

	CreateUser(ctx context.Context, caller rbac.Subject, req orgs.CreateUserRequest) (*orgs.User, error)
	ListUsers(ctx context.Context, caller rbac.Subject) ([]*orgs.User, error)
	UpdateProfile(ctx context.Context, caller rbac.Subject, update orgs.ProfileUpdate) (bool, error)
	AdminAction(caller rbac.Subject) orgs.AdminActionResult
	AdminUpdateUser(ctx context.Context, caller rbac.Subject, uid string, update orgs.UserUpdate) (*orgs.User, error)
	AdminDeleteUser(ctx context.Context, caller rbac.Subject, uid string) error

	CreateOrganization(ctx context.Context, caller rbac.Subject, req orgs.CreateOrganizationRequest) (*orgs.Organization, error)
	GetOrganization(ctx context.Context, caller rbac.Subject) (*orgs.Organization, error)
	UpdateOrganization(ctx context.Context, caller rbac.Subject, req orgs.UpdateOrganizationRequest) (*orgs.Organization, error)

	ListTeams(ctx context.Context, caller rbac.Subject) ([]*orgs.Team, error)
	CreateTeam(ctx context.Context, caller rbac.Subject, req orgs.TeamRequest) (*orgs.Team, error)
	UpdateTeam(ctx context.Context, caller rbac.Subject, teamID string, update orgs.TeamUpdate) (*orgs.Team, error)
	DeleteTeam(ctx context.Context, caller rbac.Subject, teamID string) error
}

// OIDCLogin runs the authorization code flow against an external issuer
type OIDCLogin interface {
	LoginEnabled() bool
	AuthCodeURL(state string) (string, error)
	Exchange(ctx context.Context, code string) (string, error)
}

// Config wires the server to its collaborators
type Config struct {
	Service Service
	// PublicLimiter throttles signup and login per client IP. Optional.
	PublicLimiter middleware.Limiter
	// LimiterFailOpen serves public requests when the limiter errors
	LimiterFailOpen bool
	// OIDC enables /api/oidc/login and /api/oidc/callback. Optional.
	OIDC    OIDCLogin
	Audit   audit.Logger
	Logger  *observability.Logger
	Metrics *observability.Metrics
	// MaxBodyBytes caps request bodies; zero means 1 MiB
	MaxBodyBytes int64
	// SecureCookies marks the OIDC state cookie Secure
	SecureCookies bool
}

// Server represents our API server
type Server struct {
	cfg     Config
	service Service
	router  *mux.Router
	handler http.Handler
}

// NewServer creates a new API server
func NewServer(cfg Config) (*Server, error) {
	if cfg.Service == nil {
		return nil, fmt.Errorf("service is required")
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	s := &Server{
		cfg:     cfg,
		service: cfg.Service,
		router:  mux.NewRouter(),
	}
	s.router.Use(nameSpanByRoute)
	s.setupRoutes()

	chain := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware(cfg.Logger),
		httputil.RecoveryMiddleware,
		httputil.LoggingMiddleware,
	}
	if cfg.Metrics != nil {
		chain = append(chain, observability.HTTPMetricsMiddleware(cfg.Metrics))
	}
	chain = append(chain,
		httputil.MaxBytesMiddleware(cfg.MaxBodyBytes),
		audit.NewMiddleware(cfg.Audit).Handler,
	)

	s.handler = otelhttp.NewHandler(httputil.Chain(chain...)(s.router), "gamut-api")
	return s, nil
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	r := s.router.PathPrefix("/api").Subrouter()
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)

	public := r.NewRoute().Subrouter()
	if s.cfg.PublicLimiter != nil {
		limiter := middleware.NewRateLimitMiddleware(s.cfg.PublicLimiter, "public", s.cfg.Metrics)
		limiter.SetFailOpen(s.cfg.LimiterFailOpen)
		public.Use(limiter.Handler)
	}
	public.HandleFunc("/signup", s.signup).Methods(http.MethodPost)
	public.HandleFunc("/login", s.login).Methods(http.MethodPost)
	if s.cfg.OIDC != nil && s.cfg.OIDC.LoginEnabled() {
		public.HandleFunc("/oidc/login", s.oidcLogin).Methods(http.MethodGet)
		public.HandleFunc("/oidc/callback", s.oidcCallback).Methods(http.MethodGet)
	}

	authed := r.NewRoute().Subrouter()
	authed.Use(middleware.NewAuthMiddleware(s.service).Handler)

	// Users
	authed.HandleFunc("/users", s.createUser).Methods(http.MethodPost)
	authed.HandleFunc("/users", s.listUsers).Methods(http.MethodGet)
	authed.HandleFunc("/users/profile", s.updateProfile).Methods(http.MethodPut)
	authed.HandleFunc("/admin-action", s.adminAction).Methods(http.MethodGet)
	authed.HandleFunc("/admin/users/{uid}", s.adminUpdateUser).Methods(http.MethodPut)
	authed.HandleFunc("/admin/users/{uid}", s.adminDeleteUser).Methods(http.MethodDelete)

	// Organization
	authed.HandleFunc("/organization", s.createOrganization).Methods(http.MethodPost)
	authed.HandleFunc("/organization", s.getOrganization).Methods(http.MethodGet)
	authed.HandleFunc("/organization", s.updateOrganization).Methods(http.MethodPut)

	// Teams
	authed.HandleFunc("/teams", s.listTeams).Methods(http.MethodGet)
	authed.HandleFunc("/teams", s.createTeam).Methods(http.MethodPost)
	authed.HandleFunc("/teams/{id}", s.updateTeam).Methods(http.MethodPut)
	authed.HandleFunc("/teams/{id}", s.deleteTeam).Methods(http.MethodDelete)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Router returns the underlying router without the middleware chain
func (s *Server) Router() *mux.Router {
	return s.router
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	_ = httputil.WriteSuccess(w, s.service.Health())
}

// nameSpanByRoute renames the server span after the matched route template
func nameSpanByRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				trace.SpanFromContext(r.Context()).SetName(r.Method + " " + tmpl)
			}
		}
		next.ServeHTTP(w, r)
	})
}

// caller returns the authenticated caller placed by the auth middleware
func caller(w http.ResponseWriter, r *http.Request) (rbac.Subject, bool) {
	c, ok := middleware.GetCaller(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
	}
	return c, ok
}
