package api

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/r3aper2020/Gamut-MGMT/pkg/httputil"
	"github.com/r3aper2020/Gamut-MGMT/pkg/orgs"
	"github.com/r3aper2020/Gamut-MGMT/pkg/rbac"
)

const oidcStateCookie = "gamut_oidc_state"

// LoginRequest is the body of POST /api/login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse carries a credential issued by an external issuer
type TokenResponse struct {
	Token string `json:"token"`
}

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	var req orgs.SignupRequest
	if !httputil.BindJSON(w, r, &req) {
		return
	}
	user, err := s.service.Signup(r.Context(), req)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	_ = httputil.WriteCreated(w, user)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !httputil.BindJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		httputil.WriteServiceError(w, r, rbac.Validation("email and password are required"))
		return
	}
	session, err := s.service.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, session)
}

// oidcLogin redirects to the issuer with a state bound to a short-lived cookie
func (s *Server) oidcLogin(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	target, err := s.cfg.OIDC.AuthCodeURL(state)
	if err != nil {
		httputil.WriteServiceError(w, r, rbac.Configuration(err.Error()))
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oidcStateCookie,
		Value:    state,
		Path:     "/api/oidc",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *Server) oidcCallback(w http.ResponseWriter, r *http.Request) {
	state := httputil.QueryParam(r, "state", "")
	cookie, err := r.Cookie(oidcStateCookie)
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
		httputil.WriteUnauthorized(w, "invalid login state")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: oidcStateCookie, Value: "", Path: "/api/oidc", MaxAge: -1})

	if msg := httputil.QueryParam(r, "error", ""); msg != "" {
		httputil.WriteUnauthorized(w, "login rejected by issuer: "+msg)
		return
	}

	token, err := s.cfg.OIDC.Exchange(r.Context(), httputil.QueryParam(r, "code", ""))
	if err != nil {
		httputil.WriteUnauthorized(w, "login failed")
		return
	}
	// The issued token must resolve to a local account before it is handed out.
	if _, err := s.service.ResolveCaller(r.Context(), token); err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, TokenResponse{Token: token})
}
