package api

import (
	"net/http"

	"github.com/r3aper2020/Gamut-MGMT/pkg/httputil"
	"github.com/r3aper2020/Gamut-MGMT/pkg/orgs"
)

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	var req orgs.CreateUserRequest
	if !httputil.BindJSON(w, r, &req) {
		return
	}
	user, err := s.service.CreateUser(r.Context(), c, req)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	_ = httputil.WriteCreated(w, user)
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	users, err := s.service.ListUsers(r.Context(), c)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	if users == nil {
		users = []*orgs.User{}
	}
	_ = httputil.WriteSuccess(w, users)
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	var update orgs.ProfileUpdate
	if !httputil.BindJSON(w, r, &update) {
		return
	}
	changed, err := s.service.UpdateProfile(r.Context(), c, update)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	if !changed {
		_ = httputil.WriteMessage(w, "No changes provided")
		return
	}
	_ = httputil.WriteMessage(w, "Profile updated successfully")
}

func (s *Server) adminAction(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	_ = httputil.WriteSuccess(w, s.service.AdminAction(c))
}

func (s *Server) adminUpdateUser(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	uid, ok := httputil.PathParam(w, r, "uid")
	if !ok {
		return
	}
	var update orgs.UserUpdate
	if !httputil.BindJSON(w, r, &update) {
		return
	}
	user, err := s.service.AdminUpdateUser(r.Context(), c, uid, update)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, user)
}

func (s *Server) adminDeleteUser(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	uid, ok := httputil.PathParam(w, r, "uid")
	if !ok {
		return
	}
	if err := s.service.AdminDeleteUser(r.Context(), c, uid); err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	_ = httputil.WriteMessage(w, "User deleted successfully")
}
