package api

import (
	"net/http"

	"github.com/r3aper2020/Gamut-MGMT/pkg/httputil"
	"github.com/r3aper2020/Gamut-MGMT/pkg/orgs"
)

func (s *Server) listTeams(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	teams, err := s.service.ListTeams(r.Context(), c)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	if teams == nil {
		teams = []*orgs.Team{}
	}
	_ = httputil.WriteSuccess(w, teams)
}

func (s *Server) createTeam(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	var req orgs.TeamRequest
	if !httputil.BindJSON(w, r, &req) {
		return
	}
	team, err := s.service.CreateTeam(r.Context(), c, req)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	_ = httputil.WriteCreated(w, team)
}

func (s *Server) updateTeam(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := httputil.PathParam(w, r, "id")
	if !ok {
		return
	}
	var update orgs.TeamUpdate
	if !httputil.BindJSON(w, r, &update) {
		return
	}
	team, err := s.service.UpdateTeam(r.Context(), c, id, update)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, team)
}

func (s *Server) deleteTeam(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := httputil.PathParam(w, r, "id")
	if !ok {
		return
	}
	if err := s.service.DeleteTeam(r.Context(), c, id); err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	_ = httputil.WriteMessage(w, "Team deleted successfully")
}
