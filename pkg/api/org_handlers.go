package api

import (
	"net/http"

	"github.com/r3aper2020/Gamut-MGMT/pkg/httputil"
	"github.com/r3aper2020/Gamut-MGMT/pkg/orgs"
)

// OrganizationCreatedResponse is the body of POST /api/organization
type OrganizationCreatedResponse struct {
	ID           string             `json:"id"`
	Message      string             `json:"message"`
	Organization *orgs.Organization `json:"organization"`
}

func (s *Server) createOrganization(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	var req orgs.CreateOrganizationRequest
	if !httputil.BindJSON(w, r, &req) {
		return
	}
	org, err := s.service.CreateOrganization(r.Context(), c, req)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	_ = httputil.WriteCreated(w, OrganizationCreatedResponse{
		ID:           org.ID,
		Message:      "Organization created successfully",
		Organization: org,
	})
}

// getOrganization answers {} for callers not yet bound to an organization
func (s *Server) getOrganization(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	org, err := s.service.GetOrganization(r.Context(), c)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	if org == nil {
		_ = httputil.WriteSuccess(w, struct{}{})
		return
	}
	_ = httputil.WriteSuccess(w, org)
}

func (s *Server) updateOrganization(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	var req orgs.UpdateOrganizationRequest
	if !httputil.BindJSON(w, r, &req) {
		return
	}
	org, err := s.service.UpdateOrganization(r.Context(), c, req)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, org)
}
