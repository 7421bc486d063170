// Package api provides the HTTP REST API server for Gamut organization management.
//
// # Overview
//
// The API exposes sign-up, sign-in, user administration, organization and team
// management as JSON endpoints. Handlers are thin: they decode the request, take
// the authenticated caller from the request context and hand both to the
// organization service, which runs every policy decision before it writes.
//
// # Architecture
//
// The server is built on gorilla/mux with three route groups under /api:
//
//   - Health: unauthenticated liveness echo
//   - Public: sign-up, password login and the optional OIDC login flow, rate limited per client IP
//   - Authenticated: everything else, behind the bearer-token middleware
//
// Every request passes through request ids, panic recovery, request logging,
// Prometheus metrics, body size limits, the audit middleware and otelhttp tracing.
//
// # API Endpoints
//
//	GET    /api/health               - Service status
//	POST   /api/signup               - Self-registration (first account becomes owner)
//	POST   /api/login                - Exchange email and password for a token
//	GET    /api/oidc/login           - Redirect to the external issuer
//	GET    /api/oidc/callback        - Complete the external login and return a token
//	POST   /api/users                - Create a user in the caller's organization
//	GET    /api/users                - List users visible to the caller
//	PUT    /api/users/profile        - Update the caller's job title and phone number
//	GET    /api/admin-action         - Echo the authenticated caller
//	POST   /api/organization         - Found an organization (owner only, once)
//	GET    /api/organization         - The caller's organization, {} when unbound
//	PUT    /api/organization         - Update organization details and settings
//	GET    /api/teams                - List teams visible to the caller
//	POST   /api/teams                - Create a team
//	PUT    /api/teams/{id}           - Update a team
//	DELETE /api/teams/{id}           - Delete a team, moving its members to General
//	PUT    /api/admin/users/{uid}    - Change another user's role, team or details
//	DELETE /api/admin/users/{uid}    - Delete another user
//
// # Errors
//
// Errors are JSON objects with an "error" field. A role-assignment denial also
// carries "allowed", the roles the caller may assign, which can be empty:
//
//	HTTP/1.1 403 Forbidden
//	{"error": "role lead cannot assign role admin", "allowed": []}
//
// Infrastructure failures answer 500 with a generic message and are logged with
// the request id.
//
// # Usage
//
//	server, err := api.NewServer(api.Config{
//		Service:       svc,
//		PublicLimiter: middleware.NewRateLimiter(nil),
//		Audit:         auditLogger,
//		Metrics:       metrics,
//	})
//	if err != nil {
//		return err
//	}
//	http.ListenAndServe(":8080", server)
package api
