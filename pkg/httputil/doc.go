// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
//	httputil.WriteSuccess(w, users)
//	httputil.WriteCreated(w, team)
//	httputil.WriteBadRequest(w, "invalid JSON")
//
// Service errors carry their own status:
//
//	if err != nil {
//		httputil.WriteServiceError(w, r, err)
//		return
//	}
//
// Role-assignment denials add the roles the caller may assign:
//
//	{"error": "role lead cannot assign role admin", "allowed": []}
//
// # Request Decoding
//
//	var req orgs.TeamRequest
//	if !httputil.BindJSON(w, r, &req) {
//		return
//	}
//	teamID, ok := httputil.PathParam(w, r, "id")
//
// Bodies over the MaxBytesMiddleware limit are answered with 413.
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RecoveryMiddleware,
//		httputil.RequestIDMiddleware(logger),
//		httputil.LoggingMiddleware,
//		httputil.MaxBytesMiddleware(1<<20),
//	)(router)
package httputil
