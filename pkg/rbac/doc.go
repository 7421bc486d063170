// Package rbac provides the role-based access control model for Gamut.
//
// It defines the closed role and permission sets, the role-permission map and
// the role-creation hierarchy, and an Engine that evaluates every
// authorization decision made by the organization service.
//
// # Tables
//
// Tables are immutable. The built-in tables come from DefaultTables; an
// alternative set may be loaded from YAML:
//
//	permissions:
//	  owner: [manage_all_users, view_all_users, ...]
//	  member: [view_team_users, ...]
//	hierarchy:
//	  owner: [admin, manager, lead, member]
//	  lead: []
//
// Every role must have an entry in both maps. Tables are rejected if any role
// can provision itself, the owner role, or a role whose permissions are a strict
// superset of its own.
//
// # Lookups
//
// Lookups fail closed: an empty or unknown role has no permissions and can
// assign no roles.
//
// # Errors
//
// Decisions return *Error values classified by Kind. Transports map kinds to
// status codes with Error.HTTPStatus.
package rbac
