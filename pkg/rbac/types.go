package rbac

import (
	"fmt"
	"sort"
)

// Role is a named privilege tier carried in an identity's claims
type Role string

// Built-in roles, listed from most to least privileged
const (
	RoleOwner   Role = "owner"
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleLead    Role = "lead"
	RoleMember  Role = "member"
)

// AllRoles returns every role in the closed role set
func AllRoles() []Role {
	return []Role{RoleOwner, RoleAdmin, RoleManager, RoleLead, RoleMember}
}

// IsValidRole reports whether s names a role in the closed set
func IsValidRole(s string) bool {
	switch Role(s) {
	case RoleOwner, RoleAdmin, RoleManager, RoleLead, RoleMember:
		return true
	default:
		return false
	}
}

// ParseRole converts untrusted input into a Role. Only exact role names are
// accepted; case and surrounding whitespace are not normalized.
func ParseRole(s string) (Role, error) {
	if !IsValidRole(s) {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return Role(s), nil
}

// String returns the role identifier
func (r Role) String() string {
	return string(r)
}

// Permission is an atomic capability granted by a role
type Permission string

const (
	// User management
	PermManageAllUsers  Permission = "manage_all_users"
	PermManageTeamUsers Permission = "manage_team_users"
	PermViewAllUsers    Permission = "view_all_users"
	PermViewTeamUsers   Permission = "view_team_users"

	// Team management
	PermManageTeams  Permission = "manage_teams"
	PermViewAllTeams Permission = "view_all_teams"
	PermViewOwnTeam  Permission = "view_own_team"

	// Claims workflow
	PermApproveClaims   Permission = "approve_claims"
	PermViewAllClaims   Permission = "view_all_claims"
	PermViewTeamClaims  Permission = "view_team_claims"
	PermCreateClaims    Permission = "create_claims"
	PermDeleteOwnClaims Permission = "delete_own_claims"

	// Organization settings
	PermViewOrgSettings   Permission = "view_org_settings"
	PermManageOrgSettings Permission = "manage_org_settings"
)

// AllPermissions returns every permission in the closed permission set
func AllPermissions() []Permission {
	return []Permission{
		PermManageAllUsers, PermManageTeamUsers, PermViewAllUsers, PermViewTeamUsers,
		PermManageTeams, PermViewAllTeams, PermViewOwnTeam,
		PermApproveClaims, PermViewAllClaims, PermViewTeamClaims, PermCreateClaims, PermDeleteOwnClaims,
		PermViewOrgSettings, PermManageOrgSettings,
	}
}

// IsValidPermission reports whether s names a permission in the closed set
func IsValidPermission(s string) bool {
	for _, p := range AllPermissions() {
		if string(p) == s {
			return true
		}
	}
	return false
}

// PermissionSet is an unordered set of permissions
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from a list of permissions
func NewPermissionSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// Has reports whether the set contains p
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// IsStrictSupersetOf reports whether s contains every element of other and at least one more
func (s PermissionSet) IsStrictSupersetOf(other PermissionSet) bool {
	if len(s) <= len(other) {
		return false
	}
	for p := range other {
		if !s.Has(p) {
			return false
		}
	}
	return true
}

// Sorted returns the permissions in lexical order
func (s PermissionSet) Sorted() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s PermissionSet) clone() PermissionSet {
	out := make(PermissionSet, len(s))
	for p := range s {
		out[p] = struct{}{}
	}
	return out
}

// Subject is the authorization view of an identity: the caller of an
// operation or the user it targets
type Subject struct {
	ID             string `json:"uid"`
	Email          string `json:"email,omitempty"`
	Role           Role   `json:"role,omitempty"`
	OrganizationID string `json:"organizationId,omitempty"`
	TeamID         string `json:"teamId,omitempty"`
}
