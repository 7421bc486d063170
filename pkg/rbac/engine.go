package rbac

import (
	"fmt"
)

// Engine evaluates authorization decisions against an immutable set of tables.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	tables *Tables
}

// NewEngine creates an engine over tables. A nil tables value selects DefaultTables.
func NewEngine(tables *Tables) *Engine {
	if tables == nil {
		tables = DefaultTables()
	}
	return &Engine{tables: tables}
}

// Tables returns the tables the engine decides against
func (e *Engine) Tables() *Tables {
	return e.tables
}

// HasPermission reports whether the subject's role grants perm
func (e *Engine) HasPermission(s Subject, perm Permission) bool {
	return e.tables.HasPermission(s.Role, perm)
}

// SignupRole returns the role granted to a self-registering identity
func (e *Engine) SignupRole(usersExist bool) Role {
	if usersExist {
		return RoleMember
	}
	return RoleOwner
}

// RequireAdmin fails unless the caller is an owner or admin
func (e *Engine) RequireAdmin(caller Subject) error {
	if caller.Role == RoleOwner || caller.Role == RoleAdmin {
		return nil
	}
	return Authorization("admin access required")
}

// RequireOwner fails unless the caller is the organization owner
func (e *Engine) RequireOwner(caller Subject) error {
	if caller.Role == RoleOwner {
		return nil
	}
	return Authorization("owner access required")
}

// Require fails unless the caller holds at least one of perms
func (e *Engine) Require(caller Subject, perms ...Permission) error {
	for _, p := range perms {
		if e.tables.HasPermission(caller.Role, p) {
			return nil
		}
	}
	if len(perms) == 1 {
		return Authorization(fmt.Sprintf("missing permission %s", perms[0]))
	}
	return Authorization("insufficient permissions")
}

// AuthorizeAssignment validates a requested role and checks the caller may assign it
func (e *Engine) AuthorizeAssignment(caller Subject, requested string) (Role, error) {
	role, err := ParseRole(requested)
	if err != nil {
		return "", Validation(fmt.Sprintf("invalid role %q", requested))
	}
	if !e.tables.CanAssign(caller.Role, role) {
		return "", AssignmentDenied(
			fmt.Sprintf("role %s cannot assign role %s", caller.Role, role),
			e.tables.AssignableRoles(caller.Role),
		)
	}
	return role, nil
}

// RequireOrganization returns the caller's organization binding
func (e *Engine) RequireOrganization(caller Subject) (string, error) {
	if caller.OrganizationID == "" {
		return "", Configuration("no organization associated with this account; re-authenticate after creating or joining one")
	}
	return caller.OrganizationID, nil
}

// DefaultTeam picks the team a new user joins: the explicit request, else the
// organization's General team, else none
func (e *Engine) DefaultTeam(requested, general string) string {
	if requested != "" {
		return requested
	}
	return general
}

// Scope is a visibility filter over users or teams
type Scope struct {
	OrganizationID string
	TeamID         string
	SelfID         string
	// Empty scopes match nothing.
	Empty bool
}

// Allows reports whether a user subject falls within the scope
func (s Scope) Allows(sub Subject) bool {
	if s.Empty {
		return false
	}
	if s.SelfID != "" && sub.ID != s.SelfID {
		return false
	}
	if s.OrganizationID != "" && sub.OrganizationID != s.OrganizationID {
		return false
	}
	if s.TeamID != "" && sub.TeamID != s.TeamID {
		return false
	}
	return true
}

// AllowsTeam reports whether a team falls within the scope
func (s Scope) AllowsTeam(teamID, organizationID string) bool {
	if s.Empty {
		return false
	}
	if s.OrganizationID != "" && organizationID != s.OrganizationID {
		return false
	}
	if s.TeamID != "" && teamID != s.TeamID {
		return false
	}
	return true
}

// UserScope returns the set of users the caller may list
func (e *Engine) UserScope(caller Subject) Scope {
	switch {
	case caller.ID == "":
		return Scope{Empty: true}
	case caller.OrganizationID != "" && e.tables.HasPermission(caller.Role, PermViewAllUsers):
		return Scope{OrganizationID: caller.OrganizationID}
	case caller.TeamID != "" && e.tables.HasPermission(caller.Role, PermViewTeamUsers):
		return Scope{OrganizationID: caller.OrganizationID, TeamID: caller.TeamID}
	default:
		return Scope{SelfID: caller.ID}
	}
}

// TeamScope returns the set of teams the caller may list
func (e *Engine) TeamScope(caller Subject) Scope {
	if caller.OrganizationID == "" {
		return Scope{Empty: true}
	}
	if e.tables.HasPermission(caller.Role, PermViewAllTeams) {
		return Scope{OrganizationID: caller.OrganizationID}
	}
	if caller.TeamID != "" && e.tables.HasPermission(caller.Role, PermViewOwnTeam) {
		return Scope{OrganizationID: caller.OrganizationID, TeamID: caller.TeamID}
	}
	return Scope{Empty: true}
}

// EditChange lists the authorization-relevant fields of a user update
type EditChange struct {
	Role           *string
	OrganizationID *string
}

// AuthorizeEdit checks that caller may apply change to target. It returns the
// validated new role, or nil when the role is unchanged.
func (e *Engine) AuthorizeEdit(caller, target Subject, change EditChange) (*Role, error) {
	if err := e.sameOrganization(caller, target); err != nil {
		return nil, err
	}

	if target.Role == RoleOwner && caller.ID != target.ID {
		return nil, Authorization("only the owner can edit the owner account")
	}

	if change.OrganizationID != nil && *change.OrganizationID != target.OrganizationID {
		return nil, Authorization("users cannot be moved to another organization")
	}

	if caller.Role != RoleOwner && caller.ID != target.ID && !e.tables.CanAssign(caller.Role, target.Role) {
		return nil, Authorization(fmt.Sprintf("role %s cannot modify a user with role %s", caller.Role, target.Role))
	}

	if change.Role == nil {
		return nil, nil
	}

	requested, err := ParseRole(*change.Role)
	if err != nil {
		return nil, Validation(fmt.Sprintf("invalid role %q", *change.Role))
	}
	if requested == target.Role {
		return nil, nil
	}
	if target.Role == RoleOwner {
		return nil, Authorization("the owner role cannot be changed")
	}

	role, err := e.AuthorizeAssignment(caller, string(requested))
	if err != nil {
		return nil, err
	}
	return &role, nil
}

// AuthorizeDelete checks that caller may delete target
func (e *Engine) AuthorizeDelete(caller, target Subject) error {
	if err := e.sameOrganization(caller, target); err != nil {
		return err
	}
	if target.Role == RoleOwner {
		return Authorization("the owner account cannot be deleted")
	}
	if caller.ID == target.ID {
		return Validation("you cannot delete your own account")
	}
	if (target.Role == RoleAdmin || target.Role == RoleManager) && caller.Role != RoleOwner {
		return Authorization(fmt.Sprintf("only the owner can delete a user with role %s", target.Role))
	}
	return nil
}

func (e *Engine) sameOrganization(caller, target Subject) error {
	if caller.OrganizationID == "" || target.OrganizationID != caller.OrganizationID {
		return NotFound("user not found")
	}
	return nil
}

// CounterDelta is a signed adjustment to one team's member count
type CounterDelta struct {
	TeamID string
	Delta  int64
}

// TeamTransfer returns the counter adjustments for moving a user between teams.
// An empty team id means teamless.
func (e *Engine) TeamTransfer(from, to string) []CounterDelta {
	if from == to {
		return nil
	}
	var deltas []CounterDelta
	if from != "" {
		deltas = append(deltas, CounterDelta{TeamID: from, Delta: -1})
	}
	if to != "" {
		deltas = append(deltas, CounterDelta{TeamID: to, Delta: 1})
	}
	return deltas
}

// AuthorizeOrganizationCreate checks that caller may found a new organization
func (e *Engine) AuthorizeOrganizationCreate(caller Subject, alreadyOwns bool) error {
	if err := e.RequireOwner(caller); err != nil {
		return err
	}
	if caller.OrganizationID != "" || alreadyOwns {
		return Validation("organization already exists")
	}
	return nil
}
