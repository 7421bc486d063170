package rbac

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Tables holds the role-permission map and the role-creation hierarchy.
// A Tables value is immutable once built; every accessor returns a copy.
type Tables struct {
	permissions map[Role]PermissionSet
	assignable  map[Role][]Role
}

// DefaultTables returns the built-in configuration
func DefaultTables() *Tables {
	t, err := NewTables(
		map[Role][]Permission{
			RoleOwner: {
				PermManageAllUsers, PermViewAllUsers,
				PermManageTeams, PermViewAllTeams,
				PermApproveClaims, PermViewAllClaims, PermCreateClaims,
				PermViewOrgSettings, PermManageOrgSettings,
			},
			RoleAdmin: {
				PermManageAllUsers, PermViewAllUsers,
				PermManageTeams, PermViewAllTeams,
				PermApproveClaims, PermViewAllClaims,
				PermViewOrgSettings,
			},
			RoleManager: {
				PermManageTeamUsers, PermViewTeamUsers, PermViewOwnTeam,
				PermApproveClaims, PermViewTeamClaims, PermCreateClaims,
			},
			RoleLead: {
				PermViewTeamUsers, PermViewOwnTeam,
				PermViewTeamClaims, PermCreateClaims,
			},
			RoleMember: {
				PermViewTeamUsers, PermViewOwnTeam,
				PermViewTeamClaims, PermCreateClaims, PermDeleteOwnClaims,
			},
		},
		map[Role][]Role{
			RoleOwner:   {RoleAdmin, RoleManager, RoleLead, RoleMember},
			RoleAdmin:   {RoleManager, RoleLead, RoleMember},
			RoleManager: {RoleLead, RoleMember},
			RoleLead:    {},
			RoleMember:  {},
		},
	)
	if err != nil {
		panic(fmt.Sprintf("built-in rbac tables are invalid: %v", err))
	}
	return t
}

// NewTables validates and freezes a role-permission map and a creation hierarchy
func NewTables(permissions map[Role][]Permission, hierarchy map[Role][]Role) (*Tables, error) {
	t := &Tables{
		permissions: make(map[Role]PermissionSet, len(permissions)),
		assignable:  make(map[Role][]Role, len(hierarchy)),
	}

	for role, perms := range permissions {
		if !IsValidRole(string(role)) {
			return nil, fmt.Errorf("permissions: unknown role %q", role)
		}
		for _, p := range perms {
			if !IsValidPermission(string(p)) {
				return nil, fmt.Errorf("permissions: role %s: unknown permission %q", role, p)
			}
		}
		t.permissions[role] = NewPermissionSet(perms...)
	}

	for creator, targets := range hierarchy {
		if !IsValidRole(string(creator)) {
			return nil, fmt.Errorf("hierarchy: unknown role %q", creator)
		}
		seen := make(map[Role]bool, len(targets))
		roles := make([]Role, 0, len(targets))
		for _, target := range targets {
			if !IsValidRole(string(target)) {
				return nil, fmt.Errorf("hierarchy: role %s: unknown assignable role %q", creator, target)
			}
			if seen[target] {
				continue
			}
			seen[target] = true
			roles = append(roles, target)
		}
		t.assignable[creator] = roles
	}

	for _, role := range AllRoles() {
		if _, ok := t.permissions[role]; !ok {
			return nil, fmt.Errorf("permissions: missing entry for role %s", role)
		}
		if _, ok := t.assignable[role]; !ok {
			return nil, fmt.Errorf("hierarchy: missing entry for role %s", role)
		}
	}

	if err := t.ValidateNoEscalation(); err != nil {
		return nil, err
	}

	return t, nil
}

// PermissionsOf returns the permissions granted to role. Unknown roles get an empty set.
func (t *Tables) PermissionsOf(role Role) PermissionSet {
	set, ok := t.permissions[role]
	if !ok {
		return PermissionSet{}
	}
	return set.clone()
}

// HasPermission reports whether role grants perm. Empty or unknown roles grant nothing.
func (t *Tables) HasPermission(role Role, perm Permission) bool {
	if role == "" {
		return false
	}
	set, ok := t.permissions[role]
	if !ok {
		return false
	}
	return set.Has(perm)
}

// AssignableRoles returns the roles creator may provision. Unknown creators get none.
func (t *Tables) AssignableRoles(creator Role) []Role {
	roles, ok := t.assignable[creator]
	if !ok {
		return []Role{}
	}
	out := make([]Role, len(roles))
	copy(out, roles)
	return out
}

// CanAssign reports whether creator may provision target
func (t *Tables) CanAssign(creator Role, target Role) bool {
	for _, r := range t.assignable[creator] {
		if r == target {
			return true
		}
	}
	return false
}

// ValidateNoEscalation checks that no role can provision itself, the owner role,
// or a role holding a strict superset of its own permissions, directly or
// through any chain of provisioning.
func (t *Tables) ValidateNoEscalation() error {
	for _, creator := range AllRoles() {
		own := t.permissions[creator]
		for _, target := range t.reachable(creator) {
			if target == creator {
				return fmt.Errorf("hierarchy: role %s can provision itself", creator)
			}
			if target == RoleOwner {
				return fmt.Errorf("hierarchy: role %s can provision %s", creator, RoleOwner)
			}
			if t.permissions[target].IsStrictSupersetOf(own) {
				return fmt.Errorf("hierarchy: role %s can provision more privileged role %s", creator, target)
			}
		}
	}
	return nil
}

// reachable returns the transitive closure of the assignable relation from creator
func (t *Tables) reachable(creator Role) []Role {
	visited := make(map[Role]bool)
	queue := append([]Role(nil), t.assignable[creator]...)
	var out []Role
	for len(queue) > 0 {
		r := queue[0]
		queue = queue[1:]
		if visited[r] {
			continue
		}
		visited[r] = true
		out = append(out, r)
		queue = append(queue, t.assignable[r]...)
	}
	return out
}

// tablesFile is the YAML shape accepted by LoadTables
type tablesFile struct {
	Permissions map[string][]string `yaml:"permissions"`
	Hierarchy   map[string][]string `yaml:"hierarchy"`
}

// ParseTables builds Tables from a YAML document
func ParseTables(data []byte) (*Tables, error) {
	var file tablesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rbac tables: %w", err)
	}

	perms := make(map[Role][]Permission, len(file.Permissions))
	for role, names := range file.Permissions {
		list := make([]Permission, 0, len(names))
		for _, n := range names {
			list = append(list, Permission(n))
		}
		perms[Role(role)] = list
	}

	hierarchy := make(map[Role][]Role, len(file.Hierarchy))
	for role, names := range file.Hierarchy {
		list := make([]Role, 0, len(names))
		for _, n := range names {
			list = append(list, Role(n))
		}
		hierarchy[Role(role)] = list
	}

	return NewTables(perms, hierarchy)
}

// LoadTables reads a YAML tables file from disk
func LoadTables(path string) (*Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rbac tables: %w", err)
	}
	return ParseTables(data)
}

// MarshalYAML renders the tables in the format ParseTables accepts
func (t *Tables) MarshalYAML() (interface{}, error) {
	file := tablesFile{
		Permissions: make(map[string][]string, len(t.permissions)),
		Hierarchy:   make(map[string][]string, len(t.assignable)),
	}
	for role, set := range t.permissions {
		names := make([]string, 0, len(set))
		for _, p := range set.Sorted() {
			names = append(names, string(p))
		}
		file.Permissions[string(role)] = names
	}
	for role, targets := range t.assignable {
		names := make([]string, 0, len(targets))
		for _, r := range targets {
			names = append(names, string(r))
		}
		sort.Strings(names)
		file.Hierarchy[string(role)] = names
	}
	return file, nil
}
