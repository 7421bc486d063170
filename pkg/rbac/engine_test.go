package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func subject(id string, role Role, org, team string) Subject {
	return Subject{ID: id, Role: role, OrganizationID: org, TeamID: team}
}

func TestEngine_SignupRole(t *testing.T) {
	e := NewEngine(nil)
	assert.Equal(t, RoleOwner, e.SignupRole(false))
	assert.Equal(t, RoleMember, e.SignupRole(true))
}

func TestEngine_RequireAdminAndOwner(t *testing.T) {
	e := NewEngine(nil)

	tests := []struct {
		role      Role
		wantAdmin bool
		wantOwner bool
	}{
		{RoleOwner, true, true},
		{RoleAdmin, true, false},
		{RoleManager, false, false},
		{RoleLead, false, false},
		{RoleMember, false, false},
		{"", false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			caller := subject("u1", tt.role, "org1", "")

			err := e.RequireAdmin(caller)
			if tt.wantAdmin {
				assert.NoError(t, err)
			} else {
				assert.True(t, IsKind(err, KindAuthorization))
			}

			err = e.RequireOwner(caller)
			if tt.wantOwner {
				assert.NoError(t, err)
			} else {
				assert.True(t, IsKind(err, KindAuthorization))
			}
		})
	}
}

func TestEngine_Require(t *testing.T) {
	e := NewEngine(nil)

	assert.NoError(t, e.Require(subject("u", RoleAdmin, "o", ""), PermManageTeams))
	assert.NoError(t, e.Require(subject("u", RoleAdmin, "o", ""), PermManageOrgSettings, PermViewOrgSettings))

	err := e.Require(subject("u", RoleAdmin, "o", ""), PermManageOrgSettings)
	assert.True(t, IsKind(err, KindAuthorization))
	assert.Contains(t, err.Error(), "manage_org_settings")

	err = e.Require(subject("u", RoleMember, "o", ""))
	assert.True(t, IsKind(err, KindAuthorization))
}

func TestEngine_AuthorizeAssignment(t *testing.T) {
	e := NewEngine(nil)

	t.Run("allowed", func(t *testing.T) {
		role, err := e.AuthorizeAssignment(subject("u", RoleAdmin, "o", ""), "manager")
		require.NoError(t, err)
		assert.Equal(t, RoleManager, role)
	})

	t.Run("invalid role", func(t *testing.T) {
		_, err := e.AuthorizeAssignment(subject("u", RoleOwner, "o", ""), "superuser")
		assert.True(t, IsKind(err, KindValidation))
	})

	t.Run("denied carries allowed roles", func(t *testing.T) {
		_, err := e.AuthorizeAssignment(subject("u", RoleManager, "o", ""), "admin")
		require.Error(t, err)
		rerr := AsError(err)
		assert.Equal(t, KindAuthorization, rerr.Kind)
		assert.Equal(t, []Role{RoleLead, RoleMember}, rerr.Allowed)
	})

	t.Run("lead gets empty allowed list", func(t *testing.T) {
		_, err := e.AuthorizeAssignment(subject("u", RoleLead, "o", ""), "admin")
		rerr := AsError(err)
		assert.Equal(t, KindAuthorization, rerr.Kind)
		assert.NotNil(t, rerr.Allowed)
		assert.Empty(t, rerr.Allowed)
	})

	t.Run("nobody assigns owner", func(t *testing.T) {
		for _, role := range AllRoles() {
			_, err := e.AuthorizeAssignment(subject("u", role, "o", ""), "owner")
			assert.True(t, IsKind(err, KindAuthorization), role)
		}
	})
}

func TestEngine_RequireOrganization(t *testing.T) {
	e := NewEngine(nil)

	org, err := e.RequireOrganization(subject("u", RoleOwner, "acme", ""))
	require.NoError(t, err)
	assert.Equal(t, "acme", org)

	_, err = e.RequireOrganization(subject("u", RoleOwner, "", ""))
	assert.True(t, IsKind(err, KindConfiguration))
	assert.Equal(t, 400, AsError(err).HTTPStatus())
}

func TestEngine_DefaultTeam(t *testing.T) {
	e := NewEngine(nil)
	assert.Equal(t, "sales", e.DefaultTeam("sales", "general"))
	assert.Equal(t, "general", e.DefaultTeam("", "general"))
	assert.Equal(t, "", e.DefaultTeam("", ""))
}

func TestEngine_UserScope(t *testing.T) {
	e := NewEngine(nil)

	users := []Subject{
		subject("alice", RoleOwner, "acme", "general"),
		subject("bob", RoleManager, "acme", "sales"),
		subject("carol", RoleMember, "acme", "sales"),
		subject("dave", RoleLead, "acme", ""),
		subject("erin", RoleAdmin, "globex", "sales"),
	}

	visible := func(caller Subject) []string {
		scope := e.UserScope(caller)
		var ids []string
		for _, u := range users {
			if scope.Allows(u) {
				ids = append(ids, u.ID)
			}
		}
		return ids
	}

	t.Run("view all users sees exactly the organization", func(t *testing.T) {
		assert.Equal(t, []string{"alice", "bob", "carol", "dave"}, visible(users[0]))
	})

	t.Run("restricted caller sees its team", func(t *testing.T) {
		assert.Equal(t, []string{"bob", "carol"}, visible(users[1]))
		assert.Equal(t, []string{"bob", "carol"}, visible(users[2]))
	})

	t.Run("restricted caller without team sees only self", func(t *testing.T) {
		assert.Equal(t, []string{"dave"}, visible(users[3]))
	})

	t.Run("unbound admin sees only self", func(t *testing.T) {
		assert.Equal(t, []string{"alice"}, visible(subject("alice", RoleOwner, "", "")))
	})

	t.Run("unknown role sees only self", func(t *testing.T) {
		assert.Equal(t, []string{"bob"}, visible(subject("bob", "ghost", "acme", "sales")))
	})

	t.Run("anonymous sees nothing", func(t *testing.T) {
		assert.Empty(t, visible(Subject{}))
	})
}

func TestEngine_TeamScope(t *testing.T) {
	e := NewEngine(nil)

	tests := []struct {
		name    string
		caller  Subject
		team    string
		org     string
		allowed bool
	}{
		{"admin sees org team", subject("a", RoleAdmin, "acme", ""), "sales", "acme", true},
		{"admin cannot see other org", subject("a", RoleAdmin, "acme", ""), "sales", "globex", false},
		{"member sees own team", subject("m", RoleMember, "acme", "sales"), "sales", "acme", true},
		{"member cannot see other team", subject("m", RoleMember, "acme", "sales"), "general", "acme", false},
		{"member without team sees nothing", subject("m", RoleMember, "acme", ""), "sales", "acme", false},
		{"unbound caller sees nothing", subject("m", RoleOwner, "", ""), "sales", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, e.TeamScope(tt.caller).AllowsTeam(tt.team, tt.org))
		})
	}
}

func TestEngine_AuthorizeEdit(t *testing.T) {
	e := NewEngine(nil)
	owner := subject("alice", RoleOwner, "acme", "general")
	admin := subject("amy", RoleAdmin, "acme", "general")
	admin2 := subject("ann", RoleAdmin, "acme", "general")
	manager := subject("bob", RoleManager, "acme", "sales")
	outsider := subject("zed", RoleMember, "globex", "")

	tests := []struct {
		name     string
		caller   Subject
		target   Subject
		change   EditChange
		wantKind Kind
		wantRole *Role
	}{
		{name: "admin promotes manager to lead", caller: admin, target: manager, change: EditChange{Role: strPtr("lead")}, wantRole: rolePtr(RoleLead)},
		{name: "admin edits manager profile fields", caller: admin, target: manager},
		{name: "admin edits own profile fields", caller: admin, target: admin},
		{name: "admin cannot edit peer admin profile", caller: admin, target: admin2, wantKind: KindAuthorization},
		{name: "admin cannot keep peer admin role while editing", caller: admin, target: admin2, change: EditChange{Role: strPtr("admin")}, wantKind: KindAuthorization},
		{name: "manager cannot edit admin", caller: manager, target: admin, wantKind: KindAuthorization},
		{name: "admin cannot edit owner", caller: admin, target: owner, change: EditChange{Role: strPtr("member")}, wantKind: KindAuthorization},
		{name: "admin cannot edit owner profile", caller: admin, target: owner, wantKind: KindAuthorization},
		{name: "owner edits itself", caller: owner, target: owner},
		{name: "owner role never changes", caller: owner, target: owner, change: EditChange{Role: strPtr("admin")}, wantKind: KindAuthorization},
		{name: "same role is no change", caller: owner, target: owner, change: EditChange{Role: strPtr("owner")}},
		{name: "admin cannot demote peer admin", caller: admin, target: admin2, change: EditChange{Role: strPtr("member")}, wantKind: KindAuthorization},
		{name: "owner demotes admin", caller: owner, target: admin, change: EditChange{Role: strPtr("member")}, wantRole: rolePtr(RoleMember)},
		{name: "admin cannot promote to admin", caller: admin, target: manager, change: EditChange{Role: strPtr("admin")}, wantKind: KindAuthorization},
		{name: "invalid role", caller: owner, target: manager, change: EditChange{Role: strPtr("king")}, wantKind: KindValidation},
		{name: "other org is not found", caller: admin, target: outsider, wantKind: KindNotFound},
		{name: "move to other org denied", caller: owner, target: manager, change: EditChange{OrganizationID: strPtr("globex")}, wantKind: KindAuthorization},
		{name: "same org id accepted", caller: owner, target: manager, change: EditChange{OrganizationID: strPtr("acme")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			role, err := e.AuthorizeEdit(tt.caller, tt.target, tt.change)
			if tt.wantKind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, KindOf(err))
				assert.Nil(t, role)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRole, role)
		})
	}
}

func rolePtr(r Role) *Role { return &r }

func TestEngine_AuthorizeDelete(t *testing.T) {
	e := NewEngine(nil)
	owner := subject("alice", RoleOwner, "acme", "general")
	admin := subject("amy", RoleAdmin, "acme", "general")
	manager := subject("bob", RoleManager, "acme", "sales")
	lead := subject("lee", RoleLead, "acme", "sales")
	outsider := subject("zed", RoleMember, "globex", "")

	tests := []struct {
		name     string
		caller   Subject
		target   Subject
		wantKind Kind
	}{
		{"admin cannot delete owner", admin, owner, KindAuthorization},
		{"owner cannot delete itself", owner, owner, KindAuthorization},
		{"admin cannot delete itself", admin, admin, KindValidation},
		{"admin cannot delete manager", admin, manager, KindAuthorization},
		{"owner deletes manager", owner, manager, ""},
		{"owner deletes admin", owner, admin, ""},
		{"admin deletes lead", admin, lead, ""},
		{"other org is not found", owner, outsider, KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.AuthorizeDelete(tt.caller, tt.target)
			if tt.wantKind == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.wantKind, KindOf(err))
		})
	}
}

func TestEngine_TeamTransfer(t *testing.T) {
	e := NewEngine(nil)

	assert.Equal(t, []CounterDelta{{TeamID: "general", Delta: -1}, {TeamID: "sales", Delta: 1}}, e.TeamTransfer("general", "sales"))
	assert.Equal(t, []CounterDelta{{TeamID: "sales", Delta: 1}}, e.TeamTransfer("", "sales"))
	assert.Equal(t, []CounterDelta{{TeamID: "general", Delta: -1}}, e.TeamTransfer("general", ""))
	assert.Nil(t, e.TeamTransfer("sales", "sales"))
}

func TestEngine_AuthorizeOrganizationCreate(t *testing.T) {
	e := NewEngine(nil)

	assert.NoError(t, e.AuthorizeOrganizationCreate(subject("alice", RoleOwner, "", ""), false))

	err := e.AuthorizeOrganizationCreate(subject("alice", RoleOwner, "acme", ""), false)
	assert.True(t, IsKind(err, KindValidation))
	assert.Contains(t, err.Error(), "organization already exists")

	err = e.AuthorizeOrganizationCreate(subject("alice", RoleOwner, "", ""), true)
	assert.True(t, IsKind(err, KindValidation))

	err = e.AuthorizeOrganizationCreate(subject("bob", RoleAdmin, "", ""), false)
	assert.True(t, IsKind(err, KindAuthorization))
}

func TestEngine_CustomTables(t *testing.T) {
	tables, err := ParseTables([]byte(sampleTablesYAML))
	require.NoError(t, err)
	e := NewEngine(tables)

	_, err = e.AuthorizeAssignment(subject("u", RoleAdmin, "o", ""), "lead")
	rerr := AsError(err)
	assert.Equal(t, KindAuthorization, rerr.Kind)
	assert.Equal(t, []Role{RoleManager}, rerr.Allowed)
}
