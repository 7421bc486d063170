package orgs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3aper2020/Gamut-MGMT/pkg/audit"
	"github.com/r3aper2020/Gamut-MGMT/pkg/rbac"
)

func TestCreateTeam(t *testing.T) {
	env := newTestEnv(t)
	alice, org := env.acme(t)

	team, err := env.svc.CreateTeam(env.ctx, alice, TeamRequest{Name: " Sales ", Specialty: "Roofing"})
	require.NoError(t, err)
	assert.NotEmpty(t, team.ID)
	assert.Equal(t, "Sales", team.Name)
	assert.Equal(t, org.ID, team.OrganizationID)
	assert.Equal(t, int64(0), env.memberCount(t, team.ID))
	assert.Contains(t, env.audit.types(), audit.EventTypeTeamCreate)

	_, err = env.svc.CreateTeam(env.ctx, alice, TeamRequest{Name: "sales"})
	requireKind(t, err, rbac.KindValidation)

	_, err = env.svc.CreateTeam(env.ctx, alice, TeamRequest{Name: ""})
	requireKind(t, err, rbac.KindValidation)
}

func TestTeamManagementGates(t *testing.T) {
	env := newTestEnv(t)
	alice, _ := env.acme(t)
	env.createUser(t, alice, "max@x.com", "manager", "")
	manager := env.signIn(t, "max@x.com")

	_, err := env.svc.CreateTeam(env.ctx, manager, TeamRequest{Name: "Rogue"})
	requireKind(t, err, rbac.KindAuthorization)

	err = env.svc.DeleteTeam(env.ctx, manager, alice.TeamID)
	requireKind(t, err, rbac.KindAuthorization)

	env.createUser(t, alice, "carol@x.com", "admin", "")
	carol := env.signIn(t, "carol@x.com")
	_, err = env.svc.CreateTeam(env.ctx, carol, TeamRequest{Name: "Ops"})
	assert.NoError(t, err)
}

func TestListTeamsScopes(t *testing.T) {
	env := newTestEnv(t)
	alice, _ := env.acme(t)
	sales, err := env.svc.CreateTeam(env.ctx, alice, TeamRequest{Name: "Sales"})
	require.NoError(t, err)
	env.createUser(t, alice, "mia@x.com", "member", sales.ID)
	member := env.signIn(t, "mia@x.com")

	all, err := env.svc.ListTeams(env.ctx, alice)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	own, err := env.svc.ListTeams(env.ctx, member)
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, sales.ID, own[0].ID)
	assert.Equal(t, int64(1), own[0].MemberCount)

	loner, err := env.svc.Signup(env.ctx, SignupRequest{Email: "solo@x.com", Password: testPassword, DisplayName: "Solo"})
	require.NoError(t, err)
	none, err := env.svc.ListTeams(env.ctx, loner.Subject())
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestUpdateTeam(t *testing.T) {
	env := newTestEnv(t)
	alice, _ := env.acme(t)
	sales, err := env.svc.CreateTeam(env.ctx, alice, TeamRequest{Name: "Sales", Description: "Field sales"})
	require.NoError(t, err)
	_, err = env.svc.CreateTeam(env.ctx, alice, TeamRequest{Name: "Ops"})
	require.NoError(t, err)

	name := "Inside Sales"
	desc := ""
	updated, err := env.svc.UpdateTeam(env.ctx, alice, sales.ID, TeamUpdate{Name: &name, Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, "Inside Sales", updated.Name)
	assert.Empty(t, updated.Description)

	taken := "ops"
	_, err = env.svc.UpdateTeam(env.ctx, alice, sales.ID, TeamUpdate{Name: &taken})
	requireKind(t, err, rbac.KindValidation)

	rename := "Everyone"
	_, err = env.svc.UpdateTeam(env.ctx, alice, alice.TeamID, TeamUpdate{Name: &rename})
	requireKind(t, err, rbac.KindValidation)

	_, err = env.svc.UpdateTeam(env.ctx, alice, "missing", TeamUpdate{Name: &rename})
	requireKind(t, err, rbac.KindNotFound)
}

func TestDeleteTeamMovesMembersToGeneral(t *testing.T) {
	env := newTestEnv(t)
	alice, _ := env.acme(t)
	sales, err := env.svc.CreateTeam(env.ctx, alice, TeamRequest{Name: "Sales"})
	require.NoError(t, err)
	bob := env.createUser(t, alice, "bob@x.com", "member", sales.ID)
	mia := env.createUser(t, alice, "mia@x.com", "member", sales.ID)
	require.Equal(t, int64(2), env.memberCount(t, sales.ID))

	require.NoError(t, env.svc.DeleteTeam(env.ctx, alice, sales.ID))

	_, err = env.svc.loadTeam(context.Background(), alice.OrganizationID, sales.ID)
	requireKind(t, err, rbac.KindNotFound)
	assert.Equal(t, int64(3), env.memberCount(t, alice.TeamID))

	for _, uid := range []string{bob.ID, mia.ID} {
		assert.Equal(t, alice.TeamID, env.record(t, uid).TeamID)
		ident, err := env.local.GetIdentity(context.Background(), uid)
		require.NoError(t, err)
		assert.Equal(t, alice.TeamID, ident.Claims.TeamID)
	}
}

func TestDeleteGeneralTeamRefused(t *testing.T) {
	env := newTestEnv(t)
	alice, _ := env.acme(t)

	err := env.svc.DeleteTeam(env.ctx, alice, alice.TeamID)
	requireKind(t, err, rbac.KindValidation)
	assert.Equal(t, int64(1), env.memberCount(t, alice.TeamID))
}

func TestTeamsAreOrganizationScoped(t *testing.T) {
	env := newTestEnv(t)
	alice, _ := env.acme(t)
	sales, err := env.svc.CreateTeam(env.ctx, alice, TeamRequest{Name: "Sales"})
	require.NoError(t, err)

	outsider := alice
	outsider.OrganizationID = "another-org"
	err = env.svc.DeleteTeam(env.ctx, outsider, sales.ID)
	requireKind(t, err, rbac.KindNotFound)

	_, err = env.svc.CreateUser(env.ctx, outsider, CreateUserRequest{
		Email: "x@x.com", Password: testPassword, DisplayName: "X", Role: "member", TeamID: sales.ID,
	})
	requireKind(t, err, rbac.KindNotFound)
}
