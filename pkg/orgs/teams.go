package orgs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/r3aper2020/Gamut-MGMT/pkg/audit"
	"github.com/r3aper2020/Gamut-MGMT/pkg/identity"
	"github.com/r3aper2020/Gamut-MGMT/pkg/observability"
	"github.com/r3aper2020/Gamut-MGMT/pkg/rbac"
	"github.com/r3aper2020/Gamut-MGMT/pkg/store"
)

// authorizeTeamChange gates team management and returns the caller's organization
func (s *Service) authorizeTeamChange(ctx context.Context, op string, caller rbac.Subject) (string, error) {
	if err := s.decide(ctx, op, caller, s.engine.RequireAdmin(caller)); err != nil {
		return "", err
	}
	if err := s.decide(ctx, op, caller, s.engine.Require(caller, rbac.PermManageTeams)); err != nil {
		return "", err
	}
	orgID, err := s.engine.RequireOrganization(caller)
	return orgID, s.decide(ctx, op, caller, err)
}

// ListTeams returns the teams visible to the caller, ordered by id
func (s *Service) ListTeams(ctx context.Context, caller rbac.Subject) (teams []*Team, err error) {
	ctx, span := s.startSpan(ctx, "list_teams", caller)
	defer func() { observability.EndSpan(span, err) }()

	scope := s.engine.TeamScope(caller)
	if scope.Empty {
		return []*Team{}, nil
	}

	if scope.TeamID != "" {
		team, err := s.loadTeam(ctx, scope.OrganizationID, scope.TeamID)
		if rbac.IsKind(err, rbac.KindNotFound) {
			return []*Team{}, nil
		}
		if err != nil {
			return nil, err
		}
		return []*Team{team}, nil
	}

	docs, err := s.store.Query(ctx, store.CollectionTeams, store.Eq(fieldOrganizationID, scope.OrganizationID))
	if err != nil {
		return nil, rbac.Infrastructure("failed to list teams", err)
	}
	all, err := teamsFromDocs(docs)
	if err != nil {
		return nil, rbac.Infrastructure("failed to list teams", err)
	}
	teams = make([]*Team, 0, len(all))
	for _, team := range all {
		if scope.AllowsTeam(team.ID, team.OrganizationID) {
			teams = append(teams, team)
		}
	}
	return teams, nil
}

// teamNameTaken reports whether another team in the organization uses name
func (s *Service) teamNameTaken(ctx context.Context, orgID, name, exceptID string) (bool, error) {
	docs, err := s.store.Query(ctx, store.CollectionTeams, store.Eq(fieldOrganizationID, orgID))
	if err != nil {
		return false, rbac.Infrastructure("failed to check team name", err)
	}
	for _, doc := range docs {
		if doc.ID != exceptID && strings.EqualFold(doc.String("name"), name) {
			return true, nil
		}
	}
	return false, nil
}

// CreateTeam adds an empty team to the caller's organization
func (s *Service) CreateTeam(ctx context.Context, caller rbac.Subject, req TeamRequest) (team *Team, err error) {
	ctx, span := s.startSpan(ctx, "create_team", caller)
	defer func() { observability.EndSpan(span, err) }()

	orgID, err := s.authorizeTeamChange(ctx, "create_team", caller)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, rbac.Validation("name is required")
	}
	taken, err := s.teamNameTaken(ctx, orgID, name, "")
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, rbac.Validation(fmt.Sprintf("a team named %q already exists", name))
	}

	now := s.now().UTC()
	team = &Team{
		Name:           name,
		Specialty:      strings.TrimSpace(req.Specialty),
		Description:    strings.TrimSpace(req.Description),
		OrganizationID: orgID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	fields, err := teamFields(team)
	if err == nil {
		team.ID, err = s.store.Add(ctx, store.CollectionTeams, fields)
	}
	if err != nil {
		return nil, rbac.Infrastructure("failed to create team", err)
	}

	s.emit(ctx, audit.NewEvent(ctx, audit.EventTypeTeamCreate, audit.EventStatusSuccess, actorOf(caller)).
		On(audit.ResourceTypeTeam, team.ID).
		WithChanges(nil, map[string]interface{}{"name": name}))
	return team, nil
}

// UpdateTeam changes a team's details. The General team keeps its name.
func (s *Service) UpdateTeam(ctx context.Context, caller rbac.Subject, teamID string, update TeamUpdate) (team *Team, err error) {
	ctx, span := s.startSpan(ctx, "update_team", caller)
	defer func() { observability.EndSpan(span, err) }()

	orgID, err := s.authorizeTeamChange(ctx, "update_team", caller)
	if err != nil {
		return nil, err
	}
	team, err = s.loadTeam(ctx, orgID, teamID)
	if err != nil {
		return nil, err
	}

	before := map[string]interface{}{}
	fields := map[string]interface{}{}
	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return nil, rbac.Validation("name cannot be empty")
		}
		if name != team.Name {
			if team.IsDefault {
				return nil, rbac.Validation("the General team cannot be renamed")
			}
			taken, err := s.teamNameTaken(ctx, orgID, name, team.ID)
			if err != nil {
				return nil, err
			}
			if taken {
				return nil, rbac.Validation(fmt.Sprintf("a team named %q already exists", name))
			}
			before["name"], fields["name"] = team.Name, name
			team.Name = name
		}
	}
	if update.Specialty != nil {
		v := strings.TrimSpace(*update.Specialty)
		before["specialty"], fields["specialty"] = team.Specialty, nullable(v)
		team.Specialty = v
	}
	if update.Description != nil {
		v := strings.TrimSpace(*update.Description)
		before["description"], fields["description"] = team.Description, nullable(v)
		team.Description = v
	}
	if len(fields) == 0 {
		return team, nil
	}

	if err := s.store.Update(ctx, store.CollectionTeams, team.ID, fields); err != nil {
		return nil, rbac.Infrastructure("failed to update team", err)
	}
	team.UpdatedAt = s.now().UTC()

	s.emit(ctx, audit.NewEvent(ctx, audit.EventTypeTeamUpdate, audit.EventStatusSuccess, actorOf(caller)).
		On(audit.ResourceTypeTeam, team.ID).
		WithChanges(before, fields))
	return team, nil
}

// DeleteTeam removes a team and moves its members to the General team.
// The General team itself cannot be deleted.
func (s *Service) DeleteTeam(ctx context.Context, caller rbac.Subject, teamID string) (err error) {
	ctx, span := s.startSpan(ctx, "delete_team", caller)
	defer func() { observability.EndSpan(span, err) }()

	orgID, err := s.authorizeTeamChange(ctx, "delete_team", caller)
	if err != nil {
		return err
	}
	team, err := s.loadTeam(ctx, orgID, teamID)
	if err != nil {
		return err
	}
	if team.IsDefault {
		return rbac.Validation("the General team cannot be deleted")
	}

	general, err := s.generalTeam(ctx, orgID)
	if err != nil {
		return err
	}
	destination := ""
	if general != nil {
		destination = general.ID
	}

	docs, err := s.store.Query(ctx, store.CollectionUsers,
		store.Eq(fieldOrganizationID, orgID),
		store.Eq(fieldTeamID, team.ID),
	)
	if err != nil {
		return rbac.Infrastructure("failed to delete team", err)
	}

	moved := 0
	for _, doc := range docs {
		err := s.store.Update(ctx, store.CollectionUsers, doc.ID, map[string]interface{}{fieldTeamID: nullable(destination)})
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			s.adjustCounters(ctx, "delete_team", moveDeltas(destination, moved))
			return rbac.Infrastructure("failed to move team members", err)
		}
		moved++
		s.mirrorTeamClaim(ctx, doc.ID, destination)
	}
	s.adjustCounters(ctx, "delete_team", moveDeltas(destination, moved))

	if err := s.store.Delete(ctx, store.CollectionTeams, team.ID); err != nil {
		return rbac.Infrastructure("failed to delete team", err)
	}

	s.emit(ctx, audit.NewEvent(ctx, audit.EventTypeTeamDelete, audit.EventStatusSuccess, actorOf(caller)).
		On(audit.ResourceTypeTeam, team.ID).
		WithChanges(map[string]interface{}{"name": team.Name}, nil).
		WithMetadata("membersMoved", moved).
		WithMetadata("movedTo", destination))
	return nil
}

// moveDeltas credits the destination team with n moved members
func moveDeltas(destination string, n int) []rbac.CounterDelta {
	if destination == "" || n == 0 {
		return nil
	}
	return []rbac.CounterDelta{{TeamID: destination, Delta: int64(n)}}
}

// mirrorTeamClaim copies a team change into the identity's claims. The user
// record stays authoritative, so failures are only logged.
func (s *Service) mirrorTeamClaim(ctx context.Context, uid, teamID string) {
	current, err := s.identities.GetIdentity(ctx, uid)
	if err == nil {
		claims := current.Claims
		claims.TeamID = teamID
		err = s.identities.SetClaims(ctx, uid, claims)
	}
	if err != nil && !errors.Is(err, identity.ErrNotFound) {
		observability.FromContext(ctx).
			WithError(err).
			WithFields(map[string]interface{}{"identity_id": uid, "team_id": teamID}).
			Warn("failed to mirror team change into claims")
	}
}
