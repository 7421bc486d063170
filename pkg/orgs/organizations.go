package orgs

import (
	"context"
	"errors"
	"strings"

	"github.com/r3aper2020/Gamut-MGMT/pkg/audit"
	"github.com/r3aper2020/Gamut-MGMT/pkg/observability"
	"github.com/r3aper2020/Gamut-MGMT/pkg/rbac"
	"github.com/r3aper2020/Gamut-MGMT/pkg/store"
)

func ownerClaimID(ownerID string) string {
	return "org_owner." + ownerID
}

// CreateOrganization founds an organization with its General team and binds
// the calling owner to both. Any failure after the first write removes the
// documents created here.
func (s *Service) CreateOrganization(ctx context.Context, caller rbac.Subject, req CreateOrganizationRequest) (org *Organization, err error) {
	ctx, span := s.startSpan(ctx, "create_organization", caller)
	defer func() { observability.EndSpan(span, err) }()

	if err := s.decide(ctx, "create_organization", caller, s.engine.RequireOwner(caller)); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, rbac.Validation("name is required")
	}
	if strings.TrimSpace(req.Timezone) == "" || strings.TrimSpace(req.Currency) == "" {
		return nil, rbac.Validation("timezone and currency are required")
	}

	owned, err := s.store.Query(ctx, store.CollectionOrganizations, store.Eq(fieldOwnerID, caller.ID))
	if err != nil {
		return nil, rbac.Infrastructure("failed to create organization", err)
	}
	if err := s.decide(ctx, "create_organization", caller, s.engine.AuthorizeOrganizationCreate(caller, len(owned) > 0)); err != nil {
		return nil, err
	}

	// Serializes concurrent creates by the same owner.
	claimID := ownerClaimID(caller.ID)
	err = s.store.Create(ctx, store.CollectionSystem, claimID, map[string]interface{}{fieldOwnerID: caller.ID})
	if errors.Is(err, store.ErrAlreadyExists) {
		return nil, rbac.Validation("organization already exists")
	}
	if err != nil {
		return nil, rbac.Infrastructure("failed to create organization", err)
	}

	var created []string
	rollback := func() {
		for i := len(created) - 1; i >= 0; i-- {
			collection, id, _ := strings.Cut(created[i], "/")
			s.compensateDocument(ctx, "create_organization", collection, id)
		}
		s.compensateDocument(ctx, "create_organization", store.CollectionSystem, claimID)
	}

	now := s.now().UTC()
	org = &Organization{
		Name:     name,
		Address:  strings.TrimSpace(req.Address),
		Industry: strings.TrimSpace(req.Industry),
		Size:     strings.TrimSpace(req.Size),
		Settings: OrgSettings{
			Timezone: strings.TrimSpace(req.Timezone),
			Currency: strings.TrimSpace(req.Currency),
		},
		OwnerID:   caller.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	orgFields, err := organizationFields(org)
	if err == nil {
		org.ID, err = s.store.Add(ctx, store.CollectionOrganizations, orgFields)
	}
	if err != nil {
		rollback()
		return nil, rbac.Infrastructure("failed to create organization", err)
	}
	created = append(created, store.CollectionOrganizations+"/"+org.ID)

	general := &Team{
		Name:           GeneralTeamName,
		Description:    "Default team",
		OrganizationID: org.ID,
		MemberCount:    1,
		IsDefault:      true,
	}
	teamDoc, err := teamFields(general)
	if err == nil {
		general.ID, err = s.store.Add(ctx, store.CollectionTeams, teamDoc)
	}
	if err != nil {
		rollback()
		return nil, rbac.Infrastructure("failed to create organization", err)
	}
	created = append(created, store.CollectionTeams+"/"+general.ID)

	previous, err := s.identities.GetIdentity(ctx, caller.ID)
	if err != nil {
		rollback()
		return nil, identityError(err, "failed to create organization")
	}

	binding := map[string]interface{}{fieldOrganizationID: org.ID, fieldTeamID: general.ID}
	if err := s.store.Update(ctx, store.CollectionUsers, caller.ID, binding); err != nil {
		rollback()
		return nil, rbac.Infrastructure("failed to create organization", err)
	}

	claims := previous.Claims
	claims.OrganizationID = org.ID
	claims.TeamID = general.ID
	if err := s.identities.SetClaims(ctx, caller.ID, claims); err != nil {
		s.unbindUser(ctx, caller.ID)
		rollback()
		return nil, rbac.Infrastructure("failed to create organization", err)
	}

	s.emit(ctx, audit.NewEvent(ctx, audit.EventTypeAdminOrgCreate, audit.EventStatusSuccess, actorOf(caller)).
		On(audit.ResourceTypeOrganization, org.ID).
		WithMetadata("generalTeamId", general.ID))
	return org, nil
}

func (s *Service) unbindUser(ctx context.Context, uid string) {
	ctx = context.WithoutCancel(ctx)
	err := s.store.Update(ctx, store.CollectionUsers, uid, map[string]interface{}{
		fieldOrganizationID: nil,
		fieldTeamID:         nil,
	})
	if err != nil {
		s.metrics.RecordCompensationFailure("create_organization", "unbind_user")
		observability.FromContext(ctx).
			WithError(err).
			WithField("identity_id", uid).
			Error("failed to unbind user after organization create failure")
	}
}

// GetOrganization returns the caller's organization, or nil when the caller has none
func (s *Service) GetOrganization(ctx context.Context, caller rbac.Subject) (org *Organization, err error) {
	ctx, span := s.startSpan(ctx, "get_organization", caller)
	defer func() { observability.EndSpan(span, err) }()

	orgID := caller.OrganizationID
	record, err := s.loadUser(ctx, caller.ID)
	switch {
	case err == nil:
		orgID = record.OrganizationID
	case rbac.IsKind(err, rbac.KindNotFound):
		return nil, rbac.NotFound("user not found")
	default:
		return nil, err
	}
	if orgID == "" {
		return nil, nil
	}
	return s.loadOrganization(ctx, orgID)
}

func (s *Service) loadOrganization(ctx context.Context, orgID string) (*Organization, error) {
	doc, err := s.store.Get(ctx, store.CollectionOrganizations, orgID)
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidField) {
		return nil, rbac.NotFound("organization not found")
	}
	if err != nil {
		return nil, rbac.Infrastructure("failed to load organization", err)
	}
	org, err := organizationFromDoc(doc)
	if err != nil {
		return nil, rbac.Infrastructure("failed to load organization", err)
	}
	return org, nil
}

// UpdateOrganization changes details and settings of the caller's organization
func (s *Service) UpdateOrganization(ctx context.Context, caller rbac.Subject, req UpdateOrganizationRequest) (org *Organization, err error) {
	ctx, span := s.startSpan(ctx, "update_organization", caller)
	defer func() { observability.EndSpan(span, err) }()

	if err := s.decide(ctx, "update_organization", caller, s.engine.Require(caller, rbac.PermManageOrgSettings)); err != nil {
		return nil, err
	}
	orgID, err := s.engine.RequireOrganization(caller)
	if err = s.decide(ctx, "update_organization", caller, err); err != nil {
		return nil, err
	}

	org, err = s.loadOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	before := map[string]interface{}{}
	fields := map[string]interface{}{}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, rbac.Validation("name cannot be empty")
		}
		before["name"], fields["name"] = org.Name, name
		org.Name = name
	}
	optional := []struct {
		key   string
		value *string
		dst   *string
	}{
		{"address", req.Address, &org.Address},
		{"industry", req.Industry, &org.Industry},
		{"size", req.Size, &org.Size},
	}
	for _, f := range optional {
		if f.value == nil {
			continue
		}
		v := strings.TrimSpace(*f.value)
		before[f.key], fields[f.key] = *f.dst, nullable(v)
		*f.dst = v
	}
	if req.Timezone != nil || req.Currency != nil {
		before["settings"] = org.Settings
		if req.Timezone != nil {
			tz := strings.TrimSpace(*req.Timezone)
			if tz == "" {
				return nil, rbac.Validation("timezone cannot be empty")
			}
			org.Settings.Timezone = tz
		}
		if req.Currency != nil {
			cur := strings.TrimSpace(*req.Currency)
			if cur == "" {
				return nil, rbac.Validation("currency cannot be empty")
			}
			org.Settings.Currency = cur
		}
		fields["settings"] = map[string]interface{}{
			"timezone": org.Settings.Timezone,
			"currency": org.Settings.Currency,
		}
	}
	if len(fields) == 0 {
		return nil, rbac.Validation("no changes provided")
	}

	if err := s.store.Update(ctx, store.CollectionOrganizations, orgID, fields); err != nil {
		return nil, rbac.Infrastructure("failed to update organization", err)
	}
	org.UpdatedAt = s.now().UTC()

	s.emit(ctx, audit.NewEvent(ctx, audit.EventTypeAdminOrgUpdate, audit.EventStatusSuccess, actorOf(caller)).
		On(audit.ResourceTypeOrganization, orgID).
		WithChanges(before, fields))
	return org, nil
}
