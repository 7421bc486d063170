package orgs

import (
	"context"
	"errors"
	"strings"

	"github.com/r3aper2020/Gamut-MGMT/pkg/audit"
	"github.com/r3aper2020/Gamut-MGMT/pkg/identity"
	"github.com/r3aper2020/Gamut-MGMT/pkg/observability"
	"github.com/r3aper2020/Gamut-MGMT/pkg/rbac"
	"github.com/r3aper2020/Gamut-MGMT/pkg/store"
)

type accountInput struct {
	email       string
	password    string
	displayName string
}

func validateAccount(email, password, displayName string) (accountInput, error) {
	normalized, err := identity.NormalizeEmail(email)
	if err != nil {
		return accountInput{}, rbac.Validation("a valid email address is required")
	}
	if password == "" {
		return accountInput{}, rbac.Validation("password is required")
	}
	name := strings.TrimSpace(displayName)
	if name == "" {
		return accountInput{}, rbac.Validation("displayName is required")
	}
	return accountInput{email: normalized, password: password, displayName: name}, nil
}

// Signup registers a new account. The first account in the system becomes
// the owner; every later one joins as a member without an organization.
func (s *Service) Signup(ctx context.Context, req SignupRequest) (user *User, err error) {
	ctx, span := s.startSpan(ctx, "signup", rbac.Subject{})
	defer func() { observability.EndSpan(span, err) }()

	in, err := validateAccount(req.Email, req.Password, req.DisplayName)
	if err != nil {
		return nil, err
	}

	ident, err := s.identities.CreateIdentity(ctx, in.email, in.password, in.displayName)
	if err != nil {
		return nil, identityError(err, "error creating account")
	}

	role, claimedBootstrap, err := s.claimBootstrap(ctx, ident.ID)
	if err != nil {
		s.compensateIdentity(ctx, "signup", ident.ID)
		return nil, rbac.Infrastructure("error creating account", err)
	}
	undo := func() {
		s.compensateIdentity(ctx, "signup", ident.ID)
		if claimedBootstrap {
			s.compensateDocument(ctx, "signup", store.CollectionSystem, bootstrapDocID)
		}
	}

	if err := s.identities.SetClaims(ctx, ident.ID, identity.Claims{Role: string(role)}); err != nil {
		undo()
		return nil, rbac.Infrastructure("error creating account", err)
	}

	now := s.now().UTC()
	user = &User{
		ID:          ident.ID,
		Email:       in.email,
		DisplayName: in.displayName,
		Role:        role,
		CreatedBy:   ident.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	fields, err := userFields(user)
	if err == nil {
		err = s.store.Set(ctx, store.CollectionUsers, user.ID, fields)
	}
	if err != nil {
		undo()
		return nil, rbac.Infrastructure("error creating account", err)
	}

	s.emit(ctx, audit.NewEvent(ctx, audit.EventTypeAuthSignup, audit.EventStatusSuccess, actorOf(user.Subject())).
		On(audit.ResourceTypeUser, user.ID).
		WithMetadata("role", string(role)))
	return user, nil
}

// claimBootstrap atomically decides whether this registrant is the first
func (s *Service) claimBootstrap(ctx context.Context, identityID string) (rbac.Role, bool, error) {
	err := s.store.Create(ctx, store.CollectionSystem, bootstrapDocID, map[string]interface{}{
		fieldOwnerID: identityID,
	})
	switch {
	case err == nil:
		return s.engine.SignupRole(false), true, nil
	case errors.Is(err, store.ErrAlreadyExists):
		return s.engine.SignupRole(true), false, nil
	default:
		return "", false, err
	}
}

// SignIn exchanges an email and password for a session token
func (s *Service) SignIn(ctx context.Context, email, password string) (*identity.Session, error) {
	if s.auth == nil {
		return nil, rbac.Configuration("password sign-in is not enabled")
	}
	session, err := s.auth.SignIn(ctx, email, password)
	if errors.Is(err, identity.ErrInvalidCredential) {
		return nil, rbac.Authentication("invalid email or password")
	}
	if err != nil {
		return nil, rbac.Infrastructure("sign-in failed", err)
	}

	actor := audit.Actor{ID: session.Identity.ID, Email: session.Identity.Email, Role: session.Identity.Claims.Role, OrganizationID: session.Identity.Claims.OrganizationID}
	s.emit(ctx, audit.NewEvent(ctx, audit.EventTypeAuthLogin, audit.EventStatusSuccess, actor).
		On(audit.ResourceTypeUser, session.Identity.ID))
	return session, nil
}

// ResolveCaller verifies a bearer credential and builds the caller from the
// provider's current claims. The team comes from the user record when one exists.
func (s *Service) ResolveCaller(ctx context.Context, credential string) (rbac.Subject, error) {
	verified, err := s.identities.Verify(ctx, credential)
	switch {
	case errors.Is(err, identity.ErrExpiredCredential):
		return rbac.Subject{}, rbac.Authentication("token expired")
	case errors.Is(err, identity.ErrInvalidCredential):
		return rbac.Subject{}, rbac.Authentication("invalid token")
	case err != nil:
		return rbac.Subject{}, rbac.Infrastructure("failed to verify credential", err)
	}

	current, err := s.identities.GetIdentity(ctx, verified.ID)
	if errors.Is(err, identity.ErrNotFound) {
		return rbac.Subject{}, rbac.Authentication("account no longer exists")
	}
	if err != nil {
		return rbac.Subject{}, rbac.Infrastructure("failed to load account", err)
	}

	caller := rbac.Subject{
		ID:             current.ID,
		Email:          current.Email,
		Role:           claimRole(current.Claims.Role),
		OrganizationID: current.Claims.OrganizationID,
		TeamID:         current.Claims.TeamID,
	}

	doc, err := s.store.Get(ctx, store.CollectionUsers, current.ID)
	switch {
	case err == nil:
		caller.TeamID = doc.String(fieldTeamID)
	case errors.Is(err, store.ErrNotFound):
	default:
		return rbac.Subject{}, rbac.Infrastructure("failed to load user record", err)
	}
	return caller, nil
}

// claimRole parses a role claim; unknown values grant nothing
func claimRole(raw string) rbac.Role {
	role, err := rbac.ParseRole(raw)
	if err != nil {
		return ""
	}
	return role
}

// CreateUser provisions a new identity inside the caller's organization.
// A failure after the identity exists removes it again.
func (s *Service) CreateUser(ctx context.Context, caller rbac.Subject, req CreateUserRequest) (user *User, err error) {
	ctx, span := s.startSpan(ctx, "create_user", caller)
	defer func() { observability.EndSpan(span, err) }()

	// Assignment denials go first so the caller learns which roles it may assign.
	role, assignErr := s.engine.AuthorizeAssignment(caller, req.Role)
	if rbac.IsKind(assignErr, rbac.KindAuthorization) {
		return nil, s.decide(ctx, "create_user", caller, assignErr)
	}
	if err := s.decide(ctx, "create_user", caller, s.engine.RequireAdmin(caller)); err != nil {
		return nil, err
	}
	orgID, err := s.engine.RequireOrganization(caller)
	if err = s.decide(ctx, "create_user", caller, err); err != nil {
		return nil, err
	}
	if assignErr != nil {
		return nil, assignErr
	}

	in, err := validateAccount(req.Email, req.Password, req.DisplayName)
	if err != nil {
		return nil, err
	}

	requestedTeam := strings.TrimSpace(req.TeamID)
	general := ""
	if requestedTeam != "" {
		if _, err := s.loadTeam(ctx, orgID, requestedTeam); err != nil {
			return nil, err
		}
	} else {
		team, err := s.generalTeam(ctx, orgID)
		if err != nil {
			return nil, err
		}
		if team != nil {
			general = team.ID
		}
	}
	teamID := s.engine.DefaultTeam(requestedTeam, general)

	ident, err := s.identities.CreateIdentity(ctx, in.email, in.password, in.displayName)
	if err != nil {
		return nil, identityError(err, "failed to create user")
	}

	claims := identity.Claims{Role: string(role), OrganizationID: orgID, TeamID: teamID}
	if err := s.identities.SetClaims(ctx, ident.ID, claims); err != nil {
		s.compensateIdentity(ctx, "create_user", ident.ID)
		return nil, rbac.Infrastructure("failed to create user", err)
	}

	now := s.now().UTC()
	user = &User{
		ID:             ident.ID,
		Email:          in.email,
		DisplayName:    in.displayName,
		Role:           role,
		OrganizationID: orgID,
		TeamID:         teamID,
		JobTitle:       strings.TrimSpace(req.JobTitle),
		PhoneNumber:    strings.TrimSpace(req.PhoneNumber),
		CreatedBy:      caller.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	fields, err := userFields(user)
	if err == nil {
		err = s.store.Set(ctx, store.CollectionUsers, user.ID, fields)
	}
	if err != nil {
		s.compensateIdentity(ctx, "create_user", ident.ID)
		return nil, rbac.Infrastructure("failed to create user", err)
	}

	s.adjustCounters(ctx, "create_user", s.engine.TeamTransfer("", teamID))

	s.emit(ctx, audit.NewEvent(ctx, audit.EventTypeAdminUserCreate, audit.EventStatusSuccess, actorOf(caller)).
		On(audit.ResourceTypeUser, user.ID).
		WithChanges(nil, map[string]interface{}{"role": string(role), "teamId": teamID}))
	return user, nil
}

// ListUsers returns the users visible to the caller, ordered by id
func (s *Service) ListUsers(ctx context.Context, caller rbac.Subject) (users []*User, err error) {
	ctx, span := s.startSpan(ctx, "list_users", caller)
	defer func() { observability.EndSpan(span, err) }()

	scope := s.engine.UserScope(caller)
	if scope.Empty {
		return []*User{}, nil
	}

	if scope.SelfID != "" {
		self, err := s.loadUser(ctx, scope.SelfID)
		if rbac.IsKind(err, rbac.KindNotFound) {
			return []*User{}, nil
		}
		if err != nil {
			return nil, err
		}
		return []*User{self}, nil
	}

	var filters []store.Filter
	if scope.OrganizationID != "" {
		filters = append(filters, store.Eq(fieldOrganizationID, scope.OrganizationID))
	}
	if scope.TeamID != "" {
		filters = append(filters, store.Eq(fieldTeamID, scope.TeamID))
	}
	if len(filters) == 0 {
		return []*User{}, nil
	}

	docs, err := s.store.Query(ctx, store.CollectionUsers, filters...)
	if err != nil {
		return nil, rbac.Infrastructure("failed to list users", err)
	}
	all, err := usersFromDocs(docs)
	if err != nil {
		return nil, rbac.Infrastructure("failed to list users", err)
	}

	users = make([]*User, 0, len(all))
	for _, u := range all {
		if scope.Allows(u.Subject()) {
			users = append(users, u)
		}
	}
	return users, nil
}

// UpdateProfile changes the caller's own job title and phone number. It
// reports false when the update carried no changes.
func (s *Service) UpdateProfile(ctx context.Context, caller rbac.Subject, update ProfileUpdate) (changed bool, err error) {
	ctx, span := s.startSpan(ctx, "update_profile", caller)
	defer func() { observability.EndSpan(span, err) }()

	fields := map[string]interface{}{}
	if v := strings.TrimSpace(update.JobTitle); v != "" {
		fields["jobTitle"] = v
	}
	if v := strings.TrimSpace(update.PhoneNumber); v != "" {
		fields["phoneNumber"] = v
	}
	if len(fields) == 0 {
		return false, nil
	}

	err = s.store.Update(ctx, store.CollectionUsers, caller.ID, fields)
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidField) {
		return false, rbac.NotFound("user profile not found")
	}
	if err != nil {
		return false, rbac.Infrastructure("failed to update profile", err)
	}

	s.emit(ctx, audit.NewEvent(ctx, audit.EventTypeProfileUpdate, audit.EventStatusSuccess, actorOf(caller)).
		On(audit.ResourceTypeUser, caller.ID).
		WithChanges(nil, fields))
	return true, nil
}

// AdminAction echoes the authenticated caller
func (s *Service) AdminAction(caller rbac.Subject) AdminActionResult {
	return AdminActionResult{
		Message: "Admin action performed successfully",
		UserID:  caller.ID,
		Email:   caller.Email,
	}
}

// AdminUpdateUser applies an administrative change to another user. Claims
// are written first; a failed record write restores the previous claims.
func (s *Service) AdminUpdateUser(ctx context.Context, caller rbac.Subject, uid string, update UserUpdate) (user *User, err error) {
	ctx, span := s.startSpan(ctx, "admin_update_user", caller)
	defer func() { observability.EndSpan(span, err) }()

	if err := s.decide(ctx, "admin_update_user", caller, s.engine.RequireAdmin(caller)); err != nil {
		return nil, err
	}
	if update.IsEmpty() {
		return nil, rbac.Validation("no changes provided")
	}

	target, err := s.loadUser(ctx, uid)
	if err != nil {
		return nil, err
	}
	before := *target

	newRole, err := s.engine.AuthorizeEdit(caller, target.Subject(), rbac.EditChange{
		Role:           update.Role,
		OrganizationID: update.OrganizationID,
	})
	if err = s.decide(ctx, "admin_update_user", caller, err); err != nil {
		return nil, err
	}

	newTeam := target.TeamID
	if update.TeamID != nil {
		newTeam = strings.TrimSpace(*update.TeamID)
		if newTeam != "" && newTeam != target.TeamID {
			if _, err := s.loadTeam(ctx, target.OrganizationID, newTeam); err != nil {
				return nil, err
			}
		}
	}

	fields := map[string]interface{}{}
	claimsChanged := false
	if newRole != nil {
		target.Role = *newRole
		fields[fieldRole] = string(*newRole)
		claimsChanged = true
	}
	if newTeam != target.TeamID {
		target.TeamID = newTeam
		fields[fieldTeamID] = nullable(newTeam)
		claimsChanged = true
	}
	if update.JobTitle != nil {
		target.JobTitle = strings.TrimSpace(*update.JobTitle)
		fields["jobTitle"] = nullable(target.JobTitle)
	}
	if update.PhoneNumber != nil {
		target.PhoneNumber = strings.TrimSpace(*update.PhoneNumber)
		fields["phoneNumber"] = nullable(target.PhoneNumber)
	}
	if len(fields) == 0 {
		return target, nil
	}

	var previous identity.Claims
	if claimsChanged {
		current, err := s.identities.GetIdentity(ctx, uid)
		if err != nil {
			return nil, identityError(err, "failed to update user")
		}
		previous = current.Claims
		next := identity.Claims{
			Role:           string(target.Role),
			OrganizationID: target.OrganizationID,
			TeamID:         target.TeamID,
		}
		if err := s.identities.SetClaims(ctx, uid, next); err != nil {
			return nil, identityError(err, "failed to update user")
		}
	}

	if err := s.store.Update(ctx, store.CollectionUsers, uid, fields); err != nil {
		if claimsChanged {
			s.restoreClaims(ctx, "admin_update_user", uid, previous)
		}
		return nil, rbac.Infrastructure("failed to update user", err)
	}
	target.UpdatedAt = s.now().UTC()

	s.adjustCounters(ctx, "admin_update_user", s.engine.TeamTransfer(before.TeamID, target.TeamID))

	if newRole != nil {
		s.emit(ctx, audit.NewEvent(ctx, audit.EventTypeAuthzRoleChange, audit.EventStatusSuccess, actorOf(caller)).
			On(audit.ResourceTypeUser, uid).
			WithChanges(map[string]interface{}{"role": string(before.Role)}, map[string]interface{}{"role": string(target.Role)}))
	}
	s.emit(ctx, audit.NewEvent(ctx, audit.EventTypeAdminUserUpdate, audit.EventStatusSuccess, actorOf(caller)).
		On(audit.ResourceTypeUser, uid).
		WithChanges(changedFields(&before, fields), fields))
	return target, nil
}

func (s *Service) restoreClaims(ctx context.Context, op, uid string, claims identity.Claims) {
	ctx = context.WithoutCancel(ctx)
	if err := s.identities.SetClaims(ctx, uid, claims); err != nil {
		s.metrics.RecordCompensationFailure(op, "restore_claims")
		observability.FromContext(ctx).
			WithError(err).
			WithFields(map[string]interface{}{"identity_id": uid, "operation": op}).
			Error("failed to restore claims after record update failure")
	}
}

// AdminDeleteUser removes another user's identity and record
func (s *Service) AdminDeleteUser(ctx context.Context, caller rbac.Subject, uid string) (err error) {
	ctx, span := s.startSpan(ctx, "admin_delete_user", caller)
	defer func() { observability.EndSpan(span, err) }()

	if err := s.decide(ctx, "admin_delete_user", caller, s.engine.RequireAdmin(caller)); err != nil {
		return err
	}

	target, err := s.loadUser(ctx, uid)
	if err != nil {
		return err
	}
	if err := s.decide(ctx, "admin_delete_user", caller, s.engine.AuthorizeDelete(caller, target.Subject())); err != nil {
		return err
	}

	if err := s.identities.DeleteIdentity(ctx, uid); err != nil && !errors.Is(err, identity.ErrNotFound) {
		return rbac.Infrastructure("failed to delete user", err)
	}
	if err := s.store.Delete(ctx, store.CollectionUsers, uid); err != nil {
		observability.FromContext(ctx).
			WithError(err).
			WithField("identity_id", uid).
			Error("identity deleted but user record remains; left for reconciliation")
		return rbac.Infrastructure("failed to delete user record", err)
	}

	s.adjustCounters(ctx, "admin_delete_user", s.engine.TeamTransfer(target.TeamID, ""))

	s.emit(ctx, audit.NewEvent(ctx, audit.EventTypeAdminUserDelete, audit.EventStatusSuccess, actorOf(caller)).
		On(audit.ResourceTypeUser, uid).
		WithChanges(map[string]interface{}{"email": target.Email, "role": string(target.Role), "teamId": target.TeamID}, nil))
	return nil
}

// nullable maps an empty string to nil so Update removes the field
func nullable(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}

func changedFields(before *User, fields map[string]interface{}) map[string]interface{} {
	prior := map[string]interface{}{}
	for key := range fields {
		switch key {
		case fieldRole:
			prior[key] = string(before.Role)
		case fieldTeamID:
			prior[key] = before.TeamID
		case "jobTitle":
			prior[key] = before.JobTitle
		case "phoneNumber":
			prior[key] = before.PhoneNumber
		}
	}
	return prior
}
