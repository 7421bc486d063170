// Package orgs manages organizations, teams and users on top of an identity
// provider and a document store.
//
// # Overview
//
// Every operation takes the verified caller as an rbac.Subject and asks the
// policy engine before touching either backend. Writes that span both
// backends run in a fixed order and undo earlier steps when a later one
// fails:
//
//  1. identity created
//  2. claims set
//  3. user record written
//  4. team member counters adjusted (best effort)
//
// The user record is authoritative for organization and team membership.
// Claims mirror it so that bearer credentials carry a usable role.
//
// # Bootstrap
//
// The first account to sign up becomes the owner. The claim is an atomic
// create of a marker document, so two racing signups cannot both win.
//
// # Usage Example
//
//	svc, err := orgs.NewService(orgs.Config{Store: st, Identity: provider})
//	owner, err := svc.Signup(ctx, orgs.SignupRequest{Email: "alice@acme.test", Password: "s3cret!"})
//	org, err := svc.CreateOrganization(ctx, owner.Subject(), orgs.CreateOrganizationRequest{
//		Name:     "Acme",
//		Timezone: "UTC",
//		Currency: "USD",
//	})
//
// # Reconciliation
//
// Counter updates and compensations can fail. Reconciler recomputes team
// member counts from the user records and removes records whose identity is
// gone. ReconcileScheduler runs it on a cron schedule.
package orgs
