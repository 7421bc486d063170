package orgs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/r3aper2020/Gamut-MGMT/pkg/audit"
	"github.com/r3aper2020/Gamut-MGMT/pkg/identity"
	"github.com/r3aper2020/Gamut-MGMT/pkg/observability"
	"github.com/r3aper2020/Gamut-MGMT/pkg/store"
)

// IdentityLister enumerates identities in the directory
type IdentityLister interface {
	ListIdentityIDs(ctx context.Context) ([]string, error)
}

// ReconcilerConfig configures a Reconciler
type ReconcilerConfig struct {
	// Lister enables removal of identities left without a user record. Optional.
	Lister      IdentityLister
	Concurrency int
	// GracePeriod protects identities younger than this from removal
	GracePeriod time.Duration
	DryRun      bool
	Metrics     *observability.Metrics
	Audit       audit.Logger
}

// Reconciler repairs drift left by partial failures: user records whose
// identity is gone, identities without a record, and team member counts
// that no longer match the user records.
type Reconciler struct {
	store     store.Store
	directory identity.Directory
	cfg       ReconcilerConfig
	now       func() time.Time
}

// NewReconciler creates a reconciler over st and directory
func NewReconciler(st store.Store, directory identity.Directory, cfg ReconcilerConfig) *Reconciler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = 10 * time.Minute
	}
	return &Reconciler{store: st, directory: directory, cfg: cfg, now: time.Now}
}

// Run performs one reconciliation pass
func (r *Reconciler) Run(ctx context.Context) (report *ReconcileReport, err error) {
	start := r.now()
	ctx, span := observability.StartSpan(ctx, "orgs.reconcile")
	report = &ReconcileReport{DryRun: r.cfg.DryRun, CorrectedCounts: map[string]int64{}}
	defer func() {
		report.Duration = r.now().Sub(start)
		r.cfg.Metrics.RecordReconcile(err, len(report.OrphanUserIDs), report.CountersFixed, report.Duration)
		observability.EndSpan(span, err)
	}()

	snapshot := r.now()
	docs, err := r.store.Query(ctx, store.CollectionUsers)
	if err != nil {
		return report, fmt.Errorf("failed to list users: %w", err)
	}
	users, err := usersFromDocs(docs)
	if err != nil {
		return report, err
	}
	report.UsersScanned = len(users)

	orphans, err := r.findOrphanRecords(ctx, users)
	if err != nil {
		return report, err
	}
	report.OrphanUserIDs = orphans

	orphanSet := make(map[string]bool, len(orphans))
	for _, id := range orphans {
		orphanSet[id] = true
		if r.cfg.DryRun {
			continue
		}
		if err := r.store.Delete(ctx, store.CollectionUsers, id); err != nil {
			return report, fmt.Errorf("failed to delete orphan user record %s: %w", id, err)
		}
		report.OrphansRemoved++
	}

	counts := map[string]int64{}
	records := map[string]bool{}
	for _, u := range users {
		if orphanSet[u.ID] {
			continue
		}
		records[u.ID] = true
		if u.TeamID != "" {
			counts[u.TeamID]++
		}
	}

	if err := r.fixCounters(ctx, counts, snapshot, report); err != nil {
		return report, err
	}

	if r.cfg.Lister != nil {
		if err := r.sweepIdentities(ctx, records, report); err != nil {
			return report, err
		}
	}

	logger := observability.FromContext(ctx).WithFields(map[string]interface{}{
		"users_scanned":   report.UsersScanned,
		"orphans_removed": report.OrphansRemoved,
		"teams_scanned":   report.TeamsScanned,
		"counters_fixed":  report.CountersFixed,
		"teams_deferred":  report.TeamsDeferred,
		"dry_run":         report.DryRun,
	})
	logger.Info("reconciliation complete")

	if r.cfg.Audit != nil {
		event := audit.NewEvent(ctx, audit.EventTypeReconcile, audit.EventStatusSuccess, audit.Actor{ID: "system"}).
			On(audit.ResourceTypeSystem, "reconcile").
			WithMetadata("orphansRemoved", report.OrphansRemoved).
			WithMetadata("countersFixed", report.CountersFixed).
			WithMetadata("dryRun", report.DryRun)
		audit.Emit(ctx, r.cfg.Audit, event)
	}
	return report, nil
}

// findOrphanRecords returns ids of user records whose identity no longer exists
func (r *Reconciler) findOrphanRecords(ctx context.Context, users []*User) ([]string, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)

	var mu sync.Mutex
	var orphans []string
	for _, u := range users {
		id := u.ID
		g.Go(func() error {
			_, err := r.directory.GetIdentity(gctx, id)
			if errors.Is(err, identity.ErrNotFound) {
				mu.Lock()
				orphans = append(orphans, id)
				mu.Unlock()
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to look up identity %s: %w", id, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Strings(orphans)
	return orphans, nil
}

// fixCounters sets every team's memberCount to the number of records naming it.
// Teams written after snapshot may reflect moves the user listing missed, so
// they are left for the next pass.
func (r *Reconciler) fixCounters(ctx context.Context, counts map[string]int64, snapshot time.Time, report *ReconcileReport) error {
	docs, err := r.store.Query(ctx, store.CollectionTeams)
	if err != nil {
		return fmt.Errorf("failed to list teams: %w", err)
	}
	report.TeamsScanned = len(docs)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	var mu sync.Mutex
	for _, doc := range docs {
		teamID := doc.ID
		delta := counts[teamID] - doc.Int(fieldMemberCount)
		if delta == 0 {
			continue
		}
		if doc.UpdatedAt.After(snapshot) {
			report.TeamsDeferred++
			continue
		}
		g.Go(func() error {
			if !r.cfg.DryRun {
				// A move landing between the team listing and this write is kept by the
				// increment; the next pass corrects any remaining skew.
				if _, err := r.store.Increment(gctx, store.CollectionTeams, teamID, fieldMemberCount, delta); err != nil {
					if errors.Is(err, store.ErrNotFound) {
						return nil
					}
					return fmt.Errorf("failed to correct member count for team %s: %w", teamID, err)
				}
			}
			mu.Lock()
			report.CountersFixed++
			report.CorrectedCounts[teamID] = counts[teamID]
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

// sweepIdentities removes identities older than the grace period that have no user record
func (r *Reconciler) sweepIdentities(ctx context.Context, records map[string]bool, report *ReconcileReport) error {
	ids, err := r.cfg.Lister.ListIdentityIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list identities: %w", err)
	}
	cutoff := r.now().Add(-r.cfg.GracePeriod)
	for _, id := range ids {
		if records[id] {
			continue
		}
		ident, err := r.directory.GetIdentity(ctx, id)
		if errors.Is(err, identity.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to look up identity %s: %w", id, err)
		}
		if ident.CreatedAt.After(cutoff) {
			continue
		}
		if !r.cfg.DryRun {
			if err := r.directory.DeleteIdentity(ctx, id); err != nil && !errors.Is(err, identity.ErrNotFound) {
				return fmt.Errorf("failed to delete orphan identity %s: %w", id, err)
			}
		}
		report.OrphanIdentityIDs = append(report.OrphanIdentityIDs, id)
	}
	return nil
}

// ReconcileScheduler runs a Reconciler on a cron schedule
type ReconcileScheduler struct {
	cron       *cron.Cron
	reconciler *Reconciler
	timeout    time.Duration
	logger     *observability.Logger
}

// NewReconcileScheduler validates schedule and registers the job. Runs that
// overlap a still-running pass are skipped.
func NewReconcileScheduler(reconciler *Reconciler, schedule string, timeout time.Duration, logger *observability.Logger) (*ReconcileScheduler, error) {
	if logger == nil {
		logger = observability.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	s := &ReconcileScheduler{
		cron:       cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		reconciler: reconciler,
		timeout:    timeout,
		logger:     logger.WithField("component", "reconcile"),
	}
	if _, err := s.cron.AddFunc(schedule, s.runOnce); err != nil {
		return nil, fmt.Errorf("invalid reconcile schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *ReconcileScheduler) runOnce() {
	defer observability.RecoverPanic(s.logger, "reconcile job")
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	ctx = observability.WithLogger(ctx, s.logger)
	if _, err := s.reconciler.Run(ctx); err != nil {
		s.logger.WithError(err).Error("scheduled reconciliation failed")
	}
}

// Start begins running the schedule in the background
func (s *ReconcileScheduler) Start() {
	s.cron.Start()
	s.logger.Info("reconcile scheduler started")
}

// Stop halts the schedule and waits for a running pass to finish or ctx to end
func (s *ReconcileScheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
