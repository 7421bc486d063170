package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/r3aper2020/Gamut-MGMT/pkg/config"
	"github.com/r3aper2020/Gamut-MGMT/pkg/identity"
	"github.com/r3aper2020/Gamut-MGMT/pkg/orgs"
	"github.com/r3aper2020/Gamut-MGMT/pkg/store"
)

func newReconcileCommand(e *env) *Command {
	cmd := &Command{
		Name:        "reconcile",
		Description: "Run one consistency pass over users, identities and team counts",
		Flags:       flag.NewFlagSet("reconcile", flag.ContinueOnError),
	}
	cmd.Flags.Bool("dry-run", false, "Report drift without repairing it")
	cmd.Flags.Duration("timeout", 5*time.Minute, "Abort the pass after this long")
	cmd.Run = func(args []string) error { return runReconcile(e, args) }
	return cmd
}

func runReconcile(e *env, args []string) error {
	flags := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	flags.SetOutput(e.out)
	dryRun := flags.Bool("dry-run", false, "Report drift without repairing it")
	timeout := flags.Duration("timeout", 5*time.Minute, "Abort the pass after this long")

	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	docs, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Store.Type, err)
	}
	defer docs.Close()

	directory, err := identity.NewLocalProvider(docs, identity.LocalConfig{
		TokenSecret: []byte(cfg.Identity.TokenSecret),
		Issuer:      cfg.Identity.TokenIssuer,
	})
	if err != nil {
		return fmt.Errorf("failed to open identity directory: %w", err)
	}

	reconciler := orgs.NewReconciler(docs, directory, orgs.ReconcilerConfig{
		Lister:      directory,
		Concurrency: cfg.Reconcile.Concurrency,
		GracePeriod: cfg.Reconcile.GracePeriod,
		DryRun:      *dryRun || cfg.Reconcile.DryRun,
	})

	e.logger.WithFields(logrus.Fields{
		"store":   cfg.Store.Type,
		"dry_run": *dryRun || cfg.Reconcile.DryRun,
	}).Info("Starting reconciliation")

	report, err := reconciler.Run(ctx)
	if err != nil {
		return fmt.Errorf("reconciliation failed: %w", err)
	}

	e.logger.WithFields(logrus.Fields{
		"users_scanned":   report.UsersScanned,
		"orphans_removed": report.OrphansRemoved,
		"counters_fixed":  report.CountersFixed,
		"duration":        report.Duration,
	}).Info("Reconciliation complete")

	enc := json.NewEncoder(e.out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
