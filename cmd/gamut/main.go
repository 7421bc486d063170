package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/r3aper2020/Gamut-MGMT/pkg/api"
	"github.com/r3aper2020/Gamut-MGMT/pkg/config"
	"github.com/r3aper2020/Gamut-MGMT/pkg/observability"
	"github.com/r3aper2020/Gamut-MGMT/pkg/orgs"
	"github.com/r3aper2020/Gamut-MGMT/pkg/rbac"
	"github.com/r3aper2020/Gamut-MGMT/pkg/store"
)

var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", "gamut").
		WithField("version", version)
	observability.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("Gamut exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx := context.Background()

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	otelMetrics, err := observability.NewOTelMetrics()
	if err != nil {
		return fmt.Errorf("failed to create OTel instruments: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	raw, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Store.Type, err)
	}
	docs := store.Instrument(raw, cfg.Store.Type, metrics, otelMetrics)
	logger.WithField("backend", cfg.Store.Type).Info("Document store ready")

	ids, err := buildIdentity(ctx, cfg.Identity, docs, metrics, otelMetrics)
	if err != nil {
		return err
	}
	logger.WithField("mode", cfg.Identity.Mode).Info("Identity provider ready")

	tables := rbac.DefaultTables()
	if cfg.RBAC.TablesFile != "" {
		if tables, err = rbac.LoadTables(cfg.RBAC.TablesFile); err != nil {
			return fmt.Errorf("failed to load RBAC tables: %w", err)
		}
		logger.WithField("file", cfg.RBAC.TablesFile).Info("Loaded RBAC tables")
	}

	auditLogger, archiver, err := buildAudit(ctx, cfg.Audit, logger, metrics)
	if err != nil {
		return err
	}

	service, err := orgs.NewService(orgs.Config{
		Store:         docs,
		Identity:      ids.provider,
		Authenticator: ids.local,
		Engine:        rbac.NewEngine(tables),
		Metrics:       metrics,
		OTel:          otelMetrics,
	})
	if err != nil {
		return fmt.Errorf("failed to create organization service: %w", err)
	}

	limiter, limiterPing, err := buildLimiter(ctx, cfg.RateLimit)
	if err != nil {
		return err
	}

	apiServer, err := api.NewServer(api.Config{
		Service:         service,
		PublicLimiter:   limiter,
		LimiterFailOpen: cfg.RateLimit.FailOpen,
		OIDC:            ids.login,
		Audit:           auditLogger,
		Logger:          logger,
		Metrics:         metrics,
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
		SecureCookies:   cfg.Identity.SecureCookies,
	})
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}

	checker := observability.NewHealthChecker(version)
	checker.AddRequired("store", docs)
	checker.AddRequired("identity", ids.local)
	if limiterPing != nil {
		checker.AddOptional("ratelimit", limiterPing)
	}
	if archiver != nil {
		checker.AddOptional("audit_archive", archiver)
	}
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, checker)
	observability.RegisterMetricsEndpoint(healthMux, registry)

	mainServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      apiServer,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:      healthMux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, mainServer, healthServer)

	if cfg.Reconcile.Enabled {
		reconciler := orgs.NewReconciler(docs, ids.provider, orgs.ReconcilerConfig{
			Lister:      ids.local,
			Concurrency: cfg.Reconcile.Concurrency,
			GracePeriod: cfg.Reconcile.GracePeriod,
			DryRun:      cfg.Reconcile.DryRun,
			Metrics:     metrics,
			Audit:       auditLogger,
		})
		scheduler, err := orgs.NewReconcileScheduler(reconciler, cfg.Reconcile.Schedule, cfg.Reconcile.Timeout, logger)
		if err != nil {
			return err
		}
		scheduler.Start()
		shutdown.RegisterShutdownFunc("reconcile", scheduler.Stop)
	}

	shutdown.RegisterShutdownFunc("audit", func(ctx context.Context) error {
		return auditLogger.Close()
	})
	shutdown.RegisterShutdownFunc("store", func(ctx context.Context) error {
		return docs.Close()
	})
	if providers != nil {
		shutdown.RegisterShutdownFunc("otel", func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, providers, logger)
		})
	}

	serveErr := make(chan error, 2)
	for _, srv := range []*http.Server{mainServer, healthServer} {
		go func(srv *http.Server) {
			logger.WithField("addr", srv.Addr).Info("Starting HTTP server")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- fmt.Errorf("server %s: %w", srv.Addr, err)
			}
		}(srv)
	}

	go func() {
		err := <-serveErr
		logger.WithError(err).Error("HTTP server failed")
		if err := shutdown.Shutdown(context.Background()); err != nil {
			logger.WithError(err).Error("Shutdown after server failure incomplete")
		}
		os.Exit(1)
	}()

	return shutdown.WaitForShutdown()
}
