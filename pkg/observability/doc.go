// Package observability provides structured logging, Prometheus metrics, health
// checks and OpenTelemetry tracing for Gamut.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("org_id", orgID).Info("organization created")
//
// Request-scoped loggers carry request, user and organization ids:
//
//	observability.FromContext(ctx).Warn("team counter update failed")
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordDecision("create_user", "denied")
//
// All Record methods are safe on a nil *Metrics.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(version)
//	checker.AddRequired("store", docStore)
//	checker.AddOptional("redis", redisPinger)
//
// A failing required dependency makes readiness return 503; a failing optional
// dependency reports degraded.
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, cfg.OTel, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
package observability
