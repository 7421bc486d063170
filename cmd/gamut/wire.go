package main

import (
	"context"
	"fmt"

	"github.com/r3aper2020/Gamut-MGMT/pkg/api"
	"github.com/r3aper2020/Gamut-MGMT/pkg/audit"
	"github.com/r3aper2020/Gamut-MGMT/pkg/config"
	"github.com/r3aper2020/Gamut-MGMT/pkg/identity"
	"github.com/r3aper2020/Gamut-MGMT/pkg/middleware"
	"github.com/r3aper2020/Gamut-MGMT/pkg/observability"
	"github.com/r3aper2020/Gamut-MGMT/pkg/store"
)

type identities struct {
	// provider is what the service talks to: instrumented and cached
	provider identity.Provider
	// local is the store-backed directory, also used for password sign-in
	local *identity.LocalProvider
	// login is set when the OIDC authorization code flow is available
	login api.OIDCLogin
}

func buildIdentity(ctx context.Context, cfg config.IdentityConfig, docs store.Store, metrics *observability.Metrics, otelMetrics *observability.OTelMetrics) (*identities, error) {
	local, err := identity.NewLocalProvider(docs, identity.LocalConfig{
		TokenSecret:     []byte(cfg.TokenSecret),
		Issuer:          cfg.TokenIssuer,
		TokenTTL:        cfg.TokenTTL,
		BcryptCost:      cfg.BcryptCost,
		MinSecretLength: cfg.MinPasswordLength,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create local identity directory: %w", err)
	}

	out := &identities{local: local}
	var provider identity.Provider
	name := cfg.Mode
	switch cfg.Mode {
	case config.IdentityModeOIDC:
		verifier, err := identity.NewOIDCVerifier(ctx, cfg.OIDC, local)
		if err != nil {
			return nil, fmt.Errorf("failed to create OIDC verifier: %w", err)
		}
		provider = identity.Compose(verifier, local)
		if verifier.LoginEnabled() {
			out.login = verifier
		}
	default:
		provider = local
	}

	provider = identity.Instrument(provider, name, metrics, otelMetrics)
	if cfg.CacheSize > 0 {
		provider = identity.NewCachedProvider(provider, cfg.CacheSize, cfg.CacheTTL, metrics)
	}
	out.provider = provider
	return out, nil
}

// buildAudit fans events out to every enabled sink. The returned archiver is
// nil unless S3 archiving is on.
func buildAudit(ctx context.Context, cfg config.AuditConfig, logger *observability.Logger, metrics *observability.Metrics) (*audit.MultiLogger, *audit.S3Archiver, error) {
	var sinks []audit.Logger
	if cfg.LogEnabled {
		sinks = append(sinks, audit.NewSlogLogger(logger.WithField("component", "audit")))
	}
	if cfg.FileEnabled {
		fileLogger, err := audit.NewFileLogger(cfg.File)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		sinks = append(sinks, fileLogger)
	}

	var archiver *audit.S3Archiver
	if cfg.S3Enabled {
		client, err := audit.NewS3Client(ctx, cfg.S3)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create audit S3 client: %w", err)
		}
		archiver, err = audit.NewS3Archiver(client, cfg.S3.Bucket, cfg.S3.Prefix, cfg.S3BatchSize, cfg.S3FlushInterval)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create audit archiver: %w", err)
		}
		sinks = append(sinks, archiver)
	}

	multi := audit.NewMultiLogger(sinks...)
	multi.SetAsync(cfg.Async)
	multi.SetMetrics(metrics)
	return multi, archiver, nil
}

// buildLimiter returns nil when throttling is off. The pinger is set for the
// Redis-backed limiter only.
func buildLimiter(ctx context.Context, cfg config.RateLimitConfig) (middleware.Limiter, observability.Pinger, error) {
	if !cfg.Enabled {
		return nil, nil, nil
	}
	limits := &middleware.RateLimitConfig{
		RequestsPerWindow: cfg.RequestsPerWindow,
		WindowDuration:    cfg.Window,
		BurstSize:         cfg.Burst,
	}
	if !cfg.Redis {
		limiter := middleware.NewRateLimiter(limits)
		limiter.StartCleanup(ctx)
		return limiter, nil, nil
	}

	client, err := store.NewRedisClient(ctx, store.RedisConfig{
		URL:      cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect rate limiter to redis: %w", err)
	}
	limiter := middleware.NewDistributedRateLimiter(client, limits, cfg.KeyPrefix)
	return limiter, limiter, nil
}
