// Package config loads and validates Gamut configuration from environment variables.
//
// # Overview
//
// Every setting has a default so a bare environment boots an in-memory
// server. Only GAMUT_TOKEN_SECRET is mandatory: the local directory signs
// password sessions in both identity modes.
//
// # Configuration Structure
//
// Server settings:
//
//	GAMUT_HOST="0.0.0.0"
//	GAMUT_PORT="8080"
//	GAMUT_HEALTH_PORT="9090"
//
// Store settings:
//
//	GAMUT_STORE_TYPE="postgres"  # memory, postgres, sqlite, redis
//	GAMUT_POSTGRES_URL="postgres://localhost/gamut"
//	GAMUT_SQLITE_PATH="/var/lib/gamut/gamut.db"
//	GAMUT_REDIS_URL="redis://localhost:6379/0"
//
// Identity settings:
//
//	GAMUT_IDENTITY_MODE="local"  # local, oidc
//	GAMUT_TOKEN_SECRET="at-least-32-bytes-of-secret-material"
//	GAMUT_TOKEN_TTL="1h"
//	GAMUT_OIDC_ISSUER_URL="https://accounts.example.com"
//	GAMUT_OIDC_CLIENT_ID="gamut"
//
// Policy, throttling and background work:
//
//	GAMUT_RBAC_TABLES_FILE="/etc/gamut/rbac.yaml"
//	GAMUT_RATELIMIT_REQUESTS="20"
//	GAMUT_RATELIMIT_WINDOW="1m"
//	GAMUT_RATELIMIT_REDIS="true"
//	GAMUT_RECONCILE_SCHEDULE="@every 1h"
//
// Audit and observability:
//
//	GAMUT_AUDIT_FILE_ENABLED="true"
//	GAMUT_AUDIT_S3_BUCKET="gamut-audit"
//	GAMUT_LOG_LEVEL="info"  # debug, info, warn, error
//	GAMUT_OTEL_ENABLED="true"
//	GAMUT_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Printf("Listening on %s:%s with %s store\n", cfg.Server.Host, cfg.Server.Port, cfg.Store.Type)
package config
