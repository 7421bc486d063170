// Package middleware provides HTTP middleware for authentication and rate limiting.
//
// # Middleware Components
//
// AuthMiddleware: bearer credential authentication
//
//	auth := middleware.NewAuthMiddleware(service)
//	router.Use(auth.Handler)
//	// Resolves the caller and stores it with contextkeys.WithCaller
//
// RateLimitMiddleware: per-client-IP limiting over any Limiter
//
//	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimitConfig())
//	public := middleware.NewRateLimitMiddleware(limiter, "public", metrics)
//
// DistributedRateLimiter: Redis fixed-window limiter shared across instances
//
//	limiter := middleware.NewDistributedRateLimiter(redisClient, cfg, "gamut:ratelimit")
package middleware
