package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// probeTimeout bounds each dependency ping during a readiness check
const probeTimeout = 2 * time.Second

// Pinger is a dependency that can report its reachability
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger
type PingFunc func(ctx context.Context) error

// Ping calls f
func (f PingFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// poolStatser is implemented by dependencies exposing SQL pool statistics
type poolStatser interface {
	Stats() sql.DBStats
}

type probe struct {
	pinger   Pinger
	required bool
}

// HealthChecker aggregates the reachability of the store, identity provider
// and optional backends into one status.
type HealthChecker struct {
	version string

	mu     sync.RWMutex
	probes map[string]probe
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the health of a single dependency
type DependencyStatus struct {
	Status    string `json:"status"`
	Required  bool   `json:"required"`
	Message   string `json:"message,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// NewHealthChecker creates a checker reporting version in every status
func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{version: version, probes: make(map[string]probe)}
}

// AddRequired registers a dependency whose failure makes the service unhealthy
func (h *HealthChecker) AddRequired(name string, p Pinger) { h.register(name, p, true) }

// AddOptional registers a dependency whose failure only degrades the service
func (h *HealthChecker) AddOptional(name string, p Pinger) { h.register(name, p, false) }

func (h *HealthChecker) register(name string, p Pinger, required bool) {
	if p == nil {
		return
	}
	h.mu.Lock()
	h.probes[name] = probe{pinger: p, required: required}
	h.mu.Unlock()
}

// Check pings every registered dependency concurrently
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	h.mu.RLock()
	probes := make(map[string]probe, len(h.probes))
	for name, p := range h.probes {
		probes[name] = p
	}
	h.mu.RUnlock()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]DependencyStatus, len(probes))
	)
	for name, p := range probes {
		wg.Add(1)
		go func(name string, p probe) {
			defer wg.Done()
			res := runProbe(ctx, p)
			mu.Lock()
			results[name] = res
			mu.Unlock()
		}(name, p)
	}
	wg.Wait()

	overall := StatusHealthy
	for _, res := range results {
		switch {
		case res.Status == StatusUnhealthy && res.Required:
			overall = StatusUnhealthy
		case res.Status != StatusHealthy && overall == StatusHealthy:
			overall = StatusDegraded
		}
	}

	return HealthStatus{
		Status:       overall,
		Timestamp:    time.Now().UTC(),
		Version:      h.version,
		Dependencies: results,
	}
}

func runProbe(ctx context.Context, p probe) DependencyStatus {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	start := time.Now()
	err := p.pinger.Ping(ctx)
	res := DependencyStatus{
		Status:    StatusHealthy,
		Required:  p.required,
		LatencyMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		res.Status = StatusUnhealthy
		res.Message = err.Error()
		return res
	}

	if s, ok := p.pinger.(poolStatser); ok {
		if stats := s.Stats(); stats.MaxOpenConnections > 0 && stats.InUse >= stats.MaxOpenConnections {
			res.Status = StatusDegraded
			res.Message = "connection pool exhausted"
		}
	}
	return res
}

// Liveness answers 200 while the process is serving
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, http.StatusOK, HealthStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC(),
		Version:   h.version,
	})
}

// Readiness answers 503 when a required dependency is down, 200 otherwise
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	status := h.Check(r.Context())
	code := http.StatusOK
	if status.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeHealth(w, code, status)
}

func writeHealth(w http.ResponseWriter, code int, status HealthStatus) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}

// RegisterHealthRoutes mounts /health, /health/live and /health/ready
func RegisterHealthRoutes(mux *http.ServeMux, checker *HealthChecker) {
	mux.HandleFunc("/health", checker.Readiness)
	mux.HandleFunc("/health/live", checker.Liveness)
	mux.HandleFunc("/health/ready", checker.Readiness)
}
