package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

const defaultShutdownTimeout = 30 * time.Second

// ShutdownFunc releases one component during shutdown
type ShutdownFunc func(context.Context) error

type shutdownStep struct {
	name string
	fn   ShutdownFunc
}

// ShutdownManager drains the HTTP servers, then releases registered
// components one at a time in registration order.
type ShutdownManager struct {
	logger          *Logger
	servers         []*http.Server
	shutdownTimeout time.Duration

	mu    sync.Mutex
	steps []shutdownStep
}

// NewShutdownManager creates a manager for servers. A zero timeout means 30s.
func NewShutdownManager(logger *Logger, timeout time.Duration, servers ...*http.Server) *ShutdownManager {
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	if logger == nil {
		logger = Default()
	}
	return &ShutdownManager{logger: logger, servers: servers, shutdownTimeout: timeout}
}

// RegisterShutdownFunc appends a step run after the servers stop
func (sm *ShutdownManager) RegisterShutdownFunc(name string, fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.steps = append(sm.steps, shutdownStep{name: name, fn: fn})
}

// WaitForShutdown blocks until SIGINT or SIGTERM, then calls Shutdown
func (sm *ShutdownManager) WaitForShutdown() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	sm.logger.Info("Termination signal received, draining")

	ctx, cancel := context.WithTimeout(context.Background(), sm.shutdownTimeout)
	defer cancel()
	return sm.Shutdown(ctx)
}

// Shutdown stops the servers concurrently, then runs each registered step.
// It gives up once ctx is done; a step still running is abandoned.
func (sm *ShutdownManager) Shutdown(ctx context.Context) error {
	errs := sm.drainServers(ctx)

	sm.mu.Lock()
	steps := append([]shutdownStep(nil), sm.steps...)
	sm.mu.Unlock()

	for _, step := range steps {
		finished, err := sm.runStep(ctx, step)
		if !finished {
			sm.logger.WithField("component", step.name).Warn("Shutdown deadline exceeded")
			return fmt.Errorf("shutdown timeout reached while stopping %s", step.name)
		}
		if err != nil {
			sm.logger.WithField("component", step.name).WithError(err).Error("Component did not stop cleanly")
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
			continue
		}
		sm.logger.WithField("component", step.name).Debug("Component stopped")
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown completed with %d errors: %w", len(errs), errors.Join(errs...))
	}
	sm.logger.Info("Shutdown complete")
	return nil
}

func (sm *ShutdownManager) drainServers(ctx context.Context) []error {
	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		errs []error
	)
	for _, srv := range sm.servers {
		if srv == nil {
			continue
		}
		wg.Add(1)
		go func(srv *http.Server) {
			defer wg.Done()
			if err := srv.Shutdown(ctx); err != nil {
				sm.logger.WithField("addr", srv.Addr).WithError(err).Error("HTTP server did not drain")
				mu.Lock()
				errs = append(errs, fmt.Errorf("server %s: %w", srv.Addr, err))
				mu.Unlock()
			}
		}(srv)
	}
	wg.Wait()
	return errs
}

// runStep reports finished=false when ctx ends before step returns
func (sm *ShutdownManager) runStep(ctx context.Context, step shutdownStep) (finished bool, err error) {
	done := make(chan error, 1)
	go func() {
		defer RecoverPanicWithCallback(sm.logger, "shutdown "+step.name, func() {
			done <- errors.New("panic during shutdown")
		})
		done <- step.fn(ctx)
	}()

	select {
	case err := <-done:
		return true, err
	case <-ctx.Done():
		return false, nil
	}
}
