package audit

import (
	"context"
	"fmt"
	"sync"

	"github.com/r3aper2020/Gamut-MGMT/pkg/observability"
)

// Named is implemented by sinks that report a metrics label
type Named interface {
	Name() string
}

// MultiLogger fans events out to several sinks
type MultiLogger struct {
	loggers []Logger
	names   []string
	async   bool
	metrics *observability.Metrics
	wg      sync.WaitGroup
	errMu   sync.Mutex
	errs    []error
	closed  bool
	mu      sync.RWMutex
}

// NewMultiLogger creates a multi-logger that writes to every sink. Writes are async by default.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	names := make([]string, len(loggers))
	for i, l := range loggers {
		if n, ok := l.(Named); ok {
			names[i] = n.Name()
		} else {
			names[i] = fmt.Sprintf("sink_%d", i)
		}
	}
	return &MultiLogger{
		loggers: loggers,
		names:   names,
		async:   true,
	}
}

// SetAsync sets whether logging should be asynchronous
func (m *MultiLogger) SetAsync(async bool) {
	m.async = async
}

// SetMetrics records dropped events on the given metrics
func (m *MultiLogger) SetMetrics(metrics *observability.Metrics) {
	m.metrics = metrics
}

// Log writes the event to all sinks
func (m *MultiLogger) Log(ctx context.Context, event *Event) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return fmt.Errorf("audit logger is closed")
	}
	if len(m.loggers) == 0 {
		return nil
	}
	if m.async {
		m.logAsync(ctx, event)
		return nil
	}
	return m.logSync(ctx, event)
}

// logSync keeps writing to the remaining sinks after a failure and returns the first error
func (m *MultiLogger) logSync(ctx context.Context, event *Event) error {
	var firstErr error
	for i, logger := range m.loggers {
		if err := logger.Log(ctx, event); err != nil {
			m.metrics.RecordAuditDropped(m.names[i])
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", m.names[i], err)
			}
		}
	}
	return firstErr
}

func (m *MultiLogger) logAsync(ctx context.Context, event *Event) {
	// Detach from request cancellation; sinks outlive the request.
	ctx = context.WithoutCancel(ctx)
	for i, logger := range m.loggers {
		m.wg.Add(1)
		go func(name string, l Logger) {
			defer m.wg.Done()
			if err := l.Log(ctx, event); err != nil {
				m.metrics.RecordAuditDropped(name)
				m.errMu.Lock()
				m.errs = append(m.errs, fmt.Errorf("%s: %w", name, err))
				m.errMu.Unlock()
			}
		}(m.names[i], logger)
	}
}

// Wait waits for all async writes to complete
func (m *MultiLogger) Wait() {
	m.wg.Wait()
}

// GetErrors drains errors from async writes
func (m *MultiLogger) GetErrors() []error {
	m.errMu.Lock()
	defer m.errMu.Unlock()
	errs := m.errs
	m.errs = nil
	return errs
}

// Close waits for pending writes and closes every sink
func (m *MultiLogger) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.wg.Wait()

	var firstErr error
	for i, logger := range m.loggers {
		if err := logger.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close %s: %w", m.names[i], err)
		}
	}
	return firstErr
}
