package audit

import (
	"context"
	"sync"
)

// mockLogger records events in memory
type mockLogger struct {
	mu     sync.Mutex
	events []*Event
	err    error
	closed bool
	name   string
}

func (m *mockLogger) Log(ctx context.Context, event *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, event)
	return nil
}

func (m *mockLogger) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockLogger) Events() []*Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Event(nil), m.events...)
}

// namedLogger is a mockLogger reporting a sink name
type namedLogger struct {
	*mockLogger
}

func (n namedLogger) Name() string {
	return n.name
}
