package audit

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3aper2020/Gamut-MGMT/pkg/observability"
)

func TestEvent_JSON(t *testing.T) {
	event := NewEvent(context.Background(), EventTypeAuthzRoleChange, EventStatusSuccess, Actor{
		ID:             "u1",
		Email:          "owner@example.com",
		Role:           "owner",
		OrganizationID: "org1",
	}).
		On(ResourceTypeUser, "u2").
		WithMessage("role changed").
		WithChanges(map[string]interface{}{"role": "member"}, map[string]interface{}{"role": "manager"}).
		WithMetadata("source", "admin")

	data, err := event.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"event_type":"authz.role_change"`)

	parsed, err := FromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, event.ID, parsed.ID)
	assert.Equal(t, "u2", parsed.ResourceID)
	assert.Equal(t, "org1", parsed.OrganizationID)
	assert.Equal(t, "manager", parsed.Changes.After["role"])
	assert.Equal(t, "admin", parsed.Metadata["source"])
}

func TestNewEvent_RequestContext(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/teams", nil)
	r.Header.Set("User-Agent", "test-agent")
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	ctx := observability.WithRequestID(r.Context(), "req-1")
	ctx = WithRequest(ctx, r)

	event := NewEvent(ctx, EventTypeTeamCreate, EventStatusSuccess, Actor{ID: "u1"})
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.Timestamp.IsZero())
	assert.Equal(t, "203.0.113.7", event.IPAddress)
	assert.Equal(t, "test-agent", event.UserAgent)
	assert.Equal(t, "POST", event.Method)
	assert.Equal(t, "/api/teams", event.Path)
	assert.Equal(t, "req-1", event.RequestID)
}

func TestEvent_Builders(t *testing.T) {
	event := NewEvent(context.Background(), EventTypeTeamDelete, EventStatusFailure, Actor{})
	event.WithError(nil).WithChanges(nil, nil)
	assert.Empty(t, event.ErrorMessage)
	assert.Nil(t, event.Changes)

	event.WithError(errors.New("boom"))
	assert.Equal(t, "boom", event.ErrorMessage)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		remote   string
		expected string
	}{
		{"forwarded list", map[string]string{"X-Forwarded-For": "1.1.1.1, 2.2.2.2"}, "9.9.9.9:1", "1.1.1.1"},
		{"forwarded single", map[string]string{"X-Forwarded-For": "1.1.1.1"}, "9.9.9.9:1", "1.1.1.1"},
		{"real ip", map[string]string{"X-Real-IP": "3.3.3.3"}, "9.9.9.9:1", "3.3.3.3"},
		{"remote addr", nil, "9.9.9.9:1234", "9.9.9.9"},
		{"remote without port", nil, "9.9.9.9", "9.9.9.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.expected, ClientIP(r))
		})
	}
}

func TestFromContext_DefaultsToNoOp(t *testing.T) {
	logger := FromContext(context.Background())
	require.NotNil(t, logger)
	assert.NoError(t, logger.Log(context.Background(), &Event{}))
	assert.NoError(t, logger.Close())

	mock := &mockLogger{}
	assert.Same(t, mock, FromContext(WithLogger(context.Background(), mock)))
}

func TestEmit_SwallowsErrors(t *testing.T) {
	var buf bytes.Buffer
	ctx := observability.WithLogger(context.Background(), observability.NewLogger(observability.DebugLevel, &buf))

	Emit(ctx, &mockLogger{err: errors.New("disk full")}, &Event{EventType: EventTypeTeamCreate})
	assert.Contains(t, buf.String(), "failed to write audit event")
	assert.Contains(t, buf.String(), "disk full")

	Emit(ctx, nil, &Event{})
	Emit(ctx, &mockLogger{}, nil)
}

func TestSlogLogger(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSlogLogger(observability.NewLogger(observability.DebugLevel, &buf))

	require.NoError(t, sink.Log(context.Background(), &Event{
		ID:           "a1",
		EventType:    EventTypeAuthzAccessDenied,
		Status:       EventStatusDenied,
		ActorID:      "u1",
		ResourceType: ResourceTypeTeam,
		ResourceID:   "t1",
	}))
	out := buf.String()
	assert.Contains(t, out, "authz.access_denied")
	assert.Contains(t, out, `"component":"audit"`)
	assert.Contains(t, out, "WARN")
	assert.NoError(t, sink.Close())
}
