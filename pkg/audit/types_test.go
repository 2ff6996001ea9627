package audit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/contextkeys"
)

func TestNewEvent(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orgs/1/permissions", nil)
	ctx := auth.WithActor(req.Context(), &auth.Actor{UserID: 42, Username: "alice"})
	ctx = contextkeys.WithRequestID(ctx, "req-1")
	req = req.WithContext(ctx)
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")

	event := NewEvent(req, EventTypePermissionGrant, 1)

	assert.Equal(t, EventTypePermissionGrant, event.EventType)
	assert.Equal(t, EventStatusSuccess, event.Status)
	assert.Equal(t, int64(1), event.OrganizationID)
	require.NotNil(t, event.ActorID)
	assert.Equal(t, int64(42), *event.ActorID)
	assert.Equal(t, "alice", event.Username)
	assert.Equal(t, "req-1", event.RequestID)
	assert.Equal(t, "10.0.0.1", event.IPAddress)
	assert.False(t, event.Timestamp.IsZero())
	assert.NotNil(t, event.Metadata)
}

func TestNewEvent_Anonymous(t *testing.T) {
	req := httptest.NewRequest(http.MethodDelete, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"

	event := NewEvent(req, EventTypeRoleUnlink, 3)
	assert.Nil(t, event.ActorID)
	assert.Empty(t, event.RequestID)
	assert.Equal(t, "192.0.2.1:1234", event.IPAddress)

	event = NewEvent(nil, EventTypeRoleLink, 3)
	assert.Equal(t, EventTypeRoleLink, event.EventType)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded for", map[string]string{"X-Forwarded-For": "203.0.113.5"}, "127.0.0.1:1", "203.0.113.5"},
		{"real ip", map[string]string{"X-Real-IP": "203.0.113.9"}, "127.0.0.1:1", "203.0.113.9"},
		{"remote addr", nil, "127.0.0.1:1", "127.0.0.1:1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientIP(req))
		})
	}
}
