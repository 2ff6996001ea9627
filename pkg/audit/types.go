package audit

import (
	"net/http"
	"strings"
	"time"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/contextkeys"
)

// EventType names what changed
type EventType string

const (
	EventTypePermissionGrant  EventType = "authz.permission_grant"
	EventTypePermissionRevoke EventType = "authz.permission_revoke"
	EventTypeRoleLink         EventType = "authz.role_link"
	EventTypeRoleUnlink       EventType = "authz.role_unlink"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
)

// ResourceType represents the kind of record that changed
type ResourceType string

const (
	ResourceTypePermission ResourceType = "permission"
	ResourceTypeItem       ResourceType = "item"
)

// Event is a single audit log entry
type Event struct {
	ID        int64       `json:"id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// ActorID is nil for anonymous callers
	ActorID        *int64 `json:"actor_id,omitempty"`
	Username       string `json:"username,omitempty"`
	OrganizationID int64  `json:"organization_id"`

	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`

	RequestID string `json:"request_id,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`

	Message  string                 `json:"message,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// NewEvent starts a successful event for the caller of r
func NewEvent(r *http.Request, eventType EventType, orgID int64) *Event {
	event := &Event{
		Timestamp:      time.Now().UTC(),
		EventType:      eventType,
		Status:         EventStatusSuccess,
		OrganizationID: orgID,
		Metadata:       make(map[string]interface{}),
	}
	if r == nil {
		return event
	}

	ctx := r.Context()
	if actor := auth.ActorFromContext(ctx); actor != nil {
		id := actor.UserID
		event.ActorID = &id
		event.Username = actor.Username
	}
	event.RequestID = contextkeys.GetRequestID(ctx)
	event.IPAddress = clientIP(r)
	return event
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then RemoteAddr
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
