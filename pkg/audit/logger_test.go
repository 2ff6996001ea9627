package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	events []*Event
	err    error
	closed bool
}

func (r *recordingLogger) Log(_ context.Context, event *Event) error {
	r.events = append(r.events, event)
	return r.err
}

func (r *recordingLogger) Close() error {
	r.closed = true
	return r.err
}

func TestLogrusLogger(t *testing.T) {
	logger, hook := test.NewNullLogger()
	sink := NewLogrusLogger(logger)

	actor := int64(7)
	event := &Event{
		EventType:      EventTypePermissionRevoke,
		Status:         EventStatusSuccess,
		ActorID:        &actor,
		OrganizationID: 2,
		ResourceType:   ResourceTypePermission,
		ResourceID:     "15",
		RequestID:      "req-9",
		Message:        "Permission revoked",
		Metadata:       map[string]interface{}{"permission": "CR"},
	}
	require.NoError(t, sink.Log(context.Background(), event))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "Permission revoked", entry.Message)
	assert.Equal(t, "authz.permission_revoke", entry.Data["event_type"])
	assert.Equal(t, int64(7), entry.Data["actor_id"])
	assert.Equal(t, "15", entry.Data["resource_id"])
	assert.Equal(t, "CR", entry.Data["meta_permission"])
	assert.NoError(t, sink.Close())
}

func TestMultiLogger(t *testing.T) {
	ok := &recordingLogger{}
	failing := &recordingLogger{err: errors.New("disk full")}
	last := &recordingLogger{}
	m := NewMultiLogger(ok, failing, last)

	event := &Event{EventType: EventTypeRoleLink}
	err := m.Log(context.Background(), event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	assert.Len(t, ok.events, 1)
	assert.Len(t, last.events, 1, "a failing sink does not stop the others")

	assert.Error(t, m.Close())
	assert.True(t, ok.closed)
	assert.True(t, last.closed)

	assert.NoError(t, NewMultiLogger().Log(context.Background(), event))
}

func TestNopLogger(t *testing.T) {
	var l Logger = NopLogger{}
	assert.NoError(t, l.Log(context.Background(), &Event{}))
	assert.NoError(t, l.Close())
}
