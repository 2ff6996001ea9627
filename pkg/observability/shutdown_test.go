package observability

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownManager_RunsAllFuncs(t *testing.T) {
	sm := NewShutdownManager(discardLogger(), &http.Server{}, time.Second)

	var calls int32
	for _, name := range []string{"database", "redis", "otel"} {
		sm.RegisterShutdownFunc(name, func(context.Context) error {
			atomic.AddInt32(&calls, 1)
			return nil
		})
	}

	require.NoError(t, sm.Shutdown(context.Background()))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestShutdownManager_CollectsErrors(t *testing.T) {
	sm := NewShutdownManager(discardLogger(), nil, time.Second)
	boom := errors.New("boom")
	sm.RegisterShutdownFunc("database", func(context.Context) error { return boom })
	sm.RegisterShutdownFunc("redis", func(context.Context) error { return nil })

	err := sm.Shutdown(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "database")
}

func TestShutdownManager_Timeout(t *testing.T) {
	sm := NewShutdownManager(nil, nil, 20*time.Millisecond)
	release := make(chan struct{})
	defer close(release)
	sm.RegisterShutdownFunc("stuck", func(context.Context) error {
		<-release
		return nil
	})

	err := sm.Shutdown(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
