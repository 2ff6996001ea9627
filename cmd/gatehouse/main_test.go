package main

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatehouse/pkg/audit"
	"github.com/platinummonkey/gatehouse/pkg/config"
	"github.com/platinummonkey/gatehouse/pkg/rbac"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestBuildRoleResolver(t *testing.T) {
	store := rbac.NewStore(nil)

	t.Run("none", func(t *testing.T) {
		roles, inv, err := buildRoleResolver(config.AuthzConfig{CacheBackend: config.CacheNone}, store, nil, nil, quietLogger())
		require.NoError(t, err)
		assert.Same(t, store, roles)
		assert.Nil(t, inv)
	})

	t.Run("memory", func(t *testing.T) {
		roles, inv, err := buildRoleResolver(config.AuthzConfig{
			CacheBackend: config.CacheMemory,
			CacheSize:    100,
			CacheTTL:     time.Minute,
		}, store, nil, nil, quietLogger())
		require.NoError(t, err)
		assert.IsType(t, &rbac.CachingRoleResolver{}, roles)
		assert.NotNil(t, inv)
	})

	t.Run("redis without client", func(t *testing.T) {
		_, _, err := buildRoleResolver(config.AuthzConfig{CacheBackend: config.CacheRedis, CacheTTL: time.Minute},
			store, nil, nil, quietLogger())
		assert.Error(t, err)
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()

		roles, inv, err := buildRoleResolver(config.AuthzConfig{CacheBackend: config.CacheRedis, CacheTTL: time.Minute},
			store, client, nil, quietLogger())
		require.NoError(t, err)
		assert.IsType(t, &rbac.CachingRoleResolver{}, roles)
		require.NotNil(t, inv)
		assert.NoError(t, inv.InvalidateActor(context.Background(), 42))
	})
}

func TestOpenRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := openRedis(context.Background(), config.RedisConfig{URL: "redis://" + mr.Addr() + "/0"})
	require.NoError(t, err)
	client.Close()

	_, err = openRedis(context.Background(), config.RedisConfig{URL: "://bad"})
	assert.Error(t, err)

	addr := mr.Addr()
	mr.Close()
	_, err = openRedis(context.Background(), config.RedisConfig{URL: "redis://" + addr})
	assert.Error(t, err)
}

func TestBuildAuditLogger(t *testing.T) {
	ctx := context.Background()

	l, err := buildAuditLogger(ctx, config.AuditConfig{}, nil, quietLogger())
	require.NoError(t, err)
	assert.IsType(t, audit.NopLogger{}, l)

	l, err = buildAuditLogger(ctx, config.AuditConfig{Sinks: []string{config.AuditSinkNone, config.AuditSinkLog}}, nil, quietLogger())
	require.NoError(t, err)
	assert.IsType(t, &audit.LogrusLogger{}, l)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS authz_audit_log").WillReturnResult(sqlmock.NewResult(0, 0))

	dir := filepath.Join(t.TempDir(), "audit")
	l, err = buildAuditLogger(ctx, config.AuditConfig{
		Sinks: []string{config.AuditSinkLog, config.AuditSinkFile, config.AuditSinkDatabase},
		Dir:   dir,
	}, db, quietLogger())
	require.NoError(t, err)
	assert.IsType(t, &audit.MultiLogger{}, l)
	assert.NoError(t, l.Close())
	assert.FileExists(t, filepath.Join(dir, "audit.log"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
