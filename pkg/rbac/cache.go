package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
)

// RoleCache stores resolved role id sets
type RoleCache interface {
	Get(ctx context.Context, key string) ([]int64, bool, error)
	Set(ctx context.Context, key string, ids []int64) error
	Delete(ctx context.Context, key string) error
}

// CacheRecorder counts cache lookups
type CacheRecorder interface {
	RecordCacheHit(cache string)
	RecordCacheMiss(cache string)
}

// LRURoleCache is an in-process RoleCache with per-entry expiry
type LRURoleCache struct {
	cache *lru.LRU[string, []int64]
}

// NewLRURoleCache creates an in-process cache holding at most size entries for ttl
func NewLRURoleCache(size int, ttl time.Duration) *LRURoleCache {
	if size < 16 {
		size = 16
	}
	return &LRURoleCache{
		cache: lru.NewLRU[string, []int64](size, nil, ttl),
	}
}

// Get implements RoleCache
func (c *LRURoleCache) Get(_ context.Context, key string) ([]int64, bool, error) {
	ids, ok := c.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	return append([]int64(nil), ids...), true, nil
}

// Set implements RoleCache
func (c *LRURoleCache) Set(_ context.Context, key string, ids []int64) error {
	c.cache.Add(key, append([]int64(nil), ids...))
	return nil
}

// Delete implements RoleCache
func (c *LRURoleCache) Delete(_ context.Context, key string) error {
	c.cache.Remove(key)
	return nil
}

// Len returns the number of live entries
func (c *LRURoleCache) Len() int {
	return c.cache.Len()
}

// RedisRoleCache shares resolved role sets between instances through Redis
type RedisRoleCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisRoleCache creates a Redis-backed cache. Keys are namespaced with prefix.
func NewRedisRoleCache(client *redis.Client, prefix string, ttl time.Duration) *RedisRoleCache {
	if prefix == "" {
		prefix = "gatehouse:roles:"
	}
	return &RedisRoleCache{client: client, prefix: prefix, ttl: ttl}
}

// Get implements RoleCache
func (c *RedisRoleCache) Get(ctx context.Context, key string) ([]int64, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	var ids []int64
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, false, fmt.Errorf("decode cached roles: %w", err)
	}
	return ids, true, nil
}

// Set implements RoleCache
func (c *RedisRoleCache) Set(ctx context.Context, key string, ids []int64) error {
	if ids == nil {
		ids = []int64{}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.prefix+key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete implements RoleCache
func (c *RedisRoleCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// CachingRoleResolver caches actor role sets and guest role ids in front of another
// RoleResolver. Cache failures fall through to the wrapped resolver; they never
// decide access.
type CachingRoleResolver struct {
	next     RoleResolver
	cache    RoleCache
	name     string
	logger   *logrus.Logger
	recorder CacheRecorder
}

// NewCachingRoleResolver wraps next with cache. name labels cache metrics.
func NewCachingRoleResolver(next RoleResolver, cache RoleCache, name string, logger *logrus.Logger, recorder CacheRecorder) *CachingRoleResolver {
	if logger == nil {
		logger = logrus.New()
	}
	return &CachingRoleResolver{
		next:     next,
		cache:    cache,
		name:     name,
		logger:   logger,
		recorder: recorder,
	}
}

func actorKey(actorID int64) string { return fmt.Sprintf("actor:%d", actorID) }
func guestKey(orgID int64) string   { return fmt.Sprintf("guest:%d", orgID) }

// RoleIDsForActor implements RoleResolver
func (c *CachingRoleResolver) RoleIDsForActor(ctx context.Context, actorID int64) ([]int64, error) {
	key := actorKey(actorID)
	if ids, ok := c.lookup(ctx, key); ok {
		return ids, nil
	}

	ids, err := c.next.RoleIDsForActor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, ids)
	return ids, nil
}

// RolesInOrganization implements RoleResolver. Results are not cached.
func (c *CachingRoleResolver) RolesInOrganization(ctx context.Context, orgID int64, roleIDs []int64) ([]int64, error) {
	return c.next.RolesInOrganization(ctx, orgID, roleIDs)
}

// GuestRoleID implements RoleResolver
func (c *CachingRoleResolver) GuestRoleID(ctx context.Context, orgID int64) (int64, error) {
	key := guestKey(orgID)
	if ids, ok := c.lookup(ctx, key); ok && len(ids) == 1 {
		return ids[0], nil
	}

	id, err := c.next.GuestRoleID(ctx, orgID)
	if err != nil {
		return 0, err
	}
	c.store(ctx, key, []int64{id})
	return id, nil
}

// InvalidateActor drops the cached role set of an actor
func (c *CachingRoleResolver) InvalidateActor(ctx context.Context, actorID int64) error {
	return c.cache.Delete(ctx, actorKey(actorID))
}

// InvalidateGuest drops the cached guest role of an organization
func (c *CachingRoleResolver) InvalidateGuest(ctx context.Context, orgID int64) error {
	return c.cache.Delete(ctx, guestKey(orgID))
}

func (c *CachingRoleResolver) lookup(ctx context.Context, key string) ([]int64, bool) {
	ids, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Role cache read failed")
	}
	if c.recorder != nil {
		if ok {
			c.recorder.RecordCacheHit(c.name)
		} else {
			c.recorder.RecordCacheMiss(c.name)
		}
	}
	return ids, ok
}

func (c *CachingRoleResolver) store(ctx context.Context, key string, ids []int64) {
	if err := c.cache.Set(ctx, key, ids); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Role cache write failed")
	}
}
