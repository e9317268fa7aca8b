package xcache

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the primitive-level key/value contract: Add/Update/Put/Remove/
// Increment/Clear plus group scoping. It sits above [Memory]/[Redis], which
// only expose the raw client — Cache adds the read-modify-write semantics
// (exists-guarded Add/Update, numeric Increment, prefix-scoped Clear) that
// ristretto/go-redis don't give you directly.
type Cache interface {
	// Get returns the value for key, or found=false if absent/expired.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Add stores value only if key is not already present. Returns false
	// without error if key already exists.
	Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Update stores value only if key is already present. Returns false
	// without error if key is absent.
	Update(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Put stores value unconditionally (insert or overwrite).
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error

	// Increment adds delta to the integer stored at key, creating it at
	// delta if absent. Returns [ErrTypeMismatch] if the existing value is
	// not a base-10 integer.
	Increment(ctx context.Context, key string, delta int64) (int64, error)

	// Clear removes every key under groupPrefix. An empty groupPrefix
	// clears every key this Cache (or the group it was derived from via
	// WithGroup) is allowed to see.
	Clear(ctx context.Context, groupPrefix string) error

	// WithGroup returns a Cache scoped to a child namespace: every key
	// passed to the returned Cache is prefixed with "group:", and
	// Clear("") on it clears only that group.
	WithGroup(group string) Cache
}

func groupKey(group, key string) string {
	if group == "" {
		return key
	}
	return group + ":" + key
}

// =============================================================================
// Memory realization
// =============================================================================

// memoryCache implements Cache over ristretto, adding an explicit key
// index per group because ristretto has no iteration/scan API — Clear
// needs to know which keys exist without asking the cache itself.
type memoryCache struct {
	mem   Memory
	group string
	index *memoryGroupIndex
}

// memoryGroupIndex tracks which keys belong to which group so Clear can
// delete them without a cache-wide scan. Shared across all WithGroup
// descendants of the same root so Clear(child) and Clear(parent) both see
// a consistent view.
type memoryGroupIndex struct {
	mu    sync.Mutex
	byKey map[string]struct{}
}

func newMemoryGroupIndex() *memoryGroupIndex {
	return &memoryGroupIndex{byKey: make(map[string]struct{})}
}

func (idx *memoryGroupIndex) track(key string) {
	idx.mu.Lock()
	idx.byKey[key] = struct{}{}
	idx.mu.Unlock()
}

func (idx *memoryGroupIndex) untrack(key string) {
	idx.mu.Lock()
	delete(idx.byKey, key)
	idx.mu.Unlock()
}

func (idx *memoryGroupIndex) keysWithPrefix(prefix string) []string {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	var matched []string
	for k := range idx.byKey {
		if prefix == "" || hasPrefix(k, prefix) {
			matched = append(matched, k)
		}
	}
	return matched
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// NewMemoryCache wraps an existing Memory (ristretto) wrapper as a Cache.
func NewMemoryCache(mem Memory) Cache {
	return &memoryCache{mem: mem, index: newMemoryGroupIndex()}
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	full := groupKey(c.group, key)
	val, ok := c.mem.Client().Get(full)
	if !ok {
		return nil, false, nil
	}
	return val, true, nil
}

func (c *memoryCache) Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if _, found, err := c.Get(ctx, key); err != nil {
		return false, err
	} else if found {
		return false, nil
	}
	return true, c.set(key, value, ttl)
}

func (c *memoryCache) Update(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if _, found, err := c.Get(ctx, key); err != nil {
		return false, err
	} else if !found {
		return false, nil
	}
	return true, c.set(key, value, ttl)
}

func (c *memoryCache) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	return c.set(key, value, ttl)
}

func (c *memoryCache) set(key string, value []byte, ttl time.Duration) error {
	full := groupKey(c.group, key)
	var ok bool
	if ttl > 0 {
		ok = c.mem.Client().SetWithTTL(full, value, int64(len(value)), ttl)
	} else {
		ok = c.mem.Client().Set(full, value, int64(len(value)))
	}
	if !ok {
		return ErrMemoryFull
	}
	c.mem.Wait()
	c.index.track(full)
	return nil
}

func (c *memoryCache) Remove(_ context.Context, key string) error {
	full := groupKey(c.group, key)
	c.mem.Client().Del(full)
	c.index.untrack(full)
	return nil
}

func (c *memoryCache) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	val, found, err := c.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	var current int64
	if found {
		current, err = strconv.ParseInt(string(val), 10, 64)
		if err != nil {
			return 0, ErrTypeMismatch
		}
	}
	next := current + delta
	if err := c.Put(ctx, key, []byte(strconv.FormatInt(next, 10)), 0); err != nil {
		return 0, err
	}
	return next, nil
}

func (c *memoryCache) Clear(_ context.Context, groupPrefix string) error {
	prefix := groupKey(c.group, groupPrefix)
	for _, key := range c.index.keysWithPrefix(prefix) {
		c.mem.Client().Del(key)
		c.index.untrack(key)
	}
	return nil
}

func (c *memoryCache) WithGroup(group string) Cache {
	return &memoryCache{mem: c.mem, group: groupKey(c.group, group), index: c.index}
}

var _ Cache = (*memoryCache)(nil)

// =============================================================================
// Redis realization
// =============================================================================

// redisCache implements Cache over go-redis, using SETNX for Add, WATCH-free
// SET XX for Update, and SCAN+DEL for group Clear (no KEYS, to stay
// cluster-friendly and avoid blocking large keyspaces).
type redisCache struct {
	rdb   Redis
	group string
}

// NewRedisCache wraps an existing Redis wrapper as a Cache.
func NewRedisCache(rdb Redis) Cache {
	return &redisCache{rdb: rdb}
}

func (c *redisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	full := groupKey(c.group, key)
	val, err := c.rdb.Client().Get(ctx, full).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *redisCache) Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	full := groupKey(c.group, key)
	ok, err := c.rdb.Client().SetNX(ctx, full, value, ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (c *redisCache) Update(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	full := groupKey(c.group, key)
	ok, err := c.rdb.Client().SetXX(ctx, full, value, ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (c *redisCache) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	full := groupKey(c.group, key)
	return c.rdb.Client().Set(ctx, full, value, ttl).Err()
}

func (c *redisCache) Remove(ctx context.Context, key string) error {
	full := groupKey(c.group, key)
	return c.rdb.Client().Del(ctx, full).Err()
}

func (c *redisCache) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	full := groupKey(c.group, key)
	next, err := c.rdb.Client().IncrBy(ctx, full, delta).Result()
	if err != nil {
		// go-redis surfaces a non-integer existing value as a generic
		// WRONGTYPE/"value is not an integer" RESP error, not a typed one.
		return 0, ErrTypeMismatch
	}
	return next, nil
}

func (c *redisCache) Clear(ctx context.Context, groupPrefix string) error {
	prefix := groupKey(c.group, groupPrefix) + "*"
	iter := c.rdb.Client().Scan(ctx, 0, prefix, 200).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= 500 {
			if err := c.rdb.Client().Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return c.rdb.Client().Del(ctx, batch...).Err()
	}
	return nil
}

func (c *redisCache) WithGroup(group string) Cache {
	return &redisCache{rdb: c.rdb, group: groupKey(c.group, group)}
}

var _ Cache = (*redisCache)(nil)
