package xsemaphore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// limitKeySuffix 是存放已绑定 limit 的兄弟键后缀：<key>__limit。
const limitKeySuffix = "__limit"

// recomputeExpirySource 重算聚合 TTL 的公共尾段，拼接进每个变更脚本。
//
// 约定：KEYS[1] = 槽位 zset，KEYS[2] = limit 兄弟键。
// 任一存活槽位 score 为 0（永不过期）时 PERSIST 两个键——此分支必须先于
// PEXPIREAT 判断，否则"最长过期时间"会取到 0 并把键立即过期掉；
// 否则 PEXPIREAT 到最大 score；zset 已空时连同兄弟键一并删除。
const recomputeExpirySource = `
if redis.call('ZCARD', KEYS[1]) == 0 then
    redis.call('DEL', KEYS[1], KEYS[2])
elseif redis.call('ZCOUNT', KEYS[1], 0, 0) > 0 then
    redis.call('PERSIST', KEYS[1])
    redis.call('PERSIST', KEYS[2])
else
    local top = redis.call('ZRANGE', KEYS[1], 0, 0, 'REV', 'WITHSCORES')
    redis.call('PEXPIREAT', KEYS[1], tonumber(top[2]))
    redis.call('PEXPIREAT', KEYS[2], tonumber(top[2]))
end
`

// acquireSource 原子地获取一个槽位。
//
//	KEYS[1] = 槽位 zset（member=slotID, score=expirationMs, 0=永不过期）
//	KEYS[2] = limit 兄弟键
//	ARGV[1] = now（毫秒）
//	ARGV[2] = expiresAt（毫秒，0=永不过期）
//	ARGV[3] = slotID
//	ARGV[4] = 调用方给出的 limit
//
// 返回 1=成功 0=已满。先清理过期槽位（ZREMRANGEBYSCORE 1 now，score 0
// 不在范围内所以存活）；limit 以已存储值优先——首个成功获取才绑定调用方的值。
var acquireScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local expiresAt = tonumber(ARGV[2])
local slotID = ARGV[3]
local limit = tonumber(ARGV[4])

redis.call('ZREMRANGEBYSCORE', KEYS[1], 1, now)

local stored = redis.call('GET', KEYS[2])
if stored and redis.call('ZCARD', KEYS[1]) > 0 then
    limit = tonumber(stored)
end

if not redis.call('ZSCORE', KEYS[1], slotID) then
    if redis.call('ZCARD', KEYS[1]) >= limit then
        return 0
    end
end

redis.call('ZADD', KEYS[1], expiresAt, slotID)
redis.call('SET', KEYS[2], limit)
` + recomputeExpirySource + `
return 1
`)

// releaseSource 原子地释放一个槽位，返回 1=成功 0=未持有。
var releaseScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local slotID = ARGV[2]

redis.call('ZREMRANGEBYSCORE', KEYS[1], 1, now)
local removed = redis.call('ZREM', KEYS[1], slotID)
` + recomputeExpirySource + `
return removed
`)

// refreshSource 原子地续期一个存活且有过期时间的槽位。
// score 为 0（永不过期）的槽位拒绝续期：续期只收紧截止时间，不凭空引入。
// 返回 1=成功 0=未持有或不可续期。
var refreshScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local newExpiresAt = tonumber(ARGV[2])
local slotID = ARGV[3]

redis.call('ZREMRANGEBYSCORE', KEYS[1], 1, now)
local score = redis.call('ZSCORE', KEYS[1], slotID)
if not score or tonumber(score) == 0 then
    return 0
end
redis.call('ZADD', KEYS[1], newExpiresAt, slotID)
` + recomputeExpirySource + `
return 1
`)

// RedisAdapter implements Adapter over the sorted-set layout described in
// the package documentation. All mutations are single Lua scripts, the same
// embedded-script idiom as xdlock's NativeRedisAdapter.
type RedisAdapter struct {
	client redis.UniversalClient
	nowFn  func() time.Time
}

// NewRedisAdapter wraps an already-configured redis.UniversalClient.
func NewRedisAdapter(client redis.UniversalClient) (*RedisAdapter, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	return &RedisAdapter{client: client, nowFn: time.Now}, nil
}

func (a *RedisAdapter) BackendKind() string { return "redis" }

func limitKey(key string) string { return key + limitKeySuffix }

func (a *RedisAdapter) Acquire(ctx context.Context, key, slotID string, limit int, ttl time.Duration) (bool, error) {
	now := a.nowFn()
	var expiresAt int64
	if ttl > 0 {
		expiresAt = now.Add(ttl).UnixMilli()
	}
	res, err := acquireScript.Run(ctx, a.client,
		[]string{key, limitKey(key)},
		now.UnixMilli(), expiresAt, slotID, limit,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("xsemaphore: redis acquire %q: %w", key, err)
	}
	return res == 1, nil
}

func (a *RedisAdapter) Release(ctx context.Context, key, slotID string) error {
	res, err := releaseScript.Run(ctx, a.client,
		[]string{key, limitKey(key)},
		a.nowFn().UnixMilli(), slotID,
	).Int64()
	if err != nil {
		return fmt.Errorf("xsemaphore: redis release %q: %w", key, err)
	}
	if res == 0 {
		return ErrSlotNotHeld
	}
	return nil
}

func (a *RedisAdapter) Refresh(ctx context.Context, key, slotID string, ttl time.Duration) error {
	now := a.nowFn()
	res, err := refreshScript.Run(ctx, a.client,
		[]string{key, limitKey(key)},
		now.UnixMilli(), now.Add(ttl).UnixMilli(), slotID,
	).Int64()
	if err != nil {
		return fmt.Errorf("xsemaphore: redis refresh %q: %w", key, err)
	}
	if res == 0 {
		return ErrSlotNotHeld
	}
	return nil
}

func (a *RedisAdapter) ForceReleaseAll(ctx context.Context, key string) error {
	if err := a.client.Del(ctx, key, limitKey(key)).Err(); err != nil {
		return fmt.Errorf("xsemaphore: redis force release %q: %w", key, err)
	}
	return nil
}

func (a *RedisAdapter) Inspect(ctx context.Context, key string) (State, error) {
	pipe := a.client.Pipeline()
	membersCmd := pipe.ZRangeWithScores(ctx, key, 0, -1)
	limitCmd := pipe.Get(ctx, limitKey(key))
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return State{}, fmt.Errorf("xsemaphore: redis inspect %q: %w", key, err)
	}

	members, err := membersCmd.Result()
	if err != nil && err != redis.Nil {
		return State{}, fmt.Errorf("xsemaphore: redis inspect %q: %w", key, err)
	}

	nowMs := a.nowFn().UnixMilli()
	var state State
	for _, m := range members {
		expMs := int64(m.Score)
		if expMs != 0 && expMs <= nowMs {
			continue
		}
		slot := SlotState{SlotID: m.Member.(string)}
		if expMs != 0 {
			slot.ExpiresAt = time.UnixMilli(expMs)
		}
		state.Slots = append(state.Slots, slot)
	}
	if len(state.Slots) == 0 {
		return State{}, nil
	}

	raw, err := limitCmd.Result()
	if err != nil && err != redis.Nil {
		return State{}, fmt.Errorf("xsemaphore: redis inspect %q: %w", key, err)
	}
	if err == nil {
		if limit, convErr := strconv.Atoi(raw); convErr == nil {
			state.Limit = limit
		}
	}
	return state, nil
}

func (a *RedisAdapter) Close(ctx context.Context) error { return nil }

var _ Adapter = (*RedisAdapter)(nil)
