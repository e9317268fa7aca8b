package xbreaker

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// maxOptimisticRetries bounds the WATCH/MULTI retry loop below so a
// pathologically hot key cannot spin forever.
const maxOptimisticRetries = 16

type redisTxKey struct{}

// redisStore implements RecordStore over Redis hashes, one hash per
// breaker key. Since Redis has no server-side arbitrary-closure
// transactions, the transaction boundary is an optimistic WATCH/MULTI
// retry loop instead of a held lock.
type redisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewNativeRedisAdapter returns an Adapter backed by Redis.
func NewNativeRedisAdapter(client redis.UniversalClient, keyPrefix string) (*Adapter, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if keyPrefix == "" {
		keyPrefix = "xbreaker:"
	}
	s := &redisStore{client: client, prefix: keyPrefix}
	return NewAdapter("redis", s, s.runOptimistic), nil
}

func (s *redisStore) hashKey(key string) string {
	return s.prefix + key
}

func (s *redisStore) runOptimistic(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for i := 0; i < maxOptimisticRetries; i++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			return fn(context.WithValue(ctx, redisTxKey{}, tx))
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			lastErr = err
			continue
		}
		return err
	}
	return fmt.Errorf("xbreaker: exhausted optimistic retries: %w", lastErr)
}

func (s *redisStore) Load(ctx context.Context, key string) (Record, bool, error) {
	tx, _ := ctx.Value(redisTxKey{}).(*redis.Tx)
	cmdable := redis.UniversalClient(s.client)
	if tx != nil {
		cmdable = tx
	}

	vals, err := cmdable.HGetAll(ctx, s.hashKey(key)).Result()
	if err != nil {
		return Record{}, false, err
	}
	if len(vals) == 0 {
		return Record{}, false, nil
	}

	var rec Record
	rec.State = State(parseInt(vals["state"]))
	rec.Metrics.Requests = uint32(parseInt(vals["requests"]))
	rec.Metrics.TotalSuccesses = uint32(parseInt(vals["totalSuccesses"]))
	rec.Metrics.TotalFailures = uint32(parseInt(vals["totalFailures"]))
	rec.Metrics.ConsecutiveSuccesses = uint32(parseInt(vals["consecutiveSuccesses"]))
	rec.Metrics.ConsecutiveFailures = uint32(parseInt(vals["consecutiveFailures"]))
	rec.Metrics.WindowStart = msToTime(parseInt(vals["windowStartMs"]))
	rec.OpenExpiresAt = msToTime(parseInt(vals["openExpiresAtMs"]))
	return rec, true, nil
}

func (s *redisStore) Save(ctx context.Context, key string, rec Record) error {
	tx, _ := ctx.Value(redisTxKey{}).(*redis.Tx)

	fields := map[string]any{
		"state":                int(rec.State),
		"requests":             rec.Metrics.Requests,
		"totalSuccesses":       rec.Metrics.TotalSuccesses,
		"totalFailures":        rec.Metrics.TotalFailures,
		"consecutiveSuccesses": rec.Metrics.ConsecutiveSuccesses,
		"consecutiveFailures":  rec.Metrics.ConsecutiveFailures,
		"windowStartMs":        timeToMs(rec.Metrics.WindowStart),
		"openExpiresAtMs":      timeToMs(rec.OpenExpiresAt),
	}

	if tx == nil {
		return s.client.HSet(ctx, s.hashKey(key), fields).Err()
	}

	_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.hashKey(key), fields)
		return nil
	})
	return err
}

func parseInt(s string) int64 {
	var n int64
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int64(c-'0')
	}
	return n
}

var _ RecordStore = (*redisStore)(nil)
