package xcache

import (
	"context"
	"regexp"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/coordkit/coordkit/pkg/storage/xmongo"
)

// mongoCacheDoc is the document shape stored per key. ExpiresAtMs is 0 for
// entries with no TTL; Mongo's own TTL index only reaps at a best-effort
// ~60s cadence, so every read additionally filters on ExpiresAtMs itself
// rather than trusting the index to have already removed a stale document.
type mongoCacheDoc struct {
	Key         string `bson:"_id"`
	Value       []byte `bson:"value"`
	ExpiresAtMs int64  `bson:"expires_at_ms"`
}

// mongoCache implements Cache over the teacher's xmongo wrapper, storing one
// document per key in a single collection.
type mongoCache struct {
	mg    xmongo.Mongo
	coll  *mongo.Collection
	group string
}

// NewMongoCache returns a Cache backed by a MongoDB collection, using mg's
// underlying client. It also ensures a TTL index on expires_at_ms exists so
// expired entries with a nonzero deadline are eventually reaped server-side.
func NewMongoCache(ctx context.Context, mg xmongo.Mongo, database, collection string) (Cache, error) {
	if mg == nil {
		return nil, ErrNilClient
	}
	coll := mg.Client().Database(database).Collection(collection)

	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "expires_at_ms", Value: 1}},
		Options: options.Index().
			SetPartialFilterExpression(bson.D{{Key: "expires_at_ms", Value: bson.D{{Key: "$gt", Value: 0}}}}),
	})
	if err != nil {
		return nil, err
	}

	return &mongoCache{mg: mg, coll: coll}, nil
}

func notExpiredFilter(key string) bson.D {
	return bson.D{
		{Key: "_id", Value: key},
		{Key: "$or", Value: bson.A{
			bson.D{{Key: "expires_at_ms", Value: 0}},
			bson.D{{Key: "expires_at_ms", Value: bson.D{{Key: "$gt", Value: time.Now().UnixMilli()}}}},
		}},
	}
}

func (c *mongoCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	full := groupKey(c.group, key)
	var doc mongoCacheDoc
	err := c.coll.FindOne(ctx, notExpiredFilter(full)).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return doc.Value, true, nil
}

func (c *mongoCache) Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if _, found, err := c.Get(ctx, key); err != nil {
		return false, err
	} else if found {
		return false, nil
	}
	return true, c.set(ctx, key, value, ttl)
}

func (c *mongoCache) Update(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if _, found, err := c.Get(ctx, key); err != nil {
		return false, err
	} else if !found {
		return false, nil
	}
	return true, c.set(ctx, key, value, ttl)
}

func (c *mongoCache) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.set(ctx, key, value, ttl)
}

func (c *mongoCache) set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	full := groupKey(c.group, key)
	_, err := c.coll.ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: full}},
		mongoCacheDoc{Key: full, Value: value, ExpiresAtMs: expiresAtMs(ttl)},
		options.Replace().SetUpsert(true),
	)
	return err
}

func (c *mongoCache) Remove(ctx context.Context, key string) error {
	full := groupKey(c.group, key)
	_, err := c.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: full}})
	return err
}

func (c *mongoCache) Increment(ctx context.Context, key string, delta int64) (int64, error) {
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

func (c *mongoCache) Clear(ctx context.Context, groupPrefix string) error {
	prefix := groupKey(c.group, groupPrefix)
	_, err := c.coll.DeleteMany(ctx, bson.D{
		{Key: "_id", Value: bson.D{{Key: "$regex", Value: "^" + regexp.QuoteMeta(prefix)}}},
	})
	return err
}

func (c *mongoCache) WithGroup(group string) Cache {
	return &mongoCache{mg: c.mg, coll: c.coll, group: groupKey(c.group, group)}
}

var _ Cache = (*mongoCache)(nil)
