package xdlock

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type mongoLockDoc struct {
	Key         string `bson:"_id"`
	Owner       string `bson:"owner"`
	ExpiresAtMs int64  `bson:"expiresAtMs"`
}

// mongoDatabaseAdapter implements DatabaseAdapter over a MongoDB collection,
// one document per lock key keyed by _id.
type mongoDatabaseAdapter struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoAdapter returns an Adapter backed by MongoDB, using client-side
// sessions to provide the same serializable read-check-write boundary the
// SQL adapter gets from a real transaction.
func NewMongoAdapter(client *mongo.Client, db, collection string) (*DatabaseAdapterBridge, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	m := &mongoDatabaseAdapter{
		client: client,
		coll:   client.Database(db).Collection(collection),
	}
	return NewDatabaseAdapterBridge("mongo", m, m.runInSession), nil
}

func (m *mongoDatabaseAdapter) runInSession(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := m.client.StartSession()
	if err != nil {
		return fmt.Errorf("xdlock: start mongo session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx context.Context) (any, error) {
		return nil, fn(sessCtx)
	})
	if err != nil {
		return fmt.Errorf("xdlock: mongo transaction: %w", err)
	}
	return nil
}

func (m *mongoDatabaseAdapter) Get(ctx context.Context, key string) (string, int64, bool, error) {
	var doc mongoLockDoc
	err := m.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return "", 0, false, nil
	}
	if err != nil {
		return "", 0, false, err
	}
	return doc.Owner, doc.ExpiresAtMs, true, nil
}

func (m *mongoDatabaseAdapter) Upsert(ctx context.Context, key, owner string, expiresAtMs int64) error {
	_, err := m.coll.UpdateOne(ctx,
		bson.M{"_id": key},
		bson.M{"$set": bson.M{"owner": owner, "expiresAtMs": expiresAtMs}},
		options.UpdateOne().SetUpsert(true),
	)
	return err
}

func (m *mongoDatabaseAdapter) Delete(ctx context.Context, key string) error {
	_, err := m.coll.DeleteOne(ctx, bson.M{"_id": key})
	return err
}

var _ DatabaseAdapter = (*mongoDatabaseAdapter)(nil)
