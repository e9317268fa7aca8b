package xbreaker

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type mongoRecordDoc struct {
	Key                  string `bson:"_id"`
	State                int    `bson:"state"`
	Requests             uint32 `bson:"requests"`
	TotalSuccesses       uint32 `bson:"totalSuccesses"`
	TotalFailures        uint32 `bson:"totalFailures"`
	ConsecutiveSuccesses uint32 `bson:"consecutiveSuccesses"`
	ConsecutiveFailures  uint32 `bson:"consecutiveFailures"`
	WindowStartMs        int64  `bson:"windowStartMs"`
	OpenExpiresAtMs      int64  `bson:"openExpiresAtMs"`
}

// mongoStore implements RecordStore over a MongoDB collection, one
// document per breaker key keyed by _id.
type mongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoAdapter returns an Adapter backed by MongoDB, using a
// client-side session as the transaction boundary.
func NewMongoAdapter(client *mongo.Client, db, collection string) (*Adapter, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	m := &mongoStore{client: client, coll: client.Database(db).Collection(collection)}
	return NewAdapter("mongo", m, m.runInSession), nil
}

func (m *mongoStore) runInSession(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := m.client.StartSession()
	if err != nil {
		return fmt.Errorf("xbreaker: start mongo session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx context.Context) (any, error) {
		return nil, fn(sessCtx)
	})
	if err != nil {
		return fmt.Errorf("xbreaker: mongo transaction: %w", err)
	}
	return nil
}

func (m *mongoStore) Load(ctx context.Context, key string) (Record, bool, error) {
	var doc mongoRecordDoc
	err := m.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	return Record{
		State: State(doc.State),
		Metrics: Metrics{
			Requests:             doc.Requests,
			TotalSuccesses:       doc.TotalSuccesses,
			TotalFailures:        doc.TotalFailures,
			ConsecutiveSuccesses: doc.ConsecutiveSuccesses,
			ConsecutiveFailures:  doc.ConsecutiveFailures,
			WindowStart:          msToTime(doc.WindowStartMs),
		},
		OpenExpiresAt: msToTime(doc.OpenExpiresAtMs),
	}, true, nil
}

func (m *mongoStore) Save(ctx context.Context, key string, rec Record) error {
	update := bson.M{"$set": bson.M{
		"state":                int(rec.State),
		"requests":             rec.Metrics.Requests,
		"totalSuccesses":       rec.Metrics.TotalSuccesses,
		"totalFailures":        rec.Metrics.TotalFailures,
		"consecutiveSuccesses": rec.Metrics.ConsecutiveSuccesses,
		"consecutiveFailures":  rec.Metrics.ConsecutiveFailures,
		"windowStartMs":        timeToMs(rec.Metrics.WindowStart),
		"openExpiresAtMs":      timeToMs(rec.OpenExpiresAt),
	}}
	_, err := m.coll.UpdateOne(ctx, bson.M{"_id": key}, update, options.UpdateOne().SetUpsert(true))
	return err
}

var _ RecordStore = (*mongoStore)(nil)
