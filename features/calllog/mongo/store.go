// Package mongo implements MongoDB-backed call log storage.
//
// Entries are stored one document per event with a compound (call_id, _id)
// index; ObjectIDs give the monotonic per-call ordering the cursor contract
// requires, so List pages forward with a simple $gt filter.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"cabline.dev/agent/booking/hooks"
	clientsmongo "cabline.dev/agent/clients/mongo"
	"cabline.dev/agent/features/calllog"
)

const (
	defaultCollection = "call_log_entries"
	defaultTimeout    = 5 * time.Second
)

type (
	// Options configures the store.
	Options struct {
		// Client is the connected Mongo wrapper. Required.
		Client *clientsmongo.Client
		// Database is the database name. Required.
		Database string
		// Collection is the collection name. Defaults to "call_log_entries".
		Collection string
		// Timeout bounds each store operation. Defaults to 5s.
		Timeout time.Duration
	}

	// Store implements calllog.Store over MongoDB.
	Store struct {
		coll    clientsmongo.Collection
		timeout time.Duration
	}

	entryDocument struct {
		ID        primitive.ObjectID `bson:"_id,omitempty"`
		CallID    string             `bson:"call_id"`
		TurnID    string             `bson:"turn_id,omitempty"`
		Type      string             `bson:"type"`
		Payload   []byte             `bson:"payload"`
		Timestamp time.Time          `bson:"timestamp"`
	}
)

// New builds a Store and ensures its indexes.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	collection := opts.Collection
	if collection == "" {
		collection = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	coll := opts.Client.Collection(opts.Database, collection)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := ensureIndexes(ctx, coll); err != nil {
		return nil, err
	}
	return newStoreWithCollection(coll, timeout)
}

var _ calllog.Store = (*Store)(nil)

// Append implements calllog.Store.
func (s *Store) Append(ctx context.Context, e *calllog.Entry) error {
	if e == nil {
		return errors.New("entry is required")
	}
	if e.CallID == "" {
		return errors.New("call id is required")
	}
	if e.Type == "" {
		return errors.New("entry type is required")
	}
	if e.Timestamp.IsZero() {
		return errors.New("timestamp is required")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	doc := entryDocument{
		CallID:    e.CallID,
		TurnID:    e.TurnID,
		Type:      string(e.Type),
		Payload:   append([]byte(nil), e.Payload...),
		Timestamp: e.Timestamp.UTC(),
	}
	res, err := s.coll.InsertOne(ctx, doc)
	if err != nil {
		return err
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return fmt.Errorf("unexpected inserted id type %T", res.InsertedID)
	}
	e.ID = oid.Hex()
	return nil
}

// List implements calllog.Store.
func (s *Store) List(ctx context.Context, callID string, cursor string, limit int) (page calllog.Page, err error) {
	if callID == "" {
		return calllog.Page{}, errors.New("call id is required")
	}
	if limit <= 0 {
		return calllog.Page{}, errors.New("limit must be > 0")
	}

	filter := bson.M{"call_id": callID}
	if cursor != "" {
		oid, err := primitive.ObjectIDFromHex(cursor)
		if err != nil {
			return calllog.Page{}, fmt.Errorf("invalid cursor %q: %w", cursor, err)
		}
		filter["_id"] = bson.M{"$gt": oid}
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	cur, err := s.coll.Find(ctx, filter, options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetLimit(int64(limit+1)),
	)
	if err != nil {
		return calllog.Page{}, err
	}
	defer func() {
		if cerr := cur.Close(ctx); err == nil && cerr != nil {
			err = cerr
		}
	}()

	var entries []*calllog.Entry
	for cur.Next(ctx) {
		var doc entryDocument
		if err := cur.Decode(&doc); err != nil {
			return calllog.Page{}, err
		}
		entries = append(entries, &calllog.Entry{
			ID:        doc.ID.Hex(),
			CallID:    doc.CallID,
			TurnID:    doc.TurnID,
			Type:      hooks.EventType(doc.Type),
			Payload:   append([]byte(nil), doc.Payload...),
			Timestamp: doc.Timestamp,
		})
	}
	if err := cur.Err(); err != nil {
		return calllog.Page{}, err
	}

	var next string
	if len(entries) > limit {
		next = entries[limit-1].ID
		entries = entries[:limit]
	}
	return calllog.Page{
		Entries:    entries,
		NextCursor: next,
	}, nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func ensureIndexes(ctx context.Context, coll clientsmongo.Collection) error {
	index := mongodriver.IndexModel{
		Keys: bson.D{
			{Key: "call_id", Value: 1},
			{Key: "_id", Value: 1},
		},
	}
	_, err := coll.Indexes().CreateOne(ctx, index)
	return err
}

func newStoreWithCollection(coll clientsmongo.Collection, timeout time.Duration) (*Store, error) {
	if coll == nil {
		return nil, errors.New("collection is required")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Store{
		coll:    coll,
		timeout: timeout,
	}, nil
}
