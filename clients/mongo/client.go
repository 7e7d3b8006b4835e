// Package mongo wraps the MongoDB driver behind small interfaces so stores
// can be tested against fakes instead of a live server. The wrapper also
// implements goa.design/clue/health.Pinger for the daemon's health endpoint.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	defaultTimeout = 5 * time.Second
	clientName     = "mongo"
)

type (
	// Collection is the slice of *mongo.Collection the stores consume.
	Collection interface {
		InsertOne(ctx context.Context, document any, opts ...*options.InsertOneOptions) (*mongodriver.InsertOneResult, error)
		Find(ctx context.Context, filter any, opts ...*options.FindOptions) (Cursor, error)
		Indexes() IndexView
	}

	// IndexView creates indexes on a collection.
	IndexView interface {
		CreateOne(ctx context.Context, model mongodriver.IndexModel, opts ...*options.CreateIndexesOptions) (string, error)
	}

	// Cursor iterates a result set.
	Cursor interface {
		Next(ctx context.Context) bool
		Decode(val any) error
		Err() error
		Close(ctx context.Context) error
	}

	// Options configures Connect.
	Options struct {
		// URI is the MongoDB connection string. Required.
		URI string
		// Timeout bounds the initial connect and ping. Defaults to 5s.
		Timeout time.Duration
	}

	// Client wraps a connected driver client.
	Client struct {
		mongo *mongodriver.Client
	}
)

// Connect dials MongoDB and verifies the connection with a ping.
func Connect(ctx context.Context, opts Options) (*Client, error) {
	if opts.URI == "" {
		return nil, errors.New("mongo uri is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	mc, err := mongodriver.Connect(ctx, options.Client().ApplyURI(opts.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := mc.Ping(ctx, readpref.Primary()); err != nil {
		_ = mc.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &Client{mongo: mc}, nil
}

// NewClient wraps an already connected driver client.
func NewClient(mc *mongodriver.Client) (*Client, error) {
	if mc == nil {
		return nil, errors.New("mongo client is required")
	}
	return &Client{mongo: mc}, nil
}

// Collection returns the named collection behind the Collection interface.
func (c *Client) Collection(database, name string) Collection {
	return mongoCollection{coll: c.mongo.Database(database).Collection(name)}
}

// Name implements health.Pinger.
func (c *Client) Name() string {
	return clientName
}

// Ping implements health.Pinger.
func (c *Client) Ping(ctx context.Context) error {
	return c.mongo.Ping(ctx, readpref.Primary())
}

// Disconnect closes the underlying driver client.
func (c *Client) Disconnect(ctx context.Context) error {
	return c.mongo.Disconnect(ctx)
}

// Wrap adapts a raw driver collection to the Collection interface. Stores use
// it when they are handed a *mongo.Collection directly.
func Wrap(coll *mongodriver.Collection) Collection {
	return mongoCollection{coll: coll}
}

type mongoCollection struct {
	coll *mongodriver.Collection
}

func (c mongoCollection) InsertOne(ctx context.Context, document any, opts ...*options.InsertOneOptions) (*mongodriver.InsertOneResult, error) {
	return c.coll.InsertOne(ctx, document, opts...)
}

func (c mongoCollection) Find(ctx context.Context, filter any, opts ...*options.FindOptions) (Cursor, error) {
	cur, err := c.coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	return mongoCursor{cur: cur}, nil
}

func (c mongoCollection) Indexes() IndexView {
	return mongoIndexView{view: c.coll.Indexes()}
}

type mongoCursor struct {
	cur *mongodriver.Cursor
}

func (c mongoCursor) Next(ctx context.Context) bool {
	return c.cur.Next(ctx)
}

func (c mongoCursor) Decode(val any) error {
	return c.cur.Decode(val)
}

func (c mongoCursor) Err() error {
	return c.cur.Err()
}

func (c mongoCursor) Close(ctx context.Context) error {
	return c.cur.Close(ctx)
}

type mongoIndexView struct {
	view mongodriver.IndexView
}

func (v mongoIndexView) CreateOne(ctx context.Context, model mongodriver.IndexModel, opts ...*options.CreateIndexesOptions) (string, error) {
	return v.view.CreateOne(ctx, model, opts...)
}
