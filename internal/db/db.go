package db

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// Collection names of the document store.
const (
	CollectionData      = "datas"
	CollectionModels    = "models"
	CollectionFiles     = "files"
	CollectionHistories = "histories"
)

// Store is the document database facade combining all sub-interfaces.
//
//nolint:interfacebloat // facade by design -- consumers use narrow sub-interfaces (ISP)
type Store interface {
	Pinger
	DocumentStore
	IndexManager
	Close(ctx context.Context) error
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// FindOptions shapes a Find call.
type FindOptions struct {
	Sort       bson.D
	Skip       int64
	Limit      int64
	Projection bson.M
}

// DocumentStore provides document CRUD and aggregation over named collections.
type DocumentStore interface {
	InsertOne(ctx context.Context, coll string, doc bson.M) (string, error)
	InsertMany(ctx context.Context, coll string, docs []bson.M) ([]string, error)
	FindOne(ctx context.Context, coll string, filter bson.M) (bson.M, error)
	Find(ctx context.Context, coll string, filter bson.M, opts FindOptions) ([]bson.M, error)
	Aggregate(ctx context.Context, coll string, pipeline []bson.M, maxTime time.Duration) ([]bson.M, error)
	UpdateOne(ctx context.Context, coll string, filter, update bson.M) (int64, error)
	UpdateMany(ctx context.Context, coll string, filter, update bson.M) (int64, error)
	ReplaceOne(ctx context.Context, coll string, filter, doc bson.M) (int64, error)
	DeleteMany(ctx context.Context, coll string, filter bson.M) (int64, error)
	Count(ctx context.Context, coll string, filter bson.M) (int64, error)
}

// IndexManager provides index lifecycle operations.
type IndexManager interface {
	CreateIndex(ctx context.Context, coll string, def *IndexDefinition) error
	DropIndex(ctx context.Context, coll, name string) error
	ListIndexes(ctx context.Context, coll string) ([]string, error)
}

// KVStore provides simple key-value operations on the shared cache.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	IncrBy(ctx context.Context, key string, val int64) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}
