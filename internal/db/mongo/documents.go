package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kailas-cloud/dataforge/internal/db"
)

// InsertOne stores doc and returns its id as a hex string.
func (s *Store) InsertOne(ctx context.Context, coll string, doc bson.M) (string, error) {
	res, err := s.coll(coll).InsertOne(ctx, doc)
	if err != nil {
		return "", wrapErr(db.OpInsert, err)
	}
	return idString(res.InsertedID), nil
}

// InsertMany stores docs in order and returns their ids.
func (s *Store) InsertMany(ctx context.Context, coll string, docs []bson.M) ([]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	items := make([]any, len(docs))
	for i, d := range docs {
		items[i] = d
	}
	res, err := s.coll(coll).InsertMany(ctx, items)
	if err != nil {
		return nil, wrapErr(db.OpInsert, err)
	}
	ids := make([]string, len(res.InsertedIDs))
	for i, id := range res.InsertedIDs {
		ids[i] = idString(id)
	}
	return ids, nil
}

// FindOne returns the first document matching filter, or db.ErrNoDocuments.
func (s *Store) FindOne(ctx context.Context, coll string, filter bson.M) (bson.M, error) {
	var out bson.M
	if err := s.coll(coll).FindOne(ctx, filter).Decode(&out); err != nil {
		return nil, wrapErr(db.OpFind, err)
	}
	return out, nil
}

// Find returns every document matching filter.
func (s *Store) Find(ctx context.Context, coll string, filter bson.M, opts db.FindOptions) ([]bson.M, error) {
	fo := options.Find()
	if len(opts.Sort) > 0 {
		fo.SetSort(opts.Sort)
	}
	if opts.Skip > 0 {
		fo.SetSkip(opts.Skip)
	}
	if opts.Limit > 0 {
		fo.SetLimit(opts.Limit)
	}
	if len(opts.Projection) > 0 {
		fo.SetProjection(opts.Projection)
	}

	cur, err := s.coll(coll).Find(ctx, filter, fo)
	if err != nil {
		return nil, wrapErr(db.OpFind, err)
	}
	out := []bson.M{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, wrapErr(db.OpFind, err)
	}
	return out, nil
}

// Aggregate runs pipeline. A positive maxTime bounds server-side execution.
func (s *Store) Aggregate(
	ctx context.Context, coll string, pipeline []bson.M, maxTime time.Duration,
) ([]bson.M, error) {
	stages := make(bson.A, len(pipeline))
	for i, st := range pipeline {
		stages[i] = st
	}
	ao := options.Aggregate().SetAllowDiskUse(true)
	if maxTime > 0 {
		ao.SetMaxTime(maxTime)
	}

	cur, err := s.coll(coll).Aggregate(ctx, stages, ao)
	if err != nil {
		return nil, wrapErr(db.OpAggregate, err)
	}
	out := []bson.M{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, wrapErr(db.OpAggregate, err)
	}
	return out, nil
}

// UpdateOne applies update to the first match and returns the matched count.
func (s *Store) UpdateOne(ctx context.Context, coll string, filter, update bson.M) (int64, error) {
	res, err := s.coll(coll).UpdateOne(ctx, filter, update)
	if err != nil {
		return 0, wrapErr(db.OpUpdate, err)
	}
	return res.MatchedCount, nil
}

// UpdateMany applies update to every match and returns the modified count.
func (s *Store) UpdateMany(ctx context.Context, coll string, filter, update bson.M) (int64, error) {
	res, err := s.coll(coll).UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, wrapErr(db.OpUpdate, err)
	}
	return res.ModifiedCount, nil
}

// ReplaceOne swaps the first match for doc and returns the matched count.
func (s *Store) ReplaceOne(ctx context.Context, coll string, filter, doc bson.M) (int64, error) {
	res, err := s.coll(coll).ReplaceOne(ctx, filter, doc)
	if err != nil {
		return 0, wrapErr(db.OpUpdate, err)
	}
	return res.MatchedCount, nil
}

// DeleteMany removes every match and returns the deleted count.
func (s *Store) DeleteMany(ctx context.Context, coll string, filter bson.M) (int64, error) {
	res, err := s.coll(coll).DeleteMany(ctx, filter)
	if err != nil {
		return 0, wrapErr(db.OpDelete, err)
	}
	return res.DeletedCount, nil
}

// Count returns the number of documents matching filter.
func (s *Store) Count(ctx context.Context, coll string, filter bson.M) (int64, error) {
	n, err := s.coll(coll).CountDocuments(ctx, filter)
	if err != nil {
		return 0, wrapErr(db.OpCount, err)
	}
	return n, nil
}

func idString(id any) string {
	if oid, ok := id.(primitive.ObjectID); ok {
		return oid.Hex()
	}
	return fmt.Sprint(id)
}
