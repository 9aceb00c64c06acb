package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kailas-cloud/dataforge/internal/db"
)

// CreateIndex creates def on coll.
func (s *Store) CreateIndex(ctx context.Context, coll string, def *db.IndexDefinition) error {
	if err := def.Validate(); err != nil {
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}
	model := indexModel(def)
	if _, err := s.coll(coll).Indexes().CreateOne(ctx, model); err != nil {
		if hasCode(err, codeIndexOptionsConflict) || hasCode(err, codeIndexKeySpecsConflict) {
			return &db.Error{Op: db.OpCreateIndex, Err: errors.Join(db.ErrIndexExists, err)}
		}
		return wrapErr(db.OpCreateIndex, err)
	}
	return nil
}

// DropIndex removes the named index from coll.
func (s *Store) DropIndex(ctx context.Context, coll, name string) error {
	if _, err := s.coll(coll).Indexes().DropOne(ctx, name); err != nil {
		if hasCode(err, codeIndexNotFound) {
			return &db.Error{Op: db.OpDropIndex, Err: errors.Join(db.ErrIndexNotFound, err)}
		}
		return wrapErr(db.OpDropIndex, err)
	}
	return nil
}

// ListIndexes returns the index names on coll.
func (s *Store) ListIndexes(ctx context.Context, coll string) ([]string, error) {
	specs, err := s.coll(coll).Indexes().ListSpecifications(ctx)
	if err != nil {
		return nil, wrapErr(db.OpListIndexes, err)
	}
	names := make([]string, 0, len(specs))
	for _, sp := range specs {
		names = append(names, sp.Name)
	}
	return names, nil
}

func indexModel(def *db.IndexDefinition) mongo.IndexModel {
	keys := bson.D{}
	for _, k := range def.Keys {
		var v any
		switch k.Kind {
		case db.IndexAsc:
			v = 1
		case db.IndexDesc:
			v = -1
		default:
			v = string(k.Kind)
		}
		keys = append(keys, bson.E{Key: k.Field, Value: v})
	}

	opts := options.Index().SetName(def.Name)
	if def.Unique {
		opts.SetUnique(true)
	}
	if def.Sparse {
		opts.SetSparse(true)
	}
	if len(def.PartialFilter) > 0 {
		opts.SetPartialFilterExpression(bson.M(def.PartialFilter))
	}
	return mongo.IndexModel{Keys: keys, Options: opts}
}
