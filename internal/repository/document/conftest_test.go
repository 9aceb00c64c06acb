package document

import (
	"context"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/kailas-cloud/dataforge/internal/db"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	insertOneFn  func(ctx context.Context, coll string, doc bson.M) (string, error)
	findOneFn    func(ctx context.Context, coll string, filter bson.M) (bson.M, error)
	findFn       func(ctx context.Context, coll string, filter bson.M, opts db.FindOptions) ([]bson.M, error)
	aggregateFn  func(ctx context.Context, coll string, pipeline []bson.M, maxTime time.Duration) ([]bson.M, error)
	replaceOneFn func(ctx context.Context, coll string, filter, doc bson.M) (int64, error)
	updateManyFn func(ctx context.Context, coll string, filter, update bson.M) (int64, error)
	deleteManyFn func(ctx context.Context, coll string, filter bson.M) (int64, error)
	countFn      func(ctx context.Context, coll string, filter bson.M) (int64, error)
}

func (m *mockStore) InsertOne(ctx context.Context, coll string, doc bson.M) (string, error) {
	if m.insertOneFn != nil {
		return m.insertOneFn(ctx, coll, doc)
	}
	return testID, nil
}

func (m *mockStore) FindOne(ctx context.Context, coll string, filter bson.M) (bson.M, error) {
	if m.findOneFn != nil {
		return m.findOneFn(ctx, coll, filter)
	}
	return nil, db.ErrNoDocuments
}

func (m *mockStore) Find(ctx context.Context, coll string, filter bson.M, opts db.FindOptions) ([]bson.M, error) {
	if m.findFn != nil {
		return m.findFn(ctx, coll, filter, opts)
	}
	return nil, nil
}

func (m *mockStore) Aggregate(
	ctx context.Context, coll string, pipeline []bson.M, maxTime time.Duration,
) ([]bson.M, error) {
	if m.aggregateFn != nil {
		return m.aggregateFn(ctx, coll, pipeline, maxTime)
	}
	return nil, nil
}

func (m *mockStore) ReplaceOne(ctx context.Context, coll string, filter, doc bson.M) (int64, error) {
	if m.replaceOneFn != nil {
		return m.replaceOneFn(ctx, coll, filter, doc)
	}
	return 1, nil
}

func (m *mockStore) UpdateMany(ctx context.Context, coll string, filter, update bson.M) (int64, error) {
	if m.updateManyFn != nil {
		return m.updateManyFn(ctx, coll, filter, update)
	}
	return 0, nil
}

func (m *mockStore) DeleteMany(ctx context.Context, coll string, filter bson.M) (int64, error) {
	if m.deleteManyFn != nil {
		return m.deleteManyFn(ctx, coll, filter)
	}
	return 1, nil
}

func (m *mockStore) Count(ctx context.Context, coll string, filter bson.M) (int64, error) {
	if m.countFn != nil {
		return m.countFn(ctx, coll, filter)
	}
	return 0, nil
}

const testID = "65f0000000000000000000aa"

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	return New(ms), ms
}
