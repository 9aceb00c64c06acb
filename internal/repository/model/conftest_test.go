package model

import (
	"context"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/kailas-cloud/dataforge/internal/db"
	dommodel "github.com/kailas-cloud/dataforge/internal/domain/model"
	"github.com/kailas-cloud/dataforge/internal/domain/model/field"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	insertOneFn   func(ctx context.Context, coll string, doc bson.M) (string, error)
	findOneFn     func(ctx context.Context, coll string, filter bson.M) (bson.M, error)
	findFn        func(ctx context.Context, coll string, filter bson.M, opts db.FindOptions) ([]bson.M, error)
	updateOneFn   func(ctx context.Context, coll string, filter, update bson.M) (int64, error)
	deleteManyFn  func(ctx context.Context, coll string, filter bson.M) (int64, error)
	createIndexFn func(ctx context.Context, coll string, def *db.IndexDefinition) error
	dropIndexFn   func(ctx context.Context, coll, name string) error
	listIndexesFn func(ctx context.Context, coll string) ([]string, error)
}

func (m *mockStore) InsertOne(ctx context.Context, coll string, doc bson.M) (string, error) {
	if m.insertOneFn != nil {
		return m.insertOneFn(ctx, coll, doc)
	}
	return "65f000000000000000000001", nil
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

func (m *mockStore) UpdateOne(ctx context.Context, coll string, filter, update bson.M) (int64, error) {
	if m.updateOneFn != nil {
		return m.updateOneFn(ctx, coll, filter, update)
	}
	return 1, nil
}

func (m *mockStore) DeleteMany(ctx context.Context, coll string, filter bson.M) (int64, error) {
	if m.deleteManyFn != nil {
		return m.deleteManyFn(ctx, coll, filter)
	}
	return 1, nil
}

func (m *mockStore) CreateIndex(ctx context.Context, coll string, def *db.IndexDefinition) error {
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, coll, def)
	}
	return nil
}

func (m *mockStore) DropIndex(ctx context.Context, coll, name string) error {
	if m.dropIndexFn != nil {
		return m.dropIndexFn(ctx, coll, name)
	}
	return nil
}

func (m *mockStore) ListIndexes(ctx context.Context, coll string) ([]string, error) {
	if m.listIndexesFn != nil {
		return m.listIndexesFn(ctx, coll)
	}
	return nil, nil
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	return New(ms, zap.NewNop()), ms
}

func testModel(t *testing.T) dommodel.Model {
	t.Helper()
	m, err := dommodel.New("u1", dommodel.Spec{
		Name: "Person",
		Fields: []field.Field{
			{Name: "name", Type: field.String, Unique: true},
			{Name: "age", Type: field.Number, Index: true},
			{Name: "bio", Type: field.RichText},
		},
	})
	if err != nil {
		t.Fatalf("testModel: %v", err)
	}
	return m
}
