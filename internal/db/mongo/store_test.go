package mongo

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/kailas-cloud/dataforge/internal/db"
)

const testDB = "dataforge"

func newMock(t *testing.T) *mtest.T {
	t.Helper()
	return mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
}

func TestInsertOne(t *testing.T) {
	mt := newMock(t)

	mt.Run("returns hex id", func(mt *mtest.T) {
		s := NewStoreForTest(mt.Client, testDB)
		oid := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		id, err := s.InsertOne(context.Background(), db.CollectionData, bson.M{"_id": oid, "name": "Ann"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id != oid.Hex() {
			t.Errorf("id = %q, want %q", id, oid.Hex())
		}
	})

	mt.Run("duplicate key", func(mt *mtest.T) {
		s := NewStoreForTest(mt.Client, testDB)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index: 0, Code: 11000, Message: "E11000 duplicate key error",
		}))

		_, err := s.InsertOne(context.Background(), db.CollectionData, bson.M{"name": "Ann"})
		if !errors.Is(err, db.ErrDuplicateKey) {
			t.Errorf("expected ErrDuplicateKey, got %v", err)
		}
		var dbErr *db.Error
		if !errors.As(err, &dbErr) || dbErr.Op != db.OpInsert {
			t.Errorf("expected db.Error with op insert, got %v", err)
		}
	})
}

func TestInsertMany(t *testing.T) {
	mt := newMock(t)

	mt.Run("keeps order", func(mt *mtest.T) {
		s := NewStoreForTest(mt.Client, testDB)
		a, b := primitive.NewObjectID(), primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		ids, err := s.InsertMany(context.Background(), db.CollectionData, []bson.M{{"_id": a}, {"_id": b}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(ids) != 2 || ids[0] != a.Hex() || ids[1] != b.Hex() {
			t.Errorf("ids = %v", ids)
		}
	})

	mt.Run("empty is a no-op", func(mt *mtest.T) {
		s := NewStoreForTest(mt.Client, testDB)
		ids, err := s.InsertMany(context.Background(), db.CollectionData, nil)
		if err != nil || ids != nil {
			t.Errorf("InsertMany(nil) = %v, %v", ids, err)
		}
	})
}

func TestFindOne(t *testing.T) {
	mt := newMock(t)

	mt.Run("found", func(mt *mtest.T) {
		s := NewStoreForTest(mt.Client, testDB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, testDB+".models", mtest.FirstBatch,
			bson.D{{Key: "name", Value: "Person"}}))

		got, err := s.FindOne(context.Background(), db.CollectionModels, bson.M{"name": "Person"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got["name"] != "Person" {
			t.Errorf("FindOne() = %v", got)
		}
	})

	mt.Run("not found", func(mt *mtest.T) {
		s := NewStoreForTest(mt.Client, testDB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, testDB+".models", mtest.FirstBatch))

		_, err := s.FindOne(context.Background(), db.CollectionModels, bson.M{"name": "Nope"})
		if !errors.Is(err, db.ErrNoDocuments) {
			t.Errorf("expected ErrNoDocuments, got %v", err)
		}
	})
}

func TestFind(t *testing.T) {
	mt := newMock(t)

	mt.Run("all batches", func(mt *mtest.T) {
		s := NewStoreForTest(mt.Client, testDB)
		ns := testDB + ".datas"
		mt.AddMockResponses(
			mtest.CreateCursorResponse(1, ns, mtest.FirstBatch, bson.D{{Key: "n", Value: 1}}),
			mtest.CreateCursorResponse(0, ns, mtest.NextBatch, bson.D{{Key: "n", Value: 2}}),
		)

		got, err := s.Find(context.Background(), db.CollectionData, bson.M{}, db.FindOptions{
			Sort: bson.D{{Key: "n", Value: 1}}, Limit: 10,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 2 {
			t.Errorf("len = %d, want 2", len(got))
		}
	})
}

func TestAggregate(t *testing.T) {
	mt := newMock(t)

	mt.Run("results", func(mt *mtest.T) {
		s := NewStoreForTest(mt.Client, testDB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, testDB+".datas", mtest.FirstBatch,
			bson.D{{Key: "count", Value: 3}}))

		got, err := s.Aggregate(context.Background(), db.CollectionData,
			[]bson.M{{"$match": bson.M{"_model": "Person"}}}, time.Second)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 1 {
			t.Errorf("len = %d, want 1", len(got))
		}
	})

	mt.Run("max time exceeded maps to timeout", func(mt *mtest.T) {
		s := NewStoreForTest(mt.Client, testDB)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code: 50, Name: "MaxTimeMSExpired", Message: "operation exceeded time limit",
		}))

		_, err := s.Aggregate(context.Background(), db.CollectionData, []bson.M{{"$match": bson.M{}}}, time.Millisecond)
		if !errors.Is(err, db.ErrTimeout) {
			t.Errorf("expected ErrTimeout, got %v", err)
		}
	})
}

func TestUpdateAndDelete(t *testing.T) {
	mt := newMock(t)

	mt.Run("update one", func(mt *mtest.T) {
		s := NewStoreForTest(mt.Client, testDB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))

		n, err := s.UpdateOne(context.Background(), db.CollectionData,
			bson.M{"_id": primitive.NewObjectID()}, bson.M{"$set": bson.M{"a": 1}})
		if err != nil || n != 1 {
			t.Errorf("UpdateOne() = %d, %v", n, err)
		}
	})

	mt.Run("update many", func(mt *mtest.T) {
		s := NewStoreForTest(mt.Client, testDB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 4}, bson.E{Key: "nModified", Value: 3}))

		n, err := s.UpdateMany(context.Background(), db.CollectionData,
			bson.M{"_model": "A"}, bson.M{"$set": bson.M{"_model": "B"}})
		if err != nil || n != 3 {
			t.Errorf("UpdateMany() = %d, %v", n, err)
		}
	})

	mt.Run("replace one", func(mt *mtest.T) {
		s := NewStoreForTest(mt.Client, testDB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}))

		n, err := s.ReplaceOne(context.Background(), db.CollectionData,
			bson.M{"_id": primitive.NewObjectID()}, bson.M{"name": "Bob"})
		if err != nil || n != 0 {
			t.Errorf("ReplaceOne() = %d, %v", n, err)
		}
	})

	mt.Run("delete many", func(mt *mtest.T) {
		s := NewStoreForTest(mt.Client, testDB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 2}))

		n, err := s.DeleteMany(context.Background(), db.CollectionData, bson.M{"_model": "A"})
		if err != nil || n != 2 {
			t.Errorf("DeleteMany() = %d, %v", n, err)
		}
	})
}

func TestCount(t *testing.T) {
	mt := newMock(t)

	mt.Run("count", func(mt *mtest.T) {
		s := NewStoreForTest(mt.Client, testDB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, testDB+".datas", mtest.FirstBatch,
			bson.D{{Key: "n", Value: int64(5)}}))

		n, err := s.Count(context.Background(), db.CollectionData, bson.M{"_user": "u1"})
		if err != nil || n != 5 {
			t.Errorf("Count() = %d, %v", n, err)
		}
	})
}

func TestIndexes(t *testing.T) {
	mt := newMock(t)

	mt.Run("create", func(mt *mtest.T) {
		s := NewStoreForTest(mt.Client, testDB)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		def := db.NewIndex("person_name").Asc("_user").Asc("name").Unique().MustBuild()
		if err := s.CreateIndex(context.Background(), db.CollectionData, def); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	mt.Run("create conflict", func(mt *mtest.T) {
		s := NewStoreForTest(mt.Client, testDB)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code: 85, Name: "IndexOptionsConflict", Message: "index exists with different options",
		}))

		def := db.NewIndex("person_name").Asc("name").MustBuild()
		err := s.CreateIndex(context.Background(), db.CollectionData, def)
		if !errors.Is(err, db.ErrIndexExists) {
			t.Errorf("expected ErrIndexExists, got %v", err)
		}
	})

	mt.Run("drop missing", func(mt *mtest.T) {
		s := NewStoreForTest(mt.Client, testDB)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code: 27, Name: "IndexNotFound", Message: "index not found",
		}))

		err := s.DropIndex(context.Background(), db.CollectionData, "nope")
		if !errors.Is(err, db.ErrIndexNotFound) {
			t.Errorf("expected ErrIndexNotFound, got %v", err)
		}
	})

	mt.Run("list", func(mt *mtest.T) {
		s := NewStoreForTest(mt.Client, testDB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, testDB+".datas", mtest.FirstBatch,
			bson.D{{Key: "v", Value: 2}, {Key: "key", Value: bson.D{{Key: "_id", Value: 1}}}, {Key: "name", Value: "_id_"}},
			bson.D{{Key: "v", Value: 2}, {Key: "key", Value: bson.D{{Key: "name", Value: 1}}}, {Key: "name", Value: "person_name"}},
		))

		names, err := s.ListIndexes(context.Background(), db.CollectionData)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(names) != 2 || names[1] != "person_name" {
			t.Errorf("names = %v", names)
		}
	})
}

func TestIndexModel(t *testing.T) {
	def := db.NewIndex("geo").Geo("location").Desc("createdAt").Sparse().MustBuild()
	m := indexModel(def)
	keys, ok := m.Keys.(bson.D)
	if !ok || len(keys) != 2 {
		t.Fatalf("keys = %#v", m.Keys)
	}
	if keys[0].Value != "2dsphere" || keys[1].Value != -1 {
		t.Errorf("keys = %v", keys)
	}
	if m.Options.Name == nil || *m.Options.Name != "geo" {
		t.Error("name not set")
	}
	if m.Options.Sparse == nil || !*m.Options.Sparse {
		t.Error("sparse not set")
	}
}
