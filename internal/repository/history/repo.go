package history

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/kailas-cloud/dataforge/internal/db"
	domhist "github.com/kailas-cloud/dataforge/internal/domain/history"
	docrepo "github.com/kailas-cloud/dataforge/internal/repository/document"
)

// store is the consumer interface for history snapshots (ISP).
type store interface {
	InsertOne(ctx context.Context, coll string, doc bson.M) (string, error)
	Find(ctx context.Context, coll string, filter bson.M, opts db.FindOptions) ([]bson.M, error)
	DeleteMany(ctx context.Context, coll string, filter bson.M) (int64, error)
}

// Repo stores document snapshots in the histories collection.
type Repo struct {
	store store
}

// New creates a history repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// Insert stores a snapshot.
func (r *Repo) Insert(ctx context.Context, e domhist.Entry) (string, error) {
	id, err := r.store.InsertOne(ctx, db.CollectionHistories, bson.M{
		"docId":  e.DocID,
		"model":  e.Model,
		"_user":  e.User,
		"action": string(e.Action),
		"data":   e.Data,
		"at":     e.At,
	})
	if err != nil {
		return "", fmt.Errorf("insert history %s/%s: %w", e.Model, e.DocID, err)
	}
	return id, nil
}

// List returns the newest snapshots of a document first, at most limit (0 = all).
func (r *Repo) List(ctx context.Context, user, model, docID string, limit int64) ([]domhist.Entry, error) {
	raws, err := r.store.Find(ctx, db.CollectionHistories,
		bson.M{"_user": user, "model": model, "docId": docID},
		db.FindOptions{Sort: bson.D{{Key: "at", Value: -1}}, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("list history %s/%s: %w", model, docID, err)
	}
	out := make([]domhist.Entry, 0, len(raws))
	for _, raw := range raws {
		data, _ := raw["data"].(bson.M)
		at, _ := raw["at"].(int64)
		action, _ := raw["action"].(string)
		out = append(out, domhist.Entry{
			ID:     docrepo.IDString(raw["_id"]),
			DocID:  docID,
			Model:  model,
			User:   user,
			Action: domhist.Action(action),
			Data:   data,
			At:     at,
		})
	}
	return out, nil
}

// DeleteByModel removes every snapshot of a user's model.
func (r *Repo) DeleteByModel(ctx context.Context, user, model string) error {
	if _, err := r.store.DeleteMany(ctx, db.CollectionHistories, bson.M{"_user": user, "model": model}); err != nil {
		return fmt.Errorf("delete history of %s: %w", model, err)
	}
	return nil
}
