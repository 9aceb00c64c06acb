package file

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/kailas-cloud/dataforge/internal/db"
)

// File is an uploaded file record. Key locates the object in object storage.
type File struct {
	GUID     string
	Key      string
	Name     string
	MimeType string
	Size     int64
}

// store is the consumer interface for file records (ISP).
type store interface {
	Find(ctx context.Context, coll string, filter bson.M, opts db.FindOptions) ([]bson.M, error)
	DeleteMany(ctx context.Context, coll string, filter bson.M) (int64, error)
}

// Repo reads and removes records in the files collection.
type Repo struct {
	store store
}

// New creates a file repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

func guidFilter(user string, guids []string) bson.M {
	return bson.M{"_user": user, "guid": bson.M{"$in": guids}}
}

// ByGUIDs returns the user's files among guids.
func (r *Repo) ByGUIDs(ctx context.Context, user string, guids []string) ([]File, error) {
	if len(guids) == 0 {
		return nil, nil
	}
	raws, err := r.store.Find(ctx, db.CollectionFiles, guidFilter(user, guids), db.FindOptions{})
	if err != nil {
		return nil, fmt.Errorf("find files: %w", err)
	}
	out := make([]File, 0, len(raws))
	for _, raw := range raws {
		f := File{}
		f.GUID, _ = raw["guid"].(string)
		f.Key, _ = raw["key"].(string)
		f.Name, _ = raw["name"].(string)
		f.MimeType, _ = raw["mimeType"].(string)
		switch n := raw["size"].(type) {
		case int64:
			f.Size = n
		case int32:
			f.Size = int64(n)
		}
		out = append(out, f)
	}
	return out, nil
}

// DeleteByGUIDs removes the user's file records among guids.
func (r *Repo) DeleteByGUIDs(ctx context.Context, user string, guids []string) (int64, error) {
	if len(guids) == 0 {
		return 0, nil
	}
	n, err := r.store.DeleteMany(ctx, db.CollectionFiles, guidFilter(user, guids))
	if err != nil {
		return 0, fmt.Errorf("delete files: %w", err)
	}
	return n, nil
}
