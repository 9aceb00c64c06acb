package document

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	domdoc "github.com/kailas-cloud/dataforge/internal/domain/document"
	dommodel "github.com/kailas-cloud/dataforge/internal/domain/model"
	"github.com/kailas-cloud/dataforge/internal/events"
)

// Repository defines the storage contract for documents.
//
//nolint:interfacebloat // writes need lookups by id, hash, selector and composite keys
type Repository interface {
	Insert(ctx context.Context, d domdoc.Document) (string, error)
	Get(ctx context.Context, user, model, id string) (domdoc.Document, error)
	FindByHash(ctx context.Context, user, model, hash string) (string, bool, error)
	Exists(ctx context.Context, user, model string, filter bson.M) (bool, error)
	CountIDs(ctx context.Context, user, model string, ids []string) (int64, error)
	FindIDs(ctx context.Context, user, model string, filter bson.M, limit int64) ([]string, error)
	FindFields(ctx context.Context, user, model string, filter bson.M, fields []string) ([]map[string]any, error)
	Replace(ctx context.Context, d domdoc.Document) error
	Delete(ctx context.Context, user, model, id string) error
	ClearReference(ctx context.Context, user, model, field, id string, multiple bool) (int64, error)
}

// ModelReader reads model definitions.
type ModelReader interface {
	Get(ctx context.Context, owner, name string) (dommodel.Model, error)
	List(ctx context.Context, owner string) ([]dommodel.Model, error)
}

// CapacityChecker enforces per-user storage limits.
type CapacityChecker interface {
	Check(ctx context.Context, user string, docs, bytes int64) error
}

// Publisher fans out document events.
type Publisher interface {
	Publish(ctx context.Context, key events.Key, payload any) error
}
