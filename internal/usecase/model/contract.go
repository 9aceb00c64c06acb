package model

import (
	"context"

	dommodel "github.com/kailas-cloud/dataforge/internal/domain/model"
	"github.com/kailas-cloud/dataforge/internal/events"
)

// Repository stores model definitions and keeps their data indexes in sync.
//
//nolint:interfacebloat // definitions, index lifecycle and cache invalidation travel together
type Repository interface {
	Create(ctx context.Context, m dommodel.Model) (dommodel.Model, error)
	Get(ctx context.Context, owner, name string) (dommodel.Model, error)
	List(ctx context.Context, owner string) ([]dommodel.Model, error)
	Update(ctx context.Context, m dommodel.Model) error
	Delete(ctx context.Context, owner, name string) error
	SyncIndexes(ctx context.Context, m dommodel.Model) error
	DropIndexes(ctx context.Context, owner, name string) error
	Invalidate(owner, name string)
}

// DocumentMigrator applies schema changes to stored documents.
type DocumentMigrator interface {
	DeleteByModel(ctx context.Context, user, model string) (int64, error)
	RenameField(ctx context.Context, user, model, from, to string) error
	UnsetField(ctx context.Context, user, model, name string) error
	RenameModel(ctx context.Context, user, from, to string) error
}

// Publisher delivers model events.
type Publisher interface {
	Publish(ctx context.Context, key events.Key, payload any) error
}
