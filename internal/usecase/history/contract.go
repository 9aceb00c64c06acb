package history

import (
	"context"

	domhist "github.com/kailas-cloud/dataforge/internal/domain/history"
)

// Repository stores document snapshots.
type Repository interface {
	Insert(ctx context.Context, e domhist.Entry) (string, error)
	List(ctx context.Context, user, model, docID string, limit int64) ([]domhist.Entry, error)
	DeleteByModel(ctx context.Context, user, model string) error
}
