package pipeline

import (
	"context"

	dommodel "github.com/kailas-cloud/dataforge/internal/domain/model"
)

// ModelReader resolves model definitions of one owner.
type ModelReader interface {
	Get(ctx context.Context, owner, name string) (dommodel.Model, error)
}
