package usage

import (
	"context"

	dommodel "github.com/kailas-cloud/dataforge/internal/domain/model"
)

// DocumentCounter reports a user's stored document footprint.
type DocumentCounter interface {
	Usage(ctx context.Context, user string) (count, bytes int64, err error)
}

// ModelLister lists a user's models.
type ModelLister interface {
	List(ctx context.Context, owner string) ([]dommodel.Model, error)
}
