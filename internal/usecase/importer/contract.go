package importer

import (
	"context"

	"github.com/kailas-cloud/dataforge/internal/domain"
	"github.com/kailas-cloud/dataforge/internal/domain/batch"
	"github.com/kailas-cloud/dataforge/internal/domain/job"
	dommodel "github.com/kailas-cloud/dataforge/internal/domain/model"
	"github.com/kailas-cloud/dataforge/internal/usecase/document"
)

// DocumentWriter inserts record batches with per-record results.
type DocumentWriter interface {
	InsertMany(
		ctx context.Context, user domain.User, model string, rows []map[string]any, opts document.WriteOptions,
	) ([]batch.Result, error)
}

// ModelInstaller creates the model definitions shipped with a bundle.
type ModelInstaller interface {
	Get(ctx context.Context, user domain.User, name string) (dommodel.Model, error)
	Create(ctx context.Context, user domain.User, spec dommodel.Spec) (dommodel.Model, error)
}

// JobStore keeps job snapshots.
type JobStore interface {
	Save(ctx context.Context, j job.Job) error
	Get(ctx context.Context, id string) (job.Job, error)
	Delete(ctx context.Context, id string) error
}
