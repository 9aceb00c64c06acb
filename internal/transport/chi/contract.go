package chi

import (
	"context"
	"time"

	"github.com/kailas-cloud/dataforge/internal/domain"
	"github.com/kailas-cloud/dataforge/internal/domain/batch"
	domdoc "github.com/kailas-cloud/dataforge/internal/domain/document"
	"github.com/kailas-cloud/dataforge/internal/domain/document/patch"
	domhist "github.com/kailas-cloud/dataforge/internal/domain/history"
	"github.com/kailas-cloud/dataforge/internal/domain/job"
	dommodel "github.com/kailas-cloud/dataforge/internal/domain/model"
	"github.com/kailas-cloud/dataforge/internal/domain/search/request"
	"github.com/kailas-cloud/dataforge/internal/domain/search/result"
	domusage "github.com/kailas-cloud/dataforge/internal/domain/usage"
	"github.com/kailas-cloud/dataforge/internal/importsrc"
	documentuc "github.com/kailas-cloud/dataforge/internal/usecase/document"
	exportuc "github.com/kailas-cloud/dataforge/internal/usecase/export"
	healthuc "github.com/kailas-cloud/dataforge/internal/usecase/health"
)

// ModelService manages model definitions.
type ModelService interface {
	Create(ctx context.Context, user domain.User, spec dommodel.Spec) (dommodel.Model, error)
	Get(ctx context.Context, user domain.User, name string) (dommodel.Model, error)
	List(ctx context.Context, user domain.User) ([]dommodel.Model, error)
	Update(ctx context.Context, user domain.User, name string, spec dommodel.Spec, renames map[string]string) (dommodel.Model, error)
	Delete(ctx context.Context, user domain.User, name string) error
}

// DocumentService reads and writes documents.
type DocumentService interface {
	Get(ctx context.Context, user domain.User, model, id string) (domdoc.Document, error)
	Insert(ctx context.Context, user domain.User, model string, data map[string]any, opts documentuc.WriteOptions) (domdoc.Document, error)
	InsertMany(ctx context.Context, user domain.User, model string, rows []map[string]any, opts documentuc.WriteOptions) ([]batch.Result, error)
	Update(ctx context.Context, user domain.User, model, id string, data map[string]any) (domdoc.Document, error)
	Patch(ctx context.Context, user domain.User, model, id string, p patch.Patch) (domdoc.Document, error)
	Delete(ctx context.Context, user domain.User, model, id string) error
}

// SearchService runs document searches.
type SearchService interface {
	Search(ctx context.Context, user domain.User, req request.Request) (result.Result, error)
}

// ImportService runs background imports and reports their progress.
type ImportService interface {
	Start(ctx context.Context, user domain.User, ds importsrc.Dataset) (job.Job, error)
	Snapshot(ctx context.Context, user domain.User, id string) (job.Job, error)
	Watch(ctx context.Context, user domain.User, id string) <-chan job.Job
}

// ExportService exports documents across models.
type ExportService interface {
	Export(ctx context.Context, user domain.User, req exportuc.Request) (exportuc.Result, error)
}

// HistoryService lists document snapshots.
type HistoryService interface {
	List(ctx context.Context, user domain.User, model, docID string, limit int64) ([]domhist.Entry, error)
}

// UsageService reports a user's footprint.
type UsageService interface {
	GetReport(ctx context.Context, user string) (domusage.Report, error)
}

// HealthChecker reports dependency health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// RateLimiter counts requests per user.
type RateLimiter interface {
	Allow(ctx context.Context, user string) (time.Duration, error)
	Limit() int64
}
