package export

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	dommodel "github.com/kailas-cloud/dataforge/internal/domain/model"
	"github.com/kailas-cloud/dataforge/internal/domain/search/request"
)

// Repository runs aggregation pipelines on the data collection.
type Repository interface {
	Aggregate(ctx context.Context, pipeline []bson.M, maxTime time.Duration) ([]map[string]any, error)
}

// PipelineBuilder turns a request into an unpaged pipeline.
type PipelineBuilder interface {
	Build(ctx context.Context, user string, req request.Request) ([]bson.M, error)
}

// ModelReader resolves model definitions of one owner.
type ModelReader interface {
	Get(ctx context.Context, owner, name string) (dommodel.Model, error)
	List(ctx context.Context, owner string) ([]dommodel.Model, error)
}
