package search

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/kailas-cloud/dataforge/internal/domain/search/request"
)

// Repository runs aggregation pipelines on the data collection.
type Repository interface {
	Aggregate(ctx context.Context, pipeline []bson.M, maxTime time.Duration) ([]map[string]any, error)
}

// PipelineBuilder turns a search request into an aggregation pipeline.
type PipelineBuilder interface {
	Build(ctx context.Context, user string, req request.Request) ([]bson.M, error)
}
