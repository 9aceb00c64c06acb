package export

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/kailas-cloud/dataforge/internal/domain"
	domdoc "github.com/kailas-cloud/dataforge/internal/domain/document"
	dommodel "github.com/kailas-cloud/dataforge/internal/domain/model"
	"github.com/kailas-cloud/dataforge/internal/domain/search/request"
)

// DefaultMaxDocuments caps an export when configuration leaves it unset.
const DefaultMaxDocuments = 10000

// Request selects what to export.
type Request struct {
	// Models in export order. Empty means every model of the user by name.
	Models []string
	// Filters by model name.
	Filters map[string]request.Filter
	Depth   int
	// Limit caps the documents across all models. Zero uses the service cap.
	Limit         int
	IncludeModels bool
}

// Result holds exported documents by model and the models that failed.
type Result struct {
	Order  []string
	Data   map[string][]map[string]any
	Models []dommodel.Spec
	Errors map[string]string
}

// Service exports documents model by model under a shared document budget.
type Service struct {
	repo    Repository
	builder PipelineBuilder
	models  ModelReader
	maxDocs int
	maxTime time.Duration
	logger  *zap.Logger
}

// New creates an export service. maxDocs <= 0 uses DefaultMaxDocuments.
func New(repo Repository, builder PipelineBuilder, models ModelReader, maxDocs int, logger *zap.Logger) *Service {
	if maxDocs <= 0 {
		maxDocs = DefaultMaxDocuments
	}
	return &Service{
		repo:    repo,
		builder: builder,
		models:  models,
		maxDocs: maxDocs,
		maxTime: domain.DefaultLimits().SearchTimeoutFloor,
		logger:  logger,
	}
}

// WithMaxTime sets the server-side time budget of each model's query.
func (s *Service) WithMaxTime(d time.Duration) *Service {
	if d > 0 {
		s.maxTime = d
	}
	return s
}

// Export fetches each requested model in order. Later models get what is left of
// the budget. A failing model is reported in Errors and the others still export.
func (s *Service) Export(ctx context.Context, user domain.User, req Request) (Result, error) {
	if !user.Can(domain.ActionExport) {
		return Result{}, fmt.Errorf("export: %w", domain.ErrPermissionDenied)
	}
	names := req.Models
	if len(names) == 0 {
		all, err := s.models.List(ctx, user.ID)
		if err != nil {
			return Result{}, fmt.Errorf("list models: %w", err)
		}
		for _, m := range all {
			names = append(names, m.Name())
		}
	}

	remaining := s.maxDocs
	if req.Limit > 0 && req.Limit < remaining {
		remaining = req.Limit
	}

	res := Result{
		Data:   make(map[string][]map[string]any, len(names)),
		Errors: map[string]string{},
	}
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		res.Order = append(res.Order, name)

		if req.IncludeModels {
			m, err := s.models.Get(ctx, user.ID, name)
			if err != nil {
				res.Errors[name] = err.Error()
				continue
			}
			res.Models = append(res.Models, m.Spec())
		}
		if remaining <= 0 {
			res.Data[name] = []map[string]any{}
			continue
		}
		docs, err := s.model(ctx, user.ID, name, req.Filters[name], req.Depth, remaining)
		if err != nil {
			s.logger.Warn("export model failed", zap.String("model", name), zap.Error(err))
			res.Errors[name] = err.Error()
			continue
		}
		res.Data[name] = docs
		remaining -= len(docs)
	}
	return res, nil
}

func (s *Service) model(
	ctx context.Context, user, name string, f request.Filter, depth, limit int,
) ([]map[string]any, error) {
	req, err := request.New(request.Params{Model: name, Filter: f, Depth: depth})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	pipeline, err := s.builder.Build(ctx, user, req)
	if err != nil {
		return nil, err
	}
	pipeline = append(pipeline,
		bson.M{"$limit": limit},
		bson.M{"$project": bson.M{
			domdoc.KeyUser: 0, domdoc.KeyModel: 0, domdoc.KeyHash: 0, domdoc.KeyPack: 0,
		}},
	)
	docs, err := s.repo.Aggregate(ctx, pipeline, s.maxTime)
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", name, err)
	}
	if docs == nil {
		docs = []map[string]any{}
	}
	return docs, nil
}
