package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/kailas-cloud/dataforge/internal/domain"
	"github.com/kailas-cloud/dataforge/internal/domain/search/request"
	"github.com/kailas-cloud/dataforge/internal/domain/search/result"
)

// DefaultTimeoutFloor is the minimum server-side execution budget of a search.
const DefaultTimeoutFloor = 5 * time.Second

// Service runs model searches.
type Service struct {
	repo     Repository
	builder  PipelineBuilder
	floor    time.Duration
	duration *prometheus.HistogramVec
	logger   *zap.Logger
}

// New creates a search service. floor <= 0 selects DefaultTimeoutFloor.
func New(repo Repository, builder PipelineBuilder, floor time.Duration, logger *zap.Logger) *Service {
	if floor <= 0 {
		floor = DefaultTimeoutFloor
	}
	return &Service{repo: repo, builder: builder, floor: floor, logger: logger}
}

// WithMetrics enables the search duration histogram.
func (s *Service) WithMetrics(duration *prometheus.HistogramVec) *Service {
	s.duration = duration
	return s
}

// MaxTime is the server-side budget for a request: half the caller's hint,
// never below the floor.
func (s *Service) MaxTime(req request.Request) time.Duration {
	return max(req.TimeoutHint()/2, s.floor)
}

// Search returns one page of the model's documents plus the total match count.
func (s *Service) Search(ctx context.Context, user domain.User, req request.Request) (result.Result, error) {
	if !user.Can(domain.ActionDataRead) {
		return result.Result{}, fmt.Errorf("search %s: %w", req.Model(), domain.ErrPermissionDenied)
	}
	pipeline, err := s.builder.Build(ctx, user.ID, req)
	if err != nil {
		return result.Result{}, fmt.Errorf("build pipeline: %w", err)
	}
	pipeline = append(pipeline, bson.M{"$facet": bson.M{
		"data":  bson.A{bson.M{"$skip": req.Skip()}, bson.M{"$limit": req.Limit()}},
		"count": bson.A{bson.M{"$count": "count"}},
	}})

	maxTime := s.MaxTime(req)
	start := time.Now()
	rows, err := s.repo.Aggregate(ctx, pipeline, maxTime)
	s.observe(start, err)
	if err != nil {
		if errors.Is(err, domain.ErrTimeout) {
			s.logger.Warn("search timed out",
				zap.String("model", req.Model()),
				zap.Duration("max_time", maxTime),
			)
		}
		return result.Result{}, fmt.Errorf("search %s: %w", req.Model(), err)
	}
	if len(rows) == 0 {
		return result.New(nil, 0), nil
	}
	return result.New(documents(rows[0]["data"]), facetCount(rows[0]["count"])), nil
}

func (s *Service) observe(start time.Time, err error) {
	if s.duration == nil {
		return
	}
	status := "ok"
	switch {
	case errors.Is(err, domain.ErrTimeout):
		status = "timeout"
	case err != nil:
		status = "error"
	}
	s.duration.WithLabelValues(status).Observe(time.Since(start).Seconds())
}

func documents(v any) []map[string]any {
	items, _ := v.([]any)
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// facetCount reads [{count: n}]. An empty match set yields no count row.
func facetCount(v any) int64 {
	items, _ := v.([]any)
	if len(items) == 0 {
		return 0
	}
	m, _ := items[0].(map[string]any)
	switch n := m["count"].(type) {
	case int32:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}
