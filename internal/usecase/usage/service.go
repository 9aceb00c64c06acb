package usage

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/dataforge/internal/domain"
	domusage "github.com/kailas-cloud/dataforge/internal/domain/usage"
	"github.com/kailas-cloud/dataforge/internal/domain/usage/metrics"
	"github.com/kailas-cloud/dataforge/internal/domain/usage/quota"
)

// Service handles usage reporting and capacity checks.
type Service struct {
	docs     DocumentCounter
	models   ModelLister
	maxDocs  int64
	maxBytes int64
}

// New creates a Service. Zero limits mean unlimited.
func New(docs DocumentCounter, models ModelLister, limits domain.Limits) *Service {
	return &Service{
		docs:     docs,
		models:   models,
		maxDocs:  limits.MaxDocumentsPerUser,
		maxBytes: limits.MaxStorageBytes,
	}
}

// GetReport builds the usage report of user.
func (s *Service) GetReport(ctx context.Context, user string) (domusage.Report, error) {
	count, bytes, err := s.docs.Usage(ctx, user)
	if err != nil {
		return domusage.Report{}, fmt.Errorf("read usage: %w", err)
	}
	models, err := s.models.List(ctx, user)
	if err != nil {
		return domusage.Report{}, fmt.Errorf("list models: %w", err)
	}
	return domusage.NewReport(
		user,
		metrics.New(len(models), count, bytes),
		quota.New(domain.CapacityDocuments, s.maxDocs, count),
		quota.New(domain.CapacityStorage, s.maxBytes, bytes),
	), nil
}

// Check fails with a *domain.CapacityError when adding docs documents
// totalling bytes would exceed a limit. No query is made when nothing is limited.
func (s *Service) Check(ctx context.Context, user string, docs, bytes int64) error {
	if s.maxDocs <= 0 && s.maxBytes <= 0 {
		return nil
	}
	count, used, err := s.docs.Usage(ctx, user)
	if err != nil {
		return fmt.Errorf("read usage: %w", err)
	}
	if q := quota.New(domain.CapacityDocuments, s.maxDocs, count); !q.Allows(docs) {
		return &domain.CapacityError{Kind: q.Kind(), Limit: q.Limit(), Used: q.Used()}
	}
	if q := quota.New(domain.CapacityStorage, s.maxBytes, used); !q.Allows(bytes) {
		return &domain.CapacityError{Kind: q.Kind(), Limit: q.Limit(), Used: q.Used()}
	}
	return nil
}
