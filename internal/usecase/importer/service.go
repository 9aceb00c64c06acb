package importer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/dataforge/internal/domain"
	"github.com/kailas-cloud/dataforge/internal/domain/batch"
	"github.com/kailas-cloud/dataforge/internal/domain/job"
	dommodel "github.com/kailas-cloud/dataforge/internal/domain/model"
	"github.com/kailas-cloud/dataforge/internal/importsrc"
	"github.com/kailas-cloud/dataforge/internal/logger"
	"github.com/kailas-cloud/dataforge/internal/usecase/document"
)

// Import pacing defaults.
const (
	DefaultChunkSize    = 100
	DefaultChunkDelay   = time.Second
	DefaultPollInterval = time.Second
)

// Service runs imports in the background, one chunk at a time.
type Service struct {
	docs   DocumentWriter
	models ModelInstaller
	jobs   JobStore
	logger *zap.Logger
	hub    *hub
	wg     sync.WaitGroup

	chunkSize int
	delay     time.Duration
	poll      time.Duration
	chunks    *prometheus.CounterVec
	sleep     func(ctx context.Context, d time.Duration) error
}

// New creates an import service.
func New(docs DocumentWriter, models ModelInstaller, jobs JobStore, logger *zap.Logger) *Service {
	return &Service{
		docs:      docs,
		models:    models,
		jobs:      jobs,
		logger:    logger,
		hub:       newHub(),
		chunkSize: DefaultChunkSize,
		delay:     DefaultChunkDelay,
		poll:      DefaultPollInterval,
		sleep:     sleep,
	}
}

// WithChunking sets the chunk size and the pause between chunks.
func (s *Service) WithChunking(size int, delay time.Duration) *Service {
	if size > 0 {
		s.chunkSize = size
	}
	if delay >= 0 {
		s.delay = delay
	}
	return s
}

// WithMetrics enables the chunk counter.
func (s *Service) WithMetrics(chunks *prometheus.CounterVec) *Service {
	s.chunks = chunks
	return s
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Start registers a pending job and processes ds in the background.
// The returned snapshot is the pending job.
func (s *Service) Start(ctx context.Context, user domain.User, ds importsrc.Dataset) (job.Job, error) {
	if !user.Can(domain.ActionImport) {
		return job.Job{}, fmt.Errorf("import: %w", domain.ErrPermissionDenied)
	}
	if ds.Total() == 0 && len(ds.Models) == 0 {
		return job.Job{}, domain.Validationf("import contains no records")
	}

	j := job.New(uuid.NewString(), user.ID)
	if err := s.jobs.Save(ctx, j); err != nil {
		return job.Job{}, fmt.Errorf("save job: %w", err)
	}
	pending := j.Clone()

	bg := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(bg, user, j, ds)
	}()
	return pending, nil
}

// Wait blocks until every started import has finished.
func (s *Service) Wait() { s.wg.Wait() }

func (s *Service) save(ctx context.Context, j job.Job) {
	if err := s.jobs.Save(ctx, j); err != nil {
		logger.FromContext(ctx).Error("save import job", zap.String("job", j.ID), zap.Error(err))
	}
	s.hub.notify(j.ID)
}

func (s *Service) run(ctx context.Context, user domain.User, j job.Job, ds importsrc.Dataset) {
	log := logger.FromContext(ctx).With(zap.String("job", j.ID))
	j.Status = job.StatusProcessing
	j.TotalRecords = ds.Total()
	s.save(ctx, j)

	for i, raw := range ds.Models {
		if err := s.install(ctx, user, raw); err != nil {
			j.Errors = append(j.Errors, fmt.Sprintf("models[%d]: %v", i, err))
		}
	}

	first := true
	for _, model := range ds.Order {
		rows := ds.Records[model]
		for start, idx := 0, 0; start < len(rows); start, idx = start+s.chunkSize, idx+1 {
			if !first {
				if err := s.sleep(ctx, s.delay); err != nil {
					j.Errors = append(j.Errors, fmt.Sprintf("import interrupted: %v", err))
					s.finish(ctx, log, j)
					return
				}
			}
			first = false
			end := min(start+s.chunkSize, len(rows))
			ok, err := s.chunk(ctx, user, model, rows[start:end])
			j.ProcessedRecords += ok
			if err != nil {
				j.Errors = append(j.Errors, job.ChunkError(model, idx, start, end-1, err))
				s.count("failed")
				log.Warn("import chunk failed", zap.String("model", model), zap.Int("chunk", idx), zap.Error(err))
			} else {
				s.count("ok")
			}
			s.save(ctx, j)
		}
	}
	s.finish(ctx, log, j)
}

func (s *Service) finish(ctx context.Context, log *zap.Logger, j job.Job) {
	j.Status = job.StatusCompleted
	if len(j.Errors) > 0 {
		j.Status = job.StatusFailed
	}
	s.save(ctx, j)
	log.Info("import finished",
		zap.String("status", string(j.Status)),
		zap.Int("processed", j.ProcessedRecords),
		zap.Int("total", j.TotalRecords),
		zap.Int("errors", len(j.Errors)),
	)
}

// chunk inserts rows and returns how many were stored. Failed records of the
// chunk are summarized in one error.
func (s *Service) chunk(ctx context.Context, user domain.User, model string, rows []map[string]any) (int, error) {
	results, err := s.docs.InsertMany(ctx, user, model, rows, document.WriteOptions{
		Mode:    document.ModeLink,
		Lenient: true,
	})
	if err != nil {
		return 0, err
	}
	failed := batch.Failed(results)
	if len(failed) == 0 {
		return len(rows), nil
	}
	return len(rows) - len(failed), fmt.Errorf("%d of %d records failed, first at record %d: %w",
		len(failed), len(rows), failed[0].Index(), failed[0].Err())
}

func (s *Service) install(ctx context.Context, user domain.User, raw map[string]any) error {
	spec, err := dommodel.SpecFromMap(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	if _, err := s.models.Get(ctx, user, spec.Name); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrModelNotFound) {
		return err
	}
	_, err = s.models.Create(ctx, user, spec)
	return err
}

func (s *Service) count(status string) {
	if s.chunks != nil {
		s.chunks.WithLabelValues(status).Inc()
	}
}

// Snapshot returns the job as seen by its owner. Unknown ids yield a
// not_found snapshot. A terminal snapshot is handed out once: the job is
// forgotten afterwards.
func (s *Service) Snapshot(ctx context.Context, user domain.User, id string) (job.Job, error) {
	j, err := s.jobs.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return job.NotFound(id), nil
		}
		return job.Job{}, fmt.Errorf("get job: %w", err)
	}
	if j.UserID != user.ID {
		return job.NotFound(id), nil
	}
	if j.Status.IsTerminal() {
		if err := s.jobs.Delete(ctx, id); err != nil {
			return job.Job{}, fmt.Errorf("delete job: %w", err)
		}
	}
	return j, nil
}

// Watch streams snapshots of a job until it reaches a terminal status or ctx ends.
// Changes are picked up on local progress and by polling, so jobs run by
// another instance sharing the job store are followed too.
func (s *Service) Watch(ctx context.Context, user domain.User, id string) <-chan job.Job {
	out := make(chan job.Job)
	wake, cancel := s.hub.subscribe(id)
	go func() {
		defer close(out)
		defer cancel()
		ticker := time.NewTicker(s.poll)
		defer ticker.Stop()

		var last *job.Job
		for {
			j, err := s.Snapshot(ctx, user, id)
			if err != nil {
				logger.FromContext(ctx).Warn("watch import job", zap.String("job", id), zap.Error(err))
			} else if last == nil || changed(*last, j) {
				select {
				case out <- j:
				case <-ctx.Done():
					return
				}
				last = &j
				if j.Status.IsTerminal() {
					return
				}
			}
			select {
			case <-ctx.Done():
				return
			case <-wake:
			case <-ticker.C:
			}
		}
	}()
	return out
}

func changed(a, b job.Job) bool {
	return a.Status != b.Status || a.ProcessedRecords != b.ProcessedRecords ||
		a.TotalRecords != b.TotalRecords || len(a.Errors) != len(b.Errors)
}
