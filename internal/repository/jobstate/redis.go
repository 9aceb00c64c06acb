package jobstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/dataforge/internal/db"
	"github.com/kailas-cloud/dataforge/internal/domain"
	"github.com/kailas-cloud/dataforge/internal/domain/job"
)

var keyPrefix = domain.KeyPrefix + "job:"

// store is the consumer interface for shared job state (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// Shared keeps JSON job snapshots in the KV store so any instance can serve progress.
type Shared struct {
	store store
	ttl   time.Duration
}

// NewShared creates a KV-backed job table. Snapshots expire after ttl (recommended: 24h).
func NewShared(s store, ttl time.Duration) *Shared {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Shared{store: s, ttl: ttl}
}

func jobKey(id string) string { return keyPrefix + id }

// Save stores a snapshot of j, refreshing its TTL.
func (s *Shared) Save(ctx context.Context, j job.Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := s.store.SetWithTTL(ctx, jobKey(j.ID), data, s.ttl); err != nil {
		return fmt.Errorf("job SET %s: %w", j.ID, err)
	}
	return nil
}

// Get returns the stored snapshot.
func (s *Shared) Get(ctx context.Context, id string) (job.Job, error) {
	data, err := s.store.Get(ctx, jobKey(id))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return job.Job{}, domain.ErrNotFound
		}
		return job.Job{}, fmt.Errorf("job GET %s: %w", id, err)
	}
	var j job.Job
	if err := json.Unmarshal(data, &j); err != nil {
		return job.Job{}, fmt.Errorf("job GET %s parse: %w", id, err)
	}
	if j.Errors == nil {
		j.Errors = []string{}
	}
	return j, nil
}

// Delete forgets the job.
func (s *Shared) Delete(ctx context.Context, id string) error {
	if err := s.store.Del(ctx, jobKey(id)); err != nil {
		return fmt.Errorf("job DEL %s: %w", id, err)
	}
	return nil
}
