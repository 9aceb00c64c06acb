package jobstate

import (
	"context"
	"sync"

	"github.com/kailas-cloud/dataforge/internal/domain"
	"github.com/kailas-cloud/dataforge/internal/domain/job"
)

// Memory keeps jobs in process memory. A restart loses them.
type Memory struct {
	mu   sync.RWMutex
	jobs map[string]job.Job
}

// NewMemory creates an empty in-memory job table.
func NewMemory() *Memory {
	return &Memory{jobs: make(map[string]job.Job)}
}

// Save stores a snapshot of j.
func (m *Memory) Save(_ context.Context, j job.Job) error {
	m.mu.Lock()
	m.jobs[j.ID] = j.Clone()
	m.mu.Unlock()
	return nil
}

// Get returns a snapshot of the job.
func (m *Memory) Get(_ context.Context, id string) (job.Job, error) {
	m.mu.RLock()
	j, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return job.Job{}, domain.ErrNotFound
	}
	return j.Clone(), nil
}

// Delete forgets the job.
func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.jobs, id)
	m.mu.Unlock()
	return nil
}
