package dataforge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/dataforge/internal/domain"
	dommodel "github.com/kailas-cloud/dataforge/internal/domain/model"
)

// ModelService manages model definitions.
type ModelService struct {
	svc  modelUseCase
	user domain.User
	obs  *observer
}

// Create stores a new model and builds its indexes.
func (s *ModelService) Create(ctx context.Context, spec ModelSpec) (_ ModelInfo, err error) {
	start := time.Now()
	defer func() { s.obs.observe("model.create", spec.Name, start, err) }()

	m, err := s.svc.Create(ctx, s.user, spec)
	if err != nil {
		return ModelInfo{}, fmt.Errorf("create model: %w", err)
	}
	return fromInternalModel(m), nil
}

// Ensure creates a model if it does not exist.
// If it already exists, returns the stored definition unchanged.
func (s *ModelService) Ensure(ctx context.Context, spec ModelSpec) (_ ModelInfo, err error) {
	start := time.Now()
	defer func() { s.obs.observe("model.ensure", spec.Name, start, err) }()

	m, err := s.svc.Create(ctx, s.user, spec)
	if err == nil {
		return fromInternalModel(m), nil
	}
	if !errors.Is(err, domain.ErrAlreadyExists) {
		return ModelInfo{}, fmt.Errorf("ensure model: %w", err)
	}

	existing, err := s.svc.Get(ctx, s.user, spec.Name)
	if err != nil {
		return ModelInfo{}, fmt.Errorf("ensure model: %w", err)
	}
	return fromInternalModel(existing), nil
}

// Get retrieves a model definition by name.
func (s *ModelService) Get(ctx context.Context, name string) (_ ModelInfo, err error) {
	start := time.Now()
	defer func() { s.obs.observe("model.get", name, start, err) }()

	m, err := s.svc.Get(ctx, s.user, name)
	if err != nil {
		return ModelInfo{}, fmt.Errorf("get model: %w", err)
	}
	return fromInternalModel(m), nil
}

// List returns every model of the user sorted by name.
func (s *ModelService) List(ctx context.Context) (_ []ModelInfo, err error) {
	start := time.Now()
	defer func() { s.obs.observe("model.list", "", start, err) }()

	ms, err := s.svc.List(ctx, s.user)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	out := make([]ModelInfo, len(ms))
	for i, m := range ms {
		out[i] = fromInternalModel(m)
	}
	return out, nil
}

// Update replaces a model definition. renames maps old field names to new ones
// so stored documents keep their values.
func (s *ModelService) Update(
	ctx context.Context, name string, spec ModelSpec, renames map[string]string,
) (_ ModelInfo, err error) {
	start := time.Now()
	defer func() { s.obs.observe("model.update", name, start, err) }()

	if spec.Name == "" {
		spec.Name = name
	}
	m, err := s.svc.Update(ctx, s.user, name, spec, renames)
	if err != nil {
		return ModelInfo{}, fmt.Errorf("update model: %w", err)
	}
	return fromInternalModel(m), nil
}

// Delete removes a model with its documents.
func (s *ModelService) Delete(ctx context.Context, name string) (err error) {
	start := time.Now()
	defer func() { s.obs.observe("model.delete", name, start, err) }()

	if err = s.svc.Delete(ctx, s.user, name); err != nil {
		return fmt.Errorf("delete model: %w", err)
	}
	return nil
}

func fromInternalModel(m dommodel.Model) ModelInfo {
	return ModelInfo{
		ID:        m.ID(),
		Spec:      m.Spec(),
		CreatedAt: fromMillis(m.CreatedAt()),
		UpdatedAt: fromMillis(m.UpdatedAt()),
	}
}
