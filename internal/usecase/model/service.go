package model

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/dataforge/internal/domain"
	dommodel "github.com/kailas-cloud/dataforge/internal/domain/model"
	"github.com/kailas-cloud/dataforge/internal/domain/model/field"
	"github.com/kailas-cloud/dataforge/internal/events"
)

// Service handles model definitions and the document migrations their edits imply.
type Service struct {
	repo   Repository
	docs   DocumentMigrator
	events Publisher
	logger *zap.Logger
	now    func() time.Time
}

// New creates a model service.
func New(repo Repository, docs DocumentMigrator, logger *zap.Logger) *Service {
	return &Service{repo: repo, docs: docs, logger: logger, now: time.Now}
}

// WithEvents enables model event publishing.
func (s *Service) WithEvents(p Publisher) *Service {
	s.events = p
	return s
}

func allow(user domain.User, action, name string) error {
	if !user.Can(action) {
		return fmt.Errorf("%s on %s: %w", action, name, domain.ErrPermissionDenied)
	}
	return nil
}

// Create validates and stores a new model.
func (s *Service) Create(ctx context.Context, user domain.User, spec dommodel.Spec) (dommodel.Model, error) {
	if err := allow(user, domain.ActionModelWrite, spec.Name); err != nil {
		return dommodel.Model{}, err
	}
	m, err := dommodel.New(user.ID, spec)
	if err != nil {
		return dommodel.Model{}, fmt.Errorf("validate model: %w: %w", domain.ErrValidation, err)
	}
	existing, err := s.repo.List(ctx, user.ID)
	if err != nil {
		return dommodel.Model{}, fmt.Errorf("list models: %w", err)
	}
	if err := validateRelations(m, existing, ""); err != nil {
		return dommodel.Model{}, err
	}

	created, err := s.repo.Create(ctx, m)
	if err != nil {
		return dommodel.Model{}, fmt.Errorf("create model: %w", err)
	}
	if err := s.repo.SyncIndexes(ctx, created); err != nil {
		return dommodel.Model{}, fmt.Errorf("sync indexes: %w", err)
	}
	s.publish(ctx, events.Created, events.ModelEvent{User: user.ID, Model: created})
	return created, nil
}

// Get returns one model.
func (s *Service) Get(ctx context.Context, user domain.User, name string) (dommodel.Model, error) {
	if err := allow(user, domain.ActionModelRead, name); err != nil {
		return dommodel.Model{}, err
	}
	m, err := s.repo.Get(ctx, user.ID, name)
	if err != nil {
		return dommodel.Model{}, fmt.Errorf("get model: %w", err)
	}
	return m, nil
}

// List returns the user's models ordered by name.
func (s *Service) List(ctx context.Context, user domain.User) ([]dommodel.Model, error) {
	if err := allow(user, domain.ActionModelRead, "*"); err != nil {
		return nil, err
	}
	ms, err := s.repo.List(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	return ms, nil
}

// Update replaces the definition of model name with spec.
// renames maps old field names to new ones; their values move on every document.
// Fields dropped from the definition are unset. A new spec.Name renames the model
// and repoints relation fields of the user's other models.
func (s *Service) Update(
	ctx context.Context, user domain.User, name string, spec dommodel.Spec, renames map[string]string,
) (dommodel.Model, error) {
	if err := allow(user, domain.ActionModelWrite, name); err != nil {
		return dommodel.Model{}, err
	}
	prev, err := s.repo.Get(ctx, user.ID, name)
	if err != nil {
		return dommodel.Model{}, fmt.Errorf("get model: %w", err)
	}
	if prev.Locked() {
		return dommodel.Model{}, fmt.Errorf("model %s is locked: %w", name, domain.ErrPermissionDenied)
	}
	renamed := spec.Name != name
	if renamed {
		spec.Fields, _ = retarget(spec.Fields, name, spec.Name)
	}
	if _, err := dommodel.New(user.ID, spec); err != nil {
		return dommodel.Model{}, fmt.Errorf("validate model: %w: %w", domain.ErrValidation, err)
	}
	next := dommodel.Reconstruct(prev.ID(), user.ID, spec, prev.CreatedAt(), s.now().UnixMilli())

	all, err := s.repo.List(ctx, user.ID)
	if err != nil {
		return dommodel.Model{}, fmt.Errorf("list models: %w", err)
	}
	if renamed {
		for _, m := range all {
			if m.Name() == spec.Name {
				return dommodel.Model{}, fmt.Errorf("model %s: %w", spec.Name, domain.ErrAlreadyExists)
			}
		}
	}
	if err := validateRelations(next, all, name); err != nil {
		return dommodel.Model{}, err
	}
	for from, to := range renames {
		if _, ok := prev.Field(from); !ok {
			return dommodel.Model{}, domain.Validationf("renamed field %q does not exist", from)
		}
		if _, ok := next.Field(to); !ok {
			return dommodel.Model{}, domain.Validationf("rename target %q is not a field", to)
		}
	}

	if err := s.repo.Update(ctx, next); err != nil {
		return dommodel.Model{}, fmt.Errorf("update model: %w", err)
	}
	s.repo.Invalidate(user.ID, name)

	if err := s.migrate(ctx, user.ID, prev, next, renames); err != nil {
		return dommodel.Model{}, err
	}
	if renamed {
		if err := s.renameModel(ctx, user.ID, name, spec.Name, all); err != nil {
			return dommodel.Model{}, err
		}
		if err := s.repo.DropIndexes(ctx, user.ID, name); err != nil {
			return dommodel.Model{}, fmt.Errorf("drop indexes: %w", err)
		}
	}
	if err := s.repo.SyncIndexes(ctx, next); err != nil {
		return dommodel.Model{}, fmt.Errorf("sync indexes: %w", err)
	}

	s.publish(ctx, events.Updated, events.ModelEvent{User: user.ID, Model: next, Previous: &prev})
	return next, nil
}

// migrate moves renamed field values and unsets dropped fields on prev's documents.
func (s *Service) migrate(
	ctx context.Context, user string, prev, next dommodel.Model, renames map[string]string,
) error {
	renamedFrom := make(map[string]bool, len(renames))
	for from, to := range renames {
		if from == to {
			continue
		}
		renamedFrom[from] = true
		if err := s.docs.RenameField(ctx, user, prev.Name(), from, to); err != nil {
			return fmt.Errorf("rename field: %w", err)
		}
	}
	for _, f := range prev.Fields() {
		if _, kept := next.Field(f.Name); kept || renamedFrom[f.Name] {
			continue
		}
		if err := s.docs.UnsetField(ctx, user, prev.Name(), f.Name); err != nil {
			return fmt.Errorf("unset field: %w", err)
		}
	}
	return nil
}

// renameModel moves documents to the new model name and repoints relation fields.
func (s *Service) renameModel(ctx context.Context, user, from, to string, all []dommodel.Model) error {
	if err := s.docs.RenameModel(ctx, user, from, to); err != nil {
		return fmt.Errorf("rename model: %w", err)
	}
	for _, m := range all {
		if m.Name() == from {
			continue
		}
		spec := m.Spec()
		fields, changed := retarget(spec.Fields, from, to)
		if !changed {
			continue
		}
		spec.Fields = fields
		updated := dommodel.Reconstruct(m.ID(), user, spec, m.CreatedAt(), s.now().UnixMilli())
		if err := s.repo.Update(ctx, updated); err != nil {
			return fmt.Errorf("repoint relations of %s: %w", m.Name(), err)
		}
		s.logger.Info("Relation target renamed",
			zap.String("model", m.Name()),
			zap.String("from", from),
			zap.String("to", to),
		)
	}
	return nil
}

// retarget returns fields with relations to from pointed at to.
func retarget(fields []field.Field, from, to string) ([]field.Field, bool) {
	out := make([]field.Field, len(fields))
	changed := false
	for i, f := range fields {
		if f.IsRelation() && f.RelationTo == from {
			f.RelationTo = to
			changed = true
		}
		out[i] = f
	}
	return out, changed
}

// Delete removes a model with its documents. Relation fields of other models
// that target it are removed together with their values.
func (s *Service) Delete(ctx context.Context, user domain.User, name string) error {
	if err := allow(user, domain.ActionModelWrite, name); err != nil {
		return err
	}
	m, err := s.repo.Get(ctx, user.ID, name)
	if err != nil {
		return fmt.Errorf("get model: %w", err)
	}
	if m.Locked() {
		return fmt.Errorf("model %s is locked: %w", name, domain.ErrPermissionDenied)
	}
	all, err := s.repo.List(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}

	n, err := s.docs.DeleteByModel(ctx, user.ID, name)
	if err != nil {
		return fmt.Errorf("delete documents: %w", err)
	}
	for _, other := range all {
		if other.Name() == name {
			continue
		}
		if err := s.dropRelations(ctx, user.ID, other, name); err != nil {
			return err
		}
	}
	if err := s.repo.DropIndexes(ctx, user.ID, name); err != nil {
		return fmt.Errorf("drop indexes: %w", err)
	}
	if err := s.repo.Delete(ctx, user.ID, name); err != nil && !errors.Is(err, domain.ErrModelNotFound) {
		return fmt.Errorf("delete model: %w", err)
	}
	s.repo.Invalidate(user.ID, name)

	s.logger.Info("Model deleted", zap.String("model", name), zap.Int64("documents", n))
	s.publish(ctx, events.Deleted, events.ModelEvent{User: user.ID, Model: m})
	return nil
}

// dropRelations removes m's relation fields targeting name and their stored values.
func (s *Service) dropRelations(ctx context.Context, user string, m dommodel.Model, name string) error {
	spec := m.Spec()
	kept := make([]field.Field, 0, len(spec.Fields))
	var dropped []string
	for _, f := range spec.Fields {
		if f.IsRelation() && f.RelationTo == name {
			dropped = append(dropped, f.Name)
			continue
		}
		kept = append(kept, f)
	}
	if len(dropped) == 0 {
		return nil
	}
	spec.Fields = kept
	spec.Constraints = withoutKeys(spec.Constraints, dropped)
	updated := dommodel.Reconstruct(m.ID(), user, spec, m.CreatedAt(), s.now().UnixMilli())
	if err := s.repo.Update(ctx, updated); err != nil {
		return fmt.Errorf("drop relations of %s: %w", m.Name(), err)
	}
	for _, f := range dropped {
		if err := s.docs.UnsetField(ctx, user, m.Name(), f); err != nil {
			return fmt.Errorf("unset field: %w", err)
		}
	}
	return s.repo.SyncIndexes(ctx, updated)
}

// withoutKeys drops constraints that reference any of the removed fields.
func withoutKeys(cs []dommodel.Constraint, removed []string) []dommodel.Constraint {
	gone := make(map[string]bool, len(removed))
	for _, r := range removed {
		gone[r] = true
	}
	out := make([]dommodel.Constraint, 0, len(cs))
next:
	for _, c := range cs {
		for _, k := range c.Keys {
			if gone[k] {
				continue next
			}
		}
		out = append(out, c)
	}
	return out
}

// validateRelations checks m's relation targets against the owner's models.
// self is the stored name of m when it is being edited.
func validateRelations(m dommodel.Model, all []dommodel.Model, self string) error {
	known := make(map[string]bool, len(all))
	for _, other := range all {
		if other.Name() != self {
			known[other.Name()] = true
		}
	}
	if self == "" && known[m.Name()] {
		return fmt.Errorf("model %s: %w", m.Name(), domain.ErrAlreadyExists)
	}
	if err := m.ValidateRelations(func(name string) bool { return known[name] }); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, name string, e events.ModelEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, events.ModelKey(name), e); err != nil {
		s.logger.Error("model event failed",
			zap.String("event", name),
			zap.String("model", e.Model.Name()),
			zap.Error(err),
		)
	}
}
