package document

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/kailas-cloud/dataforge/internal/domain"
	"github.com/kailas-cloud/dataforge/internal/domain/batch"
	domdoc "github.com/kailas-cloud/dataforge/internal/domain/document"
	"github.com/kailas-cloud/dataforge/internal/domain/document/patch"
	dommodel "github.com/kailas-cloud/dataforge/internal/domain/model"
	"github.com/kailas-cloud/dataforge/internal/events"
)

// Mode selects how a root document whose content already exists is handled.
type Mode int

const (
	// ModeDirect rejects the duplicate with a *domain.DuplicateError.
	ModeDirect Mode = iota
	// ModeLink coalesces it to the stored document (pack installs, imports).
	ModeLink
)

// WriteOptions tune an insert.
type WriteOptions struct {
	Mode Mode
	// Pack tags inserted documents with their provenance.
	Pack string
	// Lenient degrades unconvertible values to field defaults instead of failing.
	Lenient bool
}

// Service handles document writes and reads.
type Service struct {
	repo       Repository
	models     ModelReader
	capacity   CapacityChecker
	events     Publisher
	limits     domain.Limits
	logger     *zap.Logger
	bcryptCost int
	now        func() time.Time
}

// New creates a document service.
func New(repo Repository, models ModelReader, limits domain.Limits, logger *zap.Logger) *Service {
	d := domain.DefaultLimits()
	if limits.CompositeBatchSize <= 0 {
		limits.CompositeBatchSize = d.CompositeBatchSize
	}
	if limits.LinkConcurrency <= 0 {
		limits.LinkConcurrency = d.LinkConcurrency
	}
	if limits.MaxNestedInsertDepth <= 0 {
		limits.MaxNestedInsertDepth = d.MaxNestedInsertDepth
	}
	return &Service{
		repo:       repo,
		models:     models,
		limits:     limits,
		logger:     logger,
		bcryptCost: bcrypt.DefaultCost,
		now:        time.Now,
	}
}

// WithCapacity enables storage limit checks.
func (s *Service) WithCapacity(c CapacityChecker) *Service {
	s.capacity = c
	return s
}

// WithEvents enables document event publishing.
func (s *Service) WithEvents(p Publisher) *Service {
	s.events = p
	return s
}

// WithBcryptCost sets the cost used to hash password fields.
func (s *Service) WithBcryptCost(cost int) *Service {
	s.bcryptCost = cost
	return s
}

func (s *Service) model(ctx context.Context, user domain.User, action, name string) (dommodel.Model, error) {
	if !user.Can(action) {
		return dommodel.Model{}, fmt.Errorf("%s on %s: %w", action, name, domain.ErrPermissionDenied)
	}
	m, err := s.models.Get(ctx, user.ID, name)
	if err != nil {
		return dommodel.Model{}, fmt.Errorf("get model: %w", err)
	}
	return m, nil
}

// Get returns one document.
func (s *Service) Get(ctx context.Context, user domain.User, modelName, id string) (domdoc.Document, error) {
	if _, err := s.model(ctx, user, domain.ActionDataRead, modelName); err != nil {
		return domdoc.Document{}, err
	}
	d, err := s.repo.Get(ctx, user.ID, modelName, id)
	if err != nil {
		return domdoc.Document{}, fmt.Errorf("get document: %w", err)
	}
	return d, nil
}

// Insert stores data as a new document of modelName, materializing nested relations.
// It returns the stored root document, which in ModeLink may be a pre-existing one.
func (s *Service) Insert(
	ctx context.Context, user domain.User, modelName string, data map[string]any, opts WriteOptions,
) (domdoc.Document, error) {
	m, err := s.model(ctx, user, domain.ActionDataWrite, modelName)
	if err != nil {
		return domdoc.Document{}, err
	}
	norm, size, err := s.prepare(m, data, opts.Lenient)
	if err != nil {
		return domdoc.Document{}, err
	}
	violations, err := s.precheck(ctx, user.ID, m, []map[string]any{norm}, 1, size, "")
	if err != nil {
		return domdoc.Document{}, err
	}
	if len(violations) > 0 {
		return domdoc.Document{}, &domain.ConstraintViolationError{Model: m.Name(), Violations: violations}
	}

	root := &node{model: m, data: norm, root: true}
	root.tempID, _ = data[domdoc.KeyID].(string)
	return s.write(ctx, user.ID, root, opts)
}

// InsertMany inserts rows independently. Limits that apply to the whole batch
// (permission, model, capacity) fail it; everything else fails only its row.
func (s *Service) InsertMany(
	ctx context.Context, user domain.User, modelName string, rows []map[string]any, opts WriteOptions,
) ([]batch.Result, error) {
	m, err := s.model(ctx, user, domain.ActionDataWrite, modelName)
	if err != nil {
		return nil, err
	}

	results := make([]batch.Result, len(rows))
	valid := make([]map[string]any, 0, len(rows))
	index := make([]int, 0, len(rows))
	var total int64
	for i, row := range rows {
		norm, size, err := s.prepare(m, row, opts.Lenient)
		if err != nil {
			results[i] = batch.NewError(i, err)
			continue
		}
		valid = append(valid, norm)
		index = append(index, i)
		total += size
	}

	violations, err := s.precheck(ctx, user.ID, m, valid, int64(len(valid)), total, "")
	if err != nil {
		return nil, err
	}
	violated := make(map[int]domain.Violation, len(violations))
	for _, v := range violations {
		violated[v.Index] = v
	}

	for vi, norm := range valid {
		i := index[vi]
		if v, ok := violated[vi]; ok {
			v.Index = i
			results[i] = batch.NewError(i, &domain.ConstraintViolationError{Model: m.Name(), Violations: []domain.Violation{v}})
			continue
		}
		root := &node{model: m, data: norm, root: true}
		root.tempID, _ = rows[i][domdoc.KeyID].(string)
		d, err := s.write(ctx, user.ID, root, opts)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			results[i] = batch.NewError(i, err)
			continue
		}
		results[i] = batch.NewOK(i, d.ID())
	}
	return results, nil
}

// Update replaces the field values of a stored document.
func (s *Service) Update(
	ctx context.Context, user domain.User, modelName, id string, data map[string]any,
) (domdoc.Document, error) {
	m, err := s.model(ctx, user, domain.ActionDataWrite, modelName)
	if err != nil {
		return domdoc.Document{}, err
	}
	existing, err := s.repo.Get(ctx, user.ID, modelName, id)
	if err != nil {
		return domdoc.Document{}, fmt.Errorf("get document: %w", err)
	}
	return s.replace(ctx, user.ID, m, existing, data)
}

// Patch merges p into a stored document.
func (s *Service) Patch(
	ctx context.Context, user domain.User, modelName, id string, p patch.Patch,
) (domdoc.Document, error) {
	m, err := s.model(ctx, user, domain.ActionDataWrite, modelName)
	if err != nil {
		return domdoc.Document{}, err
	}
	existing, err := s.repo.Get(ctx, user.ID, modelName, id)
	if err != nil {
		return domdoc.Document{}, fmt.Errorf("get document: %w", err)
	}
	return s.replace(ctx, user.ID, m, existing, p.Apply(existing.Data()))
}

func (s *Service) replace(
	ctx context.Context, user string, m dommodel.Model, existing domdoc.Document, data map[string]any,
) (domdoc.Document, error) {
	norm, size, err := s.prepare(m, data, false)
	if err != nil {
		return domdoc.Document{}, err
	}
	grow := max(0, size-payloadSize(existing.Data()))
	violations, err := s.precheck(ctx, user, m, []map[string]any{norm}, 0, grow, existing.ID())
	if err != nil {
		return domdoc.Document{}, err
	}
	if len(violations) > 0 {
		return domdoc.Document{}, &domain.ConstraintViolationError{Model: m.Name(), Violations: violations}
	}

	root := &node{model: m, data: norm, root: true, previous: &existing}
	return s.write(ctx, user, root, WriteOptions{Mode: ModeDirect, Pack: existing.Pack()})
}

// Delete removes a document and clears references to it in the user's other documents.
func (s *Service) Delete(ctx context.Context, user domain.User, modelName, id string) error {
	m, err := s.model(ctx, user, domain.ActionDataWrite, modelName)
	if err != nil {
		return err
	}
	existing, err := s.repo.Get(ctx, user.ID, modelName, id)
	if err != nil {
		return fmt.Errorf("get document: %w", err)
	}
	if err := s.repo.Delete(ctx, user.ID, modelName, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}

	models, err := s.models.List(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	for _, other := range models {
		for _, f := range other.Fields() {
			if !f.IsRelation() || f.RelationTo != modelName {
				continue
			}
			n, err := s.repo.ClearReference(ctx, user.ID, other.Name(), f.Name, id, f.Multiple)
			if err != nil {
				return fmt.Errorf("clear references: %w", err)
			}
			if n > 0 {
				s.logger.Debug("references cleared",
					zap.String("model", other.Name()),
					zap.String("field", f.Name),
					zap.Int64("documents", n),
				)
			}
		}
	}

	s.publish(ctx, events.Deleted, events.DocumentEvent{User: user.ID, Model: m, Document: existing, Previous: &existing})
	return nil
}

// publish delivers an event. Listener failures never undo a committed write.
func (s *Service) publish(ctx context.Context, name string, e events.DocumentEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, events.DocumentKey(name), e); err != nil {
		s.logger.Error("document event failed",
			zap.String("event", name),
			zap.String("model", e.Model.Name()),
			zap.String("id", e.Document.ID()),
			zap.Error(err),
		)
	}
}
