package dataforge

import (
	"context"
	"fmt"
	"time"

	"github.com/kailas-cloud/dataforge/internal/domain"
	"github.com/kailas-cloud/dataforge/internal/domain/batch"
	domdoc "github.com/kailas-cloud/dataforge/internal/domain/document"
	"github.com/kailas-cloud/dataforge/internal/domain/document/patch"
	documentuc "github.com/kailas-cloud/dataforge/internal/usecase/document"
)

// WriteOption tunes an insert.
type WriteOption func(*documentuc.WriteOptions)

// LinkDuplicates returns the stored document instead of failing when a record
// with identical content already exists.
func LinkDuplicates() WriteOption {
	return func(o *documentuc.WriteOptions) { o.Mode = documentuc.ModeLink }
}

// WithPack tags inserted documents with their provenance.
func WithPack(name string) WriteOption {
	return func(o *documentuc.WriteOptions) { o.Pack = name }
}

// Lenient replaces values that fail conversion with field defaults.
func Lenient() WriteOption {
	return func(o *documentuc.WriteOptions) { o.Lenient = true }
}

func writeOptions(opts []WriteOption) documentuc.WriteOptions {
	var o documentuc.WriteOptions
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// DocumentService manages documents of a single model.
type DocumentService struct {
	model string
	svc   documentUseCase
	user  domain.User
	obs   *observer
}

// Insert stores a record. Nested relation objects are inserted first and linked.
func (s *DocumentService) Insert(
	ctx context.Context, data map[string]any, opts ...WriteOption,
) (_ Document, err error) {
	start := time.Now()
	defer func() { s.obs.observe("document.insert", s.model, start, err) }()

	d, err := s.svc.Insert(ctx, s.user, s.model, data, writeOptions(opts))
	if err != nil {
		return Document{}, fmt.Errorf("insert: %w", err)
	}
	return fromInternalDocument(d), nil
}

// InsertMany stores records one by one and reports each outcome.
// A failed record does not stop the others.
func (s *DocumentService) InsertMany(
	ctx context.Context, rows []map[string]any, opts ...WriteOption,
) (_ []BatchResult, err error) {
	start := time.Now()
	defer func() { s.obs.observe("document.insert_many", s.model, start, err) }()

	results, err := s.svc.InsertMany(ctx, s.user, s.model, rows, writeOptions(opts))
	if err != nil {
		return nil, fmt.Errorf("insert many: %w", err)
	}
	return fromBatchResults(results), nil
}

// Get retrieves a document by ID.
func (s *DocumentService) Get(ctx context.Context, id string) (_ Document, err error) {
	start := time.Now()
	defer func() { s.obs.observe("document.get", s.model, start, err) }()

	d, err := s.svc.Get(ctx, s.user, s.model, id)
	if err != nil {
		return Document{}, fmt.Errorf("get document: %w", err)
	}
	return fromInternalDocument(d), nil
}

// Update replaces the fields of a document.
func (s *DocumentService) Update(ctx context.Context, id string, data map[string]any) (_ Document, err error) {
	start := time.Now()
	defer func() { s.obs.observe("document.update", s.model, start, err) }()

	d, err := s.svc.Update(ctx, s.user, s.model, id, data)
	if err != nil {
		return Document{}, fmt.Errorf("update: %w", err)
	}
	return fromInternalDocument(d), nil
}

// Patch sets the given fields. A nil value removes the field.
func (s *DocumentService) Patch(ctx context.Context, id string, values map[string]any) (_ Document, err error) {
	start := time.Now()
	defer func() { s.obs.observe("document.patch", s.model, start, err) }()

	p, err := patch.New(values)
	if err != nil {
		return Document{}, fmt.Errorf("patch: %w", err)
	}
	d, err := s.svc.Patch(ctx, s.user, s.model, id, p)
	if err != nil {
		return Document{}, fmt.Errorf("patch: %w", err)
	}
	return fromInternalDocument(d), nil
}

// Delete removes a document by ID.
func (s *DocumentService) Delete(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { s.obs.observe("document.delete", s.model, start, err) }()

	if err = s.svc.Delete(ctx, s.user, s.model, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

func fromInternalDocument(d domdoc.Document) Document {
	return Document{
		ID:        d.ID(),
		Model:     d.Model(),
		Pack:      d.Pack(),
		Data:      domdoc.Fields(d.Data()),
		CreatedAt: fromMillis(d.CreatedAt()),
		UpdatedAt: fromMillis(d.UpdatedAt()),
	}
}

func fromBatchResults(results []batch.Result) []BatchResult {
	out := make([]BatchResult, len(results))
	for i, r := range results {
		out[i] = BatchResult{
			Index: r.Index(),
			ID:    r.ID(),
			OK:    r.Status() == batch.StatusOK,
			Err:   r.Err(),
		}
	}
	return out
}
