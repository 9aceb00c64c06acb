package files

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	domdoc "github.com/kailas-cloud/dataforge/internal/domain/document"
	dommodel "github.com/kailas-cloud/dataforge/internal/domain/model"
	"github.com/kailas-cloud/dataforge/internal/domain/model/field"
	"github.com/kailas-cloud/dataforge/internal/events"
)

// Cleaner removes files no longer referenced by a document.
type Cleaner struct {
	records Records
	objects ObjectRemover
	logger  *zap.Logger
}

// NewCleaner creates a cleaner. objects may be nil when no object storage is configured;
// only the records are removed then.
func NewCleaner(records Records, objects ObjectRemover, logger *zap.Logger) *Cleaner {
	return &Cleaner{records: records, objects: objects, logger: logger}
}

// Register subscribes the cleaner to document updates and deletes.
func (c *Cleaner) Register(b *events.Bus) error {
	if err := b.Subscribe(events.DocumentKey(events.Updated), "files", events.After(), c.onUpdate); err != nil {
		return fmt.Errorf("subscribe files: %w", err)
	}
	if err := b.Subscribe(events.DocumentKey(events.Deleted), "files", events.After(), c.onDelete); err != nil {
		return fmt.Errorf("subscribe files: %w", err)
	}
	return nil
}

func (c *Cleaner) onDelete(ctx context.Context, e events.Event) error {
	p, ok := e.Payload.(events.DocumentEvent)
	if !ok {
		return fmt.Errorf("files: unexpected payload %T", e.Payload)
	}
	return c.Remove(ctx, p.User, References(p.Model, p.Document))
}

func (c *Cleaner) onUpdate(ctx context.Context, e events.Event) error {
	p, ok := e.Payload.(events.DocumentEvent)
	if !ok {
		return fmt.Errorf("files: unexpected payload %T", e.Payload)
	}
	if p.Previous == nil {
		return nil
	}
	current := References(p.Model, p.Document)
	var gone []string
	for _, g := range References(p.Model, *p.Previous) {
		if !slices.Contains(current, g) {
			gone = append(gone, g)
		}
	}
	return c.Remove(ctx, p.User, gone)
}

// Remove deletes the objects and records of the user's files among guids.
// Object failures do not stop the remaining removals.
func (c *Cleaner) Remove(ctx context.Context, user string, guids []string) error {
	if len(guids) == 0 {
		return nil
	}
	files, err := c.records.ByGUIDs(ctx, user, guids)
	if err != nil {
		return err
	}
	var errs []error
	if c.objects != nil {
		for _, f := range files {
			if f.Key == "" {
				continue
			}
			if err := c.objects.Remove(ctx, f.Key); err != nil {
				errs = append(errs, err)
			}
		}
	}
	n, err := c.records.DeleteByGUIDs(ctx, user, guids)
	if err != nil {
		errs = append(errs, err)
	}
	c.logger.Debug("files removed", zap.String("user", user), zap.Int64("records", n), zap.Int("objects", len(files)))
	return errors.Join(errs...)
}

// References returns the file GUIDs held by d's file and file-array fields.
// A value is either a GUID string or an object with a guid key.
func References(m dommodel.Model, d domdoc.Document) []string {
	var out []string
	data := d.Data()
	for _, f := range m.Fields() {
		switch {
		case f.Type == field.File:
			out = appendGUID(out, data[f.Name])
		case f.IsFileArray():
			items, _ := data[f.Name].([]any)
			for _, it := range items {
				out = appendGUID(out, it)
			}
		}
	}
	return out
}

func appendGUID(out []string, v any) []string {
	var g string
	switch t := v.(type) {
	case string:
		g = t
	case map[string]any:
		g, _ = t["guid"].(string)
	}
	if g == "" || slices.Contains(out, g) {
		return out
	}
	return append(out, g)
}
