package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	domdoc "github.com/kailas-cloud/dataforge/internal/domain/document"
	"github.com/kailas-cloud/dataforge/internal/domain/model/field"
	"github.com/kailas-cloud/dataforge/internal/events"
)

// Trigger is one cron schedule stored in a document field.
type Trigger struct {
	ID       string `json:"id"`
	User     string `json:"user"`
	Model    string `json:"model"`
	Document string `json:"document"`
	Field    string `json:"field"`
	Cron     string `json:"cron"`
}

// TriggerID identifies the schedule of one document field.
func TriggerID(docID, fieldName string) string { return docID + "/" + fieldName }

// Bridge keeps the external scheduler in sync with cronSchedule fields.
type Bridge struct {
	scheduler Scheduler
	logger    *zap.Logger
}

// NewBridge creates a bridge to scheduler.
func NewBridge(s Scheduler, logger *zap.Logger) *Bridge {
	return &Bridge{scheduler: s, logger: logger}
}

// Register subscribes the bridge to document and model events.
func (b *Bridge) Register(bus *events.Bus) error {
	subs := []struct {
		key events.Key
		h   events.Handler
	}{
		{events.DocumentKey(events.Created), b.onWrite},
		{events.DocumentKey(events.Updated), b.onWrite},
		{events.DocumentKey(events.Deleted), b.onDelete},
		{events.ModelKey(events.Deleted), b.onModelDeleted},
	}
	for _, s := range subs {
		if err := bus.Subscribe(s.key, "scheduler", events.After(), s.h); err != nil {
			return fmt.Errorf("subscribe scheduler: %w", err)
		}
	}
	return nil
}

func cron(doc *domdoc.Document, name string) string {
	if doc == nil {
		return ""
	}
	s, _ := doc.Data()[name].(string)
	return strings.TrimSpace(s)
}

func (b *Bridge) onWrite(ctx context.Context, e events.Event) error {
	p, ok := e.Payload.(events.DocumentEvent)
	if !ok {
		return fmt.Errorf("scheduler: unexpected payload %T", e.Payload)
	}
	var errs []error
	for _, f := range p.Model.FieldsOfType(field.CronSchedule) {
		id := TriggerID(p.Document.ID(), f.Name)
		expr, old := cron(&p.Document, f.Name), cron(p.Previous, f.Name)
		switch {
		case expr == old:
		case expr == "":
			errs = append(errs, b.scheduler.Cancel(ctx, p.User, id))
		default:
			errs = append(errs, b.scheduler.Schedule(ctx, Trigger{
				ID:       id,
				User:     p.User,
				Model:    p.Model.Name(),
				Document: p.Document.ID(),
				Field:    f.Name,
				Cron:     expr,
			}))
		}
	}
	return errors.Join(errs...)
}

func (b *Bridge) onDelete(ctx context.Context, e events.Event) error {
	p, ok := e.Payload.(events.DocumentEvent)
	if !ok {
		return fmt.Errorf("scheduler: unexpected payload %T", e.Payload)
	}
	var errs []error
	for _, f := range p.Model.FieldsOfType(field.CronSchedule) {
		if cron(&p.Document, f.Name) == "" {
			continue
		}
		errs = append(errs, b.scheduler.Cancel(ctx, p.User, TriggerID(p.Document.ID(), f.Name)))
	}
	return errors.Join(errs...)
}

func (b *Bridge) onModelDeleted(ctx context.Context, e events.Event) error {
	p, ok := e.Payload.(events.ModelEvent)
	if !ok {
		return fmt.Errorf("scheduler: unexpected payload %T", e.Payload)
	}
	if len(p.Model.FieldsOfType(field.CronSchedule)) == 0 {
		return nil
	}
	return b.scheduler.CancelModel(ctx, p.User, p.Model.Name())
}

// LogScheduler only logs triggers. It stands in when no broker is configured.
type LogScheduler struct {
	logger *zap.Logger
}

// NewLogScheduler creates a logging scheduler.
func NewLogScheduler(logger *zap.Logger) *LogScheduler {
	return &LogScheduler{logger: logger}
}

// Schedule logs t.
func (l *LogScheduler) Schedule(_ context.Context, t Trigger) error {
	l.logger.Info("Schedule trigger", zap.String("id", t.ID), zap.String("model", t.Model), zap.String("cron", t.Cron))
	return nil
}

// Cancel logs the cancellation.
func (l *LogScheduler) Cancel(_ context.Context, user, id string) error {
	l.logger.Info("Cancel trigger", zap.String("user", user), zap.String("id", id))
	return nil
}

// CancelModel logs the cancellation.
func (l *LogScheduler) CancelModel(_ context.Context, user, model string) error {
	l.logger.Info("Cancel model triggers", zap.String("user", user), zap.String("model", model))
	return nil
}
