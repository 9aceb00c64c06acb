package history

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/dataforge/internal/domain"
	domhist "github.com/kailas-cloud/dataforge/internal/domain/history"
	"github.com/kailas-cloud/dataforge/internal/events"
)

// Service records snapshots of documents whose model has history enabled.
type Service struct {
	repo   Repository
	logger *zap.Logger
	now    func() time.Time
}

// New creates a history service.
func New(repo Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// Register subscribes the recorder to document writes and model deletes.
func (s *Service) Register(b *events.Bus) error {
	for name, action := range map[string]domhist.Action{
		events.Created: domhist.ActionCreated,
		events.Updated: domhist.ActionUpdated,
		events.Deleted: domhist.ActionDeleted,
	} {
		if err := b.Subscribe(events.DocumentKey(name), "history", events.Identity(), s.onDocument(action)); err != nil {
			return fmt.Errorf("subscribe history: %w", err)
		}
	}
	if err := b.Subscribe(events.ModelKey(events.Deleted), "history", events.After(), s.onModelDeleted); err != nil {
		return fmt.Errorf("subscribe history: %w", err)
	}
	return nil
}

func (s *Service) onDocument(action domhist.Action) events.Handler {
	return func(ctx context.Context, e events.Event) error {
		p, ok := e.Payload.(events.DocumentEvent)
		if !ok {
			return fmt.Errorf("history: unexpected payload %T", e.Payload)
		}
		h := p.Model.History()
		if !h.Enabled {
			return nil
		}
		doc := p.Document
		if action == domhist.ActionDeleted && p.Previous != nil {
			doc = *p.Previous
		}
		entry, err := domhist.NewEntry(doc.ID(), p.Model.Name(), p.User, action, doc.Data(), h.Fields, s.now().UnixMilli())
		if err != nil {
			return err
		}
		if _, err := s.repo.Insert(ctx, entry); err != nil {
			return err
		}
		s.logger.Debug("history recorded",
			zap.String("model", entry.Model),
			zap.String("document", entry.DocID),
			zap.String("action", string(action)),
		)
		return nil
	}
}

func (s *Service) onModelDeleted(ctx context.Context, e events.Event) error {
	p, ok := e.Payload.(events.ModelEvent)
	if !ok {
		return fmt.Errorf("history: unexpected payload %T", e.Payload)
	}
	return s.repo.DeleteByModel(ctx, p.User, p.Model.Name())
}

// List returns the newest snapshots of one document first.
func (s *Service) List(ctx context.Context, user domain.User, model, docID string, limit int64) ([]domhist.Entry, error) {
	if !user.Can(domain.ActionDataRead) {
		return nil, fmt.Errorf("read history of %s: %w", model, domain.ErrPermissionDenied)
	}
	entries, err := s.repo.List(ctx, user.ID, model, docID, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return entries, nil
}
