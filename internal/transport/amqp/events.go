package amqp

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/dataforge/internal/events"
)

// DocumentMessage is the body of a document event message.
type DocumentMessage struct {
	Event    string         `json:"event"`
	User     string         `json:"user"`
	Model    string         `json:"model"`
	ID       string         `json:"id"`
	Data     map[string]any `json:"data,omitempty"`
	Previous map[string]any `json:"previous,omitempty"`
	At       int64          `json:"at"`
}

// RoutingKey returns the key of a document event: data.<model>.<action>.
func RoutingKey(model, action string) string {
	return events.SystemData + "." + model + "." + action
}

// Forwarder publishes document events for the workflow executor.
type Forwarder struct {
	pub *Publisher
}

// NewForwarder creates a forwarder over pub.
func NewForwarder(pub *Publisher) *Forwarder {
	return &Forwarder{pub: pub}
}

// Register subscribes the forwarder to every document event.
func (f *Forwarder) Register(b *events.Bus) error {
	for _, name := range []string{events.Created, events.Updated, events.Deleted} {
		if err := b.Subscribe(events.DocumentKey(name), "amqp", events.After(), f.forward(name)); err != nil {
			return fmt.Errorf("subscribe amqp: %w", err)
		}
	}
	return nil
}

func (f *Forwarder) forward(action string) events.Handler {
	return func(ctx context.Context, e events.Event) error {
		p, ok := e.Payload.(events.DocumentEvent)
		if !ok {
			return fmt.Errorf("amqp: unexpected payload %T", e.Payload)
		}
		msg := DocumentMessage{
			Event: action,
			User:  p.User,
			Model: p.Model.Name(),
			ID:    p.Document.ID(),
			At:    f.pub.now().UnixMilli(),
		}
		if action != events.Deleted {
			msg.Data = p.Document.Data()
		}
		if p.Previous != nil {
			msg.Previous = p.Previous.Data()
		}
		return f.pub.Publish(ctx, RoutingKey(msg.Model, action), msg)
	}
}
