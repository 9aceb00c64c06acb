package amqp

import (
	"context"

	"github.com/kailas-cloud/dataforge/internal/usecase/schedule"
)

// Routing keys of scheduler commands.
const (
	KeySchedule    = "schedule.set"
	KeyCancel      = "schedule.cancel"
	KeyCancelModel = "schedule.cancel_model"
)

type cancelMessage struct {
	User  string `json:"user"`
	ID    string `json:"id,omitempty"`
	Model string `json:"model,omitempty"`
}

// Scheduler sends cron triggers to the external scheduler over the broker.
type Scheduler struct {
	pub *Publisher
}

// NewScheduler creates a broker-backed scheduler.
func NewScheduler(pub *Publisher) *Scheduler {
	return &Scheduler{pub: pub}
}

// Schedule registers or replaces a trigger.
func (s *Scheduler) Schedule(ctx context.Context, t schedule.Trigger) error {
	return s.pub.Publish(ctx, KeySchedule, t)
}

// Cancel removes one trigger.
func (s *Scheduler) Cancel(ctx context.Context, user, id string) error {
	return s.pub.Publish(ctx, KeyCancel, cancelMessage{User: user, ID: id})
}

// CancelModel removes every trigger of a model.
func (s *Scheduler) CancelModel(ctx context.Context, user, model string) error {
	return s.pub.Publish(ctx, KeyCancelModel, cancelMessage{User: user, Model: model})
}
