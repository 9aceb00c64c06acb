package schedule

import "context"

// Scheduler runs cron triggers outside this service.
type Scheduler interface {
	Schedule(ctx context.Context, t Trigger) error
	Cancel(ctx context.Context, user, id string) error
	CancelModel(ctx context.Context, user, model string) error
}
