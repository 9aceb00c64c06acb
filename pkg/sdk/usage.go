package dataforge

import (
	"context"
	"fmt"
	"time"

	"github.com/kailas-cloud/dataforge/internal/domain/usage/quota"
)

// Usage reports the models, documents and bytes the user stores against the quota.
func (c *Client) Usage(ctx context.Context) (_ UsageReport, err error) {
	start := time.Now()
	defer func() { c.obs.observe("usage", "", start, err) }()

	report, err := c.usageSvc.GetReport(ctx, c.user.ID)
	if err != nil {
		return UsageReport{}, fmt.Errorf("usage: %w", err)
	}
	return UsageReport{
		Models:    report.Metrics().Models(),
		Documents: fromQuota(report.Documents()),
		Storage:   fromQuota(report.Storage()),
	}, nil
}

func fromQuota(q quota.Quota) Quota {
	return Quota{Used: q.Used(), Limit: q.Limit(), Remaining: q.Remaining()}
}
