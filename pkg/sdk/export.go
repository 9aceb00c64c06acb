package dataforge

import (
	"context"
	"fmt"
	"time"

	"github.com/kailas-cloud/dataforge/internal/domain"
	"github.com/kailas-cloud/dataforge/internal/domain/search/request"
	exportuc "github.com/kailas-cloud/dataforge/internal/usecase/export"
)

// Export reads records model by model under one document budget.
// A model that fails is reported in ExportResult.Errors.
func (c *Client) Export(ctx context.Context, opts ExportOptions) (_ ExportResult, err error) {
	start := time.Now()
	defer func() { c.obs.observe("export", "", start, err) }()

	filters := make(map[string]request.Filter, len(opts.Filters))
	for name, raw := range opts.Filters {
		f, err := request.ParseFilter(raw)
		if err != nil {
			return ExportResult{}, fmt.Errorf("export: filter of %s: %w: %w", name, domain.ErrValidation, err)
		}
		filters[name] = f
	}

	res, err := c.exportSvc.Export(ctx, c.user, exportuc.Request{
		Models:        opts.Models,
		Filters:       filters,
		Depth:         opts.Depth,
		Limit:         opts.Limit,
		IncludeModels: opts.IncludeModels,
	})
	if err != nil {
		return ExportResult{}, fmt.Errorf("export: %w", err)
	}
	return ExportResult{
		Order:  res.Order,
		Data:   res.Data,
		Models: res.Models,
		Errors: res.Errors,
	}, nil
}
