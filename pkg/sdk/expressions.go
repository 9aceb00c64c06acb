package dataforge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/kailas-cloud/dataforge/internal/domain"
	"github.com/kailas-cloud/dataforge/internal/domain/filter"
	dommodel "github.com/kailas-cloud/dataforge/internal/domain/model"
)

// CompileFilter turns a nested filter tree into an aggregation expression
// usable inside $match/$expr.
func CompileFilter(tree any) (bson.M, error) {
	node, err := filter.Parse(tree)
	if err != nil {
		return nil, fmt.Errorf("compile filter: %w: %w", domain.ErrValidation, err)
	}
	expr, err := filter.Compile(node)
	if err != nil {
		return nil, fmt.Errorf("compile filter: %w", err)
	}
	return expr, nil
}

// DecompileFilter rebuilds the filter tree from an expression CompileFilter produced.
// Expressions of any other shape fail with ErrReconstruction.
func DecompileFilter(expr bson.M) (map[string]any, error) {
	node, err := filter.Decompile(expr)
	if err != nil {
		return nil, fmt.Errorf("decompile filter: %w", err)
	}
	raw, err := json.Marshal(node)
	if err != nil {
		return nil, fmt.Errorf("decompile filter: %w", err)
	}
	var tree map[string]any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("decompile filter: %w", err)
	}
	return tree, nil
}

// Evaluate reports whether record satisfies cond. With an empty model the
// condition is a single operator over a [left, right] pair.
func (c *Client) Evaluate(
	ctx context.Context, model string, cond any, record map[string]any,
) (_ bool, err error) {
	start := time.Now()
	defer func() { c.obs.observe("condition.evaluate", model, start, err) }()

	if model == "" {
		return c.evaluator.Evaluate(nil, cond, record, nil, c.user), nil
	}
	all, err := c.modelSvc.List(ctx, c.user)
	if err != nil {
		return false, fmt.Errorf("evaluate: %w", err)
	}
	var m *dommodel.Model
	for i := range all {
		if all[i].Name() == model {
			m = &all[i]
		}
	}
	if m == nil {
		return false, fmt.Errorf("evaluate: %w", domain.ErrModelNotFound)
	}
	return c.evaluator.Evaluate(m, cond, record, all, c.user), nil
}
