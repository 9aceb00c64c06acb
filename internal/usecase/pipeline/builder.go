package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/kailas-cloud/dataforge/internal/domain"
	domdoc "github.com/kailas-cloud/dataforge/internal/domain/document"
	"github.com/kailas-cloud/dataforge/internal/domain/filter"
	dommodel "github.com/kailas-cloud/dataforge/internal/domain/model"
	"github.com/kailas-cloud/dataforge/internal/domain/search/request"
)

// Builder turns search requests into aggregation pipelines over the data collection.
type Builder struct {
	models ModelReader
	limits domain.Limits
	logger *zap.Logger
	stages prometheus.Observer
	skips  *prometheus.CounterVec
}

// New creates a pipeline builder.
func New(models ModelReader, limits domain.Limits, logger *zap.Logger) *Builder {
	if limits.MaxFilterDepth <= 0 {
		limits.MaxFilterDepth = domain.DefaultLimits().MaxFilterDepth
	}
	if limits.MaxRelations <= 0 {
		limits.MaxRelations = domain.DefaultLimits().MaxRelations
	}
	return &Builder{models: models, limits: limits, logger: logger}
}

// WithMetrics enables stage count and relation skip metrics.
func (b *Builder) WithMetrics(stages prometheus.Observer, skips *prometheus.CounterVec) *Builder {
	b.stages = stages
	b.skips = skips
	return b
}

// Build compiles req into a pipeline scoped to user. The returned pipeline does not page.
func (b *Builder) Build(ctx context.Context, user string, req request.Request) ([]bson.M, error) {
	m, err := b.models.Get(ctx, user, req.Model())
	if err != nil {
		return nil, fmt.Errorf("get model %s: %w", req.Model(), err)
	}

	var expr bson.M
	var special, rest bson.M
	if n, ok := req.Filter().Node(); ok {
		if expr, err = filter.Compile(n); err != nil {
			return nil, err
		}
	} else if raw := req.Filter().Raw(); len(raw) > 0 {
		special, rest = filter.Split(raw)
		if filter.HasOp(rest, filter.OpFind) {
			return nil, domain.Validationf("$find is only supported in structured filters")
		}
	}

	depth := b.depth(req, expr)

	first, geo, err := b.firstStage(user, req, special)
	if err != nil {
		return nil, err
	}
	out := []bson.M{first}

	if req.Position() == request.PositionStart {
		out = append(out, req.Stages()...)
	}

	joins, err := b.relationStages(ctx, m, user, depth, nil)
	if err != nil {
		return nil, err
	}
	out = append(out, joins...)

	if len(expr) > 0 {
		out = append(out, bson.M{"$match": bson.M{"$expr": filter.Lower(expr)}})
	}
	if len(rest) > 0 {
		out = append(out, bson.M{"$match": rest})
	}

	sortStage, err := b.sortStage(ctx, m, user, req.Sort(), depth, geo)
	if err != nil {
		return nil, err
	}
	if sortStage != nil {
		out = append(out, sortStage)
	}

	if req.Position() == request.PositionEnd {
		out = append(out, req.Stages()...)
	}
	if depth > 1 {
		out = append(out, bson.M{"$project": bson.M{domdoc.KeyUser: 0, domdoc.KeyModel: 0}})
	}

	if b.stages != nil {
		b.stages.Observe(float64(len(out)))
	}
	b.logger.Debug("pipeline built",
		zap.String("model", m.Name()),
		zap.Int("depth", depth),
		zap.Int("stages", len(out)),
	)
	return out, nil
}

// depth clamps the requested depth. With autoExpand a relation filter raises it
// so every $find path is joined before the match runs.
func (b *Builder) depth(req request.Request, expr bson.M) int {
	d := req.Depth()
	if req.AutoExpand() && len(expr) > 0 {
		if need := filter.FindDepth(expr) + 1; need > d {
			d = need
		}
	}
	return max(1, min(d, b.limits.MaxFilterDepth))
}

// firstStage picks the leading stage. Every variant carries the owner scope.
func (b *Builder) firstStage(user string, req request.Request, special bson.M) (bson.M, bool, error) {
	scope := bson.M{domdoc.KeyModel: req.Model(), domdoc.KeyUser: user}
	if ids := req.IDs(); len(ids) > 0 {
		oids := make(bson.A, 0, len(ids))
		for _, id := range ids {
			oid, err := primitive.ObjectIDFromHex(id)
			if err != nil {
				return nil, false, domain.Validationf("invalid id %q", id)
			}
			oids = append(oids, oid)
		}
		scope[domdoc.KeyID] = bson.M{"$in": oids}
	}

	if len(special) == 0 {
		return bson.M{"$match": scope}, false, nil
	}

	stage, found, err := filter.GeoNearFromSpecial(special)
	if err != nil {
		return nil, false, err
	}
	if found {
		stage["query"] = merge(scope, stage["query"])
		return bson.M{"$geoNear": stage}, true, nil
	}

	if explicit, ok := special["$geoNear"]; ok {
		body, ok := explicit.(map[string]any)
		if !ok {
			if bm, isM := explicit.(bson.M); isM {
				body, ok = bm, true
			}
		}
		if !ok {
			return nil, false, domain.Validationf("$geoNear must be an object")
		}
		stage := bson.M{}
		for k, v := range body {
			stage[k] = v
		}
		others := bson.M{}
		for k, v := range special {
			if k != "$geoNear" {
				others[k] = v
			}
		}
		stage["query"] = merge(merge(scope, stage["query"]), others)
		return bson.M{"$geoNear": stage}, true, nil
	}

	return bson.M{"$match": merge(scope, special)}, false, nil
}

// merge overlays extra onto a copy of base. Keys of base win so the scope cannot be overridden.
func merge(base bson.M, extra any) bson.M {
	out := bson.M{}
	switch e := extra.(type) {
	case bson.M:
		for k, v := range e {
			out[k] = v
		}
	case map[string]any:
		for k, v := range e {
			out[k] = v
		}
	}
	for k, v := range base {
		out[k] = v
	}
	return out
}

// sortStage builds the $sort stage. A relation key sorts by the target's display field
// once the relation is joined. _id breaks ties so paging is stable.
func (b *Builder) sortStage(
	ctx context.Context, m dommodel.Model, user string, keys []request.SortKey, depth int, geo bool,
) (bson.M, error) {
	if len(keys) == 0 {
		if geo {
			return nil, nil
		}
		return bson.M{"$sort": bson.D{{Key: domdoc.KeyID, Value: 1}}}, nil
	}

	sort := bson.D{}
	seen := map[string]bool{}
	for _, k := range keys {
		key := k.Field
		if f, ok := m.Field(k.Field); ok && f.IsRelation() && depth > 1 {
			tm, err := b.models.Get(ctx, user, f.RelationTo)
			switch {
			case err == nil:
				if display, ok := tm.DisplayField(); ok {
					key = f.Name + "." + display
				}
			case !errors.Is(err, domain.ErrModelNotFound):
				return nil, fmt.Errorf("get model %s: %w", f.RelationTo, err)
			}
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		dir := 1
		if k.Desc {
			dir = -1
		}
		sort = append(sort, bson.E{Key: key, Value: dir})
	}
	if !seen[domdoc.KeyID] {
		sort = append(sort, bson.E{Key: domdoc.KeyID, Value: 1})
	}
	return bson.M{"$sort": sort}, nil
}
