package request

import (
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/kailas-cloud/dataforge/internal/domain/filter"
)

// Search parameter limits.
const (
	DefaultLimit = 20
	MaxLimit     = 1000
	DefaultDepth = 1
	MaxStages    = 20
)

// Position places caller-supplied stages relative to the generated ones.
type Position string

// Stage positions.
const (
	PositionStart Position = "start"
	PositionEnd   Position = "end"
)

// Stages callers may not inject at any depth: they escape the owner scope,
// must lead the pipeline, or would nest inside the result $facet.
var forbiddenStages = map[string]bool{
	"$lookup": true, "$graphLookup": true, "$unionWith": true,
	"$out": true, "$merge": true, "$geoNear": true, "$collStats": true,
	"$indexStats": true, "$currentOp": true, "$listSessions": true,
	"$facet": true,
}

// SortKey orders results by one field.
type SortKey struct {
	Field string
	Desc  bool
}

// Filter is either a structured node or raw query syntax.
type Filter struct {
	node *filter.Node
	raw  map[string]any
}

// NodeFilter wraps a structured filter.
func NodeFilter(n filter.Node) Filter { return Filter{node: &n} }

// RawFilter wraps query syntax.
func RawFilter(q map[string]any) Filter { return Filter{raw: q} }

// ParseFilter tries the strict node form first and falls back to query syntax.
func ParseFilter(raw any) (Filter, error) {
	if raw == nil {
		return Filter{}, nil
	}
	if n, err := filter.Parse(raw); err == nil {
		return NodeFilter(n), nil
	}
	switch m := raw.(type) {
	case map[string]any:
		return RawFilter(m), nil
	case bson.M:
		return RawFilter(m), nil
	}
	return Filter{}, fmt.Errorf("filter must be an object, got %T", raw)
}

// Node returns the structured filter, if any.
func (f Filter) Node() (filter.Node, bool) {
	if f.node == nil {
		return filter.Node{}, false
	}
	return *f.node, true
}

// Raw returns the query syntax filter, if any.
func (f Filter) Raw() map[string]any { return f.raw }

// IsEmpty reports whether no filter was given.
func (f Filter) IsEmpty() bool { return f.node == nil && len(f.raw) == 0 }

// Params are the unvalidated search inputs.
type Params struct {
	Model       string
	Filter      Filter
	Page        int
	Limit       int
	Sort        []SortKey
	Depth       int
	AutoExpand  bool
	IDs         []string
	Position    Position
	Stages      []bson.M
	TimeoutHint time.Duration
}

// Request is a validated search query.
type Request struct {
	model       string
	filter      Filter
	page        int
	limit       int
	sort        []SortKey
	depth       int
	autoExpand  bool
	ids         []string
	position    Position
	stages      []bson.M
	timeoutHint time.Duration
}

// New validates and normalizes search parameters.
// Defaults: page=1, limit=20, depth=1, position=end.
func New(p Params) (Request, error) {
	if p.Model == "" {
		return Request{}, fmt.Errorf("model is required")
	}
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.Depth <= 0 {
		p.Depth = DefaultDepth
	}
	if p.Position == "" {
		p.Position = PositionEnd
	}
	if p.Position != PositionStart && p.Position != PositionEnd {
		return Request{}, fmt.Errorf("invalid pipelines position %q", p.Position)
	}
	if len(p.Stages) > MaxStages {
		return Request{}, fmt.Errorf("too many pipeline stages (max %d)", MaxStages)
	}
	if op, found := filter.FindScriptOp(p.Filter.Raw()); found {
		return Request{}, fmt.Errorf("filter: %s is not allowed", op)
	}
	for i, s := range p.Stages {
		if len(s) != 1 {
			return Request{}, fmt.Errorf("pipeline stage %d must have exactly one operator", i)
		}
		for op := range s {
			if !strings.HasPrefix(op, "$") {
				return Request{}, fmt.Errorf("pipeline stage %d: %q is not a stage operator", i, op)
			}
		}
		if op, found := filter.FindOp(s, func(k string) bool { return forbiddenStages[k] }); found {
			return Request{}, fmt.Errorf("pipeline stage %d: %s is not allowed", i, op)
		}
		if op, found := filter.FindScriptOp(s); found {
			return Request{}, fmt.Errorf("pipeline stage %d: %s is not allowed", i, op)
		}
	}
	for _, k := range p.Sort {
		if k.Field == "" {
			return Request{}, fmt.Errorf("sort field is required")
		}
	}

	return Request{
		model:       p.Model,
		filter:      p.Filter,
		page:        p.Page,
		limit:       p.Limit,
		sort:        p.Sort,
		depth:       p.Depth,
		autoExpand:  p.AutoExpand,
		ids:         p.IDs,
		position:    p.Position,
		stages:      p.Stages,
		timeoutHint: p.TimeoutHint,
	}, nil
}

// Model returns the searched model name.
func (r *Request) Model() string { return r.model }

// Filter returns the filter.
func (r *Request) Filter() Filter { return r.filter }

// Page returns the 1-based page number.
func (r *Request) Page() int { return r.page }

// Limit returns the page size.
func (r *Request) Limit() int { return r.limit }

// Skip returns the number of documents before the page.
func (r *Request) Skip() int { return (r.page - 1) * r.limit }

// Sort returns the sort keys.
func (r *Request) Sort() []SortKey { return r.sort }

// Depth returns the requested relation depth.
func (r *Request) Depth() int { return r.depth }

// AutoExpand reports whether relation filters may raise the depth.
func (r *Request) AutoExpand() bool { return r.autoExpand }

// IDs returns the explicit id list, if any.
func (r *Request) IDs() []string { return r.ids }

// Position returns where custom stages go.
func (r *Request) Position() Position { return r.position }

// Stages returns the custom stages.
func (r *Request) Stages() []bson.M { return r.stages }

// TimeoutHint returns the caller's time budget (0 = none given).
func (r *Request) TimeoutHint() time.Duration { return r.timeoutHint }

// ParseSort parses "field:ASC,other:DESC". A missing direction means ascending.
func ParseSort(s string) ([]SortKey, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var keys []SortKey
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, dir, _ := strings.Cut(part, ":")
		k := SortKey{Field: strings.TrimSpace(name)}
		switch strings.ToUpper(strings.TrimSpace(dir)) {
		case "", "ASC":
		case "DESC":
			k.Desc = true
		default:
			return nil, fmt.Errorf("invalid sort direction %q for %q", dir, name)
		}
		if k.Field == "" {
			return nil, fmt.Errorf("sort field is required")
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// ParseIDs splits a comma separated id list.
func ParseIDs(s string) []string {
	var ids []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
