package document

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/dataforge/internal/domain"
	domdoc "github.com/kailas-cloud/dataforge/internal/domain/document"
	"github.com/kailas-cloud/dataforge/internal/domain/filter"
	dommodel "github.com/kailas-cloud/dataforge/internal/domain/model"
	"github.com/kailas-cloud/dataforge/internal/domain/model/field"
	"github.com/kailas-cloud/dataforge/internal/events"
)

// handle points at a node of the arena. It stands in for a relation value until
// the target is stored.
type handle int

// node is one document of a write: the root or a nested relation object.
type node struct {
	model    dommodel.Model
	data     map[string]any
	tempID   string
	root     bool
	previous *domdoc.Document

	deps     []handle
	deferred bool
	id       string
	doc      domdoc.Document
	created  bool
}

// arena holds every document of one write, addressed by handle.
// Temp ids map the client-side _id of nested objects to their handle so that
// shared and circular references resolve to a single insert.
type arena struct {
	nodes []*node
	temps map[string]handle
}

func (a *arena) add(n *node) handle {
	h := handle(len(a.nodes))
	a.nodes = append(a.nodes, n)
	if n.tempID != "" {
		a.temps[n.tempID] = h
	}
	return h
}

// write stores root and every nested document it carries.
// Nodes are stored in dependency order; a cycle is broken by storing one node
// without its pending references and patching them in once the targets exist.
func (s *Service) write(ctx context.Context, user string, root *node, opts WriteOptions) (domdoc.Document, error) {
	a := &arena{temps: map[string]handle{}}
	a.add(root)

	if err := s.register(ctx, a, user, 0, 0, opts.Lenient); err != nil {
		return domdoc.Document{}, err
	}
	if err := s.link(ctx, a, user); err != nil {
		return domdoc.Document{}, err
	}

	stored := make([]bool, len(a.nodes))
	for range a.nodes {
		next := -1
		for i, n := range a.nodes {
			if !stored[i] && ready(n, stored) {
				next = i
				break
			}
		}
		if next < 0 {
			for i, n := range a.nodes {
				if !stored[i] {
					next = i
					n.deferred = true
					s.logger.Debug("relation cycle deferred", zap.String("model", n.model.Name()))
					break
				}
			}
		}
		if err := s.persist(ctx, a, user, a.nodes[next], opts); err != nil {
			return domdoc.Document{}, err
		}
		stored[next] = true
	}

	for _, n := range a.nodes {
		if !n.deferred || !n.created {
			continue
		}
		data := resolve(a, n.data)
		if err := s.hashPasswords(n.model, data); err != nil {
			return domdoc.Document{}, err
		}
		n.doc = n.doc.WithData(data)
		if err := s.repo.Replace(ctx, n.doc); err != nil {
			return domdoc.Document{}, fmt.Errorf("link deferred relations: %w", err)
		}
	}

	for _, n := range a.nodes {
		if !n.created {
			continue
		}
		if n.previous != nil {
			s.publish(ctx, events.Updated, events.DocumentEvent{User: user, Model: n.model, Document: n.doc, Previous: n.previous})
			continue
		}
		s.publish(ctx, events.Created, events.DocumentEvent{User: user, Model: n.model, Document: n.doc})
	}
	return a.nodes[0].doc, nil
}

func ready(n *node, stored []bool) bool {
	for _, d := range n.deps {
		if !stored[d] {
			return false
		}
	}
	return true
}

// register walks the relation values of node h. Nested objects become nodes,
// $find selectors are replaced by the matching ids, references to existing
// documents stay ids.
func (s *Service) register(ctx context.Context, a *arena, user string, h handle, depth int, lenient bool) error {
	n := a.nodes[h]
	for _, f := range n.model.Fields() {
		if !f.IsRelation() {
			continue
		}
		v, ok := n.data[f.Name]
		if !ok || v == nil {
			continue
		}
		items := relationItems(v)
		out := make([]any, 0, len(items))
		for _, item := range items {
			m, isMap := item.(map[string]any)
			if !isMap {
				out = append(out, item)
				continue
			}
			if sel, ok := m["$find"]; ok {
				ids, err := s.find(ctx, user, f, sel)
				if err != nil {
					return err
				}
				out = append(out, ids...)
				continue
			}
			id, _ := m[domdoc.KeyID].(string)
			if _, known := a.temps[id]; known {
				out = append(out, id)
				continue
			}
			if id != "" && primitive.IsValidObjectID(id) {
				count, err := s.repo.CountIDs(ctx, user, f.RelationTo, []string{id})
				if err != nil {
					return fmt.Errorf("check relation %s: %w", f.Name, err)
				}
				if count > 0 {
					out = append(out, id)
					continue
				}
			}

			if depth+1 > s.limits.MaxNestedInsertDepth {
				return domain.Validationf("relation %q nests deeper than %d levels", f.Name, s.limits.MaxNestedInsertDepth)
			}
			tm, err := s.models.Get(ctx, user, f.RelationTo)
			if err != nil {
				if errors.Is(err, domain.ErrModelNotFound) {
					s.logger.Warn("relation not resolved",
						zap.String("reason", "missing_model"),
						zap.String("model", n.model.Name()),
						zap.String("field", f.Name),
						zap.String("target", f.RelationTo),
					)
					continue
				}
				return fmt.Errorf("get model %s: %w", f.RelationTo, err)
			}
			data, err := tm.Normalize(m, lenient)
			if err != nil {
				return fmt.Errorf("%w: relation %q: %w", domain.ErrValidation, f.Name, err)
			}
			child := a.add(&node{model: tm, data: data, tempID: id})
			out = append(out, child)
			if err := s.register(ctx, a, user, child, depth+1, lenient); err != nil {
				return err
			}
		}
		n.data[f.Name] = relationValue(f, out)
	}
	return nil
}

// find resolves a $find selector against the relation target.
// A single relation keeps the first match; no match clears the value.
func (s *Service) find(ctx context.Context, user string, f field.Field, sel any) ([]any, error) {
	q, ok := sel.(map[string]any)
	if !ok {
		return nil, domain.Validationf("relation %q: $find must be an object", f.Name)
	}
	if op, found := filter.FindScriptOp(q); found {
		return nil, domain.Validationf("relation %q: %s is not allowed", f.Name, op)
	}
	var limit int64 = 1
	if f.Multiple {
		limit = 0
	}
	ids, err := s.repo.FindIDs(ctx, user, f.RelationTo, bson.M(q), limit)
	if err != nil {
		return nil, fmt.Errorf("resolve relation %s: %w", f.Name, err)
	}
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out, nil
}

// link turns temp id strings into handles, records the dependencies of every
// node and drops ids that reference no stored document of the target model.
func (s *Service) link(ctx context.Context, a *arena, user string) error {
	type ref struct {
		model string
		id    string
	}
	candidates := map[string]map[string]bool{}
	for _, n := range a.nodes {
		for _, f := range n.model.Fields() {
			if !f.IsRelation() {
				continue
			}
			for _, item := range relationItems(n.data[f.Name]) {
				if id, ok := item.(string); ok {
					if _, temp := a.temps[id]; !temp {
						if candidates[f.RelationTo] == nil {
							candidates[f.RelationTo] = map[string]bool{}
						}
						candidates[f.RelationTo][id] = true
					}
				}
			}
		}
	}

	var mu sync.Mutex
	existing := map[ref]bool{}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.limits.LinkConcurrency)
	for model, ids := range candidates {
		g.Go(func() error {
			oids := bson.A{}
			for id := range ids {
				if oid, err := primitive.ObjectIDFromHex(id); err == nil {
					oids = append(oids, oid)
				}
			}
			if len(oids) == 0 {
				return nil
			}
			found, err := s.repo.FindIDs(gctx, user, model, bson.M{domdoc.KeyID: bson.M{"$in": oids}}, 0)
			if err != nil {
				return fmt.Errorf("check relations to %s: %w", model, err)
			}
			mu.Lock()
			for _, id := range found {
				existing[ref{model, id}] = true
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, n := range a.nodes {
		for _, f := range n.model.Fields() {
			v, ok := n.data[f.Name]
			if !f.IsRelation() || !ok || v == nil {
				continue
			}
			items := relationItems(v)
			out := make([]any, 0, len(items))
			for _, item := range items {
				switch t := item.(type) {
				case handle:
					n.deps = append(n.deps, t)
					out = append(out, t)
				case string:
					if h, temp := a.temps[t]; temp {
						n.deps = append(n.deps, h)
						out = append(out, h)
						continue
					}
					if existing[ref{f.RelationTo, t}] {
						out = append(out, t)
						continue
					}
					s.logger.Warn("relation not resolved",
						zap.String("reason", "unknown_reference"),
						zap.String("model", n.model.Name()),
						zap.String("field", f.Name),
						zap.String("target", f.RelationTo),
						zap.String("id", t),
					)
				}
			}
			n.data[f.Name] = relationValue(f, out)
		}
		slices.Sort(n.deps)
		n.deps = slices.Compact(n.deps)
	}
	return nil
}

// persist stores one node. A nested node, or a root in ModeLink, whose content
// already exists is coalesced to the stored document.
func (s *Service) persist(ctx context.Context, a *arena, user string, n *node, opts WriteOptions) error {
	data := resolve(a, n.data)
	if err := s.hashPasswords(n.model, data); err != nil {
		return err
	}
	now := s.now().UnixMilli()

	if n.previous != nil {
		d := n.previous.WithData(data).WithTimes(n.previous.CreatedAt(), now)
		if d.Hash() != n.previous.Hash() {
			if id, found, err := s.repo.FindByHash(ctx, user, d.Model(), d.Hash()); err != nil {
				return fmt.Errorf("check duplicate: %w", err)
			} else if found && id != d.ID() {
				return &domain.DuplicateError{ExistingID: id}
			}
		}
		if err := s.checkUnique(ctx, d, n.model, d.ID()); err != nil {
			return err
		}
		if err := s.repo.Replace(ctx, d); err != nil {
			return fmt.Errorf("replace document: %w", err)
		}
		n.id, n.doc, n.created = d.ID(), d, true
		return nil
	}

	d, err := domdoc.New(n.model.Name(), user, data)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	d = d.WithData(data).WithPack(opts.Pack).WithTimes(now, now)

	id, found, err := s.repo.FindByHash(ctx, user, d.Model(), d.Hash())
	if err != nil {
		return fmt.Errorf("check duplicate: %w", err)
	}
	if found {
		if n.root && opts.Mode == ModeDirect {
			return &domain.DuplicateError{ExistingID: id}
		}
		stored, err := s.repo.Get(ctx, user, d.Model(), id)
		if err != nil {
			return fmt.Errorf("get coalesced document: %w", err)
		}
		n.id, n.doc = id, stored
		return nil
	}

	if !n.root {
		if v, err := s.compositeViolations(ctx, user, n.model, []map[string]any{data}, ""); err != nil {
			return err
		} else if len(v) > 0 {
			return &domain.ConstraintViolationError{Model: n.model.Name(), Violations: v}
		}
	}
	if err := s.checkUnique(ctx, d, n.model, ""); err != nil {
		return err
	}

	id, err = s.repo.Insert(ctx, d)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	n.id, n.doc, n.created = id, d.WithID(id), true
	return nil
}

// resolve copies data replacing handles with stored ids. Handles of nodes not
// stored yet are dropped.
func resolve(a *arena, data map[string]any) map[string]any {
	idOf := func(h handle) (string, bool) {
		t := a.nodes[h]
		if t.id == "" {
			return "", false
		}
		return t.id, true
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		switch t := v.(type) {
		case handle:
			if id, ok := idOf(t); ok {
				out[k] = id
			} else {
				out[k] = nil
			}
		case []any:
			ids := make([]any, 0, len(t))
			for _, e := range t {
				h, isHandle := e.(handle)
				if !isHandle {
					ids = append(ids, e)
					continue
				}
				if id, ok := idOf(h); ok {
					ids = append(ids, id)
				}
			}
			out[k] = ids
		default:
			out[k] = v
		}
	}
	return out
}

// relationItems lists the values of a relation field.
func relationItems(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	}
	return []any{v}
}

// relationValue shapes resolved items: a multiple relation keeps the array,
// a single relation keeps the first item or becomes null.
func relationValue(f field.Field, items []any) any {
	if f.Multiple {
		return items
	}
	if len(items) == 0 {
		return nil
	}
	return items[0]
}
