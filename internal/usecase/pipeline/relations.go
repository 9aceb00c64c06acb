package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/kailas-cloud/dataforge/internal/db"
	"github.com/kailas-cloud/dataforge/internal/domain"
	domdoc "github.com/kailas-cloud/dataforge/internal/domain/document"
	"github.com/kailas-cloud/dataforge/internal/domain/filter"
	dommodel "github.com/kailas-cloud/dataforge/internal/domain/model"
	"github.com/kailas-cloud/dataforge/internal/domain/model/field"
)

// Skip reasons reported to the relation skip counter.
const (
	skipCycle        = "cycle"
	skipMissingModel = "missing_model"
)

// FileNotFound marks a file array entry whose record no longer exists.
const FileNotFound = "file_not_found"

// UserPlaceholder in a relation filter is replaced with the caller's id.
const UserPlaceholder = "$$USER"

// relationStages joins the relations, files and calculated fields of m.
// visited holds the relation targets on the current path; a target already on it is skipped.
// Nothing is joined at depth 1.
func (b *Builder) relationStages(
	ctx context.Context, m dommodel.Model, user string, depth int, visited []string,
) ([]bson.M, error) {
	if depth <= 1 {
		return nil, nil
	}

	var out []bson.M
	for _, f := range m.Fields() {
		if !f.IsRelation() {
			continue
		}
		stages, err := b.relationLookup(ctx, m, f, user, depth, visited)
		if err != nil {
			return nil, err
		}
		out = append(out, stages...)
	}
	for _, f := range m.Fields() {
		switch {
		case f.Type == field.File:
			out = append(out, fileLookup(f, user)...)
		case f.IsFileArray():
			out = append(out, fileArrayLookup(f, user)...)
		}
	}
	for _, f := range m.FieldsOfType(field.Calculated) {
		out = append(out, calculatedStages(f, user)...)
	}
	return out, nil
}

func (b *Builder) relationLookup(
	ctx context.Context, m dommodel.Model, f field.Field, user string, depth int, visited []string,
) ([]bson.M, error) {
	target := f.RelationTo
	if slices.Contains(visited, target) {
		b.skip(skipCycle, m.Name(), f)
		return nil, nil
	}
	tm, err := b.models.Get(ctx, user, target)
	if err != nil {
		if errors.Is(err, domain.ErrModelNotFound) {
			b.skip(skipMissingModel, m.Name(), f)
			return nil, nil
		}
		return nil, fmt.Errorf("get model %s: %w", target, err)
	}

	path := append(slices.Clone(visited), target)
	child, err := b.relationStages(ctx, tm, user, depth-1, path)
	if err != nil {
		return nil, err
	}

	var idMatch bson.M
	if f.Multiple {
		idMatch = bson.M{"$in": bson.A{"$" + domdoc.KeyID, bson.M{"$map": bson.M{
			"input": arrayOrEmpty("$$ref"),
			"as":    "r",
			"in":    toObjectID("$$r"),
		}}}}
	} else {
		idMatch = bson.M{"$eq": bson.A{"$" + domdoc.KeyID, toObjectID("$$ref")}}
	}

	sub := bson.A{bson.M{"$match": bson.M{
		domdoc.KeyModel: target,
		domdoc.KeyUser:  user,
		"$expr":         idMatch,
	}}}
	if len(f.RelationFilter) > 0 {
		if op, found := filter.FindScriptOp(f.RelationFilter); found {
			return nil, domain.Validationf("relation %q: %s is not allowed in relationFilter", f.Name, op)
		}
		sub = append(sub, bson.M{"$match": withUser(f.RelationFilter, user)})
	}
	sub = append(sub, bson.M{"$limit": b.limits.MaxRelations})
	for _, s := range child {
		sub = append(sub, s)
	}
	sub = append(sub, bson.M{"$project": bson.M{domdoc.KeyUser: 0}})

	out := []bson.M{{"$lookup": bson.M{
		"from":     db.CollectionData,
		"let":      bson.M{"ref": "$" + f.Name},
		"pipeline": sub,
		"as":       f.Name,
	}}}
	if !f.Multiple {
		out = append(out, collapse(f.Name))
	}
	return out, nil
}

func (b *Builder) skip(reason, model string, f field.Field) {
	b.logger.Warn("relation not resolved",
		zap.String("reason", reason),
		zap.String("model", model),
		zap.String("field", f.Name),
		zap.String("target", f.RelationTo),
	)
	if b.skips != nil {
		b.skips.WithLabelValues(reason).Inc()
	}
}

func fileLookup(f field.Field, user string) []bson.M {
	return []bson.M{
		{"$lookup": bson.M{
			"from": db.CollectionFiles,
			"let":  bson.M{"g": "$" + f.Name},
			"pipeline": bson.A{
				bson.M{"$match": bson.M{
					domdoc.KeyUser: user,
					"$expr":        bson.M{"$eq": bson.A{"$guid", "$$g"}},
				}},
				bson.M{"$limit": 1},
				bson.M{"$project": bson.M{domdoc.KeyUser: 0}},
			},
			"as": f.Name,
		}},
		collapse(f.Name),
	}
}

// fileArrayLookup joins an array of guids and rebuilds it in the stored order.
// Missing files keep their slot as a placeholder carrying FileNotFound.
func fileArrayLookup(f field.Field, user string) []bson.M {
	tmp := "__files_" + f.Name
	guids := arrayOrEmpty("$" + f.Name)
	return []bson.M{
		{"$lookup": bson.M{
			"from": db.CollectionFiles,
			"let":  bson.M{"gs": guids},
			"pipeline": bson.A{
				bson.M{"$match": bson.M{
					domdoc.KeyUser: user,
					"$expr":        bson.M{"$in": bson.A{"$guid", "$$gs"}},
				}},
				bson.M{"$project": bson.M{domdoc.KeyUser: 0}},
			},
			"as": tmp,
		}},
		{"$set": bson.M{f.Name: bson.M{"$map": bson.M{
			"input": guids,
			"as":    "g",
			"in": bson.M{"$ifNull": bson.A{
				bson.M{"$arrayElemAt": bson.A{
					bson.M{"$filter": bson.M{
						"input": "$" + tmp,
						"as":    "x",
						"cond":  bson.M{"$eq": bson.A{"$$x.guid", "$$g"}},
					}},
					0,
				}},
				bson.M{"guid": "$$g", "error": FileNotFound},
			}},
		}}}},
		{"$unset": tmp},
	}
}

// calculatedStages runs the declared lookups and computations of a calculated field,
// moves the final value onto the field and drops the temporaries.
func calculatedStages(f field.Field, user string) []bson.M {
	p := f.Pipeline
	if p == nil {
		return nil
	}

	var out []bson.M
	var temps []string
	for _, l := range p.Lookups {
		var match bson.M
		foreign := l.ForeignField
		if foreign == "" || foreign == domdoc.KeyID {
			if l.Multiple {
				match = bson.M{"$in": bson.A{"$" + domdoc.KeyID, bson.M{"$map": bson.M{
					"input": arrayOrEmpty("$$ref"),
					"as":    "r",
					"in":    toObjectID("$$r"),
				}}}}
			} else {
				match = bson.M{"$eq": bson.A{"$" + domdoc.KeyID, toObjectID("$$ref")}}
			}
		} else if l.Multiple {
			match = bson.M{"$in": bson.A{"$" + foreign, arrayOrEmpty("$$ref")}}
		} else {
			match = bson.M{"$eq": bson.A{"$" + foreign, "$$ref"}}
		}

		out = append(out, bson.M{"$lookup": bson.M{
			"from": db.CollectionData,
			"let":  bson.M{"ref": refValue("$" + l.LocalField)},
			"pipeline": bson.A{
				bson.M{"$match": bson.M{
					domdoc.KeyModel: l.From,
					domdoc.KeyUser:  user,
					"$expr":         match,
				}},
				bson.M{"$project": bson.M{domdoc.KeyUser: 0}},
			},
			"as": l.As,
		}})
		if !l.Multiple {
			out = append(out, bson.M{"$unwind": bson.M{
				"path":                       "$" + l.As,
				"preserveNullAndEmptyArrays": true,
			}})
		}
		temps = append(temps, l.As)
	}

	if len(p.AddFields) > 0 {
		add := bson.M{}
		for k, v := range p.AddFields {
			add[k] = v
			temps = append(temps, k)
		}
		out = append(out, bson.M{"$addFields": add})
	}

	if p.Final != f.Name {
		out = append(out, bson.M{"$set": bson.M{f.Name: "$" + p.Final}})
	}

	unset := bson.A{}
	seen := map[string]bool{f.Name: true}
	slices.Sort(temps)
	for _, t := range temps {
		if !seen[t] {
			seen[t] = true
			unset = append(unset, t)
		}
	}
	if len(unset) > 0 {
		out = append(out, bson.M{"$unset": unset})
	}
	return out
}

// collapse turns a joined array into its first element or null.
func collapse(name string) bson.M {
	return bson.M{"$set": bson.M{name: bson.M{"$ifNull": bson.A{
		bson.M{"$arrayElemAt": bson.A{"$" + name, 0}},
		nil,
	}}}}
}

func arrayOrEmpty(ref string) bson.M {
	return bson.M{"$cond": bson.A{bson.M{"$isArray": ref}, ref, bson.A{}}}
}

// toObjectID converts a stored hex id. Values that are not ids match nothing.
func toObjectID(ref string) bson.M {
	return bson.M{"$convert": bson.M{
		"input":   ref,
		"to":      "objectId",
		"onError": nil,
		"onNull":  nil,
	}}
}

// refValue reads ids from a field that may already hold joined documents.
func refValue(ref string) bson.M {
	idOf := func(v string) bson.M {
		return bson.M{"$cond": bson.A{
			bson.M{"$eq": bson.A{bson.M{"$type": v}, "object"}},
			v + "." + domdoc.KeyID,
			v,
		}}
	}
	return bson.M{"$cond": bson.A{
		bson.M{"$isArray": ref},
		bson.M{"$map": bson.M{"input": ref, "as": "e", "in": idOf("$$e")}},
		idOf(ref),
	}}
}

// withUser copies q, replacing UserPlaceholder values with user.
func withUser(q map[string]any, user string) bson.M {
	out := bson.M{}
	for k, v := range q {
		out[k] = replaceUser(v, user)
	}
	return out
}

func replaceUser(v any, user string) any {
	switch t := v.(type) {
	case string:
		if t == UserPlaceholder {
			return user
		}
		return t
	case map[string]any:
		return withUser(t, user)
	case bson.M:
		return withUser(t, user)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = replaceUser(e, user)
		}
		return out
	case bson.A:
		out := make(bson.A, len(t))
		for i, e := range t {
			out[i] = replaceUser(e, user)
		}
		return out
	}
	return v
}
