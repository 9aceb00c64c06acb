package filter

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/kailas-cloud/dataforge/internal/domain"
)

// Marker operators emitted by Compile and lowered by Lower.
const (
	OpFind = "$find"
	OpNor  = "$nor"
)

// missingType is the $type result for absent fields.
const missingType = "missing"

// Compile translates n into an aggregation expression.
// An always-true filter compiles to an empty bson.M.
// Relation paths compile to $find markers which Lower resolves once the joins exist.
func Compile(n Node) (bson.M, error) {
	if err := n.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	return compileNode(n)
}

func compileNode(n Node) (bson.M, error) {
	switch n.Kind {
	case KindAnd, KindOr, KindNor:
		parts := make(bson.A, 0, len(n.Children))
		for _, c := range n.Children {
			e, err := compileNode(c)
			if err != nil {
				return nil, err
			}
			if len(e) == 0 {
				// An always-true child decides $or and $nor outright.
				switch n.Kind {
				case KindOr:
					return bson.M{}, nil
				case KindNor:
					return matchNone(), nil
				}
				continue
			}
			parts = append(parts, e)
		}
		if len(parts) == 0 {
			if n.Kind == KindOr {
				return matchNone(), nil
			}
			return bson.M{}, nil
		}
		return bson.M{n.Kind.String(): parts}, nil
	case KindNot:
		inner, err := compileNode(*n.Inner)
		if err != nil {
			return nil, err
		}
		return bson.M{"$not": bson.A{inner}}, nil
	case KindLeaf:
		return compileLeaf(*n.Leaf)
	}
	return nil, fmt.Errorf("unknown node kind %d", n.Kind)
}

func compileLeaf(l Leaf) (bson.M, error) {
	if len(l.Path) == 0 {
		return bson.M{}, nil
	}
	if len(l.Path) > 1 {
		rest := l
		rest.Path = l.Path[1:]
		inner, err := compileLeaf(rest)
		if err != nil {
			return nil, err
		}
		return bson.M{OpFind: bson.M{"path": l.Path[0], "filter": inner}}, nil
	}

	var input any = "$" + l.Path[0]
	if l.Transform != nil {
		t, err := compileTransform(l.Transform, input)
		if err != nil {
			return nil, err
		}
		input = t
	}

	if l.Op == "" {
		m, ok := input.(bson.M)
		if !ok {
			return nil, fmt.Errorf("leaf %q has neither op nor transform", strings.Join(l.Path, "."))
		}
		return m, nil
	}

	switch l.Op {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn:
		return bson.M{string(l.Op): bson.A{input, literal(l.Value)}}, nil
	case OpNin:
		return bson.M{"$not": bson.M{"$in": bson.A{input, literal(l.Value)}}}, nil
	case OpExists:
		op := "$eq"
		if b, _ := l.Value.Get().(bool); b {
			op = "$ne"
		}
		return bson.M{op: bson.A{bson.M{"$type": input}, missingType}}, nil
	case OpRegex:
		return bson.M{"$regexMatch": bson.M{"input": input, "regex": bson.M{"$literal": l.Value.Get()}}}, nil
	}
	return nil, fmt.Errorf("unsupported operator %q", l.Op)
}

func compileTransform(t *Transform, ref any) (any, error) {
	a, ok := arity(t.Op)
	if !ok {
		return nil, fmt.Errorf("unsupported transform %q", t.Op)
	}
	input := ref
	rest := t.Args
	if len(rest) > 0 && isTransform(rest[0]) {
		nested, err := compileTransform(rest[0].(*Transform), ref)
		if err != nil {
			return nil, err
		}
		input = nested
		rest = rest[1:]
	}
	if a == unary {
		return bson.M{t.Op: input}, nil
	}
	if a == named {
		names := namedOperands[t.Op]
		if len(rest) != len(names)-1 {
			return nil, fmt.Errorf("transform %q takes %d arguments, got %d", t.Op, len(names)-1, len(rest))
		}
		doc := bson.M{names[0]: input}
		for i, r := range rest {
			doc[names[i+1]] = literalValue(r)
		}
		return bson.M{t.Op: doc}, nil
	}
	args := bson.A{input}
	for _, r := range rest {
		args = append(args, literalValue(r))
	}
	return bson.M{t.Op: args}, nil
}

func literal(v Value) any {
	if v.IsUndefined() {
		return primitive.Undefined{}
	}
	return literalValue(v.Get())
}

// matchNone is the always-false expression. It decompiles to Not(And()).
func matchNone() bson.M {
	return bson.M{"$not": bson.A{bson.M{}}}
}

// literalValue protects user strings and documents that would otherwise be
// evaluated as field references or expressions.
func literalValue(v any) any {
	switch x := v.(type) {
	case map[string]any, bson.M, bson.D:
		return bson.M{"$literal": x}
	case string:
		if strings.HasPrefix(x, "$") {
			return bson.M{"$literal": x}
		}
		return x
	case []any, bson.A:
		arr, _ := asArray(x)
		out := make(bson.A, len(arr))
		for i, e := range arr {
			out[i] = literalValue(e)
		}
		return out
	}
	return v
}
