package filter

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/dataforge/internal/domain"
)

func reconstructErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrReconstruction, fmt.Sprintf(format, args...))
}

// Decompile maps an expression produced by Compile back to a filter node.
// It fails with domain.ErrReconstruction instead of guessing when the
// expression has no unambiguous node form.
func Decompile(expr any) (Node, error) {
	m, ok := asMap(expr)
	if !ok {
		return Node{}, reconstructErr("expression must be an object, got %T", expr)
	}
	if len(m) == 0 {
		return And(), nil
	}
	key, val, ok := singleKey(m)
	if !ok {
		return Node{}, reconstructErr("expression must have exactly one operator, got %d keys", len(m))
	}

	switch key {
	case "$and", "$or", OpNor:
		return decompileGroup(key, val)
	case "$not":
		return decompileNot(val)
	case OpFind:
		return decompileFind(val)
	case "$eq", "$ne":
		if n, ok, err := decompileExists(key, val); ok || err != nil {
			return n, err
		}
		return decompileComparison(Op(key), val)
	case "$gt", "$gte", "$lt", "$lte", "$in":
		return decompileComparison(Op(key), val)
	case "$regexMatch":
		return decompileRegex(val)
	}

	if IsTransformOp(key) {
		path, t, err := decompileOperand(m)
		if err != nil {
			return Node{}, err
		}
		return LeafNode(Leaf{Path: path, Transform: t}), nil
	}
	return Node{}, reconstructErr("unknown operator %q", key)
}

func decompileGroup(key string, val any) (Node, error) {
	arr, ok := asArray(val)
	if !ok {
		return Node{}, reconstructErr("%s requires an array", key)
	}
	children := make([]Node, 0, len(arr))
	for i, e := range arr {
		c, err := Decompile(e)
		if err != nil {
			return Node{}, fmt.Errorf("%s[%d]: %w", key, i, err)
		}
		children = append(children, c)
	}
	switch key {
	case "$and":
		return And(children...), nil
	case "$or":
		return Or(children...), nil
	}
	return Nor(children...), nil
}

func decompileNot(val any) (Node, error) {
	if arr, ok := asArray(val); ok {
		if len(arr) != 1 {
			return Node{}, reconstructErr("$not takes one operand, got %d", len(arr))
		}
		inner, err := Decompile(arr[0])
		if err != nil {
			return Node{}, err
		}
		return Not(inner), nil
	}
	// {$not: {$in: ...}} is the compiled form of $nin.
	m, ok := asMap(val)
	if !ok {
		return Node{}, reconstructErr("$not operand must be an array or $in")
	}
	k, in, ok := singleKey(m)
	if !ok || k != "$in" {
		return Node{}, reconstructErr("$not operand must be an array or $in")
	}
	n, err := decompileComparison(OpIn, in)
	if err != nil {
		return Node{}, err
	}
	n.Leaf.Op = OpNin
	return n, nil
}

func decompileFind(val any) (Node, error) {
	body, ok := asMap(val)
	if !ok {
		return Node{}, reconstructErr("$find requires an object")
	}
	path, ok := body["path"].(string)
	if !ok || path == "" {
		return Node{}, reconstructErr("$find requires a path")
	}
	inner, err := Decompile(body["filter"])
	if err != nil {
		return Node{}, err
	}
	if inner.Kind != KindLeaf {
		return Node{}, reconstructErr("$find on %q wraps a %s, only leaves map back to a path", path, inner.Kind)
	}
	l := *inner.Leaf
	l.Path = append([]string{path}, l.Path...)
	return LeafNode(l), nil
}

func decompileExists(key string, val any) (Node, bool, error) {
	arr, ok := asArray(val)
	if !ok || len(arr) != 2 || arr[1] != missingType {
		return Node{}, false, nil
	}
	m, ok := asMap(arr[0])
	if !ok {
		return Node{}, false, nil
	}
	k, operand, ok := singleKey(m)
	if !ok || k != "$type" {
		return Node{}, false, nil
	}
	path, t, err := decompileOperand(operand)
	if err != nil {
		return Node{}, true, err
	}
	return LeafNode(Leaf{Path: path, Op: OpExists, Value: ValueOf(key == "$ne"), Transform: t}), true, nil
}

func decompileComparison(op Op, val any) (Node, error) {
	arr, ok := asArray(val)
	if !ok || len(arr) != 2 {
		return Node{}, reconstructErr("%s requires two operands", op)
	}
	path, t, err := decompileOperand(arr[0])
	if err != nil {
		return Node{}, err
	}
	return LeafNode(Leaf{Path: path, Op: op, Value: valueFrom(arr[1]), Transform: t}), nil
}

func decompileRegex(val any) (Node, error) {
	body, ok := asMap(val)
	if !ok {
		return Node{}, reconstructErr("$regexMatch requires an object")
	}
	path, t, err := decompileOperand(body["input"])
	if err != nil {
		return Node{}, err
	}
	return LeafNode(Leaf{Path: path, Op: OpRegex, Value: ValueOf(unliteral(body["regex"])), Transform: t}), nil
}

// decompileOperand recovers the field path and transform chain from a compared operand.
func decompileOperand(v any) ([]string, *Transform, error) {
	if ref, ok := fieldRef(v); ok {
		return []string{ref}, nil, nil
	}
	m, ok := asMap(v)
	if !ok {
		return nil, nil, reconstructErr("operand %v is neither a field nor a transform", v)
	}
	op, operand, ok := singleKey(m)
	if !ok {
		return nil, nil, reconstructErr("transform must have exactly one operator")
	}
	a, ok := arity(op)
	if !ok {
		return nil, nil, reconstructErr("unknown transform %q", op)
	}

	if a == unary {
		if arr, isArr := asArray(operand); isArr {
			if len(arr) != 1 {
				return nil, nil, reconstructErr("unary transform %q got %d operands", op, len(arr))
			}
			operand = arr[0]
		}
		if ref, ok := fieldRef(operand); ok {
			return []string{ref}, &Transform{Op: op}, nil
		}
		path, inner, err := decompileOperand(operand)
		if err != nil {
			return nil, nil, err
		}
		return path, &Transform{Op: op, Args: []any{inner}}, nil
	}

	if a == named {
		return decompileNamed(op, operand)
	}

	arr, ok := asArray(operand)
	if !ok || len(arr) == 0 {
		return nil, nil, reconstructErr("transform %q requires an operand list", op)
	}
	var args []any
	var path []string
	first := arr[0]
	if ref, ok := fieldRef(first); ok {
		path = []string{ref}
	} else {
		// A literal in first position could be an explicit arg or a rewritten field.
		if _, isMap := asMap(first); !isMap {
			return nil, nil, reconstructErr("transform %q: first operand %v is not the field", op, first)
		}
		p, inner, err := decompileOperand(first)
		if err != nil {
			return nil, nil, err
		}
		path = p
		args = append(args, inner)
	}
	for _, r := range arr[1:] {
		args = append(args, unliteral(r))
	}
	return path, &Transform{Op: op, Args: args}, nil
}

func decompileNamed(op string, operand any) ([]string, *Transform, error) {
	doc, ok := asMap(operand)
	names := namedOperands[op]
	if !ok || len(doc) != len(names) {
		return nil, nil, reconstructErr("transform %q requires the operands %v", op, names)
	}
	var args []any
	first, ok := doc[names[0]]
	if !ok {
		return nil, nil, reconstructErr("transform %q is missing %q", op, names[0])
	}
	path, inner, err := decompileOperand(first)
	if err != nil {
		return nil, nil, err
	}
	if inner != nil {
		args = append(args, inner)
	}
	for _, name := range names[1:] {
		v, ok := doc[name]
		if !ok {
			return nil, nil, reconstructErr("transform %q is missing %q", op, name)
		}
		args = append(args, unliteral(v))
	}
	return path, &Transform{Op: op, Args: args}, nil
}

func fieldRef(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || !strings.HasPrefix(s, "$") || strings.HasPrefix(s, "$$") || len(s) < 2 {
		return "", false
	}
	return s[1:], true
}

func valueFrom(v any) Value {
	if isUndefined(v) {
		return Undefined()
	}
	return ValueOf(unliteral(v))
}

func unliteral(v any) any {
	if arr, ok := asArray(v); ok {
		out := make([]any, len(arr))
		for i, e := range arr {
			out[i] = unliteral(e)
		}
		return out
	}
	if m, ok := asMap(v); ok {
		if k, inner, ok := singleKey(m); ok && k == "$literal" {
			return inner
		}
	}
	return v
}
