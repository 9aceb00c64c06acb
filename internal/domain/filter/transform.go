package filter

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type arityKind int

const (
	// unary transforms take the field (or nested transform) as their only operand.
	unary arityKind = iota + 1
	// nary transforms take the field first, then the explicit args.
	nary
	// named transforms take one document of named operands, the field first.
	named
)

// namedOperands lists the operand names of named transforms in argument order.
var namedOperands = map[string][]string{
	"$trim":         {"input"},
	"$dateAdd":      {"startDate", "unit", "amount"},
	"$dateSubtract": {"startDate", "unit", "amount"},
}

// transformArity is the explicit operand contract used by both directions.
// Reversal never infers arity from argument count.
var transformArity = map[string]arityKind{
	"$year":       unary,
	"$month":      unary,
	"$dayOfMonth": unary,
	"$dayOfWeek":  unary,
	"$dayOfYear":  unary,
	"$week":       unary,
	"$hour":       unary,
	"$minute":     unary,
	"$second":     unary,
	"$toString":   unary,
	"$toLower":    unary,
	"$toUpper":    unary,
	"$toInt":      unary,
	"$toLong":     unary,
	"$toDouble":   unary,
	"$toDecimal":  unary,
	"$toDate":     unary,
	"$toBool":     unary,
	"$strLenCP":   unary,
	"$abs":        unary,
	"$ceil":       unary,
	"$floor":      unary,
	"$sqrt":       unary,
	"$size":       unary,
	"$trim":       named,

	"$add":          nary,
	"$subtract":     nary,
	"$multiply":     nary,
	"$divide":       nary,
	"$mod":          nary,
	"$pow":          nary,
	"$round":        nary,
	"$concat":       nary,
	"$substrCP":     nary,
	"$indexOfCP":    nary,
	"$split":        nary,
	"$arrayElemAt":  nary,
	"$dateAdd":      named,
	"$dateSubtract": named,
	"$ifNull":       nary,
}

func arity(op string) (arityKind, bool) {
	a, ok := transformArity[op]
	return a, ok
}

// IsTransformOp reports whether op is a known transform operator.
func IsTransformOp(op string) bool {
	_, ok := transformArity[op]
	return ok
}

func asArray(v any) ([]any, bool) {
	switch a := v.(type) {
	case []any:
		return a, true
	case bson.A:
		return []any(a), true
	case []string:
		out := make([]any, len(a))
		for i, s := range a {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case bson.M:
		return map[string]any(m), true
	case bson.D:
		out := make(map[string]any, len(m))
		for _, e := range m {
			out[e.Key] = e.Value
		}
		return out, true
	}
	return nil, false
}

// singleKey returns the only key of a one-entry map.
func singleKey(m map[string]any) (string, any, bool) {
	if len(m) != 1 {
		return "", nil, false
	}
	for k, v := range m {
		return k, v, true
	}
	return "", nil, false
}

func isUndefined(v any) bool {
	_, ok := v.(primitive.Undefined)
	return ok
}
