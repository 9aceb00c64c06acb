package filter

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

// Lower rewrites the $find and $nor markers left by Compile into operators the
// aggregation expression context accepts. It must run after the relation joins,
// when each $find path holds the joined document(s).
func Lower(expr any) any {
	var counter int
	return lower(expr, "$", &counter)
}

func lower(v any, prefix string, counter *int) any {
	if m, ok := asMap(v); ok {
		if k, body, ok := singleKey(m); ok {
			switch k {
			case "$literal":
				return bson.M{k: body}
			case OpFind:
				return lowerFind(body, prefix, counter)
			case OpNor:
				arr, _ := asArray(body)
				return bson.M{"$not": bson.A{bson.M{"$or": lowerArray(arr, prefix, counter)}}}
			}
		}
		out := make(bson.M, len(m))
		for k, e := range m {
			out[k] = lower(e, prefix, counter)
		}
		return out
	}
	if arr, ok := asArray(v); ok {
		return lowerArray(arr, prefix, counter)
	}
	if ref, ok := fieldRef(v); ok {
		return prefix + ref
	}
	return v
}

func lowerArray(arr []any, prefix string, counter *int) bson.A {
	out := make(bson.A, len(arr))
	for i, e := range arr {
		out[i] = lower(e, prefix, counter)
	}
	return out
}

func lowerFind(body any, prefix string, counter *int) any {
	m, ok := asMap(body)
	if !ok {
		return false
	}
	path, _ := m["path"].(string)
	name := fmt.Sprintf("r%d", *counter)
	*counter++

	input := prefix + path
	cond := lower(m["filter"], "$$"+name+".", counter)
	if cm, ok := asMap(cond); ok && len(cm) == 0 {
		cond = true
	}
	return bson.M{"$gt": bson.A{
		bson.M{"$size": bson.M{"$filter": bson.M{
			"input": asList(input),
			"as":    name,
			"cond":  cond,
		}}},
		0,
	}}
}

// asList normalizes a single joined document (or null) into an array.
func asList(ref string) bson.M {
	return bson.M{"$cond": bson.M{
		"if":   bson.M{"$isArray": ref},
		"then": ref,
		"else": bson.M{"$cond": bson.M{
			"if":   bson.M{"$eq": bson.A{bson.M{"$type": ref}, "object"}},
			"then": bson.A{ref},
			"else": bson.A{},
		}},
	}}
}

// FindDepth returns the deepest nesting of $find markers in expr.
func FindDepth(expr any) int {
	if m, ok := asMap(expr); ok {
		best := 0
		for k, e := range m {
			d := FindDepth(e)
			if k == OpFind {
				if body, ok := asMap(e); ok {
					d = 1 + FindDepth(body["filter"])
				}
			}
			if d > best {
				best = d
			}
		}
		return best
	}
	if arr, ok := asArray(expr); ok {
		best := 0
		for _, e := range arr {
			if d := FindDepth(e); d > best {
				best = d
			}
		}
		return best
	}
	return 0
}
