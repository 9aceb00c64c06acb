package condition

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/kailas-cloud/dataforge/internal/domain/model/field"
)

// kind is the comparison domain a field type maps to.
type kind int

const (
	kindString kind = iota
	kindNumber
	kindBool
	kindTime
)

func kindOf(t field.Type) kind {
	switch t {
	case field.Number:
		return kindNumber
	case field.Boolean:
		return kindBool
	case field.Date, field.DateTime:
		return kindTime
	}
	return kindString
}

// inferKind picks a comparison domain from a value when no field type is known.
func inferKind(v any) kind {
	switch v.(type) {
	case int, int32, int64, float32, float64:
		return kindNumber
	case bool:
		return kindBool
	case time.Time, primitive.DateTime:
		return kindTime
	}
	return kindString
}

// normalized is a value converted into its comparison domain.
type normalized struct {
	k     kind
	s     string
	f     float64
	b     bool
	t     time.Time
	isNil bool
}

func normalize(k kind, v any) (normalized, bool) {
	if v == nil {
		return normalized{k: k, isNil: true}, true
	}
	if m, ok := asMap(v); ok {
		// Populated relations compare by id.
		if id, has := m["_id"]; has {
			v = id
		}
	}
	switch k {
	case kindNumber:
		f, ok := toFloat(v)
		return normalized{k: k, f: f}, ok
	case kindBool:
		return normalized{k: k, b: toBool(v)}, true
	case kindTime:
		t, ok := toTime(v)
		return normalized{k: k, t: t}, ok
	}
	return normalized{k: k, s: toString(v)}, true
}

func (a normalized) compare(b normalized) (int, bool) {
	if a.isNil || b.isNil {
		if a.isNil && b.isNil {
			return 0, true
		}
		return 0, false
	}
	switch a.k {
	case kindNumber:
		switch {
		case a.f < b.f:
			return -1, true
		case a.f > b.f:
			return 1, true
		}
		return 0, true
	case kindBool:
		if a.b == b.b {
			return 0, true
		}
		return 0, false
	case kindTime:
		return a.t.Compare(b.t), true
	}
	return strings.Compare(a.s, b.s), true
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case bool:
		if x {
			f = 1
		}
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = p
	default:
		return 0, false
	}
	if math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

func toBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return strings.EqualFold(strings.TrimSpace(x), "true")
	}
	f, ok := toFloat(v)
	return ok && f != 0
}

var timeLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04", "2006-01-02"}

func toTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case primitive.DateTime:
		return x.Time(), true
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, x); err == nil {
				return t, true
			}
		}
		return time.Time{}, false
	}
	if f, ok := toFloat(v); ok {
		return time.UnixMilli(int64(f)), true
	}
	return time.Time{}, false
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case primitive.ObjectID:
		return x.Hex()
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}

// splitCSV turns "a, b,c" into its trimmed parts.
func splitCSV(s string) []any {
	parts := strings.Split(s, ",")
	out := make([]any, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
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
	case []map[string]any:
		out := make([]any, len(a))
		for i, m := range a {
			out[i] = m
		}
		return out, true
	}
	return nil, false
}

// lookup resolves a dotted path in record.
func lookup(record map[string]any, path string) (any, bool) {
	var cur any = record
	for _, seg := range strings.Split(path, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
