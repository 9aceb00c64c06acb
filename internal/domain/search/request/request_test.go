package request

import (
	"strings"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
)

func TestNew_Defaults(t *testing.T) {
	r, err := New(Params{Model: "Person"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Page() != 1 || r.Limit() != DefaultLimit || r.Depth() != DefaultDepth {
		t.Errorf("page/limit/depth = %d/%d/%d", r.Page(), r.Limit(), r.Depth())
	}
	if r.Position() != PositionEnd {
		t.Errorf("Position() = %q, want end", r.Position())
	}
	if !r.Filter().IsEmpty() {
		t.Error("Filter() should be empty")
	}
}

func TestNew_ClampsLimit(t *testing.T) {
	r, _ := New(Params{Model: "Person", Limit: MaxLimit + 1, Page: 3})
	if r.Limit() != MaxLimit {
		t.Errorf("Limit() = %d, want %d", r.Limit(), MaxLimit)
	}
	if r.Skip() != 2*MaxLimit {
		t.Errorf("Skip() = %d", r.Skip())
	}
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name string
		p    Params
		want string
	}{
		{"no model", Params{}, "model is required"},
		{"bad position", Params{Model: "A", Position: "middle"}, "position"},
		{"lookup stage", Params{Model: "A", Stages: []bson.M{{"$lookup": bson.M{}}}}, "not allowed"},
		{"out stage", Params{Model: "A", Stages: []bson.M{{"$out": "x"}}}, "not allowed"},
		{"lookup nested in facet", Params{Model: "A", Stages: []bson.M{{"$facet": bson.M{
			"x": bson.A{bson.M{"$lookup": bson.M{"from": "data", "pipeline": bson.A{}}}},
		}}}}, "not allowed"},
		{"union nested in group", Params{Model: "A", Stages: []bson.M{{"$group": bson.M{
			"_id": bson.M{"$unionWith": "data"},
		}}}}, "$unionWith is not allowed"},
		{"facet stage", Params{Model: "A", Stages: []bson.M{{"$facet": bson.M{"x": bson.A{}}}}}, "$facet is not allowed"},
		{"function in stage", Params{Model: "A", Stages: []bson.M{{"$addFields": bson.M{
			"y": bson.M{"$function": bson.M{"body": "function() { return 1 }", "args": bson.A{}, "lang": "js"}},
		}}}}, "$function is not allowed"},
		{"accumulator in stage", Params{Model: "A", Stages: []bson.M{{"$group": bson.M{
			"_id": nil, "y": bson.M{"$accumulator": bson.M{}},
		}}}}, "$accumulator is not allowed"},
		{"where in raw filter", Params{Model: "A", Filter: RawFilter(map[string]any{
			"$where": "sleep(10000) || true",
		})}, "$where is not allowed"},
		{"where nested in raw filter", Params{Model: "A", Filter: RawFilter(map[string]any{
			"$or": []any{map[string]any{"a": 1}, map[string]any{"$where": "true"}},
		})}, "$where is not allowed"},
		{"multi key stage", Params{Model: "A", Stages: []bson.M{{"$match": bson.M{}, "$limit": 1}}}, "exactly one"},
		{"empty sort", Params{Model: "A", Sort: []SortKey{{}}}, "sort field"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.p)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestNew_AllowsPlainStagesAndFilters(t *testing.T) {
	_, err := New(Params{
		Model:  "A",
		Filter: RawFilter(map[string]any{"name": map[string]any{"$regex": "^A"}}),
		Stages: []bson.M{
			{"$addFields": bson.M{"y": bson.M{"$add": bson.A{"$x", 1}}}},
			{"$group": bson.M{"_id": "$y", "n": bson.M{"$sum": 1}}},
		},
	})
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParseSort(t *testing.T) {
	keys, err := ParseSort("name:ASC, age:desc,city")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []SortKey{{Field: "name"}, {Field: "age", Desc: true}, {Field: "city"}}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v", keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %v, want %v", i, keys[i], want[i])
		}
	}
	if _, err := ParseSort("name:UP"); err == nil {
		t.Error("expected error for bad direction")
	}
}

func TestParseIDs(t *testing.T) {
	ids := ParseIDs(" a, ,b,")
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("ParseIDs = %v", ids)
	}
}

func TestParseFilter(t *testing.T) {
	node, err := ParseFilter(map[string]any{"$and": []any{
		map[string]any{"path": []any{"name"}, "op": "$eq", "value": "Ann"},
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := node.Node(); !ok {
		t.Error("strict node should parse as node")
	}

	raw, err := ParseFilter(map[string]any{"$or": []any{
		map[string]any{"field": map[string]any{"$regex": "a"}},
		map[string]any{"field2": "b"},
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := raw.Node(); ok || raw.Raw() == nil {
		t.Error("query syntax should fall back to raw")
	}

	if _, err := ParseFilter("x"); err == nil {
		t.Error("expected error for non-object filter")
	}
}
