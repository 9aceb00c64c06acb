package condition

import (
	"testing"

	"github.com/kailas-cloud/dataforge/internal/domain"
	"github.com/kailas-cloud/dataforge/internal/domain/model"
	"github.com/kailas-cloud/dataforge/internal/domain/model/field"
)

func personModel() model.Model {
	return model.Reconstruct("", "u1", model.Spec{
		Name: "Person",
		Fields: []field.Field{
			{Name: "name", Type: field.String},
			{Name: "age", Type: field.Number},
			{Name: "active", Type: field.Boolean},
			{Name: "born", Type: field.Date},
			{Name: "company", Type: field.Relation, RelationTo: "Company"},
			{Name: "tags", Type: field.Array, ItemsType: field.String},
		},
	}, 0, 0)
}

func companyModel() model.Model {
	return model.Reconstruct("", "u1", model.Spec{
		Name:   "Company",
		Fields: []field.Field{{Name: "title", Type: field.String}, {Name: "size", Type: field.Number}},
	}, 0, 0)
}

func TestEvaluate_NoModel(t *testing.T) {
	e := New(nil)
	tests := []struct {
		name string
		cond any
		want bool
	}{
		{"eq", map[string]any{"$eq": []any{"a", "a"}}, true},
		{"gt numbers", map[string]any{"$gt": []any{5.0, 3.0}}, true},
		{"in", map[string]any{"$in": []any{"b", []any{"a", "b"}}}, true},
		{"and", map[string]any{"$and": []any{true, false}}, false},
		{"or", map[string]any{"$or": []any{true, false}}, true},
		{"unknown op", map[string]any{"$where": []any{1, 1}}, false},
		{"not a tuple", map[string]any{"$eq": []any{1}}, false},
		{"two keys", map[string]any{"$eq": []any{1, 1}, "$ne": []any{1, 2}}, false},
		{"field leaf", map[string]any{"name": "Ann"}, false},
		{"scalar", "x", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Evaluate(nil, tt.cond, nil, nil, domain.User{})
			if got != tt.want {
				t.Errorf("Evaluate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluate_WithModel(t *testing.T) {
	e := New(nil)
	p := personModel()
	models := []model.Model{p, companyModel()}
	record := map[string]any{
		"name":    "Ann",
		"age":     30.0,
		"active":  "TRUE",
		"born":    "1994-05-01",
		"tags":    []any{"vip", "new"},
		"company": []any{map[string]any{"_id": "c1", "title": "Acme", "size": 50.0}},
	}

	tests := []struct {
		name string
		cond any
		want bool
	}{
		{"empty", map[string]any{}, true},
		{"bare scalar", map[string]any{"name": "Ann"}, true},
		{"operator object", map[string]any{"age": map[string]any{"$gte": "18", "$lt": 65}}, true},
		{"number NaN operand", map[string]any{"age": map[string]any{"$gt": "abc"}}, false},
		{"boolean case insensitive", map[string]any{"active": true}, true},
		{"date compare", map[string]any{"born": map[string]any{"$lt": "2000-01-01"}}, true},
		{"csv in", map[string]any{"name": map[string]any{"$in": "Bob, Ann"}}, true},
		{"array any", map[string]any{"tags": "vip"}, true},
		{"array nin", map[string]any{"tags": map[string]any{"$nin": []any{"old"}}}, true},
		{"agg style", map[string]any{"$eq": []any{"$name", "Ann"}}, true},
		{"and empty", map[string]any{"$and": []any{}}, true},
		{"or empty", map[string]any{"$or": []any{}}, false},
		{"nor empty", map[string]any{"$nor": []any{}}, true},
		{"nor", map[string]any{"$nor": []any{map[string]any{"name": "Bob"}}}, true},
		{"not", map[string]any{"$not": map[string]any{"name": "Ann"}}, false},
		{"exists", map[string]any{"$exists": "name"}, true},
		{"exists missing", map[string]any{"$exists": "email"}, false},
		{"find relation", map[string]any{"$find": map[string]any{
			"path":   "company",
			"filter": map[string]any{"$$this.size": map[string]any{"$gt": 10}},
		}}, true},
		{"find agg this", map[string]any{"$find": map[string]any{
			"path":   "company",
			"filter": map[string]any{"$eq": []any{"$$this.title", "Other"}},
		}}, false},
		{"find scalar array", map[string]any{"$find": map[string]any{
			"path":   "tags",
			"filter": map[string]any{"$eq": []any{"$$this", "new"}},
		}}, true},
		{"regex", map[string]any{"name": map[string]any{"$regex": "^A"}}, true},
		{"unknown op matches", map[string]any{"$whatever": 1}, true},
		{"unknown field op matches", map[string]any{"name": map[string]any{"$near": 1}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Evaluate(&p, tt.cond, record, models, domain.User{ID: "u1"})
			if got != tt.want {
				t.Errorf("Evaluate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluate_RegexSafety(t *testing.T) {
	e := New(nil)
	p := personModel()
	long := make([]byte, MaxPatternLength+1)
	for i := range long {
		long[i] = 'a'
	}
	cond := map[string]any{"name": map[string]any{"$regex": string(long)}}
	if e.Evaluate(&p, cond, map[string]any{"name": string(long)}, nil, domain.User{}) {
		t.Error("oversized pattern must not match")
	}
	bad := map[string]any{"name": map[string]any{"$regex": "(a"}}
	if e.Evaluate(&p, bad, map[string]any{"name": "a"}, nil, domain.User{}) {
		t.Error("invalid pattern must not match")
	}
}

func TestEvaluate_UserPlaceholder(t *testing.T) {
	e := New(nil)
	p := personModel()
	cond := map[string]any{"name": UserPlaceholder}
	if !e.Evaluate(&p, cond, map[string]any{"name": "u7"}, nil, domain.User{ID: "u7"}) {
		t.Error("placeholder should resolve to the user id")
	}
}
