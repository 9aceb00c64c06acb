package export

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/kailas-cloud/dataforge/internal/domain"
	dommodel "github.com/kailas-cloud/dataforge/internal/domain/model"
	"github.com/kailas-cloud/dataforge/internal/domain/model/field"
	"github.com/kailas-cloud/dataforge/internal/domain/search/request"
)

var testUser = domain.User{ID: "u1"}

type mockRepo struct {
	stored    map[string]int
	failFor   string
	pipelines [][]bson.M
}

func (m *mockRepo) Aggregate(_ context.Context, p []bson.M, _ time.Duration) ([]map[string]any, error) {
	m.pipelines = append(m.pipelines, p)
	name, _ := p[0]["$match"].(bson.M)["model"].(string)
	if name == m.failFor {
		return nil, domain.ErrTimeout
	}
	limit := 0
	for _, st := range p {
		if v, ok := st["$limit"].(int); ok {
			limit = v
		}
	}
	n := min(m.stored[name], limit)
	out := make([]map[string]any, n)
	for i := range out {
		out[i] = map[string]any{"n": i}
	}
	return out, nil
}

type mockBuilder struct {
	buildFn func(req request.Request) ([]bson.M, error)
}

func (m *mockBuilder) Build(_ context.Context, _ string, req request.Request) ([]bson.M, error) {
	if m.buildFn != nil {
		return m.buildFn(req)
	}
	return []bson.M{{"$match": bson.M{"model": req.Model()}}}, nil
}

type mockModels struct {
	models []dommodel.Model
}

func (m *mockModels) Get(_ context.Context, _ string, name string) (dommodel.Model, error) {
	for _, md := range m.models {
		if md.Name() == name {
			return md, nil
		}
	}
	return dommodel.Model{}, domain.ErrModelNotFound
}

func (m *mockModels) List(_ context.Context, _ string) ([]dommodel.Model, error) {
	return m.models, nil
}

func newModels(t *testing.T, names ...string) *mockModels {
	t.Helper()
	out := &mockModels{}
	for _, n := range names {
		md, err := dommodel.New("u1", dommodel.Spec{
			Name:   n,
			Fields: []field.Field{{Name: "title", Type: field.String}},
		})
		if err != nil {
			t.Fatalf("model %s: %v", n, err)
		}
		out.models = append(out.models, md)
	}
	return out
}

func TestExport_ShrinkingBudget(t *testing.T) {
	repo := &mockRepo{stored: map[string]int{"A": 4, "B": 10, "C": 3}}
	svc := New(repo, &mockBuilder{}, newModels(t, "A", "B", "C"), 100, zap.NewNop())

	res, err := svc.Export(context.Background(), testUser, Request{Models: []string{"A", "B", "C"}, Limit: 9})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	got := fmt.Sprint(len(res.Data["A"]), len(res.Data["B"]), len(res.Data["C"]))
	if got != "4 5 0" {
		t.Errorf("counts = %s, want 4 5 0", got)
	}
	if res.Data["C"] == nil {
		t.Error("exhausted model should export an empty list")
	}
	if len(repo.pipelines) != 2 {
		t.Errorf("queries = %d, want 2", len(repo.pipelines))
	}
	last := repo.pipelines[1]
	if last[len(last)-2]["$limit"] != 5 {
		t.Errorf("second model limit stage = %v", last[len(last)-2])
	}
	if _, ok := last[len(last)-1]["$project"]; !ok {
		t.Error("internal keys should be projected out")
	}
}

func TestExport_ServiceCap(t *testing.T) {
	repo := &mockRepo{stored: map[string]int{"A": 50}}
	svc := New(repo, &mockBuilder{}, newModels(t, "A"), 7, zap.NewNop())

	res, err := svc.Export(context.Background(), testUser, Request{Models: []string{"A"}, Limit: 1000})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(res.Data["A"]) != 7 {
		t.Errorf("exported %d, want 7", len(res.Data["A"]))
	}
}

func TestExport_PartialFailure(t *testing.T) {
	repo := &mockRepo{stored: map[string]int{"A": 2, "B": 2, "C": 2}, failFor: "B"}
	svc := New(repo, &mockBuilder{}, newModels(t, "A", "B", "C"), 0, zap.NewNop())

	res, err := svc.Export(context.Background(), testUser, Request{Models: []string{"A", "B", "C"}})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(res.Data["A"]) != 2 || len(res.Data["C"]) != 2 {
		t.Errorf("data = %v", res.Data)
	}
	if _, ok := res.Data["B"]; ok {
		t.Error("failed model should have no data entry")
	}
	if res.Errors["B"] == "" || len(res.Errors) != 1 {
		t.Errorf("errors = %v", res.Errors)
	}
}

func TestExport_AllModelsWithDefinitions(t *testing.T) {
	repo := &mockRepo{stored: map[string]int{"A": 1, "B": 1}}
	var depths []int
	builder := &mockBuilder{buildFn: func(req request.Request) ([]bson.M, error) {
		depths = append(depths, req.Depth())
		return []bson.M{{"$match": bson.M{"model": req.Model()}}}, nil
	}}
	svc := New(repo, builder, newModels(t, "A", "B"), 0, zap.NewNop())

	res, err := svc.Export(context.Background(), testUser, Request{Depth: 2, IncludeModels: true})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if fmt.Sprint(res.Order) != "[A B]" {
		t.Errorf("order = %v", res.Order)
	}
	if len(res.Models) != 2 || res.Models[0].Name != "A" {
		t.Errorf("models = %+v", res.Models)
	}
	if fmt.Sprint(depths) != "[2 2]" {
		t.Errorf("depths = %v", depths)
	}
}

func TestExport_UnknownModelReported(t *testing.T) {
	repo := &mockRepo{stored: map[string]int{"A": 1}}
	builder := &mockBuilder{buildFn: func(req request.Request) ([]bson.M, error) {
		if req.Model() == "Ghost" {
			return nil, domain.ErrModelNotFound
		}
		return []bson.M{{"$match": bson.M{"model": req.Model()}}}, nil
	}}
	svc := New(repo, builder, newModels(t, "A"), 0, zap.NewNop())

	res, err := svc.Export(context.Background(), testUser, Request{Models: []string{"Ghost", "A", "A"}})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if res.Errors["Ghost"] == "" || len(res.Data["A"]) != 1 || len(res.Order) != 2 {
		t.Errorf("result = %+v", res)
	}
}

func TestExport_PermissionDenied(t *testing.T) {
	svc := New(&mockRepo{}, &mockBuilder{}, newModels(t), 0, zap.NewNop())
	user := domain.User{ID: "u1", Capabilities: []string{domain.ActionDataRead}}
	if _, err := svc.Export(context.Background(), user, Request{}); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Errorf("err = %v", err)
	}
}
