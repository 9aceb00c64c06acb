package modelcache

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/dataforge/internal/domain"
	dommodel "github.com/kailas-cloud/dataforge/internal/domain/model"
	"github.com/kailas-cloud/dataforge/internal/domain/model/field"
)

type mockRepo struct {
	models   map[string]dommodel.Model
	getCalls int
	lsCalls  int
}

func (m *mockRepo) Create(_ context.Context, md dommodel.Model) (dommodel.Model, error) {
	m.models[md.Name()] = md
	return md, nil
}

func (m *mockRepo) Get(_ context.Context, _, name string) (dommodel.Model, error) {
	m.getCalls++
	md, ok := m.models[name]
	if !ok {
		return dommodel.Model{}, domain.ErrModelNotFound
	}
	return md, nil
}

func (m *mockRepo) List(_ context.Context, _ string) ([]dommodel.Model, error) {
	m.lsCalls++
	out := make([]dommodel.Model, 0, len(m.models))
	for _, md := range m.models {
		out = append(out, md)
	}
	return out, nil
}

func (m *mockRepo) Update(_ context.Context, md dommodel.Model) error {
	m.models[md.Name()] = md
	return nil
}

func (m *mockRepo) Delete(_ context.Context, _, name string) error {
	delete(m.models, name)
	return nil
}

func (m *mockRepo) SyncIndexes(context.Context, dommodel.Model) error { return nil }
func (m *mockRepo) DropIndexes(context.Context, string, string) error { return nil }

func newTestCache(t *testing.T) (*Cache, *mockRepo, *prometheus.CounterVec) {
	t.Helper()
	inner := &mockRepo{models: map[string]dommodel.Model{}}
	total := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_schema_cache_total"}, []string{"result"})
	return New(inner, 0, total, zap.NewNop()), inner, total
}

func person(t *testing.T, desc string) dommodel.Model {
	t.Helper()
	m, err := dommodel.New("u1", dommodel.Spec{
		Name:        "Person",
		Description: desc,
		Fields:      []field.Field{{Name: "name", Type: field.String}},
	})
	if err != nil {
		t.Fatalf("person: %v", err)
	}
	return m
}
