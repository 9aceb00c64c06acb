package document

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/kailas-cloud/dataforge/internal/domain"
	domdoc "github.com/kailas-cloud/dataforge/internal/domain/document"
	dommodel "github.com/kailas-cloud/dataforge/internal/domain/model"
	"github.com/kailas-cloud/dataforge/internal/events"
)

// fakeRepo is an in-memory Repository for a single user.
type fakeRepo struct {
	mu       sync.Mutex
	docs     map[string]domdoc.Document
	order    []string
	inserts  int
	replaces int

	insertErr error
	findErr   error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{docs: map[string]domdoc.Document{}}
}

// seed stores a document directly and returns its id.
func (r *fakeRepo) seed(model string, data map[string]any) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := primitive.NewObjectID().Hex()
	d, _ := domdoc.New(model, "u1", data)
	r.docs[id] = d.WithData(data).WithID(id)
	r.order = append(r.order, id)
	return id
}

func (r *fakeRepo) byModel(model string) []domdoc.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domdoc.Document
	for _, id := range r.order {
		if d, ok := r.docs[id]; ok && d.Model() == model {
			out = append(out, d)
		}
	}
	return out
}

func (r *fakeRepo) Insert(_ context.Context, d domdoc.Document) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return "", r.insertErr
	}
	id := primitive.NewObjectID().Hex()
	r.docs[id] = d.WithID(id)
	r.order = append(r.order, id)
	r.inserts++
	return id, nil
}

func (r *fakeRepo) Get(_ context.Context, _, model, id string) (domdoc.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok || d.Model() != model {
		return domdoc.Document{}, domain.ErrDocumentNotFound
	}
	return d, nil
}

func (r *fakeRepo) FindByHash(_ context.Context, _, model, hash string) (string, bool, error) {
	for _, d := range r.byModel(model) {
		if d.Hash() == hash {
			return d.ID(), true, nil
		}
	}
	return "", false, nil
}

func (r *fakeRepo) Exists(_ context.Context, _, model string, filter bson.M) (bool, error) {
	for _, d := range r.byModel(model) {
		if matches(d, filter) {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeRepo) CountIDs(_ context.Context, _, model string, ids []string) (int64, error) {
	var n int64
	for _, d := range r.byModel(model) {
		for _, id := range ids {
			if d.ID() == id {
				n++
			}
		}
	}
	return n, nil
}

func (r *fakeRepo) FindIDs(_ context.Context, _, model string, filter bson.M, limit int64) ([]string, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	var out []string
	for _, d := range r.byModel(model) {
		if matches(d, filter) {
			out = append(out, d.ID())
			if limit > 0 && int64(len(out)) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeRepo) FindFields(_ context.Context, _, model string, filter bson.M, fields []string) ([]map[string]any, error) {
	var out []map[string]any
	for _, d := range r.byModel(model) {
		if !matches(d, filter) {
			continue
		}
		row := map[string]any{"_id": d.ID()}
		for _, f := range fields {
			row[f] = d.Data()[f]
		}
		out = append(out, row)
	}
	return out, nil
}

func (r *fakeRepo) Replace(_ context.Context, d domdoc.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[d.ID()]; !ok {
		return domain.ErrDocumentNotFound
	}
	r.docs[d.ID()] = d
	r.replaces++
	return nil
}

func (r *fakeRepo) Delete(_ context.Context, _, _, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[id]; !ok {
		return domain.ErrDocumentNotFound
	}
	delete(r.docs, id)
	return nil
}

func (r *fakeRepo) ClearReference(_ context.Context, _, model, field, id string, multiple bool) (int64, error) {
	var n int64
	for _, d := range r.byModel(model) {
		data := d.Data()
		switch v := data[field].(type) {
		case string:
			if v != id || multiple {
				continue
			}
			data[field] = nil
		case []any:
			kept := []any{}
			for _, e := range v {
				if e != id {
					kept = append(kept, e)
				}
			}
			if len(kept) == len(v) {
				continue
			}
			data[field] = kept
		default:
			continue
		}
		r.mu.Lock()
		r.docs[d.ID()] = d.WithData(data)
		r.mu.Unlock()
		n++
	}
	return n, nil
}

// matches evaluates the small filter subset the service emits:
// equality, $or of equalities, and _id with $in or $ne.
func matches(d domdoc.Document, filter bson.M) bool {
	for k, want := range filter {
		switch k {
		case "$or":
			hit := false
			for _, c := range want.(bson.A) {
				if matches(d, c.(bson.M)) {
					hit = true
					break
				}
			}
			if !hit {
				return false
			}
		case "_id":
			cond := want.(bson.M)
			if in, ok := cond["$in"].(bson.A); ok {
				found := false
				for _, e := range in {
					if e.(primitive.ObjectID).Hex() == d.ID() {
						found = true
					}
				}
				if !found {
					return false
				}
			}
			if ne, ok := cond["$ne"].(primitive.ObjectID); ok && ne.Hex() == d.ID() {
				return false
			}
		default:
			if fmt.Sprint(d.Data()[k]) != fmt.Sprint(want) {
				return false
			}
		}
	}
	return true
}

type fakeModels struct {
	models map[string]dommodel.Model
}

func (m *fakeModels) Get(_ context.Context, _, name string) (dommodel.Model, error) {
	if mm, ok := m.models[name]; ok {
		return mm, nil
	}
	return dommodel.Model{}, domain.ErrModelNotFound
}

func (m *fakeModels) List(_ context.Context, _ string) ([]dommodel.Model, error) {
	out := make([]dommodel.Model, 0, len(m.models))
	for _, mm := range m.models {
		out = append(out, mm)
	}
	return out, nil
}

type mockCapacity struct {
	checkFn func(ctx context.Context, user string, docs, bytes int64) error
}

func (m *mockCapacity) Check(ctx context.Context, user string, docs, bytes int64) error {
	if m.checkFn != nil {
		return m.checkFn(ctx, user, docs, bytes)
	}
	return nil
}

type recordedEvent struct {
	key   events.Key
	event events.DocumentEvent
}

type mockPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (m *mockPublisher) Publish(_ context.Context, key events.Key, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, recordedEvent{key: key, event: payload.(events.DocumentEvent)})
	return nil
}

func (m *mockPublisher) names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, e := range m.events {
		out[i] = e.key.Name + ":" + e.event.Model.Name()
	}
	return out
}

var testUser = domain.User{ID: "u1"}

func newModels(t *testing.T, specs ...dommodel.Spec) *fakeModels {
	t.Helper()
	fm := &fakeModels{models: map[string]dommodel.Model{}}
	for _, s := range specs {
		m, err := dommodel.New("u1", s)
		if err != nil {
			t.Fatalf("model %s: %v", s.Name, err)
		}
		fm.models[s.Name] = m
	}
	return fm
}

func newTestService(repo *fakeRepo, models *fakeModels) (*Service, *mockPublisher) {
	pub := &mockPublisher{}
	svc := New(repo, models, domain.DefaultLimits(), zap.NewNop()).
		WithEvents(pub).
		WithBcryptCost(bcrypt.MinCost)
	svc.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	return svc, pub
}
