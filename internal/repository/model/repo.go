package model

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/kailas-cloud/dataforge/internal/db"
	"github.com/kailas-cloud/dataforge/internal/domain"
	dommodel "github.com/kailas-cloud/dataforge/internal/domain/model"
)

// store is the consumer interface for model definitions (ISP).
//
//nolint:interfacebloat // model repo needs document + index management operations
type store interface {
	InsertOne(ctx context.Context, coll string, doc bson.M) (string, error)
	FindOne(ctx context.Context, coll string, filter bson.M) (bson.M, error)
	Find(ctx context.Context, coll string, filter bson.M, opts db.FindOptions) ([]bson.M, error)
	UpdateOne(ctx context.Context, coll string, filter, update bson.M) (int64, error)
	DeleteMany(ctx context.Context, coll string, filter bson.M) (int64, error)
	CreateIndex(ctx context.Context, coll string, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, coll, name string) error
	ListIndexes(ctx context.Context, coll string) ([]string, error)
}

// Repo implements usecase/model.Repository.
type Repo struct {
	store  store
	logger *zap.Logger
}

// New creates a model repository.
func New(s store, logger *zap.Logger) *Repo {
	return &Repo{store: s, logger: logger}
}

func ownerFilter(owner, name string) bson.M {
	return bson.M{"_user": owner, "name": name}
}

// Create stores a model definition. Name is unique per owner.
func (r *Repo) Create(ctx context.Context, m dommodel.Model) (dommodel.Model, error) {
	_, err := r.store.FindOne(ctx, db.CollectionModels, ownerFilter(m.Owner(), m.Name()))
	switch {
	case err == nil:
		return dommodel.Model{}, domain.ErrAlreadyExists
	case !errors.Is(err, db.ErrNoDocuments):
		return dommodel.Model{}, fmt.Errorf("check exists %s: %w", m.Name(), err)
	}

	row, err := rowFromModel(m.WithID(""))
	if err != nil {
		return dommodel.Model{}, err
	}
	doc, err := toBSON(row)
	if err != nil {
		return dommodel.Model{}, err
	}
	id, err := r.store.InsertOne(ctx, db.CollectionModels, doc)
	if err != nil {
		if errors.Is(err, db.ErrDuplicateKey) {
			return dommodel.Model{}, domain.ErrAlreadyExists
		}
		return dommodel.Model{}, fmt.Errorf("insert model %s: %w", m.Name(), err)
	}
	return m.WithID(id), nil
}

// Get returns an owner's model by name.
func (r *Repo) Get(ctx context.Context, owner, name string) (dommodel.Model, error) {
	raw, err := r.store.FindOne(ctx, db.CollectionModels, ownerFilter(owner, name))
	if err != nil {
		if errors.Is(err, db.ErrNoDocuments) {
			return dommodel.Model{}, domain.ErrModelNotFound
		}
		return dommodel.Model{}, fmt.Errorf("find model %s: %w", name, err)
	}
	row, err := fromBSON(raw)
	if err != nil {
		return dommodel.Model{}, err
	}
	return row.toModel(), nil
}

// List returns every model of an owner sorted by name.
func (r *Repo) List(ctx context.Context, owner string) ([]dommodel.Model, error) {
	raws, err := r.store.Find(ctx, db.CollectionModels, bson.M{"_user": owner}, db.FindOptions{
		Sort: bson.D{{Key: "name", Value: 1}},
	})
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}

	out := make([]dommodel.Model, 0, len(raws))
	for _, raw := range raws {
		row, err := fromBSON(raw)
		if err != nil {
			r.logger.Warn("Skipping unreadable model", zap.Any("id", raw["_id"]), zap.Error(err))
			continue
		}
		out = append(out, row.toModel())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out, nil
}

// Update replaces the definition stored under m.ID().
func (r *Repo) Update(ctx context.Context, m dommodel.Model) error {
	oid, err := primitive.ObjectIDFromHex(m.ID())
	if err != nil {
		return fmt.Errorf("%w: invalid model id %q", domain.ErrModelNotFound, m.ID())
	}
	row, err := rowFromModel(m)
	if err != nil {
		return err
	}
	doc, err := toBSON(row)
	if err != nil {
		return err
	}
	delete(doc, "_id")

	n, err := r.store.UpdateOne(ctx, db.CollectionModels,
		bson.M{"_id": oid, "_user": m.Owner()}, bson.M{"$set": doc})
	if err != nil {
		if errors.Is(err, db.ErrDuplicateKey) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("update model %s: %w", m.Name(), err)
	}
	if n == 0 {
		return domain.ErrModelNotFound
	}
	return nil
}

// Delete removes an owner's model definition.
func (r *Repo) Delete(ctx context.Context, owner, name string) error {
	n, err := r.store.DeleteMany(ctx, db.CollectionModels, ownerFilter(owner, name))
	if err != nil {
		return fmt.Errorf("delete model %s: %w", name, err)
	}
	if n == 0 {
		return domain.ErrModelNotFound
	}
	return nil
}

// SyncIndexes creates the indexes m needs on the data collection and drops the
// ones it no longer declares.
func (r *Repo) SyncIndexes(ctx context.Context, m dommodel.Model) error {
	defs, err := buildIndexes(m)
	if err != nil {
		return fmt.Errorf("build indexes: %w", err)
	}

	prefix := indexPrefix(m.Owner(), m.Name())
	existing, err := r.store.ListIndexes(ctx, db.CollectionData)
	if err != nil {
		return fmt.Errorf("list indexes: %w", err)
	}

	want := make(map[string]bool, len(defs))
	for _, def := range defs {
		want[def.Name] = true
	}
	have := make(map[string]bool, len(existing))
	for _, name := range existing {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		have[name] = true
		if !want[name] {
			if err := r.store.DropIndex(ctx, db.CollectionData, name); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
				return fmt.Errorf("drop index %s: %w", name, err)
			}
		}
	}

	for _, def := range defs {
		if have[def.Name] {
			continue
		}
		r.logger.Debug("Creating index", zap.String("model", m.Name()), zap.Stringer("index", def))
		if err := r.store.CreateIndex(ctx, db.CollectionData, def); err != nil {
			if errors.Is(err, db.ErrDuplicateKey) {
				return fmt.Errorf("%w: existing documents violate unique index %s", domain.ErrConstraintViolation, def.Name)
			}
			if !errors.Is(err, db.ErrIndexExists) {
				return fmt.Errorf("create index %s: %w", def.Name, err)
			}
		}
	}
	return nil
}

// DropIndexes removes every data index of an owner's model.
func (r *Repo) DropIndexes(ctx context.Context, owner, name string) error {
	existing, err := r.store.ListIndexes(ctx, db.CollectionData)
	if err != nil {
		return fmt.Errorf("list indexes: %w", err)
	}
	prefix := indexPrefix(owner, name)
	for _, idx := range existing {
		if !strings.HasPrefix(idx, prefix) {
			continue
		}
		if err := r.store.DropIndex(ctx, db.CollectionData, idx); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
			return fmt.Errorf("drop index %s: %w", idx, err)
		}
	}
	return nil
}
