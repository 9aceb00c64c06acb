package document

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/kailas-cloud/dataforge/internal/db"
	"github.com/kailas-cloud/dataforge/internal/domain"
	domdoc "github.com/kailas-cloud/dataforge/internal/domain/document"
)

// store is the consumer interface for documents (ISP).
//
//nolint:interfacebloat // document repo covers CRUD, bulk schema migrations and aggregation
type store interface {
	InsertOne(ctx context.Context, coll string, doc bson.M) (string, error)
	FindOne(ctx context.Context, coll string, filter bson.M) (bson.M, error)
	Find(ctx context.Context, coll string, filter bson.M, opts db.FindOptions) ([]bson.M, error)
	Aggregate(ctx context.Context, coll string, pipeline []bson.M, maxTime time.Duration) ([]bson.M, error)
	ReplaceOne(ctx context.Context, coll string, filter, doc bson.M) (int64, error)
	UpdateMany(ctx context.Context, coll string, filter, update bson.M) (int64, error)
	DeleteMany(ctx context.Context, coll string, filter bson.M) (int64, error)
	Count(ctx context.Context, coll string, filter bson.M) (int64, error)
}

// Repo implements the document repositories of the document, model, search and usage use cases.
type Repo struct {
	store store
}

// New creates a document repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// Scope is the ownership filter every query carries.
func Scope(user, model string) bson.M {
	return bson.M{domdoc.KeyModel: model, domdoc.KeyUser: user}
}

func scoped(user, model string, filter bson.M) bson.M {
	out := Scope(user, model)
	for k, v := range filter {
		out[k] = v
	}
	return out
}

// Insert stores a new document and returns its id.
func (r *Repo) Insert(ctx context.Context, d domdoc.Document) (string, error) {
	doc, err := toBSON(d.WithID(""))
	if err != nil {
		return "", err
	}
	id, err := r.store.InsertOne(ctx, db.CollectionData, doc)
	if err != nil {
		if errors.Is(err, db.ErrDuplicateKey) {
			return "", fmt.Errorf("%w: %w", domain.ErrConstraintViolation, err)
		}
		return "", fmt.Errorf("insert %s: %w", d.Model(), err)
	}
	return id, nil
}

// Get returns one document of a user's model.
func (r *Repo) Get(ctx context.Context, user, model, id string) (domdoc.Document, error) {
	oid, err := objectID(id)
	if err != nil {
		return domdoc.Document{}, err
	}
	raw, err := r.store.FindOne(ctx, db.CollectionData, scoped(user, model, bson.M{domdoc.KeyID: oid}))
	if err != nil {
		if errors.Is(err, db.ErrNoDocuments) {
			return domdoc.Document{}, domain.ErrDocumentNotFound
		}
		return domdoc.Document{}, fmt.Errorf("find %s/%s: %w", model, id, err)
	}
	return fromBSON(raw), nil
}

// FindByHash returns the id of a document with identical content, if any.
func (r *Repo) FindByHash(ctx context.Context, user, model, hash string) (string, bool, error) {
	raw, err := r.store.FindOne(ctx, db.CollectionData, scoped(user, model, bson.M{domdoc.KeyHash: hash}))
	if err != nil {
		if errors.Is(err, db.ErrNoDocuments) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("find by hash %s: %w", model, err)
	}
	return IDString(raw[domdoc.KeyID]), true, nil
}

// Exists reports whether any document of the model matches filter.
func (r *Repo) Exists(ctx context.Context, user, model string, filter bson.M) (bool, error) {
	n, err := r.store.Count(ctx, db.CollectionData, scoped(user, model, filter))
	if err != nil {
		return false, fmt.Errorf("count %s: %w", model, err)
	}
	return n > 0, nil
}

// CountIDs returns how many of ids exist in the model. Malformed ids count as missing.
func (r *Repo) CountIDs(ctx context.Context, user, model string, ids []string) (int64, error) {
	oids := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			oids = append(oids, oid)
		}
	}
	if len(oids) == 0 {
		return 0, nil
	}
	n, err := r.store.Count(ctx, db.CollectionData, scoped(user, model, bson.M{domdoc.KeyID: bson.M{"$in": oids}}))
	if err != nil {
		return 0, fmt.Errorf("count ids %s: %w", model, err)
	}
	return n, nil
}

// FindIDs returns the ids of documents matching filter, at most limit (0 = all).
func (r *Repo) FindIDs(ctx context.Context, user, model string, filter bson.M, limit int64) ([]string, error) {
	raws, err := r.store.Find(ctx, db.CollectionData, scoped(user, model, filter), db.FindOptions{
		Limit:      limit,
		Projection: bson.M{domdoc.KeyID: 1},
		Sort:       bson.D{{Key: domdoc.KeyID, Value: 1}},
	})
	if err != nil {
		return nil, fmt.Errorf("find ids %s: %w", model, err)
	}
	ids := make([]string, 0, len(raws))
	for _, raw := range raws {
		ids = append(ids, IDString(raw[domdoc.KeyID]))
	}
	return ids, nil
}

// FindFields returns the id and the named fields of documents matching filter.
func (r *Repo) FindFields(
	ctx context.Context, user, model string, filter bson.M, fields []string,
) ([]map[string]any, error) {
	proj := bson.M{domdoc.KeyID: 1}
	for _, f := range fields {
		proj[f] = 1
	}
	raws, err := r.store.Find(ctx, db.CollectionData, scoped(user, model, filter), db.FindOptions{Projection: proj})
	if err != nil {
		return nil, fmt.Errorf("find fields %s: %w", model, err)
	}
	out := make([]map[string]any, len(raws))
	for i, raw := range raws {
		out[i] = Plain(raw)
	}
	return out, nil
}

// Replace overwrites a stored document with d.
func (r *Repo) Replace(ctx context.Context, d domdoc.Document) error {
	oid, err := objectID(d.ID())
	if err != nil {
		return err
	}
	doc, err := toBSON(d)
	if err != nil {
		return err
	}
	delete(doc, domdoc.KeyID)

	n, err := r.store.ReplaceOne(ctx, db.CollectionData, scoped(d.User(), d.Model(), bson.M{domdoc.KeyID: oid}), doc)
	if err != nil {
		if errors.Is(err, db.ErrDuplicateKey) {
			return fmt.Errorf("%w: %w", domain.ErrConstraintViolation, err)
		}
		return fmt.Errorf("replace %s/%s: %w", d.Model(), d.ID(), err)
	}
	if n == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

// Delete removes one document.
func (r *Repo) Delete(ctx context.Context, user, model, id string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	n, err := r.store.DeleteMany(ctx, db.CollectionData, scoped(user, model, bson.M{domdoc.KeyID: oid}))
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", model, id, err)
	}
	if n == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

// DeleteByModel removes every document of a user's model.
func (r *Repo) DeleteByModel(ctx context.Context, user, model string) (int64, error) {
	n, err := r.store.DeleteMany(ctx, db.CollectionData, Scope(user, model))
	if err != nil {
		return 0, fmt.Errorf("delete documents of %s: %w", model, err)
	}
	return n, nil
}

// RenameField moves a field's values to a new name on every document of the model.
func (r *Repo) RenameField(ctx context.Context, user, model, from, to string) error {
	_, err := r.store.UpdateMany(ctx, db.CollectionData,
		scoped(user, model, bson.M{from: bson.M{"$exists": true}}),
		bson.M{"$rename": bson.M{from: to}})
	if err != nil {
		return fmt.Errorf("rename field %s.%s: %w", model, from, err)
	}
	return nil
}

// UnsetField removes a field from every document of the model.
func (r *Repo) UnsetField(ctx context.Context, user, model, name string) error {
	_, err := r.store.UpdateMany(ctx, db.CollectionData,
		scoped(user, model, bson.M{name: bson.M{"$exists": true}}),
		bson.M{"$unset": bson.M{name: ""}})
	if err != nil {
		return fmt.Errorf("unset field %s.%s: %w", model, name, err)
	}
	return nil
}

// ClearReference removes id from a relation field on the user's model documents.
// Multiple relations pull it from the array; single relations are reset to null.
func (r *Repo) ClearReference(ctx context.Context, user, model, field, id string, multiple bool) (int64, error) {
	update := bson.M{"$set": bson.M{field: nil}}
	if multiple {
		update = bson.M{"$pull": bson.M{field: id}}
	}
	n, err := r.store.UpdateMany(ctx, db.CollectionData, scoped(user, model, bson.M{field: id}), update)
	if err != nil {
		return 0, fmt.Errorf("clear %s.%s references: %w", model, field, err)
	}
	return n, nil
}

// RenameModel moves every document of a model to a new model name.
func (r *Repo) RenameModel(ctx context.Context, user, from, to string) error {
	_, err := r.store.UpdateMany(ctx, db.CollectionData, Scope(user, from),
		bson.M{"$set": bson.M{domdoc.KeyModel: to}})
	if err != nil {
		return fmt.Errorf("rename model %s: %w", from, err)
	}
	return nil
}

// Usage returns the user's document count and stored bytes.
func (r *Repo) Usage(ctx context.Context, user string) (int64, int64, error) {
	rows, err := r.store.Aggregate(ctx, db.CollectionData, []bson.M{
		{"$match": bson.M{domdoc.KeyUser: user}},
		{"$group": bson.M{
			"_id":   nil,
			"count": bson.M{"$sum": 1},
			"bytes": bson.M{"$sum": bson.M{"$bsonSize": "$$ROOT"}},
		}},
	}, 0)
	if err != nil {
		return 0, 0, fmt.Errorf("usage of %s: %w", user, err)
	}
	if len(rows) == 0 {
		return 0, 0, nil
	}
	return toInt64(rows[0]["count"]), toInt64(rows[0]["bytes"]), nil
}

// Aggregate runs a search pipeline on the data collection and returns plain Go values.
func (r *Repo) Aggregate(ctx context.Context, pipeline []bson.M, maxTime time.Duration) ([]map[string]any, error) {
	rows, err := r.store.Aggregate(ctx, db.CollectionData, pipeline, maxTime)
	if err != nil {
		if errors.Is(err, db.ErrTimeout) {
			return nil, fmt.Errorf("%w: %w", domain.ErrTimeout, err)
		}
		return nil, fmt.Errorf("aggregate: %w", err)
	}
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		out[i] = Plain(row)
	}
	return out, nil
}
