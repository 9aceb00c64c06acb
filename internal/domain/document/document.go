package document

import (
	"fmt"
	"strings"
)

// Reserved storage keys carried next to the field values.
const (
	KeyID        = "_id"
	KeyModel     = "_model"
	KeyUser      = "_user"
	KeyHash      = "_hash"
	KeyPack      = "_pack"
	KeyCreatedAt = "_createdAt"
	KeyUpdatedAt = "_updatedAt"
)

// Document is a data record of a model (immutable value object).
type Document struct {
	id        string
	model     string
	user      string
	hash      string
	pack      string
	data      map[string]any
	createdAt int64
	updatedAt int64
}

// New validates and creates a Document. Reserved keys in data are dropped.
func New(model, user string, data map[string]any) (Document, error) {
	if model == "" {
		return Document{}, fmt.Errorf("document model is required")
	}
	if user == "" {
		return Document{}, fmt.Errorf("document user is required")
	}
	return Document{model: model, user: user, data: Fields(data)}, nil
}

// Reconstruct creates a Document without validation (storage hydration).
func Reconstruct(
	id, model, user, hash, pack string, data map[string]any, createdAt, updatedAt int64,
) Document {
	return Document{
		id: id, model: model, user: user, hash: hash, pack: pack,
		data: data, createdAt: createdAt, updatedAt: updatedAt,
	}
}

// ID returns the document id (hex ObjectID, empty before insert).
func (d Document) ID() string { return d.id }

// Model returns the owning model name.
func (d Document) Model() string { return d.model }

// User returns the owning user id.
func (d Document) User() string { return d.user }

// Hash returns the content hash.
func (d Document) Hash() string { return d.hash }

// Pack returns the provenance tag for bundled data.
func (d Document) Pack() string { return d.pack }

// Data returns the field values.
func (d Document) Data() map[string]any { return d.data }

// CreatedAt returns creation time in unix ms.
func (d Document) CreatedAt() int64 { return d.createdAt }

// UpdatedAt returns last update time in unix ms.
func (d Document) UpdatedAt() int64 { return d.updatedAt }

// WithID returns a copy with the given id.
func (d Document) WithID(id string) Document {
	d.id = id
	return d
}

// WithData returns a copy with new field values and a recomputed hash.
func (d Document) WithData(data map[string]any) Document {
	d.data = Fields(data)
	d.hash = Hash(d.data)
	return d
}

// WithPack returns a copy tagged with pack.
func (d Document) WithPack(pack string) Document {
	d.pack = pack
	return d
}

// WithTimes returns a copy with the given timestamps.
func (d Document) WithTimes(createdAt, updatedAt int64) Document {
	d.createdAt, d.updatedAt = createdAt, updatedAt
	return d
}

// Map renders the document with its reserved keys, as returned to clients.
func (d Document) Map() map[string]any {
	out := make(map[string]any, len(d.data)+4)
	for k, v := range d.data {
		out[k] = v
	}
	if d.id != "" {
		out[KeyID] = d.id
	}
	out[KeyModel] = d.model
	if d.hash != "" {
		out[KeyHash] = d.hash
	}
	if d.pack != "" {
		out[KeyPack] = d.pack
	}
	if d.createdAt != 0 {
		out[KeyCreatedAt] = d.createdAt
	}
	if d.updatedAt != 0 {
		out[KeyUpdatedAt] = d.updatedAt
	}
	return out
}

// IsReserved reports whether key is a storage key rather than a field.
func IsReserved(key string) bool { return strings.HasPrefix(key, "_") }

// Fields copies data without reserved keys.
func Fields(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if IsReserved(k) {
			continue
		}
		out[k] = v
	}
	return out
}
