package document

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/kailas-cloud/dataforge/internal/domain"
	domdoc "github.com/kailas-cloud/dataforge/internal/domain/document"
)

// toBSON renders a document in the stored shape: field values next to the reserved keys.
func toBSON(d domdoc.Document) (bson.M, error) {
	m := make(bson.M, len(d.Data())+7)
	for k, v := range d.Data() {
		m[k] = v
	}
	m[domdoc.KeyModel] = d.Model()
	m[domdoc.KeyUser] = d.User()
	m[domdoc.KeyHash] = d.Hash()
	if d.Pack() != "" {
		m[domdoc.KeyPack] = d.Pack()
	}
	m[domdoc.KeyCreatedAt] = d.CreatedAt()
	m[domdoc.KeyUpdatedAt] = d.UpdatedAt()
	if d.ID() != "" {
		oid, err := objectID(d.ID())
		if err != nil {
			return nil, err
		}
		m[domdoc.KeyID] = oid
	}
	return m, nil
}

// fromBSON hydrates a stored document.
func fromBSON(m bson.M) domdoc.Document {
	return domdoc.Reconstruct(
		IDString(m[domdoc.KeyID]),
		str(m[domdoc.KeyModel]),
		str(m[domdoc.KeyUser]),
		str(m[domdoc.KeyHash]),
		str(m[domdoc.KeyPack]),
		Plain(domdoc.Fields(m)),
		toInt64(m[domdoc.KeyCreatedAt]),
		toInt64(m[domdoc.KeyUpdatedAt]),
	)
}

// Plain converts decoded driver values into plain Go values: documents become
// map[string]any, arrays []any, dates time.Time and object ids hex strings.
func Plain(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = plainValue(v)
	}
	return out
}

func plainValue(v any) any {
	switch t := v.(type) {
	case bson.M:
		return Plain(t)
	case map[string]any:
		return Plain(t)
	case bson.D:
		return Plain(t.Map())
	case bson.A:
		return plainSlice(t)
	case []any:
		return plainSlice(t)
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.ObjectID:
		return t.Hex()
	}
	return v
}

func plainSlice(arr []any) []any {
	out := make([]any, len(arr))
	for i, e := range arr {
		out[i] = plainValue(e)
	}
	return out
}

// objectID parses a hex document id. Malformed ids cannot exist, so they read as not found.
func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: invalid id %q", domain.ErrDocumentNotFound, id)
	}
	return oid, nil
}

// IDString renders a stored _id as the string clients see.
func IDString(v any) string {
	switch id := v.(type) {
	case primitive.ObjectID:
		return id.Hex()
	case string:
		return id
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}
