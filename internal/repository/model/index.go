package model

import (
	"fmt"
	"strings"

	"github.com/zeebo/xxh3"

	"github.com/kailas-cloud/dataforge/internal/db"
	domdoc "github.com/kailas-cloud/dataforge/internal/domain/document"
	dommodel "github.com/kailas-cloud/dataforge/internal/domain/model"
	"github.com/kailas-cloud/dataforge/internal/domain/model/field"
)

// Index kinds accepted in a field's indexType.
const (
	indexTypeText = "text"
	indexTypeGeo  = "2dsphere"
	indexTypeHash = "hashed"
	indexTypeDesc = "desc"
)

// indexPrefix scopes index names to one owner's model on the shared data collection.
func indexPrefix(owner, model string) string {
	return fmt.Sprintf("df_%016x_", xxh3.HashString(owner+"\x00"+model))
}

// buildIndexes derives the data-collection indexes a model needs:
// one per indexed or unique field, scoped by a partial filter on {_model, _user}.
func buildIndexes(m dommodel.Model) ([]*db.IndexDefinition, error) {
	prefix := indexPrefix(m.Owner(), m.Name())
	scope := map[string]any{domdoc.KeyModel: m.Name(), domdoc.KeyUser: m.Owner()}

	var defs []*db.IndexDefinition
	for _, f := range m.Fields() {
		if !f.Index && !f.Unique {
			continue
		}
		b := db.NewIndex(prefix + f.Name).Partial(scope)
		switch strings.ToLower(f.IndexType) {
		case indexTypeText:
			b.Text(f.Name)
		case indexTypeGeo:
			b.Geo(f.Name)
		case indexTypeHash:
			b.Hashed(f.Name)
		case indexTypeDesc:
			b.Desc(f.Name)
		default:
			if f.Type == field.Geolocation {
				b.Geo(f.Name)
			} else {
				b.Asc(f.Name)
			}
		}
		if f.Unique {
			b.Unique()
		}
		def, err := b.Build()
		if err != nil {
			return nil, fmt.Errorf("index for field %s: %w", f.Name, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}
