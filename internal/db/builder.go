package db

import "strings"

// IndexBuilder is a fluent builder for index definitions.
type IndexBuilder struct {
	def IndexDefinition
}

// NewIndex starts building an index definition.
func NewIndex(name string) *IndexBuilder {
	return &IndexBuilder{def: IndexDefinition{Name: name}}
}

func (b *IndexBuilder) key(field string, kind IndexKind) *IndexBuilder {
	b.def.Keys = append(b.def.Keys, IndexKey{Field: field, Kind: kind})
	return b
}

// Asc adds an ascending key.
func (b *IndexBuilder) Asc(field string) *IndexBuilder { return b.key(field, IndexAsc) }

// Desc adds a descending key.
func (b *IndexBuilder) Desc(field string) *IndexBuilder { return b.key(field, IndexDesc) }

// Text adds a full-text key.
func (b *IndexBuilder) Text(field string) *IndexBuilder { return b.key(field, IndexText) }

// Geo adds a 2dsphere key.
func (b *IndexBuilder) Geo(field string) *IndexBuilder { return b.key(field, IndexGeo) }

// Hashed adds a hashed key.
func (b *IndexBuilder) Hashed(field string) *IndexBuilder { return b.key(field, IndexHashed) }

// Unique marks the index unique.
func (b *IndexBuilder) Unique() *IndexBuilder {
	b.def.Unique = true
	return b
}

// Sparse skips documents lacking the indexed fields.
func (b *IndexBuilder) Sparse() *IndexBuilder {
	b.def.Sparse = true
	return b
}

// Partial restricts the index to documents matching filter.
func (b *IndexBuilder) Partial(filter map[string]any) *IndexBuilder {
	b.def.PartialFilter = filter
	return b
}

// Build validates and returns the index definition.
func (b *IndexBuilder) Build() (*IndexDefinition, error) {
	if err := b.def.Validate(); err != nil {
		return nil, err
	}
	return &b.def, nil
}

// MustBuild calls Build and panics on error.
func (b *IndexBuilder) MustBuild() *IndexDefinition {
	def, err := b.Build()
	if err != nil {
		panic(err)
	}
	return def
}

// String returns a debug representation resembling createIndexes.
func (idx *IndexDefinition) String() string {
	parts := []string{"createIndex", idx.Name, "{"}
	keys := make([]string, 0, len(idx.Keys))
	for i := range idx.Keys {
		keys = append(keys, idx.Keys[i].Field+":"+string(idx.Keys[i].Kind))
	}
	parts = append(parts, strings.Join(keys, ", "), "}")
	if idx.Unique {
		parts = append(parts, "UNIQUE")
	}
	if idx.Sparse {
		parts = append(parts, "SPARSE")
	}
	if len(idx.PartialFilter) > 0 {
		parts = append(parts, "PARTIAL")
	}
	return strings.Join(parts, " ")
}
