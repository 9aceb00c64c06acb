package db

import (
	"errors"
	"strconv"
)

// IndexKind is the ordering or special type of an index key.
type IndexKind string

const (
	// IndexAsc is an ascending key.
	IndexAsc IndexKind = "asc"
	// IndexDesc is a descending key.
	IndexDesc IndexKind = "desc"
	// IndexText is a full-text key.
	IndexText IndexKind = "text"
	// IndexGeo is a 2dsphere key.
	IndexGeo IndexKind = "2dsphere"
	// IndexHashed is a hashed key.
	IndexHashed IndexKind = "hashed"
)

// IsValid checks if the kind is supported.
func (k IndexKind) IsValid() bool {
	switch k {
	case IndexAsc, IndexDesc, IndexText, IndexGeo, IndexHashed:
		return true
	}
	return false
}

// IndexKey is one component of an index.
type IndexKey struct {
	Field string
	Kind  IndexKind
}

// IndexDefinition is a complete index definition used by createIndexes.
type IndexDefinition struct {
	Name          string
	Keys          []IndexKey
	Unique        bool
	Sparse        bool
	PartialFilter map[string]any
}

// Validate checks that the index definition is well-formed.
func (idx *IndexDefinition) Validate() error {
	if idx.Name == "" {
		return errors.New("index name is required")
	}
	if !IsValidIdentifier(idx.Name) {
		return errors.New("index name contains invalid characters")
	}
	if len(idx.Keys) == 0 {
		return errors.New("at least one key is required")
	}

	seen := make(map[string]bool)
	texts := 0
	for i := range idx.Keys {
		k := &idx.Keys[i]
		if k.Field == "" {
			return errors.New("key field is required at index " + strconv.Itoa(i))
		}
		if !k.Kind.IsValid() {
			return errors.New("invalid key kind " + string(k.Kind) + " for " + k.Field)
		}
		if seen[k.Field] {
			return errors.New("duplicate key field: " + k.Field)
		}
		seen[k.Field] = true
		if k.Kind == IndexText {
			texts++
		}
	}
	if idx.Unique && texts > 0 {
		return errors.New("text keys cannot be unique")
	}

	return nil
}

// IsValidIdentifier returns true if s matches [a-zA-Z0-9_.:-]+.
func IsValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		isSpecial := r == '_' || r == ':' || r == '-' || r == '.'
		if !isAlpha && !isDigit && !isSpecial {
			return false
		}
	}
	return true
}
