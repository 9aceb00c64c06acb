package model

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/kailas-cloud/dataforge/internal/domain/model/field"
)

var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// AllowedKeys are the only top-level keys a raw model payload may carry.
var AllowedKeys = []string{
	"name", "description", "fields", "tags", "constraints",
	"history", "icon", "locked", "maxRequestData",
}

// Constraint is a composite uniqueness rule over several fields.
type Constraint struct {
	Name string   `json:"name,omitempty" bson:"name,omitempty"`
	Keys []string `json:"keys" bson:"keys"`
}

// History configures snapshotting of document changes.
type History struct {
	Enabled bool `json:"enabled" bson:"enabled"`
	// Fields restricts snapshots to these fields. Empty means all.
	Fields []string `json:"fields,omitempty" bson:"fields,omitempty"`
}

// Model is a user-defined schema (immutable value object).
type Model struct {
	id             string
	owner          string
	name           string
	description    string
	fields         []field.Field
	tags           []string
	constraints    []Constraint
	history        History
	icon           string
	locked         bool
	maxRequestData int
	createdAt      int64
	updatedAt      int64
}

// Spec holds the user-editable parts of a model.
type Spec struct {
	Name           string        `json:"name"`
	Description    string        `json:"description,omitempty"`
	Fields         []field.Field `json:"fields"`
	Tags           []string      `json:"tags,omitempty"`
	Constraints    []Constraint  `json:"constraints,omitempty"`
	History        History       `json:"history"`
	Icon           string        `json:"icon,omitempty"`
	Locked         bool          `json:"locked,omitempty"`
	MaxRequestData int           `json:"maxRequestData,omitempty"`
}

// SpecFromMap decodes a raw model payload. Keys outside AllowedKeys are rejected.
func SpecFromMap(raw map[string]any) (Spec, error) {
	if err := ValidateKeys(raw); err != nil {
		return Spec{}, err
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return Spec{}, fmt.Errorf("encode model: %w", err)
	}
	var s Spec
	if err := json.Unmarshal(b, &s); err != nil {
		return Spec{}, fmt.Errorf("decode model: %w", err)
	}
	return s, nil
}

// ValidateKeys rejects raw payload keys outside AllowedKeys.
func ValidateKeys(raw map[string]any) error {
	allowed := make(map[string]bool, len(AllowedKeys))
	for _, k := range AllowedKeys {
		allowed[k] = true
	}
	var unknown []string
	for k := range raw {
		if !allowed[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unknown model keys: %v", unknown)
	}
	return nil
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("model name is required")
	}
	if len(name) > 64 {
		return fmt.Errorf("model name too long (max 64)")
	}
	if !nameRegex.MatchString(name) {
		return fmt.Errorf("model name must be alphanumeric with underscores and hyphens")
	}
	return nil
}

func validateFields(fields []field.Field) error {
	if len(fields) > 256 {
		return fmt.Errorf("too many fields (max 256)")
	}
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if err := f.Validate(); err != nil {
			return err
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate field name: %s", f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}

func validateConstraints(constraints []Constraint, fields []field.Field) error {
	known := make(map[string]bool, len(fields))
	for _, f := range fields {
		known[f.Name] = true
	}
	for i, c := range constraints {
		if len(c.Keys) == 0 {
			return fmt.Errorf("constraint %d has no keys", i)
		}
		for _, k := range c.Keys {
			if !known[k] {
				return fmt.Errorf("constraint %d references unknown field %q", i, k)
			}
		}
	}
	return nil
}

// New validates and creates a Model owned by owner.
// Relation targets are checked by the caller, which sees the owner's other models.
func New(owner string, s Spec) (Model, error) {
	if owner == "" {
		return Model{}, fmt.Errorf("model owner is required")
	}
	if err := validateName(s.Name); err != nil {
		return Model{}, err
	}
	if err := validateFields(s.Fields); err != nil {
		return Model{}, err
	}
	if err := validateConstraints(s.Constraints, s.Fields); err != nil {
		return Model{}, err
	}
	if s.MaxRequestData < 0 {
		return Model{}, fmt.Errorf("maxRequestData must not be negative")
	}

	now := time.Now().UnixMilli()
	return Model{
		owner:          owner,
		name:           s.Name,
		description:    s.Description,
		fields:         s.Fields,
		tags:           s.Tags,
		constraints:    s.Constraints,
		history:        s.History,
		icon:           s.Icon,
		locked:         s.Locked,
		maxRequestData: s.MaxRequestData,
		createdAt:      now,
		updatedAt:      now,
	}, nil
}

// Reconstruct creates a Model without validation (storage hydration).
func Reconstruct(id, owner string, s Spec, createdAt, updatedAt int64) Model {
	return Model{
		id:             id,
		owner:          owner,
		name:           s.Name,
		description:    s.Description,
		fields:         s.Fields,
		tags:           s.Tags,
		constraints:    s.Constraints,
		history:        s.History,
		icon:           s.Icon,
		locked:         s.Locked,
		maxRequestData: s.MaxRequestData,
		createdAt:      createdAt,
		updatedAt:      updatedAt,
	}
}

// ID returns the storage id (empty before persisting).
func (m Model) ID() string { return m.id }

// Owner returns the owning user id.
func (m Model) Owner() string { return m.owner }

// Name returns the model name.
func (m Model) Name() string { return m.name }

// Description returns the model description.
func (m Model) Description() string { return m.description }

// Fields returns the ordered field list.
func (m Model) Fields() []field.Field { return m.fields }

// Tags returns the model tags.
func (m Model) Tags() []string { return m.tags }

// Constraints returns the composite uniqueness rules.
func (m Model) Constraints() []Constraint { return m.constraints }

// History returns the history config.
func (m Model) History() History { return m.history }

// Icon returns the model icon.
func (m Model) Icon() string { return m.icon }

// Locked reports whether the model schema is frozen.
func (m Model) Locked() bool { return m.locked }

// MaxRequestData caps documents returned per request. Zero means the global default.
func (m Model) MaxRequestData() int { return m.maxRequestData }

// CreatedAt returns creation time in unix ms.
func (m Model) CreatedAt() int64 { return m.createdAt }

// UpdatedAt returns last update time in unix ms.
func (m Model) UpdatedAt() int64 { return m.updatedAt }

// Spec returns the editable parts of the model.
func (m Model) Spec() Spec {
	return Spec{
		Name:           m.name,
		Description:    m.description,
		Fields:         m.fields,
		Tags:           m.tags,
		Constraints:    m.constraints,
		History:        m.history,
		Icon:           m.icon,
		Locked:         m.locked,
		MaxRequestData: m.maxRequestData,
	}
}

// WithID returns a copy carrying the storage id.
func (m Model) WithID(id string) Model {
	m.id = id
	return m
}

// Field looks up a field by name.
func (m Model) Field(name string) (field.Field, bool) {
	for _, f := range m.fields {
		if f.Name == name {
			return f, true
		}
	}
	return field.Field{}, false
}

// FieldsOfType returns the fields with the given type, in declaration order.
func (m Model) FieldsOfType(t field.Type) []field.Field {
	var out []field.Field
	for _, f := range m.fields {
		if f.Type == t {
			out = append(out, f)
		}
	}
	return out
}

// UniqueFields returns the fields flagged unique.
func (m Model) UniqueFields() []field.Field {
	var out []field.Field
	for _, f := range m.fields {
		if f.Unique {
			out = append(out, f)
		}
	}
	return out
}

// DisplayField picks a human-readable field used to order relations:
// the asMain field, else the first string_t, else the first string.
func (m Model) DisplayField() (string, bool) {
	for _, f := range m.fields {
		if f.AsMain {
			return f.Name, true
		}
	}
	for _, t := range []field.Type{field.StringT, field.String} {
		if fs := m.FieldsOfType(t); len(fs) > 0 {
			return fs[0].Name, true
		}
	}
	return "", false
}

// ValidateRelations checks that every relation field targets a known model or the model itself.
func (m Model) ValidateRelations(known func(name string) bool) error {
	for _, f := range m.fields {
		if !f.IsRelation() || f.RelationTo == m.name {
			continue
		}
		if !known(f.RelationTo) {
			return fmt.Errorf("relation field %q targets unknown model %q", f.Name, f.RelationTo)
		}
	}
	return nil
}
