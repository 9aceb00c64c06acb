package field

import (
	"fmt"
	"regexp"

	"github.com/kailas-cloud/dataforge/internal/domain/filter"
)

// Type is the declared data type of a field.
type Type string

// Field type constants. The set is closed.
const (
	String       Type = "string"
	StringT      Type = "string_t"
	RichText     Type = "richtext"
	RichTextT    Type = "richtext_t"
	Number       Type = "number"
	Boolean      Type = "boolean"
	Date         Type = "date"
	DateTime     Type = "datetime"
	Enum         Type = "enum"
	Relation     Type = "relation"
	File         Type = "file"
	Array        Type = "array"
	Object       Type = "object"
	Color        Type = "color"
	Password     Type = "password"
	Email        Type = "email"
	Phone        Type = "phone"
	URL          Type = "url"
	ModelRef     Type = "model"
	ModelField   Type = "modelField"
	CronSchedule Type = "cronSchedule"
	Geolocation  Type = "geolocation"
	Calculated   Type = "calculated"
	Code         Type = "code"
)

var validTypes = map[Type]bool{
	String: true, StringT: true, RichText: true, RichTextT: true, Number: true,
	Boolean: true, Date: true, DateTime: true, Enum: true, Relation: true,
	File: true, Array: true, Object: true, Color: true, Password: true,
	Email: true, Phone: true, URL: true, ModelRef: true, ModelField: true,
	CronSchedule: true, Geolocation: true, Calculated: true, Code: true,
}

// IsValid checks if the type belongs to the closed set.
func (t Type) IsValid() bool { return validTypes[t] }

// IsTextual reports whether values of this type are stored as plain strings.
func (t Type) IsTextual() bool {
	switch t {
	case String, StringT, RichText, RichTextT, Email, Phone, URL, Color, Code, Password, Enum, CronSchedule:
		return true
	}
	return false
}

var (
	nameRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

	reservedFieldNames = map[string]bool{
		"_id": true, "_model": true, "_user": true, "_hash": true, "_pack": true,
		"_createdAt": true, "_updatedAt": true,
	}
)

// CalcLookup joins another model into a calculated field's pipeline.
type CalcLookup struct {
	From         string `json:"from" bson:"from"`
	LocalField   string `json:"localField" bson:"localField"`
	ForeignField string `json:"foreignField,omitempty" bson:"foreignField,omitempty"`
	As           string `json:"as" bson:"as"`
	Multiple     bool   `json:"multiple,omitempty" bson:"multiple,omitempty"`
}

// CalcPipeline declares how a calculated field is derived.
type CalcPipeline struct {
	Lookups   []CalcLookup   `json:"lookups,omitempty" bson:"lookups,omitempty"`
	AddFields map[string]any `json:"addFields,omitempty" bson:"addFields,omitempty"`
	Final     string         `json:"final" bson:"final"`
}

// Field describes one typed attribute of a model.
type Field struct {
	Name        string `json:"name" bson:"name"`
	Type        Type   `json:"type" bson:"type"`
	Description string `json:"description,omitempty" bson:"description,omitempty"`

	Required   bool `json:"required,omitempty" bson:"required,omitempty"`
	Unique     bool `json:"unique,omitempty" bson:"unique,omitempty"`
	Default    any  `json:"default,omitempty" bson:"default,omitempty"`
	Anonymized bool `json:"anonymized,omitempty" bson:"anonymized,omitempty"`
	Hiddenable bool `json:"hiddenable,omitempty" bson:"hiddenable,omitempty"`
	AsMain     bool `json:"asMain,omitempty" bson:"asMain,omitempty"`

	Index     bool   `json:"index,omitempty" bson:"index,omitempty"`
	IndexType string `json:"indexType,omitempty" bson:"indexType,omitempty"`

	Min       *float64 `json:"min,omitempty" bson:"min,omitempty"`
	Max       *float64 `json:"max,omitempty" bson:"max,omitempty"`
	MaxLength int      `json:"maxlength,omitempty" bson:"maxlength,omitempty"`
	Items     []string `json:"items,omitempty" bson:"items,omitempty"`
	MimeTypes []string `json:"mimeTypes,omitempty" bson:"mimeTypes,omitempty"`

	// Relation options.
	RelationTo     string         `json:"relation,omitempty" bson:"relation,omitempty"`
	Multiple       bool           `json:"multiple,omitempty" bson:"multiple,omitempty"`
	RelationFilter map[string]any `json:"relationFilter,omitempty" bson:"relationFilter,omitempty"`

	// Array options.
	ItemsType Type `json:"itemsType,omitempty" bson:"itemsType,omitempty"`

	// Calculated options.
	Pipeline *CalcPipeline `json:"pipeline,omitempty" bson:"pipeline,omitempty"`
}

// Validate checks the field's own structure. Cross-model checks (relation targets)
// are done by the model service, which knows the owner's models.
func (f Field) Validate() error {
	if f.Name == "" {
		return fmt.Errorf("field name is required")
	}
	if len(f.Name) > 64 {
		return fmt.Errorf("field name %q too long (max 64)", f.Name)
	}
	if !nameRegex.MatchString(f.Name) {
		return fmt.Errorf("field name %q must be alphanumeric with underscores", f.Name)
	}
	if reservedFieldNames[f.Name] {
		return fmt.Errorf("field name %q is reserved", f.Name)
	}
	if !f.Type.IsValid() {
		return fmt.Errorf("invalid field type %q for %q", f.Type, f.Name)
	}
	if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
		return fmt.Errorf("field %q: min is greater than max", f.Name)
	}

	switch f.Type {
	case Relation:
		if f.RelationTo == "" {
			return fmt.Errorf("relation field %q requires a target model", f.Name)
		}
		if op, found := filter.FindScriptOp(f.RelationFilter); found {
			return fmt.Errorf("relation field %q: %s is not allowed in relationFilter", f.Name, op)
		}
	case Array:
		if !f.ItemsType.IsValid() {
			return fmt.Errorf("array field %q has invalid itemsType %q", f.Name, f.ItemsType)
		}
		if f.ItemsType == Array {
			return fmt.Errorf("array field %q cannot contain arrays", f.Name)
		}
	case Enum:
		if len(f.Items) == 0 {
			return fmt.Errorf("enum field %q requires items", f.Name)
		}
	case Calculated:
		if f.Pipeline == nil || f.Pipeline.Final == "" {
			return fmt.Errorf("calculated field %q requires a pipeline with a final field", f.Name)
		}
		for _, l := range f.Pipeline.Lookups {
			if l.From == "" || l.LocalField == "" || l.As == "" {
				return fmt.Errorf("calculated field %q has an incomplete lookup", f.Name)
			}
		}
		if op, found := filter.FindScriptOp(f.Pipeline.AddFields); found {
			return fmt.Errorf("calculated field %q: %s is not allowed", f.Name, op)
		}
	}
	return nil
}

// IsRelation reports whether the field references other documents.
func (f Field) IsRelation() bool { return f.Type == Relation }

// IsFileArray reports whether the field is an array of file references.
func (f Field) IsFileArray() bool { return f.Type == Array && f.ItemsType == File }
