package dataforge

import (
	"time"

	dommodel "github.com/kailas-cloud/dataforge/internal/domain/model"
	"github.com/kailas-cloud/dataforge/internal/domain/model/field"
)

// Model definition types shared with the server.
type (
	ModelSpec  = dommodel.Spec
	Field      = field.Field
	FieldType  = field.Type
	Constraint = dommodel.Constraint
	History    = dommodel.History
)

// Common field types. See the server documentation for the full set.
const (
	FieldString      = field.String
	FieldRichText    = field.RichText
	FieldNumber      = field.Number
	FieldBoolean     = field.Boolean
	FieldDate        = field.Date
	FieldDateTime    = field.DateTime
	FieldEnum        = field.Enum
	FieldRelation    = field.Relation
	FieldFile        = field.File
	FieldArray       = field.Array
	FieldObject      = field.Object
	FieldEmail       = field.Email
	FieldPassword    = field.Password
	FieldGeolocation = field.Geolocation
)

// ModelInfo is a stored model definition.
type ModelInfo struct {
	ID        string
	Spec      ModelSpec
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Document is a stored record.
type Document struct {
	ID        string
	Model     string
	Pack      string
	Data      map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BatchResult is the outcome of one item in a batch insert.
type BatchResult struct {
	Index int
	ID    string
	OK    bool
	Err   error
}

// SearchResult is one page of matching records with the total match count.
type SearchResult struct {
	Documents []map[string]any
	Count     int64
}

// ExportOptions select what Export returns.
type ExportOptions struct {
	// Models in export order. Empty exports every model.
	Models []string
	// Filters by model name, in the nested filter tree form.
	Filters map[string]any
	Depth   int
	// Limit caps the documents across all models. Zero uses the client cap.
	Limit         int
	IncludeModels bool
}

// ExportResult holds exported records by model. A model that failed is
// listed in Errors and the others are still returned.
type ExportResult struct {
	Order  []string
	Data   map[string][]map[string]any
	Models []ModelSpec
	Errors map[string]string
}

// Quota is the used and allowed amount of one resource. Limit 0 means unlimited.
type Quota struct {
	Used      int64
	Limit     int64
	Remaining int64
}

// UsageReport summarizes what the user stores.
type UsageReport struct {
	Models    int
	Documents Quota
	Storage   Quota
}

// HealthStatus represents the aggregated system health.
type HealthStatus struct {
	Status string            // "ok", "degraded", "error"
	Checks map[string]string // component → "ok"/"error"
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
