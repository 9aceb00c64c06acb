package model

import (
	"errors"
	"fmt"

	"github.com/kailas-cloud/dataforge/internal/domain/model/field"
)

// Normalize prepares raw field values for storage: unknown and calculated fields
// are dropped, defaults fill missing values, values are coerced to their field type
// and required fields are enforced. All field errors are reported together.
// lenient degrades unconvertible values to the field default instead of failing.
func (m Model) Normalize(data map[string]any, lenient bool) (map[string]any, error) {
	out := make(map[string]any, len(m.fields))
	var errs []error
	for _, f := range m.fields {
		if f.Type == field.Calculated {
			continue
		}
		v, present := data[f.Name]
		if !present || v == nil {
			if f.Default != nil {
				v, present = f.Default, true
			}
		}
		if present && v != nil {
			if lenient {
				v = f.CoerceLenient(v)
			} else {
				c, err := f.Coerce(v)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				v = c
			}
		}
		if f.Required && isEmpty(v) {
			errs = append(errs, fmt.Errorf("field %q is required", f.Name))
			continue
		}
		if present {
			out[f.Name] = v
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	}
	return false
}
