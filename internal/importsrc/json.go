package importsrc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
)

// parseJSON accepts a bare array of records (needs opts.Model), an object of
// model name to record array, or a bundle object with a "data" object of
// records and optional "models" definitions. Other bundle keys are ignored.
func parseJSON(r io.Reader, opts Options) (Dataset, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Dataset{}, fmt.Errorf("decode json: %w", err)
	}
	v, err := plain(raw, 0)
	if err != nil {
		return Dataset{}, err
	}

	var ds Dataset
	switch t := v.(type) {
	case []any:
		if opts.Model == "" {
			return Dataset{}, errors.New("target model is required for a bare record array")
		}
		rows, err := records(opts.Model, t)
		if err != nil {
			return Dataset{}, err
		}
		ds.add(opts.Model, rows)
	case map[string]any:
		_, bundled := t["data"]
		if defs, ok := t["models"]; ok || bundled {
			list, ok := defs.([]any)
			if defs == nil {
				list, ok = nil, true
			}
			if !ok {
				return Dataset{}, errors.New(`"models" must be an array`)
			}
			for i, d := range list {
				m, ok := d.(map[string]any)
				if !ok {
					return Dataset{}, fmt.Errorf("models[%d] must be an object", i)
				}
				ds.Models = append(ds.Models, m)
			}
			data, _ := t["data"].(map[string]any)
			t = data
		}
		for _, model := range slices.Sorted(maps.Keys(t)) {
			list, ok := t[model].([]any)
			if !ok {
				return Dataset{}, fmt.Errorf("records of %q must be an array", model)
			}
			rows, err := records(model, list)
			if err != nil {
				return Dataset{}, err
			}
			ds.add(model, rows)
		}
	default:
		return Dataset{}, errors.New("json import must be an array or an object")
	}
	return ds, nil
}

func records(model string, list []any) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s[%d] must be an object", model, i)
		}
		out = append(out, m)
	}
	return out, nil
}

// plain converts decoded JSON into plain values: integral numbers become int64,
// others float64. Nesting deeper than MaxDepth is rejected.
func plain(v any, depth int) (any, error) {
	if depth > MaxDepth {
		return nil, fmt.Errorf("json nesting exceeds %d levels", MaxDepth)
	}
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", t)
		}
		return f, nil
	case map[string]any:
		for k, e := range t {
			p, err := plain(e, depth+1)
			if err != nil {
				return nil, err
			}
			t[k] = p
		}
		return t, nil
	case []any:
		for i, e := range t {
			p, err := plain(e, depth+1)
			if err != nil {
				return nil, err
			}
			t[i] = p
		}
		return t, nil
	}
	return v, nil
}
