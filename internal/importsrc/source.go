// Package importsrc parses import payloads into per-model record lists.
package importsrc

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// Format is the encoding of an import payload.
type Format string

// Supported formats.
const (
	FormatJSON  Format = "json"
	FormatCSV   Format = "csv"
	FormatExcel Format = "xlsx"
)

// MaxDepth bounds the nesting of JSON values.
const MaxDepth = 32

// ErrUnsupportedFormat is returned for an unknown format.
var ErrUnsupportedFormat = errors.New("unsupported import format")

// Options tune parsing.
type Options struct {
	// Model is the target of flat sources (CSV, Excel, bare JSON arrays).
	Model string
	// Header overrides the column names of tabular sources. When set, the
	// first row is data.
	Header []string
	// Delimiter of CSV input. Zero means comma.
	Delimiter rune
	// Sheet selects the Excel sheet. Empty means the first one.
	Sheet string
}

// Dataset is a parsed payload: model definitions to install plus records per model.
type Dataset struct {
	Models  []map[string]any
	Records map[string][]map[string]any
	// Order is the insertion order of record models. JSON objects contribute
	// their models sorted by name.
	Order []string
}

// Total is the number of records across models.
func (d Dataset) Total() int {
	n := 0
	for _, rows := range d.Records {
		n += len(rows)
	}
	return n
}

func (d *Dataset) add(model string, rows []map[string]any) {
	if d.Records == nil {
		d.Records = map[string][]map[string]any{}
	}
	if _, seen := d.Records[model]; !seen {
		d.Order = append(d.Order, model)
	}
	d.Records[model] = append(d.Records[model], rows...)
}

// ParseFormat maps a file extension or content type to a Format.
func ParseFormat(s string) (Format, error) {
	s = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "."))
	switch s {
	case "json", "application/json":
		return FormatJSON, nil
	case "csv", "text/csv":
		return FormatCSV, nil
	case "xlsx", "excel", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return FormatExcel, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// Parse reads r in the given format.
func Parse(f Format, r io.Reader, opts Options) (Dataset, error) {
	switch f {
	case FormatJSON:
		return parseJSON(r, opts)
	case FormatCSV:
		return parseCSV(r, opts)
	case FormatExcel:
		return parseExcel(r, opts)
	}
	return Dataset{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
}

// table turns rows of cells into records, using the first row as header unless
// opts.Header is set. Blank cells are left out.
func table(rows [][]string, opts Options) (Dataset, error) {
	if opts.Model == "" {
		return Dataset{}, errors.New("target model is required for tabular imports")
	}
	header := append([]string(nil), opts.Header...)
	if len(header) == 0 {
		if len(rows) == 0 {
			return Dataset{}, errors.New("missing header row")
		}
		header, rows = rows[0], rows[1:]
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	records := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		rec := make(map[string]any, len(header))
		for i, cell := range row {
			if i >= len(header) || header[i] == "" || strings.TrimSpace(cell) == "" {
				continue
			}
			rec[header[i]] = cell
		}
		if len(rec) > 0 {
			records = append(records, rec)
		}
	}
	var ds Dataset
	ds.add(opts.Model, records)
	return ds, nil
}
