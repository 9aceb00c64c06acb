package importsrc

import (
	"encoding/csv"
	"fmt"
	"io"
)

func parseCSV(r io.Reader, opts Options) (Dataset, error) {
	cr := csv.NewReader(r)
	if opts.Delimiter != 0 {
		cr.Comma = opts.Delimiter
	}
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return Dataset{}, fmt.Errorf("read csv: %w", err)
	}
	return table(rows, opts)
}
