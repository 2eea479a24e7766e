package extraction

import (
	"errors"
	"io"

	"github.com/ekaya-inc/ekaya-composites/pkg/apperrors"
)

// Inspection describes the structure of a delimited file without extracting it.
type Inspection struct {
	Valid         bool     `json:"valid" yaml:"valid"`
	Headers       []string `json:"headers" yaml:"headers"`
	RowCount      int      `json:"row_count" yaml:"row_count"`
	Delimiter     string   `json:"delimiter" yaml:"delimiter"`
	Encoding      string   `json:"encoding" yaml:"encoding"`
	HasName       bool     `json:"has_component_column" yaml:"has_component_column"`
	HasPercentage bool     `json:"has_percentage_column" yaml:"has_percentage_column"`
	HasCAS        bool     `json:"has_cas_column" yaml:"has_cas_column"`
	Error         string   `json:"error,omitempty" yaml:"error,omitempty"`
}

// Inspect checks whether r looks like an extractable analysis file. Missing
// columns are reported in the result; only unreadable input is an error.
func Inspect(r io.Reader, opts Options) (*Inspection, error) {
	tbl, err := readTable(r, opts.Delimiter)
	if err != nil {
		return nil, err
	}

	syn := opts.synonyms()
	out := &Inspection{
		Headers:       tbl.headers,
		RowCount:      len(tbl.rows),
		Delimiter:     string(tbl.delimiter),
		Encoding:      tbl.encoding,
		HasName:       findColumn(tbl.headers, syn.Name) >= 0,
		HasPercentage: findColumn(tbl.headers, syn.Percentage) >= 0,
		HasCAS:        findColumn(tbl.headers, syn.CAS) >= 0,
	}
	out.Valid = out.HasName && out.HasPercentage

	if _, _, err := resolveColumns(tbl.headers, syn); err != nil {
		var cre *apperrors.ColumnResolutionError
		if errors.As(err, &cre) {
			out.Error = cre.Error()
		}
	}
	return out, nil
}
