package extraction

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/ekaya-inc/ekaya-composites/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-composites/pkg/composition"
	"github.com/ekaya-inc/ekaya-composites/pkg/models"
)

const (
	// DefaultImpurityThreshold is the percentage below which a reading is an impurity.
	DefaultImpurityThreshold = 1.0

	validTotalMin     = 95.0
	validTotalMax     = 105.0
	normalizeTotalMin = 98.0
	normalizeTotalMax = 102.0
)

var candidateDelimiters = []rune{',', ';', '\t'}

// Options tune an extraction. The zero value uses the default synonyms, the
// default impurity threshold and delimiter detection.
type Options struct {
	Synonyms          *Synonyms
	ImpurityThreshold float64
	Delimiter         rune
}

func (o Options) synonyms() Synonyms {
	if o.Synonyms != nil {
		return *o.Synonyms
	}
	return DefaultSynonyms()
}

func (o Options) impurityThreshold() float64 {
	if o.ImpurityThreshold > 0 {
		return o.ImpurityThreshold
	}
	return DefaultImpurityThreshold
}

// Columns records which headers were resolved to each logical column.
type Columns struct {
	Name       string `json:"name" yaml:"name"`
	Percentage string `json:"percentage" yaml:"percentage"`
	CAS        string `json:"cas,omitempty" yaml:"cas,omitempty"`
}

// Result is the outcome of extracting one analysis file. Content problems are
// reported in ValidationErrors and Warnings rather than returned as errors.
type Result struct {
	Readings         []models.Reading `json:"readings" yaml:"readings"`
	TotalPercentage  float64          `json:"total_percentage" yaml:"total_percentage"`
	ComponentCount   int              `json:"component_count" yaml:"component_count"`
	ValidationErrors []string         `json:"validation_errors" yaml:"validation_errors"`
	Warnings         []string         `json:"warnings" yaml:"warnings"`
	Columns          Columns          `json:"columns" yaml:"columns"`
	Encoding         string           `json:"encoding" yaml:"encoding"`
	Success          bool             `json:"success" yaml:"success"`
}

type table struct {
	headers   []string
	rows      [][]string
	delimiter rune
	encoding  string
}

// Extract parses a delimited analysis export into readings.
//
// Only structural problems are returned as errors: unreadable or empty input
// (*apperrors.StructuralParseError) and a header without a name or percentage
// column (*apperrors.ColumnResolutionError).
func Extract(r io.Reader, opts Options) (*Result, error) {
	tbl, err := readTable(r, opts.Delimiter)
	if err != nil {
		return nil, err
	}

	cols, idx, err := resolveColumns(tbl.headers, opts.synonyms())
	if err != nil {
		return nil, err
	}

	threshold := opts.impurityThreshold()
	decimalComma := tbl.delimiter != ','

	result := &Result{
		Readings:         []models.Reading{},
		ValidationErrors: []string{},
		Warnings:         []string{},
		Columns:          cols,
		Encoding:         tbl.encoding,
	}

	for i, row := range tbl.rows {
		if spansLines(row) {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("Row %d has a field spanning several lines; an unterminated quote may have merged the rows after it", i+1))
		}
		reading, ok := parseRow(row, idx, threshold, decimalComma)
		if !ok {
			continue
		}
		result.Readings = append(result.Readings, reading)
		result.TotalPercentage += reading.Percentage
	}
	result.ComponentCount = len(result.Readings)

	total := result.TotalPercentage
	if total < validTotalMin || total > validTotalMax {
		result.ValidationErrors = append(result.ValidationErrors,
			fmt.Sprintf("Total percentage %.2f%% is outside valid range (%.0f-%.0f%%)", total, validTotalMin, validTotalMax))
	}

	switch {
	case total >= normalizeTotalMin && total <= normalizeTotalMax:
		factor := 100.0 / total
		for i := range result.Readings {
			result.Readings[i].Percentage *= factor
		}
		result.TotalPercentage = 100.0
	case total >= validTotalMin && total <= validTotalMax:
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Total percentage %.2f%% is outside normalization range (%.0f-%.0f%%); values were not rescaled",
				total, normalizeTotalMin, normalizeTotalMax))
	}

	result.Success = len(result.ValidationErrors) == 0
	return result, nil
}

type columnIndex struct {
	name, percentage, cas int
}

func resolveColumns(headers []string, syn Synonyms) (Columns, columnIndex, error) {
	idx := columnIndex{
		name:       findColumn(headers, syn.Name),
		percentage: findColumn(headers, syn.Percentage),
		cas:        findColumn(headers, syn.CAS),
	}

	var missing []string
	if idx.name < 0 {
		missing = append(missing, "component name")
	}
	if idx.percentage < 0 {
		missing = append(missing, "percentage")
	}
	if len(missing) > 0 {
		return Columns{}, idx, &apperrors.ColumnResolutionError{Missing: missing, Headers: headers}
	}

	cols := Columns{Name: headers[idx.name], Percentage: headers[idx.percentage]}
	if idx.cas >= 0 {
		cols.CAS = headers[idx.cas]
	}
	return cols, idx, nil
}

// findColumn returns the index of the first header that is one of names, or -1.
func findColumn(headers []string, names []string) int {
	for i, h := range headers {
		h = normalizeHeader(h)
		for _, n := range names {
			if h == normalizeHeader(n) {
				return i
			}
		}
	}
	return -1
}

func parseRow(row []string, idx columnIndex, impurityThreshold float64, decimalComma bool) (models.Reading, bool) {
	name := strings.TrimSpace(field(row, idx.name))
	switch strings.ToLower(name) {
	case "", "nan", "none":
		return models.Reading{}, false
	}

	pct, ok := parsePercentage(field(row, idx.percentage), decimalComma)
	if !ok || pct <= 0 {
		return models.Reading{}, false
	}

	var cas *string
	if idx.cas >= 0 {
		if c, found := composition.NormalizeCAS(field(row, idx.cas)); found {
			cas = &c
		}
	}

	category := models.CategoryComponent
	if pct < impurityThreshold {
		category = models.CategoryImpurity
	}

	return models.Reading{
		IdentityKey: composition.IdentityKey(cas, name),
		DisplayName: name,
		CASNumber:   cas,
		Percentage:  pct,
		Category:    category,
	}, true
}

func parsePercentage(raw string, decimalComma bool) (float64, bool) {
	s := strings.TrimSpace(strings.ReplaceAll(raw, "%", ""))
	if s == "" {
		return 0, false
	}
	if decimalComma && strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func spansLines(row []string) bool {
	for _, cell := range row {
		if strings.ContainsAny(cell, "\r\n") {
			return true
		}
	}
	return false
}

func field(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func readTable(r io.Reader, delimiter rune) (*table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &apperrors.StructuralParseError{Reason: "failed to read input", Err: err}
	}
	text, encoding, err := decode(data)
	if err != nil {
		return nil, &apperrors.StructuralParseError{Reason: "failed to decode input", Err: err}
	}
	if strings.TrimSpace(text) == "" {
		return nil, &apperrors.StructuralParseError{Reason: "input is empty"}
	}

	if delimiter == 0 {
		delimiter = detectDelimiter(text)
	}

	cr := csv.NewReader(strings.NewReader(text))
	cr.Comma = delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	headers, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &apperrors.StructuralParseError{Reason: "input has no header row"}
		}
		return nil, &apperrors.StructuralParseError{Reason: "malformed header row", Err: err}
	}
	for i := range headers {
		headers[i] = strings.TrimSpace(headers[i])
	}

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, &apperrors.StructuralParseError{Reason: "malformed row", Err: err}
	}

	return &table{headers: headers, rows: rows, delimiter: delimiter, encoding: encoding}, nil
}

// detectDelimiter picks the candidate delimiter that occurs most often in the
// first line. Commas win when nothing else is present.
func detectDelimiter(text string) rune {
	line, _, _ := strings.Cut(text, "\n")
	best, bestCount := ',', 0
	for _, d := range candidateDelimiters {
		if n := strings.Count(line, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}
