// Package normalize converts heterogeneous tabular formats into a canonical
// record-oriented representation. The transform is pure and deterministic:
// byte-identical input always produces byte-identical output.
package normalize

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/anishsharma/insightbase/pkg/models"
)

// ErrUnsupportedFormat is returned for a format tag outside the supported set.
var ErrUnsupportedFormat = errors.New("unsupported format")

// ParseError wraps a parser failure for content that does not match its
// declared format.
type ParseError struct {
	Format models.Format
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s content: %v", e.Format, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// table is the intermediate row/column structure. A nil cell is a missing
// value. Rows are always len(columns) wide.
type table struct {
	columns []string
	rows    [][]any
}

// Normalize parses raw bytes according to the declared format tag, applies
// the missing-value and categorical-encoding policy, and returns the table
// as an ordered sequence of row objects keyed by original column name.
//
// Missing cells are forward-filled: each inherits the nearest preceding
// non-missing value in the same column, in row order; a leading gap with no
// preceding value is kept. Columns whose values are all non-numeric text are
// replaced by deterministic integer codes assigned in first-seen order.
func Normalize(data []byte, format models.Format) ([]map[string]any, error) {
	var (
		t   *table
		err error
	)
	switch format {
	case models.FormatCSV:
		t, err = parseCSV(data)
	case models.FormatXLSX:
		t, err = parseXLSX(data)
	case models.FormatJSON:
		t, err = parseJSON(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, &ParseError{Format: format, Err: err}
	}

	forwardFill(t)
	encodeCategoricals(t)

	records := make([]map[string]any, len(t.rows))
	for i, row := range t.rows {
		rec := make(map[string]any, len(t.columns))
		for j, col := range t.columns {
			rec[col] = row[j]
		}
		records[i] = rec
	}
	return records, nil
}

func parseCSV(data []byte) (*table, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	raw, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, errors.New("no header row")
	}

	t := &table{columns: raw[0]}
	for _, line := range raw[1:] {
		row := make([]any, len(t.columns))
		for j := range t.columns {
			if j < len(line) {
				row[j] = cellValue(line[j])
			}
		}
		t.rows = append(t.rows, row)
	}
	return t, nil
}

func parseXLSX(data []byte) (*table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}

	raw, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, errors.New("no header row")
	}

	// GetRows trims trailing empty cells per row; pad back to header width.
	t := &table{columns: raw[0]}
	for _, line := range raw[1:] {
		row := make([]any, len(t.columns))
		for j := range t.columns {
			if j < len(line) {
				row[j] = cellValue(line[j])
			}
		}
		t.rows = append(t.rows, row)
	}
	return t, nil
}

func parseJSON(data []byte) (*table, error) {
	var objects []map[string]any
	if err := json.Unmarshal(data, &objects); err != nil {
		return nil, errors.New("expected a JSON array of objects")
	}

	t := &table{}
	seen := make(map[string]bool)
	for _, obj := range objects {
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if !seen[k] {
				seen[k] = true
				t.columns = append(t.columns, k)
			}
		}
	}

	for _, obj := range objects {
		row := make([]any, len(t.columns))
		for j, col := range t.columns {
			if v, ok := obj[col]; ok {
				row[j] = v
			}
		}
		t.rows = append(t.rows, row)
	}
	return t, nil
}

// cellValue converts a text cell from csv/xlsx input to a typed value.
// Numeric text becomes float64; empty text is a missing value.
func cellValue(s string) any {
	if s == "" {
		return nil
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n
	}
	return s
}

// forwardFill replaces each missing cell with the nearest preceding
// non-missing value in the same column. Leading gaps stay missing.
func forwardFill(t *table) {
	last := make([]any, len(t.columns))
	for _, row := range t.rows {
		for j := range t.columns {
			if row[j] == nil {
				row[j] = last[j]
			} else {
				last[j] = row[j]
			}
		}
	}
}

// encodeCategoricals replaces every all-text column with integer codes
// assigned per distinct value in first-seen order within the column.
func encodeCategoricals(t *table) {
	for j := range t.columns {
		if !isCategorical(t, j) {
			continue
		}
		codes := make(map[string]int64)
		for _, row := range t.rows {
			if row[j] == nil {
				continue
			}
			s := row[j].(string)
			code, ok := codes[s]
			if !ok {
				code = int64(len(codes))
				codes[s] = code
			}
			row[j] = code
		}
	}
}

// isCategorical reports whether column j holds at least one value and every
// non-missing value is text.
func isCategorical(t *table, j int) bool {
	found := false
	for _, row := range t.rows {
		if row[j] == nil {
			continue
		}
		if _, ok := row[j].(string); !ok {
			return false
		}
		found = true
	}
	return found
}
