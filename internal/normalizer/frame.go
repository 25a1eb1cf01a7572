package normalizer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nggdpp/ndc-harvester/internal/models"
)

var errNoHeader = errors.New("file has no header row")

// naValues are cell contents read as missing.
var naValues = map[string]bool{
	"": true, "#N/A": true, "#N/A N/A": true, "#NA": true, "-1.#IND": true, "-1.#QNAN": true,
	"-NaN": true, "-nan": true, "1.#IND": true, "1.#QNAN": true, "<NA>": true, "N/A": true,
	"NA": true, "NULL": true, "NaN": true, "None": true, "n/a": true, "nan": true, "null": true,
}

// frame is a column-oriented view of a delimited file.
type frame struct {
	columns []string
	rows    [][]models.Value
}

// readFrame parses text with the given delimiter. Rows with more fields than
// the header are skipped with a warning; short rows are padded with nulls.
func readFrame(text string, delim rune) (*frame, []string, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = delim
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil, errNoHeader
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read header: %w", err)
	}

	f := &frame{columns: mangleDuplicates(header)}
	var warnings []string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				warnings = append(warnings, fmt.Sprintf("Skipping line %d: %v", pe.Line, pe.Err))
				continue
			}
			return nil, nil, fmt.Errorf("failed to read row: %w", err)
		}
		if len(rec) > len(f.columns) {
			line, _ := r.FieldPos(0)
			warnings = append(warnings, fmt.Sprintf("Skipping line %d: expected %d fields, saw %d", line, len(f.columns), len(rec)))
			continue
		}
		row := make([]models.Value, len(f.columns))
		for i := range row {
			if i < len(rec) && !naValues[rec[i]] {
				row[i] = models.String(rec[i])
			}
		}
		f.rows = append(f.rows, row)
	}
	return f, warnings, nil
}

// mangleDuplicates renames repeated header names to name.1, name.2, ...
func mangleDuplicates(header []string) []string {
	out := make([]string, len(header))
	used := make(map[string]bool, len(header))
	counts := make(map[string]int, len(header))
	for i, h := range header {
		name := h
		for used[name] {
			counts[h]++
			name = fmt.Sprintf("%s.%d", h, counts[h])
		}
		used[name] = true
		out[i] = name
	}
	return out
}

func (f *frame) index(name string) int {
	for i, c := range f.columns {
		if c == name {
			return i
		}
	}
	return -1
}

func (f *frame) column(i int) []models.Value {
	out := make([]models.Value, len(f.rows))
	for r, row := range f.rows {
		out[r] = row[i]
	}
	return out
}

func (f *frame) setColumn(i int, vals []models.Value) {
	for r := range f.rows {
		f.rows[r][i] = vals[r]
	}
}

func (f *frame) addColumn(name string, vals []models.Value) {
	if i := f.index(name); i >= 0 {
		f.setColumn(i, vals)
		return
	}
	f.columns = append(f.columns, name)
	for r := range f.rows {
		f.rows[r] = append(f.rows[r], vals[r])
	}
}

// nullWhere replaces cells in the selected columns for which fn returns true
// with null.
func (f *frame) nullWhere(selectCol func(name string) bool, fn func(s string) bool) {
	for c, name := range f.columns {
		if !selectCol(name) {
			continue
		}
		for _, row := range f.rows {
			if s, ok := row[c].Str(); ok && fn(s) {
				row[c] = models.Null()
			}
		}
	}
}

func (f *frame) dropNullColumns() {
	keep := make([]int, 0, len(f.columns))
	for c := range f.columns {
		for _, row := range f.rows {
			if !row[c].IsNull() {
				keep = append(keep, c)
				break
			}
		}
	}
	if len(keep) == len(f.columns) {
		return
	}
	cols := make([]string, len(keep))
	for i, c := range keep {
		cols[i] = f.columns[c]
	}
	for r, row := range f.rows {
		out := make([]models.Value, len(keep))
		for i, c := range keep {
			out[i] = row[c]
		}
		f.rows[r] = out
	}
	f.columns = cols
}

func (f *frame) dropNullRows() {
	out := f.rows[:0]
	for _, row := range f.rows {
		for _, v := range row {
			if !v.IsNull() {
				out = append(out, row)
				break
			}
		}
	}
	f.rows = out
}

// inferNumbers converts columns whose non-null cells are all decimal
// numbers. Columns named in skip are left as text.
func (f *frame) inferNumbers(skip map[string]bool) {
	for c, name := range f.columns {
		if skip[name] {
			continue
		}
		nums := make([]float64, len(f.rows))
		numeric, seen := true, false
		for r, row := range f.rows {
			s, ok := row[c].Str()
			if !ok {
				continue
			}
			n, err := parseDecimal(s)
			if err != nil {
				numeric = false
				break
			}
			nums[r] = n
			seen = true
		}
		if !numeric || !seen {
			continue
		}
		for r, row := range f.rows {
			if !row[c].IsNull() {
				row[c] = models.Number(nums[r])
			}
		}
	}
}

// parseDecimal accepts plain decimal and exponent notation only, so values
// such as "Inf" or hex literals stay text.
func parseDecimal(s string) (float64, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return 0, strconv.ErrSyntax
	}
	for _, r := range t {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-', r == '+', r == 'e', r == 'E':
		default:
			return 0, strconv.ErrSyntax
		}
	}
	return strconv.ParseFloat(t, 64)
}

func (f *frame) records() []*models.Record {
	out := make([]*models.Record, 0, len(f.rows))
	for _, row := range f.rows {
		fields := models.NewFields()
		for c, name := range f.columns {
			fields.Set(name, row[c])
		}
		out = append(out, models.NewRecord(fields))
	}
	return out
}
