package normalizer

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/nggdpp/ndc-harvester/internal/models"
	"github.com/nggdpp/ndc-harvester/internal/spatial"
	"github.com/nggdpp/ndc-harvester/internal/temporal"
	"golang.org/x/text/encoding/charmap"
)

const (
	encodingASCII  = "ascii"
	encodingLatin1 = "latin1"
)

var tabularExtensions = map[string]bool{".txt": true, ".csv": true, ".tsv": true, ".psv": true, ".dat": true}

// TabularNormalizer reads pipe or comma delimited text.
type TabularNormalizer struct {
	commaAllowed map[string]bool
	dateColumns  []string
}

func NewTabularNormalizer(opts Options) *TabularNormalizer {
	allowed := make(map[string]bool, len(opts.CommaAllowed))
	for _, c := range opts.CommaAllowed {
		allowed[strings.ToLower(c)] = true
	}
	return &TabularNormalizer{commaAllowed: allowed, dateColumns: opts.DateColumns}
}

func (n *TabularNormalizer) Name() string { return "tabular" }

func (n *TabularNormalizer) CanNormalize(in *Input) bool {
	if in.Source.Origin == models.OriginMetadataDocument || looksLikeXML(in) {
		return false
	}
	if tabularExtensions[strings.ToLower(path.Ext(in.Source.Name))] {
		return true
	}
	ct := strings.ToLower(in.ContentType)
	if ct == "" {
		ct = strings.ToLower(in.Source.ContentType)
	}
	return ct == "" || strings.HasPrefix(ct, "text/") || strings.Contains(ct, "csv")
}

// Normalize reads the file as pipe delimited ASCII, falls back to Latin-1
// when the bytes are not ASCII, and re-reads with commas when the pipe read
// yields a single column. The cleanup then runs in a fixed order.
func (n *TabularNormalizer) Normalize(_ context.Context, in *Input) *Result {
	meta := newMeta(in, n.Name())

	text, encoding, err := decodeText(in.Data)
	if err != nil {
		return failed(meta, models.ErrorKindEncoding, "could not decode file", err)
	}
	meta.DetectedEncoding = encoding

	delim := '|'
	f, warnings, err := readFrame(text, delim)
	if err == nil && len(f.columns) == 1 {
		delim = ','
		f, warnings, err = readFrame(text, delim)
	}
	if err != nil {
		return failed(meta, models.ErrorKindStructural, "could not read delimited text", err)
	}
	meta.DetectedDelimiter = string(delim)
	meta.ErrorLines = warnings

	n.clean(f)
	n.repairDates(f, meta)
	synthesizeCoordinates(f)

	meta.AcceptedColumns = append([]string{}, f.columns...)
	meta.AcceptedRecordCount = len(f.rows)
	return &Result{Meta: meta, Records: f.records()}
}

func decodeText(data []byte) (string, string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if isASCII(data) {
		return string(data), encodingASCII, nil
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return "", "", fmt.Errorf("latin1 decode: %w", err)
	}
	return string(out), encodingLatin1, nil
}

func isASCII(data []byte) bool {
	for _, b := range data {
		if b >= 0x80 {
			return false
		}
	}
	return true
}

// clean nulls noise cells, drops empty columns and rows, and normalizes
// column names.
func (n *TabularNormalizer) clean(f *frame) {
	all := func(string) bool { return true }
	hasComma := func(s string) bool { return strings.Contains(s, ",") }
	blank := func(s string) bool { return strings.TrimSpace(s) == "" }
	onlyCommas := func(s string) bool {
		t := strings.TrimSpace(s)
		return t != "" && strings.Trim(t, ",") == ""
	}

	f.nullWhere(func(name string) bool { return !n.commaAllowed[strings.ToLower(strings.TrimSpace(name))] }, hasComma)
	f.nullWhere(all, blank)
	f.nullWhere(all, onlyCommas)
	f.dropNullColumns()
	f.dropNullRows()
	f.columns = renameColumns(f.columns)

	skip := make(map[string]bool, len(n.dateColumns))
	for _, c := range n.dateColumns {
		skip[c] = true
	}
	f.inferNumbers(skip)
}

// renameColumns lower-cases names, strips commas and turns periods into
// underscores. Blank names get a fresh UUID; collisions get _1, _2 suffixes.
func renameColumns(cols []string) []string {
	out := make([]string, len(cols))
	used := make(map[string]bool, len(cols))
	for i, c := range cols {
		name := strings.ToLower(strings.ReplaceAll(c, ",", ""))
		name = strings.TrimSpace(strings.ReplaceAll(name, ".", "_"))
		if name == "" {
			name = uuid.NewString()
		}
		base := name
		for k := 1; used[name]; k++ {
			name = fmt.Sprintf("%s_%d", base, k)
		}
		used[name] = true
		out[i] = name
	}
	return out
}

// repairDates keeps each date column's raw values under <col>_original and
// coerces the column to dates when every value parses. A column that does
// not fully parse is left as text and reported on the batch.
func (n *TabularNormalizer) repairDates(f *frame, meta *models.ProcessingMeta) {
	for _, name := range n.dateColumns {
		i := f.index(name)
		if i < 0 {
			continue
		}
		raw := f.column(i)
		f.addColumn(name+"_original", raw)
		parsed, err := temporal.ParseColumn(raw)
		if err != nil {
			meta.AddError(models.ErrorKindDateCoercion, fmt.Sprintf("could not coerce column %q to dates", name), err.Error())
			continue
		}
		f.setColumn(i, parsed)
	}
}

// synthesizeCoordinates adds a "lon,lat" coordinates column when latitude and
// longitude exist without one.
func synthesizeCoordinates(f *frame) {
	if f.index(spatial.CoordinatesField) >= 0 {
		return
	}
	lat, lon := f.index(spatial.LatitudeField), f.index(spatial.LongitudeField)
	if lat < 0 || lon < 0 {
		return
	}
	vals := make([]models.Value, len(f.rows))
	for r, row := range f.rows {
		if row[lat].IsNull() || row[lon].IsNull() {
			continue
		}
		vals[r] = models.String(spatial.FormatPair(row[lon].Text(), row[lat].Text()))
	}
	f.addColumn(spatial.CoordinatesField, vals)
}
