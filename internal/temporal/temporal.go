// Package temporal repairs and parses the loosely formatted dates found in
// harvested source files.
package temporal

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/nggdpp/ndc-harvester/internal/models"
)

const (
	// DateField is the record field the introspector operates on.
	DateField = "date"
	// QuarantineField receives date values that could not be parsed.
	QuarantineField = "date_string"

	quarantineInfo = "Date string could not be parsed, moved value to 'date_string' property"
)

// RepairZeros rewrites any "00" day or month component to "01". The component
// separator is sniffed by looking for "-" first and then "/"; strings with
// neither are returned unchanged.
func RepairZeros(s string) string {
	var sep string
	for _, candidate := range []string{"-", "/"} {
		if strings.Contains(s, candidate) {
			sep = candidate
			break
		}
	}
	if sep == "" {
		return s
	}
	parts := strings.Split(s, sep)
	for i, p := range parts {
		if p == "00" {
			parts[i] = "01"
		}
	}
	return strings.Join(parts, sep)
}

// Parse repairs zero components and parses s with day-first precedence for
// ambiguous numeric dates. Month-first dates whose day exceeds 12 still parse.
// Results are in UTC.
func Parse(s string) (time.Time, error) {
	repaired := RepairZeros(strings.TrimSpace(s))
	return dateparse.ParseIn(repaired, time.UTC,
		dateparse.PreferMonthFirst(false),
		dateparse.RetryAmbiguousDateWithSwap(true),
	)
}

// Introspect returns a copy of rec with its date field parsed or quarantined.
// Records without a date, with a null date, or with an already parsed date
// are returned unchanged. On failure the raw value moves to date_string, the
// date key is removed and one notice is attached, so a date field present
// downstream always holds a parsed time.
func Introspect(rec *models.Record) *models.Record {
	v, ok := rec.Fields.Get(DateField)
	if !ok || v.IsNull() || v.Kind() == models.KindTime {
		return rec
	}

	out := rec.Clone()
	raw := v.Text()
	parsed, err := Parse(raw)
	if err == nil {
		out.Fields.Set(DateField, models.Time(parsed))
		return out
	}

	out.AddNotice(models.Notice{Error: err.Error(), Info: quarantineInfo})
	out.Fields.Set(QuarantineField, v)
	out.Fields.Delete(DateField)
	return out
}

// ParseColumn parses every non-null value of a column. It returns the parsed
// values when all of them parsed; otherwise it returns nil and the first
// error.
func ParseColumn(values []models.Value) ([]models.Value, error) {
	out := make([]models.Value, len(values))
	for i, v := range values {
		switch v.Kind() {
		case models.KindNull, models.KindTime:
			out[i] = v
			continue
		}
		t, err := Parse(v.Text())
		if err != nil {
			return nil, err
		}
		out[i] = models.Time(t)
	}
	return out, nil
}
