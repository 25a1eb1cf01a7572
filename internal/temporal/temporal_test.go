package temporal

import (
	"testing"
	"time"

	"github.com/nggdpp/ndc-harvester/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordWithDate(v models.Value) *models.Record {
	f := models.NewFields()
	f.SetString("title", "Sample")
	f.Set(DateField, v)
	return models.NewRecord(f)
}

func TestRepairZeros(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"2020-00-15", "2020-01-15"},
		{"2019-00-00", "2019-01-01"},
		{"00/00/1999", "01/01/1999"},
		{"2019-10-05", "2019-10-05"},
		{"2019-00/05", "2019-00/05"},
		{"March 2001", "March 2001"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, RepairZeros(tt.in))
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"03/04/2019", time.Date(2019, 4, 3, 0, 0, 0, 0, time.UTC)},
		{"12/31/2019", time.Date(2019, 12, 31, 0, 0, 0, 0, time.UTC)},
		{"31/12/2019", time.Date(2019, 12, 31, 0, 0, 0, 0, time.UTC)},
		{"2019-10-05", time.Date(2019, 10, 5, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseColumnAcceptsMonthFirstDates(t *testing.T) {
	out, err := ParseColumn([]models.Value{
		models.String("01/02/2019"),
		models.String("12/31/2019"),
		models.Null(),
	})
	require.NoError(t, err)
	require.Len(t, out, 3)
	ts, ok := out[1].TimeValue()
	require.True(t, ok)
	assert.Equal(t, time.Date(2019, 12, 31, 0, 0, 0, 0, time.UTC), ts)
	assert.True(t, out[2].IsNull())
}

func TestIntrospectRepairsZeroComponents(t *testing.T) {
	out := Introspect(recordWithDate(models.String("2020-00-15")))

	v, ok := out.Fields.Get(DateField)
	require.True(t, ok)
	ts, ok := v.TimeValue()
	require.True(t, ok)
	assert.Equal(t, time.Date(2020, 1, 15, 0, 0, 0, 0, time.UTC), ts)
	assert.Empty(t, out.Notices)
}

func TestIntrospectPrefersDayFirst(t *testing.T) {
	out := Introspect(recordWithDate(models.String("03/04/2019")))
	v, _ := out.Fields.Get(DateField)
	ts, ok := v.TimeValue()
	require.True(t, ok)
	assert.Equal(t, time.April, ts.Month())
	assert.Equal(t, 3, ts.Day())
}

func TestIntrospectQuarantinesUnparsable(t *testing.T) {
	in := recordWithDate(models.String("sometime last spring"))
	out := Introspect(in)

	assert.False(t, out.Fields.Has(DateField))
	raw, ok := out.Fields.Get(QuarantineField)
	require.True(t, ok)
	s, _ := raw.Str()
	assert.Equal(t, "sometime last spring", s)
	require.Len(t, out.Notices, 1)
	assert.Equal(t, quarantineInfo, out.Notices[0].Info)
	assert.NotEmpty(t, out.Notices[0].Error)

	// input record untouched
	assert.True(t, in.Fields.Has(DateField))
	assert.Empty(t, in.Notices)
}

func TestIntrospectNoDate(t *testing.T) {
	f := models.NewFields()
	f.SetString("title", "x")
	rec := models.NewRecord(f)
	assert.Same(t, rec, Introspect(rec))

	nullRec := recordWithDate(models.Null())
	assert.Same(t, nullRec, Introspect(nullRec))
}

func TestIntrospectIsIdempotent(t *testing.T) {
	once := Introspect(recordWithDate(models.String("2019-00-01")))
	twice := Introspect(once)
	assert.Same(t, once, twice)

	bad := Introspect(recordWithDate(models.String("not a date")))
	again := Introspect(bad)
	assert.Len(t, again.Notices, 1)
	assert.True(t, again.Fields.Has(QuarantineField))
}

func TestParseColumn(t *testing.T) {
	vals, err := ParseColumn([]models.Value{models.String("2019-00-01"), models.Null()})
	require.NoError(t, err)
	assert.Equal(t, models.KindTime, vals[0].Kind())
	assert.True(t, vals[1].IsNull())

	_, err = ParseColumn([]models.Value{models.String("2019-01-01"), models.String("garbage")})
	assert.Error(t, err)
}
