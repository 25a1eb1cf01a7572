package assembler

import (
	"testing"
	"time"

	"github.com/nggdpp/ndc-harvester/internal/models"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixed = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func descriptor() models.SourceDescriptor {
	return models.SourceDescriptor{
		URL:        "http://example.org/waf/cores.txt",
		Name:       "cores.txt",
		UploadDate: time.Date(2023, 1, 2, 3, 4, 0, 0, time.UTC),
		Size:       2048,
		Origin:     models.OriginWAF,
	}
}

func collection() *models.CollectionMeta {
	return &models.CollectionMeta{ID: "abc123", Title: "Cores", Link: "http://example.org/abc123", Owner: "Survey"}
}

func TestAssembleMergesProvenance(t *testing.T) {
	f := models.NewFields()
	f.SetString("title", "Sample")
	f.SetString("ndc_collection_id", "stale")
	rec := models.NewRecord(f)
	rec.Geometry = &orb.Point{-105.2, 40.5}

	meta := models.NewProcessingMeta(descriptor(), fixed)
	batch := WithClock(func() time.Time { return fixed }).Assemble(descriptor(), collection(), meta, []*models.Record{rec})

	require.Len(t, batch.Records, 1)
	out := batch.Records[0].Fields
	assert.Equal(t, []string{
		"title", "ndc_collection_id", "ndc_harvest_source", "ndc_file_name", "ndc_file_url",
		"ndc_file_date", "ndc_file_size", "ndc_file_content_type",
		"ndc_collection_title", "ndc_collection_link", "ndc_collection_owner", DateIndexedField,
	}, out.Keys())

	id, _ := out.Get("ndc_collection_id")
	assert.Equal(t, "abc123", id.Text())
	size, _ := out.Get("ndc_file_size")
	n, _ := size.Num()
	assert.Equal(t, float64(2048), n)
	ct, _ := out.Get("ndc_file_content_type")
	assert.True(t, ct.IsNull())
	ts, _ := out.Get(DateIndexedField)
	got, ok := ts.TimeValue()
	require.True(t, ok)
	assert.Equal(t, fixed, got)

	// input untouched
	assert.Equal(t, 2, rec.Fields.Len())
	v, _ := rec.Fields.Get("ndc_collection_id")
	assert.Equal(t, "stale", v.Text())

	assert.Equal(t, 1, batch.Meta.AcceptedRecordCount)
	assert.Equal(t, out.Keys(), batch.Meta.PropertyNames)
	assert.Equal(t, 0, batch.Meta.ProcessingErrorsNumber)
	require.NotNil(t, batch.Meta.CompletedAt)
}

func TestAssembleCountsMissingGeometry(t *testing.T) {
	a := WithClock(func() time.Time { return fixed })
	recs := []*models.Record{models.NewRecord(nil), models.NewRecord(nil)}
	recs[0].Geometry = &orb.Point{1, 2}
	batch := a.Assemble(descriptor(), nil, models.NewProcessingMeta(descriptor(), fixed), recs)
	assert.Equal(t, 2, batch.Meta.AcceptedRecordCount)
	assert.Equal(t, 1, batch.Meta.ProcessingErrorsNumber)
	assert.False(t, batch.Records[0].Fields.Has("ndc_collection_id"))
}

func TestAssembleFailedBatchHasNoRecords(t *testing.T) {
	meta := models.NewProcessingMeta(descriptor(), fixed)
	meta.AddError(models.ErrorKindStructural, "record container not found", "")
	batch := New().Assemble(descriptor(), collection(), meta, []*models.Record{models.NewRecord(nil)})
	assert.Empty(t, batch.Records)
	assert.Equal(t, 0, batch.Meta.AcceptedRecordCount)
	assert.NotNil(t, batch.Meta.CompletedAt)
}
