package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nggdpp/ndc-harvester/internal/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func batch(normalizer string, records int, fatal models.ErrorKind) *models.Batch {
	meta := models.NewProcessingMeta(models.SourceDescriptor{}, time.Now())
	meta.Normalizer = normalizer
	if fatal != "" {
		meta.AddError(fatal, "failed", "")
	}
	b := &models.Batch{Meta: meta}
	for i := 0; i < records; i++ {
		b.Records = append(b.Records, models.NewRecord(nil))
	}
	return b
}

func TestObserveBatch(t *testing.T) {
	m := New(nil)
	m.ObserveBatch(batch("tabular", 3, ""), time.Second)
	m.ObserveBatch(batch("", 0, models.ErrorKindFetch), time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.batches.WithLabelValues("tabular", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.batches.WithLabelValues("none", "failed")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.records.WithLabelValues("tabular")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.fetchErrors))
}

func TestJobs(t *testing.T) {
	m := New(nil)
	m.JobStarted()
	m.JobStarted()
	m.JobFinished("c1")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.jobsRunning))
	assert.Greater(t, testutil.ToFloat64(m.lastHarvest.WithLabelValues("c1")), float64(0))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveBatch(batch("tabular", 1, ""), time.Second)
	m.JobStarted()
	m.JobFinished("x")
}

func TestHandler(t *testing.T) {
	m := New(nil)
	m.ObserveBatch(batch("tabular", 1, ""), time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "ndc_harvester_batches_total"))
}
