package jobs

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nggdpp/ndc-harvester/internal/events"
	"github.com/nggdpp/ndc-harvester/internal/fetch"
	"github.com/nggdpp/ndc-harvester/internal/metrics"
	"github.com/nggdpp/ndc-harvester/internal/models"
	"github.com/nggdpp/ndc-harvester/internal/pipeline"
	"github.com/nggdpp/ndc-harvester/internal/storage"
	"github.com/nggdpp/ndc-harvester/internal/testutil"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const sampleTable = "title|latitude|longitude\nCore A|40.5|-105.2\nCore B|41.5|-104.2\n"

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/data/sample.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, sampleTable)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newManager(t *testing.T, store storage.RecordStore, pub events.Publisher) *Manager {
	t.Helper()
	h := pipeline.New(pipeline.Config{
		Fetcher: fetch.NewClient(fetch.Options{Timeout: 5 * time.Second}),
	})
	m := NewManager(Config{Harvester: h, Store: store, Publisher: pub})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return m
}

func waitForJob(t *testing.T, m *Manager, id string) *models.HarvestJob {
	t.Helper()
	for i := 0; i < 50; i++ {
		j, ok := m.Get(id)
		require.True(t, ok, "job not found")
		if j.Status == models.JobStatusComplete || j.Status == models.JobStatusError {
			return j
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return nil
}

func TestStartValidates(t *testing.T) {
	m := newManager(t, nil, nil)

	_, err := m.Start(Request{CollectionID: "abc"})
	assert.ErrorIs(t, err, ErrEmptyRequest)

	_, err = m.Start(Request{WAFURL: "http://example.org/waf/"})
	assert.Error(t, err)
}

func TestJobLifecycle(t *testing.T) {
	srv := newServer(t)
	store := storage.NewMemoryStore()
	pub := &testutil.MockPublisher{}
	pub.On("Publish", mock.Anything, mock.MatchedBy(func(ev events.Event) bool {
		return ev.Type == events.EventJobCompleted
	})).Return(nil).Once()

	m := newManager(t, store, pub)
	job, err := m.Start(Request{
		CollectionID: "abc123",
		Title:        "Cores",
		FileURLs:     []string{srv.URL + "/data/sample.txt", srv.URL + "/data/missing.txt"},
	})
	require.NoError(t, err)
	assert.Equal(t, "abc123", job.CollectionID)

	done := waitForJob(t, m, job.ID)
	assert.Equal(t, models.JobStatusComplete, done.Status)
	assert.Equal(t, 2, done.FilesTotal)
	assert.Equal(t, 2, done.FilesDone)
	assert.Equal(t, 1, done.FailedFiles)
	assert.Equal(t, 2, done.RecordCount)
	assert.Equal(t, float64(100), done.Progress)
	require.Len(t, done.Errors, 1)
	assert.Contains(t, done.Errors[0], "missing.txt")

	report, err := m.Report(job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, report.FileCount)
	assert.Equal(t, "Cores", report.Collection.Title)

	fc, err := m.Features(job.ID)
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)

	items, err := store.Items(context.Background(), "abc123", 0)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	log, err := store.ProcessingLog(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, log, 2)

	pub.AssertExpectations(t)
}

// panicStore panics on every save
type panicStore struct {
	*storage.MemoryStore
}

func (panicStore) SaveBatch(context.Context, string, *models.Batch) error {
	panic("store exploded")
}

func TestPanickingJobReleasesRunningGauge(t *testing.T) {
	srv := newServer(t)
	reg := prometheus.NewRegistry()
	m := NewManager(Config{
		Harvester: pipeline.New(pipeline.Config{Fetcher: fetch.NewClient(fetch.Options{Timeout: 5 * time.Second})}),
		Store:     panicStore{storage.NewMemoryStore()},
		Metrics:   metrics.New(reg),
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})

	job, err := m.Start(Request{CollectionID: "abc123", FileURLs: []string{srv.URL + "/data/sample.txt"}})
	require.NoError(t, err)

	done := waitForJob(t, m, job.ID)
	assert.Equal(t, models.JobStatusError, done.Status)
	require.NotEmpty(t, done.Errors)
	assert.Contains(t, done.Errors[len(done.Errors)-1], "store exploded")

	expected := `
# HELP ndc_harvester_jobs_running Harvest jobs currently running
# TYPE ndc_harvester_jobs_running gauge
ndc_harvester_jobs_running 0
`
	assert.NoError(t, promtest.GatherAndCompare(reg, strings.NewReader(expected), "ndc_harvester_jobs_running"))
}

func TestJobNotFound(t *testing.T) {
	m := newManager(t, nil, nil)

	_, ok := m.Get("nope")
	assert.False(t, ok)

	_, err := m.Report("nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestCatalogItemWithoutCatalog(t *testing.T) {
	m := newManager(t, nil, nil)

	job, err := m.Start(Request{CatalogItemID: "4f4e4760e4b07f02db47dfb4"})
	require.NoError(t, err)

	done := waitForJob(t, m, job.ID)
	assert.Equal(t, models.JobStatusError, done.Status)
	require.NotEmpty(t, done.Errors)
	assert.Contains(t, done.Errors[0], "no catalog is configured")
}

func TestCleanupOldJobs(t *testing.T) {
	srv := newServer(t)
	m := newManager(t, nil, nil)

	job, err := m.Start(Request{CollectionID: "abc123", FileURLs: []string{srv.URL + "/data/sample.txt"}})
	require.NoError(t, err)
	waitForJob(t, m, job.ID)
	assert.Len(t, m.List(), 1)

	m.CleanupOldJobs(time.Hour)
	assert.Len(t, m.List(), 1)

	m.CleanupOldJobs(0)
	assert.Empty(t, m.List())
}

func TestDescriptorForURL(t *testing.T) {
	d := DescriptorForURL("https://example.org/files/cores.csv?download=1")
	assert.Equal(t, "cores.csv", d.Name)
	assert.Equal(t, models.OriginCatalogFile, d.Origin)
}
