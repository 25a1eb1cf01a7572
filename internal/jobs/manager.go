// Package jobs runs collection harvests in the background and tracks their
// progress.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nggdpp/ndc-harvester/internal/catalog"
	"github.com/nggdpp/ndc-harvester/internal/events"
	"github.com/nggdpp/ndc-harvester/internal/logging"
	"github.com/nggdpp/ndc-harvester/internal/metrics"
	"github.com/nggdpp/ndc-harvester/internal/models"
	"github.com/nggdpp/ndc-harvester/internal/pipeline"
	"github.com/nggdpp/ndc-harvester/internal/spatial"
	"github.com/nggdpp/ndc-harvester/internal/storage"
)

// MaxJobs limits how many jobs are remembered before finished ones are dropped.
const MaxJobs = 50

// JobMaxAge is how long finished jobs are kept.
const JobMaxAge = 30 * time.Minute

var (
	ErrJobNotFound  = errors.New("job not found")
	ErrEmptyRequest = errors.New("harvest request names no sources")
)

// Request describes one harvest. A catalog item id supplies the collection
// metadata, files and WAF links; otherwise they are given directly.
type Request struct {
	CollectionID  string   `json:"collectionId"`
	Title         string   `json:"title"`
	Link          string   `json:"link"`
	Owner         string   `json:"owner"`
	WAFURL        string   `json:"wafUrl"`
	FileURLs      []string `json:"fileUrls"`
	CatalogItemID string   `json:"catalogItemId"`

	// Files are descriptors with more detail than a bare URL.
	Files []models.SourceDescriptor `json:"-"`
}

func (r Request) validate() error {
	if r.CatalogItemID == "" && r.WAFURL == "" && len(r.FileURLs) == 0 && len(r.Files) == 0 {
		return ErrEmptyRequest
	}
	if r.CatalogItemID == "" && r.CollectionID == "" {
		return fmt.Errorf("collectionId is required without a catalog item")
	}
	return nil
}

// Config wires a Manager. Harvester is required.
type Config struct {
	Harvester     *pipeline.Harvester
	Catalog       *catalog.Client
	Store         storage.RecordStore
	Publisher     events.Publisher
	Metrics       *metrics.Metrics
	Logger        *logging.Logger
	MaxConcurrent int
}

type jobState struct {
	job      *models.HarvestJob
	report   *models.HarvestReport
	finished time.Time
}

// Manager handles running and finished harvest jobs.
type Manager struct {
	jobs      map[string]*jobState
	mu        sync.RWMutex
	harvester *pipeline.Harvester
	catalog   *catalog.Client
	store     storage.RecordStore
	publisher events.Publisher
	metrics   *metrics.Metrics
	log       *logging.Logger
	slots     chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewManager(cfg Config) *Manager {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 2
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.NopPublisher{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		jobs:      make(map[string]*jobState),
		harvester: cfg.Harvester,
		catalog:   cfg.Catalog,
		store:     cfg.Store,
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
		log:       logging.OrNop(cfg.Logger).Component("jobs"),
		slots:     make(chan struct{}, cfg.MaxConcurrent),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start validates req and begins the harvest in the background.
func (m *Manager) Start(req Request) (*models.HarvestJob, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	m.cleanupOldJobsIfNeeded()

	collectionID := req.CollectionID
	if collectionID == "" {
		collectionID = req.CatalogItemID
	}
	job := models.NewHarvestJob(uuid.New().String(), collectionID)

	m.mu.Lock()
	m.jobs[job.ID] = &jobState{job: job}
	snapshot := *job
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(job.ID, req)
	return &snapshot, nil
}

func (m *Manager) run(id string, req Request) {
	defer m.wg.Done()
	log := m.log.With("job", id[:8])
	started := false
	defer func() {
		if r := recover(); r != nil {
			log.Error("harvest panicked", "panic", r)
			if started {
				m.metrics.JobFinished("")
			}
			m.fail(id, fmt.Sprintf("harvest panicked: %v", r))
		}
	}()

	select {
	case m.slots <- struct{}{}:
		defer func() { <-m.slots }()
	case <-m.ctx.Done():
		m.fail(id, "harvest cancelled before start")
		return
	}

	m.metrics.JobStarted()
	started = true
	start := time.Now()
	m.update(id, func(j *models.HarvestJob) { j.Status = models.JobStatusRunning })

	src, err := m.source(m.ctx, req)
	if err != nil {
		log.Error("harvest source unavailable", "error", err)
		m.fail(id, err.Error())
		m.metrics.JobFinished("")
		return
	}
	collectionID := src.Collection.ID
	log.Info("harvest started", "collection", collectionID, "wafs", len(src.WAFURLs), "files", len(src.Files))

	report := m.harvester.HarvestCollection(m.ctx, src, func(done, total int, b *models.Batch) {
		var storeErr error
		if m.store != nil {
			storeErr = m.store.SaveBatch(m.ctx, collectionID, b)
		}
		m.update(id, func(j *models.HarvestJob) {
			j.FilesTotal = total
			j.FilesDone = done
			j.Progress = float64(done) * 100 / float64(total)
			j.RecordCount += len(b.Records)
			j.NoticeCount += b.NoticeCount()
			if b.Meta.Failed() {
				j.FailedFiles++
				for _, e := range b.Meta.ErrorList {
					if e.Kind.Fatal() {
						j.Errors = append(j.Errors, fmt.Sprintf("%s: %s", b.Meta.SourceURL, e.Error()))
					}
				}
			}
			if storeErr != nil {
				j.Errors = append(j.Errors, fmt.Sprintf("%s: store: %v", b.Meta.SourceURL, storeErr))
			}
		})
	})

	var ev *events.Event
	m.mu.Lock()
	if state, ok := m.jobs[id]; ok {
		state.report = report
		state.finished = time.Now()
		state.job.Status = models.JobStatusComplete
		state.job.Progress = 100
		state.job.ProcessingTimeMs = time.Since(start).Milliseconds()
		if m.ctx.Err() != nil {
			state.job.Status = models.JobStatusError
			state.job.Errors = append(state.job.Errors, "harvest cancelled")
		}
		e := events.JobEvent(state.job)
		ev = &e
	}
	m.mu.Unlock()

	if ev != nil {
		if err := m.publisher.Publish(context.Background(), *ev); err != nil {
			log.Warn("event publish failed", "error", err)
		}
	}

	m.metrics.JobFinished(collectionID)
	log.Info("harvest complete",
		"collection", collectionID,
		"files", report.FileCount,
		"failed", report.FailedFiles,
		"records", report.RecordCount,
		"elapsed", time.Since(start),
	)
}

// source builds the harvest source from a catalog item or from req itself.
func (m *Manager) source(ctx context.Context, req Request) (pipeline.Source, error) {
	if req.CatalogItemID != "" {
		if m.catalog == nil {
			return pipeline.Source{}, fmt.Errorf("catalog item %s requested but no catalog is configured", req.CatalogItemID)
		}
		item, err := m.catalog.Item(ctx, req.CatalogItemID)
		if err != nil {
			return pipeline.Source{}, err
		}
		src := m.harvester.SourceFromItem(item, time.Now().UTC())
		if req.WAFURL != "" {
			src.WAFURLs = append(src.WAFURLs, req.WAFURL)
		}
		return src, nil
	}

	src := pipeline.Source{
		Collection: &models.CollectionMeta{
			ID:     req.CollectionID,
			Title:  req.Title,
			Link:   req.Link,
			Owner:  req.Owner,
			Cached: time.Now().UTC(),
		},
	}
	if req.WAFURL != "" {
		src.WAFURLs = []string{req.WAFURL}
	}
	src.Files = append(src.Files, req.Files...)
	for _, u := range req.FileURLs {
		src.Files = append(src.Files, DescriptorForURL(u))
	}
	return src, nil
}

// DescriptorForURL describes a directly named source file.
func DescriptorForURL(rawURL string) models.SourceDescriptor {
	name := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		name = path.Base(u.Path)
	}
	return models.SourceDescriptor{URL: rawURL, Name: name, Origin: models.OriginCatalogFile}
}

func (m *Manager) update(id string, fn func(*models.HarvestJob)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.jobs[id]; ok {
		fn(state.job)
	}
}

func (m *Manager) fail(id, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.jobs[id]
	if !ok {
		return
	}
	state.job.Status = models.JobStatusError
	state.job.Errors = append(state.job.Errors, reason)
	state.finished = time.Now()
}

// Get returns a snapshot of a job.
func (m *Manager) Get(id string) (*models.HarvestJob, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.jobs[id]
	if !ok {
		return nil, false
	}
	snapshot := *state.job
	snapshot.Errors = append([]string{}, state.job.Errors...)
	return &snapshot, true
}

// Report returns the report of a finished job.
func (m *Manager) Report(id string) (*models.HarvestReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if state.report == nil {
		return nil, fmt.Errorf("job %s has not finished", id)
	}
	return state.report, nil
}

// Features returns every record of a finished job as a feature collection.
func (m *Manager) Features(id string) (*spatial.FeatureCollection, error) {
	report, err := m.Report(id)
	if err != nil {
		return nil, err
	}
	var records []*models.Record
	for _, b := range report.Batches {
		records = append(records, b.Records...)
	}
	return spatial.ToFeatureCollection(records), nil
}

// List returns snapshots of all known jobs.
func (m *Manager) List() []*models.HarvestJob {
	m.mu.RLock()
	ids := make([]string, 0, len(m.jobs))
	for id := range m.jobs {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	out := make([]*models.HarvestJob, 0, len(ids))
	for _, id := range ids {
		if j, ok := m.Get(id); ok {
			out = append(out, j)
		}
	}
	return out
}

func (m *Manager) cleanupOldJobsIfNeeded() {
	m.mu.RLock()
	n := len(m.jobs)
	m.mu.RUnlock()
	if n >= MaxJobs {
		m.CleanupOldJobs(0)
	}
}

// CleanupOldJobs drops finished jobs older than maxAge.
func (m *Manager) CleanupOldJobs(maxAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	for id, state := range m.jobs {
		if state.finished.IsZero() || state.finished.After(cutoff) {
			continue
		}
		delete(m.jobs, id)
		m.log.Debug("cleaned up job", "job", id[:8])
	}
}

// Shutdown cancels running jobs and waits for them to stop.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.cancel()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
