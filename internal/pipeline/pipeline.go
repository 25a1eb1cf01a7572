// Package pipeline drives source files through fetching, normalization,
// spatial and temporal introspection, and record assembly. Files are
// processed one at a time; a failure is confined to its own batch.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/nggdpp/ndc-harvester/internal/assembler"
	"github.com/nggdpp/ndc-harvester/internal/catalog"
	"github.com/nggdpp/ndc-harvester/internal/events"
	"github.com/nggdpp/ndc-harvester/internal/fetch"
	"github.com/nggdpp/ndc-harvester/internal/listing"
	"github.com/nggdpp/ndc-harvester/internal/logging"
	"github.com/nggdpp/ndc-harvester/internal/metrics"
	"github.com/nggdpp/ndc-harvester/internal/models"
	"github.com/nggdpp/ndc-harvester/internal/normalizer"
	"github.com/nggdpp/ndc-harvester/internal/spatial"
	"github.com/nggdpp/ndc-harvester/internal/temporal"
)

// Config wires a Harvester. Fetcher and Registry are required.
type Config struct {
	Fetcher          fetch.Fetcher
	Registry         *normalizer.Registry
	Publisher        events.Publisher
	Metrics          *metrics.Metrics
	Logger           *logging.Logger
	Assembler        *assembler.Assembler
	ListingExtension string
	AcceptableTypes  []string
}

// Harvester runs the normalization pipeline.
type Harvester struct {
	fetcher    fetch.Fetcher
	registry   *normalizer.Registry
	resolver   *listing.Resolver
	publisher  events.Publisher
	metrics    *metrics.Metrics
	assembler  *assembler.Assembler
	log        *logging.Logger
	acceptable []string
}

func New(cfg Config) *Harvester {
	log := logging.OrNop(cfg.Logger).Component("pipeline")
	h := &Harvester{
		fetcher:    cfg.Fetcher,
		registry:   cfg.Registry,
		resolver:   listing.NewResolver(cfg.Fetcher, cfg.ListingExtension, cfg.Logger),
		publisher:  cfg.Publisher,
		metrics:    cfg.Metrics,
		assembler:  cfg.Assembler,
		log:        log,
		acceptable: cfg.AcceptableTypes,
	}
	if h.registry == nil {
		h.registry = normalizer.NewRegistry(normalizer.DefaultOptions())
	}
	if h.publisher == nil {
		h.publisher = events.NopPublisher{}
	}
	if h.assembler == nil {
		h.assembler = assembler.New()
	}
	if len(h.acceptable) == 0 {
		h.acceptable = catalog.DefaultAcceptableContentTypes
	}
	return h
}

// Registry exposes the normalizers the harvester dispatches to.
func (h *Harvester) Registry() *normalizer.Registry { return h.registry }

// ResolveListing resolves a WAF listing page.
func (h *Harvester) ResolveListing(ctx context.Context, rawURL string) *listing.Listing {
	return h.resolver.Resolve(ctx, rawURL)
}

// HarvestFile fetches one source file and normalizes it. A fetch failure
// yields a failed batch rather than an error.
func (h *Harvester) HarvestFile(ctx context.Context, desc models.SourceDescriptor, coll *models.CollectionMeta) *models.Batch {
	start := time.Now()
	resp, err := h.fetcher.Fetch(ctx, desc.URL)
	if err != nil {
		h.log.Warn("source fetch failed", "url", desc.URL, "error", err)
		meta := models.NewProcessingMeta(desc, time.Now().UTC())
		failed := models.FailedBatch(desc, meta, models.ErrorKindFetch, "could not fetch source file", err)
		b := h.assembler.Assemble(desc, coll, failed.Meta, nil)
		h.finish(ctx, b, start)
		return b
	}
	return h.normalize(ctx, desc, resp.Body, resp.ContentType, resp.FetchedAt, coll, start)
}

// NormalizeBytes normalizes content that was obtained elsewhere, such as an
// upload.
func (h *Harvester) NormalizeBytes(ctx context.Context, desc models.SourceDescriptor, data []byte, coll *models.CollectionMeta) *models.Batch {
	return h.normalize(ctx, desc, data, desc.ContentType, time.Now().UTC(), coll, time.Now())
}

func (h *Harvester) normalize(ctx context.Context, desc models.SourceDescriptor, data []byte, contentType string, downloaded time.Time, coll *models.CollectionMeta, start time.Time) *models.Batch {
	in := &normalizer.Input{Source: desc, Data: data, ContentType: contentType, DownloadedAt: downloaded}

	n, err := h.registry.Find(in)
	if err != nil {
		meta := models.NewProcessingMeta(desc, downloaded)
		kind := models.ErrorKindStructural
		if errors.Is(err, normalizer.ErrNoNormalizer) {
			kind = models.ErrorKindUnsupported
		}
		failed := models.FailedBatch(desc, meta, kind, "no normalizer accepts this file", err)
		b := h.assembler.Assemble(desc, coll, failed.Meta, nil)
		h.finish(ctx, b, start)
		return b
	}

	res := n.Normalize(ctx, in)
	records := make([]*models.Record, 0, len(res.Records))
	for _, rec := range res.Records {
		records = append(records, Introspect(rec))
	}
	b := h.assembler.Assemble(desc, coll, res.Meta, records)
	h.finish(ctx, b, start)
	return b
}

// Introspect runs the spatial then the temporal introspector over a record.
func Introspect(rec *models.Record) *models.Record {
	return temporal.Introspect(spatial.Introspect(rec))
}

func (h *Harvester) finish(ctx context.Context, b *models.Batch, start time.Time) {
	h.metrics.ObserveBatch(b, time.Since(start))
	if err := h.publisher.Publish(ctx, events.BatchEvent(b)); err != nil {
		h.log.Warn("event publish failed", "url", b.Meta.SourceURL, "error", err)
	}
	if b.Meta.Failed() {
		h.log.Warn("batch failed", "url", b.Meta.SourceURL, "errors", len(b.Meta.ErrorList))
		return
	}
	h.log.Info("batch complete",
		"url", b.Meta.SourceURL,
		"normalizer", b.Meta.Normalizer,
		"records", len(b.Records),
		"notices", b.NoticeCount(),
	)
}

// HarvestWAF resolves a listing page and harvests every file it names.
func (h *Harvester) HarvestWAF(ctx context.Context, rawURL string, coll *models.CollectionMeta) (*listing.Listing, []*models.Batch) {
	l := h.resolver.Resolve(ctx, rawURL)
	batches := make([]*models.Batch, 0, len(l.Descriptors))
	for _, desc := range l.Descriptors {
		if ctx.Err() != nil {
			break
		}
		batches = append(batches, h.HarvestFile(ctx, desc, coll))
	}
	return l, batches
}

// Source lists everything to harvest for one collection.
type Source struct {
	Collection *models.CollectionMeta
	WAFURLs    []string
	Files      []models.SourceDescriptor
}

// SourceFromItem builds a Source from a catalog collection item.
func (h *Harvester) SourceFromItem(item *catalog.Item, now time.Time) Source {
	return Source{
		Collection: catalog.CollectionMetaFromItem(item, now),
		WAFURLs:    catalog.WAFLinks(item),
		Files:      catalog.ActionableFiles(item, h.acceptable),
	}
}

// Plan resolves the WAF listings of src and returns every file to harvest,
// catalog files first.
func (h *Harvester) Plan(ctx context.Context, src Source) []models.SourceDescriptor {
	plan := append([]models.SourceDescriptor{}, src.Files...)
	for _, u := range src.WAFURLs {
		plan = append(plan, h.resolver.Resolve(ctx, u).Descriptors...)
	}
	return plan
}

// ProgressFunc is called after each file with the batch just produced.
type ProgressFunc func(done, total int, b *models.Batch)

// HarvestCollection harvests every file of a collection in turn. When ctx is
// cancelled the report holds the files finished so far.
func (h *Harvester) HarvestCollection(ctx context.Context, src Source, progress ProgressFunc) *models.HarvestReport {
	report := &models.HarvestReport{Collection: src.Collection, Files: []*models.ProcessingMeta{}}
	plan := h.Plan(ctx, src)
	for i, desc := range plan {
		if ctx.Err() != nil {
			h.log.Warn("harvest cancelled", "done", i, "total", len(plan))
			break
		}
		b := h.HarvestFile(ctx, desc, src.Collection)
		report.Add(b)
		if progress != nil {
			progress(i+1, len(plan), b)
		}
	}
	return report
}
