// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/nggdpp/ndc-harvester/internal/catalog"
	"github.com/nggdpp/ndc-harvester/internal/jobs"
	"github.com/nggdpp/ndc-harvester/internal/listing"
	"github.com/nggdpp/ndc-harvester/internal/models"
	"github.com/nggdpp/ndc-harvester/internal/normalizer"
	"github.com/nggdpp/ndc-harvester/internal/spatial"
)

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
	HandleMetrics(c echo.Context) error
}

// ListingHandler resolves WAF listing pages
type ListingHandler interface {
	HandleResolveListing(c echo.Context) error
}

// NormalizeHandler handles synchronous normalization of uploaded files
type NormalizeHandler interface {
	HandleNormalize(c echo.Context) error
	HandleGetNormalizers(c echo.Context) error
	HandleGetRecentFiles(c echo.Context) error
	HandleDeleteFile(c echo.Context) error
}

// HarvestHandler handles asynchronous harvest jobs
type HarvestHandler interface {
	HandleStartHarvest(c echo.Context) error
	HandleListJobs(c echo.Context) error
	HandleHarvestStatus(c echo.Context) error
	HandleHarvestProgressStream(c echo.Context) error
	HandleHarvestFeatures(c echo.Context) error
	HandleHarvestFeaturesMsgpack(c echo.Context) error
	HandleHarvestReport(c echo.Context) error
}

// CollectionHandler serves stored records
type CollectionHandler interface {
	HandleGetItems(c echo.Context) error
	HandleGetProcessingLog(c echo.Context) error
}

// CatalogHandler browses collection items in the catalog
type CatalogHandler interface {
	HandleGetCatalogItems(c echo.Context) error
}

// JobManager defines the interface for harvest job management
// This allows mocking in tests
type JobManager interface {
	Start(req jobs.Request) (*models.HarvestJob, error)
	Get(id string) (*models.HarvestJob, bool)
	List() []*models.HarvestJob
	Report(id string) (*models.HarvestReport, error)
	Features(id string) (*spatial.FeatureCollection, error)
}

// Normalizer is the part of the pipeline the handlers call directly
type Normalizer interface {
	ResolveListing(ctx context.Context, rawURL string) *listing.Listing
	NormalizeBytes(ctx context.Context, desc models.SourceDescriptor, data []byte, coll *models.CollectionMeta) *models.Batch
	Registry() *normalizer.Registry
}

// CatalogBrowser lists catalog items; satisfied by *catalog.Client
type CatalogBrowser interface {
	Items(ctx context.Context, q catalog.Query) ([]catalog.Item, error)
}
