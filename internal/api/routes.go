// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"github.com/labstack/echo/v4"
	"github.com/nggdpp/ndc-harvester/internal/logging"
	"github.com/nggdpp/ndc-harvester/internal/metrics"
	"github.com/nggdpp/ndc-harvester/internal/storage"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Normalizer Normalizer
	Jobs       JobManager
	Records    storage.RecordStore
	Files      storage.FileStore
	Catalog    CatalogBrowser
	Metrics    *metrics.Metrics
	Logger     *logging.Logger
	Version    string

	// AcceptableTypes filters catalog files; nil uses the catalog defaults
	AcceptableTypes []string
}

// Handlers holds all handler instances
type Handlers struct {
	Health     HealthHandler
	Listing    ListingHandler
	Normalize  NormalizeHandler
	Harvest    HarvestHandler
	Collection CollectionHandler
	Catalog    CatalogHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:     NewHealthHandler(deps.Version, deps.Metrics),
		Listing:    NewListingHandler(deps.Normalizer),
		Normalize:  NewNormalizeHandler(deps.Normalizer, deps.Files, deps.Logger),
		Harvest:    NewHarvestHandler(deps.Jobs),
		Collection: NewCollectionHandler(deps.Records),
		Catalog:    NewCatalogHandler(deps.Catalog, deps.AcceptableTypes),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	e.GET("/health", handlers.Health.HandleHealth)
	e.GET("/metrics", handlers.Health.HandleMetrics)

	api := e.Group("/api")
	api.GET("/listing", handlers.Listing.HandleResolveListing)
	api.GET("/normalizers", handlers.Normalize.HandleGetNormalizers)
	api.POST("/normalize", handlers.Normalize.HandleNormalize)

	// Uploaded files
	api.GET("/files/recent", handlers.Normalize.HandleGetRecentFiles)
	api.DELETE("/files/:id", handlers.Normalize.HandleDeleteFile)

	// Harvest job routes
	harvestGroup := api.Group("/harvest")
	harvestGroup.POST("", handlers.Harvest.HandleStartHarvest)
	harvestGroup.GET("", handlers.Harvest.HandleListJobs)
	harvestGroup.GET("/:jobId/status", handlers.Harvest.HandleHarvestStatus)
	harvestGroup.GET("/:jobId/progress", handlers.Harvest.HandleHarvestProgressStream)
	harvestGroup.GET("/:jobId/features", handlers.Harvest.HandleHarvestFeatures)
	harvestGroup.GET("/:jobId/features/msgpack", handlers.Harvest.HandleHarvestFeaturesMsgpack)
	harvestGroup.GET("/:jobId/report", handlers.Harvest.HandleHarvestReport)

	// Stored records
	api.GET("/collections/:id/items", handlers.Collection.HandleGetItems)
	api.GET("/processing-log", handlers.Collection.HandleGetProcessingLog)

	// Catalog browsing
	api.GET("/catalog/items", handlers.Catalog.HandleGetCatalogItems)
}

// SetupMiddleware configures the error handler
func SetupMiddleware(e *echo.Echo) {
	e.HTTPErrorHandler = ErrorHandler
}
