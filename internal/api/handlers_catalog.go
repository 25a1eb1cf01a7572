// handlers_catalog.go - Catalog browsing handlers
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/nggdpp/ndc-harvester/internal/catalog"
)

// CatalogItemSummary describes one catalog collection and what a harvest of it would fetch
type CatalogItemSummary struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Link            string   `json:"link,omitempty"`
	Owner           string   `json:"owner,omitempty"`
	ActionableFiles int      `json:"actionableFiles"`
	WAFLinks        []string `json:"wafLinks,omitempty"`
}

// CatalogHandlerImpl implements the CatalogHandler interface
type CatalogHandlerImpl struct {
	catalog    CatalogBrowser
	acceptable []string
}

// NewCatalogHandler creates a new catalog handler instance
func NewCatalogHandler(browser CatalogBrowser, acceptable []string) CatalogHandler {
	if len(acceptable) == 0 {
		acceptable = catalog.DefaultAcceptableContentTypes
	}
	return &CatalogHandlerImpl{catalog: browser, acceptable: acceptable}
}

// HandleGetCatalogItems lists the items of a catalog folder or search.
// Query params: folderId, q, filter, max
func (h *CatalogHandlerImpl) HandleGetCatalogItems(c echo.Context) error {
	if h.catalog == nil {
		return NewServiceUnavailableError("catalog is not configured")
	}
	q := catalog.Query{
		FolderID: c.QueryParam("folderId"),
		Filter:   c.QueryParam("filter"),
		Q:        c.QueryParam("q"),
	}
	if q.FolderID == "" && q.Filter == "" && q.Q == "" {
		return NewValidationError("folderId")
	}
	if v := c.QueryParam("max"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return NewValidationError("max")
		}
		q.Max = n
	}

	items, err := h.catalog.Items(c.Request().Context(), q)
	if err != nil {
		return NewUpstreamError("failed to read catalog items", err.Error())
	}

	now := time.Now().UTC()
	summaries := make([]CatalogItemSummary, 0, len(items))
	for i := range items {
		item := &items[i]
		meta := catalog.CollectionMetaFromItem(item, now)
		summaries = append(summaries, CatalogItemSummary{
			ID:              item.ID,
			Title:           item.Title,
			Link:            item.Link.URL,
			Owner:           meta.Owner,
			ActionableFiles: len(catalog.ActionableFiles(item, h.acceptable)),
			WAFLinks:        catalog.WAFLinks(item),
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"items": summaries,
		"count": len(summaries),
	})
}
