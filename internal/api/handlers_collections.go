// handlers_collections.go - Stored record handlers
package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/nggdpp/ndc-harvester/internal/storage"
)

const defaultItemLimit = 100

// CollectionHandlerImpl implements the CollectionHandler interface
type CollectionHandlerImpl struct {
	store storage.RecordStore
}

// NewCollectionHandler creates a new collection handler instance
func NewCollectionHandler(store storage.RecordStore) CollectionHandler {
	return &CollectionHandlerImpl{store: store}
}

// HandleGetItems returns stored items of a collection, oldest first
func (h *CollectionHandlerImpl) HandleGetItems(c echo.Context) error {
	if h.store == nil {
		return NewServiceUnavailableError("record store is not configured")
	}
	limit, err := limitParam(c)
	if err != nil {
		return err
	}
	id := c.Param("id")
	items, err := h.store.Items(c.Request().Context(), id, limit)
	if err != nil {
		return NewInternalError("failed to read items", err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"collectionId": id,
		"items":        items,
		"count":        len(items),
	})
}

// HandleGetProcessingLog returns the newest processing log entries
func (h *CollectionHandlerImpl) HandleGetProcessingLog(c echo.Context) error {
	if h.store == nil {
		return NewServiceUnavailableError("record store is not configured")
	}
	limit, err := limitParam(c)
	if err != nil {
		return err
	}
	entries, err := h.store.ProcessingLog(c.Request().Context(), limit)
	if err != nil {
		return NewInternalError("failed to read processing log", err)
	}
	return c.JSON(http.StatusOK, entries)
}

func limitParam(c echo.Context) (int, error) {
	v := c.QueryParam("limit")
	if v == "" {
		return defaultItemLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, NewValidationError("limit")
	}
	return n, nil
}
