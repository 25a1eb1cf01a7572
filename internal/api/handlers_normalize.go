// handlers_normalize.go - Upload and normalize handlers
package api

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/nggdpp/ndc-harvester/internal/logging"
	"github.com/nggdpp/ndc-harvester/internal/models"
	"github.com/nggdpp/ndc-harvester/internal/spatial"
	"github.com/nggdpp/ndc-harvester/internal/storage"
)

// NormalizeHandlerImpl implements the NormalizeHandler interface
type NormalizeHandlerImpl struct {
	normalizer Normalizer
	files      storage.FileStore
	log        *logging.Logger
}

// NewNormalizeHandler creates a new normalize handler instance. files may be
// nil, in which case uploads are not kept.
func NewNormalizeHandler(n Normalizer, files storage.FileStore, log *logging.Logger) NormalizeHandler {
	return &NormalizeHandlerImpl{normalizer: n, files: files, log: logging.OrNop(log).Component("normalize")}
}

type normalizeResponse struct {
	File               *models.FileInfo           `json:"file,omitempty"`
	FeatureCollection  *spatial.FeatureCollection `json:"featureCollection"`
	ProcessingMetadata *models.ProcessingMeta     `json:"processingMetadata"`
}

// HandleNormalize normalizes an uploaded file synchronously. A file that
// cannot be normalized is answered with 422 and its processing metadata.
func (h *NormalizeHandlerImpl) HandleNormalize(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return NewBadRequestError("missing file", err)
	}
	src, err := fh.Open()
	if err != nil {
		return NewBadRequestError("failed to open uploaded file", err)
	}
	defer src.Close()

	contentType := fh.Header.Get(echo.HeaderContentType)
	desc := models.SourceDescriptor{
		URL:         "upload:" + fh.Filename,
		Name:        fh.Filename,
		UploadDate:  time.Now().UTC(),
		Size:        fh.Size,
		ContentType: contentType,
		Origin:      models.OriginCatalogFile,
	}

	var info *models.FileInfo
	var data []byte
	if h.files != nil {
		info, err = h.files.Save(fh.Filename, contentType, src)
		if err != nil {
			return NewInternalError("failed to save file", err)
		}
		if data, err = h.files.Read(info.ID); err != nil {
			return NewInternalError("failed to read saved file", err)
		}
		desc.URL = "upload:" + info.ID
	} else if data, err = io.ReadAll(src); err != nil {
		return NewBadRequestError("failed to read uploaded file", err)
	}

	var coll *models.CollectionMeta
	if id := c.FormValue("collectionId"); id != "" {
		coll = &models.CollectionMeta{
			ID:     id,
			Title:  c.FormValue("title"),
			Link:   c.FormValue("link"),
			Owner:  c.FormValue("owner"),
			Cached: time.Now().UTC(),
		}
	}

	batch := h.normalizer.NormalizeBytes(c.Request().Context(), desc, data, coll)

	status := http.StatusOK
	fileStatus := "harvested"
	if batch.Meta.Failed() {
		status = http.StatusUnprocessableEntity
		fileStatus = "error"
	}
	if info != nil {
		if err := h.files.SetStatus(info.ID, fileStatus); err != nil {
			h.log.Warn("failed to update upload status", "file", info.ID, "status", fileStatus, "error", err)
		}
		info.Status = fileStatus
	}

	return c.JSON(status, normalizeResponse{
		File:               info,
		FeatureCollection:  spatial.ToFeatureCollection(batch.Records),
		ProcessingMetadata: batch.Meta,
	})
}

// HandleGetNormalizers lists the normalizers in detection order
func (h *NormalizeHandlerImpl) HandleGetNormalizers(c echo.Context) error {
	return c.JSON(http.StatusOK, h.normalizer.Registry().Names())
}

// HandleGetRecentFiles returns recently uploaded files
func (h *NormalizeHandlerImpl) HandleGetRecentFiles(c echo.Context) error {
	if h.files == nil {
		return NewServiceUnavailableError("upload storage is not configured")
	}
	limit := 20
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return NewValidationError("limit")
		}
		limit = n
	}
	files, err := h.files.List(limit)
	if err != nil {
		return NewInternalError("failed to list files", err)
	}
	return c.JSON(http.StatusOK, files)
}

// HandleDeleteFile removes an uploaded file
func (h *NormalizeHandlerImpl) HandleDeleteFile(c echo.Context) error {
	if h.files == nil {
		return NewServiceUnavailableError("upload storage is not configured")
	}
	id := c.Param("id")
	if _, err := h.files.Get(id); err != nil {
		return NewNotFoundError("file", id)
	}
	if err := h.files.Delete(id); err != nil {
		return NewInternalError("failed to delete file", err)
	}
	return c.NoContent(http.StatusNoContent)
}
