// handlers_harvest.go - Harvest job handlers
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/nggdpp/ndc-harvester/internal/jobs"
	"github.com/nggdpp/ndc-harvester/internal/models"
	"github.com/vmihailenco/msgpack/v5"
)

// HarvestHandlerImpl implements the HarvestHandler interface
type HarvestHandlerImpl struct {
	jobs JobManager
}

// NewHarvestHandler creates a new harvest handler instance
func NewHarvestHandler(jm JobManager) HarvestHandler {
	return &HarvestHandlerImpl{jobs: jm}
}

// HandleStartHarvest starts a harvest job and answers 202 with the job
func (h *HarvestHandlerImpl) HandleStartHarvest(c echo.Context) error {
	var req jobs.Request
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.WAFURL != "" {
		if err := validateSourceURL(req.WAFURL); err != nil {
			return err
		}
	}
	for _, u := range req.FileURLs {
		if err := validateSourceURL(u); err != nil {
			return err
		}
	}

	job, err := h.jobs.Start(req)
	if err != nil {
		if errors.Is(err, jobs.ErrEmptyRequest) {
			return NewValidationError("wafUrl, fileUrls or catalogItemId")
		}
		return NewBadRequestError("failed to start harvest", err)
	}
	return c.JSON(http.StatusAccepted, job)
}

// HandleListJobs returns all known jobs
func (h *HarvestHandlerImpl) HandleListJobs(c echo.Context) error {
	return c.JSON(http.StatusOK, h.jobs.List())
}

// HandleHarvestStatus returns the current state of a job
func (h *HarvestHandlerImpl) HandleHarvestStatus(c echo.Context) error {
	id := c.Param("jobId")
	job, ok := h.jobs.Get(id)
	if !ok {
		return NewNotFoundError("job", id)
	}
	return c.JSON(http.StatusOK, job)
}

// HandleHarvestProgressStream streams job progress via SSE
func (h *HarvestHandlerImpl) HandleHarvestProgressStream(c echo.Context) error {
	id := c.Param("jobId")

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	job, ok := h.jobs.Get(id)
	if !ok {
		sendSSEError(c, "job not found")
		return nil
	}
	sendSSEData(c, job)
	if finished(job) {
		return nil
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	timeout := time.NewTimer(30 * time.Minute)
	defer timeout.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ticker.C:
			job, ok := h.jobs.Get(id)
			if !ok {
				sendSSEError(c, "job not found")
				return nil
			}
			sendSSEData(c, job)
			if finished(job) {
				return nil
			}

		case <-timeout.C:
			sendSSEError(c, "stream timeout")
			return nil

		case <-ctx.Done():
			return nil
		}
	}
}

// HandleHarvestFeatures returns a finished job's records as GeoJSON
func (h *HarvestHandlerImpl) HandleHarvestFeatures(c echo.Context) error {
	id := c.Param("jobId")
	fc, err := h.jobs.Features(id)
	if err != nil {
		return jobError(id, err)
	}
	return c.JSON(http.StatusOK, fc)
}

// HandleHarvestFeaturesMsgpack returns the same features encoded as msgpack
func (h *HarvestHandlerImpl) HandleHarvestFeaturesMsgpack(c echo.Context) error {
	id := c.Param("jobId")
	fc, err := h.jobs.Features(id)
	if err != nil {
		return jobError(id, err)
	}

	features := make([]map[string]interface{}, len(fc.Features))
	for i, f := range fc.Features {
		features[i] = f.ToMap()
	}
	data, err := msgpack.Marshal(map[string]interface{}{
		"type":                     fc.Type,
		"features":                 features,
		"processing_errors_number": fc.ProcessingErrorsNumber,
	})
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// HandleHarvestReport returns a finished job's processing report
func (h *HarvestHandlerImpl) HandleHarvestReport(c echo.Context) error {
	id := c.Param("jobId")
	report, err := h.jobs.Report(id)
	if err != nil {
		return jobError(id, err)
	}
	return c.JSON(http.StatusOK, report)
}

func jobError(id string, err error) error {
	if errors.Is(err, jobs.ErrJobNotFound) {
		return NewNotFoundError("job", id)
	}
	return NewConflictError(err.Error())
}

func finished(job *models.HarvestJob) bool {
	return job.Status == models.JobStatusComplete || job.Status == models.JobStatusError
}

func sendSSEData(c echo.Context, data interface{}) {
	jsonData, _ := json.Marshal(data)
	fmt.Fprintf(c.Response(), "data: %s\n\n", jsonData)
	c.Response().Flush()
}

func sendSSEError(c echo.Context, message string) {
	sendSSEData(c, map[string]string{"error": message})
}
