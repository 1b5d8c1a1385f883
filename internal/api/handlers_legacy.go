// handlers_legacy.go - Original route set kept for existing clients
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/svg-dedupe/backend/internal/detector"
	"github.com/svg-dedupe/backend/internal/jobs"
)

// LegacyHandlerImpl implements the LegacyHandler interface
type LegacyHandlerImpl struct {
	service JobService
	newID   func() string
}

// NewLegacyHandler creates a new legacy route handler
func NewLegacyHandler(service JobService) LegacyHandler {
	return &LegacyHandlerImpl{
		service: service,
		newID:   detector.NewJobID,
	}
}

func legacyError(c echo.Context, status int, message string) error {
	return c.JSON(status, map[string]interface{}{
		"isSuccess": false,
		"error":     message,
	})
}

// HandleUpload accepts SVG files and answers with the jobId envelope
func (h *LegacyHandlerImpl) HandleUpload(c echo.Context) error {
	files, err := readUploads(c)
	if err != nil {
		if errors.Is(err, errNoFilePart) {
			return legacyError(c, http.StatusBadRequest, "No file part")
		}
		return legacyError(c, http.StatusBadRequest, err.Error())
	}
	if len(files) == 0 {
		return legacyError(c, http.StatusBadRequest, "No files selected")
	}

	job, apiErr := submit(h.service, h.newID(), files)
	if apiErr != nil {
		if apiErr.Status == http.StatusBadRequest {
			return legacyError(c, apiErr.Status, "No valid SVG files uploaded")
		}
		return legacyError(c, apiErr.Status, apiErr.Message)
	}

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"isSuccess": true,
		"jobId":     job.ID,
		"message":   fmt.Sprintf("Processing started for %d files. Use /status/%s to check progress.", job.FilesCount, job.ID),
	})
}

// HandleStatus returns the job wrapped in the success envelope
func (h *LegacyHandlerImpl) HandleStatus(c echo.Context) error {
	job, err := h.service.GetStatus(c.Param("jobId"))
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			return legacyError(c, http.StatusNotFound, "Job not found")
		}
		return legacyError(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"isSuccess": true,
		"job":       job,
	})
}

// HandleResult returns the message and duplicate list of a completed job
func (h *LegacyHandlerImpl) HandleResult(c echo.Context) error {
	id := c.Param("jobId")
	result, err := h.service.GetResult(id)
	switch {
	case err == nil:
	case errors.Is(err, jobs.ErrNotFound):
		return legacyError(c, http.StatusNotFound, "Job not found")
	case errors.Is(err, jobs.ErrNotReady):
		resp := map[string]interface{}{
			"isSuccess": false,
			"error":     "Job not completed yet",
		}
		if job, statusErr := h.service.GetStatus(id); statusErr == nil {
			resp["status"] = job.Status
		}
		return c.JSON(http.StatusBadRequest, resp)
	default:
		return legacyError(c, http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"isSuccess": true,
		"message":   result.Message,
		"data":      result.Duplicates,
	})
}
