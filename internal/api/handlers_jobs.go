// handlers_jobs.go - Detection job handlers
package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/svg-dedupe/backend/internal/detector"
	"github.com/svg-dedupe/backend/internal/jobs"
	"github.com/svg-dedupe/backend/internal/models"
)

// uploadField is the multipart field carrying the SVG files
const uploadField = "file"

var errNoFilePart = errors.New("no file part")

// JobHandlerImpl implements the JobHandler interface
type JobHandlerImpl struct {
	service JobService
	newID   func() string
}

// NewJobHandler creates a new job handler
func NewJobHandler(service JobService) JobHandler {
	return &JobHandlerImpl{
		service: service,
		newID:   detector.NewJobID,
	}
}

// submitResponse is returned when a job is accepted
type submitResponse struct {
	JobID      string           `json:"jobId"`
	Status     models.JobStatus `json:"status"`
	FilesCount int              `json:"filesCount"`
	Message    string           `json:"message"`
}

// HandleSubmitJob accepts SVG files as multipart/form-data and starts a detection job
func (h *JobHandlerImpl) HandleSubmitJob(c echo.Context) error {
	files, err := readUploads(c)
	if err != nil {
		if errors.Is(err, errNoFilePart) {
			return NewValidationError(uploadField)
		}
		return NewBadRequestError("invalid multipart upload", err)
	}

	job, apiErr := submit(h.service, h.newID(), files)
	if apiErr != nil {
		return apiErr
	}

	return c.JSON(http.StatusAccepted, submitResponse{
		JobID:      job.ID,
		Status:     job.Status,
		FilesCount: job.FilesCount,
		Message:    fmt.Sprintf("Processing started for %d files.", job.FilesCount),
	})
}

// HandleListJobs returns every known job without results
func (h *JobHandlerImpl) HandleListJobs(c echo.Context) error {
	list := h.service.ListJobs()
	for i := range list {
		list[i].Result = nil
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"jobs":  list,
		"total": len(list),
	})
}

// HandleJobStatus returns a snapshot of one job
func (h *JobHandlerImpl) HandleJobStatus(c echo.Context) error {
	id := c.Param("jobId")
	if id == "" {
		return NewValidationError("jobId")
	}

	job, err := h.service.GetStatus(id)
	if err != nil {
		return jobError(err, id)
	}
	return c.JSON(http.StatusOK, job)
}

// HandleJobResult returns the result of a completed job
func (h *JobHandlerImpl) HandleJobResult(c echo.Context) error {
	id := c.Param("jobId")
	result, apiErr := h.result(id)
	if apiErr != nil {
		return apiErr
	}
	return c.JSON(http.StatusOK, result)
}

// HandleJobResultMsgpack returns the result of a completed job in MessagePack format
func (h *JobHandlerImpl) HandleJobResultMsgpack(c echo.Context) error {
	id := c.Param("jobId")
	result, apiErr := h.result(id)
	if apiErr != nil {
		return apiErr
	}

	data, err := msgpack.Marshal(result)
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

func (h *JobHandlerImpl) result(id string) (*models.Result, *APIError) {
	if id == "" {
		return nil, NewValidationError("jobId")
	}

	result, err := h.service.GetResult(id)
	if err == nil {
		return result, nil
	}
	if errors.Is(err, jobs.ErrNotReady) {
		status := "unknown"
		if job, statusErr := h.service.GetStatus(id); statusErr == nil {
			status = string(job.Status)
		}
		return nil, NewNotReadyError(id, status)
	}
	return nil, jobError(err, id)
}

// submit hands files to the service and returns the accepted job
func submit(service JobService, id string, files map[string][]byte) (models.Job, *APIError) {
	if err := service.Submit(id, files); err != nil {
		return models.Job{}, jobError(err, id)
	}
	job, err := service.GetStatus(id)
	if err != nil {
		return models.Job{}, jobError(err, id)
	}
	return job, nil
}

// readUploads collects every file sent under the upload field, keyed by
// base name. A later file with the same name replaces an earlier one.
func readUploads(c echo.Context) (map[string][]byte, error) {
	form, err := c.MultipartForm()
	if err != nil {
		if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
			return nil, errNoFilePart
		}
		return nil, err
	}

	headers := form.File[uploadField]
	if len(headers) == 0 {
		return nil, errNoFilePart
	}

	files := make(map[string][]byte, len(headers))
	for _, fh := range headers {
		name := uploadName(fh.Filename)
		if name == "" {
			continue
		}
		data, err := readFileHeader(fh)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		files[name] = data
	}
	return files, nil
}

func uploadName(raw string) string {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, `\`, "/"))
	if raw == "" {
		return ""
	}
	name := filepath.Base(raw)
	if name == "." || name == "/" {
		return ""
	}
	return name
}

func readFileHeader(fh *multipart.FileHeader) ([]byte, error) {
	src, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return io.ReadAll(src)
}
