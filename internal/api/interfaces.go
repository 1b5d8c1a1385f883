// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"github.com/labstack/echo/v4"

	"github.com/svg-dedupe/backend/internal/models"
)

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// JobHandler handles detection job operations
type JobHandler interface {
	HandleSubmitJob(c echo.Context) error
	HandleListJobs(c echo.Context) error
	HandleJobStatus(c echo.Context) error
	HandleJobResult(c echo.Context) error
	HandleJobResultMsgpack(c echo.Context) error
}

// ProgressHandler streams job progress
type ProgressHandler interface {
	HandleJobProgress(c echo.Context) error
}

// LegacyHandler serves the original upload/status/result routes and their
// isSuccess response envelope
type LegacyHandler interface {
	HandleUpload(c echo.Context) error
	HandleStatus(c echo.Context) error
	HandleResult(c echo.Context) error
}

// JobService defines the detection operations the handlers depend on.
// This allows mocking in tests
type JobService interface {
	Submit(jobID string, files map[string][]byte) error
	GetStatus(jobID string) (models.Job, error)
	GetResult(jobID string) (*models.Result, error)
	ListJobs() []models.Job
}
