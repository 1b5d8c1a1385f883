// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Service       JobService
	Version       string
	Mode          string
	PollInterval  time.Duration
	Logger        *zap.Logger
	ExposeDetails bool
}

// Handlers holds all handler instances
type Handlers struct {
	Health   HealthHandler
	Jobs     JobHandler
	Progress ProgressHandler
	Legacy   LegacyHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:   NewHealthHandler(deps.Version, deps.Mode),
		Jobs:     NewJobHandler(deps.Service),
		Progress: NewWebSocketHandler(deps.Service, deps.PollInterval, deps.Logger),
		Legacy:   NewLegacyHandler(deps.Service),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	// Health check
	e.GET("/", handlers.Health.HandleHealth)
	e.GET("/api/health", handlers.Health.HandleHealth)

	// Job routes
	jobGroup := e.Group("/api/jobs")
	jobGroup.POST("", handlers.Jobs.HandleSubmitJob)
	jobGroup.GET("", handlers.Jobs.HandleListJobs)
	jobGroup.GET("/:jobId/status", handlers.Jobs.HandleJobStatus)
	jobGroup.GET("/:jobId/result", handlers.Jobs.HandleJobResult)
	jobGroup.GET("/:jobId/result/msgpack", handlers.Jobs.HandleJobResultMsgpack)
	jobGroup.GET("/:jobId/ws", handlers.Progress.HandleJobProgress)

	// Legacy routes
	e.POST("/upload", handlers.Legacy.HandleUpload)
	e.GET("/status/:jobId", handlers.Legacy.HandleStatus)
	e.GET("/result/:jobId", handlers.Legacy.HandleResult)
}

// SetupMiddleware configures the error handler
func SetupMiddleware(e *echo.Echo, logger *zap.Logger, exposeDetails bool) {
	if logger == nil {
		logger = zap.NewNop()
	}
	e.HTTPErrorHandler = NewErrorHandler(logger, exposeDetails)
}
