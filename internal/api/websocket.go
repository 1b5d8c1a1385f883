package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/svg-dedupe/backend/internal/models"
)

// WebSocket message types for the progress protocol
const (
	MsgTypeProgress = "progress"
	MsgTypeComplete = "complete"
	MsgTypeError    = "error"
)

// WebSocket message structure
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// WebSocket error response
type WSErrorResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// WebSocketHandler pushes job snapshots to a client until the job ends
type WebSocketHandler struct {
	service      JobService
	upgrader     websocket.Upgrader
	pollInterval time.Duration
	logger       *zap.Logger
}

// NewWebSocketHandler creates a new WebSocket progress handler
func NewWebSocketHandler(service JobService, pollInterval time.Duration, logger *zap.Logger) *WebSocketHandler {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketHandler{
		service: service,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
		},
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// HandleJobProgress upgrades the connection and sends a snapshot whenever the
// job's status or progress changes. The final snapshot is a complete or
// error message, after which the server closes the connection.
func (wsh *WebSocketHandler) HandleJobProgress(c echo.Context) error {
	id := c.Param("jobId")
	if id == "" {
		return NewValidationError("jobId")
	}
	if _, err := wsh.service.GetStatus(id); err != nil {
		return jobError(err, id)
	}

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	log := wsh.logger.With(zap.String("job_id", id))
	log.Debug("progress client connected")

	// Control frames are only processed while reading
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsh.pollInterval)
	defer ticker.Stop()

	var last *models.Job
	for {
		job, err := wsh.service.GetStatus(id)
		if err != nil {
			wsh.sendError(ws, id, "job no longer available", "NOT_FOUND")
			return nil
		}

		if last == nil || changed(*last, job) {
			if err := wsh.sendMessage(ws, snapshotMessage(job)); err != nil {
				log.Debug("progress client write failed", zap.Error(err))
				return nil
			}
			last = &job
		}
		if job.Status.Terminal() {
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(job.Status)),
				time.Now().Add(time.Second))
			return nil
		}

		select {
		case <-gone:
			log.Debug("progress client disconnected")
			return nil
		case <-c.Request().Context().Done():
			return nil
		case <-ticker.C:
		}
	}
}

func changed(prev, next models.Job) bool {
	return prev.Status != next.Status || prev.Progress != next.Progress
}

func snapshotMessage(job models.Job) WSMessage {
	msgType := MsgTypeProgress
	switch job.Status {
	case models.JobStatusCompleted:
		msgType = MsgTypeComplete
	case models.JobStatusFailed:
		msgType = MsgTypeError
	}
	return WSMessage{
		Type:      msgType,
		ID:        job.ID,
		Payload:   mustJSON(job),
		Timestamp: time.Now().UnixMilli(),
	}
}

// Helper methods

func (wsh *WebSocketHandler) sendMessage(ws *websocket.Conn, msg WSMessage) error {
	_ = ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return ws.WriteJSON(msg)
}

func (wsh *WebSocketHandler) sendError(ws *websocket.Conn, id, message, code string) {
	err := wsh.sendMessage(ws, WSMessage{
		Type:      MsgTypeError,
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
		Payload: mustJSON(WSErrorResponse{
			Type:    MsgTypeError,
			Message: message,
			Code:    code,
		}),
	})
	if err != nil {
		wsh.logger.Debug("failed to send websocket error", zap.String("job_id", id), zap.Error(err))
	}
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
