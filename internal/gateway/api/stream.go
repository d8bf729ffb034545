package api

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/promptgate/promptgate/internal/common/errors"
	"github.com/promptgate/promptgate/internal/gateway/executor"
	v1 "github.com/promptgate/promptgate/pkg/api/v1"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// In production, validate origin
		return true
	},
}

// wsWriter serializes frame writes. Output chunks arrive from both stream
// reader goroutines and gorilla connections do not allow concurrent writers.
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) writeFrame(frame *v1.StreamFrame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(frame)
}

// StreamRun runs a prompt over a WebSocket, streaming output chunks as they
// arrive and closing with a single result frame.
// WS /v1/run/stream
func (h *Handler) StreamRun(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	var req RunRequest
	if err := conn.ReadJSON(&req); err != nil {
		h.logger.Debug("invalid stream request", zap.Error(err))
		return
	}

	writer := &wsWriter{conn: conn}
	sink := func(stream, data string) {
		_ = writer.writeFrame(&v1.StreamFrame{Type: stream, Data: data})
	}

	result, runErr := h.executor.Run(c.Request.Context(), executor.Request{
		Prompt:  req.Prompt,
		Context: req.Context,
	}, sink)
	if runErr != nil {
		appErr := errors.Wrap(runErr, "execution rejected")
		_ = writer.writeFrame(&v1.StreamFrame{
			Type:    v1.FrameResult,
			Code:    appErr.Code,
			Message: appErr.Message,
		})
		return
	}

	frame := &v1.StreamFrame{
		Type:     v1.FrameResult,
		AuthMode: v1.AuthMode(result.AuthMode),
	}
	if appErr := result.Err(); appErr != nil {
		frame.Code = appErr.Code
		frame.Message = appErr.Message
	} else {
		frame.Success = true
		frame.Response = result.Text
	}
	_ = writer.writeFrame(frame)
}
