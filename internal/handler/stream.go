package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/ejectlabs/eject/internal/events"
)

// StreamHandler upgrades clients onto the deployment event stream
type StreamHandler struct {
	hub      *events.Hub
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewStreamHandler creates a new StreamHandler
func NewStreamHandler(hub *events.Hub, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Events upgrades the connection and attaches it to the hub. The client
// receives every deployment event; filtering happens client-side.
func (h *StreamHandler) Events(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := events.NewClient(conn, h.logger)
	h.hub.Register(client)

	go func() {
		defer func() {
			h.hub.Unregister(client)
			client.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}
