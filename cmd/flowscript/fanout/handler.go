package fanout

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/flowscript/flowscript/engine/manager"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The surface in front of this service enforces origins
		return true
	},
}

// Handler upgrades WebSocket subscriptions for one execution's events.
type Handler struct {
	hub *Hub
	mgr *manager.Manager
	log Logger
}

// NewHandler creates the WebSocket handler.
func NewHandler(hub *Hub, mgr *manager.Manager, log Logger) *Handler {
	return &Handler{hub: hub, mgr: mgr, log: log}
}

// Subscribe handles GET /ws?executionId=... upgrades.
func (h *Handler) Subscribe(c echo.Context) error {
	executionID := c.QueryParam("executionId")
	if executionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "executionId query parameter required")
	}

	if _, err := h.mgr.GetExecutionStatus(executionID); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "execution not found")
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return nil
	}

	client := NewClient(h.hub, conn, executionID, h.resume, h.log)
	h.hub.register <- client

	h.log.Debug("websocket subscriber connected",
		"execution_id", executionID,
		"remote", c.Request().RemoteAddr)

	go client.writePump()
	go client.readPump()
	return nil
}

func (h *Handler) resume(executionID, nodeID string, data any) error {
	return h.mgr.ResumeExecution(executionID, nodeID, data)
}
