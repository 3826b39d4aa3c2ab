package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/flowscript/flowscript/cmd/flowscript/container"
	"github.com/flowscript/flowscript/engine/manager"
	"github.com/flowscript/flowscript/engine/runtime"
)

// ExecutionHandler serves execution status, resume, and cancel.
type ExecutionHandler struct {
	c *container.Container
}

// NewExecutionHandler creates an execution handler.
func NewExecutionHandler(c *container.Container) *ExecutionHandler {
	return &ExecutionHandler{c: c}
}

// GetStatus returns an execution record snapshot.
// GET /api/v1/executions/:id/status
func (h *ExecutionHandler) GetStatus(c echo.Context) error {
	snap, err := h.c.Manager.GetExecutionStatus(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "execution not found")
	}
	return c.JSON(http.StatusOK, snap)
}

// ListExecutions returns snapshots of all tracked executions.
// GET /api/v1/executions
func (h *ExecutionHandler) ListExecutions(c echo.Context) error {
	return c.JSON(http.StatusOK, h.c.Manager.GetAllExecutions())
}

// ResumeRequest is the body of a resume call.
type ResumeRequest struct {
	NodeID string `json:"nodeId"`
	Data   any    `json:"data"`
}

// Resume completes a pause token with caller-supplied data.
// POST /api/v1/executions/:id/resume
func (h *ExecutionHandler) Resume(c echo.Context) error {
	id := c.Param("id")

	var req ResumeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}
	if req.NodeID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "nodeId is required")
	}

	err := h.c.Manager.ResumeExecution(id, req.NodeID, req.Data)
	switch {
	case errors.Is(err, manager.ErrExecutionNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "execution not found")
	case errors.Is(err, manager.ErrNotPaused), errors.Is(err, runtime.ErrTokenResolved):
		return echo.NewHTTPError(http.StatusConflict, "execution is not paused at that node")
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]any{
		"executionId": id,
		"resumed":     true,
	})
}

// Cancel cancels an execution. Idempotent.
// POST /api/v1/executions/:id/cancel
func (h *ExecutionHandler) Cancel(c echo.Context) error {
	id := c.Param("id")

	if err := h.c.Manager.CancelExecution(id); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "execution not found")
	}

	return c.JSON(http.StatusOK, map[string]any{
		"executionId": id,
		"cancelled":   true,
	})
}
