package handlers

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/flowscript/flowscript/cmd/flowscript/container"
)

// WorkflowHandler serves workflow registration, patching, and execution.
type WorkflowHandler struct {
	c *container.Container
}

// NewWorkflowHandler creates a workflow handler.
func NewWorkflowHandler(c *container.Container) *WorkflowHandler {
	return &WorkflowHandler{c: c}
}

// RegisterWorkflow stores a workflow document.
// POST /api/v1/workflows
func (h *WorkflowHandler) RegisterWorkflow(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}

	def, err := h.c.Catalog.Register(body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	h.c.Logger.Info("workflow registered", "workflow_id", def.ID, "name", def.Name)
	return c.JSON(http.StatusCreated, map[string]any{
		"id":   def.ID,
		"name": def.Name,
	})
}

// ListWorkflows returns the registered workflow summaries.
// GET /api/v1/workflows
func (h *WorkflowHandler) ListWorkflows(c echo.Context) error {
	defs := h.c.Catalog.List()
	out := make([]map[string]any, 0, len(defs))
	for _, def := range defs {
		out = append(out, map[string]any{
			"id":       def.ID,
			"name":     def.Name,
			"metadata": def.Metadata,
		})
	}
	return c.JSON(http.StatusOK, out)
}

// PatchWorkflow applies an RFC 6902 patch to a stored workflow.
// POST /api/v1/workflows/:id/patch
func (h *WorkflowHandler) PatchWorkflow(c echo.Context) error {
	id := c.Param("id")

	patch, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}

	def, err := h.c.Catalog.Patch(id, patch)
	if err != nil {
		if _, exists := h.c.Catalog.Get(id); !exists {
			return echo.NewHTTPError(http.StatusNotFound, "workflow not found")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	h.c.Logger.Info("workflow patched", "workflow_id", id)
	return c.JSON(http.StatusOK, map[string]any{
		"id":      def.ID,
		"patched": true,
	})
}

// ExecuteRequest is the body of an execute call.
type ExecuteRequest struct {
	InitialInput map[string]any `json:"initialInput"`
	Input        map[string]any `json:"input"`
}

// ExecuteWorkflow starts an execution of a registered workflow.
// POST /api/v1/workflows/:id/execute
func (h *WorkflowHandler) ExecuteWorkflow(c echo.Context) error {
	id := c.Param("id")

	def, ok := h.c.Catalog.Get(id)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "workflow not found")
	}

	var req ExecuteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}

	input := req.InitialInput
	if input == nil {
		input = req.Input
	}

	executionID, err := h.c.Manager.StartExecution(def, input)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusCreated, map[string]any{
		"executionId": executionID,
		"status":      "started",
	})
}

// ListNodes returns registry metadata for discovery tools.
// GET /api/v1/nodes
func (h *WorkflowHandler) ListNodes(c echo.Context) error {
	return c.JSON(http.StatusOK, h.c.Registry.List())
}
