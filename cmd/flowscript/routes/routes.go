// Package routes registers the REST and WebSocket surface.
package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/flowscript/flowscript/cmd/flowscript/container"
	"github.com/flowscript/flowscript/cmd/flowscript/fanout"
	"github.com/flowscript/flowscript/cmd/flowscript/handlers"
)

// Register wires every route onto the echo instance.
func Register(e *echo.Echo, c *container.Container, ws *fanout.Handler) {
	workflowHandler := handlers.NewWorkflowHandler(c)
	executionHandler := handlers.NewExecutionHandler(c)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})

	workflows := e.Group("/api/v1/workflows")
	{
		workflows.POST("", workflowHandler.RegisterWorkflow)
		workflows.GET("", workflowHandler.ListWorkflows)
		workflows.POST("/:id/patch", workflowHandler.PatchWorkflow)
		workflows.POST("/:id/execute", workflowHandler.ExecuteWorkflow)
	}

	executions := e.Group("/api/v1/executions")
	{
		executions.GET("", executionHandler.ListExecutions)
		executions.GET("/:id/status", executionHandler.GetStatus)
		executions.POST("/:id/resume", executionHandler.Resume)
		executions.POST("/:id/cancel", executionHandler.Cancel)
	}

	e.GET("/api/v1/nodes", workflowHandler.ListNodes)

	e.GET("/ws", ws.Subscribe)
}
