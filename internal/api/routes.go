// routes.go - Route registration helpers
package api

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, h *Handler, wsh *WebSocketHandler) {
	apiGroup := e.Group("/api")

	// Health check
	apiGroup.GET("/health", h.HandleHealth)

	// Run event stream
	apiGroup.GET("/ws/events", wsh.HandleWebSocket)

	// Project files
	apiGroup.GET("/project", h.HandleGetProject)
	apiGroup.GET("/project/export.msgpack", h.HandleExportMsgpack)
	apiGroup.POST("/project/new", h.HandleNewProject)
	apiGroup.POST("/project/open", h.HandleOpenProject)
	apiGroup.POST("/project/save", h.HandleSaveProject)
	apiGroup.GET("/project/diff", h.HandleProjectDiff)
	apiGroup.GET("/project/duplicates", h.HandleDuplicates)
	apiGroup.POST("/project/autosave", h.HandleAutosave)
	apiGroup.POST("/project/recover", h.HandleRecoverAutosave)
	apiGroup.GET("/projects/recent", h.HandleRecentProjects)

	// Canvas gestures
	canvasGroup := apiGroup.Group("/canvas/:canvasId")
	canvasGroup.GET("/state", h.HandleCanvasState)
	canvasGroup.POST("/add", h.HandleBeginAddBlock)
	canvasGroup.POST("/click", h.HandleClickCanvas)
	canvasGroup.POST("/output", h.HandleClickOutputPort)
	canvasGroup.POST("/input", h.HandleClickInputPort)
	canvasGroup.POST("/press", h.HandlePressOnBlock)
	canvasGroup.POST("/drag", h.HandleDrag)
	canvasGroup.POST("/release", h.HandleRelease)
	canvasGroup.POST("/cancel", h.HandleCancel)
	canvasGroup.DELETE("/items/:id", h.HandleDeleteItem)

	apiGroup.PUT("/blocks/:blockId/params/:key", h.HandleSetParam)

	// Variables and devices
	scopeGroup := apiGroup.Group("/scopes/:scopeId")
	scopeGroup.POST("/variables", h.HandleAddVariable)
	scopeGroup.PUT("/variables/:id", h.HandleUpdateVariable)
	scopeGroup.POST("/devices", h.HandleAddDevice)
	scopeGroup.PUT("/devices/:id", h.HandleUpdateDevice)
	scopeGroup.PUT("/bindings/:id/name", h.HandleRenameBinding)
	scopeGroup.DELETE("/bindings/:id", h.HandleDeleteBinding)

	// Function canvases
	apiGroup.POST("/functions", h.HandleAddFunction)
	apiGroup.PUT("/functions/:id", h.HandleRenameFunction)
	apiGroup.DELETE("/functions/:id", h.HandleDeleteFunction)

	// Dialogs
	apiGroup.GET("/dialogs", h.HandleListDialogs)
	apiGroup.POST("/dialogs/:dialog", h.HandleOpenDialog)
	apiGroup.DELETE("/dialogs/:dialog", h.HandleCloseDialog)

	// Compile and run
	apiGroup.POST("/compile", h.HandleCompile)
	apiGroup.GET("/compile/artifact", h.HandleGetArtifact)
	apiGroup.POST("/run", h.HandleRun)
	apiGroup.POST("/run/stop", h.HandleStop)
	apiGroup.GET("/runs", h.HandleListRuns)
	apiGroup.GET("/runs/:runId", h.HandleGetRun)
	apiGroup.POST("/runs/:runId/keepalive", h.HandleRunKeepAlive)

	// Run history
	apiGroup.GET("/history/runs", h.HandleHistoryRuns)
	apiGroup.GET("/history/runs/:runId/events", h.HandleHistoryEvents)
	apiGroup.GET("/history/runs/:runId/telemetry", h.HandleHistoryTelemetry)
	apiGroup.POST("/history/cleanup", h.HandleHistoryCleanup)

	// Settings and translations
	apiGroup.GET("/settings", h.HandleGetSettings)
	apiGroup.PUT("/settings", h.HandleUpdateSettings)
	apiGroup.GET("/languages", h.HandleLanguages)
	apiGroup.GET("/translate", h.HandleTranslate)
}
