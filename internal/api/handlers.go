package api

import (
	"net/http"
	"strconv"

	"github.com/Kotoad/APP-PyQt-sub000/internal/execution"
	"github.com/Kotoad/APP-PyQt-sub000/internal/history"
	"github.com/Kotoad/APP-PyQt-sub000/internal/workspace"
	"github.com/labstack/echo/v4"
)

// Handler handles API requests.
type Handler struct {
	ws      *workspace.Workspace
	runs    *execution.Manager
	history *history.Store
	version string
}

// NewHandler creates a new API handler. The history store is optional.
func NewHandler(ws *workspace.Workspace, runs *execution.Manager, store *history.Store, version string) *Handler {
	return &Handler{
		ws:      ws,
		runs:    runs,
		history: store,
		version: version,
	}
}

// HandleHealth returns server health status.
func (h *Handler) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": h.version,
		"history": h.history != nil,
	})
}

// bind decodes the request body into v.
func bind(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	return nil
}

// queryInt reads an integer query parameter, returning def when absent
// or malformed.
func queryInt(c echo.Context, name string, def int) int {
	n, err := strconv.Atoi(c.QueryParam(name))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
