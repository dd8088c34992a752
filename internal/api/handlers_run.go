// handlers_run.go - Compilation, program runs and run history
package api

import (
	"net/http"
	"time"

	"github.com/Kotoad/APP-PyQt-sub000/internal/compiler"
	"github.com/Kotoad/APP-PyQt-sub000/internal/history"
	"github.com/labstack/echo/v4"
)

// artifactResponse is the JSON view of a compiled program.
type artifactResponse struct {
	Dialect  string   `json:"dialect"`
	Target   int      `json:"target"`
	Pins     []int    `json:"pins"`
	Warnings []string `json:"warnings"`
	Source   string   `json:"source"`
}

func newArtifactResponse(a *compiler.Artifact) artifactResponse {
	return artifactResponse{
		Dialect:  a.Dialect,
		Target:   a.Target,
		Pins:     a.Pins,
		Warnings: a.Warnings,
		Source:   string(a.Source),
	}
}

// HandleCompile compiles the open project.
func (h *Handler) HandleCompile(c echo.Context) error {
	a, err := h.ws.Compile()
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, newArtifactResponse(a))
}

// HandleGetArtifact returns the last successful compilation.
func (h *Handler) HandleGetArtifact(c echo.Context) error {
	a, ok := h.ws.Artifact()
	if !ok {
		return respond(c, NewNotFoundError("artifact", "current project"))
	}
	return c.JSON(http.StatusOK, newArtifactResponse(a))
}

// HandleRun compiles the open project and starts it on the board. Progress
// is streamed over the events websocket.
func (h *Handler) HandleRun(c echo.Context) error {
	info, err := h.ws.Run()
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusAccepted, info)
}

// HandleStop stops the active run.
func (h *Handler) HandleStop(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]bool{"stopped": h.ws.Stop()})
}

// HandleListRuns lists the runs still held in memory, newest first.
func (h *Handler) HandleListRuns(c echo.Context) error {
	return c.JSON(http.StatusOK, h.runs.Runs())
}

// HandleGetRun returns one run and refreshes its last-access time.
func (h *Handler) HandleGetRun(c echo.Context) error {
	id := c.Param("runId")
	info, ok := h.runs.GetRun(id)
	if !ok {
		return respond(c, NewNotFoundError("run", id))
	}
	h.runs.TouchRun(id)
	return c.JSON(http.StatusOK, info)
}

// HandleRunKeepAlive keeps a finished run from being cleaned up while a
// client still shows it.
func (h *Handler) HandleRunKeepAlive(c echo.Context) error {
	id := c.Param("runId")
	if !h.runs.TouchRun(id) {
		return respond(c, NewNotFoundError("run", id))
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) historyStore() (*history.Store, error) {
	if h.history == nil {
		return nil, NewServiceUnavailableError("run history is disabled")
	}
	return h.history, nil
}

// HandleHistoryRuns lists recorded runs, newest first.
func (h *Handler) HandleHistoryRuns(c echo.Context) error {
	store, err := h.historyStore()
	if err != nil {
		return respond(c, err)
	}
	runs, err := store.ListRuns(queryInt(c, "limit", 50))
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, runs)
}

// HandleHistoryEvents returns the recorded events of one run in order.
func (h *Handler) HandleHistoryEvents(c echo.Context) error {
	store, err := h.historyStore()
	if err != nil {
		return respond(c, err)
	}
	events, err := store.Events(c.Param("runId"))
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, events)
}

// HandleHistoryTelemetry returns the recorded telemetry samples of one run
// together with the last reported values.
func (h *Handler) HandleHistoryTelemetry(c echo.Context) error {
	store, err := h.historyStore()
	if err != nil {
		return respond(c, err)
	}
	samples, err := store.Telemetry(c.Param("runId"))
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"samples": samples,
		"latest":  history.Latest(samples),
	})
}

// HandleHistoryCleanup deletes runs that started before now minus the
// given number of days.
func (h *Handler) HandleHistoryCleanup(c echo.Context) error {
	store, err := h.historyStore()
	if err != nil {
		return respond(c, err)
	}
	days := queryInt(c, "days", 30)
	n, err := store.CleanupBefore(time.Now().Add(-time.Duration(days) * 24 * time.Hour))
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int{"deleted": n})
}
