// handlers_project.go - Project file handlers
package api

import (
	"net/http"
	"time"

	"github.com/Kotoad/APP-PyQt-sub000/internal/storage"
	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"
)

type nameRequest struct {
	Name string `json:"name"`
}

// snapshotInfo is the JSON view of an autosave envelope.
type snapshotInfo struct {
	ID          string    `json:"id"`
	SavedAt     time.Time `json:"savedAt"`
	ProjectName string    `json:"projectName"`
	Size        int       `json:"size"`
}

func newSnapshotInfo(s *storage.Snapshot) snapshotInfo {
	return snapshotInfo{ID: s.ID, SavedAt: s.SavedAt, ProjectName: s.ProjectName, Size: len(s.Document)}
}

// HandleGetProject returns the open project in its file format.
func (h *Handler) HandleGetProject(c echo.Context) error {
	doc, err := h.ws.Document()
	if err != nil {
		return respond(c, err)
	}
	return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, doc)
}

// HandleExportMsgpack returns the open project wrapped in a msgpack
// snapshot envelope.
func (h *Handler) HandleExportMsgpack(c echo.Context) error {
	snap, err := h.ws.Snapshot()
	if err != nil {
		return respond(c, err)
	}
	data, err := msgpack.Marshal(snap)
	if err != nil {
		return respond(c, NewInternalError("failed to encode msgpack", err))
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// HandleNewProject replaces the open project with an empty one.
func (h *Handler) HandleNewProject(c echo.Context) error {
	var req nameRequest
	if err := bind(c, &req); err != nil {
		return respond(c, err)
	}
	if err := h.ws.NewProject(req.Name); err != nil {
		return respond(c, err)
	}
	return h.HandleGetProject(c)
}

// HandleOpenProject loads a project from the projects directory.
func (h *Handler) HandleOpenProject(c echo.Context) error {
	var req nameRequest
	if err := bind(c, &req); err != nil {
		return respond(c, err)
	}
	if req.Name == "" {
		return respond(c, NewBadRequestError("name is required", nil))
	}
	if err := h.ws.OpenProject(req.Name); err != nil {
		return respond(c, err)
	}
	return h.HandleGetProject(c)
}

// HandleSaveProject writes the open project. An empty name keeps the
// current project name.
func (h *Handler) HandleSaveProject(c echo.Context) error {
	var req nameRequest
	if err := bind(c, &req); err != nil {
		return respond(c, err)
	}
	path, err := h.ws.SaveProject(req.Name)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"path": path})
}

// HandleProjectDiff compares the open project with its saved copy.
func (h *Handler) HandleProjectDiff(c echo.Context) error {
	cmp, err := h.ws.Diff()
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, cmp)
}

// HandleDuplicates lists binding names used more than once per scope.
func (h *Handler) HandleDuplicates(c echo.Context) error {
	return c.JSON(http.StatusOK, h.ws.Duplicates())
}

// HandleRecentProjects lists saved projects, newest first.
func (h *Handler) HandleRecentProjects(c echo.Context) error {
	infos, err := h.ws.RecentProjects(queryInt(c, "limit", 10))
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, infos)
}

// HandleAutosave writes a snapshot of the open project.
func (h *Handler) HandleAutosave(c echo.Context) error {
	snap, err := h.ws.Autosave()
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusCreated, newSnapshotInfo(snap))
}

// HandleRecoverAutosave replaces the open project with the last snapshot.
func (h *Handler) HandleRecoverAutosave(c echo.Context) error {
	snap, err := h.ws.RecoverAutosave()
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, newSnapshotInfo(snap))
}
