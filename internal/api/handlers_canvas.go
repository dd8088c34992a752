// handlers_canvas.go - Canvas gestures, block parameters, bindings and
// function canvases
package api

import (
	"net/http"

	"github.com/Kotoad/APP-PyQt-sub000/internal/canvas"
	"github.com/Kotoad/APP-PyQt-sub000/internal/diagram"
	"github.com/Kotoad/APP-PyQt-sub000/internal/models"
	"github.com/labstack/echo/v4"
)

type pointRequest struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type portRequest struct {
	BlockID string      `json:"blockId"`
	Port    models.Port `json:"port"`
}

func stateResponse(c echo.Context, s canvas.State) error {
	return c.JSON(http.StatusOK, map[string]string{"state": s.String()})
}

// HandleCanvasState returns the interaction state of a canvas.
func (h *Handler) HandleCanvasState(c echo.Context) error {
	s, err := h.ws.CanvasState(c.Param("canvasId"))
	if err != nil {
		return respond(c, err)
	}
	return stateResponse(c, s)
}

// HandleBeginAddBlock arms the canvas to place a block of the given type.
func (h *Handler) HandleBeginAddBlock(c echo.Context) error {
	var req struct {
		Type models.BlockType `json:"type"`
	}
	if err := bind(c, &req); err != nil {
		return respond(c, err)
	}
	if err := h.ws.BeginAddBlock(c.Param("canvasId"), req.Type); err != nil {
		return respond(c, err)
	}
	return h.HandleCanvasState(c)
}

// HandleClickCanvas places the armed block at the snapped position.
func (h *Handler) HandleClickCanvas(c echo.Context) error {
	var req pointRequest
	if err := bind(c, &req); err != nil {
		return respond(c, err)
	}
	id, err := h.ws.ClickCanvas(c.Param("canvasId"), req.X, req.Y)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"id": id})
}

// HandleClickOutputPort starts a path from an output port.
func (h *Handler) HandleClickOutputPort(c echo.Context) error {
	var req portRequest
	if err := bind(c, &req); err != nil {
		return respond(c, err)
	}
	if err := h.ws.ClickOutputPort(c.Param("canvasId"), req.BlockID, req.Port); err != nil {
		return respond(c, err)
	}
	return h.HandleCanvasState(c)
}

// HandleClickInputPort finishes the pending path on an input port.
func (h *Handler) HandleClickInputPort(c echo.Context) error {
	var req portRequest
	if err := bind(c, &req); err != nil {
		return respond(c, err)
	}
	id, err := h.ws.ClickInputPort(c.Param("canvasId"), req.BlockID, req.Port)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"id": id})
}

// HandlePressOnBlock starts moving a block.
func (h *Handler) HandlePressOnBlock(c echo.Context) error {
	var req struct {
		BlockID string `json:"blockId"`
	}
	if err := bind(c, &req); err != nil {
		return respond(c, err)
	}
	if err := h.ws.PressOnBlock(c.Param("canvasId"), req.BlockID); err != nil {
		return respond(c, err)
	}
	return h.HandleCanvasState(c)
}

// HandleDrag moves the held block.
func (h *Handler) HandleDrag(c echo.Context) error {
	var req pointRequest
	if err := bind(c, &req); err != nil {
		return respond(c, err)
	}
	if err := h.ws.Drag(c.Param("canvasId"), req.X, req.Y); err != nil {
		return respond(c, err)
	}
	return h.HandleCanvasState(c)
}

// HandleRelease drops the held block.
func (h *Handler) HandleRelease(c echo.Context) error {
	var req pointRequest
	if err := bind(c, &req); err != nil {
		return respond(c, err)
	}
	if err := h.ws.Release(c.Param("canvasId"), req.X, req.Y); err != nil {
		return respond(c, err)
	}
	return h.HandleCanvasState(c)
}

// HandleCancel aborts the current gesture.
func (h *Handler) HandleCancel(c echo.Context) error {
	cancelled, err := h.ws.Cancel(c.Param("canvasId"))
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"cancelled": cancelled})
}

// HandleDeleteItem removes a block or path from a canvas.
func (h *Handler) HandleDeleteItem(c echo.Context) error {
	if err := h.ws.DeleteItem(c.Param("canvasId"), c.Param("id")); err != nil {
		return respond(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleSetParam writes one block parameter.
func (h *Handler) HandleSetParam(c echo.Context) error {
	var req struct {
		Value interface{} `json:"value"`
	}
	if err := bind(c, &req); err != nil {
		return respond(c, err)
	}
	if err := h.ws.SetParam(c.Param("blockId"), c.Param("key"), req.Value); err != nil {
		return respond(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleAddVariable adds a variable to a scope.
func (h *Handler) HandleAddVariable(c echo.Context) error {
	var f diagram.VariableFields
	if err := bind(c, &f); err != nil {
		return respond(c, err)
	}
	id, err := h.ws.AddVariable(c.Param("scopeId"), f)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"id": id})
}

// HandleUpdateVariable replaces the fields of a variable.
func (h *Handler) HandleUpdateVariable(c echo.Context) error {
	var f diagram.VariableFields
	if err := bind(c, &f); err != nil {
		return respond(c, err)
	}
	if err := h.ws.UpdateVariable(c.Param("scopeId"), c.Param("id"), f); err != nil {
		return respond(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleAddDevice adds a device to a scope.
func (h *Handler) HandleAddDevice(c echo.Context) error {
	var f diagram.DeviceFields
	if err := bind(c, &f); err != nil {
		return respond(c, err)
	}
	id, err := h.ws.AddDevice(c.Param("scopeId"), f)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"id": id})
}

// HandleUpdateDevice replaces the fields of a device.
func (h *Handler) HandleUpdateDevice(c echo.Context) error {
	var f diagram.DeviceFields
	if err := bind(c, &f); err != nil {
		return respond(c, err)
	}
	if err := h.ws.UpdateDevice(c.Param("scopeId"), c.Param("id"), f); err != nil {
		return respond(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleRenameBinding renames a variable or device.
func (h *Handler) HandleRenameBinding(c echo.Context) error {
	var req nameRequest
	if err := bind(c, &req); err != nil {
		return respond(c, err)
	}
	if err := h.ws.RenameBinding(c.Param("scopeId"), c.Param("id"), req.Name); err != nil {
		return respond(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleDeleteBinding removes a variable or device.
func (h *Handler) HandleDeleteBinding(c echo.Context) error {
	if err := h.ws.DeleteBinding(c.Param("scopeId"), c.Param("id")); err != nil {
		return respond(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleAddFunction creates a function canvas.
func (h *Handler) HandleAddFunction(c echo.Context) error {
	var req nameRequest
	if err := bind(c, &req); err != nil {
		return respond(c, err)
	}
	id, err := h.ws.AddFunctionCanvas(req.Name)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"id": id})
}

// HandleRenameFunction renames a function canvas and its call sites.
func (h *Handler) HandleRenameFunction(c echo.Context) error {
	var req nameRequest
	if err := bind(c, &req); err != nil {
		return respond(c, err)
	}
	if err := h.ws.RenameFunctionCanvas(c.Param("id"), req.Name); err != nil {
		return respond(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleDeleteFunction removes a function canvas.
func (h *Handler) HandleDeleteFunction(c echo.Context) error {
	if err := h.ws.DeleteFunctionCanvas(c.Param("id")); err != nil {
		return respond(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleListDialogs lists open dialogs, back to front.
func (h *Handler) HandleListDialogs(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"open": h.ws.Dialogs()})
}

// HandleOpenDialog shows a dialog or raises it when already open.
func (h *Handler) HandleOpenDialog(c echo.Context) error {
	raised, err := h.ws.OpenDialog(canvas.Dialog(c.Param("dialog")))
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"raised": raised, "open": h.ws.Dialogs()})
}

// HandleCloseDialog hides a dialog.
func (h *Handler) HandleCloseDialog(c echo.Context) error {
	closed := h.ws.CloseDialog(canvas.Dialog(c.Param("dialog")))
	return c.JSON(http.StatusOK, map[string]interface{}{"closed": closed, "open": h.ws.Dialogs()})
}
