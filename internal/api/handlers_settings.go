// handlers_settings.go - App settings and translations
package api

import (
	"net/http"

	"github.com/Kotoad/APP-PyQt-sub000/internal/models"
	"github.com/labstack/echo/v4"
)

// HandleGetSettings returns the app settings.
func (h *Handler) HandleGetSettings(c echo.Context) error {
	return c.JSON(http.StatusOK, h.ws.AppSettings())
}

// HandleUpdateSettings stores new app settings. Unset fields fall back to
// their defaults.
func (h *Handler) HandleUpdateSettings(c echo.Context) error {
	var s models.AppSettings
	if err := bind(c, &s); err != nil {
		return respond(c, err)
	}
	saved, err := h.ws.UpdateAppSettings(s)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, saved)
}

// HandleLanguages lists the available UI languages.
func (h *Handler) HandleLanguages(c echo.Context) error {
	langs, err := h.ws.Languages()
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, langs)
}

// HandleTranslate resolves ?key= in the configured language.
func (h *Handler) HandleTranslate(c echo.Context) error {
	key := c.QueryParam("key")
	if key == "" {
		return respond(c, NewBadRequestError("key is required", nil))
	}
	return c.JSON(http.StatusOK, map[string]string{
		"key":  key,
		"text": h.ws.Translate(key),
	})
}
