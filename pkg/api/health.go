package api

import (
	"net/http"

	"github.com/labstack/echo"
)

func (h *Handler) handleHealth(c echo.Context) error {
	snapshot, err := h.ctrl.Health()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, newErrorBody(err))
	}

	return c.JSON(http.StatusOK, snapshot)
}
