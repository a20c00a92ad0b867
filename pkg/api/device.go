package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo"

	"github.com/ProCodeJH/antigravity-remote-control/pkg/api/resource"
)

func (h *Handler) handleFetchDevices(c echo.Context) error {
	m, err := h.store.Devices().FetchAll()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, newErrorBody(err))
	}

	timeout := h.ctrl.Options().DeviceOnlineTimeout

	return c.JSON(http.StatusOK, resource.NewDeviceList(m, time.Now(), timeout))
}
