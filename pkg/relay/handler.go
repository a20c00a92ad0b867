package relay

import (
	"net/http"

	"github.com/gobwas/ws"
	"github.com/labstack/echo"
	log "github.com/sirupsen/logrus"

	"github.com/ProCodeJH/antigravity-remote-control/pkg/admission"
)

// Handler serves the relay websocket endpoint.
type Handler struct {
	ctrl *Controller
	adm  *admission.Controller
}

func NewHandler(ctrl *Controller, adm *admission.Controller) *Handler {
	return &Handler{
		ctrl: ctrl,
		adm:  adm,
	}
}

// RegisterRoutes attaches the handlers to the echo web server
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	log.Debug("Register relay routes")
	e.Any("/ws/relay", h.relayHandler())
}

func (h *Handler) relayHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		ip := c.RealIP()

		if h.adm != nil {
			if err := h.adm.CheckRequestRate(ip); err != nil {
				return rejectAdmission(c, err)
			}
			if err := h.adm.CheckConnectionQuota(ip); err != nil {
				return rejectAdmission(c, err)
			}
		}

		conn, _, _, err := ws.UpgradeHTTP(c.Request(), c.Response())
		if err != nil {
			// The connection slot was claimed by the quota check above
			// and the teardown path will never run for this request.
			if h.adm != nil {
				h.adm.ReleaseConnection(ip)
			}
			return err
		}
		defer conn.Close()

		terminateCh := make(chan struct{})
		pc := h.ctrl.NewPeerChannel(conn, ip, terminateCh)
		defer pc.Close()

		<-terminateCh

		log.Debug("handler exit relay handler func")
		return nil
	}
}

func rejectAdmission(c echo.Context, err error) error {
	e, ok := err.(*admission.Error)
	if !ok {
		return err
	}

	log.Infof("handler rejected connection from %s: %s", c.RealIP(), e.Reason)

	body := map[string]interface{}{
		"error":  e.Reason,
		"status": http.StatusTooManyRequests,
	}
	if e.RetryAfter > 0 {
		body["retryAfter"] = int64(e.RetryAfter.Seconds()) + 1
	}

	return c.JSON(http.StatusTooManyRequests, body)
}
