package api

import (
	"net/http"

	"github.com/labstack/echo"

	"github.com/ProCodeJH/antigravity-remote-control/pkg/admission"
	"github.com/ProCodeJH/antigravity-remote-control/pkg/api/resource"
	"github.com/ProCodeJH/antigravity-remote-control/pkg/storage"
)

func (h *Handler) handleCreateSession(c echo.Context) error {
	ip := c.RealIP()

	if h.adm != nil {
		if err := h.adm.CheckRequestRate(ip); err != nil {
			return rejectAdmission(c, err)
		}
	}

	sess, tokens, err := h.ctrl.CreateSession(ip)
	if err != nil && admission.IsAdmissionError(err) {
		return rejectAdmission(c, err)
	} else if err != nil {
		return c.JSON(http.StatusInternalServerError, newErrorBody(err))
	}

	return c.JSON(http.StatusCreated, resource.NewSessionCreated(sess, tokens))
}

func (h *Handler) handleFetchSessions(c echo.Context) error {
	m, err := h.store.Sessions().FetchAll()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, newErrorBody(err))
	}

	return c.JSON(http.StatusOK, resource.NewSessionList(m))
}

func (h *Handler) handleGetSessionByID(c echo.Context) error {
	m, err := h.store.Sessions().FindByID(c.Param("id"))
	if err != nil && err == storage.ErrNotFound {
		return c.JSON(http.StatusNotFound, newErrorBody(err))
	} else if err != nil {
		return c.JSON(http.StatusInternalServerError, newErrorBody(err))
	}

	return c.JSON(http.StatusOK, resource.NewSession(m))
}

func (h *Handler) handleTerminateSession(c echo.Context) error {
	err := h.ctrl.TerminateSession(c.Param("id"))
	if err != nil && err == storage.ErrNotFound {
		return c.JSON(http.StatusNotFound, newErrorBody(err))
	} else if err != nil {
		return c.JSON(http.StatusInternalServerError, newErrorBody(err))
	}

	return c.NoContent(http.StatusNoContent)
}

func newErrorBody(err error) map[string]string {
	return map[string]string{"error": err.Error()}
}

func rejectAdmission(c echo.Context, err error) error {
	e, ok := err.(*admission.Error)
	if !ok {
		return c.JSON(http.StatusInternalServerError, newErrorBody(err))
	}

	body := map[string]interface{}{
		"error":  string(e.Reason),
		"status": http.StatusTooManyRequests,
	}
	if e.RetryAfter > 0 {
		body["retryAfter"] = int64(e.RetryAfter.Seconds()) + 1
	}

	return c.JSON(http.StatusTooManyRequests, body)
}
