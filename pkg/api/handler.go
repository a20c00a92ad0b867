package api

import (
	"github.com/labstack/echo"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	"github.com/ProCodeJH/antigravity-remote-control/pkg/admission"
	"github.com/ProCodeJH/antigravity-remote-control/pkg/relay"
	"github.com/ProCodeJH/antigravity-remote-control/pkg/storage"
)

// Handler contains all properties to serve the API
type Handler struct {
	nc    *nats.Conn
	store storage.Interface
	ctrl  *relay.Controller
	adm   *admission.Controller
}

// NewHandler create a new API handler
func NewHandler(nc *nats.Conn, store storage.Interface, ctrl *relay.Controller, adm *admission.Controller) *Handler {
	return &Handler{
		nc:    nc,
		store: store,
		ctrl:  ctrl,
		adm:   adm,
	}
}

// RegisterRoutes attaches the handlers to the echo web server
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	log.Debug("Register API routes")
	api := e.Group("/api/v1")

	api.POST("/sessions", h.handleCreateSession)
	api.GET("/sessions", h.handleFetchSessions)
	api.GET("/sessions/:id", h.handleGetSessionByID)
	api.DELETE("/sessions/:id", h.handleTerminateSession)

	api.GET("/devices", h.handleFetchDevices)

	api.GET("/health", h.handleHealth)

	api.Any("/realtime-events", h.realtimeEventsHandler())
}
