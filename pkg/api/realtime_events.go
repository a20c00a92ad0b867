package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/labstack/echo"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	"github.com/ProCodeJH/antigravity-remote-control/pkg/api/resource"
	"github.com/ProCodeJH/antigravity-remote-control/pkg/relay"
)

// realtimeEventsHandler bridges the relay's NATS event subjects onto an
// admin websocket. Requires a configured broker.
func (h *Handler) realtimeEventsHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.nc == nil {
			return c.JSON(http.StatusServiceUnavailable,
				map[string]string{"error": "realtime events require a message broker"})
		}

		conn, _, _, err := ws.UpgradeHTTP(c.Request(), c.Response())
		if err != nil {
			log.Error("api: failed to upgrade to websocket: ", err)
			return nil
		}
		defer conn.Close()

		sub, err := h.nc.Subscribe(relay.EventSubjectAll, func(msg *nats.Msg) {
			// Get topic from NATS subject
			topic := strings.TrimPrefix(msg.Subject, "arc.relay.v1.events.")

			// Parse the message and send it
			var data interface{}
			if err := json.Unmarshal(msg.Data, &data); err == nil {
				event := resource.NewRealtimeEvent(topic, data)
				out, _ := json.Marshal(event)
				if err := wsutil.WriteServerMessage(conn, ws.OpText, out); err != nil {
					log.Error("api: failed to send realtime event: ", err)
				}
			}
		})
		if err != nil {
			log.Error("api: failed to subscribe to relay events: ", err)
			return nil
		}
		defer sub.Unsubscribe()

		// Block until the consumer goes away.
		for {
			if _, _, err := wsutil.ReadClientData(conn); err != nil {
				return nil
			}
		}
	}
}
