package relay

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// NATS subjects the relay mirrors its lifecycle onto. Admin consumers
// subscribe to EventSubjectAll.
const (
	EventSubjectSession    = "arc.relay.v1.events.session"
	EventSubjectDevice     = "arc.relay.v1.events.device"
	EventSubjectConnection = "arc.relay.v1.events.connection"
	EventSubjectAll        = "arc.relay.v1.events.*"
)

type SessionEvent struct {
	Event     string `json:"event"`
	SessionID string `json:"sessionId"`
	Timestamp int64  `json:"timestamp"`
}

type DeviceEvent struct {
	Event     string `json:"event"`
	DeviceID  string `json:"deviceId"`
	SessionID string `json:"sessionId,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type ConnectionEvent struct {
	Event     string `json:"event"`
	SessionID string `json:"sessionId"`
	Role      string `json:"role"`
	RemoteIP  string `json:"remoteIp"`
	Timestamp int64  `json:"timestamp"`
}

// EventPublisher fans relay lifecycle changes out to NATS. Publishing
// is fire-and-forget; a nil publisher or connection publishes nothing,
// which keeps the relay usable without a broker.
type EventPublisher struct {
	nc *nats.Conn
}

func NewEventPublisher(nc *nats.Conn) *EventPublisher {
	return &EventPublisher{nc: nc}
}

func (p *EventPublisher) PublishSession(ev SessionEvent) {
	ev.Timestamp = time.Now().UnixMilli()
	p.publish(EventSubjectSession, ev)
}

func (p *EventPublisher) PublishDevice(ev DeviceEvent) {
	ev.Timestamp = time.Now().UnixMilli()
	p.publish(EventSubjectDevice, ev)
}

func (p *EventPublisher) PublishConnection(ev ConnectionEvent) {
	ev.Timestamp = time.Now().UnixMilli()
	p.publish(EventSubjectConnection, ev)
}

func (p *EventPublisher) publish(subject string, v interface{}) {
	if p == nil || p.nc == nil {
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		log.Errorf("events failed to marshal %s event: %v", subject, err)
		return
	}

	if err := p.nc.Publish(subject, data); err != nil {
		log.Errorf("events failed to publish %s event: %v", subject, err)
	}
}
