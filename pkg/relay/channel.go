package relay

import (
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ProCodeJH/antigravity-remote-control/pkg/relay/proto"
)

type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateStreaming
	StateClosed
)

func (state State) String() string {
	names := []string{
		"UNAUTHENTICATED",
		"AUTHENTICATED",
		"STREAMING",
		"CLOSED"}

	if state < StateUnauthenticated || state > StateClosed {
		return "UNKNOWN"
	}

	return names[state]
}

type Flag int

const (
	FlagContinue Flag = iota
	FlagCloseGracefully
	FlagTerminate
)

type Response struct {
	Flag Flag
	Data []byte
}

// controlPushTimeout bounds how long a control reply may wait for room
// in the outbox before the connection is declared stalled. Payload
// forwards never wait; they are dropped when the outbox is full.
const controlPushTimeout = 5 * time.Second

// PeerChannel drives one relay connection: authentication, heartbeat,
// device control and payload forwarding. Frames from a single
// connection are handled sequentially by the inbox worker; everything
// the channel shares with other connections goes through the
// controller's registries.
type PeerChannel struct {
	sync.RWMutex
	ctrl     *Controller
	conn     net.Conn
	remoteIP string

	state     State
	role      proto.Role
	sessionID string
	deviceID  string
	// boundSessions are the sessions whose connection slot currently
	// points at this channel; the primary session plus any a mobile
	// peer rebound to this channel's device.
	boundSessions map[string]bool

	connectedAt     time.Time
	lastActivityAt  time.Time
	lastHeartbeatAt time.Time
	latency         time.Duration
	controlTimeout  time.Duration

	stopCh        chan struct{}
	stopOnce      sync.Once
	teardownOnce  sync.Once
	terminateOnce sync.Once
	wsTerminateCh chan<- struct{}
	wsCloseCh     chan struct{}
	wsCloseOnce   sync.Once
	wsOutboxCh    chan *Response
}

// HandleMessage is called by the inbox worker for every data frame
// received from the connected client.
func (pc *PeerChannel) HandleMessage(data []byte) ([]byte, Flag, error) {
	pc.Lock()
	if pc.state == StateClosed {
		pc.Unlock()
		return pc.continueWithoutMessage()
	}
	pc.lastActivityAt = time.Now()
	pc.Unlock()

	frameType, err := proto.Classify(data)
	if err != nil {
		return pc.dropMalformed(err)
	}

	switch frameType {
	case proto.FrameTypeAuth:
		return pc.handleMessage(data, pc.authHandler())
	case proto.FrameTypePong:
		return pc.handleMessage(data, pc.ensureAuthenticated(pc.pongHandler()))
	case proto.FrameTypeHeartbeat:
		return pc.handleMessage(data, pc.ensureAuthenticated(pc.ensureRole(proto.RoleAgent, pc.heartbeatHandler())))
	case proto.FrameTypeGetDevices:
		return pc.handleMessage(data, pc.ensureAuthenticated(pc.ensureRole(proto.RoleMobile, pc.getDevicesHandler())))
	case proto.FrameTypeConnectDevice:
		return pc.handleMessage(data, pc.ensureAuthenticated(pc.ensureRole(proto.RoleMobile, pc.connectDeviceHandler())))
	}

	// Everything else, signaling included, is an opaque relay payload.
	return pc.handleMessage(data, pc.ensureAuthenticated(pc.relayHandler()))
}

// messageHandler is a tooling for handling incoming frames. It allows
// us to create middleware handlers, e.g. the ensureAuthenticated
// handler, similar to the go http handler implementation.
type messageHandler interface {
	Handle(data []byte) ([]byte, Flag, error)
}

type messageHandlerFunc func(data []byte) ([]byte, Flag, error)

func (f messageHandlerFunc) Handle(data []byte) ([]byte, Flag, error) {
	return f(data)
}

func (pc *PeerChannel) handleMessage(data []byte, h messageHandler) ([]byte, Flag, error) {
	return h.Handle(data)
}

// ensureAuthenticated rejects everything but auth frames while the
// channel is still unauthenticated. The connection stays open; the
// client may retry authentication.
func (pc *PeerChannel) ensureAuthenticated(next messageHandler) messageHandler {
	return messageHandlerFunc(func(data []byte) ([]byte, Flag, error) {
		if pc.State() == StateUnauthenticated {
			return pc.errorMessage("Authentication required")
		}
		return next.Handle(data)
	})
}

// ensureRole silently drops frames arriving from the wrong role. The
// relay never punishes a peer for a frame it is not allowed to send.
func (pc *PeerChannel) ensureRole(role proto.Role, next messageHandler) messageHandler {
	return messageHandlerFunc(func(data []byte) ([]byte, Flag, error) {
		if pc.Role() != role {
			log.Debugf("peerchannel dropped %s-only frame from %s connection", role, pc.Role())
			return pc.continueWithoutMessage()
		}
		return next.Handle(data)
	})
}

func (pc *PeerChannel) authHandler() messageHandlerFunc {
	return messageHandlerFunc(func(data []byte) ([]byte, Flag, error) {
		if pc.State() != StateUnauthenticated {
			return pc.errorMessage("Already authenticated")
		}

		frame, err := proto.UnmarshalAuth(data)
		if err != nil {
			log.Warnf("peerchannel rejected invalid auth frame: %v", err)
			return pc.errorMessage("Invalid auth request")
		}

		result, err := pc.ctrl.Authenticate(pc, frame)
		if err != nil && proto.IsSessionExpiredError(err) {
			log.Warnf("peerchannel rejected auth against expired session '%s'", frame.SessionID)
			return pc.errorMessageAndClose("Session expired")
		} else if err != nil && proto.IsAuthError(err) {
			e := err.(*proto.AuthError)
			log.Warnf("peerchannel rejected auth for session '%s': %s", frame.SessionID, e.Reason)
			return pc.errorMessage(e.Message)
		} else if err != nil {
			return pc.terminateAndLogError("could not authenticate connection", err)
		}

		return pc.authSuccessMessage(result)
	})
}

func (pc *PeerChannel) pongHandler() messageHandlerFunc {
	return messageHandlerFunc(func(data []byte) ([]byte, Flag, error) {
		frame, err := proto.UnmarshalPong(data)
		if err != nil {
			return pc.dropMalformed(err)
		}

		now := time.Now()
		pc.Lock()
		pc.lastHeartbeatAt = now
		if frame.Timestamp > 0 {
			// A client clock ahead of ours must not yield a negative
			// round trip.
			if d := now.Sub(time.UnixMilli(frame.Timestamp)); d > 0 {
				pc.latency = d
			} else {
				pc.latency = 0
			}
		}
		pc.Unlock()

		return pc.continueWithoutMessage()
	})
}

func (pc *PeerChannel) heartbeatHandler() messageHandlerFunc {
	return messageHandlerFunc(func(data []byte) ([]byte, Flag, error) {
		frame, err := proto.UnmarshalHeartbeat(data)
		if err != nil {
			return pc.dropMalformed(err)
		}

		now := time.Now()
		pc.Lock()
		pc.lastHeartbeatAt = now
		pc.Unlock()

		pc.ctrl.DeviceHeartbeat(pc, frame, now)

		return pc.continueWithoutMessage()
	})
}

func (pc *PeerChannel) getDevicesHandler() messageHandlerFunc {
	return messageHandlerFunc(func(data []byte) ([]byte, Flag, error) {
		return pc.devicesMessage(pc.ctrl.OnlineDevices(time.Now()))
	})
}

func (pc *PeerChannel) connectDeviceHandler() messageHandlerFunc {
	return messageHandlerFunc(func(data []byte) ([]byte, Flag, error) {
		frame, err := proto.UnmarshalConnectDevice(data)
		if err != nil {
			return pc.dropMalformed(err)
		}

		dev, err := pc.ctrl.ConnectDevice(pc, frame.DeviceID)
		if err != nil {
			log.Warnf("peerchannel could not connect device '%s': %v", frame.DeviceID, err)
			return pc.errorMessage("Device not available")
		}

		return pc.deviceConnectedMessage(dev.ID, dev.Name)
	})
}

// relayHandler forwards the raw frame to the counterpart. The bytes are
// never re-serialized; a missing counterpart drops the frame silently
// since peers may legitimately connect out of order.
func (pc *PeerChannel) relayHandler() messageHandlerFunc {
	return messageHandlerFunc(func(data []byte) ([]byte, Flag, error) {
		if pc.ctrl.Forward(pc, data) {
			pc.Lock()
			if pc.state == StateAuthenticated {
				pc.state = StateStreaming
			}
			pc.Unlock()
		}
		return pc.continueWithoutMessage()
	})
}

// dropMalformed discards a schema-invalid frame without answering or
// closing. A noisy client must not be able to use the error path as a
// denial-of-service vector against its counterpart.
func (pc *PeerChannel) dropMalformed(err error) ([]byte, Flag, error) {
	log.Debugf("peerchannel dropped malformed frame: %v", err)
	return pc.continueWithoutMessage()
}

func (pc *PeerChannel) State() State {
	pc.RLock()
	defer pc.RUnlock()
	return pc.state
}

func (pc *PeerChannel) Role() proto.Role {
	pc.RLock()
	defer pc.RUnlock()
	return pc.role
}

func (pc *PeerChannel) SessionID() string {
	pc.RLock()
	defer pc.RUnlock()
	return pc.sessionID
}

func (pc *PeerChannel) DeviceID() string {
	pc.RLock()
	defer pc.RUnlock()
	return pc.deviceID
}

func (pc *PeerChannel) RemoteIP() string {
	return pc.remoteIP
}

func (pc *PeerChannel) Latency() time.Duration {
	pc.RLock()
	defer pc.RUnlock()
	return pc.latency
}

// LastActivity returns the most recent moment the connection showed any
// sign of life, for the liveness sweep.
func (pc *PeerChannel) LastActivity() time.Time {
	pc.RLock()
	defer pc.RUnlock()
	if pc.lastHeartbeatAt.After(pc.lastActivityAt) {
		return pc.lastHeartbeatAt
	}
	return pc.lastActivityAt
}

// admitAuthentication binds the channel's immutable identity once the
// controller accepted the auth frame.
func (pc *PeerChannel) admitAuthentication(sessionID string, role proto.Role, deviceID string) {
	pc.Lock()
	defer pc.Unlock()

	pc.state = StateAuthenticated
	pc.sessionID = sessionID
	pc.role = role
	pc.deviceID = deviceID
	pc.boundSessions[sessionID] = true
	pc.lastHeartbeatAt = time.Now()

	// Stop the registration deadline watchdog.
	pc.stopOnce.Do(func() {
		close(pc.stopCh)
	})
}

// bindSession adds the session to the channel's bound set. Refuses
// once the channel is closed: teardown has already taken its snapshot
// of bound sessions and would never unregister a slot added now.
func (pc *PeerChannel) bindSession(sessionID string) bool {
	pc.Lock()
	defer pc.Unlock()
	if pc.state == StateClosed {
		return false
	}
	pc.boundSessions[sessionID] = true
	return true
}

func (pc *PeerChannel) unbindSession(sessionID string) {
	pc.Lock()
	defer pc.Unlock()
	delete(pc.boundSessions, sessionID)
}

func (pc *PeerChannel) boundSessionIDs() []string {
	pc.RLock()
	defer pc.RUnlock()
	ids := make([]string, 0, len(pc.boundSessions))
	for id := range pc.boundSessions {
		ids = append(ids, id)
	}
	return ids
}

// waitForAuthOrClose closes the connection when the client does not
// authenticate within the configured deadline.
func (pc *PeerChannel) waitForAuthOrClose(timeout time.Duration) {
	select {
	case <-pc.stopCh:
		return
	case <-time.After(timeout):
		log.Warn("peerchannel authentication deadline passed, terminating the connection")
		pc.closeGracefully()
	}
}

// SendPing pushes a liveness probe carrying the server timestamp.
// Reports false when the outbound path is saturated.
func (pc *PeerChannel) SendPing(ts time.Time) bool {
	out, err := proto.MarshalPing(ts)
	if err != nil {
		return false
	}
	return pc.pushBackMessage(FlagContinue, out)
}

// ForwardPayload hands an opaque frame to this channel's outbound path.
// Non-blocking: when the buffer is saturated the newest frame is
// dropped, never queued without bound.
func (pc *PeerChannel) ForwardPayload(data []byte) bool {
	if pc.State() == StateClosed {
		return false
	}
	return pc.pushBackMessage(FlagContinue, data)
}

// NotifyPeerConnected tells this channel its counterpart came online.
func (pc *PeerChannel) NotifyPeerConnected(peer proto.Role) {
	out, err := proto.MarshalPeerConnected(peer)
	if err != nil {
		return
	}
	pc.pushControlMessage(FlagContinue, out)
}

// NotifyPeerDisconnected tells this channel its counterpart went away.
func (pc *PeerChannel) NotifyPeerDisconnected(peer proto.Role) {
	out, err := proto.MarshalPeerDisconnected(peer)
	if err != nil {
		return
	}
	pc.pushControlMessage(FlagContinue, out)
}

// NotifyDisplaced tells a superseded channel that a newer connection
// took over its slot, then closes it gracefully.
func (pc *PeerChannel) NotifyDisplaced() {
	out, err := proto.MarshalError("Replaced by a newer connection")
	if err != nil {
		pc.closeGracefully()
		return
	}
	pc.pushControlMessage(FlagCloseGracefully, out)
}

// NotifySessionExpired announces the session expiry and closes the
// channel gracefully.
func (pc *PeerChannel) NotifySessionExpired() {
	out, err := proto.MarshalSessionExpired()
	if err != nil {
		pc.closeGracefully()
		return
	}
	pc.pushControlMessage(FlagCloseGracefully, out)
}

// NotifySessionTerminated announces an administrative termination and
// closes the channel gracefully.
func (pc *PeerChannel) NotifySessionTerminated() {
	out, err := proto.MarshalSessionTerminated()
	if err != nil {
		pc.closeGracefully()
		return
	}
	pc.pushControlMessage(FlagCloseGracefully, out)
}

func (pc *PeerChannel) authSuccessMessage(result *AuthResult) ([]byte, Flag, error) {
	out, err := proto.MarshalAuthSuccess(result.SessionID, result.Role, result.HeartbeatInterval, result.ExpiresAt)
	// This error should happen never! If it happens log an urgent error
	// and terminate the websocket session for safety.
	if err != nil {
		return pc.terminateAndLogError("could not marshal message", err)
	}
	pc.pushControlMessage(FlagContinue, out)
	return out, FlagContinue, nil
}

func (pc *PeerChannel) errorMessage(message string) ([]byte, Flag, error) {
	out, err := proto.MarshalError(message)
	if err != nil {
		return pc.terminateAndLogError("could not marshal message", err)
	}
	pc.pushControlMessage(FlagContinue, out)
	return out, FlagContinue, nil
}

func (pc *PeerChannel) errorMessageAndClose(message string) ([]byte, Flag, error) {
	out, err := proto.MarshalError(message)
	if err != nil {
		return pc.terminateAndLogError("could not marshal message", err)
	}
	pc.pushControlMessage(FlagCloseGracefully, out)
	return out, FlagCloseGracefully, nil
}

func (pc *PeerChannel) devicesMessage(list []proto.DeviceSummary) ([]byte, Flag, error) {
	out, err := proto.MarshalDevices(list)
	if err != nil {
		return pc.terminateAndLogError("could not marshal message", err)
	}
	pc.pushControlMessage(FlagContinue, out)
	return out, FlagContinue, nil
}

func (pc *PeerChannel) deviceConnectedMessage(deviceID, name string) ([]byte, Flag, error) {
	out, err := proto.MarshalDeviceConnected(deviceID, name)
	if err != nil {
		return pc.terminateAndLogError("could not marshal message", err)
	}
	pc.pushControlMessage(FlagContinue, out)
	return out, FlagContinue, nil
}

func (pc *PeerChannel) continueWithoutMessage() ([]byte, Flag, error) {
	return nil, FlagContinue, nil
}

func (pc *PeerChannel) terminateAndLogError(message string, err error) ([]byte, Flag, error) {
	log.Errorf("peerchannel terminates with message and error: %s: %s", message, err.Error())
	pc.terminate()
	return nil, FlagTerminate, nil
}

// pushBackMessage is the non-blocking outbound handoff. Reports false
// when the buffer is full.
func (pc *PeerChannel) pushBackMessage(flag Flag, data []byte) bool {
	select {
	case pc.wsOutboxCh <- newResponse(flag, data):
		return true
	default:
		return false // Buffer is full
	}
}

// pushControlMessage waits a bounded time for room in the outbox. A
// control frame that cannot be delivered within the deadline marks the
// connection as stalled and terminates it.
func (pc *PeerChannel) pushControlMessage(flag Flag, data []byte) bool {
	select {
	case pc.wsOutboxCh <- newResponse(flag, data):
		return true
	case <-time.After(pc.controlTimeout):
		log.Warn("peerchannel outbound path stalled, terminating the connection")
		pc.terminate()
		return false
	}
}

func (pc *PeerChannel) closeGracefully() {
	pc.wsCloseOnce.Do(func() {
		close(pc.wsCloseCh)
	})
}

func (pc *PeerChannel) terminate() {
	pc.closeGracefully()
}

// Close is called when the websocket handler method is exiting, e.g.
// the connection is closed. Idempotent; runs the full close path once.
func (pc *PeerChannel) Close() {
	pc.teardownOnce.Do(func() {
		pc.stopOnce.Do(func() {
			close(pc.stopCh)
		})
		pc.closeGracefully()
		pc.ctrl.teardownChannel(pc)
	})
}

// ForceClose is the sweeper's close-equivalent for a connection that
// missed its liveness deadline or cannot be written to.
func (pc *PeerChannel) ForceClose() {
	pc.Close()
}

func newResponse(flag Flag, data []byte) *Response {
	r := &Response{
		Flag: flag,
	}
	if data != nil {
		r.Data = make([]byte, len(data))
		copy(r.Data, data)
	}
	return r
}
