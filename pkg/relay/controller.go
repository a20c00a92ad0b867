package relay

import (
	"net"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/ProCodeJH/antigravity-remote-control/pkg/admission"
	"github.com/ProCodeJH/antigravity-remote-control/pkg/authority"
	"github.com/ProCodeJH/antigravity-remote-control/pkg/model"
	"github.com/ProCodeJH/antigravity-remote-control/pkg/relay/proto"
	"github.com/ProCodeJH/antigravity-remote-control/pkg/storage"
)

// Options carries the relay policies chosen at startup.
type Options struct {
	SessionTTL            time.Duration
	HeartbeatInterval     time.Duration
	HeartbeatTimeout      time.Duration
	AuthTimeout           time.Duration
	DeviceOnlineTimeout   time.Duration
	AllowImplicitSessions bool
	RequireTokens         bool
}

func (o *Options) withDefaults() {
	if o.SessionTTL == 0 {
		o.SessionTTL = 30 * time.Minute
	}
	if o.HeartbeatInterval == 0 {
		o.HeartbeatInterval = 30 * time.Second
	}
	if o.HeartbeatTimeout == 0 {
		o.HeartbeatTimeout = 60 * time.Second
	}
	if o.AuthTimeout == 0 {
		o.AuthTimeout = 10 * time.Second
	}
	if o.DeviceOnlineTimeout == 0 {
		o.DeviceOnlineTimeout = 30 * time.Second
	}
}

// Controller wires the registries, stores and policies together and
// carries every cross-connection operation of the relay.
type Controller struct {
	opts      Options
	store     storage.Interface
	mirror    storage.Interface
	conns     *ConnectionRegistry
	devices   *DeviceRegistry
	authority *authority.Authority
	admission *admission.Controller
	events    *EventPublisher
}

func NewController(opts Options, store storage.Interface, auth *authority.Authority, adm *admission.Controller, events *EventPublisher) *Controller {
	opts.withDefaults()

	return &Controller{
		opts:      opts,
		store:     store,
		conns:     NewConnectionRegistry(),
		devices:   NewDeviceRegistry(store.Devices(), opts.DeviceOnlineTimeout),
		authority: auth,
		admission: adm,
		events:    events,
	}
}

// SetMirror attaches an optional durable store that lifecycle changes
// are copied to best-effort. The in-memory store stays authoritative.
func (ctrl *Controller) SetMirror(mirror storage.Interface) {
	ctrl.mirror = mirror
}

func (ctrl *Controller) Options() Options {
	return ctrl.opts
}

func (ctrl *Controller) Connections() *ConnectionRegistry {
	return ctrl.conns
}

func (ctrl *Controller) Devices() *DeviceRegistry {
	return ctrl.devices
}

// NewPeerChannel creates a peer channel for a freshly upgraded
// websocket connection and starts its workers.
func (ctrl *Controller) NewPeerChannel(conn net.Conn, remoteIP string, terminateCh chan<- struct{}) *PeerChannel {
	pc := ctrl.newPeerChannel(conn, remoteIP, terminateCh)

	go pc.inboxWorker()
	go pc.outboxWorker()

	// Ensure that authentication happens within the given period.
	go pc.waitForAuthOrClose(ctrl.opts.AuthTimeout)

	return pc
}

func (ctrl *Controller) newPeerChannel(conn net.Conn, remoteIP string, terminateCh chan<- struct{}) *PeerChannel {
	return &PeerChannel{
		ctrl:           ctrl,
		conn:           conn,
		remoteIP:       remoteIP,
		state:          StateUnauthenticated,
		boundSessions:  make(map[string]bool),
		connectedAt:    time.Now(),
		controlTimeout: controlPushTimeout,
		stopCh:         make(chan struct{}),
		wsTerminateCh:  terminateCh,
		wsCloseCh:      make(chan struct{}),
		wsOutboxCh:     make(chan *Response, 100),
	}
}

// AuthResult carries the server-chosen parameters acknowledged to a
// freshly authenticated connection.
type AuthResult struct {
	SessionID         string
	Role              proto.Role
	HeartbeatInterval time.Duration
	ExpiresAt         time.Time
}

// Authenticate validates an auth frame, binds the connection to its
// session slot and wires up all pairing side effects.
func (ctrl *Controller) Authenticate(pc *PeerChannel, frame *proto.AuthFrame) (*AuthResult, error) {
	role, err := proto.ParseRole(frame.ClientType)
	if err != nil {
		return nil, proto.NewAuthError(proto.ErrReasonInvalidRole, "Invalid client type")
	}

	if err := ctrl.verifyToken(frame, role); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sess, err := ctrl.resolveSession(frame.SessionID, pc.RemoteIP(), now)
	if err != nil {
		return nil, err
	}

	deviceID := ""
	if role == proto.RoleAgent && frame.DeviceInfo != nil {
		deviceID = frame.DeviceInfo.DeviceID
		if deviceID == "" {
			deviceID = sess.ID
		}
	}

	pc.admitAuthentication(sess.ID, role, deviceID)

	// Replace-on-register: a reconnect displaces the previous
	// connection for this slot, which is notified and closed by its
	// own transport teardown.
	if displaced := ctrl.conns.Register(sess.ID, role, pc); displaced != nil {
		log.Infof("controller displaced previous %s connection for session '%s'", role, sess.ID)
		displaced.unbindSession(sess.ID)
		displaced.NotifyDisplaced()
	}

	expiresAt := now.Add(ctrl.opts.SessionTTL)
	if err := ctrl.store.Sessions().Touch(sess.ID, expiresAt); err != nil {
		log.Errorf("controller failed to slide session expiry: %v", err)
	}
	if err := ctrl.store.Sessions().MarkRole(sess.ID, role.String(), true); err != nil {
		log.Errorf("controller failed to mark session role: %v", err)
	}
	ctrl.mirrorSessionTouch(sess.ID, expiresAt, role)

	// Tell the counterpart, if already connected, that its peer came
	// online.
	if peer := ctrl.conns.LookupPeer(sess.ID, role); peer != nil {
		peer.NotifyPeerConnected(role)
	}

	if role == proto.RoleAgent && frame.DeviceInfo != nil {
		if dev, err := ctrl.devices.Register(frame.DeviceInfo, sess.ID, pc); err != nil {
			log.Errorf("controller failed to register device: %v", err)
		} else {
			ctrl.events.PublishDevice(DeviceEvent{Event: "online", DeviceID: dev.ID, SessionID: sess.ID})
		}
	}

	ctrl.events.PublishConnection(ConnectionEvent{
		Event:     "connected",
		SessionID: sess.ID,
		Role:      role.String(),
		RemoteIP:  pc.RemoteIP(),
	})

	log.Infof("controller registered %s connection for session '%s'", role, sess.ID)

	return &AuthResult{
		SessionID:         sess.ID,
		Role:              role,
		HeartbeatInterval: ctrl.opts.HeartbeatInterval,
		ExpiresAt:         expiresAt,
	}, nil
}

func (ctrl *Controller) verifyToken(frame *proto.AuthFrame, role proto.Role) error {
	if ctrl.authority == nil || !ctrl.authority.Enabled() {
		return nil
	}

	if frame.Token == "" {
		if ctrl.opts.RequireTokens {
			return proto.NewAuthError(proto.ErrReasonInvalidToken, "Token required")
		}
		return nil
	}

	claims, err := ctrl.authority.Verify(frame.Token)
	if err != nil {
		return proto.NewAuthError(proto.ErrReasonInvalidToken, "Invalid token")
	}
	if claims.SessionID != frame.SessionID || claims.Role != role.String() {
		return proto.NewAuthError(proto.ErrReasonTokenMismatch, "Token does not match session")
	}

	return nil
}

func (ctrl *Controller) resolveSession(sessionID, creatorIP string, now time.Time) (*model.Session, error) {
	sess, err := ctrl.store.Sessions().FindByID(sessionID)
	if err == storage.ErrNotFound {
		if !ctrl.opts.AllowImplicitSessions {
			return nil, proto.NewAuthError(proto.ErrReasonInvalidSession, "Invalid session")
		}

		// Implicit creation is a deliberate bootstrap policy, not an
		// error fallback.
		sess = &model.Session{
			ID:        sessionID,
			Status:    model.SessionStatusActive,
			CreatorIP: creatorIP,
			ExpiresAt: now.Add(ctrl.opts.SessionTTL),
		}
		if err := ctrl.store.Sessions().Create(sess); err != nil {
			return nil, err
		}
		ctrl.mirrorSessionCreate(sess)
		ctrl.events.PublishSession(SessionEvent{Event: "created", SessionID: sess.ID})

		return sess, nil
	} else if err != nil {
		return nil, err
	}

	if sess.Closed() || !sess.ExpiresAt.After(now) {
		return nil, proto.NewSessionExpiredError(sessionID)
	}

	return sess, nil
}

// Forward hands an opaque payload to the sender's counterpart. Reports
// whether the frame was delivered to the peer's outbound path; a
// missing or saturated peer drops the frame without an error.
func (ctrl *Controller) Forward(pc *PeerChannel, data []byte) bool {
	sessionID := pc.SessionID()

	peer := ctrl.conns.LookupPeer(sessionID, pc.Role())
	if peer == nil {
		return false
	}

	if !peer.ForwardPayload(data) {
		log.Debugf("controller dropped frame for session '%s': peer outbound path saturated", sessionID)
		return false
	}

	if err := ctrl.store.Sessions().RecordTraffic(sessionID, 1, int64(len(data))); err != nil && err != storage.ErrNotFound {
		log.Errorf("controller failed to record session traffic: %v", err)
	}

	return true
}

// DeviceHeartbeat routes an agent heartbeat to the device registry.
func (ctrl *Controller) DeviceHeartbeat(pc *PeerChannel, frame *proto.HeartbeatFrame, now time.Time) {
	deviceID := frame.DeviceID
	if deviceID == "" {
		deviceID = pc.DeviceID()
	}
	if deviceID == "" {
		deviceID = pc.SessionID()
	}

	ctrl.devices.Heartbeat(deviceID, frame, now)
}

// OnlineDevices returns the wire representation of every online device.
func (ctrl *Controller) OnlineDevices(now time.Time) []proto.DeviceSummary {
	online := ctrl.devices.ListOnline(now)

	list := make([]proto.DeviceSummary, 0, len(online))
	for _, dev := range online {
		list = append(list, proto.DeviceSummary{
			DeviceID:  dev.ID,
			Name:      dev.Name,
			Hostname:  dev.Hostname,
			OS:        dev.OS,
			Caps:      dev.Capabilities,
			Online:    true,
			LastSeen:  dev.LastHeartbeatAt.UnixMilli(),
			Thumbnail: dev.Thumbnail,
		})
	}

	return list
}

// ConnectDevice rebinds the mobile peer's session to the chosen
// device's live agent connection.
func (ctrl *Controller) ConnectDevice(mobile *PeerChannel, deviceID string) (*model.Device, error) {
	now := time.Now()

	dev, agentCh := ctrl.devices.Live(deviceID, now)
	if dev == nil || agentCh == nil {
		return nil, proto.NewAuthError(proto.ErrReasonDeviceUnavailable, "Device not available")
	}

	sessionID := mobile.SessionID()

	if !agentCh.bindSession(sessionID) {
		return nil, proto.NewAuthError(proto.ErrReasonDeviceUnavailable, "Device not available")
	}
	if displaced := ctrl.conns.Register(sessionID, proto.RoleAgent, agentCh); displaced != nil {
		// The old agent only loses this session's slot; its own
		// session binding stays untouched.
		displaced.unbindSession(sessionID)
		log.Infof("controller rerouted agent slot of session '%s' to device '%s'", sessionID, deviceID)
	}

	// The agent may have begun closing between the bind above and the
	// registration. Its teardown snapshot then predates this slot, so
	// roll the registration back here or nothing ever clears it.
	if agentCh.State() == StateClosed {
		agentCh.unbindSession(sessionID)
		ctrl.conns.Unregister(sessionID, proto.RoleAgent, agentCh)
		return nil, proto.NewAuthError(proto.ErrReasonDeviceUnavailable, "Device not available")
	}

	ctrl.devices.Rebind(deviceID, sessionID)
	if err := ctrl.store.Sessions().MarkRole(sessionID, proto.RoleAgent.String(), true); err != nil {
		log.Errorf("controller failed to mark session role: %v", err)
	}

	agentCh.NotifyPeerConnected(proto.RoleMobile)

	return dev, nil
}

// teardownChannel runs the close path of a connection exactly once:
// unregister from every bound slot, clear the session's role flag,
// notify the counterpart and release the admission slot.
func (ctrl *Controller) teardownChannel(pc *PeerChannel) {
	pc.Lock()
	prevState := pc.state
	role := pc.role
	deviceID := pc.deviceID
	pc.state = StateClosed
	pc.Unlock()

	if prevState != StateUnauthenticated && prevState != StateClosed {
		for _, sessionID := range pc.boundSessionIDs() {
			if !ctrl.conns.Unregister(sessionID, role, pc) {
				continue
			}

			if err := ctrl.store.Sessions().MarkRole(sessionID, role.String(), false); err != nil && err != storage.ErrNotFound {
				log.Errorf("controller failed to clear session role: %v", err)
			}

			if peer := ctrl.conns.LookupPeer(sessionID, role); peer != nil {
				peer.NotifyPeerDisconnected(role)
			}
		}

		if role == proto.RoleAgent && deviceID != "" {
			ctrl.devices.Detach(deviceID, pc)
		}

		ctrl.events.PublishConnection(ConnectionEvent{
			Event:     "disconnected",
			SessionID: pc.sessionID,
			Role:      role.String(),
			RemoteIP:  pc.RemoteIP(),
		})

		log.Infof("controller removed %s connection for session '%s'", role, pc.sessionID)
	}

	if ctrl.admission != nil {
		ctrl.admission.ReleaseConnection(pc.RemoteIP())
	}
}

// CreateSession creates a pending session owned by the given IP and,
// when token auth is configured, the per-role tokens for it.
func (ctrl *Controller) CreateSession(creatorIP string) (*model.Session, map[string]string, error) {
	if ctrl.admission != nil {
		owned, err := ctrl.store.Sessions().CountByCreatorIP(creatorIP)
		if err != nil {
			return nil, nil, err
		}
		if err := ctrl.admission.CheckSessionQuota(creatorIP, owned); err != nil {
			return nil, nil, err
		}
	}

	now := time.Now().UTC()
	sess := &model.Session{
		ID:        uuid.NewString(),
		Status:    model.SessionStatusPending,
		CreatorIP: creatorIP,
		ExpiresAt: now.Add(ctrl.opts.SessionTTL),
	}
	if err := ctrl.store.Sessions().Create(sess); err != nil {
		return nil, nil, err
	}
	ctrl.mirrorSessionCreate(sess)

	tokens := make(map[string]string)
	if ctrl.authority != nil && ctrl.authority.Enabled() {
		for _, role := range []proto.Role{proto.RoleAgent, proto.RoleMobile} {
			token, err := ctrl.authority.Issue(sess.ID, role.String(), sess.ExpiresAt)
			if err != nil {
				return nil, nil, err
			}
			tokens[role.String()] = token
		}
	}

	ctrl.events.PublishSession(SessionEvent{Event: "created", SessionID: sess.ID})

	log.Infof("controller created session '%s' for %s", sess.ID, creatorIP)

	return sess, tokens, nil
}

// TerminateSession closes both bound connections with a termination
// notice and removes the session.
func (ctrl *Controller) TerminateSession(sessionID string) error {
	sess, err := ctrl.store.Sessions().FindByID(sessionID)
	if err != nil {
		return err
	}

	sess.Status = model.SessionStatusTerminated
	if err := ctrl.store.Sessions().Update(sess); err != nil {
		return err
	}

	ctrl.closeSessionChannels(sessionID, func(pc *PeerChannel) {
		pc.NotifySessionTerminated()
	})

	if err := ctrl.store.Sessions().Delete(sessionID); err != nil && err != storage.ErrNotFound {
		return err
	}
	ctrl.mirrorSessionDelete(sessionID)

	ctrl.events.PublishSession(SessionEvent{Event: "terminated", SessionID: sessionID})

	log.Infof("controller terminated session '%s'", sessionID)

	return nil
}

// expireSession is the sweep's variant of termination: both peers get a
// session_expired notice before the session is removed.
func (ctrl *Controller) expireSession(sess model.Session) {
	ctrl.closeSessionChannels(sess.ID, func(pc *PeerChannel) {
		pc.NotifySessionExpired()
	})

	if err := ctrl.store.Sessions().Delete(sess.ID); err != nil && err != storage.ErrNotFound {
		log.Errorf("controller failed to delete expired session '%s': %v", sess.ID, err)
	}
	ctrl.mirrorSessionDelete(sess.ID)

	ctrl.events.PublishSession(SessionEvent{Event: "expired", SessionID: sess.ID})

	log.Infof("controller expired session '%s'", sess.ID)
}

// closeSessionChannels notifies both bound connections before closing
// either, so neither peer sees a disconnect notice ahead of the actual
// session-level reason.
func (ctrl *Controller) closeSessionChannels(sessionID string, notify func(*PeerChannel)) {
	channels := make([]*PeerChannel, 0, 2)
	for _, role := range []proto.Role{proto.RoleAgent, proto.RoleMobile} {
		if pc := ctrl.conns.Lookup(sessionID, role); pc != nil {
			notify(pc)
			channels = append(channels, pc)
		}
	}
	for _, pc := range channels {
		pc.ForceClose()
	}
}

// HealthSnapshot is the aggregate view served by the health endpoint.
type HealthSnapshot struct {
	ActiveSessions    int   `json:"active_sessions"`
	AgentConnections  int   `json:"agent_connections"`
	MobileConnections int   `json:"mobile_connections"`
	TotalFrames       int64 `json:"total_frames"`
	TotalBytes        int64 `json:"total_bytes"`
}

func (ctrl *Controller) Health() (*HealthSnapshot, error) {
	sessions, err := ctrl.store.Sessions().FetchAll()
	if err != nil {
		return nil, err
	}

	snapshot := &HealthSnapshot{
		AgentConnections:  ctrl.conns.CountActive(proto.RoleAgent),
		MobileConnections: ctrl.conns.CountActive(proto.RoleMobile),
	}
	for _, sess := range sessions {
		if !sess.Closed() {
			snapshot.ActiveSessions++
		}
		snapshot.TotalFrames += sess.TotalFrames
		snapshot.TotalBytes += sess.TotalBytes
	}

	return snapshot, nil
}

// Shutdown closes every live connection. Called once on server exit.
func (ctrl *Controller) Shutdown() {
	for _, pc := range ctrl.conns.Channels() {
		pc.NotifySessionTerminated()
		pc.ForceClose()
	}
}

func (ctrl *Controller) mirrorSessionCreate(sess *model.Session) {
	if ctrl.mirror == nil {
		return
	}
	if err := ctrl.mirror.Sessions().Create(sess); err != nil {
		log.Errorf("controller failed to mirror session create: %v", err)
	}
}

func (ctrl *Controller) mirrorSessionTouch(sessionID string, expiresAt time.Time, role proto.Role) {
	if ctrl.mirror == nil {
		return
	}
	if err := ctrl.mirror.Sessions().Touch(sessionID, expiresAt); err != nil && err != storage.ErrNotFound {
		log.Errorf("controller failed to mirror session touch: %v", err)
	}
	if err := ctrl.mirror.Sessions().MarkRole(sessionID, role.String(), true); err != nil && err != storage.ErrNotFound {
		log.Errorf("controller failed to mirror session role: %v", err)
	}
}

func (ctrl *Controller) mirrorSessionDelete(sessionID string) {
	if ctrl.mirror == nil {
		return
	}
	if err := ctrl.mirror.Sessions().Delete(sessionID); err != nil && err != storage.ErrNotFound {
		log.Errorf("controller failed to mirror session delete: %v", err)
	}
}
