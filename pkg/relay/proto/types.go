package proto

// FrameType is the top-level `type` discriminator of every frame that
// travels over the relay socket. Types not listed here are opaque relay
// payloads and are forwarded without interpretation.
type FrameType string

// Client to server frame types.
const (
	FrameTypeInvalid       FrameType = ""
	FrameTypeAuth          FrameType = "auth"
	FrameTypePong          FrameType = "pong"
	FrameTypeHeartbeat     FrameType = "heartbeat"
	FrameTypeGetDevices    FrameType = "get_devices"
	FrameTypeConnectDevice FrameType = "connect_device"
)

// Server to client frame types.
const (
	FrameTypeAuthSuccess       FrameType = "auth_success"
	FrameTypeError             FrameType = "error"
	FrameTypePing              FrameType = "ping"
	FrameTypePeerConnected     FrameType = "peer_connected"
	FrameTypePeerDisconnected  FrameType = "peer_disconnected"
	FrameTypeSessionExpired    FrameType = "session_expired"
	FrameTypeSessionTerminated FrameType = "session_terminated"
	FrameTypeDevices           FrameType = "devices"
	FrameTypeDeviceConnected   FrameType = "device_connected"
)

// Reserved reports whether the frame type is interpreted by the relay
// itself rather than forwarded to the counterpart.
func (t FrameType) Reserved() bool {
	switch t {
	case FrameTypeAuth, FrameTypePong, FrameTypeHeartbeat,
		FrameTypeGetDevices, FrameTypeConnectDevice:
		return true
	}
	return false
}

func (t FrameType) String() string {
	return string(t)
}

// Role is one of the two fixed peer kinds of a session.
type Role string

const (
	RoleAgent  Role = "agent"
	RoleMobile Role = "mobile"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAgent:
		return RoleAgent, nil
	case RoleMobile:
		return RoleMobile, nil
	}
	return "", NewAuthError(ErrReasonInvalidRole, "client type must be 'agent' or 'mobile'")
}

// Counterpart returns the role on the other end of the session.
func (r Role) Counterpart() Role {
	if r == RoleAgent {
		return RoleMobile
	}
	return RoleAgent
}

func (r Role) String() string {
	return string(r)
}

// DeviceInfo is the optional agent machine metadata carried inside an
// auth frame.
type DeviceInfo struct {
	DeviceID     string   `json:"deviceId,omitempty"`
	Name         string   `json:"name,omitempty"`
	Hostname     string   `json:"hostname,omitempty"`
	IP           string   `json:"ip,omitempty"`
	OS           string   `json:"os,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
}

type AuthFrame struct {
	SessionID  string      `json:"sessionId"`
	ClientType string      `json:"clientType"`
	Token      string      `json:"token,omitempty"`
	DeviceInfo *DeviceInfo `json:"deviceInfo,omitempty"`
}

type PongFrame struct {
	// Timestamp echoes the server timestamp of the ping in unix
	// milliseconds, used for the latency estimate.
	Timestamp int64 `json:"timestamp"`
}

type HeartbeatFrame struct {
	DeviceID  string `json:"deviceId,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Status    string `json:"status,omitempty"`
}

type ConnectDeviceFrame struct {
	DeviceID string `json:"deviceId"`
}

// DeviceSummary is the wire representation of one online device in a
// `devices` reply.
type DeviceSummary struct {
	DeviceID  string   `json:"deviceId"`
	Name      string   `json:"name,omitempty"`
	Hostname  string   `json:"hostname,omitempty"`
	OS        string   `json:"os,omitempty"`
	Caps      []string `json:"capabilities,omitempty"`
	Online    bool     `json:"online"`
	LastSeen  int64    `json:"lastSeen"`
	Thumbnail string   `json:"thumbnail,omitempty"`
}
