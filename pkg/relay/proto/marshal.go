package proto

import (
	"encoding/json"
	"time"
)

func MarshalAuthSuccess(sessionID string, role Role, heartbeatInterval time.Duration, expiresAt time.Time) ([]byte, error) {
	return json.Marshal(struct {
		Type              FrameType `json:"type"`
		SessionID         string    `json:"sessionId"`
		ClientType        Role      `json:"clientType"`
		HeartbeatInterval int64     `json:"heartbeatInterval"`
		SessionExpiresAt  int64     `json:"sessionExpiresAt"`
	}{
		Type:              FrameTypeAuthSuccess,
		SessionID:         sessionID,
		ClientType:        role,
		HeartbeatInterval: heartbeatInterval.Milliseconds(),
		SessionExpiresAt:  expiresAt.UnixMilli(),
	})
}

func MarshalError(message string) ([]byte, error) {
	return json.Marshal(struct {
		Type    FrameType `json:"type"`
		Message string    `json:"message"`
	}{
		Type:    FrameTypeError,
		Message: message,
	})
}

func MarshalPing(ts time.Time) ([]byte, error) {
	return json.Marshal(struct {
		Type      FrameType `json:"type"`
		Timestamp int64     `json:"timestamp"`
	}{
		Type:      FrameTypePing,
		Timestamp: ts.UnixMilli(),
	})
}

func MarshalPeerConnected(peer Role) ([]byte, error) {
	return json.Marshal(struct {
		Type     FrameType `json:"type"`
		PeerType Role      `json:"peerType"`
	}{
		Type:     FrameTypePeerConnected,
		PeerType: peer,
	})
}

func MarshalPeerDisconnected(peer Role) ([]byte, error) {
	return json.Marshal(struct {
		Type     FrameType `json:"type"`
		PeerType Role      `json:"peerType"`
	}{
		Type:     FrameTypePeerDisconnected,
		PeerType: peer,
	})
}

func MarshalSessionExpired() ([]byte, error) {
	return json.Marshal(struct {
		Type FrameType `json:"type"`
	}{
		Type: FrameTypeSessionExpired,
	})
}

func MarshalSessionTerminated() ([]byte, error) {
	return json.Marshal(struct {
		Type FrameType `json:"type"`
	}{
		Type: FrameTypeSessionTerminated,
	})
}

func MarshalDevices(list []DeviceSummary) ([]byte, error) {
	if list == nil {
		list = []DeviceSummary{}
	}
	return json.Marshal(struct {
		Type FrameType       `json:"type"`
		List []DeviceSummary `json:"list"`
	}{
		Type: FrameTypeDevices,
		List: list,
	})
}

func MarshalDeviceConnected(deviceID, name string) ([]byte, error) {
	return json.Marshal(struct {
		Type     FrameType `json:"type"`
		DeviceID string    `json:"deviceId"`
		Name     string    `json:"name,omitempty"`
	}{
		Type:     FrameTypeDeviceConnected,
		DeviceID: deviceID,
		Name:     name,
	})
}
