package proto

import (
	"encoding/json"
	"fmt"
)

type envelope struct {
	Type string `json:"type"`
}

// Classify extracts the top-level frame type without touching the rest
// of the payload. Frames that are not JSON objects or carry no type are
// rejected; an unknown type is returned as-is so the caller can treat
// the frame as an opaque relay payload.
func Classify(data []byte) (FrameType, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return FrameTypeInvalid, fmt.Errorf("relay: invalid frame data: %s", err.Error())
	}
	if env.Type == "" {
		return FrameTypeInvalid, fmt.Errorf("relay: frame does not contain a type")
	}
	return FrameType(env.Type), nil
}

func UnmarshalAuth(data []byte) (*AuthFrame, error) {
	frame := &AuthFrame{}
	if err := json.Unmarshal(data, frame); err != nil {
		return nil, fmt.Errorf("relay: invalid auth frame: %s", err.Error())
	}
	if frame.SessionID == "" {
		return nil, fmt.Errorf("relay: auth frame contains no session id")
	}
	if _, err := ParseRole(frame.ClientType); err != nil {
		return nil, err
	}
	return frame, nil
}

func UnmarshalPong(data []byte) (*PongFrame, error) {
	frame := &PongFrame{}
	if err := json.Unmarshal(data, frame); err != nil {
		return nil, fmt.Errorf("relay: invalid pong frame: %s", err.Error())
	}
	return frame, nil
}

func UnmarshalHeartbeat(data []byte) (*HeartbeatFrame, error) {
	frame := &HeartbeatFrame{}
	if err := json.Unmarshal(data, frame); err != nil {
		return nil, fmt.Errorf("relay: invalid heartbeat frame: %s", err.Error())
	}
	return frame, nil
}

func UnmarshalConnectDevice(data []byte) (*ConnectDeviceFrame, error) {
	frame := &ConnectDeviceFrame{}
	if err := json.Unmarshal(data, frame); err != nil {
		return nil, fmt.Errorf("relay: invalid connect_device frame: %s", err.Error())
	}
	if frame.DeviceID == "" {
		return nil, fmt.Errorf("relay: connect_device frame contains no device id")
	}
	return frame, nil
}
