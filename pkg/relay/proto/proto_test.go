package proto

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	ft, err := Classify([]byte(`{"type":"auth","sessionId":"abc","clientType":"agent"}`))
	require.NoError(t, err)
	assert.Equal(t, FrameTypeAuth, ft)

	ft, err = Classify([]byte(`{"type":"input","x":1,"y":2}`))
	require.NoError(t, err)
	assert.Equal(t, FrameType("input"), ft)
	assert.False(t, ft.Reserved())
}

func TestClassifyRejectsMalformedInput(t *testing.T) {
	cases := []string{
		`not json at all`,
		`[1,2,3]`,
		`"just a string"`,
		`{}`,
		`{"type":""}`,
		`{"type":42}`,
	}
	for _, in := range cases {
		_, err := Classify([]byte(in))
		assert.Error(t, err, "input: %s", in)
	}
}

func TestReservedFrameTypes(t *testing.T) {
	for _, ft := range []FrameType{FrameTypeAuth, FrameTypePong, FrameTypeHeartbeat,
		FrameTypeGetDevices, FrameTypeConnectDevice} {
		assert.True(t, ft.Reserved(), "%s", ft)
	}
	for _, ft := range []FrameType{"input", "frame", "quality", "offer", "answer"} {
		assert.False(t, ft.Reserved(), "%s", ft)
	}
}

func TestUnmarshalAuth(t *testing.T) {
	frame, err := UnmarshalAuth([]byte(`{"type":"auth","sessionId":"s-1","clientType":"mobile","token":"tok"}`))
	require.NoError(t, err)
	assert.Equal(t, "s-1", frame.SessionID)
	assert.Equal(t, "mobile", frame.ClientType)
	assert.Equal(t, "tok", frame.Token)
	assert.Nil(t, frame.DeviceInfo)
}

func TestUnmarshalAuthWithDeviceInfo(t *testing.T) {
	frame, err := UnmarshalAuth([]byte(`{"type":"auth","sessionId":"s-1","clientType":"agent",
		"deviceInfo":{"deviceId":"d-1","name":"Office PC","os":"linux","capabilities":["input","clipboard"]}}`))
	require.NoError(t, err)
	require.NotNil(t, frame.DeviceInfo)
	assert.Equal(t, "d-1", frame.DeviceInfo.DeviceID)
	assert.Equal(t, []string{"input", "clipboard"}, frame.DeviceInfo.Capabilities)
}

func TestUnmarshalAuthRequiresFields(t *testing.T) {
	_, err := UnmarshalAuth([]byte(`{"type":"auth","clientType":"agent"}`))
	assert.Error(t, err)

	_, err = UnmarshalAuth([]byte(`{"type":"auth","sessionId":"s-1"}`))
	assert.Error(t, err)
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole("agent")
	require.NoError(t, err)
	assert.Equal(t, RoleAgent, role)
	assert.Equal(t, RoleMobile, role.Counterpart())

	role, err = ParseRole("mobile")
	require.NoError(t, err)
	assert.Equal(t, RoleAgent, role.Counterpart())

	_, err = ParseRole("desktop")
	assert.Error(t, err)
	assert.True(t, IsAuthError(err))
}

func TestMarshalAuthSuccess(t *testing.T) {
	expiresAt := time.Now().Add(30 * time.Minute)
	out, err := MarshalAuthSuccess("s-1", RoleAgent, 30*time.Second, expiresAt)
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &m))
	assert.Equal(t, "auth_success", m["type"])
	assert.Equal(t, "s-1", m["sessionId"])
	assert.Equal(t, "agent", m["clientType"])
	assert.Equal(t, float64(30000), m["heartbeatInterval"])
	assert.Equal(t, float64(expiresAt.UnixMilli()), m["sessionExpiresAt"])
}

func TestMarshalPingCarriesTimestamp(t *testing.T) {
	ts := time.Now()
	out, err := MarshalPing(ts)
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &m))
	assert.Equal(t, "ping", m["type"])
	assert.Equal(t, float64(ts.UnixMilli()), m["timestamp"])
}

func TestMarshalPeerNotifications(t *testing.T) {
	out, err := MarshalPeerConnected(RoleMobile)
	require.NoError(t, err)
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &m))
	assert.Equal(t, "peer_connected", m["type"])
	assert.Equal(t, "mobile", m["peerType"])

	out, err = MarshalPeerDisconnected(RoleAgent)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(out, &m))
	assert.Equal(t, "peer_disconnected", m["type"])
	assert.Equal(t, "agent", m["peerType"])
}

func TestMarshalDevices(t *testing.T) {
	out, err := MarshalDevices([]DeviceSummary{
		{DeviceID: "d-1", Name: "Office PC", Online: true},
	})
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &m))
	assert.Equal(t, "devices", m["type"])
	devices, ok := m["list"].([]interface{})
	require.True(t, ok)
	require.Len(t, devices, 1)
	first := devices[0].(map[string]interface{})
	assert.Equal(t, "d-1", first["deviceId"])
	assert.Equal(t, true, first["online"])
}
