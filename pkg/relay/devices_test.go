package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ProCodeJH/antigravity-remote-control/pkg/relay/proto"
	"github.com/ProCodeJH/antigravity-remote-control/pkg/storage/memory"
)

const testOnlineTimeout = 30 * time.Second

func newTestDeviceRegistry() *DeviceRegistry {
	return NewDeviceRegistry(memory.NewStore().Devices(), testOnlineTimeout)
}

func TestDeviceRegisterDefaultsToSessionID(t *testing.T) {
	r := newTestDeviceRegistry()
	pc := &PeerChannel{}

	dev, err := r.Register(&proto.DeviceInfo{Name: "Office PC"}, "s-1", pc)
	require.NoError(t, err)
	assert.Equal(t, "s-1", dev.ID)
	assert.Equal(t, "s-1", dev.SessionID)
}

func TestDeviceOnlineWindow(t *testing.T) {
	r := newTestDeviceRegistry()
	pc := &PeerChannel{}

	dev, err := r.Register(&proto.DeviceInfo{DeviceID: "d-1"}, "s-1", pc)
	require.NoError(t, err)

	registeredAt := dev.LastHeartbeatAt

	// Within the timeout the device is online.
	online := r.ListOnline(registeredAt.Add(testOnlineTimeout - time.Second))
	require.Len(t, online, 1)
	assert.Equal(t, "d-1", online[0].ID)

	// One second past the timeout it is not.
	online = r.ListOnline(registeredAt.Add(testOnlineTimeout + time.Second))
	assert.Empty(t, online)

	// A heartbeat brings it back.
	r.Heartbeat("d-1", &proto.HeartbeatFrame{}, registeredAt.Add(testOnlineTimeout+time.Second))
	online = r.ListOnline(registeredAt.Add(testOnlineTimeout + 2*time.Second))
	require.Len(t, online, 1)
}

func TestDeviceHeartbeatUnknownIsDropped(t *testing.T) {
	r := newTestDeviceRegistry()

	// Must not create an entry.
	r.Heartbeat("ghost", &proto.HeartbeatFrame{Status: "busy"}, time.Now())
	assert.Empty(t, r.ListOnline(time.Now()))
}

func TestDeviceHeartbeatUpdatesStatusAndThumbnail(t *testing.T) {
	r := newTestDeviceRegistry()
	pc := &PeerChannel{}

	_, err := r.Register(&proto.DeviceInfo{DeviceID: "d-1"}, "s-1", pc)
	require.NoError(t, err)

	now := time.Now()
	r.Heartbeat("d-1", &proto.HeartbeatFrame{Status: "busy", Thumbnail: "img"}, now)

	online := r.ListOnline(now)
	require.Len(t, online, 1)
	assert.Equal(t, "busy", online[0].Status)
	assert.Equal(t, "img", online[0].Thumbnail)
}

func TestDeviceLive(t *testing.T) {
	r := newTestDeviceRegistry()
	pc := &PeerChannel{}

	dev, err := r.Register(&proto.DeviceInfo{DeviceID: "d-1"}, "s-1", pc)
	require.NoError(t, err)

	got, ch := r.Live("d-1", dev.LastHeartbeatAt.Add(time.Second))
	require.NotNil(t, got)
	assert.Same(t, pc, ch)

	// Offline devices are not live even with a bound channel.
	got, ch = r.Live("d-1", dev.LastHeartbeatAt.Add(testOnlineTimeout+time.Second))
	assert.Nil(t, got)
	assert.Nil(t, ch)

	got, ch = r.Live("missing", time.Now())
	assert.Nil(t, got)
	assert.Nil(t, ch)
}

func TestDeviceDetachMatchesIdentity(t *testing.T) {
	r := newTestDeviceRegistry()
	old := &PeerChannel{}
	replacement := &PeerChannel{}

	dev, err := r.Register(&proto.DeviceInfo{DeviceID: "d-1"}, "s-1", old)
	require.NoError(t, err)
	_, err = r.Register(&proto.DeviceInfo{DeviceID: "d-1"}, "s-1", replacement)
	require.NoError(t, err)

	// The old channel's detach must not drop the replacement binding.
	r.Detach("d-1", old)
	_, ch := r.Live("d-1", dev.LastHeartbeatAt.Add(time.Second))
	assert.Same(t, replacement, ch)

	r.Detach("d-1", replacement)
	_, ch = r.Live("d-1", dev.LastHeartbeatAt.Add(time.Second))
	assert.Nil(t, ch)
}

func TestDeviceRebind(t *testing.T) {
	r := newTestDeviceRegistry()
	pc := &PeerChannel{}

	dev, err := r.Register(&proto.DeviceInfo{DeviceID: "d-1"}, "s-1", pc)
	require.NoError(t, err)

	r.Rebind("d-1", "s-2")

	online := r.ListOnline(dev.LastHeartbeatAt.Add(time.Second))
	require.Len(t, online, 1)
	assert.Equal(t, "s-2", online[0].SessionID)
}

func TestDeviceSweep(t *testing.T) {
	r := newTestDeviceRegistry()
	pc := &PeerChannel{}

	dev, err := r.Register(&proto.DeviceInfo{DeviceID: "d-1"}, "s-1", pc)
	require.NoError(t, err)
	base := dev.LastHeartbeatAt

	// Offline but not yet past the grace period: the record survives.
	removed := r.Sweep(base.Add(deviceGCFactor*testOnlineTimeout - time.Second))
	assert.Empty(t, removed)

	removed = r.Sweep(base.Add(deviceGCFactor*testOnlineTimeout + time.Second))
	require.Equal(t, []string{"d-1"}, removed)

	_, ch := r.Live("d-1", base)
	assert.Nil(t, ch)
	assert.Empty(t, r.ListOnline(base.Add(time.Second)))
}
