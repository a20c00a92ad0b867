package relay

import (
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ProCodeJH/antigravity-remote-control/pkg/model"
	"github.com/ProCodeJH/antigravity-remote-control/pkg/relay/proto"
	"github.com/ProCodeJH/antigravity-remote-control/pkg/storage"
)

// deviceGCFactor controls when a silent device is removed entirely: at
// deviceGCFactor times the online timeout.
const deviceGCFactor = 3

// DeviceRegistry indexes physical agent machines by a stable device
// identifier and keeps a non-owning reference to each device's live
// agent channel. "Online" is always computed at read time from the last
// heartbeat, never cached in a background flag.
type DeviceRegistry struct {
	mu            sync.RWMutex
	store         storage.DeviceStore
	conns         map[string]*PeerChannel
	onlineTimeout time.Duration
}

func NewDeviceRegistry(store storage.DeviceStore, onlineTimeout time.Duration) *DeviceRegistry {
	return &DeviceRegistry{
		store:         store,
		conns:         make(map[string]*PeerChannel),
		onlineTimeout: onlineTimeout,
	}
}

// Register creates or refreshes the device entry for an agent channel.
// The device identifier defaults to the session identifier when the
// metadata carries none.
func (r *DeviceRegistry) Register(info *proto.DeviceInfo, sessionID string, pc *PeerChannel) (*model.Device, error) {
	deviceID := info.DeviceID
	if deviceID == "" {
		deviceID = sessionID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	dev := &model.Device{
		ID:              deviceID,
		Name:            info.Name,
		Hostname:        info.Hostname,
		IP:              info.IP,
		OS:              info.OS,
		Capabilities:    info.Capabilities,
		SessionID:       sessionID,
		Status:          "online",
		LastHeartbeatAt: now,
	}
	if existing, err := r.store.FindByID(deviceID); err == nil {
		if dev.Name == "" {
			dev.Name = existing.Name
		}
		dev.Thumbnail = existing.Thumbnail
		dev.CreatedAt = existing.CreatedAt
	}
	if err := r.store.Upsert(dev); err != nil {
		return nil, err
	}

	r.conns[deviceID] = pc

	return dev, nil
}

// Heartbeat refreshes the device's last-seen timestamp and optional
// status fields. Heartbeats for unknown devices are dropped silently.
func (r *DeviceRegistry) Heartbeat(deviceID string, frame *proto.HeartbeatFrame, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dev, err := r.store.FindByID(deviceID)
	if err != nil {
		log.Debugf("devices dropped heartbeat for unknown device '%s'", deviceID)
		return
	}

	dev.LastHeartbeatAt = now.UTC()
	if frame.Status != "" {
		dev.Status = frame.Status
	}
	if frame.Thumbnail != "" {
		dev.Thumbnail = frame.Thumbnail
	}
	if err := r.store.Upsert(dev); err != nil {
		log.Errorf("devices failed to persist heartbeat for '%s': %v", deviceID, err)
	}
}

// ListOnline returns the devices whose last heartbeat is within the
// online timeout, ordered by device identifier.
func (r *DeviceRegistry) ListOnline(now time.Time) []model.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all, err := r.store.FetchAll()
	if err != nil {
		log.Errorf("devices failed to fetch device list: %v", err)
		return nil
	}

	online := make([]model.Device, 0, len(all))
	for _, dev := range all {
		if dev.Online(now, r.onlineTimeout) {
			online = append(online, dev)
		}
	}
	sort.Slice(online, func(i, j int) bool {
		return online[i].ID < online[j].ID
	})

	return online
}

// Live returns the device and its agent channel when the device is
// online and has a bound channel.
func (r *DeviceRegistry) Live(deviceID string, now time.Time) (*model.Device, *PeerChannel) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dev, err := r.store.FindByID(deviceID)
	if err != nil || !dev.Online(now, r.onlineTimeout) {
		return nil, nil
	}
	pc := r.conns[deviceID]
	if pc == nil {
		return nil, nil
	}

	return dev, pc
}

// Rebind points the device at a new session after a mobile peer picked
// it for pairing.
func (r *DeviceRegistry) Rebind(deviceID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dev, err := r.store.FindByID(deviceID)
	if err != nil {
		return
	}
	dev.SessionID = sessionID
	if err := r.store.Upsert(dev); err != nil {
		log.Errorf("devices failed to rebind '%s': %v", deviceID, err)
	}
}

// Detach drops the live channel reference if it still belongs to the
// given channel. The device entry itself survives until the sweep.
func (r *DeviceRegistry) Detach(deviceID string, pc *PeerChannel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conns[deviceID] != pc {
		return
	}
	delete(r.conns, deviceID)

	if dev, err := r.store.FindByID(deviceID); err == nil {
		dev.Status = "offline"
		if err := r.store.Upsert(dev); err != nil {
			log.Errorf("devices failed to mark '%s' offline: %v", deviceID, err)
		}
	}
}

// Sweep removes devices that have been silent for longer than
// deviceGCFactor times the online timeout and returns their IDs.
func (r *DeviceRegistry) Sweep(now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.store.FetchAll()
	if err != nil {
		log.Errorf("devices failed to fetch device list for sweep: %v", err)
		return nil
	}

	removed := make([]string, 0)
	deadline := now.Add(-deviceGCFactor * r.onlineTimeout)
	for id, dev := range all {
		if dev.LastHeartbeatAt.After(deadline) {
			continue
		}
		if err := r.store.Delete(id); err != nil {
			log.Errorf("devices failed to delete '%s': %v", id, err)
			continue
		}
		delete(r.conns, id)
		removed = append(removed, id)
	}

	return removed
}
