package resource

import (
	"sort"
	"time"

	"github.com/ProCodeJH/antigravity-remote-control/pkg/model"
)

type DeviceResource struct {
	ID              string    `json:"id"`
	Name            string    `json:"name,omitempty"`
	Hostname        string    `json:"hostname,omitempty"`
	IP              string    `json:"ip,omitempty"`
	OS              string    `json:"os,omitempty"`
	Capabilities    []string  `json:"capabilities,omitempty"`
	SessionID       string    `json:"sessionId,omitempty"`
	Status          string    `json:"status,omitempty"`
	Online          bool      `json:"online"`
	LastHeartbeatAt time.Time `json:"lastHeartbeatAt"`
	CreatedAt       time.Time `json:"createdAt"`
}

type DeviceListResource struct {
	Members []*DeviceResource `json:"members"`
}

func NewDevice(m *model.Device, now time.Time, onlineTimeout time.Duration) (out *DeviceResource) {
	out = &DeviceResource{
		ID:              m.ID,
		Name:            m.Name,
		Hostname:        m.Hostname,
		IP:              m.IP,
		OS:              m.OS,
		Capabilities:    m.Capabilities,
		SessionID:       m.SessionID,
		Status:          m.Status,
		Online:          m.Online(now, onlineTimeout),
		LastHeartbeatAt: m.LastHeartbeatAt,
		CreatedAt:       m.CreatedAt,
	}

	return // out
}

func NewDeviceList(m map[string]model.Device, now time.Time, onlineTimeout time.Duration) (out *DeviceListResource) {
	out = &DeviceListResource{
		Members: make([]*DeviceResource, 0),
	}

	for _, elem := range m {
		out.Members = append(out.Members, NewDevice(&elem, now, onlineTimeout))
	}

	// Default sort by ID
	sort.Slice(out.Members, func(i, j int) bool {
		return out.Members[i].ID < out.Members[j].ID
	})

	return // out
}
