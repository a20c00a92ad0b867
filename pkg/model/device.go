package model

import "time"

// Device is a model of the persistency layer
type Device struct {
	ID              string
	Name            string
	Hostname        string
	IP              string
	OS              string
	Capabilities    []string
	SessionID       string
	Status          string
	Thumbnail       string
	LastHeartbeatAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Online reports whether the device produced a heartbeat within the
// given timeout window, evaluated at read time.
func (d *Device) Online(now time.Time, timeout time.Duration) bool {
	return now.Sub(d.LastHeartbeatAt) < timeout
}
