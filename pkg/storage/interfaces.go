package storage

import (
	"time"

	"github.com/ProCodeJH/antigravity-remote-control/pkg/model"
)

// Interface is implemented by the storage
type Interface interface {
	Sessions() SessionStore
	Devices() DeviceStore
}

// SessionStore is responsible for managing the Session model
type SessionStore interface {
	FetchAll() (map[string]model.Session, error)
	FindByID(id string) (*model.Session, error)
	CountByCreatorIP(ip string) (int, error)
	Create(m *model.Session) error
	Update(m *model.Session) error
	Delete(id string) error

	// Touch slides the session expiry forward to the given deadline.
	// The deadline never moves backwards.
	Touch(id string, expiresAt time.Time) error
	// MarkRole records whether the given role currently has a live
	// connection bound to the session.
	MarkRole(id string, role string, connected bool) error
	// RecordTraffic accumulates relay-side frame/byte counters. Safe
	// for concurrent callers from both roles of the same session.
	RecordTraffic(id string, frames, bytes int64) error
	// ExpireDue returns every session whose expiry deadline has passed
	// and marks it expired.
	ExpireDue(now time.Time) ([]model.Session, error)
}

// DeviceStore is responsible for managing the Device model
type DeviceStore interface {
	FetchAll() (map[string]model.Device, error)
	FindByID(id string) (*model.Device, error)
	Upsert(m *model.Device) error
	Delete(id string) error
}
