package postgres

import (
	"github.com/jmoiron/sqlx"

	"github.com/ProCodeJH/antigravity-remote-control/pkg/storage"
)

// store contains all PostgreSQL based sub-stores for managing the models
type store struct {
	sessions *sessionStore
	devices  *deviceStore
}

// NewStore creates a new PostgreSQL based Storage interface
func NewStore(db *sqlx.DB) storage.Interface {
	return &store{
		sessions: newSessionStore(db),
		devices:  newDeviceStore(db),
	}
}

// Sessions returns a sub-store for managing the Session model
func (s *store) Sessions() storage.SessionStore {
	return s.sessions
}

// Devices returns a sub-store for managing the Device model
func (s *store) Devices() storage.DeviceStore {
	return s.devices
}
