package memory

import "github.com/ProCodeJH/antigravity-remote-control/pkg/storage"

// Store contains all memory-based sub-stores for managing the models
type store struct {
	sessions *sessionStore
	devices  *deviceStore
}

// NewStore creates a new memory-based Storage interface
func NewStore() storage.Interface {
	return &store{
		sessions: newSessionStore(),
		devices:  newDeviceStore(),
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
