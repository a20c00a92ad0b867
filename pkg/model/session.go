package model

import "time"

type SessionStatus string

const (
	SessionStatusPending    SessionStatus = "pending"
	SessionStatusActive     SessionStatus = "active"
	SessionStatusExpired    SessionStatus = "expired"
	SessionStatusTerminated SessionStatus = "terminated"
)

// Session is a model of the persistency layer
type Session struct {
	ID              string
	Status          SessionStatus
	CreatorIP       string
	AgentConnected  bool
	MobileConnected bool
	TotalFrames     int64
	TotalBytes      int64
	ExpiresAt       time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Closed reports whether the session accepts no further registrations.
func (s *Session) Closed() bool {
	return s.Status == SessionStatusExpired || s.Status == SessionStatusTerminated
}
