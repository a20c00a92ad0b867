package resource

import (
	"sort"
	"time"

	"github.com/ProCodeJH/antigravity-remote-control/pkg/model"
)

type SessionResource struct {
	ID              string    `json:"id"`
	Status          string    `json:"status"`
	AgentConnected  bool      `json:"agentConnected"`
	MobileConnected bool      `json:"mobileConnected"`
	TotalFrames     int64     `json:"totalFrames"`
	TotalBytes      int64     `json:"totalBytes"`
	ExpiresAt       time.Time `json:"expiresAt"`
	CreatedAt       time.Time `json:"createdAt"`
}

type SessionListResource struct {
	Members []*SessionResource `json:"members"`
}

// SessionCreatedResource additionally carries the per-role tokens.
// Tokens are handed out exactly once, at creation.
type SessionCreatedResource struct {
	SessionResource
	Tokens map[string]string `json:"tokens,omitempty"`
}

func NewSession(m *model.Session) (out *SessionResource) {
	out = &SessionResource{
		ID:              m.ID,
		Status:          string(m.Status),
		AgentConnected:  m.AgentConnected,
		MobileConnected: m.MobileConnected,
		TotalFrames:     m.TotalFrames,
		TotalBytes:      m.TotalBytes,
		ExpiresAt:       m.ExpiresAt,
		CreatedAt:       m.CreatedAt,
	}

	return // out
}

func NewSessionCreated(m *model.Session, tokens map[string]string) (out *SessionCreatedResource) {
	out = &SessionCreatedResource{
		SessionResource: *NewSession(m),
		Tokens:          tokens,
	}

	return // out
}

func NewSessionList(m map[string]model.Session) (out *SessionListResource) {
	out = &SessionListResource{
		Members: make([]*SessionResource, 0),
	}

	for _, elem := range m {
		out.Members = append(out.Members, NewSession(&elem))
	}

	// Default sort by ID
	sort.Slice(out.Members, func(i, j int) bool {
		return out.Members[i].ID < out.Members[j].ID
	})

	return // out
}
