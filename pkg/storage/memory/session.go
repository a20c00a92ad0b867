package memory

import (
	"sync"
	"time"

	"github.com/ProCodeJH/antigravity-remote-control/pkg/model"
	"github.com/ProCodeJH/antigravity-remote-control/pkg/storage"
)

type sessionStore struct {
	store map[string]model.Session
	sync.RWMutex
}

func newSessionStore() *sessionStore {
	return &sessionStore{
		store: make(map[string]model.Session),
	}
}

func (s *sessionStore) FetchAll() (models map[string]model.Session, err error) {
	s.RLock()
	defer s.RUnlock()
	models = make(map[string]model.Session, len(s.store))

	for id, m := range s.store {
		models[id] = m
	}

	return models, nil
}

func (s *sessionStore) FindByID(id string) (*model.Session, error) {
	s.RLock()
	defer s.RUnlock()
	if m, ok := s.store[id]; ok {
		return &m, nil
	}

	return nil, storage.ErrNotFound
}

func (s *sessionStore) CountByCreatorIP(ip string) (int, error) {
	s.RLock()
	defer s.RUnlock()

	n := 0
	for _, m := range s.store {
		if m.CreatorIP == ip && !m.Closed() {
			n++
		}
	}

	return n, nil
}

func (s *sessionStore) Create(m *model.Session) error {
	s.Lock()
	defer s.Unlock()

	now := time.Now().Round(time.Second).UTC()
	m.CreatedAt = now
	m.UpdatedAt = now

	s.store[m.ID] = *m

	return nil
}

func (s *sessionStore) Update(m *model.Session) error {
	s.Lock()
	defer s.Unlock()

	if _, ok := s.store[m.ID]; !ok {
		return storage.ErrNotFound
	}

	m.UpdatedAt = time.Now().Round(time.Second).UTC()
	s.store[m.ID] = *m

	return nil
}

func (s *sessionStore) Delete(id string) error {
	s.Lock()
	defer s.Unlock()

	_, ok := s.store[id]
	if !ok {
		return storage.ErrNotFound
	}

	delete(s.store, id)

	return nil
}

func (s *sessionStore) Touch(id string, expiresAt time.Time) error {
	s.Lock()
	defer s.Unlock()

	m, ok := s.store[id]
	if !ok {
		return storage.ErrNotFound
	}
	if m.Closed() {
		return storage.ErrSessionClosed
	}

	// Sliding expiry: the deadline only moves forward.
	if expiresAt.After(m.ExpiresAt) {
		m.ExpiresAt = expiresAt
	}
	m.Status = model.SessionStatusActive
	m.UpdatedAt = time.Now().UTC()
	s.store[id] = m

	return nil
}

func (s *sessionStore) MarkRole(id string, role string, connected bool) error {
	s.Lock()
	defer s.Unlock()

	m, ok := s.store[id]
	if !ok {
		return storage.ErrNotFound
	}

	switch role {
	case "agent":
		m.AgentConnected = connected
	case "mobile":
		m.MobileConnected = connected
	}
	m.UpdatedAt = time.Now().UTC()
	s.store[id] = m

	return nil
}

func (s *sessionStore) RecordTraffic(id string, frames, bytes int64) error {
	s.Lock()
	defer s.Unlock()

	m, ok := s.store[id]
	if !ok {
		return storage.ErrNotFound
	}

	m.TotalFrames += frames
	m.TotalBytes += bytes
	s.store[id] = m

	return nil
}

func (s *sessionStore) ExpireDue(now time.Time) ([]model.Session, error) {
	s.Lock()
	defer s.Unlock()

	due := make([]model.Session, 0)
	for id, m := range s.store {
		if m.Closed() || m.ExpiresAt.After(now) {
			continue
		}
		m.Status = model.SessionStatusExpired
		m.UpdatedAt = now.UTC()
		s.store[id] = m
		due = append(due, m)
	}

	return due, nil
}
