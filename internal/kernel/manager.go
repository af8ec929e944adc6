package kernel

import (
	"fmt"
	"sort"
	"sync"
)

// Manager is the process-wide registry of live kernel sessions.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]Session),
	}
}

func (m *Manager) Register(session Session) error {
	if session == nil || session.ID() == "" {
		return fmt.Errorf("session with empty id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[session.ID()]; exists {
		return fmt.Errorf("kernel %s already registered", session.ID())
	}
	m.sessions[session.ID()] = session
	return nil
}

func (m *Manager) Get(id string) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[id]
	return session, ok
}

func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
