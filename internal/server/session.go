package server

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"campusai/internal/agent"
)

// SessionManager keeps live conversation state in memory. Anonymous sessions
// exist only here; authenticated sessions are additionally flushed to the
// store by the agent after every turn.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*sessionEntry
	maxIdle  time.Duration
}

type sessionEntry struct {
	session  *agent.Session
	lastSeen time.Time
}

// NewSessionManager initializes an empty manager.
func NewSessionManager(maxIdle time.Duration) *SessionManager {
	if maxIdle <= 0 {
		maxIdle = 12 * time.Hour
	}
	return &SessionManager{
		sessions: make(map[string]*sessionEntry),
		maxIdle:  maxIdle,
	}
}

// GetOrCreate returns the live session for id, creating a fresh one when id
// is empty or unknown. Stale sessions are evicted opportunistically.
func (m *SessionManager) GetOrCreate(id string) *agent.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictStaleLocked()

	if id != "" {
		if entry, ok := m.sessions[id]; ok {
			entry.lastSeen = time.Now()
			return entry.session
		}
	}

	session := &agent.Session{ID: uuid.NewString()}
	m.sessions[session.ID] = &sessionEntry{session: session, lastSeen: time.Now()}
	return session
}

// Peek returns the live session for id without creating one. Read-only
// endpoints use it so probing requests do not grow the session map.
func (m *SessionManager) Peek(id string) (*agent.Session, bool) {
	if id == "" {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	entry.lastSeen = time.Now()
	return entry.session, true
}

// Drop removes a live session.
func (m *SessionManager) Drop(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

func (m *SessionManager) evictStaleLocked() {
	cutoff := time.Now().Add(-m.maxIdle)
	for id, entry := range m.sessions {
		if entry.lastSeen.Before(cutoff) {
			delete(m.sessions, id)
		}
	}
}
