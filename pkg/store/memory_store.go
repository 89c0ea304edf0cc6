package store

import (
	"sort"
	"sync"
	"time"

	"campusai/pkg/domain"
)

// MemoryStore keeps all records in-process. It backs tests and the degraded
// mode used when no database is reachable.
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[string]domain.User
	email     map[string]string // email -> user ID
	profiles  map[string]domain.Profile
	sessions  map[string]map[string]domain.ChatSession // userID -> sessionID -> session
	bookmarks map[string][]domain.Bookmark
	sess      map[string]string // token -> user ID
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]domain.User),
		email:     make(map[string]string),
		profiles:  make(map[string]domain.Profile),
		sessions:  make(map[string]map[string]domain.ChatSession),
		bookmarks: make(map[string][]domain.Bookmark),
		sess:      make(map[string]string),
	}
}

// SaveUser registers or replaces a user.
func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	m.email[u.Email] = u.ID
	return nil
}

// HasUserEmail checks if email exists.
func (m *MemoryStore) HasUserEmail(email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.email[email]
	return ok, nil
}

// GetUserByEmail looks up a user by email.
func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.email[email]; ok {
		u, exists := m.users[id]
		return u, exists, nil
	}
	return domain.User{}, false, nil
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

// SaveProfile stores the full profile document for a user.
func (m *MemoryStore) SaveProfile(userID string, profile domain.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if profile.UpdatedAt.IsZero() {
		profile.UpdatedAt = time.Now().UTC()
	}
	m.profiles[userID] = profile
	return nil
}

// GetProfile returns the stored profile for a user.
func (m *MemoryStore) GetProfile(userID string) (domain.Profile, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[userID]
	return p, ok, nil
}

// SaveChatSession upserts a session, truncating to MessageKeepLimit. An
// empty summary keeps the previously stored one.
func (m *MemoryStore) SaveChatSession(userID string, session domain.ChatSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byID, ok := m.sessions[userID]
	if !ok {
		byID = make(map[string]domain.ChatSession)
		m.sessions[userID] = byID
	}
	session.UserID = userID
	session.Messages = append([]domain.ChatMessage(nil), TruncateMessages(session.Messages, MessageKeepLimit)...)
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = time.Now().UTC()
	}
	if existing, found := byID[session.ID]; found && session.Summary == "" {
		session.Summary = existing.Summary
	}
	byID[session.ID] = session
	return nil
}

// ListChatSessions returns the user's sessions, newest first by UpdatedAt.
func (m *MemoryStore) ListChatSessions(userID string, limit int) ([]domain.ChatSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byID := m.sessions[userID]
	items := make([]domain.ChatSession, 0, len(byID))
	for _, s := range byID {
		items = append(items, s)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].UpdatedAt.After(items[j].UpdatedAt)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// AddBookmark records a copy of the bookmarked content.
func (m *MemoryStore) AddBookmark(userID string, bookmark domain.Bookmark) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bookmark.UserID = userID
	if bookmark.CreatedAt.IsZero() {
		bookmark.CreatedAt = time.Now().UTC()
	}
	m.bookmarks[userID] = append(m.bookmarks[userID], bookmark)
	return nil
}

// ListBookmarks returns the user's bookmarks, newest first.
func (m *MemoryStore) ListBookmarks(userID string) ([]domain.Bookmark, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored := m.bookmarks[userID]
	items := make([]domain.Bookmark, len(stored))
	copy(items, stored)
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items, nil
}

// NewSession creates a login session token for a user.
func (m *MemoryStore) NewSession(userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token := newToken()
	m.sess[token] = userID
	return token, nil
}

// GetUserIDByToken resolves a login token to a user ID.
func (m *MemoryStore) GetUserIDByToken(token string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	uid, ok := m.sess[token]
	return uid, ok, nil
}

// DeleteSession removes a login token.
func (m *MemoryStore) DeleteSession(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sess, token)
	return nil
}
