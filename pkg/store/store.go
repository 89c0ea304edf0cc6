package store

import "campusai/pkg/domain"

// MessageKeepLimit bounds how many transcript messages a session save keeps.
// Only the most recent messages survive a write.
const MessageKeepLimit = 20

// Store defines persistence operations for users, profiles, chat sessions,
// and bookmarks.
type Store interface {
	// users
	SaveUser(domain.User) error
	HasUserEmail(email string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)

	// profiles
	SaveProfile(userID string, profile domain.Profile) error
	GetProfile(userID string) (domain.Profile, bool, error)

	// chat sessions
	SaveChatSession(userID string, session domain.ChatSession) error
	ListChatSessions(userID string, limit int) ([]domain.ChatSession, error)

	// bookmarks
	AddBookmark(userID string, bookmark domain.Bookmark) error
	ListBookmarks(userID string) ([]domain.Bookmark, error)
}

// SessionStore persists login session tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}

// TruncateMessages keeps at most limit messages, preferring the most recent
// and preserving relative order.
func TruncateMessages(messages []domain.ChatMessage, limit int) []domain.ChatMessage {
	if limit <= 0 || len(messages) <= limit {
		return messages
	}
	return messages[len(messages)-limit:]
}
