package domain

import "time"

// Intent identifies which tool should handle a user message.
type Intent string

const (
	IntentTimetable  Intent = "TIMETABLE"
	IntentGraduation Intent = "GRADUATION"
	IntentQA         Intent = "QA"
	IntentChat       Intent = "CHAT"
)

// KnownIntents lists every routable intent.
var KnownIntents = []Intent{IntentTimetable, IntentGraduation, IntentQA, IntentChat}

// MessageKind distinguishes plain text from pre-rendered HTML fragments.
type MessageKind string

const (
	KindText MessageKind = "text"
	KindHTML MessageKind = "html"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Profile is a user's stored academic self-description. Year and Term are
// zero when unset. Callers always supply the complete structure on save;
// the store never merges individual profile fields.
type Profile struct {
	Major         string    `json:"major"`
	Year          int       `json:"year"`
	Term          int       `json:"term"`
	TargetCredits int       `json:"targetCredits"`
	Requirements  string    `json:"requirements"`
	BlockedDays   []string  `json:"blockedDays"`
	ImageKeys     []string  `json:"imageKeys,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// TranscriptImage is one uploaded transcript capture. The set is replaced
// wholesale on every upload.
type TranscriptImage struct {
	MIMEType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

// ChatMessage is one transcript entry. Messages are append-only and never
// mutated after creation.
type ChatMessage struct {
	ID        string      `json:"id"`
	Role      string      `json:"role"`
	Content   string      `json:"content"`
	Kind      MessageKind `json:"kind"`
	CreatedAt time.Time   `json:"createdAt"`
}

// ChatSession is the persisted form of one interactive session's transcript.
type ChatSession struct {
	ID        string        `json:"id"`
	UserID    string        `json:"userId"`
	Summary   string        `json:"summary"`
	Messages  []ChatMessage `json:"messages"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// Bookmark is a user-saved copy of one assistant response. It owns its
// content; later changes to the originating transcript do not touch it.
type Bookmark struct {
	ID        string      `json:"id"`
	UserID    string      `json:"userId"`
	Kind      MessageKind `json:"kind"`
	Content   string      `json:"content"`
	Note      string      `json:"note"`
	CreatedAt time.Time   `json:"createdAt"`
}

// User is an authenticated account.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
