package store

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"campusai/pkg/domain"
)

// GormStore implements Store using GORM.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens a Postgres-backed store and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return NewGormStoreWithDB(db)
}

// NewGormStoreWithDB wraps an existing GORM handle and runs auto-migrations.
// Used by tests with an in-memory sqlite driver.
func NewGormStoreWithDB(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&UserModel{}, &ProfileModel{}, &ChatSessionModel{}, &BookmarkModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "password_hash", "updated_at"}),
	}).Create(&model).Error
}

// HasUserEmail checks if email exists.
func (s *GormStore) HasUserEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// SaveProfile upserts the full profile document for a user. Callers always
// supply the complete structure; no field-level merge happens here.
func (s *GormStore) SaveProfile(userID string, profile domain.Profile) error {
	model := profileToModel(userID, profile)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"major", "year", "term", "target_credits", "requirements", "blocked_days", "image_keys", "updated_at"}),
	}).Create(&model).Error
}

// GetProfile returns the stored profile for a user.
func (s *GormStore) GetProfile(userID string) (domain.Profile, bool, error) {
	var model ProfileModel
	if err := s.db.First(&model, "user_id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Profile{}, false, nil
		}
		return domain.Profile{}, false, err
	}
	return profileFromModel(model), true, nil
}

// SaveChatSession upserts a chat session, truncating the transcript to the
// most recent MessageKeepLimit messages before the write. An empty summary
// does not overwrite a previously stored one.
func (s *GormStore) SaveChatSession(userID string, session domain.ChatSession) error {
	session.Messages = TruncateMessages(session.Messages, MessageKeepLimit)
	model, err := chatSessionToModel(userID, session)
	if err != nil {
		return err
	}
	columns := []string{"user_id", "messages", "updated_at"}
	if strings.TrimSpace(session.Summary) != "" {
		columns = append(columns, "summary")
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(&model).Error
}

// ListChatSessions returns the user's sessions, newest first by updated_at.
func (s *GormStore) ListChatSessions(userID string, limit int) ([]domain.ChatSession, error) {
	if limit <= 0 || limit > 100 {
		limit = 30
	}
	var models []ChatSessionModel
	if err := s.db.Where("user_id = ?", userID).
		Order("updated_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	items := make([]domain.ChatSession, 0, len(models))
	for _, model := range models {
		items = append(items, chatSessionFromModel(model))
	}
	return items, nil
}

// AddBookmark records a bookmark.
func (s *GormStore) AddBookmark(userID string, bookmark domain.Bookmark) error {
	model := bookmarkToModel(userID, bookmark)
	return s.db.Create(&model).Error
}

// ListBookmarks returns the user's bookmarks, newest first.
func (s *GormStore) ListBookmarks(userID string) ([]domain.Bookmark, error) {
	var models []BookmarkModel
	if err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	items := make([]domain.Bookmark, 0, len(models))
	for _, model := range models {
		items = append(items, bookmarkFromModel(model))
	}
	return items, nil
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func profileToModel(userID string, p domain.Profile) ProfileModel {
	blocked, _ := json.Marshal(p.BlockedDays)
	keys, _ := json.Marshal(p.ImageKeys)
	updatedAt := p.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	return ProfileModel{
		UserID:        userID,
		Major:         p.Major,
		Year:          p.Year,
		Term:          p.Term,
		TargetCredits: p.TargetCredits,
		Requirements:  p.Requirements,
		BlockedDays:   blocked,
		ImageKeys:     keys,
		UpdatedAt:     updatedAt,
	}
}

func profileFromModel(m ProfileModel) domain.Profile {
	var blocked []string
	if len(m.BlockedDays) > 0 {
		_ = json.Unmarshal(m.BlockedDays, &blocked)
	}
	var keys []string
	if len(m.ImageKeys) > 0 {
		_ = json.Unmarshal(m.ImageKeys, &keys)
	}
	return domain.Profile{
		Major:         m.Major,
		Year:          m.Year,
		Term:          m.Term,
		TargetCredits: m.TargetCredits,
		Requirements:  m.Requirements,
		BlockedDays:   blocked,
		ImageKeys:     keys,
		UpdatedAt:     m.UpdatedAt,
	}
}

func chatSessionToModel(userID string, s domain.ChatSession) (ChatSessionModel, error) {
	raw, err := json.Marshal(s.Messages)
	if err != nil {
		return ChatSessionModel{}, fmt.Errorf("encode messages: %w", err)
	}
	updatedAt := s.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	return ChatSessionModel{
		ID:        s.ID,
		UserID:    userID,
		Summary:   s.Summary,
		Messages:  raw,
		UpdatedAt: updatedAt,
	}, nil
}

func chatSessionFromModel(m ChatSessionModel) domain.ChatSession {
	var messages []domain.ChatMessage
	if len(m.Messages) > 0 {
		_ = json.Unmarshal(m.Messages, &messages)
	}
	return domain.ChatSession{
		ID:        m.ID,
		UserID:    m.UserID,
		Summary:   m.Summary,
		Messages:  messages,
		UpdatedAt: m.UpdatedAt,
	}
}

func bookmarkToModel(userID string, b domain.Bookmark) BookmarkModel {
	createdAt := b.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return BookmarkModel{
		ID:        b.ID,
		UserID:    userID,
		Kind:      string(b.Kind),
		Content:   b.Content,
		Note:      b.Note,
		CreatedAt: createdAt,
	}
}

func bookmarkFromModel(m BookmarkModel) domain.Bookmark {
	return domain.Bookmark{
		ID:        m.ID,
		UserID:    m.UserID,
		Kind:      domain.MessageKind(m.Kind),
		Content:   m.Content,
		Note:      m.Note,
		CreatedAt: m.CreatedAt,
	}
}
