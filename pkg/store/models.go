package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string    `gorm:"primaryKey"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type ProfileModel struct {
	UserID        string `gorm:"primaryKey"`
	Major         string
	Year          int
	Term          int
	TargetCredits int
	Requirements  string         `gorm:"type:text"`
	BlockedDays   datatypes.JSON `gorm:"type:jsonb"`
	ImageKeys     datatypes.JSON `gorm:"type:jsonb"`
	UpdatedAt     time.Time      `gorm:"not null"`
}

type ChatSessionModel struct {
	ID        string `gorm:"primaryKey"`
	UserID    string `gorm:"not null;index"`
	Summary   string
	Messages  datatypes.JSON `gorm:"type:jsonb"`
	UpdatedAt time.Time      `gorm:"not null;index"`
}

type BookmarkModel struct {
	ID        string    `gorm:"primaryKey"`
	UserID    string    `gorm:"not null;index"`
	Kind      string    `gorm:"not null"`
	Content   string    `gorm:"type:text;not null"`
	Note      string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"not null;index"`
}
