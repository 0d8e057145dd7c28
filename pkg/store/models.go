package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type ConversationModel struct {
	ID                 string    `gorm:"primaryKey"`
	UserID             string    `gorm:"not null;index"`
	Title              string    `gorm:"not null"`
	LastMessagePreview string    `gorm:""`
	CreatedAt          time.Time `gorm:"not null"`
	UpdatedAt          time.Time `gorm:"not null;index"`
}

type MessageModel struct {
	ID             string         `gorm:"primaryKey"`
	ConversationID string         `gorm:"not null;index"`
	Role           string         `gorm:"not null"`
	Content        string         `gorm:"type:text;not null"`
	ToolCalls      datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt      time.Time      `gorm:"not null;index"`
}

func (ConversationModel) TableName() string { return "conversations" }
func (MessageModel) TableName() string      { return "messages" }
