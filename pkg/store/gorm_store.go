package store

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"quranchat/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
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
	if err := db.AutoMigrate(&ConversationModel{}, &MessageModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// CreateConversation inserts a new conversation row.
func (s *GormStore) CreateConversation(conv domain.Conversation) error {
	model := ConversationModel{
		ID:                 conv.ID,
		UserID:             conv.UserID,
		Title:              conv.Title,
		LastMessagePreview: conv.LastMessagePreview,
		CreatedAt:          conv.CreatedAt,
		UpdatedAt:          conv.UpdatedAt,
	}
	if err := s.db.Create(&model).Error; err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

// GetConversation loads one conversation by id.
func (s *GormStore) GetConversation(id string) (domain.Conversation, bool, error) {
	var model ConversationModel
	err := s.db.First(&model, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return domain.Conversation{}, false, nil
	}
	if err != nil {
		return domain.Conversation{}, false, fmt.Errorf("get conversation: %w", err)
	}
	return model.toDomain(), true, nil
}

// ListConversations returns recency-ordered conversations for the identity.
func (s *GormStore) ListConversations(userID, search string, limit int) ([]domain.Conversation, error) {
	if limit <= 0 || limit > MaxListedConversations {
		limit = MaxListedConversations
	}
	q := s.db.Where("user_id = ?", userID)
	if search = strings.TrimSpace(search); search != "" {
		pattern := "%" + search + "%"
		q = q.Where("title ILIKE ? OR last_message_preview ILIKE ?", pattern, pattern)
	}
	var models []ConversationModel
	if err := q.Order("updated_at DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	out := make([]domain.Conversation, 0, len(models))
	for _, m := range models {
		out = append(out, m.toDomain())
	}
	return out, nil
}

// ListMessages returns a conversation's messages in chronological order.
func (s *GormStore) ListMessages(conversationID string, limit int) ([]domain.Message, error) {
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	var models []MessageModel
	err := s.db.Where("conversation_id = ?", conversationID).
		Order("created_at ASC").Limit(limit).Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	out := make([]domain.Message, 0, len(models))
	for _, m := range models {
		msg := domain.Message{
			ID:             m.ID,
			ConversationID: m.ConversationID,
			Role:           domain.Role(m.Role),
			Content:        m.Content,
			CreatedAt:      m.CreatedAt,
		}
		if len(m.ToolCalls) > 0 {
			_ = json.Unmarshal(m.ToolCalls, &msg.ToolCalls)
		}
		out = append(out, msg)
	}
	return out, nil
}

// AppendMessage writes one message row and bumps the conversation's
// updated_at and preview in the same transaction. updated_at never moves
// backwards.
func (s *GormStore) AppendMessage(conversationID string, msg domain.Message) error {
	var toolCalls datatypes.JSON
	if len(msg.ToolCalls) > 0 {
		raw, err := json.Marshal(msg.ToolCalls)
		if err != nil {
			return fmt.Errorf("marshal tool calls: %w", err)
		}
		toolCalls = raw
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		var conv ConversationModel
		if err := tx.First(&conv, "id = ?", conversationID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrConversationNotFound
			}
			return fmt.Errorf("load conversation: %w", err)
		}
		model := MessageModel{
			ID:             msg.ID,
			ConversationID: conversationID,
			Role:           string(msg.Role),
			Content:        msg.Content,
			ToolCalls:      toolCalls,
			CreatedAt:      msg.CreatedAt,
		}
		if err := tx.Create(&model).Error; err != nil {
			return fmt.Errorf("append message: %w", err)
		}
		updatedAt := conv.UpdatedAt
		if msg.CreatedAt.After(updatedAt) {
			updatedAt = msg.CreatedAt
		}
		updates := map[string]any{
			"updated_at":           updatedAt,
			"last_message_preview": PreviewOf(msg.Content),
		}
		if err := tx.Model(&ConversationModel{}).Where("id = ?", conversationID).Updates(updates).Error; err != nil {
			return fmt.Errorf("update conversation: %w", err)
		}
		return nil
	})
}

// DeleteConversation removes the conversation and its messages.
func (s *GormStore) DeleteConversation(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&MessageModel{}, "conversation_id = ?", id).Error; err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		if err := tx.Delete(&ConversationModel{}, "id = ?", id).Error; err != nil {
			return fmt.Errorf("delete conversation: %w", err)
		}
		return nil
	})
}

// MergeIdentity reassigns every conversation from one identity to another.
func (s *GormStore) MergeIdentity(fromUserID, toUserID string) (int, error) {
	res := s.db.Model(&ConversationModel{}).
		Where("user_id = ?", fromUserID).
		Update("user_id", toUserID)
	if res.Error != nil {
		return 0, fmt.Errorf("merge identity: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

func (m ConversationModel) toDomain() domain.Conversation {
	return domain.Conversation{
		ID:                 m.ID,
		UserID:             m.UserID,
		Title:              m.Title,
		LastMessagePreview: m.LastMessagePreview,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}
