package store

import (
	"sort"
	"strings"
	"sync"

	"quranchat/pkg/domain"
)

// MemoryStore keeps conversations in-process for tests and development.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]domain.Conversation
	messages      map[string][]domain.Message
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]domain.Conversation),
		messages:      make(map[string][]domain.Message),
	}
}

// CreateConversation stores a new conversation record.
func (m *MemoryStore) CreateConversation(conv domain.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversations[conv.ID] = conv
	return nil
}

// GetConversation retrieves a conversation by ID.
func (m *MemoryStore) GetConversation(id string) (domain.Conversation, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conv, ok := m.conversations[id]
	return conv, ok, nil
}

// ListConversations returns the identity's conversations by recency.
func (m *MemoryStore) ListConversations(userID, search string, limit int) ([]domain.Conversation, error) {
	if limit <= 0 || limit > MaxListedConversations {
		limit = MaxListedConversations
	}
	search = strings.ToLower(strings.TrimSpace(search))

	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Conversation, 0)
	for _, conv := range m.conversations {
		if conv.UserID != userID {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(conv.Title), search) &&
			!strings.Contains(strings.ToLower(conv.LastMessagePreview), search) {
			continue
		}
		out = append(out, conv)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListMessages returns messages in append order.
func (m *MemoryStore) ListMessages(conversationID string, limit int) ([]domain.Message, error) {
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := m.messages[conversationID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// AppendMessage records a message and bumps the conversation metadata.
func (m *MemoryStore) AppendMessage(conversationID string, msg domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.conversations[conversationID]
	if !ok {
		return ErrConversationNotFound
	}
	m.messages[conversationID] = append(m.messages[conversationID], msg)
	if msg.CreatedAt.After(conv.UpdatedAt) {
		conv.UpdatedAt = msg.CreatedAt
	}
	conv.LastMessagePreview = PreviewOf(msg.Content)
	m.conversations[conversationID] = conv
	return nil
}

// DeleteConversation removes the conversation and its messages.
func (m *MemoryStore) DeleteConversation(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conversations, id)
	delete(m.messages, id)
	return nil
}

// MergeIdentity reassigns conversations between identities.
func (m *MemoryStore) MergeIdentity(fromUserID, toUserID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	moved := 0
	for id, conv := range m.conversations {
		if conv.UserID == fromUserID {
			conv.UserID = toUserID
			m.conversations[id] = conv
			moved++
		}
	}
	return moved, nil
}
