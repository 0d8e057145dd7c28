package store

import (
	"errors"

	"quranchat/pkg/domain"
)

// ErrConversationNotFound indicates a lookup for a missing conversation.
var ErrConversationNotFound = errors.New("conversation not found")

// MaxListedConversations caps recency-ordered listings.
const MaxListedConversations = 20

// Store defines conversation persistence: an append-only message log plus a
// conversation index keyed by user identity. The orchestrator treats every
// call as a side effect that must never fail the user-visible turn.
type Store interface {
	CreateConversation(conv domain.Conversation) error
	GetConversation(id string) (domain.Conversation, bool, error)
	// ListConversations returns the identity's conversations ordered by
	// recency, optionally filtered by a search substring over title and
	// preview, capped at MaxListedConversations.
	ListConversations(userID, search string, limit int) ([]domain.Conversation, error)
	ListMessages(conversationID string, limit int) ([]domain.Message, error)
	// AppendMessage records one turn entry and bumps the conversation's
	// updated_at (monotonically non-decreasing) and preview.
	AppendMessage(conversationID string, msg domain.Message) error
	DeleteConversation(id string) error
	// MergeIdentity reassigns every conversation owned by fromUserID to
	// toUserID, returning the number moved. Used for anonymous-to-
	// authenticated account linking.
	MergeIdentity(fromUserID, toUserID string) (int, error)
}

// PreviewOf derives the conversation-list preview from message content.
func PreviewOf(content string) string {
	runes := []rune(content)
	if len(runes) > 80 {
		return string(runes[:80]) + "…"
	}
	return content
}
