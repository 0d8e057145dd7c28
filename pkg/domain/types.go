package domain

import "time"

// Role identifies who produced a chat message.
type Role string

const (
	RoleUser     Role = "user"
	RoleModel    Role = "model"
	RoleSystem   Role = "system"
	RoleFunction Role = "function"
)

// ChatMessage is one turn entry in a conversation. Messages are immutable
// once appended; ordering within a conversation is chronological.
type ChatMessage struct {
	Role        Role         `json:"role"`
	Content     string       `json:"content"`
	ToolResults []ToolResult `json:"toolResults,omitempty"`
}

// ToolCall is a model-issued request to invoke a named tool with arguments.
type ToolCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ToolResult pairs a tool call with its outcome. Name and Args must echo the
// originating call unchanged; Result holds either a data payload or an
// {error: ...} marker.
type ToolResult struct {
	Name   string         `json:"name"`
	Args   map[string]any `json:"args"`
	Result any            `json:"result"`
}

// Verse is a single ayah with its translation and canonical script text.
type Verse struct {
	VerseKey    string `json:"verseKey"`
	SurahNumber int    `json:"surahNumber"`
	AyahNumber  int    `json:"ayahNumber"`
	ArabicText  string `json:"arabicText"`
	Translation string `json:"translation"`
}

// SearchResult is one hit of a verse search.
type SearchResult struct {
	VerseKey    string `json:"verseKey"`
	VerseID     int    `json:"verseId"`
	Text        string `json:"text"`
	Highlighted string `json:"highlighted,omitempty"`
}

// Surah is chapter metadata as reported by the reference API.
type Surah struct {
	ID              int    `json:"id"`
	NameSimple      string `json:"nameSimple"`
	NameArabic      string `json:"nameArabic"`
	TranslatedName  string `json:"translatedName"`
	RevelationPlace string `json:"revelationPlace"`
	VersesCount     int    `json:"versesCount"`
}

// Conversation groups messages under a user identity.
type Conversation struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"userId"`
	Title              string    `json:"title"`
	LastMessagePreview string    `json:"lastMessagePreview"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Message is a persisted chat turn entry.
type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversationId"`
	Role           Role         `json:"role"`
	Content        string       `json:"content"`
	ToolCalls      []ToolResult `json:"toolCalls,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// TurnResult is what the orchestrator returns for one user turn: the final
// model text plus the raw tool outputs for provenance rendering.
type TurnResult struct {
	Text        string       `json:"text"`
	ToolResults []ToolResult `json:"toolCalls,omitempty"`
}
