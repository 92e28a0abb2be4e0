package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Conversation struct {
	ID           uuid.UUID `json:"id"`
	UserID       uuid.UUID `json:"-"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// Message is immutable once stored.
type Message struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Content        string    `json:"content"`
	Role           string    `json:"role"` // "user" or "assistant"
	CreatedAt      time.Time `json:"timestamp"`
}

type CreateConversationRequest struct {
	Title string `json:"title"`
}

type RenameConversationRequest struct {
	Title string `json:"title"`
}

type SendMessageRequest struct {
	Content string `json:"content"`
}

// SendMessageResponse carries ConversationUpdated only when the exchange changed the title.
type SendMessageResponse struct {
	UserMessage         *Message      `json:"user_message"`
	AIResponse          *Message      `json:"ai_response"`
	ConversationUpdated *Conversation `json:"conversation_updated,omitempty"`
}

// ConversationEvent is pushed to the owner's open sockets.
type ConversationEvent struct {
	Type         string        `json:"type"`
	Conversation *Conversation `json:"conversation,omitempty"`
	ID           uuid.UUID     `json:"conversation_id"`
}

const (
	EventConversationUpdated = "conversation_updated"
	EventConversationDeleted = "conversation_deleted"
)
