package events

import (
	"time"

	"github.com/spec-kit/factory-support/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventChatMessageAdded EventType = "chat_message_added"
)

// Actor identifies who caused an event.
type Actor struct {
	UserID int64       `json:"user_id"`
	Role   domain.Role `json:"role"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	IssueID   int64     `json:"issue_id"`
	Actor     Actor     `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// ChatMessageAddedPayload payload.
type ChatMessageAddedPayload struct {
	ChannelID   int64  `json:"channel_id"`
	MessageID   int64  `json:"message_id"`
	AuthorName  string `json:"author_name"`
	BodyPreview string `json:"body_preview"`
}

const previewLimit = 140

// Preview shortens message content for notifications.
func Preview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLimit {
		return content
	}
	return string(runes[:previewLimit-1]) + "…"
}
