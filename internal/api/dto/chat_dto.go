package dto

import (
	"time"

	"github.com/spec-kit/factory-support/internal/domain"
)

// PostMessageRequest payload for POST /api/chats/:issueId/messages.
type PostMessageRequest struct {
	Content string `json:"content"`
}

// ChatMessage is the wire form of a chat message, shared by the history
// endpoint and the realtime new_message event.
type ChatMessage struct {
	ID                int64       `json:"id"`
	ChannelID         int64       `json:"channelId"`
	AuthorID          int64       `json:"authorId"`
	Content           string      `json:"content"`
	CreatedAt         time.Time   `json:"createdAt"`
	AuthorDisplayName string      `json:"authorDisplayName"`
	AuthorRole        domain.Role `json:"authorRole,omitempty"`
}

// NewChatMessage converts a domain message.
func NewChatMessage(msg *domain.Message) ChatMessage {
	out := ChatMessage{
		ID:        msg.ID,
		ChannelID: msg.ChannelID,
		AuthorID:  msg.AuthorID,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}
	if msg.Author != nil {
		out.AuthorDisplayName = msg.Author.FullName
		out.AuthorRole = msg.Author.Role
	}
	return out
}

// NewChatMessages converts a history slice, never returning nil.
func NewChatMessages(msgs []domain.Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(msgs))
	for i := range msgs {
		out = append(out, NewChatMessage(&msgs[i]))
	}
	return out
}
