package httpdto

import (
	"github.com/google/uuid"

	"classline/internal/domain/chat"
)

type SendMessageRequest struct {
	ReceiverID uuid.UUID `json:"receiverId" binding:"required"`
	Content    string    `json:"content" binding:"required"`
}

type MarkReadRequest struct {
	MessageID uuid.UUID `json:"messageId" binding:"required"`
}

// ConversationResponse bundles the conversation with its full history,
// oldest message first.
type ConversationResponse struct {
	Conversation chat.Conversation `json:"conversation"`
	Messages     []chat.Message    `json:"messages"`
}
