package repository

import (
	"context"

	"github.com/google/uuid"

	"classline/internal/domain/chat"
	"classline/internal/domain/user"
)

type UserRepository interface {
	Create(ctx context.Context, u *user.User) error
	GetByID(ctx context.Context, id uuid.UUID) (user.User, error)
	GetByEmail(ctx context.Context, email string) (user.User, error)
	List(ctx context.Context) ([]user.User, error)
}

type ConversationRepository interface {
	// Create inserts a new conversation. Returns ErrAlreadyExists when a
	// conversation for the same (instructor, student) pair already exists.
	Create(ctx context.Context, c *chat.Conversation) error
	GetByPair(ctx context.Context, instructorID, studentID uuid.UUID) (chat.Conversation, error)
	// GetUserConversations returns every conversation where the user
	// occupies either slot, most recent message first, empty
	// conversations last.
	GetUserConversations(ctx context.Context, userID uuid.UUID) ([]chat.Conversation, error)
	SetLastMessage(ctx context.Context, conversationID uuid.UUID, m chat.Message) error
}

type MessageRepository interface {
	Create(ctx context.Context, m *chat.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (chat.Message, error)
	// GetBetween returns all messages exchanged between the two users,
	// ordered by server timestamp ascending.
	GetBetween(ctx context.Context, userA, userB uuid.UUID) ([]chat.Message, error)
	MarkRead(ctx context.Context, id uuid.UUID) error
}
