package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"classline/internal/domain/chat"
	"classline/internal/repository"
	classline_errors "classline/pkg/errors"
)

// MessageService validates and persists messages, keeps the owning
// conversation's last-message projection current, and handles read
// receipts. Both the REST layer and the realtime gateway go through it.
type MessageService struct {
	users         *UserService
	conversations *ConversationService
	messageRepo   repository.MessageRepository
	convRepo      repository.ConversationRepository
}

func NewMessageService(
	users *UserService,
	conversations *ConversationService,
	messageRepo repository.MessageRepository,
	convRepo repository.ConversationRepository,
) *MessageService {
	return &MessageService{
		users:         users,
		conversations: conversations,
		messageRepo:   messageRepo,
		convRepo:      convRepo,
	}
}

// Send persists a message from sender to receiverID and updates the
// conversation projection. The sender's display name and role come from
// the verified token; the receiver's are snapshotted from the store.
func (s *MessageService) Send(ctx context.Context, sender Principal, receiverID uuid.UUID, content string) (chat.Message, error) {
	if strings.TrimSpace(content) == "" {
		return chat.Message{}, fmt.Errorf("message content must not be empty: %w", classline_errors.ErrInvalidInput)
	}
	if receiverID == uuid.Nil {
		return chat.Message{}, fmt.Errorf("receiver id is required: %w", classline_errors.ErrInvalidInput)
	}
	if receiverID == sender.ID {
		return chat.Message{}, fmt.Errorf("cannot send a message to yourself: %w", classline_errors.ErrInvalidInput)
	}

	receiver, err := s.users.GetByID(ctx, receiverID)
	if err != nil {
		return chat.Message{}, fmt.Errorf("receiver: %w", err)
	}

	conv, err := s.conversations.Resolve(ctx, sender.AsUser(), receiver)
	if err != nil {
		return chat.Message{}, err
	}

	msg := chat.Message{
		ID:           uuid.New(),
		SenderID:     sender.ID,
		SenderName:   sender.DisplayName,
		SenderRole:   sender.Role,
		ReceiverID:   receiver.ID,
		ReceiverName: receiver.DisplayName,
		ReceiverRole: receiver.Role,
		Content:      content,
		CreatedAt:    time.Now().UTC(),
		IsRead:       false,
	}

	if err := s.messageRepo.Create(ctx, &msg); err != nil {
		return chat.Message{}, err
	}

	if err := s.convRepo.SetLastMessage(ctx, conv.ID, msg); err != nil {
		return chat.Message{}, err
	}

	return msg, nil
}

// GetConversation resolves the conversation with participantID (creating
// an empty one if absent, so a thread can be opened before any message
// exists) and returns the full history, oldest first.
func (s *MessageService) GetConversation(ctx context.Context, caller Principal, participantID uuid.UUID) (chat.Conversation, []chat.Message, error) {
	participant, err := s.users.GetByID(ctx, participantID)
	if err != nil {
		return chat.Conversation{}, nil, fmt.Errorf("participant: %w", err)
	}

	conv, err := s.conversations.Resolve(ctx, caller.AsUser(), participant)
	if err != nil {
		return chat.Conversation{}, nil, err
	}

	messages, err := s.messageRepo.GetBetween(ctx, caller.ID, participantID)
	if err != nil {
		return chat.Conversation{}, nil, err
	}
	if messages == nil {
		messages = []chat.Message{}
	}
	return conv, messages, nil
}

// GetUserConversations lists every conversation the user participates
// in, most recently active first.
func (s *MessageService) GetUserConversations(ctx context.Context, userID uuid.UUID) ([]chat.Conversation, error) {
	return s.conversations.GetUserConversations(ctx, userID)
}

// MarkRead flips the read flag. Only the receiver may mark a message
// read; repeat calls are no-op successes. The updated message is
// returned so the gateway can notify the original sender.
func (s *MessageService) MarkRead(ctx context.Context, messageID, readerID uuid.UUID) (chat.Message, error) {
	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return chat.Message{}, err
	}

	if msg.ReceiverID != readerID {
		return chat.Message{}, fmt.Errorf("only the receiver may mark a message read: %w", classline_errors.ErrUnauthorized)
	}

	if msg.IsRead {
		return msg, nil
	}

	if err := s.messageRepo.MarkRead(ctx, messageID); err != nil {
		return chat.Message{}, err
	}
	msg.IsRead = true
	return msg, nil
}
