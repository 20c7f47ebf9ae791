package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"classline/internal/domain/chat"
	"classline/internal/domain/user"
	classline_errors "classline/pkg/errors"
)

// In-memory implementations of the repository interfaces. They back the
// DB_DRIVER=memory development mode and the service/handler tests, and
// enforce the same pair-uniqueness rule the SQL schema does.

type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[uuid.UUID]user.User
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[uuid.UUID]user.User)}
}

func (r *MemoryUserRepository) Create(ctx context.Context, u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[u.ID]; ok {
		return classline_errors.ErrAlreadyExists
	}
	for _, existing := range r.users {
		if u.Email != "" && strings.EqualFold(existing.Email, u.Email) {
			return classline_errors.ErrAlreadyExists
		}
	}
	r.users[u.ID] = *u
	return nil
}

func (r *MemoryUserRepository) GetByID(ctx context.Context, id uuid.UUID) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return user.User{}, classline_errors.ErrNotFound
	}
	return u, nil
}

func (r *MemoryUserRepository) GetByEmail(ctx context.Context, email string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return user.User{}, classline_errors.ErrNotFound
}

func (r *MemoryUserRepository) List(ctx context.Context) ([]user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]user.User, 0, len(r.users))
	for _, u := range r.users {
		if u.IsActive {
			users = append(users, u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].DisplayName < users[j].DisplayName })
	return users, nil
}

type pairKey struct {
	instructorID uuid.UUID
	studentID    uuid.UUID
}

type MemoryConversationRepository struct {
	mu            sync.RWMutex
	conversations map[uuid.UUID]chat.Conversation
	byPair        map[pairKey]uuid.UUID
}

func NewMemoryConversationRepository() *MemoryConversationRepository {
	return &MemoryConversationRepository{
		conversations: make(map[uuid.UUID]chat.Conversation),
		byPair:        make(map[pairKey]uuid.UUID),
	}
}

func (r *MemoryConversationRepository) Create(ctx context.Context, c *chat.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := pairKey{instructorID: c.Participants.InstructorID, studentID: c.Participants.StudentID}
	if _, ok := r.byPair[key]; ok {
		return classline_errors.ErrAlreadyExists
	}
	r.conversations[c.ID] = *c
	r.byPair[key] = c.ID
	return nil
}

func (r *MemoryConversationRepository) GetByPair(ctx context.Context, instructorID, studentID uuid.UUID) (chat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byPair[pairKey{instructorID: instructorID, studentID: studentID}]
	if !ok {
		return chat.Conversation{}, classline_errors.ErrNotFound
	}
	return r.conversations[id], nil
}

func (r *MemoryConversationRepository) GetUserConversations(ctx context.Context, userID uuid.UUID) ([]chat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var conversations []chat.Conversation
	for _, c := range r.conversations {
		if c.Involves(userID) {
			conversations = append(conversations, c)
		}
	}
	// Conversations with no messages sort last, as timestamp zero.
	sort.Slice(conversations, func(i, j int) bool {
		return lastMessageTime(conversations[i]).After(lastMessageTime(conversations[j]))
	})
	return conversations, nil
}

func lastMessageTime(c chat.Conversation) time.Time {
	if c.LastMessageAt == nil {
		return time.Time{}
	}
	return *c.LastMessageAt
}

func (r *MemoryConversationRepository) SetLastMessage(ctx context.Context, conversationID uuid.UUID, m chat.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conversations[conversationID]
	if !ok {
		return classline_errors.ErrNotFound
	}
	msg := m
	at := m.CreatedAt
	c.LastMessage = &msg
	c.LastMessageAt = &at
	c.UpdatedAt = time.Now().UTC()
	r.conversations[conversationID] = c
	return nil
}

type MemoryMessageRepository struct {
	mu       sync.RWMutex
	messages map[uuid.UUID]chat.Message
	order    []uuid.UUID
}

func NewMemoryMessageRepository() *MemoryMessageRepository {
	return &MemoryMessageRepository{messages: make(map[uuid.UUID]chat.Message)}
}

func (r *MemoryMessageRepository) Create(ctx context.Context, m *chat.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.messages[m.ID]; ok {
		return classline_errors.ErrAlreadyExists
	}
	r.messages[m.ID] = *m
	r.order = append(r.order, m.ID)
	return nil
}

func (r *MemoryMessageRepository) GetByID(ctx context.Context, id uuid.UUID) (chat.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.messages[id]
	if !ok {
		return chat.Message{}, classline_errors.ErrNotFound
	}
	return m, nil
}

func (r *MemoryMessageRepository) GetBetween(ctx context.Context, userA, userB uuid.UUID) ([]chat.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var messages []chat.Message
	for _, id := range r.order {
		m := r.messages[id]
		if (m.SenderID == userA && m.ReceiverID == userB) || (m.SenderID == userB && m.ReceiverID == userA) {
			messages = append(messages, m)
		}
	}
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	return messages, nil
}

func (r *MemoryMessageRepository) MarkRead(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return classline_errors.ErrNotFound
	}
	m.IsRead = true
	r.messages[id] = m
	return nil
}
