package chat

import (
	"time"

	"github.com/google/uuid"

	"classline/internal/domain/user"
)

// Message represents the messages table. Sender and receiver display
// names and roles are snapshotted at creation time so history renders
// without a join; renaming a user never rewrites old messages.
type Message struct {
	ID           uuid.UUID `json:"id"`
	SenderID     uuid.UUID `json:"senderId"`
	SenderName   string    `json:"senderName"`
	SenderRole   user.Role `json:"senderRole"`
	ReceiverID   uuid.UUID `json:"receiverId"`
	ReceiverName string    `json:"receiverName"`
	ReceiverRole user.Role `json:"receiverRole"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"timestamp"`
	IsRead       bool      `json:"isRead"`
}

// ParticipantPair is the role-tagged slot pair that keys a conversation.
// At most one conversation exists per (instructor, student) pair.
type ParticipantPair struct {
	InstructorID   uuid.UUID `json:"instructorId"`
	InstructorName string    `json:"instructorName"`
	StudentID      uuid.UUID `json:"studentId"`
	StudentName    string    `json:"studentName"`
}

// Conversation represents the conversations table.
type Conversation struct {
	ID            uuid.UUID       `json:"id"`
	Participants  ParticipantPair `json:"participants"`
	LastMessage   *Message        `json:"lastMessage,omitempty"`
	LastMessageAt *time.Time      `json:"lastMessageAt,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Involves reports whether the user occupies either slot of the pair.
func (c Conversation) Involves(userID uuid.UUID) bool {
	return c.Participants.InstructorID == userID || c.Participants.StudentID == userID
}
