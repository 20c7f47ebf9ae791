package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"classline/internal/domain/chat"
	classline_errors "classline/pkg/errors"
)

type PostgresConversationRepository struct {
	db DBTX
}

func NewConversationRepository(db DBTX) ConversationRepository {
	return &PostgresConversationRepository{db: db}
}

// conversations carry a UNIQUE (instructor_id, student_id) index; Create
// surfaces a violation as ErrAlreadyExists so the resolver can re-fetch
// the row the concurrent winner inserted.
func (r *PostgresConversationRepository) Create(ctx context.Context, c *chat.Conversation) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO conversations (id, instructor_id, instructor_name, student_id, student_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.Participants.InstructorID, c.Participants.InstructorName,
		c.Participants.StudentID, c.Participants.StudentName, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return classline_errors.ErrAlreadyExists
		}
		return err
	}
	return nil
}

const conversationSelect = `
	SELECT c.id, c.instructor_id, c.instructor_name, c.student_id, c.student_name,
	       c.last_message_at, c.created_at, c.updated_at,
	       m.id, m.sender_id, m.sender_name, m.sender_role, m.receiver_id, m.receiver_name,
	       m.receiver_role, m.content, m.created_at, m.is_read
	FROM conversations c
	LEFT JOIN messages m ON m.id = c.last_message_id`

func (r *PostgresConversationRepository) GetByPair(ctx context.Context, instructorID, studentID uuid.UUID) (chat.Conversation, error) {
	row := r.db.QueryRow(ctx, conversationSelect+` WHERE c.instructor_id = $1 AND c.student_id = $2`,
		instructorID, studentID)
	return scanConversation(row)
}

func (r *PostgresConversationRepository) GetUserConversations(ctx context.Context, userID uuid.UUID) ([]chat.Conversation, error) {
	rows, err := r.db.Query(ctx, conversationSelect+`
		WHERE c.instructor_id = $1 OR c.student_id = $1
		ORDER BY c.last_message_at DESC NULLS LAST, c.created_at DESC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []chat.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, c)
	}
	return conversations, rows.Err()
}

func (r *PostgresConversationRepository) SetLastMessage(ctx context.Context, conversationID uuid.UUID, m chat.Message) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE conversations
		SET last_message_id = $2, last_message_at = $3, updated_at = $4
		WHERE id = $1`,
		conversationID, m.ID, m.CreatedAt, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return classline_errors.ErrNotFound
	}
	return nil
}

func scanConversation(row pgx.Row) (chat.Conversation, error) {
	var c chat.Conversation
	var lastMessageAt *time.Time
	var msgID, msgSenderID, msgReceiverID *uuid.UUID
	var msgSenderName, msgSenderRole, msgReceiverName, msgReceiverRole, msgContent *string
	var msgCreatedAt *time.Time
	var msgIsRead *bool

	err := row.Scan(
		&c.ID, &c.Participants.InstructorID, &c.Participants.InstructorName,
		&c.Participants.StudentID, &c.Participants.StudentName,
		&lastMessageAt, &c.CreatedAt, &c.UpdatedAt,
		&msgID, &msgSenderID, &msgSenderName, &msgSenderRole, &msgReceiverID, &msgReceiverName,
		&msgReceiverRole, &msgContent, &msgCreatedAt, &msgIsRead)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return chat.Conversation{}, classline_errors.ErrNotFound
		}
		return chat.Conversation{}, err
	}

	c.LastMessageAt = lastMessageAt
	if msgID != nil {
		c.LastMessage = &chat.Message{
			ID:           *msgID,
			SenderID:     *msgSenderID,
			SenderName:   *msgSenderName,
			SenderRole:   userRole(*msgSenderRole),
			ReceiverID:   *msgReceiverID,
			ReceiverName: *msgReceiverName,
			ReceiverRole: userRole(*msgReceiverRole),
			Content:      *msgContent,
			CreatedAt:    *msgCreatedAt,
			IsRead:       *msgIsRead,
		}
	}
	return c, nil
}
