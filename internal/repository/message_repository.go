package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"classline/internal/domain/chat"
	classline_errors "classline/pkg/errors"
)

type PostgresMessageRepository struct {
	db DBTX
}

func NewMessageRepository(db DBTX) MessageRepository {
	return &PostgresMessageRepository{db: db}
}

const messageColumns = `id, sender_id, sender_name, sender_role, receiver_id, receiver_name, receiver_role, content, created_at, is_read`

func (r *PostgresMessageRepository) Create(ctx context.Context, m *chat.Message) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		m.ID, m.SenderID, m.SenderName, m.SenderRole, m.ReceiverID, m.ReceiverName, m.ReceiverRole, m.Content, m.CreatedAt, m.IsRead)
	if err != nil {
		if isUniqueViolation(err) {
			return classline_errors.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (r *PostgresMessageRepository) GetByID(ctx context.Context, id uuid.UUID) (chat.Message, error) {
	row := r.db.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
	return scanMessage(row)
}

// GetBetween is the full-history fetch behind GET /chat/conversation.
// Sort is by server timestamp, not insertion order.
func (r *PostgresMessageRepository) GetBetween(ctx context.Context, userA, userB uuid.UUID) ([]chat.Message, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE (sender_id = $1 AND receiver_id = $2)
		   OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY created_at ASC`,
		userA, userB)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []chat.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (r *PostgresMessageRepository) MarkRead(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `UPDATE messages SET is_read = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return classline_errors.ErrNotFound
	}
	return nil
}

func scanMessage(row pgx.Row) (chat.Message, error) {
	var m chat.Message
	err := row.Scan(&m.ID, &m.SenderID, &m.SenderName, &m.SenderRole, &m.ReceiverID, &m.ReceiverName, &m.ReceiverRole, &m.Content, &m.CreatedAt, &m.IsRead)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return chat.Message{}, classline_errors.ErrNotFound
		}
		return chat.Message{}, err
	}
	return m, nil
}
