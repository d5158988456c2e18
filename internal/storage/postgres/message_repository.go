package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vladislavdragonenkov/campusmarket/internal/domain"
)

type messageRepository struct {
	q querier
}

func (r *messageRepository) Append(msg domain.Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO messages (
			id, conversation_id, sender_id, content, type, buy_request_id, is_read, created_at
		) VALUES ($1,$2,$3,$4,$5,NULLIF($6,''),$7,$8)
	`,
		msg.ID, msg.ConversationID, msg.SenderID, msg.Content,
		string(msg.Type), msg.BuyRequestID, msg.IsRead, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *messageRepository) ListByConversation(conversationID string, limit int) ([]domain.Message, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := `
		SELECT id, conversation_id, sender_id, content, type,
		       COALESCE(buy_request_id, ''), is_read, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC`

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.q.QueryContext(ctx, query+` LIMIT $2`, conversationID, limit)
	} else {
		rows, err = r.q.QueryContext(ctx, query, conversationID)
	}
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]domain.Message, 0)
	for rows.Next() {
		var (
			msg     domain.Message
			msgType string
		)
		if err := rows.Scan(
			&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content,
			&msgType, &msg.BuyRequestID, &msg.IsRead, &msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Type = domain.MessageType(msgType)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

var _ domain.MessageRepository = (*messageRepository)(nil)
