package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/campusmarket/internal/domain"
)

type conversationRepository struct {
	q querier
}

const conversationColumns = `id, participant1_id, participant2_id, item_id, last_message_at, created_at`

func (r *conversationRepository) Create(conv domain.Conversation) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO conversations (
			id, participant1_id, participant2_id, item_id, last_message_at, created_at
		) VALUES ($1,$2,$3,$4,$5,$6)
	`,
		conv.ID, conv.Participant1ID, conv.Participant2ID, conv.ItemID,
		conv.LastMessageAt, conv.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

func (r *conversationRepository) Get(id string) (domain.Conversation, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row := r.q.QueryRowContext(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE id = $1
	`, id)

	conv, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Conversation{}, domain.ErrConversationNotFound
		}
		return domain.Conversation{}, fmt.Errorf("select conversation: %w", err)
	}
	return conv, nil
}

func (r *conversationRepository) FindByParticipants(userA, userB, itemID string) (domain.Conversation, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row := r.q.QueryRowContext(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE item_id = $3
		  AND ((participant1_id = $1 AND participant2_id = $2)
		    OR (participant1_id = $2 AND participant2_id = $1))
	`, userA, userB, itemID)

	conv, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Conversation{}, domain.ErrConversationNotFound
		}
		return domain.Conversation{}, fmt.Errorf("find conversation by participants: %w", err)
	}
	return conv, nil
}

func (r *conversationRepository) TouchLastMessage(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE conversations
		SET last_message_at = $2
		WHERE id = $1
	`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for conversation touch: %w", err)
	}
	if affected == 0 {
		return domain.ErrConversationNotFound
	}
	return nil
}

func scanConversation(row rowScanner) (domain.Conversation, error) {
	var (
		conv domain.Conversation
		last sql.NullTime
	)
	if err := row.Scan(
		&conv.ID, &conv.Participant1ID, &conv.Participant2ID, &conv.ItemID,
		&last, &conv.CreatedAt,
	); err != nil {
		return domain.Conversation{}, err
	}
	if last.Valid {
		t := last.Time.UTC()
		conv.LastMessageAt = &t
	}
	return conv, nil
}

var _ domain.ConversationRepository = (*conversationRepository)(nil)
