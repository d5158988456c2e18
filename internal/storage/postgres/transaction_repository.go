package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/campusmarket/internal/domain"
)

type transactionRepository struct {
	q querier
}

const transactionColumns = `
	id, item_id, buyer_id, seller_id, conversation_id, buy_request_id, status,
	buyer_confirmed, seller_confirmed, buyer_cancel_confirmed, seller_cancel_confirmed,
	meetup_time, meetup_place, meetup_lat, meetup_lng,
	version, created_at, completed_at`

func (r *transactionRepository) Create(tx domain.Transaction) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO transactions (
			id, item_id, buyer_id, seller_id, conversation_id, buy_request_id, status,
			buyer_confirmed, seller_confirmed, buyer_cancel_confirmed, seller_cancel_confirmed,
			meetup_time, meetup_place, meetup_lat, meetup_lng,
			version, created_at, completed_at
		) VALUES ($1,$2,$3,$4,$5,NULLIF($6,''),$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
	`,
		tx.ID, tx.ItemID, tx.BuyerID, tx.SellerID, tx.ConversationID, tx.BuyRequestID,
		string(tx.Status), tx.BuyerConfirmed, tx.SellerConfirmed,
		tx.BuyerCancelConfirmed, tx.SellerCancelConfirmed,
		tx.MeetupTime, tx.MeetupPlace, tx.MeetupLat, tx.MeetupLng,
		tx.Version, tx.CreatedAt, tx.CompletedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "transactions_in_progress_item_idx") {
			return domain.ErrTransactionInProgress
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (r *transactionRepository) Get(id string) (domain.Transaction, error) {
	return r.getOne(`WHERE id = $1`, id)
}

func (r *transactionRepository) FindInProgressByItem(itemID string) (domain.Transaction, error) {
	return r.getOne(`WHERE item_id = $1 AND status = 'in_progress'`, itemID)
}

func (r *transactionRepository) FindInProgressByConversationItem(conversationID, itemID string) (domain.Transaction, error) {
	return r.getOne(`WHERE conversation_id = $1 AND item_id = $2 AND status = 'in_progress'`, conversationID, itemID)
}

func (r *transactionRepository) getOne(where string, args ...any) (domain.Transaction, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row := r.q.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		`+where, args...)

	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Transaction{}, domain.ErrTransactionNotFound
		}
		return domain.Transaction{}, fmt.Errorf("select transaction: %w", err)
	}
	return tx, nil
}

func (r *transactionRepository) ListInProgressByItem(itemID string) ([]domain.Transaction, error) {
	return r.list(`WHERE item_id = $1 AND status = 'in_progress' ORDER BY created_at ASC, id ASC`, itemID)
}

func (r *transactionRepository) ListByConversation(conversationID string) ([]domain.Transaction, error) {
	return r.list(`WHERE conversation_id = $1 ORDER BY created_at DESC, id DESC`, conversationID)
}

func (r *transactionRepository) list(tail string, args ...any) ([]domain.Transaction, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		`+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	txs := make([]domain.Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txs, nil
}

func (r *transactionRepository) Save(tx domain.Transaction) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE transactions
		SET status = $2,
		    buyer_confirmed = $3, seller_confirmed = $4,
		    buyer_cancel_confirmed = $5, seller_cancel_confirmed = $6,
		    meetup_time = $7, meetup_place = $8, meetup_lat = $9, meetup_lng = $10,
		    completed_at = $11,
		    version = version + 1
		WHERE id = $1 AND version = $12
	`,
		tx.ID, string(tx.Status),
		tx.BuyerConfirmed, tx.SellerConfirmed,
		tx.BuyerCancelConfirmed, tx.SellerCancelConfirmed,
		tx.MeetupTime, tx.MeetupPlace, tx.MeetupLat, tx.MeetupLng,
		tx.CompletedAt, tx.Version,
	)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for transaction update: %w", err)
	}
	if affected == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}

func scanTransaction(row rowScanner) (domain.Transaction, error) {
	var (
		tx           domain.Transaction
		status       string
		buyRequestID sql.NullString
		meetupTime   sql.NullTime
		meetupLat    sql.NullFloat64
		meetupLng    sql.NullFloat64
		completedAt  sql.NullTime
	)
	if err := row.Scan(
		&tx.ID, &tx.ItemID, &tx.BuyerID, &tx.SellerID, &tx.ConversationID,
		&buyRequestID, &status,
		&tx.BuyerConfirmed, &tx.SellerConfirmed,
		&tx.BuyerCancelConfirmed, &tx.SellerCancelConfirmed,
		&meetupTime, &tx.MeetupPlace, &meetupLat, &meetupLng,
		&tx.Version, &tx.CreatedAt, &completedAt,
	); err != nil {
		return domain.Transaction{}, err
	}

	tx.Status = domain.TransactionStatus(status)
	tx.BuyRequestID = buyRequestID.String
	if meetupTime.Valid {
		t := meetupTime.Time.UTC()
		tx.MeetupTime = &t
	}
	if meetupLat.Valid {
		v := meetupLat.Float64
		tx.MeetupLat = &v
	}
	if meetupLng.Valid {
		v := meetupLng.Float64
		tx.MeetupLng = &v
	}
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		tx.CompletedAt = &t
	}
	return tx, nil
}

var _ domain.TransactionRepository = (*transactionRepository)(nil)
