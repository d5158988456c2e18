package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/campusmarket/internal/domain"
)

type buyRequestRepository struct {
	q querier
}

const buyRequestColumns = `id, item_id, buyer_id, seller_id, conversation_id, status, version, created_at, responded_at`

func (r *buyRequestRepository) Create(req domain.BuyRequest) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO buy_requests (
			id, item_id, buyer_id, seller_id, conversation_id, status, version, created_at, responded_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		req.ID, req.ItemID, req.BuyerID, req.SellerID, req.ConversationID,
		string(req.Status), req.Version, req.CreatedAt, req.RespondedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "buy_requests_active_pair_idx") {
			return domain.ErrDuplicateRequest
		}
		return fmt.Errorf("insert buy request: %w", err)
	}
	return nil
}

func (r *buyRequestRepository) Get(id string) (domain.BuyRequest, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row := r.q.QueryRowContext(ctx, `
		SELECT `+buyRequestColumns+`
		FROM buy_requests
		WHERE id = $1
	`, id)

	req, err := scanBuyRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.BuyRequest{}, domain.ErrBuyRequestNotFound
		}
		return domain.BuyRequest{}, fmt.Errorf("select buy request: %w", err)
	}
	return req, nil
}

func (r *buyRequestRepository) ListByItem(itemID string, status domain.BuyRequestStatus) ([]domain.BuyRequest, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := `
		SELECT ` + buyRequestColumns + `
		FROM buy_requests
		WHERE item_id = $1`
	args := []any{itemID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list buy requests by item: %w", err)
	}
	return collectBuyRequests(rows)
}

func (r *buyRequestRepository) ListByItemAndBuyer(itemID, buyerID string) ([]domain.BuyRequest, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `
		SELECT `+buyRequestColumns+`
		FROM buy_requests
		WHERE item_id = $1 AND buyer_id = $2
		ORDER BY created_at ASC, id ASC
	`, itemID, buyerID)
	if err != nil {
		return nil, fmt.Errorf("list buy requests by item and buyer: %w", err)
	}
	return collectBuyRequests(rows)
}

func (r *buyRequestRepository) ListByUser(userID, role string) ([]domain.BuyRequest, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	column := "buyer_id"
	if role == "seller" {
		column = "seller_id"
	}

	rows, err := r.q.QueryContext(ctx, `
		SELECT `+buyRequestColumns+`
		FROM buy_requests
		WHERE `+column+` = $1
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list buy requests by user: %w", err)
	}
	return collectBuyRequests(rows)
}

func (r *buyRequestRepository) ListPendingOlderThan(cutoff time.Time, limit int) ([]domain.BuyRequest, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	rows, err := r.q.QueryContext(ctx, `
		SELECT `+buyRequestColumns+`
		FROM buy_requests
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale pending buy requests: %w", err)
	}
	return collectBuyRequests(rows)
}

func (r *buyRequestRepository) Save(req domain.BuyRequest) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE buy_requests
		SET status = $2, responded_at = $3, version = version + 1
		WHERE id = $1 AND version = $4
	`, req.ID, string(req.Status), req.RespondedAt, req.Version)
	if err != nil {
		return fmt.Errorf("update buy request: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for buy request update: %w", err)
	}
	if affected == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}

func scanBuyRequest(row rowScanner) (domain.BuyRequest, error) {
	var (
		req       domain.BuyRequest
		status    string
		responded sql.NullTime
	)
	if err := row.Scan(
		&req.ID, &req.ItemID, &req.BuyerID, &req.SellerID, &req.ConversationID,
		&status, &req.Version, &req.CreatedAt, &responded,
	); err != nil {
		return domain.BuyRequest{}, err
	}
	req.Status = domain.BuyRequestStatus(status)
	if responded.Valid {
		t := responded.Time.UTC()
		req.RespondedAt = &t
	}
	return req, nil
}

func collectBuyRequests(rows *sql.Rows) ([]domain.BuyRequest, error) {
	defer rows.Close()

	requests := make([]domain.BuyRequest, 0)
	for rows.Next() {
		req, err := scanBuyRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan buy request: %w", err)
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate buy requests: %w", err)
	}
	return requests, nil
}

var _ domain.BuyRequestRepository = (*buyRequestRepository)(nil)
