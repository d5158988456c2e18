package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/campusmarket/internal/domain"
)

type reviewRepository struct {
	q querier
}

const reviewColumns = `id, transaction_id, item_id, reviewer_id, reviewee_id, rating, comment, response, created_at, updated_at`

func (r *reviewRepository) Create(review domain.Review) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO reviews (
			id, transaction_id, item_id, reviewer_id, reviewee_id,
			rating, comment, response, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		review.ID, review.TransactionID, review.ItemID, review.ReviewerID,
		review.RevieweeID, review.Rating, review.Comment, review.Response,
		review.CreatedAt, review.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "reviews_transaction_reviewer_idx") {
			return domain.ErrDuplicateReview
		}
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

func (r *reviewRepository) Get(id string) (domain.Review, error) {
	return r.getOne(`WHERE id = $1`, id)
}

func (r *reviewRepository) FindByTransactionReviewer(transactionID, reviewerID string) (domain.Review, error) {
	return r.getOne(`WHERE transaction_id = $1 AND reviewer_id = $2`, transactionID, reviewerID)
}

func (r *reviewRepository) getOne(where string, args ...any) (domain.Review, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row := r.q.QueryRowContext(ctx, `
		SELECT `+reviewColumns+`
		FROM reviews
		`+where, args...)

	review, err := scanReview(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Review{}, domain.ErrReviewNotFound
		}
		return domain.Review{}, fmt.Errorf("select review: %w", err)
	}
	return review, nil
}

func (r *reviewRepository) ListByReviewee(revieweeID string) ([]domain.Review, error) {
	return r.list(`WHERE reviewee_id = $1`, revieweeID)
}

func (r *reviewRepository) ListByItem(itemID string) ([]domain.Review, error) {
	return r.list(`WHERE item_id = $1`, itemID)
}

func (r *reviewRepository) list(where string, args ...any) ([]domain.Review, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `
		SELECT `+reviewColumns+`
		FROM reviews
		`+where+`
		ORDER BY created_at DESC, id DESC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	reviews := make([]domain.Review, 0)
	for rows.Next() {
		review, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		reviews = append(reviews, review)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reviews: %w", err)
	}
	return reviews, nil
}

func (r *reviewRepository) Save(review domain.Review) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE reviews
		SET rating = $2, comment = $3, response = $4, updated_at = $5
		WHERE id = $1
	`, review.ID, review.Rating, review.Comment, review.Response, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update review: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for review update: %w", err)
	}
	if affected == 0 {
		return domain.ErrReviewNotFound
	}
	return nil
}

func (r *reviewRepository) Delete(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `DELETE FROM reviews WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete review: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for review delete: %w", err)
	}
	if affected == 0 {
		return domain.ErrReviewNotFound
	}
	return nil
}

func scanReview(row rowScanner) (domain.Review, error) {
	var review domain.Review
	if err := row.Scan(
		&review.ID, &review.TransactionID, &review.ItemID, &review.ReviewerID,
		&review.RevieweeID, &review.Rating, &review.Comment, &review.Response,
		&review.CreatedAt, &review.UpdatedAt,
	); err != nil {
		return domain.Review{}, err
	}
	return review, nil
}

var _ domain.ReviewRepository = (*reviewRepository)(nil)
