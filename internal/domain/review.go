package domain

import "time"

const (
	// RatingMin и RatingMax задают допустимый диапазон оценки.
	RatingMin = 1
	RatingMax = 5
)

// Review — отзыв одной стороны завершённой сделки о другой.
// Не более одного отзыва на пару (transaction, reviewer).
type Review struct {
	ID            string `json:"id"`
	TransactionID string `json:"transaction_id"`
	ItemID        string `json:"item_id"`
	ReviewerID    string `json:"reviewer_id"`
	RevieweeID    string `json:"reviewee_id"`
	Rating        int    `json:"rating"`
	Comment       string `json:"comment"`
	// Response — ответ reviewee на отзыв; пустая строка означает отсутствие.
	Response  string    `json:"response,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ValidateInvariants проверяет поля отзыва.
func (r *Review) ValidateInvariants() []error {
	var errs []error

	if r.TransactionID == "" {
		errs = append(errs, ErrTransactionIDRequired)
	}
	if r.ReviewerID == "" || r.RevieweeID == "" {
		errs = append(errs, ErrReviewPartiesRequired)
	}
	if r.ReviewerID != "" && r.ReviewerID == r.RevieweeID {
		errs = append(errs, ErrReviewPartiesRequired)
	}
	if r.Rating < RatingMin || r.Rating > RatingMax {
		errs = append(errs, ErrRatingOutOfRange)
	}

	return errs
}
