package domain

import "time"

// BuyRequestStatus описывает жизненный цикл заявки на покупку.
type BuyRequestStatus string

const (
	// BuyRequestStatusPending — заявка создана и ждёт решения продавца.
	BuyRequestStatusPending BuyRequestStatus = "pending"
	// BuyRequestStatusAccepted — продавец принял заявку, создана сделка.
	BuyRequestStatusAccepted BuyRequestStatus = "accepted"
	// BuyRequestStatusRejected — продавец отклонил заявку.
	BuyRequestStatusRejected BuyRequestStatus = "rejected"
	// BuyRequestStatusCancelled — покупатель отозвал заявку, либо её
	// отменила каскадная отмена связанной сделки.
	BuyRequestStatusCancelled BuyRequestStatus = "cancelled"
	// BuyRequestStatusExpired — заявка протухла без ответа продавца
	// и была закрыта фоновым sweeper'ом.
	BuyRequestStatusExpired BuyRequestStatus = "expired"
)

// Terminal сообщает, достигла ли заявка конечного статуса.
// Единственное исключение из терминальности: accepted-заявка может быть
// принудительно переведена в cancelled при отмене связанной сделки.
func (s BuyRequestStatus) Terminal() bool {
	switch s {
	case BuyRequestStatusRejected, BuyRequestStatusCancelled, BuyRequestStatusExpired:
		return true
	default:
		return false
	}
}

// Active сообщает, блокирует ли статус создание новой заявки той же пары
// (item, buyer). Инвариант: не более одной pending/accepted заявки на пару.
func (s BuyRequestStatus) Active() bool {
	return s == BuyRequestStatusPending || s == BuyRequestStatusAccepted
}

// BuyRequest — структурированная заявка покупателя на товар.
type BuyRequest struct {
	ID             string           `json:"id"`
	ItemID         string           `json:"item_id"`
	BuyerID        string           `json:"buyer_id"`
	SellerID       string           `json:"seller_id"`
	ConversationID string           `json:"conversation_id"`
	Status         BuyRequestStatus `json:"status"`
	Version        int64            `json:"-"`
	CreatedAt      time.Time        `json:"created_at"`
	RespondedAt    *time.Time       `json:"responded_at,omitempty"`
}

// ValidateInvariants проверяет ссылочные поля заявки.
func (b *BuyRequest) ValidateInvariants() []error {
	var errs []error

	if b.ItemID == "" {
		errs = append(errs, ErrItemIDRequired)
	}
	if b.BuyerID == "" {
		errs = append(errs, ErrBuyerRequired)
	}
	if b.SellerID == "" {
		errs = append(errs, ErrSellerRequired)
	}
	if b.BuyerID != "" && b.BuyerID == b.SellerID {
		errs = append(errs, ErrOwnItemRequest)
	}

	return errs
}
