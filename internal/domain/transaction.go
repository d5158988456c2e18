package domain

import "time"

// TransactionStatus описывает жизненный цикл сделки.
// Статус покидает in_progress ровно один раз и назад не возвращается.
type TransactionStatus string

const (
	// TransactionStatusInProgress — сделка открыта, стороны договариваются о встрече.
	TransactionStatusInProgress TransactionStatus = "in_progress"
	// TransactionStatusCompleted — обе стороны подтвердили завершение.
	TransactionStatusCompleted TransactionStatus = "completed"
	// TransactionStatusCancelled — сделка отменена (взаимно или односторонне).
	TransactionStatusCancelled TransactionStatus = "cancelled"
)

// Terminal сообщает, достигла ли сделка конечного статуса.
func (s TransactionStatus) Terminal() bool {
	return s == TransactionStatusCompleted || s == TransactionStatusCancelled
}

// Transaction — очная сделка по товару: место/время встречи и протокол
// взаимных подтверждений завершения либо отмены.
//
// Инварианты:
//   - не более одной in_progress сделки на item в любой момент;
//   - BuyerConfirmed && SellerConfirmed ⇒ completed;
//   - BuyerCancelConfirmed && SellerCancelConfirmed ⇒ cancelled;
//   - исходы взаимоисключающие: выигрывает пара флагов, первой достигшая
//     true-true, после выхода из in_progress остальные флаги не имеют значения.
type Transaction struct {
	ID             string `json:"id"`
	ItemID         string `json:"item_id"`
	BuyerID        string `json:"buyer_id"`
	SellerID       string `json:"seller_id"`
	ConversationID string `json:"conversation_id"`
	// BuyRequestID пуст для сделок, открытых напрямую через назначение
	// встречи без предварительной заявки.
	BuyRequestID string `json:"buy_request_id,omitempty"`

	Status TransactionStatus `json:"status"`

	BuyerConfirmed        bool `json:"buyer_confirmed"`
	SellerConfirmed       bool `json:"seller_confirmed"`
	BuyerCancelConfirmed  bool `json:"buyer_cancel_confirmed"`
	SellerCancelConfirmed bool `json:"seller_cancel_confirmed"`

	MeetupTime  *time.Time `json:"meetup_time,omitempty"`
	MeetupPlace string     `json:"meetup_place,omitempty"`
	MeetupLat   *float64   `json:"meetup_lat,omitempty"`
	MeetupLng   *float64   `json:"meetup_lng,omitempty"`

	Version     int64      `json:"-"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// HasParticipant сообщает, является ли пользователь стороной сделки.
func (t *Transaction) HasParticipant(userID string) bool {
	return t.BuyerID == userID || t.SellerID == userID
}

// OtherParticipant возвращает вторую сторону сделки.
func (t *Transaction) OtherParticipant(userID string) string {
	if t.BuyerID == userID {
		return t.SellerID
	}
	return t.BuyerID
}

// CompletionConfirmed проверяет, собраны ли оба подтверждения завершения.
func (t *Transaction) CompletionConfirmed() bool {
	return t.BuyerConfirmed && t.SellerConfirmed
}

// CancellationConfirmed проверяет, собраны ли оба подтверждения отмены.
func (t *Transaction) CancellationConfirmed() bool {
	return t.BuyerCancelConfirmed && t.SellerCancelConfirmed
}

// ValidateInvariants проверяет ссылочные поля сделки.
func (t *Transaction) ValidateInvariants() []error {
	var errs []error

	if t.ItemID == "" {
		errs = append(errs, ErrItemIDRequired)
	}
	if t.BuyerID == "" {
		errs = append(errs, ErrBuyerRequired)
	}
	if t.SellerID == "" {
		errs = append(errs, ErrSellerRequired)
	}
	if t.ConversationID == "" {
		errs = append(errs, ErrConversationIDRequired)
	}

	return errs
}

// TransactionUpdate описывает частичное обновление сделки.
// nil-поле означает «не трогать», поэтому явное очищение meetup_time
// выражается отдельным флагом ClearMeetupTime.
type TransactionUpdate struct {
	BuyerConfirmed        *bool
	SellerConfirmed       *bool
	BuyerCancelConfirmed  *bool
	SellerCancelConfirmed *bool

	MeetupTime      *time.Time
	ClearMeetupTime bool
	MeetupPlace     *string
	MeetupLat       *float64
	MeetupLng       *float64
}

// Empty сообщает, что обновление не содержит ни одного поля.
func (u TransactionUpdate) Empty() bool {
	return u.BuyerConfirmed == nil &&
		u.SellerConfirmed == nil &&
		u.BuyerCancelConfirmed == nil &&
		u.SellerCancelConfirmed == nil &&
		u.MeetupTime == nil &&
		!u.ClearMeetupTime &&
		u.MeetupPlace == nil &&
		u.MeetupLat == nil &&
		u.MeetupLng == nil
}
