package domain

import "errors"

// Ошибки сгруппированы по таксономии, на которую опирается HTTP-слой:
// validation / authorization / not found / state / conflict.
// Категорию ошибки определяют хелперы Is* ниже.

var (
	// --- validation ---

	// ErrSellerRequired — не указан продавец.
	ErrSellerRequired = errors.New("seller_id is required")
	// ErrBuyerRequired — не указан покупатель.
	ErrBuyerRequired = errors.New("buyer_id is required")
	// ErrTitleRequired — у объявления нет названия.
	ErrTitleRequired = errors.New("title is required")
	// ErrPriceInvalid — цена должна быть строго положительной.
	ErrPriceInvalid = errors.New("price must be greater than zero")
	// ErrItemStatusInvalid — неизвестный статус объявления.
	ErrItemStatusInvalid = errors.New("item status is invalid")
	// ErrItemIDRequired — не указан товар.
	ErrItemIDRequired = errors.New("item_id is required")
	// ErrConversationIDRequired — не указан диалог.
	ErrConversationIDRequired = errors.New("conversation_id is required")
	// ErrTransactionIDRequired — не указана сделка.
	ErrTransactionIDRequired = errors.New("transaction_id is required")
	// ErrReviewPartiesRequired — reviewer и reviewee должны быть двумя разными сторонами сделки.
	ErrReviewPartiesRequired = errors.New("reviewer and reviewee must be distinct transaction parties")
	// ErrRatingOutOfRange — оценка вне диапазона [1,5].
	ErrRatingOutOfRange = errors.New("rating must be between 1 and 5")
	// ErrResponseTextRequired — пустой текст ответа на отзыв.
	ErrResponseTextRequired = errors.New("response text is required")
	// ErrEmptyUpdate — обновление сделки не содержит ни одного поля.
	ErrEmptyUpdate = errors.New("update contains no fields")

	// --- authorization ---

	// ErrNotSeller — действие доступно только продавцу.
	ErrNotSeller = errors.New("only the seller may perform this action")
	// ErrNotBuyer — действие доступно только покупателю.
	ErrNotBuyer = errors.New("only the buyer may perform this action")
	// ErrNotParticipant — вызывающий не является стороной сделки или диалога.
	ErrNotParticipant = errors.New("caller is not a participant")
	// ErrNotReviewer — удалять отзыв может только его автор.
	ErrNotReviewer = errors.New("only the reviewer may delete this review")
	// ErrNotReviewee — отвечать на отзыв может только его адресат.
	ErrNotReviewee = errors.New("only the reviewee may respond to this review")
	// ErrInvalidCredential — не удалось аутентифицировать вызывающего.
	ErrInvalidCredential = errors.New("invalid or expired credential")

	// --- not found ---

	// ErrItemNotFound возвращается, если объявление не найдено.
	ErrItemNotFound = errors.New("item not found")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrConversationNotFound возвращается, если диалог не найден.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrBuyRequestNotFound возвращается, если заявка не найдена.
	ErrBuyRequestNotFound = errors.New("buy request not found")
	// ErrTransactionNotFound возвращается, если сделка не найдена.
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrReviewNotFound возвращается, если отзыв не найден.
	ErrReviewNotFound = errors.New("review not found")

	// --- state ---

	// ErrRequestNotPending — операция требует pending-заявки.
	ErrRequestNotPending = errors.New("buy request is not pending")
	// ErrTransactionFinished — сделка уже completed или cancelled.
	ErrTransactionFinished = errors.New("transaction is already completed or cancelled")
	// ErrTransactionCompleted — завершённую сделку нельзя отменить.
	ErrTransactionCompleted = errors.New("completed transaction cannot be cancelled")
	// ErrTransactionNotCompleted — отзыв возможен только по завершённой сделке.
	ErrTransactionNotCompleted = errors.New("transaction is not completed")

	// --- conflict ---

	// ErrOwnItemRequest — покупатель не может подать заявку на свой товар.
	ErrOwnItemRequest = errors.New("cannot request your own item")
	// ErrItemUnavailable — товар не в статусе available.
	ErrItemUnavailable = errors.New("item is not available")
	// ErrDuplicateRequest — у покупателя уже есть активная заявка по товару.
	ErrDuplicateRequest = errors.New("buyer already has a pending or accepted request for this item")
	// ErrTransactionInProgress — по товару уже открыта сделка.
	ErrTransactionInProgress = errors.New("item already has a transaction in progress")
	// ErrDuplicateReview — отзыв по этой сделке от этого автора уже существует.
	ErrDuplicateReview = errors.New("review already exists for this transaction")
	// ErrItemHasTransaction — ручная правка статуса противоречит живой сделке.
	ErrItemHasTransaction = errors.New("item status is managed by an open transaction")

	// --- инфраструктура ---

	// ErrVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrVersionConflict = errors.New("version conflict")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

var validationErrors = []error{
	ErrSellerRequired, ErrBuyerRequired, ErrTitleRequired, ErrPriceInvalid,
	ErrItemStatusInvalid, ErrItemIDRequired, ErrConversationIDRequired,
	ErrTransactionIDRequired, ErrReviewPartiesRequired, ErrRatingOutOfRange,
	ErrResponseTextRequired, ErrEmptyUpdate,
}

var authorizationErrors = []error{
	ErrNotSeller, ErrNotBuyer, ErrNotParticipant, ErrNotReviewer, ErrNotReviewee,
}

var notFoundErrors = []error{
	ErrItemNotFound, ErrUserNotFound, ErrConversationNotFound,
	ErrBuyRequestNotFound, ErrTransactionNotFound, ErrReviewNotFound,
}

var stateErrors = []error{
	ErrRequestNotPending, ErrTransactionFinished, ErrTransactionCompleted,
	ErrTransactionNotCompleted,
}

var conflictErrors = []error{
	ErrOwnItemRequest, ErrItemUnavailable, ErrDuplicateRequest,
	ErrTransactionInProgress, ErrDuplicateReview, ErrItemHasTransaction,
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsValidation проверяет, относится ли ошибка к категории validation.
func IsValidation(err error) bool { return isAny(err, validationErrors) }

// IsAuthorization проверяет, относится ли ошибка к категории authorization.
func IsAuthorization(err error) bool { return isAny(err, authorizationErrors) }

// IsNotFound проверяет, относится ли ошибка к категории not found.
func IsNotFound(err error) bool { return isAny(err, notFoundErrors) }

// IsState проверяет, относится ли ошибка к категории state.
func IsState(err error) bool { return isAny(err, stateErrors) }

// IsConflict проверяет, относится ли ошибка к категории conflict.
func IsConflict(err error) bool { return isAny(err, conflictErrors) }

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}
