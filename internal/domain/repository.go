package domain

import (
	"context"
	"time"
)

// ItemRepository описывает требования к хранилищу объявлений.
type ItemRepository interface {
	// Create сохраняет новое объявление.
	Create(item Item) error
	// Get возвращает объявление или ErrItemNotFound.
	Get(id string) (Item, error)
	// ListBySeller возвращает объявления продавца, свежие первыми.
	ListBySeller(sellerID string, limit int) ([]Item, error)
	// Save применяет обновление с учётом optimistic locking:
	// несовпадение версии даёт ErrVersionConflict.
	Save(item Item) error
}

// UserRepository описывает требования к хранилищу пользователей.
type UserRepository interface {
	Create(user User) error
	// Get возвращает пользователя или ErrUserNotFound.
	Get(id string) (User, error)
	// SetRating перезаписывает агрегированный рейтинг пользователя.
	SetRating(id string, rating float64) error
	// IncrementTotalSales увеличивает счётчик продаж на единицу.
	IncrementTotalSales(id string) error
}

// ConversationRepository описывает требования к хранилищу диалогов.
type ConversationRepository interface {
	Create(conv Conversation) error
	// Get возвращает диалог или ErrConversationNotFound.
	Get(id string) (Conversation, error)
	// FindByParticipants ищет диалог по неупорядоченной паре участников
	// и товару; ErrConversationNotFound, если его нет.
	FindByParticipants(userA, userB, itemID string) (Conversation, error)
	// TouchLastMessage обновляет отметку последнего сообщения.
	TouchLastMessage(id string) error
}

// MessageRepository описывает требования к хранилищу сообщений.
type MessageRepository interface {
	Append(msg Message) error
	ListByConversation(conversationID string, limit int) ([]Message, error)
}

// BuyRequestRepository описывает требования к хранилищу заявок.
type BuyRequestRepository interface {
	Create(req BuyRequest) error
	// Get возвращает заявку или ErrBuyRequestNotFound.
	Get(id string) (BuyRequest, error)
	// ListByItem возвращает заявки по товару, опционально фильтруя по статусу
	// (пустой статус — без фильтра).
	ListByItem(itemID string, status BuyRequestStatus) ([]BuyRequest, error)
	// ListByItemAndBuyer возвращает заявки пары (item, buyer).
	ListByItemAndBuyer(itemID, buyerID string) ([]BuyRequest, error)
	// ListByUser возвращает заявки, где пользователь выступает покупателем
	// либо продавцом (role: "buyer"|"seller").
	ListByUser(userID, role string) ([]BuyRequest, error)
	// ListPendingOlderThan возвращает pending-заявки старше отметки (для sweeper'а).
	ListPendingOlderThan(cutoff time.Time, limit int) ([]BuyRequest, error)
	// Save применяет обновление с учётом optimistic locking.
	Save(req BuyRequest) error
}

// TransactionRepository описывает требования к хранилищу сделок.
type TransactionRepository interface {
	Create(tx Transaction) error
	// Get возвращает сделку или ErrTransactionNotFound.
	Get(id string) (Transaction, error)
	// FindInProgressByItem возвращает открытую сделку по товару
	// или ErrTransactionNotFound. Инвариант: такая сделка не более одной.
	FindInProgressByItem(itemID string) (Transaction, error)
	// FindInProgressByConversationItem ищет открытую сделку по ключу
	// (conversation, item) для идемпотентного create-appointment.
	FindInProgressByConversationItem(conversationID, itemID string) (Transaction, error)
	// ListInProgressByItem возвращает все открытые сделки по товару
	// (каскадные отмены при завершении конкурирующей сделки).
	ListInProgressByItem(itemID string) ([]Transaction, error)
	// ListByConversation возвращает сделки диалога, свежие первыми.
	ListByConversation(conversationID string) ([]Transaction, error)
	// Save применяет обновление с учётом optimistic locking.
	Save(tx Transaction) error
}

// ReviewRepository описывает требования к хранилищу отзывов.
type ReviewRepository interface {
	// Create сохраняет отзыв; дубликат по (transaction, reviewer)
	// даёт ErrDuplicateReview.
	Create(review Review) error
	// Get возвращает отзыв или ErrReviewNotFound.
	Get(id string) (Review, error)
	// FindByTransactionReviewer ищет отзыв по паре (transaction, reviewer).
	FindByTransactionReviewer(transactionID, reviewerID string) (Review, error)
	ListByReviewee(revieweeID string) ([]Review, error)
	ListByItem(itemID string) ([]Review, error)
	Save(review Review) error
	Delete(id string) error
}

// RepositorySet — полный набор репозиториев, видимый движкам внутри
// одной единицы работы.
type RepositorySet struct {
	Items         ItemRepository
	Users         UserRepository
	Conversations ConversationRepository
	Messages      MessageRepository
	BuyRequests   BuyRequestRepository
	Transactions  TransactionRepository
	Reviews       ReviewRepository
	Outbox        OutboxRepository
	Timeline      TimelineRepository
}

// Store предоставляет транзакционную границу: всё, что fn делает с
// переданным RepositorySet, применяется атомарно. Ошибка из fn
// откатывает единицу работы целиком — частичное применение
// (заявка принята, а сделка не создана) недопустимо.
type Store interface {
	Within(ctx context.Context, fn func(r RepositorySet) error) error
	// Repos возвращает набор репозиториев вне транзакционной границы
	// (для читающих операций).
	Repos() RepositorySet
}
