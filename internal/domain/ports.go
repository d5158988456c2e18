package domain

import (
	"context"
	"time"
)

// Authenticator превращает непрозрачный credential в стабильный id
// пользователя. Реальная проверка (Firebase и т.п.) живёт снаружи ядра.
type Authenticator interface {
	// Authenticate возвращает id пользователя или ErrInvalidCredential.
	Authenticate(ctx context.Context, credential string) (string, error)
}

// Notifier доставляет события жизненного цикла подключённым клиентам.
// Доставка best-effort: отсутствие живого канала у получателя — не ошибка,
// сбой доставки никогда не влияет на вызвавшую мутацию.
type Notifier interface {
	SendToUser(userID string, event Event)
	// SendToConversationParticipants рассылает событие обоим участникам
	// диалога, пропуская excludeUserID (инициатора).
	SendToConversationParticipants(event Event, conversationID, excludeUserID string)
	// SendToTransactionParticipants рассылает событие обеим сторонам
	// сделки, пропуская excludeUserID.
	SendToTransactionParticipants(event Event, transactionID, excludeUserID string)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// TimelineRepository хранит события жизненного цикла сделки.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(transactionID string) ([]TimelineEvent, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// TimelineEvent описывает событие в жизненном цикле сделки.
type TimelineEvent struct {
	TransactionID string    `json:"transaction_id"`
	Type          string    `json:"type"`
	Reason        string    `json:"reason,omitempty"`
	Occurred      time.Time `json:"occurred"`
}
