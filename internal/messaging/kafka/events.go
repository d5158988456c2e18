package kafka

import (
	"time"

	"github.com/vladislavdragonenkov/campusmarket/internal/domain"
)

// EventType определяет тип события
type EventType string

const (
	// События заявок
	EventTypeBuyRequestCreated   EventType = "buy_request.created"
	EventTypeBuyRequestAccepted  EventType = "buy_request.accepted"
	EventTypeBuyRequestRejected  EventType = "buy_request.rejected"
	EventTypeBuyRequestCancelled EventType = "buy_request.cancelled"
	EventTypeBuyRequestExpired   EventType = "buy_request.expired"

	// События сделок
	EventTypeTransactionCreated   EventType = "transaction.created"
	EventTypeTransactionUpdated   EventType = "transaction.updated"
	EventTypeTransactionCompleted EventType = "transaction.completed"
	EventTypeTransactionCancelled EventType = "transaction.cancelled"
)

// Topics для Kafka
const (
	TopicMarketEvents  = "market.events"
	TopicNotifications = "market.notifications"
	TopicDeadLetter    = "market.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// NotificationEnvelope — push-событие, транслируемое между инстансами
// через topic market.notifications. OriginInstance исключает повторную
// доставку события тем же инстансом, который его породил.
type NotificationEnvelope struct {
	OriginInstance string       `json:"origin_instance"`
	UserID         string       `json:"user_id"`
	Event          domain.Event `json:"event"`
	Timestamp      time.Time    `json:"timestamp"`
}

// NewNotificationEnvelope создаёт конверт push-события.
func NewNotificationEnvelope(originInstance, userID string, event domain.Event) *NotificationEnvelope {
	return &NotificationEnvelope{
		OriginInstance: originInstance,
		UserID:         userID,
		Event:          event,
		Timestamp:      time.Now().UTC(),
	}
}
