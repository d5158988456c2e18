package domain

// EventType — тип push-события для подключённых клиентов.
type EventType string

const (
	// EventBuyRequestUpdate — изменился статус заявки на покупку.
	EventBuyRequestUpdate EventType = "buy_request_update"
	// EventTransactionCreated — открыта новая сделка.
	EventTransactionCreated EventType = "transaction_created"
	// EventTransactionUpdate — изменилось состояние сделки.
	EventTransactionUpdate EventType = "transaction_update"
)

// Event — единица доставки Notification Fan-out.
// Data сериализуется в JSON как есть; клиент заменяет локальное
// состояние целиком, поэтому Data всегда несёт полный снимок сущности.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}
