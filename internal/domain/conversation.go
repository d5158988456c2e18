package domain

import "time"

// Conversation связывает двух участников вокруг конкретного объявления.
// Пара участников не упорядочена: (A,B) и (B,A) по одному item — это один диалог.
type Conversation struct {
	ID             string     `json:"id"`
	Participant1ID string     `json:"participant1_id"`
	Participant2ID string     `json:"participant2_id"`
	ItemID         string     `json:"item_id"`
	LastMessageAt  *time.Time `json:"last_message_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// HasParticipant сообщает, входит ли пользователь в диалог.
func (c *Conversation) HasParticipant(userID string) bool {
	return c.Participant1ID == userID || c.Participant2ID == userID
}

// OtherParticipant возвращает собеседника для заданного участника.
func (c *Conversation) OtherParticipant(userID string) string {
	if c.Participant1ID == userID {
		return c.Participant2ID
	}
	return c.Participant1ID
}

// MessageType различает обычный текст и структурированные сообщения о заявках.
type MessageType string

const (
	// MessageTypeText — обычное пользовательское сообщение.
	MessageTypeText MessageType = "text"
	// MessageTypeBuyRequest — системное сообщение, привязанное к заявке на покупку.
	MessageTypeBuyRequest MessageType = "buy_request"
)

// Message — сообщение в диалоге. Ядро создаёт их как побочный эффект
// жизненного цикла заявок; хранение и выдача ленты — забота этого же стора.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	SenderID       string      `json:"sender_id"`
	Content        string      `json:"content"`
	Type           MessageType `json:"type"`
	// BuyRequestID заполняется только для сообщений типа buy_request.
	BuyRequestID string    `json:"buy_request_id,omitempty"`
	IsRead       bool      `json:"is_read"`
	CreatedAt    time.Time `json:"created_at"`
}
