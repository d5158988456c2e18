package notify

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/campusmarket/internal/domain"
)

// defaultChannelBuffer — ёмкость канала подписчика. Медленный клиент
// теряет события, а не блокирует мутацию.
const defaultChannelBuffer = 16

// HubOption настраивает Hub при создании.
type HubOption func(*Hub)

// WithChannelBuffer задаёт ёмкость канала подписчика.
func WithChannelBuffer(size int) HubOption {
	return func(h *Hub) {
		if size > 0 {
			h.buffer = size
		}
	}
}

// Publisher транслирует push-события другим инстансам сервиса.
type Publisher interface {
	PublishNotification(userID string, event domain.Event) error
}

// Hub — реестр живых подписок: user id → каналы подключённых клиентов.
// Доставка best-effort и неблокирующая; переполненный канал означает
// потерю события для этого подключения, клиент затем перечитает
// состояние по REST.
type Hub struct {
	mu       sync.RWMutex
	channels map[string][]chan domain.Event

	store     domain.Store
	publisher Publisher
	logger    *log.Entry
	buffer    int
}

// NewHub создаёт реестр подписок. store нужен для разрешения участников
// диалогов и сделок; publisher опционален и включает межинстансовую
// трансляцию.
func NewHub(store domain.Store, publisher Publisher, logger *log.Entry, opts ...HubOption) *Hub {
	if logger == nil {
		logger = log.New().WithField("component", "notify")
	}
	h := &Hub{
		channels:  make(map[string][]chan domain.Event),
		store:     store,
		publisher: publisher,
		logger:    logger,
		buffer:    defaultChannelBuffer,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register подключает клиента пользователя. Возвращённая функция
// отписывает канал и закрывает его.
func (h *Hub) Register(userID string) (<-chan domain.Event, func()) {
	ch := make(chan domain.Event, h.buffer)

	h.mu.Lock()
	h.channels[userID] = append(h.channels[userID], ch)
	h.mu.Unlock()

	h.logger.WithField("user_id", userID).Debug("client registered")

	unregister := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs := h.channels[userID]
		// Всегда новый срез: deliverLocal может итерировать старый
		// под RLock, его backing array трогать нельзя.
		remaining := make([]chan domain.Event, 0, len(subs))
		for _, sub := range subs {
			if sub == ch {
				close(ch)
				continue
			}
			remaining = append(remaining, sub)
		}
		if len(remaining) == 0 {
			delete(h.channels, userID)
			return
		}
		h.channels[userID] = remaining
	}
	return ch, unregister
}

// SendToUser доставляет событие всем подключениям пользователя и
// транслирует его другим инстансам.
func (h *Hub) SendToUser(userID string, event domain.Event) {
	h.deliverLocal(userID, event)

	if h.publisher != nil {
		if err := h.publisher.PublishNotification(userID, event); err != nil {
			h.logger.WithError(err).WithField("user_id", userID).Warn("broadcast to peers failed")
		}
	}
}

// SendToConversationParticipants рассылает событие участникам диалога,
// пропуская excludeUserID.
func (h *Hub) SendToConversationParticipants(event domain.Event, conversationID, excludeUserID string) {
	conv, err := h.store.Repos().Conversations.Get(conversationID)
	if err != nil {
		h.logger.WithError(err).WithField("conversation_id", conversationID).Warn("resolve conversation failed")
		return
	}
	for _, userID := range []string{conv.Participant1ID, conv.Participant2ID} {
		if userID == excludeUserID {
			continue
		}
		h.SendToUser(userID, event)
	}
}

// SendToTransactionParticipants рассылает событие сторонам сделки,
// пропуская excludeUserID.
func (h *Hub) SendToTransactionParticipants(event domain.Event, transactionID, excludeUserID string) {
	tx, err := h.store.Repos().Transactions.Get(transactionID)
	if err != nil {
		h.logger.WithError(err).WithField("transaction_id", transactionID).Warn("resolve transaction failed")
		return
	}
	for _, userID := range []string{tx.BuyerID, tx.SellerID} {
		if userID == excludeUserID {
			continue
		}
		h.SendToUser(userID, event)
	}
}

// DeliverLocal доставляет событие только локальным подключениям — путь
// для событий, пришедших от других инстансов.
func (h *Hub) DeliverLocal(userID string, event domain.Event) {
	h.deliverLocal(userID, event)
}

func (h *Hub) deliverLocal(userID string, event domain.Event) {
	// Отправка идёт под RLock: close в unregister требует полного Lock,
	// поэтому канал не может закрыться под нами. select с default не
	// блокируется, так что читатели не держат друг друга.
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.channels[userID] {
		select {
		case ch <- event:
		default:
			h.logger.WithFields(log.Fields{
				"user_id": userID,
				"type":    event.Type,
			}).Warn("subscriber channel full, event dropped")
		}
	}
}

var _ domain.Notifier = (*Hub)(nil)
