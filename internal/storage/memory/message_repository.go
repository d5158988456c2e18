package memory

import (
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/campusmarket/internal/domain"
)

// messageRepositoryInMemory — in-memory реализация MessageRepository.
type messageRepositoryInMemory struct {
	mu       sync.RWMutex
	messages map[string][]domain.Message
}

// NewMessageRepository возвращает in-memory репозиторий сообщений.
func NewMessageRepository() domain.MessageRepository {
	return &messageRepositoryInMemory{
		messages: make(map[string][]domain.Message),
	}
}

// Append добавляет сообщение в ленту диалога.
func (r *messageRepositoryInMemory) Append(msg domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.messages[msg.ConversationID] = append(r.messages[msg.ConversationID], msg)
	return nil
}

// ListByConversation возвращает сообщения диалога в хронологическом порядке.
func (r *messageRepositoryInMemory) ListByConversation(conversationID string, limit int) ([]domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored := r.messages[conversationID]
	result := make([]domain.Message, len(stored))
	copy(result, stored)

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[len(result)-limit:]
	}

	return result, nil
}

var _ domain.MessageRepository = (*messageRepositoryInMemory)(nil)
