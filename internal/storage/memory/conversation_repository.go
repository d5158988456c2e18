package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/campusmarket/internal/domain"
)

// conversationRepositoryInMemory — in-memory реализация ConversationRepository.
type conversationRepositoryInMemory struct {
	mu            sync.RWMutex
	conversations map[string]domain.Conversation
}

// NewConversationRepository возвращает in-memory репозиторий диалогов.
func NewConversationRepository() domain.ConversationRepository {
	return &conversationRepositoryInMemory{
		conversations: make(map[string]domain.Conversation),
	}
}

// Create сохраняет новый диалог.
func (r *conversationRepositoryInMemory) Create(conv domain.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conversations[conv.ID]; exists {
		return domain.ErrVersionConflict
	}
	r.conversations[conv.ID] = conv
	return nil
}

// Get возвращает диалог или ErrConversationNotFound.
func (r *conversationRepositoryInMemory) Get(id string) (domain.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conv, ok := r.conversations[id]
	if !ok {
		return domain.Conversation{}, domain.ErrConversationNotFound
	}
	return conv, nil
}

// FindByParticipants ищет диалог по неупорядоченной паре участников и товару.
func (r *conversationRepositoryInMemory) FindByParticipants(userA, userB, itemID string) (domain.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, conv := range r.conversations {
		if conv.ItemID != itemID {
			continue
		}
		direct := conv.Participant1ID == userA && conv.Participant2ID == userB
		inverse := conv.Participant1ID == userB && conv.Participant2ID == userA
		if direct || inverse {
			return conv, nil
		}
	}
	return domain.Conversation{}, domain.ErrConversationNotFound
}

// TouchLastMessage обновляет отметку последнего сообщения.
func (r *conversationRepositoryInMemory) TouchLastMessage(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.conversations[id]
	if !ok {
		return domain.ErrConversationNotFound
	}
	now := time.Now().UTC()
	conv.LastMessageAt = &now
	r.conversations[id] = conv
	return nil
}

var _ domain.ConversationRepository = (*conversationRepositoryInMemory)(nil)
