package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/campusmarket/internal/domain"
)

// Store — in-memory реализация domain.Store для разработки и тестов.
//
// Единицы работы сериализуются одним мьютексом: пока fn выполняется,
// другая единица работы не начнётся. Отката здесь нет — движки обязаны
// проверять все предусловия до первой записи, что они и делают;
// постгрес-реализация даёт настоящий rollback.
type Store struct {
	mu    sync.Mutex
	repos domain.RepositorySet
}

// NewStore собирает in-memory стор со свежими репозиториями.
func NewStore() *Store {
	return &Store{
		repos: domain.RepositorySet{
			Items:         NewItemRepository(),
			Users:         NewUserRepository(),
			Conversations: NewConversationRepository(),
			Messages:      NewMessageRepository(),
			BuyRequests:   NewBuyRequestRepository(),
			Transactions:  NewTransactionRepository(),
			Reviews:       NewReviewRepository(),
			Outbox:        NewOutboxRepository(),
			Timeline:      NewTimelineRepository(),
		},
	}
}

// Within выполняет fn под общим мьютексом стора.
func (s *Store) Within(ctx context.Context, fn func(r domain.RepositorySet) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.repos)
}

// Repos возвращает репозитории для читающих операций вне единицы работы.
func (s *Store) Repos() domain.RepositorySet {
	return s.repos
}

var _ domain.Store = (*Store)(nil)
