package memory

import (
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/campusmarket/internal/domain"
)

// itemRepositoryInMemory — простая in-memory реализация ItemRepository.
type itemRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Item
}

// NewItemRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewItemRepository() domain.ItemRepository {
	return &itemRepositoryInMemory{
		items: make(map[string]domain.Item),
	}
}

// Create сохраняет новое объявление, если ID ещё не занят.
func (r *itemRepositoryInMemory) Create(item domain.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[item.ID]; exists {
		return domain.ErrVersionConflict
	}
	// Сохраняем копию, чтобы избежать непредсказуемых мутаций извне.
	r.items[item.ID] = item
	return nil
}

// Get возвращает объявление или ErrItemNotFound, если его нет.
func (r *itemRepositoryInMemory) Get(id string) (domain.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[id]
	if !ok {
		return domain.Item{}, domain.ErrItemNotFound
	}
	return item, nil
}

// ListBySeller возвращает объявления продавца, ограничивая выборку limit (если >0).
func (r *itemRepositoryInMemory) ListBySeller(sellerID string, limit int) ([]domain.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Item, 0, len(r.items))
	for _, item := range r.items {
		if item.SellerID != sellerID {
			continue
		}
		result = append(result, item)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// Save перезаписывает объявление, проверяя версию (optimistic locking).
func (r *itemRepositoryInMemory) Save(item domain.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[item.ID]
	if !ok {
		return domain.ErrItemNotFound
	}
	if current.Version != item.Version {
		return domain.ErrVersionConflict
	}
	// Инкрементируем версию перед сохранением.
	item.Version++
	r.items[item.ID] = item
	return nil
}

var _ domain.ItemRepository = (*itemRepositoryInMemory)(nil)
