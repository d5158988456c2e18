package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/campusmarket/internal/domain"
)

// userRepositoryInMemory — in-memory реализация UserRepository.
type userRepositoryInMemory struct {
	mu    sync.RWMutex
	users map[string]domain.User
}

// NewUserRepository возвращает in-memory репозиторий пользователей.
func NewUserRepository() domain.UserRepository {
	return &userRepositoryInMemory{
		users: make(map[string]domain.User),
	}
}

// Create сохраняет нового пользователя.
func (r *userRepositoryInMemory) Create(user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[user.ID]; exists {
		return domain.ErrVersionConflict
	}
	r.users[user.ID] = user
	return nil
}

// Get возвращает пользователя или ErrUserNotFound.
func (r *userRepositoryInMemory) Get(id string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

// SetRating перезаписывает агрегированный рейтинг пользователя.
func (r *userRepositoryInMemory) SetRating(id string, rating float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	user.Rating = rating
	user.UpdatedAt = time.Now().UTC()
	r.users[id] = user
	return nil
}

// IncrementTotalSales увеличивает счётчик продаж на единицу.
func (r *userRepositoryInMemory) IncrementTotalSales(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	user.TotalSales++
	user.UpdatedAt = time.Now().UTC()
	r.users[id] = user
	return nil
}

var _ domain.UserRepository = (*userRepositoryInMemory)(nil)
