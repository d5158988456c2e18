package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/campusmarket/internal/domain"
)

// buyRequestRepositoryInMemory — in-memory реализация BuyRequestRepository.
type buyRequestRepositoryInMemory struct {
	mu       sync.RWMutex
	requests map[string]domain.BuyRequest
}

// NewBuyRequestRepository возвращает in-memory репозиторий заявок.
func NewBuyRequestRepository() domain.BuyRequestRepository {
	return &buyRequestRepositoryInMemory{
		requests: make(map[string]domain.BuyRequest),
	}
}

// Create сохраняет новую заявку.
func (r *buyRequestRepositoryInMemory) Create(req domain.BuyRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.requests[req.ID]; exists {
		return domain.ErrVersionConflict
	}
	r.requests[req.ID] = req
	return nil
}

// Get возвращает заявку или ErrBuyRequestNotFound.
func (r *buyRequestRepositoryInMemory) Get(id string) (domain.BuyRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	req, ok := r.requests[id]
	if !ok {
		return domain.BuyRequest{}, domain.ErrBuyRequestNotFound
	}
	return req, nil
}

// ListByItem возвращает заявки по товару с опциональным фильтром статуса.
func (r *buyRequestRepositoryInMemory) ListByItem(itemID string, status domain.BuyRequestStatus) ([]domain.BuyRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.BuyRequest, 0)
	for _, req := range r.requests {
		if req.ItemID != itemID {
			continue
		}
		if status != "" && req.Status != status {
			continue
		}
		result = append(result, req)
	}
	sortRequests(result)
	return result, nil
}

// ListByItemAndBuyer возвращает заявки пары (item, buyer).
func (r *buyRequestRepositoryInMemory) ListByItemAndBuyer(itemID, buyerID string) ([]domain.BuyRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.BuyRequest, 0)
	for _, req := range r.requests {
		if req.ItemID == itemID && req.BuyerID == buyerID {
			result = append(result, req)
		}
	}
	sortRequests(result)
	return result, nil
}

// ListByUser возвращает заявки, где пользователь — покупатель либо продавец.
func (r *buyRequestRepositoryInMemory) ListByUser(userID, role string) ([]domain.BuyRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.BuyRequest, 0)
	for _, req := range r.requests {
		switch role {
		case "buyer":
			if req.BuyerID != userID {
				continue
			}
		case "seller":
			if req.SellerID != userID {
				continue
			}
		default:
			if req.BuyerID != userID && req.SellerID != userID {
				continue
			}
		}
		result = append(result, req)
	}
	sortRequests(result)
	return result, nil
}

// ListPendingOlderThan возвращает pending-заявки, созданные раньше cutoff.
func (r *buyRequestRepositoryInMemory) ListPendingOlderThan(cutoff time.Time, limit int) ([]domain.BuyRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.BuyRequest, 0)
	for _, req := range r.requests {
		if req.Status != domain.BuyRequestStatusPending {
			continue
		}
		if !req.CreatedAt.Before(cutoff) {
			continue
		}
		result = append(result, req)
	}
	sortRequests(result)

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Save перезаписывает заявку, проверяя версию (optimistic locking).
func (r *buyRequestRepositoryInMemory) Save(req domain.BuyRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.requests[req.ID]
	if !ok {
		return domain.ErrBuyRequestNotFound
	}
	if current.Version != req.Version {
		return domain.ErrVersionConflict
	}
	req.Version++
	r.requests[req.ID] = req
	return nil
}

func sortRequests(requests []domain.BuyRequest) {
	sort.Slice(requests, func(i, j int) bool {
		if !requests[i].CreatedAt.Equal(requests[j].CreatedAt) {
			return requests[i].CreatedAt.After(requests[j].CreatedAt)
		}
		return requests[i].ID > requests[j].ID
	})
}

var _ domain.BuyRequestRepository = (*buyRequestRepositoryInMemory)(nil)
