package memory

import (
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/campusmarket/internal/domain"
)

// reviewRepositoryInMemory — in-memory реализация ReviewRepository.
type reviewRepositoryInMemory struct {
	mu      sync.RWMutex
	reviews map[string]domain.Review
}

// NewReviewRepository возвращает in-memory репозиторий отзывов.
func NewReviewRepository() domain.ReviewRepository {
	return &reviewRepositoryInMemory{
		reviews: make(map[string]domain.Review),
	}
}

// Create сохраняет отзыв; дубликат по (transaction, reviewer) отклоняется.
func (r *reviewRepositoryInMemory) Create(review domain.Review) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.reviews[review.ID]; exists {
		return domain.ErrVersionConflict
	}
	for _, existing := range r.reviews {
		if existing.TransactionID == review.TransactionID && existing.ReviewerID == review.ReviewerID {
			return domain.ErrDuplicateReview
		}
	}
	r.reviews[review.ID] = review
	return nil
}

// Get возвращает отзыв или ErrReviewNotFound.
func (r *reviewRepositoryInMemory) Get(id string) (domain.Review, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	review, ok := r.reviews[id]
	if !ok {
		return domain.Review{}, domain.ErrReviewNotFound
	}
	return review, nil
}

// FindByTransactionReviewer ищет отзыв по паре (transaction, reviewer).
func (r *reviewRepositoryInMemory) FindByTransactionReviewer(transactionID, reviewerID string) (domain.Review, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, review := range r.reviews {
		if review.TransactionID == transactionID && review.ReviewerID == reviewerID {
			return review, nil
		}
	}
	return domain.Review{}, domain.ErrReviewNotFound
}

// ListByReviewee возвращает отзывы о пользователе, свежие первыми.
func (r *reviewRepositoryInMemory) ListByReviewee(revieweeID string) ([]domain.Review, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Review, 0)
	for _, review := range r.reviews {
		if review.RevieweeID == revieweeID {
			result = append(result, review)
		}
	}
	sortReviews(result)
	return result, nil
}

// ListByItem возвращает отзывы по товару, свежие первыми.
func (r *reviewRepositoryInMemory) ListByItem(itemID string) ([]domain.Review, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Review, 0)
	for _, review := range r.reviews {
		if review.ItemID == itemID {
			result = append(result, review)
		}
	}
	sortReviews(result)
	return result, nil
}

// Save перезаписывает отзыв.
func (r *reviewRepositoryInMemory) Save(review domain.Review) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.reviews[review.ID]; !ok {
		return domain.ErrReviewNotFound
	}
	r.reviews[review.ID] = review
	return nil
}

// Delete удаляет отзыв.
func (r *reviewRepositoryInMemory) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.reviews[id]; !ok {
		return domain.ErrReviewNotFound
	}
	delete(r.reviews, id)
	return nil
}

func sortReviews(reviews []domain.Review) {
	sort.Slice(reviews, func(i, j int) bool {
		if !reviews[i].CreatedAt.Equal(reviews[j].CreatedAt) {
			return reviews[i].CreatedAt.After(reviews[j].CreatedAt)
		}
		return reviews[i].ID > reviews[j].ID
	})
}

var _ domain.ReviewRepository = (*reviewRepositoryInMemory)(nil)
