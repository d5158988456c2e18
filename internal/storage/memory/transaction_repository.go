package memory

import (
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/campusmarket/internal/domain"
)

// transactionRepositoryInMemory — in-memory реализация TransactionRepository.
type transactionRepositoryInMemory struct {
	mu           sync.RWMutex
	transactions map[string]domain.Transaction
}

// NewTransactionRepository возвращает in-memory репозиторий сделок.
func NewTransactionRepository() domain.TransactionRepository {
	return &transactionRepositoryInMemory{
		transactions: make(map[string]domain.Transaction),
	}
}

// Create сохраняет новую сделку.
func (r *transactionRepositoryInMemory) Create(tx domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.transactions[tx.ID]; exists {
		return domain.ErrVersionConflict
	}
	// Аналог частичного уникального индекса: вторая in_progress сделка
	// по тому же товару отклоняется детерминированно.
	if tx.Status == domain.TransactionStatusInProgress {
		for _, existing := range r.transactions {
			if existing.ItemID == tx.ItemID && existing.Status == domain.TransactionStatusInProgress {
				return domain.ErrTransactionInProgress
			}
		}
	}
	r.transactions[tx.ID] = tx
	return nil
}

// Get возвращает сделку или ErrTransactionNotFound.
func (r *transactionRepositoryInMemory) Get(id string) (domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tx, ok := r.transactions[id]
	if !ok {
		return domain.Transaction{}, domain.ErrTransactionNotFound
	}
	return tx, nil
}

// FindInProgressByItem возвращает открытую сделку по товару.
func (r *transactionRepositoryInMemory) FindInProgressByItem(itemID string) (domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, tx := range r.transactions {
		if tx.ItemID == itemID && tx.Status == domain.TransactionStatusInProgress {
			return tx, nil
		}
	}
	return domain.Transaction{}, domain.ErrTransactionNotFound
}

// FindInProgressByConversationItem ищет открытую сделку по ключу (conversation, item).
func (r *transactionRepositoryInMemory) FindInProgressByConversationItem(conversationID, itemID string) (domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, tx := range r.transactions {
		if tx.ConversationID == conversationID && tx.ItemID == itemID &&
			tx.Status == domain.TransactionStatusInProgress {
			return tx, nil
		}
	}
	return domain.Transaction{}, domain.ErrTransactionNotFound
}

// ListInProgressByItem возвращает все открытые сделки по товару.
func (r *transactionRepositoryInMemory) ListInProgressByItem(itemID string) ([]domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Transaction, 0)
	for _, tx := range r.transactions {
		if tx.ItemID == itemID && tx.Status == domain.TransactionStatusInProgress {
			result = append(result, tx)
		}
	}
	sortTransactions(result)
	return result, nil
}

// ListByConversation возвращает сделки диалога, свежие первыми.
func (r *transactionRepositoryInMemory) ListByConversation(conversationID string) ([]domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Transaction, 0)
	for _, tx := range r.transactions {
		if tx.ConversationID == conversationID {
			result = append(result, tx)
		}
	}
	sortTransactions(result)
	return result, nil
}

// Save перезаписывает сделку, проверяя версию (optimistic locking).
func (r *transactionRepositoryInMemory) Save(tx domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.transactions[tx.ID]
	if !ok {
		return domain.ErrTransactionNotFound
	}
	if current.Version != tx.Version {
		return domain.ErrVersionConflict
	}
	tx.Version++
	r.transactions[tx.ID] = tx
	return nil
}

func sortTransactions(transactions []domain.Transaction) {
	sort.Slice(transactions, func(i, j int) bool {
		if !transactions[i].CreatedAt.Equal(transactions[j].CreatedAt) {
			return transactions[i].CreatedAt.After(transactions[j].CreatedAt)
		}
		return transactions[i].ID > transactions[j].ID
	})
}

var _ domain.TransactionRepository = (*transactionRepositoryInMemory)(nil)
