package item

import (
	"context"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/campusmarket/internal/domain"
)

// CreateInput — параметры нового объявления.
type CreateInput struct {
	Title        string
	Description  string
	Price        float64
	Category     string
	Condition    string
	Location     string
	IsNegotiable bool
}

// Ledger описывает операции над объявлениями. Статус объявления
// в основном меняют движки заявок и сделок; здесь — только ручная
// правка продавцом и базовый CRUD.
type Ledger interface {
	Create(ctx context.Context, sellerID string, input CreateInput) (domain.Item, error)
	Get(ctx context.Context, itemID string) (domain.Item, error)
	ListBySeller(ctx context.Context, sellerID string, limit int) ([]domain.Item, error)
	// SetStatus — ручная правка статуса продавцом: снять товар (sold)
	// либо вернуть в продажу (available). Запрещена, пока по товару
	// открыта сделка: статус тогда принадлежит её жизненному циклу.
	SetStatus(ctx context.Context, itemID, callerID string, status domain.ItemStatus) (domain.Item, error)
}

type ledger struct {
	store  domain.Store
	logger *log.Entry
}

// NewLedger создаёт рабочий экземпляр реестра объявлений.
func NewLedger(store domain.Store, logger *log.Entry) Ledger {
	if logger == nil {
		logger = log.New().WithField("component", "item")
	}
	return &ledger{store: store, logger: logger}
}

func (l *ledger) Create(ctx context.Context, sellerID string, input CreateInput) (domain.Item, error) {
	now := time.Now().UTC()
	item := domain.Item{
		ID:           uuid.NewString(),
		SellerID:     sellerID,
		Title:        input.Title,
		Description:  input.Description,
		Price:        input.Price,
		Category:     input.Category,
		Condition:    input.Condition,
		Location:     input.Location,
		IsNegotiable: input.IsNegotiable,
		Status:       domain.ItemStatusAvailable,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if errs := item.ValidateInvariants(); len(errs) > 0 {
		return domain.Item{}, errs[0]
	}

	err := l.store.Within(ctx, func(r domain.RepositorySet) error {
		return r.Items.Create(item)
	})
	if err != nil {
		return domain.Item{}, err
	}

	l.logger.WithFields(log.Fields{
		"item_id":   item.ID,
		"seller_id": item.SellerID,
	}).Info("item created")
	return item, nil
}

func (l *ledger) Get(ctx context.Context, itemID string) (domain.Item, error) {
	return l.store.Repos().Items.Get(itemID)
}

func (l *ledger) ListBySeller(ctx context.Context, sellerID string, limit int) ([]domain.Item, error) {
	return l.store.Repos().Items.ListBySeller(sellerID, limit)
}

func (l *ledger) SetStatus(ctx context.Context, itemID, callerID string, status domain.ItemStatus) (domain.Item, error) {
	// Вручную продавец может снять товар (sold, продан вне платформы)
	// или вернуть его в продажу. reserved выставляет только сделка.
	if status != domain.ItemStatusAvailable && status != domain.ItemStatusSold {
		return domain.Item{}, domain.ErrItemStatusInvalid
	}

	var updated domain.Item
	err := l.store.Within(ctx, func(r domain.RepositorySet) error {
		item, err := r.Items.Get(itemID)
		if err != nil {
			return err
		}
		if item.SellerID != callerID {
			return domain.ErrNotSeller
		}
		if _, err := r.Transactions.FindInProgressByItem(itemID); err == nil {
			return domain.ErrItemHasTransaction
		} else if err != domain.ErrTransactionNotFound {
			return err
		}

		item.Status = status
		item.UpdatedAt = time.Now().UTC()
		if err := r.Items.Save(item); err != nil {
			return err
		}
		updated = item
		return nil
	})
	if err != nil {
		return domain.Item{}, err
	}

	l.logger.WithFields(log.Fields{
		"item_id": updated.ID,
		"status":  updated.Status,
	}).Info("item status changed")
	return updated, nil
}

var _ Ledger = (*ledger)(nil)
