package buyrequest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/campusmarket/internal/domain"
	"github.com/vladislavdragonenkov/campusmarket/internal/metrics"
)

// Engine описывает операции жизненного цикла заявок на покупку.
type Engine interface {
	Create(ctx context.Context, itemID, buyerID string) (domain.BuyRequest, error)
	// Accept принимает заявку: отклоняет конкурирующие pending-заявки,
	// открывает сделку и резервирует товар — всё в одной единице работы.
	Accept(ctx context.Context, requestID, callerID string) (domain.BuyRequest, domain.Transaction, error)
	Reject(ctx context.Context, requestID, callerID string) (domain.BuyRequest, error)
	Cancel(ctx context.Context, requestID, callerID string) (domain.BuyRequest, error)
	Get(ctx context.Context, requestID, callerID string) (domain.BuyRequest, error)
	ListForUser(ctx context.Context, userID, role string) ([]domain.BuyRequest, error)
}

type engine struct {
	store    domain.Store
	notifier domain.Notifier
	logger   *log.Entry
	metrics  *metrics.LifecycleMetrics
}

// NewEngine создаёт рабочий экземпляр движка заявок.
func NewEngine(store domain.Store, notifier domain.Notifier, logger *log.Entry) Engine {
	if logger == nil {
		logger = log.New().WithField("component", "buyrequest")
	}
	return &engine{
		store:    store,
		notifier: notifier,
		logger:   logger,
		metrics:  metrics.NewLifecycleMetrics(),
	}
}

// NewEngineWithoutMetrics создаёт движок без метрик (для тестов).
func NewEngineWithoutMetrics(store domain.Store, notifier domain.Notifier, logger *log.Entry) Engine {
	if logger == nil {
		logger = log.New().WithField("component", "buyrequest")
	}
	return &engine{
		store:    store,
		notifier: notifier,
		logger:   logger,
	}
}

// notification откладывает доставку события до успешного коммита
// единицы работы: уведомления о откатившейся мутации не уходят.
type notification struct {
	userID string
	event  domain.Event
}

// Create регистрирует заявку покупателя: проверяет доступность товара,
// находит либо создаёт диалог пары и вписывает в него системное сообщение.
func (e *engine) Create(ctx context.Context, itemID, buyerID string) (domain.BuyRequest, error) {
	start := time.Now()
	defer e.observe("create", start)

	if itemID == "" {
		return domain.BuyRequest{}, domain.ErrItemIDRequired
	}
	if buyerID == "" {
		return domain.BuyRequest{}, domain.ErrBuyerRequired
	}

	var (
		created domain.BuyRequest
		notifs  []notification
	)
	err := e.withConflictRetry(ctx, "create", func(r domain.RepositorySet) error {
		notifs = notifs[:0]

		item, err := r.Items.Get(itemID)
		if err != nil {
			return err
		}
		if item.SellerID == buyerID {
			return domain.ErrOwnItemRequest
		}
		if item.Status != domain.ItemStatusAvailable {
			return domain.ErrItemUnavailable
		}

		existing, err := r.BuyRequests.ListByItemAndBuyer(itemID, buyerID)
		if err != nil {
			return err
		}
		for _, req := range existing {
			if req.Status.Active() {
				return domain.ErrDuplicateRequest
			}
		}

		conv, err := e.ensureConversation(r, buyerID, item.SellerID, itemID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		created = domain.BuyRequest{
			ID:             uuid.NewString(),
			ItemID:         itemID,
			BuyerID:        buyerID,
			SellerID:       item.SellerID,
			ConversationID: conv.ID,
			Status:         domain.BuyRequestStatusPending,
			CreatedAt:      now,
		}
		if errs := created.ValidateInvariants(); len(errs) > 0 {
			return errs[0]
		}
		if err := r.BuyRequests.Create(created); err != nil {
			return err
		}

		msg := domain.Message{
			ID:             uuid.NewString(),
			ConversationID: conv.ID,
			SenderID:       buyerID,
			Content:        fmt.Sprintf("Buy request for %q", item.Title),
			Type:           domain.MessageTypeBuyRequest,
			BuyRequestID:   created.ID,
			CreatedAt:      now,
		}
		if err := r.Messages.Append(msg); err != nil {
			return err
		}
		if err := r.Conversations.TouchLastMessage(conv.ID); err != nil {
			return err
		}

		e.emitEvent(r, created, "BuyRequestCreated")
		notifs = append(notifs, notification{
			userID: created.SellerID,
			event:  domain.Event{Type: domain.EventBuyRequestUpdate, Data: created},
		})
		return nil
	})
	if err != nil {
		return domain.BuyRequest{}, err
	}

	if e.metrics != nil {
		e.metrics.RecordRequestCreated()
	}
	e.logger.WithFields(log.Fields{
		"request_id": created.ID,
		"item_id":    created.ItemID,
		"buyer_id":   created.BuyerID,
	}).Info("buy request created")
	e.deliver(notifs)
	return created, nil
}

// Accept переводит заявку в accepted и атомарно с этим отклоняет
// остальные pending-заявки по товару, открывает in_progress сделку
// и переводит товар в reserved.
func (e *engine) Accept(ctx context.Context, requestID, callerID string) (domain.BuyRequest, domain.Transaction, error) {
	start := time.Now()
	defer e.observe("accept", start)

	var (
		accepted domain.BuyRequest
		opened   domain.Transaction
		rejected int
		notifs   []notification
	)
	err := e.withConflictRetry(ctx, "accept", func(r domain.RepositorySet) error {
		notifs = notifs[:0]
		rejected = 0

		req, err := r.BuyRequests.Get(requestID)
		if err != nil {
			return err
		}
		if req.SellerID != callerID {
			return domain.ErrNotSeller
		}
		if req.Status != domain.BuyRequestStatusPending {
			return domain.ErrRequestNotPending
		}

		item, err := r.Items.Get(req.ItemID)
		if err != nil {
			return err
		}
		if item.Status != domain.ItemStatusAvailable {
			return domain.ErrItemUnavailable
		}
		if _, err := r.Transactions.FindInProgressByItem(item.ID); err == nil {
			return domain.ErrTransactionInProgress
		} else if err != domain.ErrTransactionNotFound {
			return err
		}

		now := time.Now().UTC()
		req.Status = domain.BuyRequestStatusAccepted
		req.RespondedAt = &now
		if err := r.BuyRequests.Save(req); err != nil {
			return err
		}
		accepted = req

		// Каскад: конкурирующие pending-заявки по этому товару отклоняются.
		siblings, err := r.BuyRequests.ListByItem(req.ItemID, domain.BuyRequestStatusPending)
		if err != nil {
			return err
		}
		for _, sibling := range siblings {
			if sibling.ID == req.ID {
				continue
			}
			sibling.Status = domain.BuyRequestStatusRejected
			sibling.RespondedAt = &now
			if err := r.BuyRequests.Save(sibling); err != nil {
				return err
			}
			rejected++
			e.emitEvent(r, sibling, "BuyRequestRejected")
			notifs = append(notifs, notification{
				userID: sibling.BuyerID,
				event:  domain.Event{Type: domain.EventBuyRequestUpdate, Data: sibling},
			})
		}

		opened = domain.Transaction{
			ID:             uuid.NewString(),
			ItemID:         req.ItemID,
			BuyerID:        req.BuyerID,
			SellerID:       req.SellerID,
			ConversationID: req.ConversationID,
			BuyRequestID:   req.ID,
			Status:         domain.TransactionStatusInProgress,
			CreatedAt:      now,
		}
		if err := r.Transactions.Create(opened); err != nil {
			return err
		}

		item.Status = domain.ItemStatusReserved
		item.UpdatedAt = now
		if err := r.Items.Save(item); err != nil {
			return err
		}

		e.emitEvent(r, accepted, "BuyRequestAccepted")
		e.emitTransactionEvent(r, opened, "TransactionOpened")
		notifs = append(notifs,
			notification{
				userID: accepted.BuyerID,
				event:  domain.Event{Type: domain.EventBuyRequestUpdate, Data: accepted},
			},
			notification{
				userID: accepted.BuyerID,
				event:  domain.Event{Type: domain.EventTransactionCreated, Data: opened},
			},
		)
		return nil
	})
	if err != nil {
		return domain.BuyRequest{}, domain.Transaction{}, err
	}

	if e.metrics != nil {
		e.metrics.RecordRequestAccepted()
		e.metrics.RecordTransactionCreated()
		for i := 0; i < rejected; i++ {
			e.metrics.RecordRequestRejected()
		}
	}
	e.logger.WithFields(log.Fields{
		"request_id":     accepted.ID,
		"transaction_id": opened.ID,
		"rejected":       rejected,
	}).Info("buy request accepted")
	e.deliver(notifs)
	return accepted, opened, nil
}

// Reject отклоняет pending-заявку. Доступно только продавцу.
func (e *engine) Reject(ctx context.Context, requestID, callerID string) (domain.BuyRequest, error) {
	req, err := e.respond(ctx, "reject", requestID, func(req *domain.BuyRequest) error {
		if req.SellerID != callerID {
			return domain.ErrNotSeller
		}
		req.Status = domain.BuyRequestStatusRejected
		return nil
	})
	if err != nil {
		return domain.BuyRequest{}, err
	}
	if e.metrics != nil {
		e.metrics.RecordRequestRejected()
	}
	return req, nil
}

// Cancel отзывает pending-заявку. Доступно только покупателю.
func (e *engine) Cancel(ctx context.Context, requestID, callerID string) (domain.BuyRequest, error) {
	req, err := e.respond(ctx, "cancel", requestID, func(req *domain.BuyRequest) error {
		if req.BuyerID != callerID {
			return domain.ErrNotBuyer
		}
		req.Status = domain.BuyRequestStatusCancelled
		return nil
	})
	if err != nil {
		return domain.BuyRequest{}, err
	}
	if e.metrics != nil {
		e.metrics.RecordRequestCanceled()
	}
	return req, nil
}

// respond — общий путь терминальных ответов на pending-заявку
// (reject продавцом, cancel покупателем).
func (e *engine) respond(ctx context.Context, operation, requestID string, mutate func(*domain.BuyRequest) error) (domain.BuyRequest, error) {
	start := time.Now()
	defer e.observe(operation, start)

	var (
		updated domain.BuyRequest
		notifs  []notification
	)
	err := e.withConflictRetry(ctx, operation, func(r domain.RepositorySet) error {
		notifs = notifs[:0]

		req, err := r.BuyRequests.Get(requestID)
		if err != nil {
			return err
		}
		pending := req.Status == domain.BuyRequestStatusPending
		if err := mutate(&req); err != nil {
			return err
		}
		if !pending {
			return domain.ErrRequestNotPending
		}

		now := time.Now().UTC()
		req.RespondedAt = &now
		if err := r.BuyRequests.Save(req); err != nil {
			return err
		}
		updated = req

		eventType := "BuyRequestRejected"
		other := req.BuyerID
		if req.Status == domain.BuyRequestStatusCancelled {
			eventType = "BuyRequestCancelled"
			other = req.SellerID
		}
		e.emitEvent(r, req, eventType)
		notifs = append(notifs, notification{
			userID: other,
			event:  domain.Event{Type: domain.EventBuyRequestUpdate, Data: req},
		})
		return nil
	})
	if err != nil {
		return domain.BuyRequest{}, err
	}

	e.logger.WithFields(log.Fields{
		"request_id": updated.ID,
		"status":     updated.Status,
	}).Info("buy request closed")
	e.deliver(notifs)
	return updated, nil
}

// Get возвращает заявку её участнику.
func (e *engine) Get(ctx context.Context, requestID, callerID string) (domain.BuyRequest, error) {
	req, err := e.store.Repos().BuyRequests.Get(requestID)
	if err != nil {
		return domain.BuyRequest{}, err
	}
	if req.BuyerID != callerID && req.SellerID != callerID {
		return domain.BuyRequest{}, domain.ErrNotParticipant
	}
	return req, nil
}

// ListForUser возвращает заявки пользователя в заданной роли.
func (e *engine) ListForUser(ctx context.Context, userID, role string) ([]domain.BuyRequest, error) {
	return e.store.Repos().BuyRequests.ListByUser(userID, role)
}

// withConflictRetry выполняет единицу работы с повтором при version conflict.
// Каждая попытка перечитывает состояние заново, поэтому fn обязана быть
// повторяемой.
func (e *engine) withConflictRetry(ctx context.Context, operation string, fn func(r domain.RepositorySet) error) error {
	const maxRetries = 3
	const baseDelay = 10 * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		err := e.store.Within(ctx, fn)
		if err == nil {
			return nil
		}
		if !domain.IsVersionConflict(err) {
			return err
		}
		lastErr = err
		if attempt < maxRetries-1 {
			e.logger.WithFields(log.Fields{
				"operation": operation,
				"attempt":   attempt + 1,
			}).Warn("version conflict detected, retrying")
			time.Sleep(baseDelay * time.Duration(1<<uint(attempt)))
		}
	}
	return lastErr
}

func (e *engine) ensureConversation(r domain.RepositorySet, buyerID, sellerID, itemID string) (domain.Conversation, error) {
	conv, err := r.Conversations.FindByParticipants(buyerID, sellerID, itemID)
	if err == nil {
		return conv, nil
	}
	if err != domain.ErrConversationNotFound {
		return domain.Conversation{}, err
	}

	conv = domain.Conversation{
		ID:             uuid.NewString(),
		Participant1ID: buyerID,
		Participant2ID: sellerID,
		ItemID:         itemID,
		CreatedAt:      time.Now().UTC(),
	}
	if err := r.Conversations.Create(conv); err != nil {
		return domain.Conversation{}, err
	}
	return conv, nil
}

func (e *engine) emitEvent(r domain.RepositorySet, req domain.BuyRequest, eventType string) {
	payload, err := json.Marshal(req)
	if err != nil {
		e.logger.WithError(err).WithFields(log.Fields{
			"request_id": req.ID,
			"event":      eventType,
		}).Error("marshal event failed")
		return
	}
	msg := domain.OutboxMessage{
		AggregateType: "buy_request",
		AggregateID:   req.ID,
		EventType:     eventType,
		Payload:       payload,
	}
	if _, err := r.Outbox.Enqueue(msg); err != nil {
		e.logger.WithError(err).WithFields(log.Fields{
			"request_id": req.ID,
			"event":      eventType,
		}).Error("enqueue event failed")
	} else if e.metrics != nil {
		e.metrics.RecordOutboxEvent()
	}
}

func (e *engine) emitTransactionEvent(r domain.RepositorySet, tx domain.Transaction, eventType string) {
	payload, err := json.Marshal(tx)
	if err != nil {
		e.logger.WithError(err).WithFields(log.Fields{
			"transaction_id": tx.ID,
			"event":          eventType,
		}).Error("marshal event failed")
		return
	}
	msg := domain.OutboxMessage{
		AggregateType: "transaction",
		AggregateID:   tx.ID,
		EventType:     eventType,
		Payload:       payload,
	}
	if _, err := r.Outbox.Enqueue(msg); err != nil {
		e.logger.WithError(err).WithFields(log.Fields{
			"transaction_id": tx.ID,
			"event":          eventType,
		}).Error("enqueue event failed")
	} else if e.metrics != nil {
		e.metrics.RecordOutboxEvent()
	}

	event := domain.TimelineEvent{
		TransactionID: tx.ID,
		Type:          eventType,
		Occurred:      time.Now().UTC(),
	}
	if err := r.Timeline.Append(event); err != nil {
		e.logger.WithError(err).WithFields(log.Fields{
			"transaction_id": tx.ID,
			"event":          eventType,
		}).Warn("append timeline event failed")
	} else if e.metrics != nil {
		e.metrics.RecordTimelineEvent()
	}
}

func (e *engine) deliver(notifs []notification) {
	if e.notifier == nil {
		return
	}
	for _, n := range notifs {
		e.notifier.SendToUser(n.userID, n.event)
	}
}

func (e *engine) observe(operation string, start time.Time) {
	if e.metrics != nil {
		e.metrics.RecordOperationDuration(operation, time.Since(start))
	}
}

var _ Engine = (*engine)(nil)
