package transaction

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/campusmarket/internal/domain"
	"github.com/vladislavdragonenkov/campusmarket/internal/metrics"
)

// AppointmentInput — параметры встречи при открытии или обновлении сделки
// через create-with-appointment.
type AppointmentInput struct {
	ConversationID string
	ItemID         string
	MeetupTime     *time.Time
	MeetupPlace    string
	MeetupLat      *float64
	MeetupLng      *float64
}

// Engine описывает операции жизненного цикла сделок.
type Engine interface {
	// CreateAppointment — идемпотентный upsert по ключу (conversation, item):
	// открытая сделка получает новые параметры встречи, иначе открывается
	// новая. Второй результат сообщает, была ли сделка создана.
	CreateAppointment(ctx context.Context, callerID string, input AppointmentInput) (domain.Transaction, bool, error)
	// Update применяет частичное обновление: флаги подтверждений и поля
	// встречи. Собранная пара подтверждений завершает либо отменяет сделку
	// со всеми каскадами в той же единице работы.
	Update(ctx context.Context, transactionID, callerID string, upd domain.TransactionUpdate) (domain.Transaction, error)
	// Cancel — односторонняя отмена участником. Отмена уже отменённой
	// сделки — no-op, завершённой — ошибка состояния.
	Cancel(ctx context.Context, transactionID, callerID string) (domain.Transaction, error)
	Get(ctx context.Context, transactionID, callerID string) (domain.Transaction, error)
	ListByConversation(ctx context.Context, conversationID, callerID string) ([]domain.Transaction, error)
	Timeline(ctx context.Context, transactionID, callerID string) ([]domain.TimelineEvent, error)
}

type engine struct {
	store    domain.Store
	notifier domain.Notifier
	logger   *log.Entry
	metrics  *metrics.LifecycleMetrics
}

// NewEngine создаёт рабочий экземпляр движка сделок.
func NewEngine(store domain.Store, notifier domain.Notifier, logger *log.Entry) Engine {
	if logger == nil {
		logger = log.New().WithField("component", "transaction")
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
		logger = log.New().WithField("component", "transaction")
	}
	return &engine{
		store:    store,
		notifier: notifier,
		logger:   logger,
	}
}

type notification struct {
	userID string
	event  domain.Event
}

func (e *engine) CreateAppointment(ctx context.Context, callerID string, input AppointmentInput) (domain.Transaction, bool, error) {
	start := time.Now()
	defer e.observe("create_appointment", start)

	if input.ConversationID == "" {
		return domain.Transaction{}, false, domain.ErrConversationIDRequired
	}
	if input.ItemID == "" {
		return domain.Transaction{}, false, domain.ErrItemIDRequired
	}

	var (
		result  domain.Transaction
		created bool
		notifs  []notification
	)
	err := e.withConflictRetry(ctx, "create_appointment", func(r domain.RepositorySet) error {
		notifs = notifs[:0]
		created = false

		conv, err := r.Conversations.Get(input.ConversationID)
		if err != nil {
			return err
		}
		if !conv.HasParticipant(callerID) {
			return domain.ErrNotParticipant
		}

		existing, err := r.Transactions.FindInProgressByConversationItem(conv.ID, input.ItemID)
		if err == nil {
			applyMeetup(&existing, input)
			if err := r.Transactions.Save(existing); err != nil {
				return err
			}
			result = existing
			e.emitTransactionEvent(r, existing, "TransactionAppointmentUpdated")
			notifs = append(notifs, notification{
				userID: existing.OtherParticipant(callerID),
				event:  domain.Event{Type: domain.EventTransactionUpdate, Data: existing},
			})
			return nil
		}
		if err != domain.ErrTransactionNotFound {
			return err
		}

		item, err := r.Items.Get(input.ItemID)
		if err != nil {
			return err
		}
		if !conv.HasParticipant(item.SellerID) {
			return domain.ErrNotParticipant
		}
		buyerID := conv.OtherParticipant(item.SellerID)

		if _, err := r.Transactions.FindInProgressByItem(item.ID); err == nil {
			return domain.ErrTransactionInProgress
		} else if err != domain.ErrTransactionNotFound {
			return err
		}
		if item.Status != domain.ItemStatusAvailable {
			return domain.ErrItemUnavailable
		}

		// Если по паре (item, buyer) есть принятая заявка — привязываем её.
		var requestID string
		requests, err := r.BuyRequests.ListByItemAndBuyer(item.ID, buyerID)
		if err != nil {
			return err
		}
		for _, req := range requests {
			if req.Status == domain.BuyRequestStatusAccepted {
				requestID = req.ID
				break
			}
		}

		now := time.Now().UTC()
		tx := domain.Transaction{
			ID:             uuid.NewString(),
			ItemID:         item.ID,
			BuyerID:        buyerID,
			SellerID:       item.SellerID,
			ConversationID: conv.ID,
			BuyRequestID:   requestID,
			Status:         domain.TransactionStatusInProgress,
			CreatedAt:      now,
		}
		applyMeetup(&tx, input)
		if errs := tx.ValidateInvariants(); len(errs) > 0 {
			return errs[0]
		}
		if err := r.Transactions.Create(tx); err != nil {
			return err
		}

		item.Status = domain.ItemStatusReserved
		item.UpdatedAt = now
		if err := r.Items.Save(item); err != nil {
			return err
		}

		result = tx
		created = true
		e.emitTransactionEvent(r, tx, "TransactionOpened")
		notifs = append(notifs, notification{
			userID: tx.OtherParticipant(callerID),
			event:  domain.Event{Type: domain.EventTransactionCreated, Data: tx},
		})
		return nil
	})
	if err != nil {
		return domain.Transaction{}, false, err
	}

	if created && e.metrics != nil {
		e.metrics.RecordTransactionCreated()
	}
	e.logger.WithFields(log.Fields{
		"transaction_id": result.ID,
		"item_id":        result.ItemID,
		"created":        created,
	}).Info("appointment upserted")
	e.deliver(notifs)
	return result, created, nil
}

func (e *engine) Update(ctx context.Context, transactionID, callerID string, upd domain.TransactionUpdate) (domain.Transaction, error) {
	start := time.Now()
	defer e.observe("update", start)

	if upd.Empty() {
		return domain.Transaction{}, domain.ErrEmptyUpdate
	}

	var (
		result    domain.Transaction
		completed bool
		cancelled bool
		notifs    []notification
	)
	err := e.withConflictRetry(ctx, "update", func(r domain.RepositorySet) error {
		notifs = notifs[:0]
		completed, cancelled = false, false

		tx, err := r.Transactions.Get(transactionID)
		if err != nil {
			return err
		}
		if !tx.HasParticipant(callerID) {
			return domain.ErrNotParticipant
		}
		if tx.Status.Terminal() {
			return domain.ErrTransactionFinished
		}

		// Подтверждения — строго от своей стороны.
		if (upd.BuyerConfirmed != nil || upd.BuyerCancelConfirmed != nil) && callerID != tx.BuyerID {
			return domain.ErrNotBuyer
		}
		if (upd.SellerConfirmed != nil || upd.SellerCancelConfirmed != nil) && callerID != tx.SellerID {
			return domain.ErrNotSeller
		}

		if upd.BuyerConfirmed != nil {
			tx.BuyerConfirmed = *upd.BuyerConfirmed
		}
		if upd.SellerConfirmed != nil {
			tx.SellerConfirmed = *upd.SellerConfirmed
		}
		if upd.BuyerCancelConfirmed != nil {
			tx.BuyerCancelConfirmed = *upd.BuyerCancelConfirmed
		}
		if upd.SellerCancelConfirmed != nil {
			tx.SellerCancelConfirmed = *upd.SellerCancelConfirmed
		}
		if upd.MeetupTime != nil {
			tx.MeetupTime = upd.MeetupTime
		}
		if upd.ClearMeetupTime {
			tx.MeetupTime = nil
		}
		if upd.MeetupPlace != nil {
			tx.MeetupPlace = *upd.MeetupPlace
		}
		if upd.MeetupLat != nil {
			tx.MeetupLat = upd.MeetupLat
		}
		if upd.MeetupLng != nil {
			tx.MeetupLng = upd.MeetupLng
		}

		now := time.Now().UTC()
		// Завершение проверяется раньше отмены: при одновременно собранных
		// парах подтверждений выигрывает completed.
		switch {
		case tx.CompletionConfirmed():
			if err := e.complete(r, &tx, now, &notifs); err != nil {
				return err
			}
			completed = true
		case tx.CancellationConfirmed():
			if err := e.cancel(r, &tx, now, &notifs); err != nil {
				return err
			}
			cancelled = true
		default:
			if err := r.Transactions.Save(tx); err != nil {
				return err
			}
			e.emitTransactionEvent(r, tx, "TransactionUpdated")
		}

		result = tx
		notifs = append(notifs, notification{
			userID: tx.OtherParticipant(callerID),
			event:  domain.Event{Type: domain.EventTransactionUpdate, Data: tx},
		})
		return nil
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	if e.metrics != nil {
		if completed {
			e.metrics.RecordTransactionCompleted()
		}
		if cancelled {
			e.metrics.RecordTransactionCanceled()
		}
	}
	e.logger.WithFields(log.Fields{
		"transaction_id": result.ID,
		"status":         result.Status,
	}).Info("transaction updated")
	e.deliver(notifs)
	return result, nil
}

func (e *engine) Cancel(ctx context.Context, transactionID, callerID string) (domain.Transaction, error) {
	start := time.Now()
	defer e.observe("cancel", start)

	var (
		result    domain.Transaction
		cancelled bool
		notifs    []notification
	)
	err := e.withConflictRetry(ctx, "cancel", func(r domain.RepositorySet) error {
		notifs = notifs[:0]
		cancelled = false

		tx, err := r.Transactions.Get(transactionID)
		if err != nil {
			return err
		}
		if !tx.HasParticipant(callerID) {
			return domain.ErrNotParticipant
		}
		if tx.Status == domain.TransactionStatusCompleted {
			return domain.ErrTransactionCompleted
		}
		if tx.Status == domain.TransactionStatusCancelled {
			result = tx
			return nil
		}

		if callerID == tx.BuyerID {
			tx.BuyerCancelConfirmed = true
		} else {
			tx.SellerCancelConfirmed = true
		}

		now := time.Now().UTC()
		if err := e.cancel(r, &tx, now, &notifs); err != nil {
			return err
		}
		cancelled = true

		result = tx
		notifs = append(notifs, notification{
			userID: tx.OtherParticipant(callerID),
			event:  domain.Event{Type: domain.EventTransactionUpdate, Data: tx},
		})
		return nil
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	if cancelled && e.metrics != nil {
		e.metrics.RecordTransactionCanceled()
	}
	e.logger.WithFields(log.Fields{
		"transaction_id": result.ID,
		"caller_id":      callerID,
	}).Info("transaction cancelled")
	e.deliver(notifs)
	return result, nil
}

func (e *engine) Get(ctx context.Context, transactionID, callerID string) (domain.Transaction, error) {
	tx, err := e.store.Repos().Transactions.Get(transactionID)
	if err != nil {
		return domain.Transaction{}, err
	}
	if !tx.HasParticipant(callerID) {
		return domain.Transaction{}, domain.ErrNotParticipant
	}
	return tx, nil
}

func (e *engine) ListByConversation(ctx context.Context, conversationID, callerID string) ([]domain.Transaction, error) {
	repos := e.store.Repos()
	conv, err := repos.Conversations.Get(conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(callerID) {
		return nil, domain.ErrNotParticipant
	}
	return repos.Transactions.ListByConversation(conversationID)
}

// Timeline возвращает историю событий сделки её участнику.
func (e *engine) Timeline(ctx context.Context, transactionID, callerID string) ([]domain.TimelineEvent, error) {
	repos := e.store.Repos()
	tx, err := repos.Transactions.Get(transactionID)
	if err != nil {
		return nil, err
	}
	if !tx.HasParticipant(callerID) {
		return nil, domain.ErrNotParticipant
	}
	return repos.Timeline.List(transactionID)
}

// complete фиксирует завершение: товар продан, счётчик продаж продавца
// растёт, конкурирующие сделки и заявки по товару закрываются каскадом.
func (e *engine) complete(r domain.RepositorySet, tx *domain.Transaction, now time.Time, notifs *[]notification) error {
	tx.Status = domain.TransactionStatusCompleted
	tx.CompletedAt = &now
	if err := r.Transactions.Save(*tx); err != nil {
		return err
	}

	item, err := r.Items.Get(tx.ItemID)
	if err != nil {
		return err
	}
	item.Status = domain.ItemStatusSold
	item.UpdatedAt = now
	if err := r.Items.Save(item); err != nil {
		return err
	}

	if err := r.Users.IncrementTotalSales(tx.SellerID); err != nil && err != domain.ErrUserNotFound {
		return err
	}

	// Конкурирующие открытые сделки по товару отменяются вместе со своими
	// принятыми заявками.
	others, err := r.Transactions.ListInProgressByItem(tx.ItemID)
	if err != nil {
		return err
	}
	for _, other := range others {
		if other.ID == tx.ID {
			continue
		}
		other.Status = domain.TransactionStatusCancelled
		if err := r.Transactions.Save(other); err != nil {
			return err
		}
		e.emitTransactionEvent(r, other, "TransactionCancelled")
		*notifs = append(*notifs,
			notification{userID: other.BuyerID, event: domain.Event{Type: domain.EventTransactionUpdate, Data: other}},
			notification{userID: other.SellerID, event: domain.Event{Type: domain.EventTransactionUpdate, Data: other}},
		)
		if err := e.closeLinkedRequest(r, other.BuyRequestID, domain.BuyRequestStatusCancelled, now, notifs); err != nil {
			return err
		}
	}

	// Оставшиеся pending-заявки по проданному товару отклоняются.
	pending, err := r.BuyRequests.ListByItem(tx.ItemID, domain.BuyRequestStatusPending)
	if err != nil {
		return err
	}
	for _, req := range pending {
		req.Status = domain.BuyRequestStatusRejected
		req.RespondedAt = &now
		if err := r.BuyRequests.Save(req); err != nil {
			return err
		}
		e.emitRequestEvent(r, req, "BuyRequestRejected")
		*notifs = append(*notifs, notification{
			userID: req.BuyerID,
			event:  domain.Event{Type: domain.EventBuyRequestUpdate, Data: req},
		})
	}

	e.emitTransactionEvent(r, *tx, "TransactionCompleted")
	return nil
}

// cancel фиксирует отмену: reserved-товар снова доступен, связанная
// принятая заявка отменяется.
func (e *engine) cancel(r domain.RepositorySet, tx *domain.Transaction, now time.Time, notifs *[]notification) error {
	tx.Status = domain.TransactionStatusCancelled
	tx.CompletedAt = &now
	if err := r.Transactions.Save(*tx); err != nil {
		return err
	}

	item, err := r.Items.Get(tx.ItemID)
	if err != nil {
		return err
	}
	if item.Status == domain.ItemStatusReserved {
		item.Status = domain.ItemStatusAvailable
		item.UpdatedAt = now
		if err := r.Items.Save(item); err != nil {
			return err
		}
	}

	if err := e.closeLinkedRequest(r, tx.BuyRequestID, domain.BuyRequestStatusCancelled, now, notifs); err != nil {
		return err
	}

	// Страховка: принятые заявки пары (item, buyer) без прямой ссылки
	// тоже закрываются, чтобы не блокировать повторные заявки.
	requests, err := r.BuyRequests.ListByItemAndBuyer(tx.ItemID, tx.BuyerID)
	if err != nil {
		return err
	}
	for _, req := range requests {
		if req.Status != domain.BuyRequestStatusAccepted || req.ID == tx.BuyRequestID {
			continue
		}
		req.Status = domain.BuyRequestStatusCancelled
		req.RespondedAt = &now
		if err := r.BuyRequests.Save(req); err != nil {
			return err
		}
		e.emitRequestEvent(r, req, "BuyRequestCancelled")
		*notifs = append(*notifs, notification{
			userID: req.BuyerID,
			event:  domain.Event{Type: domain.EventBuyRequestUpdate, Data: req},
		})
	}

	e.emitTransactionEvent(r, *tx, "TransactionCancelled")
	return nil
}

func (e *engine) closeLinkedRequest(r domain.RepositorySet, requestID string, status domain.BuyRequestStatus, now time.Time, notifs *[]notification) error {
	if requestID == "" {
		return nil
	}
	req, err := r.BuyRequests.Get(requestID)
	if err != nil {
		if err == domain.ErrBuyRequestNotFound {
			return nil
		}
		return err
	}
	if req.Status != domain.BuyRequestStatusAccepted {
		return nil
	}
	req.Status = status
	req.RespondedAt = &now
	if err := r.BuyRequests.Save(req); err != nil {
		return err
	}
	e.emitRequestEvent(r, req, "BuyRequestCancelled")
	*notifs = append(*notifs, notification{
		userID: req.BuyerID,
		event:  domain.Event{Type: domain.EventBuyRequestUpdate, Data: req},
	})
	return nil
}

func applyMeetup(tx *domain.Transaction, input AppointmentInput) {
	tx.MeetupTime = input.MeetupTime
	tx.MeetupPlace = input.MeetupPlace
	tx.MeetupLat = input.MeetupLat
	tx.MeetupLng = input.MeetupLng
}

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

func (e *engine) emitRequestEvent(r domain.RepositorySet, req domain.BuyRequest, eventType string) {
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
