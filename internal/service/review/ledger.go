package review

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/campusmarket/internal/domain"
	"github.com/vladislavdragonenkov/campusmarket/internal/metrics"
)

// CreateInput — параметры нового отзыва.
type CreateInput struct {
	TransactionID string
	Rating        int
	Comment       string
}

// Ledger описывает операции над отзывами и агрегированным рейтингом.
type Ledger interface {
	// Create сохраняет отзыв участника завершённой сделки о второй стороне
	// и пересчитывает рейтинг reviewee в той же единице работы.
	Create(ctx context.Context, callerID string, input CreateInput) (domain.Review, error)
	// Respond добавляет ответ reviewee на отзыв.
	Respond(ctx context.Context, reviewID, callerID, text string) (domain.Review, error)
	// Delete удаляет отзыв его автором и пересчитывает рейтинг reviewee.
	Delete(ctx context.Context, reviewID, callerID string) error
	Get(ctx context.Context, reviewID string) (domain.Review, error)
	ListForUser(ctx context.Context, revieweeID string) ([]domain.Review, error)
	ListForItem(ctx context.Context, itemID string) ([]domain.Review, error)
}

type ledger struct {
	store   domain.Store
	logger  *log.Entry
	metrics *metrics.LifecycleMetrics
}

// NewLedger создаёт рабочий экземпляр реестра отзывов.
func NewLedger(store domain.Store, logger *log.Entry) Ledger {
	if logger == nil {
		logger = log.New().WithField("component", "review")
	}
	return &ledger{
		store:   store,
		logger:  logger,
		metrics: metrics.NewLifecycleMetrics(),
	}
}

// NewLedgerWithoutMetrics создаёт реестр без метрик (для тестов).
func NewLedgerWithoutMetrics(store domain.Store, logger *log.Entry) Ledger {
	if logger == nil {
		logger = log.New().WithField("component", "review")
	}
	return &ledger{
		store:  store,
		logger: logger,
	}
}

func (l *ledger) Create(ctx context.Context, callerID string, input CreateInput) (domain.Review, error) {
	start := time.Now()
	defer l.observe("create", start)

	var created domain.Review
	err := l.store.Within(ctx, func(r domain.RepositorySet) error {
		tx, err := r.Transactions.Get(input.TransactionID)
		if err != nil {
			return err
		}
		if !tx.HasParticipant(callerID) {
			return domain.ErrNotParticipant
		}
		if tx.Status != domain.TransactionStatusCompleted {
			return domain.ErrTransactionNotCompleted
		}

		now := time.Now().UTC()
		created = domain.Review{
			ID:            uuid.NewString(),
			TransactionID: tx.ID,
			ItemID:        tx.ItemID,
			ReviewerID:    callerID,
			RevieweeID:    tx.OtherParticipant(callerID),
			Rating:        input.Rating,
			Comment:       input.Comment,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if errs := created.ValidateInvariants(); len(errs) > 0 {
			return errs[0]
		}
		if err := r.Reviews.Create(created); err != nil {
			return err
		}
		if err := l.recomputeRating(r, created.RevieweeID); err != nil {
			return err
		}
		l.emitEvent(r, created, "ReviewCreated")
		return nil
	})
	if err != nil {
		return domain.Review{}, err
	}

	if l.metrics != nil {
		l.metrics.RecordReviewCreated()
	}
	l.logger.WithFields(log.Fields{
		"review_id":   created.ID,
		"reviewee_id": created.RevieweeID,
		"rating":      created.Rating,
	}).Info("review created")
	return created, nil
}

func (l *ledger) Respond(ctx context.Context, reviewID, callerID, text string) (domain.Review, error) {
	start := time.Now()
	defer l.observe("respond", start)

	if text == "" {
		return domain.Review{}, domain.ErrResponseTextRequired
	}

	var updated domain.Review
	err := l.store.Within(ctx, func(r domain.RepositorySet) error {
		review, err := r.Reviews.Get(reviewID)
		if err != nil {
			return err
		}
		if review.RevieweeID != callerID {
			return domain.ErrNotReviewee
		}
		review.Response = text
		review.UpdatedAt = time.Now().UTC()
		if err := r.Reviews.Save(review); err != nil {
			return err
		}
		updated = review
		return nil
	})
	if err != nil {
		return domain.Review{}, err
	}
	return updated, nil
}

func (l *ledger) Delete(ctx context.Context, reviewID, callerID string) error {
	start := time.Now()
	defer l.observe("delete", start)

	err := l.store.Within(ctx, func(r domain.RepositorySet) error {
		review, err := r.Reviews.Get(reviewID)
		if err != nil {
			return err
		}
		if review.ReviewerID != callerID {
			return domain.ErrNotReviewer
		}
		if err := r.Reviews.Delete(review.ID); err != nil {
			return err
		}
		if err := l.recomputeRating(r, review.RevieweeID); err != nil {
			return err
		}
		l.emitEvent(r, review, "ReviewDeleted")
		return nil
	})
	if err != nil {
		return err
	}

	if l.metrics != nil {
		l.metrics.RecordReviewDeleted()
	}
	l.logger.WithField("review_id", reviewID).Info("review deleted")
	return nil
}

func (l *ledger) Get(ctx context.Context, reviewID string) (domain.Review, error) {
	return l.store.Repos().Reviews.Get(reviewID)
}

func (l *ledger) ListForUser(ctx context.Context, revieweeID string) ([]domain.Review, error) {
	return l.store.Repos().Reviews.ListByReviewee(revieweeID)
}

func (l *ledger) ListForItem(ctx context.Context, itemID string) ([]domain.Review, error) {
	return l.store.Repos().Reviews.ListByItem(itemID)
}

// recomputeRating перезаписывает рейтинг пользователя средним по всем его
// полученным оценкам, округлённым до двух знаков. Без отзывов рейтинг 0.0.
func (l *ledger) recomputeRating(r domain.RepositorySet, revieweeID string) error {
	reviews, err := r.Reviews.ListByReviewee(revieweeID)
	if err != nil {
		return err
	}

	var rating float64
	if len(reviews) > 0 {
		var sum int
		for _, review := range reviews {
			sum += review.Rating
		}
		rating = math.Round(float64(sum)/float64(len(reviews))*100) / 100
	}

	if err := r.Users.SetRating(revieweeID, rating); err != nil && err != domain.ErrUserNotFound {
		return err
	}
	return nil
}

func (l *ledger) emitEvent(r domain.RepositorySet, review domain.Review, eventType string) {
	payload, err := json.Marshal(review)
	if err != nil {
		l.logger.WithError(err).WithFields(log.Fields{
			"review_id": review.ID,
			"event":     eventType,
		}).Error("marshal event failed")
		return
	}
	msg := domain.OutboxMessage{
		AggregateType: "review",
		AggregateID:   review.ID,
		EventType:     eventType,
		Payload:       payload,
	}
	if _, err := r.Outbox.Enqueue(msg); err != nil {
		l.logger.WithError(err).WithFields(log.Fields{
			"review_id": review.ID,
			"event":     eventType,
		}).Error("enqueue event failed")
	} else if l.metrics != nil {
		l.metrics.RecordOutboxEvent()
	}
}

func (l *ledger) observe(operation string, start time.Time) {
	if l.metrics != nil {
		l.metrics.RecordOperationDuration(operation, time.Since(start))
	}
}

var _ Ledger = (*ledger)(nil)
