package expiry

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/campusmarket/internal/domain"
	"github.com/vladislavdragonenkov/campusmarket/internal/metrics"
)

const (
	defaultSweepInterval = 1 * time.Hour
	defaultBatchSize     = 100
	// defaultTTL — срок жизни pending-заявки без ответа продавца.
	defaultTTL = 14 * 24 * time.Hour
)

// SweeperOptions задаёт параметры sweeper'а протухших заявок.
type SweeperOptions struct {
	Logger    *log.Entry
	Interval  time.Duration
	BatchSize int
	TTL       time.Duration
	Metrics   *metrics.SweeperMetrics
}

// Option настраивает Sweeper.
type Option func(*SweeperOptions)

// WithLogger задаёт logger для воркера.
func WithLogger(logger *log.Entry) Option {
	return func(opts *SweeperOptions) {
		opts.Logger = logger
	}
}

// WithInterval задаёт интервал между проходами.
func WithInterval(interval time.Duration) Option {
	return func(opts *SweeperOptions) {
		opts.Interval = interval
	}
}

// WithBatchSize задаёт размер порции заявок на один проход.
func WithBatchSize(batchSize int) Option {
	return func(opts *SweeperOptions) {
		opts.BatchSize = batchSize
	}
}

// WithTTL задаёт срок жизни pending-заявки.
func WithTTL(ttl time.Duration) Option {
	return func(opts *SweeperOptions) {
		opts.TTL = ttl
	}
}

// WithMetrics задаёт метрики sweeper'а. По умолчанию они регистрируются
// в реестре Prometheus по умолчанию.
func WithMetrics(m *metrics.SweeperMetrics) Option {
	return func(opts *SweeperOptions) {
		opts.Metrics = m
	}
}

// Sweeper периодически закрывает pending-заявки, оставшиеся без ответа
// продавца дольше TTL: статус expired, responded_at = время закрытия,
// обе стороны получают buy_request_update.
type Sweeper struct {
	store     domain.Store
	notifier  domain.Notifier
	logger    *log.Entry
	metrics   *metrics.SweeperMetrics
	interval  time.Duration
	batchSize int
	ttl       time.Duration
}

// NewSweeper создаёт sweeper протухших заявок.
func NewSweeper(store domain.Store, notifier domain.Notifier, options ...Option) *Sweeper {
	opts := SweeperOptions{
		Interval:  defaultSweepInterval,
		BatchSize: defaultBatchSize,
		TTL:       defaultTTL,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "expiry-sweeper")
	}

	if opts.Interval <= 0 {
		opts.Interval = defaultSweepInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewSweeperMetrics()
	}

	return &Sweeper{
		store:     store,
		notifier:  notifier,
		logger:    logger,
		metrics:   opts.Metrics,
		interval:  opts.Interval,
		batchSize: opts.BatchSize,
		ttl:       opts.TTL,
	}
}

// Run запускает периодические проходы до отмены ctx.
func (s *Sweeper) Run(ctx context.Context) {
	if s.store == nil {
		s.logger.Warn("expiry sweeper is disabled: store is nil")
		return
	}

	s.sweep(ctx, time.Now().UTC())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx, time.Now().UTC())
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context, now time.Time) {
	expired, err := s.SweepOnce(ctx, now)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.metrics.RecordSweepError()
		s.logger.WithError(err).Warn("expiry sweep failed")
		return
	}

	s.metrics.RecordSweep(expired)
	if expired > 0 {
		s.logger.WithField("expired", expired).Info("expiry sweep completed")
	}
}

// SweepOnce закрывает все заявки старше now-TTL порциями batchSize
// и возвращает число закрытых.
func (s *Sweeper) SweepOnce(ctx context.Context, now time.Time) (int, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	cutoff := now.Add(-s.ttl)

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		var (
			batch  int
			notifs []domain.BuyRequest
		)
		err := s.store.Within(ctx, func(r domain.RepositorySet) error {
			stale, err := r.BuyRequests.ListPendingOlderThan(cutoff, s.batchSize)
			if err != nil {
				return err
			}
			for _, req := range stale {
				req.Status = domain.BuyRequestStatusExpired
				respondedAt := now
				req.RespondedAt = &respondedAt
				if err := r.BuyRequests.Save(req); err != nil {
					return err
				}
				s.enqueueEvent(r, req)
				notifs = append(notifs, req)
			}
			batch = len(stale)
			return nil
		})
		if err != nil {
			return total, err
		}

		for _, req := range notifs {
			s.notify(req)
		}
		total += batch
		if batch > 0 {
			s.metrics.RecordExpiredBatch(batch)
		}

		if batch < s.batchSize {
			break
		}
	}

	return total, nil
}

func (s *Sweeper) enqueueEvent(r domain.RepositorySet, req domain.BuyRequest) {
	payload, err := json.Marshal(req)
	if err != nil {
		s.logger.WithError(err).WithField("request_id", req.ID).Error("marshal event failed")
		return
	}
	msg := domain.OutboxMessage{
		AggregateType: "buy_request",
		AggregateID:   req.ID,
		EventType:     "BuyRequestExpired",
		Payload:       payload,
	}
	if _, err := r.Outbox.Enqueue(msg); err != nil {
		s.logger.WithError(err).WithField("request_id", req.ID).Error("enqueue event failed")
	}
}

func (s *Sweeper) notify(req domain.BuyRequest) {
	if s.notifier == nil {
		return
	}
	event := domain.Event{Type: domain.EventBuyRequestUpdate, Data: req}
	s.notifier.SendToUser(req.BuyerID, event)
	s.notifier.SendToUser(req.SellerID, event)
}
