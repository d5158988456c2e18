package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LifecycleMetrics содержит метрики жизненного цикла заявок и сделок.
type LifecycleMetrics struct {
	// Счётчики операций по заявкам
	requestsCreated  prometheus.Counter
	requestsAccepted prometheus.Counter
	requestsRejected prometheus.Counter
	requestsCanceled prometheus.Counter
	requestsExpired  prometheus.Counter

	// Счётчики операций по сделкам
	transactionsCreated   prometheus.Counter
	transactionsCompleted prometheus.Counter
	transactionsCanceled  prometheus.Counter

	// Счётчики отзывов
	reviewsCreated prometheus.Counter
	reviewsDeleted prometheus.Counter

	// Гистограмма времени выполнения операций движков
	operationDuration *prometheus.HistogramVec

	// Счётчики событий timeline/outbox
	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter

	// Gauge для открытых сделок
	openTransactions prometheus.Gauge
}

// NewLifecycleMetrics создаёт новый экземпляр метрик жизненного цикла.
func NewLifecycleMetrics() *LifecycleMetrics {
	return newLifecycleMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newLifecycleMetricsWithRegisterer(registerer prometheus.Registerer) *LifecycleMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &LifecycleMetrics{
		requestsCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "market_buy_requests_created_total",
			Help: "Total number of buy requests created",
		}),
		requestsAccepted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "market_buy_requests_accepted_total",
			Help: "Total number of buy requests accepted by sellers",
		}),
		requestsRejected: registerCounter(registerer, prometheus.CounterOpts{
			Name: "market_buy_requests_rejected_total",
			Help: "Total number of buy requests rejected (including cascades)",
		}),
		requestsCanceled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "market_buy_requests_canceled_total",
			Help: "Total number of buy requests canceled (including cascades)",
		}),
		requestsExpired: registerCounter(registerer, prometheus.CounterOpts{
			Name: "market_buy_requests_expired_total",
			Help: "Total number of stale buy requests expired by the sweeper",
		}),
		transactionsCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "market_transactions_created_total",
			Help: "Total number of transactions opened",
		}),
		transactionsCompleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "market_transactions_completed_total",
			Help: "Total number of transactions completed by mutual confirmation",
		}),
		transactionsCanceled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "market_transactions_canceled_total",
			Help: "Total number of transactions canceled (mutual or unilateral)",
		}),
		reviewsCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "market_reviews_created_total",
			Help: "Total number of reviews created",
		}),
		reviewsDeleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "market_reviews_deleted_total",
			Help: "Total number of reviews deleted by their authors",
		}),
		operationDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "market_engine_operation_duration_seconds",
			Help:    "Duration of engine operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "market_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "market_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
		openTransactions: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "market_open_transactions",
			Help: "Number of currently open (in_progress) transactions",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordRequestCreated увеличивает счётчик созданных заявок.
func (m *LifecycleMetrics) RecordRequestCreated() { m.requestsCreated.Inc() }

// RecordRequestAccepted увеличивает счётчик принятых заявок.
func (m *LifecycleMetrics) RecordRequestAccepted() { m.requestsAccepted.Inc() }

// RecordRequestRejected увеличивает счётчик отклонённых заявок.
func (m *LifecycleMetrics) RecordRequestRejected() { m.requestsRejected.Inc() }

// RecordRequestCanceled увеличивает счётчик отозванных заявок.
func (m *LifecycleMetrics) RecordRequestCanceled() { m.requestsCanceled.Inc() }

// RecordRequestExpired увеличивает счётчик протухших заявок.
func (m *LifecycleMetrics) RecordRequestExpired() { m.requestsExpired.Inc() }

// RecordTransactionCreated увеличивает счётчик открытых сделок и gauge.
func (m *LifecycleMetrics) RecordTransactionCreated() {
	m.transactionsCreated.Inc()
	m.openTransactions.Inc()
}

// RecordTransactionCompleted увеличивает счётчик завершённых сделок.
func (m *LifecycleMetrics) RecordTransactionCompleted() {
	m.transactionsCompleted.Inc()
	m.openTransactions.Dec()
}

// RecordTransactionCanceled увеличивает счётчик отменённых сделок.
func (m *LifecycleMetrics) RecordTransactionCanceled() {
	m.transactionsCanceled.Inc()
	m.openTransactions.Dec()
}

// RecordReviewCreated увеличивает счётчик созданных отзывов.
func (m *LifecycleMetrics) RecordReviewCreated() { m.reviewsCreated.Inc() }

// RecordReviewDeleted увеличивает счётчик удалённых отзывов.
func (m *LifecycleMetrics) RecordReviewDeleted() { m.reviewsDeleted.Inc() }

// RecordOperationDuration записывает время выполнения операции движка.
func (m *LifecycleMetrics) RecordOperationDuration(operation string, duration time.Duration) {
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *LifecycleMetrics) RecordTimelineEvent() { m.timelineEvents.Inc() }

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *LifecycleMetrics) RecordOutboxEvent() { m.outboxEvents.Inc() }
