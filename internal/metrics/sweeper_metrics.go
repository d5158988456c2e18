package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// SweeperMetrics содержит метрики фонового закрытия протухших заявок.
type SweeperMetrics struct {
	runs        *prometheus.CounterVec
	expired     prometheus.Counter
	lastExpired prometheus.Gauge
}

// NewSweeperMetrics создаёт метрики sweeper'а на реестре по умолчанию.
func NewSweeperMetrics() *SweeperMetrics {
	return newSweeperMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newSweeperMetricsWithRegisterer(registerer prometheus.Registerer) *SweeperMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &SweeperMetrics{
		runs: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "market_expiry_runs_total",
			Help: "Total number of expiry sweeper runs grouped by result.",
		}, []string{"result"}),
		expired: registerCounter(registerer, prometheus.CounterOpts{
			Name: "market_expiry_expired_total",
			Help: "Total number of buy requests expired by the sweeper.",
		}),
		lastExpired: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "market_expiry_last_expired",
			Help: "Number of buy requests expired during the last sweep.",
		}),
	}
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordSweep фиксирует успешный проход и число закрытых заявок.
func (m *SweeperMetrics) RecordSweep(expired int) {
	m.runs.WithLabelValues("ok").Inc()
	m.lastExpired.Set(float64(expired))
}

// RecordSweepError фиксирует проход, завершившийся ошибкой.
func (m *SweeperMetrics) RecordSweepError() { m.runs.WithLabelValues("error").Inc() }

// RecordExpiredBatch увеличивает счётчик закрытых заявок на размер порции.
func (m *SweeperMetrics) RecordExpiredBatch(n int) { m.expired.Add(float64(n)) }
