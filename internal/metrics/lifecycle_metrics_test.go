package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestLifecycleMetrics_Counters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newLifecycleMetricsWithRegisterer(registry)

	m.RecordRequestCreated()
	m.RecordRequestCreated()
	m.RecordRequestAccepted()
	m.RecordTransactionCreated()
	m.RecordTransactionCompleted()
	m.RecordReviewCreated()

	if got := testutil.ToFloat64(m.requestsCreated); got != 2 {
		t.Fatalf("expected 2 requests created, got %v", got)
	}
	if got := testutil.ToFloat64(m.requestsAccepted); got != 1 {
		t.Fatalf("expected 1 request accepted, got %v", got)
	}
	if got := testutil.ToFloat64(m.openTransactions); got != 0 {
		t.Fatalf("expected 0 open transactions after completion, got %v", got)
	}
}

func TestLifecycleMetrics_DoubleRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := newLifecycleMetricsWithRegisterer(registry)
	second := newLifecycleMetricsWithRegisterer(registry)

	first.RecordTransactionCreated()
	second.RecordTransactionCreated()

	// Повторная регистрация переиспользует коллекторы, а не паникует.
	if got := testutil.ToFloat64(first.transactionsCreated); got != 2 {
		t.Fatalf("expected shared counter value 2, got %v", got)
	}
}

func TestLifecycleMetrics_OperationDuration(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newLifecycleMetricsWithRegisterer(registry)

	m.RecordOperationDuration("accept", 25*time.Millisecond)

	count := testutil.CollectAndCount(m.operationDuration)
	if count != 1 {
		t.Fatalf("expected 1 histogram series, got %d", count)
	}
}
