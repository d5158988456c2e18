package kafka

import (
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/campusmarket/internal/domain"
)

func TestOutboxPublisher_Publish(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndSucceed()

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-outbox-publisher-test"),
	}
	publisher := NewOutboxPublisher(producer, TopicMarketEvents)

	err := publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: "transaction",
		AggregateID:   "tx-123",
		EventType:     "TransactionCompleted",
		Payload:       []byte(`{"status":"completed"}`),
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_PublishProducerError(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-outbox-publisher-test"),
	}
	publisher := NewOutboxPublisher(producer, TopicMarketEvents)

	err := publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-2",
		AggregateType: "transaction",
		AggregateID:   "tx-234",
		EventType:     "TransactionCompleted",
		Payload:       []byte(`{"status":"cancelled"}`),
	})
	if err == nil {
		t.Fatal("expected publish error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_PublishNilProducer(t *testing.T) {
	t.Parallel()

	publisher := NewOutboxPublisher(nil, TopicMarketEvents)
	if err := publisher.Publish(domain.OutboxMessage{ID: "outbox-3"}); err == nil {
		t.Fatal("expected error for nil producer")
	}
}
