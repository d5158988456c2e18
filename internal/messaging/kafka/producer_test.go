package kafka

import (
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/campusmarket/internal/domain"
)

func TestProducer_PublishEvent(t *testing.T) {
	// Создаем mock producer
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	// Настраиваем ожидания
	mockProducer.ExpectSendMessageAndSucceed()

	event := NewNotificationEnvelope("instance-1", "user-1", domain.Event{
		Type: domain.EventBuyRequestUpdate,
		Data: map[string]interface{}{"id": "req-1"},
	})

	// Публикуем событие
	err := producer.PublishEvent(TopicNotifications, "user-1", event)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// Проверяем, что все ожидания выполнены
	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_Error(t *testing.T) {
	// Создаем mock producer с ошибкой
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	// Настраиваем ожидание ошибки
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	event := NewNotificationEnvelope("instance-1", "user-1", domain.Event{
		Type: domain.EventTransactionUpdate,
	})

	// Публикуем событие
	err := producer.PublishEvent(TopicNotifications, "user-1", event)
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNewNotificationEnvelope(t *testing.T) {
	event := domain.Event{Type: domain.EventTransactionCreated, Data: map[string]interface{}{"id": "tx-1"}}
	envelope := NewNotificationEnvelope("instance-1", "user-7", event)

	if envelope.OriginInstance != "instance-1" {
		t.Errorf("expected origin instance-1, got %s", envelope.OriginInstance)
	}
	if envelope.UserID != "user-7" {
		t.Errorf("expected user-7, got %s", envelope.UserID)
	}
	if envelope.Event.Type != domain.EventTransactionCreated {
		t.Errorf("expected transaction_created, got %s", envelope.Event.Type)
	}

	// Проверяем, что timestamp установлен
	if envelope.Timestamp.IsZero() {
		t.Error("timestamp should not be zero")
	}
	if time.Since(envelope.Timestamp) > time.Second {
		t.Error("timestamp should be close to current time")
	}
}
