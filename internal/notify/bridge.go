package notify

import (
	"context"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/campusmarket/internal/domain"
	"github.com/vladislavdragonenkov/campusmarket/internal/messaging/kafka"
)

// KafkaBridge транслирует push-события между инстансами через topic
// market.notifications: локальные события публикуются, чужие — доставляются
// в локальный Hub. Конверт несёт id инстанса-источника, поэтому свой же
// echo отбрасывается.
type KafkaBridge struct {
	instanceID string
	producer   *kafka.Producer
	consumer   *kafka.Consumer
	hub        *Hub
	logger     *log.Entry
}

// NewKafkaBridge создаёт мост поверх существующего producer'а.
func NewKafkaBridge(producer *kafka.Producer, logger *log.Entry) *KafkaBridge {
	if logger == nil {
		logger = log.New().WithField("component", "notify-bridge")
	}
	return &KafkaBridge{
		instanceID: uuid.NewString(),
		producer:   producer,
		logger:     logger,
	}
}

// InstanceID возвращает идентификатор этого инстанса в конвертах событий.
func (b *KafkaBridge) InstanceID() string {
	return b.instanceID
}

// PublishNotification отправляет событие в topic market.notifications.
func (b *KafkaBridge) PublishNotification(userID string, event domain.Event) error {
	envelope := kafka.NewNotificationEnvelope(b.instanceID, userID, event)
	return b.producer.PublishEvent(kafka.TopicNotifications, userID, envelope)
}

// Start подписывает мост на topic market.notifications и доставляет
// чужие события в hub. groupID должен быть уникальным на инстанс:
// каждый инстанс читает весь поток.
func (b *KafkaBridge) Start(ctx context.Context, brokers []string, groupID string, hub *Hub) error {
	b.hub = hub

	consumer, err := kafka.NewConsumer(brokers, groupID, []string{kafka.TopicNotifications}, b.handleMessage)
	if err != nil {
		return err
	}
	b.consumer = consumer
	return consumer.Start(ctx)
}

// Stop останавливает consumer моста.
func (b *KafkaBridge) Stop() error {
	if b.consumer == nil {
		return nil
	}
	return b.consumer.Stop()
}

func (b *KafkaBridge) handleMessage(ctx context.Context, message *sarama.ConsumerMessage) error {
	envelope, err := kafka.ParseNotificationEnvelope(message)
	if err != nil {
		b.logger.WithError(err).Warn("malformed notification envelope")
		return nil // не переигрываем мусор
	}
	if envelope.OriginInstance == b.instanceID {
		return nil
	}
	if b.hub != nil {
		b.hub.DeliverLocal(envelope.UserID, envelope.Event)
	}
	return nil
}

var _ Publisher = (*KafkaBridge)(nil)
