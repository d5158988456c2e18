// Утилита dlq-reprocess переигрывает сообщения из market.dlq обратно в
// рабочие топики. По умолчанию работает в режиме dry-run и только печатает
// кандидатов на повторную публикацию.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/campusmarket/internal/messaging/kafka"
)

const (
	defaultScanLimit   = 100
	defaultIdleTimeout = 2 * time.Second
)

type replayConfig struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
}

// candidate — сообщение, готовое к повторной публикации.
type candidate struct {
	topic string
	key   string
	value []byte
}

// consumerFailure — формат, в котором consumer складывает необработанные
// сообщения в DLQ.
type consumerFailure struct {
	OriginalTopic string `json:"original_topic"`
	OriginalKey   string `json:"original_key"`
	OriginalValue string `json:"original_value"`
}

// eventEnvelope — конверт событий, которые публикует outbox-паблишер.
type eventEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
}

// outboxFailure — payload DLQ-сообщения от outbox-воркера.
type outboxFailure struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
}

type republishedEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

type kafkaCluster interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type partitionReader interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type readerSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionReader, error)
	Close() error
}

type messageSink interface {
	SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error)
	Close() error
}

type saramaReaderSource struct {
	consumer sarama.Consumer
}

func (s saramaReaderSource) ConsumePartition(topic string, partition int32, offset int64) (partitionReader, error) {
	pc, err := s.consumer.ConsumePartition(topic, partition, offset)
	if err != nil {
		return nil, err
	}
	return pc, nil
}

func (s saramaReaderSource) Close() error {
	if s.consumer == nil {
		return nil
	}
	return s.consumer.Close()
}

// connectKafka подменяется в тестах.
var connectKafka = func(cfg replayConfig) (kafkaCluster, readerSource, messageSink, error) {
	consumerConfig := sarama.NewConfig()
	consumerConfig.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, consumerConfig)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create kafka client: %w", err)
	}

	rawConsumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	source := saramaReaderSource{consumer: rawConsumer}

	if !cfg.execute {
		return client, source, nil, nil
	}

	producerConfig := sarama.NewConfig()
	producerConfig.Producer.RequiredAcks = sarama.WaitForAll
	producerConfig.Producer.Retry.Max = 5
	producerConfig.Producer.Return.Successes = true
	producerConfig.Producer.Compression = sarama.CompressionSnappy
	producerConfig.Producer.Idempotent = true
	producerConfig.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(cfg.brokers, producerConfig)
	if err != nil {
		_ = source.Close()
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return client, source, producer, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := readConfig()
	if err != nil {
		fail("%v", err)
	}

	if err := run(context.Background(), cfg); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func readConfig() (replayConfig, error) {
	var (
		brokersRaw string
		cfg        replayConfig
	)

	flag.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: MARKET_KAFKA_BROKERS)")
	flag.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetter, "DLQ source topic")
	flag.StringVar(&cfg.targetTopic, "target-topic", kafka.TopicMarketEvents, "target topic for replay")
	flag.IntVar(&cfg.limit, "limit", defaultScanLimit, "max number of messages to scan/replay")
	flag.BoolVar(&cfg.execute, "execute", false, "execute replay; default is dry-run")
	flag.BoolVar(&cfg.fromNewest, "from-newest", false, "scan latest messages first (bounded by limit)")
	flag.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "idle timeout per partition")
	flag.Parse()

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = os.Getenv("MARKET_KAFKA_BROKERS")
	}

	cfg.brokers = parseBrokers(brokersRaw)
	if len(cfg.brokers) == 0 {
		return replayConfig{}, fmt.Errorf("kafka brokers are required (-brokers or MARKET_KAFKA_BROKERS)")
	}
	if strings.TrimSpace(cfg.sourceTopic) == "" {
		return replayConfig{}, fmt.Errorf("source-topic is required")
	}
	if strings.TrimSpace(cfg.targetTopic) == "" {
		return replayConfig{}, fmt.Errorf("target-topic is required")
	}
	if cfg.limit <= 0 {
		return replayConfig{}, fmt.Errorf("limit must be > 0")
	}
	if cfg.idleTimeout <= 0 {
		return replayConfig{}, fmt.Errorf("idle-timeout must be > 0")
	}

	return cfg, nil
}

func parseBrokers(raw string) []string {
	chunks := strings.Split(raw, ",")
	brokers := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		broker := strings.TrimSpace(chunk)
		if broker == "" {
			continue
		}
		brokers = append(brokers, broker)
	}
	return brokers
}

func run(ctx context.Context, cfg replayConfig) error {
	log.WithFields(log.Fields{
		"source_topic": cfg.sourceTopic,
		"target_topic": cfg.targetTopic,
		"limit":        cfg.limit,
		"execute":      cfg.execute,
		"from_newest":  cfg.fromNewest,
	}).Info("starting dlq replay")

	cluster, source, sink, err := connectKafka(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if sink != nil {
			_ = sink.Close()
		}
		if source != nil {
			_ = source.Close()
		}
		if cluster != nil {
			_ = cluster.Close()
		}
	}()

	return replayAll(ctx, cfg, cluster, source, sink)
}

func replayAll(ctx context.Context, cfg replayConfig, cluster kafkaCluster, source readerSource, sink messageSink) error {
	if cluster == nil || source == nil {
		return fmt.Errorf("kafka client and consumer are required")
	}
	if cfg.execute && sink == nil {
		return fmt.Errorf("producer is required in execute mode")
	}

	partitions, err := cluster.Partitions(cfg.sourceTopic)
	if err != nil {
		return fmt.Errorf("get partitions for topic %s: %w", cfg.sourceTopic, err)
	}
	if len(partitions) == 0 {
		log.WithField("topic", cfg.sourceTopic).Warn("source topic has no partitions")
		return nil
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	var total partitionStats
	for _, partition := range partitions {
		if total.processed >= cfg.limit {
			break
		}

		stats, err := scanPartition(ctx, cfg, cluster, source, sink, partition, cfg.limit-total.processed)
		if err != nil {
			return err
		}

		total.processed += stats.processed
		total.replayed += stats.replayed
		total.skipped += stats.skipped
	}

	mode := "dry-run"
	if cfg.execute {
		mode = "execute"
	}

	log.WithFields(log.Fields{
		"mode":      mode,
		"processed": total.processed,
		"replayed":  total.replayed,
		"skipped":   total.skipped,
	}).Info("dlq replay finished")

	return nil
}

type partitionStats struct {
	processed int
	replayed  int
	skipped   int
}

func scanPartition(
	ctx context.Context,
	cfg replayConfig,
	cluster kafkaCluster,
	source readerSource,
	sink messageSink,
	partition int32,
	limit int,
) (partitionStats, error) {
	var stats partitionStats
	if limit <= 0 {
		return stats, nil
	}

	oldest, err := cluster.GetOffset(cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := cluster.GetOffset(cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	startOffset := oldest
	if cfg.fromNewest {
		startOffset = newest - int64(limit)
		if startOffset < oldest {
			startOffset = oldest
		}
	}

	reader, err := source.ConsumePartition(cfg.sourceTopic, partition, startOffset)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = reader.Close() }()

	endOffset := newest
	idleTimer := time.NewTimer(cfg.idleTimeout)
	defer idleTimer.Stop()

	for stats.processed < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case err := <-reader.Errors():
			if err != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, err)
			}
		case msg, ok := <-reader.Messages():
			if !ok || msg == nil {
				return stats, nil
			}

			if !idleTimer.Stop() {
				select {
				case <-idleTimer.C:
				default:
				}
			}
			idleTimer.Reset(cfg.idleTimeout)

			if msg.Offset >= endOffset {
				return stats, nil
			}

			replay, ok, err := toCandidate(msg, cfg.targetTopic)
			if err != nil {
				stats.processed++
				stats.skipped++
				log.WithError(err).WithFields(log.Fields{
					"partition": msg.Partition,
					"offset":    msg.Offset,
				}).Warn("skip unsupported dlq message")
				continue
			}
			if !ok {
				stats.processed++
				stats.skipped++
				continue
			}

			if cfg.execute {
				if err := publishCandidate(sink, replay); err != nil {
					return stats, fmt.Errorf("publish replay message: %w", err)
				}
			} else {
				log.WithFields(log.Fields{
					"partition":    msg.Partition,
					"offset":       msg.Offset,
					"target_topic": replay.topic,
					"key":          replay.key,
				}).Info("dlq replay candidate")
			}

			stats.replayed++
			stats.processed++

			if msg.Offset+1 >= endOffset {
				return stats, nil
			}
		case <-idleTimer.C:
			return stats, nil
		}
	}

	return stats, nil
}

func publishCandidate(sink messageSink, msg candidate) error {
	if sink == nil {
		return fmt.Errorf("producer is nil")
	}

	_, _, err := sink.SendMessage(&sarama.ProducerMessage{
		Topic:     msg.topic,
		Key:       sarama.StringEncoder(msg.key),
		Value:     sarama.ByteEncoder(msg.value),
		Timestamp: time.Now().UTC(),
	})
	return err
}

// toCandidate восстанавливает исходное сообщение из двух поддерживаемых
// форматов DLQ: consumer-ошибок push-уведомлений и outbox-ошибок.
func toCandidate(msg *sarama.ConsumerMessage, defaultTopic string) (candidate, bool, error) {
	var failure consumerFailure
	if err := json.Unmarshal(msg.Value, &failure); err == nil && failure.OriginalValue != "" {
		topic := strings.TrimSpace(failure.OriginalTopic)
		if topic == "" {
			topic = defaultTopic
		}
		return candidate{
			topic: topic,
			key:   failure.OriginalKey,
			value: []byte(failure.OriginalValue),
		}, true, nil
	}

	var envelope eventEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		return candidate{}, false, nil
	}
	if len(envelope.Payload) == 0 {
		return candidate{}, false, nil
	}

	var outboxPayload outboxFailure
	if err := json.Unmarshal(envelope.Payload, &outboxPayload); err != nil {
		return candidate{}, false, fmt.Errorf("decode outbox dlq payload: %w", err)
	}
	if len(outboxPayload.Payload) == 0 {
		return candidate{}, false, fmt.Errorf("outbox dlq payload does not contain original event payload")
	}

	replay := republishedEnvelope{
		ID:            firstNonEmpty(outboxPayload.OutboxID, envelope.ID),
		AggregateType: firstNonEmpty(outboxPayload.AggregateType, envelope.AggregateType),
		AggregateID:   firstNonEmpty(outboxPayload.AggregateID, envelope.AggregateID),
		EventType:     firstNonEmpty(outboxPayload.EventType, envelope.EventType),
		Payload:       outboxPayload.Payload,
		PublishedAt:   time.Now().UTC(),
	}
	encoded, err := json.Marshal(replay)
	if err != nil {
		return candidate{}, false, fmt.Errorf("encode replay envelope: %w", err)
	}

	key := replay.AggregateID
	if key == "" {
		key = replay.ID
	}

	return candidate{
		topic: defaultTopic,
		key:   key,
		value: encoded,
	}, true, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
