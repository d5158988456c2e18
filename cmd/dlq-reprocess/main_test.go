package main

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/campusmarket/internal/messaging/kafka"
)

func TestParseBrokers(t *testing.T) {
	brokers := parseBrokers(" broker-1:9092, ,broker-2:9092 ")
	if len(brokers) != 2 {
		t.Fatalf("unexpected brokers count: got=%d want=2", len(brokers))
	}
	if brokers[0] != "broker-1:9092" || brokers[1] != "broker-2:9092" {
		t.Fatalf("unexpected brokers: %+v", brokers)
	}
}

func TestToCandidate_ConsumerFailure(t *testing.T) {
	raw, err := json.Marshal(map[string]any{
		"original_topic": kafka.TopicNotifications,
		"original_key":   "user-1",
		"original_value": `{"event_type":"buy_request.created"}`,
	})
	if err != nil {
		t.Fatalf("marshal payload failed: %v", err)
	}

	got, ok, err := toCandidate(&sarama.ConsumerMessage{Value: raw}, kafka.TopicMarketEvents)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected replay candidate")
	}
	if got.topic != kafka.TopicNotifications {
		t.Fatalf("unexpected topic: %s", got.topic)
	}
	if got.key != "user-1" {
		t.Fatalf("unexpected key: %s", got.key)
	}
	if string(got.value) != `{"event_type":"buy_request.created"}` {
		t.Fatalf("unexpected value: %s", got.value)
	}
}

func TestToCandidate_ConsumerFailureWithoutTopicUsesDefault(t *testing.T) {
	raw, err := json.Marshal(map[string]any{
		"original_key":   "item-7",
		"original_value": `{"event_type":"item.reserved"}`,
	})
	if err != nil {
		t.Fatalf("marshal payload failed: %v", err)
	}

	got, ok, err := toCandidate(&sarama.ConsumerMessage{Value: raw}, kafka.TopicMarketEvents)
	if err != nil || !ok {
		t.Fatalf("expected candidate, got ok=%v err=%v", ok, err)
	}
	if got.topic != kafka.TopicMarketEvents {
		t.Fatalf("unexpected topic: %s", got.topic)
	}
}

func TestToCandidate_OutboxFailure(t *testing.T) {
	inner, err := json.Marshal(map[string]any{
		"outbox_id":      "out-1",
		"aggregate_type": "transaction",
		"aggregate_id":   "txn-1",
		"event_type":     "transaction.completed",
		"payload":        json.RawMessage(`{"transaction_id":"txn-1"}`),
		"publish_error":  "kafka unavailable",
	})
	if err != nil {
		t.Fatalf("marshal inner payload failed: %v", err)
	}
	raw, err := json.Marshal(eventEnvelope{
		ID:            "out-1",
		AggregateType: "transaction",
		AggregateID:   "txn-1",
		EventType:     "transaction.completed",
		Payload:       inner,
	})
	if err != nil {
		t.Fatalf("marshal envelope failed: %v", err)
	}

	got, ok, err := toCandidate(&sarama.ConsumerMessage{Value: raw}, kafka.TopicMarketEvents)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected replay candidate")
	}
	if got.topic != kafka.TopicMarketEvents {
		t.Fatalf("unexpected topic: %s", got.topic)
	}
	if got.key != "txn-1" {
		t.Fatalf("unexpected key: %s", got.key)
	}

	var replay republishedEnvelope
	if err := json.Unmarshal(got.value, &replay); err != nil {
		t.Fatalf("unmarshal replay envelope failed: %v", err)
	}
	if replay.ID != "out-1" || replay.EventType != "transaction.completed" {
		t.Fatalf("unexpected replay envelope: %+v", replay)
	}
	if string(replay.Payload) != `{"transaction_id":"txn-1"}` {
		t.Fatalf("unexpected replay payload: %s", replay.Payload)
	}
}

func TestToCandidate_UnsupportedMessage(t *testing.T) {
	_, ok, err := toCandidate(&sarama.ConsumerMessage{Value: []byte("not-json")}, kafka.TopicMarketEvents)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected no candidate for unsupported message")
	}
}

type fakeCluster struct {
	partitions []int32
	oldest     int64
	newest     int64
	closed     bool
}

func (f *fakeCluster) GetOffset(topic string, partition int32, at int64) (int64, error) {
	if at == sarama.OffsetOldest {
		return f.oldest, nil
	}
	return f.newest, nil
}

func (f *fakeCluster) Partitions(topic string) ([]int32, error) {
	return f.partitions, nil
}

func (f *fakeCluster) Close() error {
	f.closed = true
	return nil
}

type fakeReader struct {
	messages chan *sarama.ConsumerMessage
	errors   chan *sarama.ConsumerError
}

func (f *fakeReader) Messages() <-chan *sarama.ConsumerMessage { return f.messages }
func (f *fakeReader) Errors() <-chan *sarama.ConsumerError     { return f.errors }
func (f *fakeReader) Close() error                             { return nil }

type fakeSource struct {
	reader *fakeReader
}

func (f *fakeSource) ConsumePartition(topic string, partition int32, offset int64) (partitionReader, error) {
	return f.reader, nil
}

func (f *fakeSource) Close() error { return nil }

type fakeSink struct {
	sent []*sarama.ProducerMessage
	err  error
}

func (f *fakeSink) SendMessage(msg *sarama.ProducerMessage) (int32, int64, error) {
	if f.err != nil {
		return 0, 0, f.err
	}
	f.sent = append(f.sent, msg)
	return 0, int64(len(f.sent)), nil
}

func (f *fakeSink) Close() error { return nil }

func dlqMessage(t *testing.T, offset int64, topic, key, value string) *sarama.ConsumerMessage {
	t.Helper()

	raw, err := json.Marshal(map[string]any{
		"original_topic": topic,
		"original_key":   key,
		"original_value": value,
	})
	if err != nil {
		t.Fatalf("marshal dlq message failed: %v", err)
	}
	return &sarama.ConsumerMessage{Topic: kafka.TopicDeadLetter, Offset: offset, Value: raw}
}

func testReplayConfig(execute bool) replayConfig {
	return replayConfig{
		brokers:     []string{"broker:9092"},
		sourceTopic: kafka.TopicDeadLetter,
		targetTopic: kafka.TopicMarketEvents,
		limit:       10,
		execute:     execute,
		idleTimeout: 100 * time.Millisecond,
	}
}

func TestReplayAll_DryRunDoesNotPublish(t *testing.T) {
	reader := &fakeReader{
		messages: make(chan *sarama.ConsumerMessage, 2),
		errors:   make(chan *sarama.ConsumerError, 1),
	}
	reader.messages <- dlqMessage(t, 0, kafka.TopicMarketEvents, "item-1", `{"event_type":"item.sold"}`)
	reader.messages <- dlqMessage(t, 1, kafka.TopicMarketEvents, "item-2", `{"event_type":"item.sold"}`)

	cluster := &fakeCluster{partitions: []int32{0}, oldest: 0, newest: 2}
	sink := &fakeSink{}

	if err := replayAll(context.Background(), testReplayConfig(false), cluster, &fakeSource{reader: reader}, sink); err != nil {
		t.Fatalf("replayAll failed: %v", err)
	}
	if len(sink.sent) != 0 {
		t.Fatalf("dry-run must not publish, sent %d messages", len(sink.sent))
	}
}

func TestReplayAll_ExecutePublishesCandidates(t *testing.T) {
	reader := &fakeReader{
		messages: make(chan *sarama.ConsumerMessage, 3),
		errors:   make(chan *sarama.ConsumerError, 1),
	}
	reader.messages <- dlqMessage(t, 0, kafka.TopicMarketEvents, "item-1", `{"event_type":"item.sold"}`)
	reader.messages <- &sarama.ConsumerMessage{Topic: kafka.TopicDeadLetter, Offset: 1, Value: []byte("garbage")}
	reader.messages <- dlqMessage(t, 2, kafka.TopicNotifications, "user-1", `{"event_type":"review.created"}`)

	cluster := &fakeCluster{partitions: []int32{0}, oldest: 0, newest: 3}
	sink := &fakeSink{}

	if err := replayAll(context.Background(), testReplayConfig(true), cluster, &fakeSource{reader: reader}, sink); err != nil {
		t.Fatalf("replayAll failed: %v", err)
	}
	if len(sink.sent) != 2 {
		t.Fatalf("expected 2 replayed messages, got %d", len(sink.sent))
	}
	if sink.sent[0].Topic != kafka.TopicMarketEvents {
		t.Fatalf("unexpected first topic: %s", sink.sent[0].Topic)
	}
	if sink.sent[1].Topic != kafka.TopicNotifications {
		t.Fatalf("unexpected second topic: %s", sink.sent[1].Topic)
	}
}

func TestReplayAll_ExecuteRequiresSink(t *testing.T) {
	cluster := &fakeCluster{partitions: []int32{0}}
	if err := replayAll(context.Background(), testReplayConfig(true), cluster, &fakeSource{}, nil); err == nil {
		t.Fatal("expected error when producer is missing in execute mode")
	}
}

func TestReplayAll_PublishErrorStopsReplay(t *testing.T) {
	reader := &fakeReader{
		messages: make(chan *sarama.ConsumerMessage, 1),
		errors:   make(chan *sarama.ConsumerError, 1),
	}
	reader.messages <- dlqMessage(t, 0, kafka.TopicMarketEvents, "item-1", `{"event_type":"item.sold"}`)

	cluster := &fakeCluster{partitions: []int32{0}, oldest: 0, newest: 1}
	sink := &fakeSink{err: fmt.Errorf("broker down")}

	if err := replayAll(context.Background(), testReplayConfig(true), cluster, &fakeSource{reader: reader}, sink); err == nil {
		t.Fatal("expected publish error to abort replay")
	}
}

func TestReplayAll_LimitBoundsScan(t *testing.T) {
	reader := &fakeReader{
		messages: make(chan *sarama.ConsumerMessage, 5),
		errors:   make(chan *sarama.ConsumerError, 1),
	}
	for i := 0; i < 5; i++ {
		reader.messages <- dlqMessage(t, int64(i), kafka.TopicMarketEvents, fmt.Sprintf("item-%d", i), `{"event_type":"item.sold"}`)
	}

	cluster := &fakeCluster{partitions: []int32{0}, oldest: 0, newest: 5}
	sink := &fakeSink{}

	cfg := testReplayConfig(true)
	cfg.limit = 2

	if err := replayAll(context.Background(), cfg, cluster, &fakeSource{reader: reader}, sink); err != nil {
		t.Fatalf("replayAll failed: %v", err)
	}
	if len(sink.sent) != 2 {
		t.Fatalf("expected replay limited to 2 messages, got %d", len(sink.sent))
	}
}

func TestRun_UsesConnectKafkaSeam(t *testing.T) {
	original := connectKafka
	defer func() { connectKafka = original }()

	reader := &fakeReader{
		messages: make(chan *sarama.ConsumerMessage, 1),
		errors:   make(chan *sarama.ConsumerError, 1),
	}
	reader.messages <- dlqMessage(t, 0, kafka.TopicMarketEvents, "item-1", `{"event_type":"item.sold"}`)

	cluster := &fakeCluster{partitions: []int32{0}, oldest: 0, newest: 1}
	sink := &fakeSink{}
	connectKafka = func(cfg replayConfig) (kafkaCluster, readerSource, messageSink, error) {
		return cluster, &fakeSource{reader: reader}, sink, nil
	}

	if err := run(context.Background(), testReplayConfig(true)); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(sink.sent) != 1 {
		t.Fatalf("expected 1 replayed message, got %d", len(sink.sent))
	}
	if !cluster.closed {
		t.Fatal("expected kafka client to be closed")
	}
}
