package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/alanyoungcy/predictionamm/internal/domain"
)

// KafkaConfig holds producer settings for the Kafka sink.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// messageWriter is the subset of *kafka.Writer used by KafkaSink.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes events as JSON messages keyed by market id, so all
// events for one market land on the same partition in order.
type KafkaSink struct {
	writer messageWriter
	topic  string
}

var _ domain.EventSink = (*KafkaSink)(nil)

// NewKafkaSink creates a sink writing to cfg.Topic.
func NewKafkaSink(cfg KafkaConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("events: kafka brokers not provided")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("events: kafka topic not provided")
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           timeout,
		ReadTimeout:            timeout,
	}
	return &KafkaSink{writer: w, topic: cfg.Topic}, nil
}

// Name identifies the sink in logs.
func (k *KafkaSink) Name() string { return "kafka:" + k.topic }

// Publish writes the batch in one call.
func (k *KafkaSink) Publish(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		value, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("events: marshal event %d: %w", e.Seq, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(strconv.FormatUint(e.MarketID, 10)),
			Value: value,
			Time:  e.Time(),
			Headers: []kafka.Header{
				{Key: "kind", Value: []byte(e.Kind)},
				{Key: "seq", Value: []byte(strconv.FormatUint(e.Seq, 10))},
			},
		})
	}
	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("events: kafka write: %w", err)
	}
	return nil
}

// Close flushes and closes the producer.
func (k *KafkaSink) Close() error {
	return k.writer.Close()
}
