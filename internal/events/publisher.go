// Package events publishes run lifecycle events to Kafka and consumes run
// requests for the worker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/helixir/keyword-hunter/internal/config"
	"github.com/helixir/keyword-hunter/internal/domain"
)

// Header keys set on every published message.
const (
	HeaderEventType = "event_type"
	HeaderEventID   = "event_id"
)

// Publisher sends domain events somewhere.
type Publisher interface {
	Publish(ctx context.Context, events ...*domain.Event) error
	Close() error
}

// Observer receives publish outcomes. observability.Metrics satisfies it.
type Observer interface {
	ObserveEventPublished(eventType string, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveEventPublished(string, error) {}

// messageWriter is the subset of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to one topic, keyed by aggregate ID so every
// event of a run lands on the same partition in order.
type KafkaPublisher struct {
	writer   messageWriter
	topic    string
	observer Observer
	logger   zerolog.Logger
}

// NewKafkaWriter builds a writer for topic from cfg.
func NewKafkaWriter(cfg config.KafkaConfig, topic string) *kafka.Writer {
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 10 * time.Millisecond
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           batchTimeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
}

// NewKafkaPublisher wraps w. obs may be nil.
func NewKafkaPublisher(w messageWriter, topic string, obs Observer, logger zerolog.Logger) *KafkaPublisher {
	if obs == nil {
		obs = nopObserver{}
	}
	return &KafkaPublisher{
		writer:   w,
		topic:    topic,
		observer: obs,
		logger:   logger.With().Str("component", "event_publisher").Str("topic", topic).Logger(),
	}
}

// Publish encodes and writes events in one batch.
func (p *KafkaPublisher) Publish(ctx context.Context, events ...*domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		msg, err := EncodeMessage(ev)
		if err != nil {
			p.observer.ObserveEventPublished(ev.EventType, err)
			return err
		}
		msgs = append(msgs, msg)
	}

	err := p.writer.WriteMessages(ctx, msgs...)
	for _, ev := range events {
		p.observer.ObserveEventPublished(ev.EventType, err)
	}
	if err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}

	for _, ev := range events {
		p.logger.Debug().
			Str("event_type", ev.EventType).
			Str("aggregate_id", ev.AggregateID).
			Msg("event published")
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// EncodeMessage turns an event into a Kafka message.
func EncodeMessage(ev *domain.Event) (kafka.Message, error) {
	if ev == nil {
		return kafka.Message{}, fmt.Errorf("event is nil")
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode event %s: %w", ev.EventID, err)
	}
	return kafka.Message{
		Key:   []byte(ev.AggregateID),
		Value: value,
		Time:  ev.CreatedAt,
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(ev.EventType)},
			{Key: HeaderEventID, Value: []byte(ev.EventID)},
		},
	}, nil
}

// DecodeMessage parses a message written by EncodeMessage.
func DecodeMessage(msg kafka.Message) (*domain.Event, error) {
	var ev domain.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return &ev, nil
}

// NoopPublisher discards events. It is used when Kafka is disabled.
type NoopPublisher struct{}

// Publish implements Publisher.
func (NoopPublisher) Publish(context.Context, ...*domain.Event) error { return nil }

// Close implements Publisher.
func (NoopPublisher) Close() error { return nil }
