package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"bizledger/internal/receivables/application"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publishes status change events to a Kafka topic keyed by entry id.
type KafkaPublisher struct {
	writer messageWriter
}

// DefaultBatchTimeout caps how long a single event waits for its batch to fill.
// kafka-go defaults to one second, which every synchronous write would pay.
const DefaultBatchTimeout = 10 * time.Millisecond

// KafkaOption configures the underlying writer.
type KafkaOption func(*kafka.Writer)

// WithBatchTimeout overrides DefaultBatchTimeout.
func WithBatchTimeout(timeout time.Duration) KafkaOption {
	return func(w *kafka.Writer) {
		if timeout > 0 {
			w.BatchTimeout = timeout
		}
	}
}

// NewKafkaPublisher constructs a publisher for the given brokers and topic.
func NewKafkaPublisher(brokers []string, topic string, opts ...KafkaOption) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka publisher: no brokers")
	}
	if topic == "" {
		topic = application.EventTypeStatusChanged
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           DefaultBatchTimeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	for _, opt := range opts {
		opt(writer)
	}
	return &KafkaPublisher{writer: writer}, nil
}

func newKafkaPublisherWithWriter(writer messageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

// PublishStatusChanged writes the event as JSON.
func (p *KafkaPublisher) PublishStatusChanged(ctx context.Context, event application.StatusChanged) error {
	if p == nil || p.writer == nil {
		return errors.New("kafka publisher: nil writer")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.EntryID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "company_id", Value: []byte(event.CompanyID)},
		},
	})
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
