package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
)

// Header keys set on every published message besides trace context.
const (
	HeaderEventType     = "event_type"
	HeaderSource        = "source"
	HeaderCorrelationID = "correlation_id"
)

// ProducerConfig configures the underlying kafka-go writer.
type ProducerConfig struct {
	Brokers      []string
	BatchSize    int
	BatchTimeout time.Duration
	Async        bool
}

// DefaultProducerConfig favours latency over throughput: auth events are
// rare and the writer is synchronous.
func DefaultProducerConfig(brokers []string) ProducerConfig {
	return ProducerConfig{
		Brokers:      brokers,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
	}
}

// MessageWriter is the part of *kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes events as JSON messages keyed by aggregate ID, so all
// events of one identity land on one partition in order.
type Producer struct {
	writer  MessageWriter
	brokers []string
	logger  *slog.Logger
}

func NewProducer(cfg ProducerConfig, logger *slog.Logger) *Producer {
	return NewProducerWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		Async:                  cfg.Async,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}, cfg.Brokers, logger)
}

// NewProducerWithWriter is NewProducer over an existing writer.
func NewProducerWithWriter(w MessageWriter, brokers []string, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{writer: w, brokers: brokers, logger: logger}
}

// Publish writes event to topic and waits for all in-sync replicas.
func (p *Producer) Publish(ctx context.Context, topic string, event *Event) error {
	msg, err := encode(ctx, topic, event)
	if err != nil {
		return err
	}

	start := time.Now()
	err = p.writer.WriteMessages(ctx, msg)
	publishDuration.WithLabelValues(topic).Observe(time.Since(start).Seconds())

	if err != nil {
		publishedTotal.WithLabelValues(topic, outcomeError).Inc()
		p.logger.ErrorContext(ctx, "kafka publish failed",
			slog.String("topic", topic),
			slog.String("event_type", event.Type),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("publish %s to %s: %w", event.Type, topic, err)
	}
	publishedTotal.WithLabelValues(topic, outcomeOK).Inc()

	p.logger.DebugContext(ctx, "kafka event published",
		slog.String("topic", topic),
		slog.String("event_type", event.Type),
		slog.String("aggregate_id", event.AggregateID),
	)
	return nil
}

func encode(ctx context.Context, topic string, event *Event) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode %s event: %w", event.Type, err)
	}

	headers := []kafka.Header{
		{Key: HeaderEventType, Value: []byte(event.Type)},
		{Key: HeaderSource, Value: []byte(event.Source)},
	}
	if event.CorrelationID != "" {
		headers = append(headers, kafka.Header{Key: HeaderCorrelationID, Value: []byte(event.CorrelationID)})
	}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{headers: &headers})

	return kafka.Message{
		Topic:   topic,
		Key:     []byte(event.AggregateID),
		Value:   value,
		Headers: headers,
	}, nil
}

// Ping reports whether any configured broker answers a metadata request.
func (p *Producer) Ping(ctx context.Context) error {
	if len(p.brokers) == 0 {
		return errors.New("kafka: no brokers configured")
	}

	var errs []error
	for _, addr := range p.brokers {
		conn, err := kafka.DialContext(ctx, "tcp", addr)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		_, err = conn.Brokers()
		_ = conn.Close()
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return fmt.Errorf("kafka: no broker reachable: %w", errors.Join(errs...))
}

// Close flushes pending messages and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
