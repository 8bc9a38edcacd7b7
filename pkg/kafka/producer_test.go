package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/TrainingPlatform/pkg/logger"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func header(msg kafka.Message, key string) string {
	return headerCarrier{headers: &msg.Headers}.Get(key)
}

func revoked(t *testing.T, ctx context.Context) *Event {
	t.Helper()
	e, err := NewEvent(ctx, "session.revoked", identity, map[string]string{"scope": "all"})
	require.NoError(t, err)
	return e
}

func TestProducer_Publish(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(
		logger.WithCorrelationID(context.Background(), "corr-1"),
		trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled}),
	)

	w := &fakeWriter{}
	p := NewProducerWithWriter(w, nil, logger.Discard())
	topic := Topic("session", "revoked")
	before := testutil.ToFloat64(publishedTotal.WithLabelValues(topic, outcomeOK))

	require.NoError(t, p.Publish(ctx, topic, revoked(t, ctx)))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, topic, msg.Topic)
	assert.Equal(t, "id-1", string(msg.Key))
	assert.Equal(t, "session.revoked", header(msg, HeaderEventType))
	assert.Equal(t, "auth-service", header(msg, HeaderSource))
	assert.Equal(t, "corr-1", header(msg, HeaderCorrelationID))
	assert.Contains(t, header(msg, "traceparent"), "4bf92f3577b34da6a3ce929d0e0e4736")

	decoded, err := DecodeEvent(msg.Value)
	require.NoError(t, err)
	assert.Equal(t, "session.revoked", decoded.Type)

	assert.Equal(t, before+1, testutil.ToFloat64(publishedTotal.WithLabelValues(topic, outcomeOK)))
}

func TestProducer_PublishError(t *testing.T) {
	p := NewProducerWithWriter(&fakeWriter{err: errors.New("leader not available")}, nil, logger.Discard())
	topic := "publish-error-test"
	before := testutil.ToFloat64(publishedTotal.WithLabelValues(topic, outcomeError))

	err := p.Publish(context.Background(), topic, revoked(t, context.Background()))

	assert.ErrorContains(t, err, "leader not available")
	assert.Equal(t, before+1, testutil.ToFloat64(publishedTotal.WithLabelValues(topic, outcomeError)))
	assert.Zero(t, testutil.ToFloat64(publishedTotal.WithLabelValues(topic, outcomeOK)))
}

func TestProducer_NoCorrelationHeader(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, nil, nil)

	require.NoError(t, p.Publish(context.Background(), "t", revoked(t, context.Background())))
	assert.Empty(t, header(w.msgs[0], HeaderCorrelationID))
}

func TestProducer_Ping(t *testing.T) {
	p := NewProducerWithWriter(&fakeWriter{}, nil, nil)
	assert.ErrorContains(t, p.Ping(context.Background()), "no brokers configured")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p = NewProducerWithWriter(&fakeWriter{}, []string{"127.0.0.1:1"}, nil)
	assert.ErrorContains(t, p.Ping(ctx), "no broker reachable")
}

func TestProducer_Close(t *testing.T) {
	w := &fakeWriter{}
	require.NoError(t, NewProducerWithWriter(w, nil, nil).Close())
	assert.True(t, w.closed)
}

func TestDefaultProducerConfig(t *testing.T) {
	cfg := DefaultProducerConfig([]string{"kafka:9092"})
	assert.Equal(t, []string{"kafka:9092"}, cfg.Brokers)
	assert.False(t, cfg.Async)
	assert.Positive(t, cfg.BatchSize)
}

func TestHeaderCarrier(t *testing.T) {
	var headers []kafka.Header
	c := headerCarrier{headers: &headers}

	c.Set("a", "1")
	c.Set("b", "2")
	c.Set("a", "3")

	assert.Equal(t, "3", c.Get("a"))
	assert.Empty(t, c.Get("missing"))
	assert.Equal(t, []string{"a", "b"}, c.Keys())
	assert.Len(t, headers, 2)
}
