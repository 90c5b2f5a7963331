package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// TraceHeader carries the id that TraceHook puts into the handler context.
const TraceHeader = "trace_id"

type traceKey struct{}

// ContextWithTrace makes Publish reuse id instead of generating one.
func ContextWithTrace(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

// TraceFromContext returns the trace id set by ContextWithTrace or TraceHook.
func TraceFromContext(ctx context.Context) string {
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}

// Producer publishes to Kafka through one kafka-go writer shared by all topics.
type Producer struct {
	w           *kafka.Writer
	compression string
}

func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka producer: no brokers")
	}
	cfg = cfg.withDefaults()
	producerMetrics.init()

	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     cfg.balancer(),
			RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
			Compression:  cfg.compression(),
			MaxAttempts:  cfg.MaxAttempts,
			WriteTimeout: cfg.WriteTimeout,
			BatchSize:    cfg.BatchSize,
			BatchTimeout: cfg.BatchTimeout,
			Async:        cfg.Async,
		},
		compression: cfg.Compression,
	}, nil
}

// Publish writes one message. []byte and string values are sent as is, anything else as JSON.
// Every message carries a trace header, taken from ctx when present.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	body, err := encode(value)
	if err != nil {
		return err
	}
	trace := TraceFromContext(ctx)
	if trace == "" {
		trace = uuid.NewString()
	}

	started := time.Now()
	err = p.w.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     key,
		Value:   body,
		Time:    started,
		Headers: []kafka.Header{{Key: TraceHeader, Value: []byte(trace)}},
	})
	producerMetrics.observe(topic, p.compression, len(body), time.Since(started), err)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// PublishMessage publishes an unkeyed message.
func (p *Producer) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.Publish(ctx, topic, nil, payload)
}

func (p *Producer) Close() error {
	if p == nil || p.w == nil {
		return nil
	}
	return p.w.Close()
}

func encode(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode kafka value: %w", err)
	}
	return b, nil
}

var producerMetrics producerCollectors

type producerCollectors struct {
	once     sync.Once
	messages *prometheus.CounterVec
	bytes    *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func (m *producerCollectors) init() {
	m.once.Do(func() {
		m.messages = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cointrend_kafka_producer_messages_total",
			Help: "Messages published to Kafka by result.",
		}, []string{"topic", "compression", "result"})
		m.bytes = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cointrend_kafka_producer_bytes_total",
			Help: "Payload bytes published to Kafka.",
		}, []string{"topic"})
		m.latency = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cointrend_kafka_producer_publish_seconds",
			Help:    "Time spent in WriteMessages.",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"})
	})
}

func (m *producerCollectors) observe(topic, compression string, size int, took time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.messages.WithLabelValues(topic, compression, result).Inc()
	m.bytes.WithLabelValues(topic).Add(float64(size))
	m.latency.WithLabelValues(topic).Observe(took.Seconds())
}
