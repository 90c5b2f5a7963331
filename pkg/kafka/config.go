package kafka

import (
	"time"

	"github.com/segmentio/kafka-go"
)

// ProducerConfig configures NewProducer. Zero fields take the defaults of withDefaults.
type ProducerConfig struct {
	Brokers      []string
	RequiredAcks int    // -1 waits for all in-sync replicas
	Compression  string // gzip | snappy | lz4 | zstd
	MaxAttempts  int
	WriteTimeout time.Duration
	BatchSize    int
	BatchTimeout time.Duration
	Async        bool
	// HashByKey keeps all messages of one key on one partition.
	HashByKey bool
}

func (c ProducerConfig) withDefaults() ProducerConfig {
	if c.RequiredAcks == 0 {
		c.RequiredAcks = int(kafka.RequireAll)
	}
	if c.Compression == "" {
		c.Compression = "gzip"
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = 50 * time.Millisecond
	}
	return c
}

func (c ProducerConfig) balancer() kafka.Balancer {
	if c.HashByKey {
		return &kafka.Hash{}
	}
	return &kafka.LeastBytes{}
}

func (c ProducerConfig) compression() kafka.Compression {
	switch c.Compression {
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	}
	return kafka.Gzip
}

// ConsumerConfig configures NewConsumer.
type ConsumerConfig struct {
	Brokers []string
	GroupID string
	// Workers handle messages concurrently. One partition always lands on the same worker.
	Workers    int
	BufferSize int // per worker
	RetryMax   int
	BackoffMin time.Duration
	BackoffMax time.Duration
	// DLQTopic receives messages whose retries are exhausted. Without it they are left uncommitted.
	DLQTopic    string
	MinBytes    int
	MaxBytes    int
	PollTimeout time.Duration
}

func (c ConsumerConfig) withDefaults() ConsumerConfig {
	if c.GroupID == "" {
		c.GroupID = "cointrend"
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 16
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.BackoffMin <= 0 {
		c.BackoffMin = 50 * time.Millisecond
	}
	if c.BackoffMax < c.BackoffMin {
		c.BackoffMax = 40 * c.BackoffMin
	}
	if c.MinBytes <= 0 {
		c.MinBytes = 1
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 << 20
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = 3 * time.Second
	}
	return c
}
