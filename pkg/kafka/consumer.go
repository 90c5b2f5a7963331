package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"

	"CoinTrend/pkg/logger"
)

// MessageHandler handles the messages of one topic.
type MessageHandler interface {
	Topic() string
	Handle(ctx context.Context, data []byte) error
}

type fetched struct {
	reader *kafka.Reader
	msg    kafka.Message
}

// Consumer reads every registered topic in one consumer group. Messages are sharded over
// workers by partition so each partition is handled in order.
type Consumer struct {
	cfg      ConsumerConfig
	log      *logger.Logger
	handlers map[string]MessageHandler
	hook     Hook

	readers []*kafka.Reader
	shards  []chan fetched
	dlq     *kafka.Writer

	cancel   context.CancelFunc
	fetchWG  sync.WaitGroup
	workWG   sync.WaitGroup
	stopOnce sync.Once
}

func NewConsumer(cfg ConsumerConfig, log *logger.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka consumer: no brokers")
	}
	if log == nil {
		log = logger.Nop()
	}
	cfg = cfg.withDefaults()
	consumerMetrics.init()

	c := &Consumer{
		cfg:      cfg,
		log:      log.With(logger.String("component", "kafka_consumer")),
		handlers: make(map[string]MessageHandler),
		hook:     HookChain(nil),
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Topic: cfg.DLQTopic, Balancer: &kafka.Hash{}}
	}
	return c, nil
}

// RegisterHandler must be called before Start. One handler per topic.
func (c *Consumer) RegisterHandler(h MessageHandler) error {
	if _, dup := c.handlers[h.Topic()]; dup {
		return fmt.Errorf("kafka consumer: topic %s already has a handler", h.Topic())
	}
	c.handlers[h.Topic()] = h
	return nil
}

// SetHook replaces the hook run around every attempt.
func (c *Consumer) SetHook(h Hook) {
	if h != nil {
		c.hook = h
	}
}

// Start launches the fetch loops and the workers. It does not block.
func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return errors.New("kafka consumer: nothing registered")
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	c.shards = make([]chan fetched, c.cfg.Workers)
	for i := range c.shards {
		c.shards[i] = make(chan fetched, c.cfg.BufferSize)
		c.workWG.Add(1)
		go c.work(ctx, c.shards[i])
	}
	for topic := range c.handlers {
		r := kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.Brokers,
			GroupID:  c.cfg.GroupID,
			Topic:    topic,
			MinBytes: c.cfg.MinBytes,
			MaxBytes: c.cfg.MaxBytes,
		})
		c.readers = append(c.readers, r)
		c.fetchWG.Add(1)
		go c.fetch(ctx, r)
	}

	c.log.Info("kafka consumer started",
		logger.String("group", c.cfg.GroupID),
		logger.Int("topics", len(c.readers)),
		logger.Int("workers", c.cfg.Workers))
	return nil
}

// Stop ends fetching, lets the workers finish what they hold and closes the readers.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		if c.cancel == nil {
			return
		}
		c.cancel()

		done := make(chan struct{})
		go func() {
			c.fetchWG.Wait()
			for _, ch := range c.shards {
				close(ch)
			}
			c.workWG.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("kafka consumer stop: %w", ctx.Err())
		}

		for _, r := range c.readers {
			if cerr := r.Close(); cerr != nil {
				c.log.Warn("close reader failed", logger.String("topic", r.Config().Topic), logger.Error(cerr))
			}
		}
		if c.dlq != nil {
			_ = c.dlq.Close()
		}
		c.log.Info("kafka consumer stopped")
	})
	return err
}

func (c *Consumer) fetch(ctx context.Context, r *kafka.Reader) {
	defer c.fetchWG.Done()
	topic := r.Config().Topic
	for ctx.Err() == nil {
		pollCtx, cancel := context.WithTimeout(ctx, c.cfg.PollTimeout)
		msg, err := r.FetchMessage(pollCtx)
		cancel()
		if err != nil {
			if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
				c.log.Warn("fetch failed", logger.String("topic", topic), logger.Error(err))
			}
			continue
		}
		shard := c.shards[msg.Partition%len(c.shards)]
		select {
		case shard <- fetched{reader: r, msg: msg}:
			consumerMetrics.backlog.WithLabelValues(topic).Set(float64(len(shard)))
		case <-ctx.Done():
			return
		}
	}
}

func (c *Consumer) work(ctx context.Context, in <-chan fetched) {
	defer c.workWG.Done()
	for f := range in {
		c.process(ctx, f)
	}
}

func (c *Consumer) process(ctx context.Context, f fetched) {
	topic := f.msg.Topic
	h := c.handlers[topic]
	if h == nil {
		return
	}
	started := time.Now()
	defer func() {
		consumerMetrics.handled.WithLabelValues(topic).Observe(time.Since(started).Seconds())
	}()

	var err error
	attempts := 0
	for attempts <= c.cfg.RetryMax {
		if attempts > 0 {
			select {
			case <-time.After(c.backoff(attempts)):
			case <-ctx.Done():
				// uncommitted: the group redelivers after restart
				return
			}
		}
		attempts++
		err = c.attempt(h, &Delivery{Topic: topic, Message: f.msg, Data: f.msg.Value, Attempt: attempts})
		if err == nil {
			break
		}
	}

	if err != nil {
		c.log.Error("kafka message dropped",
			logger.String("topic", topic),
			logger.Int("partition", f.msg.Partition),
			logger.Int64("offset", f.msg.Offset),
			logger.Int("attempts", attempts),
			logger.Error(err))
		if !c.deadLetter(f.msg) {
			return
		}
	}
	c.commit(f)
}

// attempt runs hooks and the handler once. Handler panics become errors.
func (c *Consumer) attempt(h MessageHandler, d *Delivery) (err error) {
	hctx, err := c.hook.Before(context.Background(), d)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
		c.hook.After(hctx, d, err)
	}()
	return h.Handle(hctx, d.Data)
}

func (c *Consumer) deadLetter(msg kafka.Message) bool {
	if c.dlq == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.dlq.WriteMessages(ctx, kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(append([]kafka.Header(nil), msg.Headers...),
			kafka.Header{Key: "source_topic", Value: []byte(msg.Topic)}),
	})
	if err != nil {
		c.log.Error("dead letter write failed", logger.String("dlq", c.cfg.DLQTopic), logger.Error(err))
		return false
	}
	return true
}

func (c *Consumer) commit(f fetched) {
	var err error
	for i := 1; i <= 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = f.reader.CommitMessages(ctx, f.msg)
		cancel()
		if err == nil {
			return
		}
		time.Sleep(c.backoff(i))
	}
	c.log.Error("commit failed", logger.String("topic", f.msg.Topic), logger.Int64("offset", f.msg.Offset), logger.Error(err))
}

// backoff doubles from BackoffMin up to BackoffMax and subtracts up to half of it at random.
func (c *Consumer) backoff(attempt int) time.Duration {
	d := c.cfg.BackoffMin
	for i := 1; i < attempt && d < c.cfg.BackoffMax; i++ {
		d *= 2
	}
	if d > c.cfg.BackoffMax {
		d = c.cfg.BackoffMax
	}
	return d - time.Duration(rand.Int63n(int64(d/2+1)))
}

var consumerMetrics consumerCollectors

type consumerCollectors struct {
	once    sync.Once
	backlog *prometheus.GaugeVec
	handled *prometheus.HistogramVec
}

func (m *consumerCollectors) init() {
	m.once.Do(func() {
		m.backlog = promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cointrend_kafka_consumer_backlog",
			Help: "Fetched messages waiting for a worker.",
		}, []string{"topic"})
		m.handled = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name: "cointrend_kafka_consumer_handle_seconds",
			Help: "Time from first attempt to commit or drop.",
		}, []string{"topic"})
	})
}
