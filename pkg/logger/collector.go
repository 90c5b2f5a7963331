package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"sync"
	"time"
)

// Publisher ships a batch of aggregated entries. The kafka producer satisfies it.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

// CollectionConfig controls how often aggregated error entries are shipped.
type CollectionConfig struct {
	TimeInterval   time.Duration // default 30s
	CountThreshold int           // distinct entries forcing an early flush, default 100
	Topic          string
	Publisher      Publisher
	Service        string
}

// AggregatedLogEntry is one distinct entry and how often it was seen during the window.
type AggregatedLogEntry struct {
	Service   string                 `json:"service,omitempty"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// LogCollector deduplicates entries in memory and publishes them in batches.
type LogCollector struct {
	cfg CollectionConfig

	mu      sync.Mutex
	pending map[uint64]*AggregatedLogEntry

	inflight sync.WaitGroup
	stop     chan struct{}
	stopped  chan struct{}
	once     sync.Once
}

func NewLogCollector(cfg *CollectionConfig) *LogCollector {
	c := &LogCollector{
		cfg:     *cfg,
		pending: make(map[uint64]*AggregatedLogEntry),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	if c.cfg.TimeInterval <= 0 {
		c.cfg.TimeInterval = 30 * time.Second
	}
	if c.cfg.CountThreshold <= 0 {
		c.cfg.CountThreshold = 100
	}
	go c.loop()
	return c
}

// AddLog records one occurrence of an entry.
func (c *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	now := time.Now()
	id := entryID(level, message, caller, fields)

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.pending[id]; ok {
		e.Count++
		e.LastSeen = now
		return
	}
	c.pending[id] = &AggregatedLogEntry{
		Service:   c.cfg.Service,
		Level:     level,
		Message:   message,
		Fields:    fields,
		Caller:    caller,
		Count:     1,
		FirstSeen: now,
		LastSeen:  now,
	}
	if len(c.pending) >= c.cfg.CountThreshold {
		c.flushLocked()
	}
}

func entryID(level, message, caller string, fields map[string]interface{}) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00", level, message, caller)
	// json.Marshal sorts map keys, so equal field sets hash equally.
	if b, err := json.Marshal(fields); err == nil {
		h.Write(b)
	}
	return h.Sum64()
}

func (c *LogCollector) loop() {
	defer close(c.stopped)
	t := time.NewTicker(c.cfg.TimeInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
		case <-c.stop:
			c.flush()
			return
		}
		c.flush()
	}
}

func (c *LogCollector) flush() {
	c.mu.Lock()
	c.flushLocked()
	c.mu.Unlock()
}

func (c *LogCollector) flushLocked() {
	if len(c.pending) == 0 {
		return
	}
	batch := make([]AggregatedLogEntry, 0, len(c.pending))
	for _, e := range c.pending {
		batch = append(batch, *e)
	}
	c.pending = make(map[uint64]*AggregatedLogEntry)

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := c.cfg.Publisher.PublishMessage(ctx, c.cfg.Topic, batch); err != nil {
			fmt.Fprintf(os.Stderr, "log collector: publish %d entries to %s: %v\n", len(batch), c.cfg.Topic, err)
		}
	}()
}

// Close flushes what is pending and waits for in-flight publishes.
func (c *LogCollector) Close() {
	c.once.Do(func() { close(c.stop) })
	<-c.stopped
	c.inflight.Wait()
}
