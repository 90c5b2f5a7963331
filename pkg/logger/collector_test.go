package logger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type capturePublisher struct {
	mu      sync.Mutex
	topic   string
	batches [][]AggregatedLogEntry
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.batches = append(p.batches, payload.([]AggregatedLogEntry))
	return nil
}

func TestLogCollector_AggregatesDuplicates(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 10,
		Topic:          "logs",
		Publisher:      pub,
		Service:        "cointrend",
	})

	fields := map[string]interface{}{"symbol": "BTC/USDT"}
	c.AddLog("error", "persist failed", fields, "a.go:1")
	c.AddLog("error", "persist failed", fields, "a.go:1")
	c.AddLog("error", "notify failed", nil, "b.go:2")
	c.Close()

	if len(pub.batches) != 1 {
		t.Fatalf("batches = %d, want 1", len(pub.batches))
	}
	if pub.topic != "logs" {
		t.Errorf("topic = %q, want %q", pub.topic, "logs")
	}
	counts := map[string]int{}
	for _, e := range pub.batches[0] {
		counts[e.Message] = e.Count
		if e.Service != "cointrend" {
			t.Errorf("service = %q, want %q", e.Service, "cointrend")
		}
	}
	if counts["persist failed"] != 2 || counts["notify failed"] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestLogger_ErrorFeedsCollector(t *testing.T) {
	pub := &capturePublisher{}
	l := Nop().With(String("component", "registry"))
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 100, Topic: "logs", Publisher: pub})

	l.Error("boom", Error(errors.New("disk full")))
	l.Warn("ignored")
	l.RemoveCollector()

	if len(pub.batches) != 1 || len(pub.batches[0]) != 1 {
		t.Fatalf("batches = %+v", pub.batches)
	}
	e := pub.batches[0][0]
	if e.Fields["component"] != "registry" || e.Fields["error"] != "disk full" {
		t.Errorf("fields = %v", e.Fields)
	}
}
