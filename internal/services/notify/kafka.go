package notify

import (
	"context"
	"fmt"

	"CoinTrend/internal/domain/models"
)

// EventPublisher is the slice of the Kafka producer the event notifier needs.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

// KafkaNotifier streams every event, keyed by symbol, for downstream consumers.
type KafkaNotifier struct {
	pub   EventPublisher
	topic string
	mode  models.MatchMode
}

type eventRecord struct {
	Message
	BaseAsset   string   `json:"baseAsset"`
	QuoteAsset  string   `json:"quoteAsset"`
	Subscribers []string `json:"subscribers"`
}

func NewKafkaNotifier(pub EventPublisher, topic string, mode models.MatchMode) *KafkaNotifier {
	return &KafkaNotifier{pub: pub, topic: topic, mode: mode}
}

func (n *KafkaNotifier) Name() string { return "kafka" }

func (n *KafkaNotifier) Notify(ctx context.Context, e *models.SymbolEvent) error {
	rec := eventRecord{
		Message:     NewMessage(e),
		BaseAsset:   e.Symbol.Base.Name,
		QuoteAsset:  e.Symbol.Quote.Name,
		Subscribers: e.Subscribers(n.mode),
	}
	if err := n.pub.Publish(ctx, n.topic, []byte(e.Symbol.Key()), rec); err != nil {
		return fmt.Errorf("publish event %s: %w", e.ID, err)
	}
	return nil
}
