package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"CoinTrend/internal/domain/models"
	drepo "CoinTrend/internal/domain/repository"
	"CoinTrend/internal/services/symbol"
	"CoinTrend/pkg/logger"
)

// EventPipeline receives fired events: it stores them, then notifies in the background.
type EventPipeline struct {
	events   drepo.EventRepository
	notifier EventNotifier
	metrics  drepo.Metrics
	log      *logger.Logger
	timeout  time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewEventPipeline(
	events drepo.EventRepository,
	notifier EventNotifier,
	metrics drepo.Metrics,
	log *logger.Logger,
	timeout time.Duration,
) *EventPipeline {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &EventPipeline{
		events:   events,
		notifier: notifier,
		metrics:  metrics,
		log:      log.With(logger.String("component", "event_pipeline")),
		timeout:  timeout,
	}
}

// OnEvent runs on the signal's goroutine, so delivery never blocks samples or decay.
func (p *EventPipeline) OnEvent(e *models.SymbolEvent) {
	symbolKey := e.Symbol.Key()
	p.metrics.RecordEvent(symbolKey)
	p.metrics.RecordProbability(symbolKey, e.Probability)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.log.Warn("event dropped after shutdown", logger.String("event", e.ID))
		return
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		if err := p.Process(ctx, e); err != nil {
			p.log.Error("event processing failed",
				logger.String("event", e.ID),
				logger.String("symbol", symbolKey),
				logger.Error(err))
		}
	}()
}

// Process persists e and notifies its subscribers. Notification errors do not undo the write.
func (p *EventPipeline) Process(ctx context.Context, e *models.SymbolEvent) error {
	start := time.Now()
	if err := p.events.Store(ctx, e); err != nil {
		p.metrics.RecordError("event_store")
		return fmt.Errorf("store event: %w", err)
	}
	p.metrics.RecordLatency("event_store", time.Since(start).Seconds())

	p.log.Info("event fired",
		logger.String("event", e.ID),
		logger.String("symbol", e.Symbol.Key()),
		logger.Float64("probability", e.Probability))

	if p.notifier == nil {
		return nil
	}
	if err := p.notifier.Notify(ctx, e); err != nil {
		p.metrics.RecordError("notify")
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}

// Close stops accepting events and waits for in-flight ones within ctx.
func (p *EventPipeline) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight events: %w", ctx.Err())
	}
}

var _ symbol.EventSink = (*EventPipeline)(nil)
