// Package notify fans fired events out to delivery channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"CoinTrend/internal/domain/models"
	"CoinTrend/internal/domain/repository"
	"CoinTrend/internal/domain/service"
	"CoinTrend/pkg/logger"
)

// Manager owns the registered notifiers.
type Manager struct {
	mu        sync.RWMutex
	notifiers []service.Notifier
	log       *logger.Logger
	metrics   repository.Metrics
}

func NewManager(log *logger.Logger, metrics repository.Metrics) *Manager {
	return &Manager{log: log.With(logger.String("component", "notify")), metrics: metrics}
}

// Register adds n and runs its Start hook when it has one. A failed start leaves n unregistered.
func (m *Manager) Register(ctx context.Context, n service.Notifier) error {
	if s, ok := n.(service.Starter); ok {
		if err := s.Start(ctx); err != nil {
			return fmt.Errorf("start notifier %s: %w", n.Name(), err)
		}
	}
	m.mu.Lock()
	m.notifiers = append(m.notifiers, n)
	m.mu.Unlock()
	m.log.Info("notifier registered", logger.String("notifier", n.Name()))
	return nil
}

func (m *Manager) Notifiers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, len(m.notifiers))
	for i, n := range m.notifiers {
		names[i] = n.Name()
	}
	return names
}

// Notify runs every notifier concurrently. Failures never cancel siblings and come back joined.
func (m *Manager) Notify(ctx context.Context, e *models.SymbolEvent) error {
	m.mu.RLock()
	notifiers := append([]service.Notifier(nil), m.notifiers...)
	m.mu.RUnlock()

	errs := make([]error, len(notifiers))
	var wg sync.WaitGroup
	for i, n := range notifiers {
		wg.Add(1)
		go func(i int, n service.Notifier) {
			defer wg.Done()
			errs[i] = m.run(ctx, n, e)
		}(i, n)
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (m *Manager) run(ctx context.Context, n service.Notifier, e *models.SymbolEvent) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notifier %s panicked: %v", n.Name(), r)
		}
		result := "ok"
		if err != nil {
			result = "error"
			m.log.Error("notifier failed",
				logger.String("notifier", n.Name()),
				logger.String("event", e.ID),
				logger.String("symbol", e.Symbol.Key()),
				logger.Error(err))
		}
		if m.metrics != nil {
			m.metrics.RecordNotification(n.Name(), result)
			m.metrics.RecordLatency("notify_"+n.Name(), time.Since(start).Seconds())
		}
	}()

	if err := n.Notify(ctx, e); err != nil {
		return fmt.Errorf("%s: %w", n.Name(), err)
	}
	return nil
}

// Stop releases notifiers that hold resources.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var errs []error
	for _, n := range m.notifiers {
		if s, ok := n.(service.Stopper); ok {
			if err := s.Stop(ctx); err != nil {
				errs = append(errs, fmt.Errorf("stop notifier %s: %w", n.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}
