package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"CoinTrend/internal/domain/service"
	"CoinTrend/pkg/logger"
)

// Registry is the symbol registry as seen by the lifecycle.
type Registry interface {
	Populate(ctx context.Context) error
	SaveAll(ctx context.Context) error
	Stop()
	Len() int
}

// NotifierManager registers notifiers and releases them on shutdown.
type NotifierManager interface {
	Register(ctx context.Context, n service.Notifier) error
	Stop(ctx context.Context) error
}

// Drainer finishes in-flight work, e.g. the event pipeline.
type Drainer interface {
	Close(ctx context.Context) error
}

// HTTPServer is pkg/http Server.
type HTTPServer interface {
	Start() error
	Err() <-chan error
	Stop(ctx context.Context) error
}

// Consumer is pkg/kafka Consumer.
type Consumer interface {
	Start() error
	Stop(ctx context.Context) error
}

// Queue is pkg/queue RedisQueue.
type Queue interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type closer struct {
	name string
	fn   func() error
}

// Option configures App.
type Option func(*App)

func WithProviders(p ...service.Provider) Option {
	return func(a *App) { a.providers = append(a.providers, p...) }
}

func WithNotifiers(n ...service.Notifier) Option {
	return func(a *App) { a.notifiers = append(a.notifiers, n...) }
}

func WithConsumer(c Consumer) Option {
	return func(a *App) { a.consumer = c }
}

func WithQueue(q Queue) Option {
	return func(a *App) { a.queue = q }
}

// WithCloser adds a client closed last, in registration order.
func WithCloser(name string, fn func() error) Option {
	return func(a *App) { a.closers = append(a.closers, closer{name: name, fn: fn}) }
}

// WithSaveInterval flushes every signal periodically. Zero disables it.
func WithSaveInterval(d time.Duration) Option {
	return func(a *App) { a.saveInterval = d }
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(a *App) { a.shutdownTimeout = d }
}

// App encapsulates the entire application lifecycle.
type App struct {
	log       *logger.Logger
	registry  Registry
	manager   NotifierManager
	pipeline  Drainer
	http      HTTPServer
	consumer  Consumer
	queue     Queue
	providers []service.Provider
	notifiers []service.Notifier
	closers   []closer

	saveInterval    time.Duration
	shutdownTimeout time.Duration
}

// New creates a new App. http may be nil for worker-only deployments.
func New(
	log *logger.Logger,
	registry Registry,
	manager NotifierManager,
	pipeline Drainer,
	http HTTPServer,
	opts ...Option,
) *App {
	a := &App{
		log:             log.With(logger.String("component", "app")),
		registry:        registry,
		manager:         manager,
		pipeline:        pipeline,
		http:            http,
		shutdownTimeout: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts every component and blocks until ctx is done or a component fails, then shuts down.
func (a *App) RunContext(ctx context.Context) error {
	runErr := a.run(ctx)
	if runErr != nil {
		a.log.Error("application stopped with error", logger.Error(runErr))
	} else {
		a.log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()
	return errors.Join(runErr, a.shutdown(shutdownCtx))
}

func (a *App) run(ctx context.Context) error {
	if err := a.registry.Populate(ctx); err != nil {
		return fmt.Errorf("populate registry: %w", err)
	}
	a.log.Info("registry populated", logger.Int("symbols", a.registry.Len()))

	for _, n := range a.notifiers {
		if err := a.manager.Register(ctx, n); err != nil {
			a.log.Error("notifier disabled", logger.String("notifier", n.Name()), logger.Error(err))
		}
	}

	if a.queue != nil {
		if err := a.queue.Start(ctx); err != nil {
			return fmt.Errorf("start queue: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range a.providers {
		p := p
		g.Go(func() error {
			a.log.Info("provider started", logger.String("provider", p.Name()))
			if err := p.Start(gctx); err != nil {
				return fmt.Errorf("provider %s: %w", p.Name(), err)
			}
			return nil
		})
	}

	if a.consumer != nil {
		if err := a.consumer.Start(); err != nil {
			return fmt.Errorf("start kafka consumer: %w", err)
		}
	}

	if a.http != nil {
		if err := a.http.Start(); err != nil {
			return fmt.Errorf("start http server: %w", err)
		}
		g.Go(func() error {
			select {
			case err := <-a.http.Err():
				return fmt.Errorf("http server: %w", err)
			case <-gctx.Done():
				return nil
			}
		})
	}

	if a.saveInterval > 0 {
		g.Go(func() error {
			a.saveLoop(gctx)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	return g.Wait()
}

func (a *App) saveLoop(ctx context.Context) {
	ticker := time.NewTicker(a.saveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.registry.SaveAll(ctx); err != nil {
				a.log.Warn("periodic save failed", logger.Error(err))
			}
		}
	}
}

// shutdown stops intake first, then drains, then persists and releases clients.
func (a *App) shutdown(ctx context.Context) error {
	a.log.Info("shutting down...")
	var errs []error

	if a.http != nil {
		if err := a.http.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http: %w", err))
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("kafka consumer: %w", err))
		}
	}

	a.registry.Stop()
	if err := a.pipeline.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("event pipeline: %w", err))
	}
	if err := a.registry.SaveAll(ctx); err != nil {
		errs = append(errs, fmt.Errorf("save symbols: %w", err))
	}

	if err := a.manager.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("notifiers: %w", err))
	}
	if a.queue != nil {
		if err := a.queue.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("queue: %w", err))
		}
	}

	for _, c := range a.closers {
		if err := c.fn(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		a.log.Warn("shutdown finished with errors", logger.Error(err))
	} else {
		a.log.Info("shutdown complete")
	}
	return err
}
