package service

import (
	"context"

	"CoinTrend/internal/domain/models"
)

// Notifier delivers a fired event to the users subscribed to it.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, e *models.SymbolEvent) error
}

// Starter is implemented by notifiers and providers that need a one time setup.
type Starter interface {
	Start(ctx context.Context) error
}

// Stopper is implemented by components holding resources until shutdown.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Provider feeds samples into symbol signals until ctx is cancelled.
type Provider interface {
	Name() string
	Start(ctx context.Context) error
}
