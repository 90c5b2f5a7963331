package usecase

import (
	"context"

	"CoinTrend/internal/domain/models"
	"CoinTrend/internal/services/symbol"
)

// SignalRegistry is the view of the symbol registry the use cases need.
type SignalRegistry interface {
	GetOrCreate(ctx context.Context, base, quote string) (*symbol.Signal, error)
	Get(base, quote string) (*symbol.Signal, bool)
	All() []*symbol.Signal
	Save(ctx context.Context, s *symbol.Signal) error
}

// EventNotifier fans an event out to the delivery channels.
type EventNotifier interface {
	Notify(ctx context.Context, e *models.SymbolEvent) error
}
