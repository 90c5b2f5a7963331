package repository

import (
	"context"
	"time"

	"CoinTrend/internal/domain/models"
)

// AssetRepository persists assets. Assets are written once and never updated.
type AssetRepository interface {
	FindByName(ctx context.Context, name string) (*models.Asset, error) // models.ErrNotFound when missing
	Create(ctx context.Context, a *models.Asset) error
}

// SymbolRepository persists symbol signal snapshots.
type SymbolRepository interface {
	FindAll(ctx context.Context) ([]*models.SymbolDocument, error)
	FindByKey(ctx context.Context, base, quote string) (*models.SymbolDocument, error) // models.ErrNotFound when missing
	Save(ctx context.Context, doc *models.SymbolDocument) error                         // upsert by symbol key
}

// EventRepository is the append-only store of fired events.
type EventRepository interface {
	Store(ctx context.Context, e *models.SymbolEvent) error
	FindByID(ctx context.Context, id string) (*models.SymbolEvent, error) // models.ErrNotFound when missing
	// FindAll returns every event, newest first.
	FindAll(ctx context.Context) ([]*models.SymbolEvent, error)
	// FindForUser returns events whose preference snapshot matches the user, newest first. limit 0 means all.
	FindForUser(ctx context.Context, userID string, mode models.MatchMode, limit int) ([]*models.SymbolEvent, error)
}

// UserRepository reads the accounts the notifiers deliver to.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error) // models.ErrUserNotFound when missing
	FindByIDs(ctx context.Context, ids []string) ([]*models.User, error)
	MarkNotified(ctx context.Context, id string, at time.Time) error
}

// Locker is a best-effort distributed lock.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

type Metrics interface {
	RecordSample(provider, symbol string)
	RecordRejectedSample(provider string)
	RecordEvent(symbol string)
	RecordProbability(symbol string, p float64)
	RecordNotification(notifier, result string)
	RecordRegistrySize(n int)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
