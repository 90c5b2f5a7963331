package usecase

import (
	"context"

	"CoinTrend/internal/domain/models"
	drepo "CoinTrend/internal/domain/repository"
)

// EventUseCase answers event history queries.
type EventUseCase struct {
	events drepo.EventRepository
	users  drepo.UserRepository
	mode   models.MatchMode
}

func NewEventUseCase(events drepo.EventRepository, users drepo.UserRepository, mode models.MatchMode) *EventUseCase {
	if mode == "" {
		mode = models.MatchDirectional
	}
	return &EventUseCase{events: events, users: users, mode: mode}
}

// GetEvents returns the newest events userID was subscribed to. amount 0 returns all of them.
func (uc *EventUseCase) GetEvents(ctx context.Context, userID string, amount int) ([]*models.SymbolEvent, error) {
	if amount < 0 {
		return nil, models.NewMinError("amount", float64(amount), 0)
	}
	if _, err := uc.users.FindByID(ctx, userID); err != nil {
		return nil, err
	}
	return uc.events.FindForUser(ctx, userID, uc.mode, amount)
}

func (uc *EventUseCase) FindEventByID(ctx context.Context, id string) (*models.SymbolEvent, error) {
	return uc.events.FindByID(ctx, id)
}

// GetAllEvents returns every stored event, newest first.
func (uc *EventUseCase) GetAllEvents(ctx context.Context) ([]*models.SymbolEvent, error) {
	return uc.events.FindAll(ctx)
}
