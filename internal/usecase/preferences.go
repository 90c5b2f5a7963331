package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"

	"CoinTrend/internal/domain/models"
	drepo "CoinTrend/internal/domain/repository"
)

// PreferenceUseCase manages user alert thresholds.
type PreferenceUseCase struct {
	registry SignalRegistry
	users    drepo.UserRepository
}

func NewPreferenceUseCase(registry SignalRegistry, users drepo.UserRepository) *PreferenceUseCase {
	return &PreferenceUseCase{registry: registry, users: users}
}

// SetPreference stores the threshold of userID on base/quote, creating the symbol if needed.
func (uc *PreferenceUseCase) SetPreference(ctx context.Context, userID, base, quote string, threshold float64) error {
	if threshold < -1 || threshold > 1 || math.IsNaN(threshold) {
		return models.NewRangeError("probability", threshold, -1, 1)
	}
	if _, err := uc.users.FindByID(ctx, userID); err != nil {
		return err
	}

	s, err := uc.registry.GetOrCreate(ctx, base, quote)
	if err != nil {
		return err
	}
	return s.EditPreferences(func() error {
		if err := s.SetPreference(userID, threshold); err != nil {
			return err
		}
		return uc.registry.Save(ctx, s)
	})
}

// DeletePreference removes the threshold of userID on base/quote. Unknown symbols and users are a no-op.
func (uc *PreferenceUseCase) DeletePreference(ctx context.Context, userID, base, quote string) error {
	s, ok := uc.registry.Get(base, quote)
	if !ok {
		return nil
	}
	return s.EditPreferences(func() error {
		if !s.DeletePreference(userID) {
			return nil
		}
		return uc.registry.Save(ctx, s)
	})
}

// GetPreferences lists every threshold of userID across the live symbols.
func (uc *PreferenceUseCase) GetPreferences(ctx context.Context, userID string) ([]models.UserPreference, error) {
	if _, err := uc.users.FindByID(ctx, userID); err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	out := make([]models.UserPreference, 0)
	for _, s := range uc.registry.All() {
		if t, ok := s.Preference(userID); ok {
			out = append(out, models.UserPreference{Symbol: s.Identity(), Threshold: t})
		}
	}
	return out, nil
}
