package notify

import (
	"context"
	"fmt"
	"time"

	"CoinTrend/internal/domain/models"
	"CoinTrend/internal/domain/repository"
	"CoinTrend/pkg/logger"
)

const throttleKeyPrefix = "cointrend:notify:"

// Audience resolves the users of an event a channel may alert right now.
type Audience struct {
	users  repository.UserRepository
	locker repository.Locker // nil falls back to User.NotifiedAt
	mode   models.MatchMode
	now    func() time.Time
	log    *logger.Logger
}

func NewAudience(users repository.UserRepository, locker repository.Locker, mode models.MatchMode, log *logger.Logger) *Audience {
	if mode == "" {
		mode = models.MatchDirectional
	}
	return &Audience{users: users, locker: locker, mode: mode, now: time.Now, log: log}
}

// Resolve returns the subscribers of e that are not throttled on channel.
func (a *Audience) Resolve(ctx context.Context, channel string, e *models.SymbolEvent) ([]*models.User, error) {
	ids := e.Subscribers(a.mode)
	if len(ids) == 0 {
		return nil, nil
	}
	users, err := a.users.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load subscribers: %w", err)
	}

	out := users[:0]
	for _, u := range users {
		ok, err := a.allow(ctx, channel, u)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, u)
		}
	}
	return out, nil
}

// Delivered records the alert time of a user.
func (a *Audience) Delivered(ctx context.Context, u *models.User) {
	if err := a.users.MarkNotified(ctx, u.ID, a.now()); err != nil {
		a.log.Warn("failed to record notification time", logger.String("user", u.ID), logger.Error(err))
	}
}

func (a *Audience) allow(ctx context.Context, channel string, u *models.User) (bool, error) {
	if u.AlertLimit <= 0 {
		return true, nil
	}
	if a.locker == nil {
		return !u.Throttled(a.now()), nil
	}
	ok, err := a.locker.TryLock(ctx, throttleKeyPrefix+channel+":"+u.ID, u.AlertLimit)
	if err != nil {
		return false, fmt.Errorf("throttle %s: %w", u.ID, err)
	}
	return ok, nil
}
