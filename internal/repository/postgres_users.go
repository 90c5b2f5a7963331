package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"CoinTrend/internal/domain/models"
	domrepo "CoinTrend/internal/domain/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, email, username, telegram_chat_id, alert_limit_seconds, notified_at`

// PGUserRepository reads accounts from PostgreSQL. Accounts are managed elsewhere.
type PGUserRepository struct {
	pool *pgxpool.Pool
}

func NewPGUserRepository(pool *pgxpool.Pool) *PGUserRepository {
	return &PGUserRepository{pool: pool}
}

func (r *PGUserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: find user %s: %w", id, err)
	}
	return u, nil
}

// FindByIDs returns the users that exist among ids, in no particular order.
func (r *PGUserRepository) FindByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, "SELECT "+userColumns+" FROM users WHERE id = ANY($1)", ids)
	if err != nil {
		return nil, fmt.Errorf("postgres: find users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *PGUserRepository) MarkNotified(ctx context.Context, id string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, "UPDATE users SET notified_at = $2 WHERE id = $1", id, at)
	if err != nil {
		return fmt.Errorf("postgres: mark user %s notified: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	var (
		u          models.User
		limitSec   int64
		notifiedAt *time.Time
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Username, &u.TelegramChatID, &limitSec, &notifiedAt); err != nil {
		return nil, err
	}
	u.AlertLimit = time.Duration(limitSec) * time.Second
	if notifiedAt != nil {
		u.NotifiedAt = *notifiedAt
	}
	return &u, nil
}

var _ domrepo.UserRepository = (*PGUserRepository)(nil)
