package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"CoinTrend/internal/domain/models"
	domrepo "CoinTrend/internal/domain/repository"
	pkgch "CoinTrend/pkg/clickhouse"
	applogger "CoinTrend/pkg/logger"
)

const DefaultEventsTable = "symbol_events"

// EventsSchema returns the DDL for the events table.
func EventsSchema(table string) []string {
	return []string{fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            id          String,
            fired_at    DateTime64(3, 'UTC'),
            base_asset  LowCardinality(String),
            quote_asset LowCardinality(String),
            probability Float64,
            preferences Map(String, Float64)
        )
        ENGINE = MergeTree
        ORDER BY (fired_at, id)
    `, table)}
}

type schemaRunner interface {
	InitSchema(ctx context.Context, stmts ...string) error
}

// CHEventStore implements EventRepository backed by ClickHouse.
type CHEventStore struct {
	ch    schemaRunner
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHEventStore(ch *pkgch.Client, table string) *CHEventStore {
	if table == "" {
		table = DefaultEventsTable
	}
	return &CHEventStore{ch: ch, db: ch.DB(), table: table}
}

// SetLogger injects a structured logger.
func (s *CHEventStore) SetLogger(l *applogger.Logger) { s.l = l }

// Init creates the events table when missing.
func (s *CHEventStore) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, EventsSchema(s.table)...)
}

func (s *CHEventStore) Store(ctx context.Context, e *models.SymbolEvent) error {
	q := fmt.Sprintf("INSERT INTO %s (id, fired_at, base_asset, quote_asset, probability, preferences) VALUES (?, ?, ?, ?, ?, ?)", s.table)
	prefs := e.Preferences
	if prefs == nil {
		prefs = map[string]float64{}
	}
	_, err := s.db.ExecContext(ctx, q,
		e.ID,
		e.FiredAt.UTC(),
		e.Symbol.Base.Name,
		e.Symbol.Quote.Name,
		e.Probability,
		prefs,
	)
	if err != nil {
		s.logError("store", err)
		return fmt.Errorf("store event %s: %w", e.ID, err)
	}
	return nil
}

func (s *CHEventStore) FindByID(ctx context.Context, id string) (*models.SymbolEvent, error) {
	q := fmt.Sprintf("%s WHERE id = ? LIMIT 1", s.selectAll())
	row := s.db.QueryRowContext(ctx, q, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		s.logError("find_by_id", err)
		return nil, fmt.Errorf("find event %s: %w", id, err)
	}
	return e, nil
}

func (s *CHEventStore) FindAll(ctx context.Context) ([]*models.SymbolEvent, error) {
	return s.query(ctx, "find_all", s.selectAll()+" ORDER BY fired_at DESC")
}

func (s *CHEventStore) FindForUser(ctx context.Context, userID string, mode models.MatchMode, limit int) ([]*models.SymbolEvent, error) {
	q, args := userEventsQuery(s.selectAll(), userID, mode, limit)
	return s.query(ctx, "find_for_user", q, args...)
}

func (s *CHEventStore) selectAll() string {
	return fmt.Sprintf("SELECT id, fired_at, base_asset, quote_asset, probability, preferences FROM %s", s.table)
}

// userEventsQuery filters on the threshold stored in each event's preference snapshot.
func userEventsQuery(selectAll, userID string, mode models.MatchMode, limit int) (string, []interface{}) {
	var cond string
	var args []interface{}
	if mode == models.MatchMagnitude {
		cond = "mapContains(preferences, ?) AND abs(preferences[?]) <= abs(probability)"
		args = []interface{}{userID, userID}
	} else {
		cond = "mapContains(preferences, ?) AND ((preferences[?] > 0 AND preferences[?] <= probability) OR (preferences[?] < 0 AND preferences[?] >= probability))"
		args = []interface{}{userID, userID, userID, userID, userID}
	}
	q := fmt.Sprintf("%s WHERE %s ORDER BY fired_at DESC", selectAll, cond)
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	return q, args
}

func (s *CHEventStore) query(ctx context.Context, op, q string, args ...interface{}) ([]*models.SymbolEvent, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.logError(op, err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := make([]*models.SymbolEvent, 0, 64)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			s.logError(op, err)
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		s.logError(op, err)
		return nil, fmt.Errorf("rows: %w", err)
	}
	if s.l != nil {
		s.l.Debug("clickhouse events query",
			applogger.String("op", op),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(r scanner) (*models.SymbolEvent, error) {
	var (
		e           models.SymbolEvent
		base, quote string
		prefs       map[string]float64
	)
	if err := r.Scan(&e.ID, &e.FiredAt, &base, &quote, &e.Probability, &prefs); err != nil {
		return nil, err
	}
	e.Symbol = models.NewSymbolIdentity(base, quote)
	e.Preferences = prefs
	return &e, nil
}

func (s *CHEventStore) logError(op string, err error) {
	if s.l != nil {
		s.l.Error("clickhouse events error",
			applogger.String("table", s.table),
			applogger.String("op", op),
			applogger.Error(err),
		)
	}
}

var _ domrepo.EventRepository = (*CHEventStore)(nil)
