package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"CoinTrend/internal/domain/models"
	domrepo "CoinTrend/internal/domain/repository"
	applogger "CoinTrend/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const symbolColumns = `
	s.id, s.probability, s.decay_period, s.preferences, s.created_at, s.updated_at,
	b.id, b.name, b.created_at, q.id, q.name, q.created_at`

const symbolFrom = `
	FROM symbols s
	JOIN assets b ON b.name = s.base_asset
	JOIN assets q ON q.name = s.quote_asset`

// PGSymbolRepository stores symbol documents in PostgreSQL with preferences as JSONB.
type PGSymbolRepository struct {
	pool *pgxpool.Pool
	l    *applogger.Logger
}

func NewPGSymbolRepository(pool *pgxpool.Pool) *PGSymbolRepository {
	return &PGSymbolRepository{pool: pool}
}

// SetLogger injects a structured logger.
func (r *PGSymbolRepository) SetLogger(l *applogger.Logger) { r.l = l }

// FindAll returns every stored symbol. Rows whose preferences fail to decode are skipped.
func (r *PGSymbolRepository) FindAll(ctx context.Context) ([]*models.SymbolDocument, error) {
	rows, err := r.pool.Query(ctx, "SELECT"+symbolColumns+symbolFrom+" ORDER BY s.base_asset, s.quote_asset")
	if err != nil {
		return nil, fmt.Errorf("postgres: list symbols: %w", err)
	}
	defer rows.Close()

	var docs []*models.SymbolDocument
	for rows.Next() {
		doc, err := scanSymbol(rows)
		var de *decodeError
		if errors.As(err, &de) {
			if r.l != nil {
				r.l.Warn("postgres: skipping symbol with unreadable preferences", applogger.Error(err))
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("postgres: scan symbol: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate symbols: %w", err)
	}
	return docs, nil
}

func (r *PGSymbolRepository) FindByKey(ctx context.Context, base, quote string) (*models.SymbolDocument, error) {
	row := r.pool.QueryRow(ctx,
		"SELECT"+symbolColumns+symbolFrom+" WHERE s.base_asset = $1 AND s.quote_asset = $2", base, quote)
	doc, err := scanSymbol(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: find symbol %s: %w", models.SymbolKey(base, quote), err)
	}
	return doc, nil
}

// Save upserts doc keyed by its (base, quote) pair.
func (r *PGSymbolRepository) Save(ctx context.Context, doc *models.SymbolDocument) error {
	prefs, err := encodePreferences(doc.Preferences)
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO symbols (id, base_asset, quote_asset, probability, decay_period, preferences, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (base_asset, quote_asset) DO UPDATE SET
			probability  = EXCLUDED.probability,
			decay_period = EXCLUDED.decay_period,
			preferences  = EXCLUDED.preferences,
			updated_at   = EXCLUDED.updated_at`
	_, err = r.pool.Exec(ctx, q,
		doc.ID,
		doc.Symbol.Base.Name,
		doc.Symbol.Quote.Name,
		doc.Probability,
		doc.DecayPeriod,
		prefs,
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save symbol %s: %w", doc.Symbol.Key(), err)
	}
	return nil
}

func scanSymbol(row pgx.Row) (*models.SymbolDocument, error) {
	var (
		doc   models.SymbolDocument
		prefs []byte
	)
	err := row.Scan(
		&doc.ID, &doc.Probability, &doc.DecayPeriod, &prefs, &doc.CreatedAt, &doc.UpdatedAt,
		&doc.Symbol.Base.ID, &doc.Symbol.Base.Name, &doc.Symbol.Base.CreatedAt,
		&doc.Symbol.Quote.ID, &doc.Symbol.Quote.Name, &doc.Symbol.Quote.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if doc.Preferences, err = decodePreferences(prefs); err != nil {
		return nil, &decodeError{id: doc.ID, err: err}
	}
	return &doc, nil
}

type decodeError struct {
	id  string
	err error
}

func (e *decodeError) Error() string { return fmt.Sprintf("symbol %s: %v", e.id, e.err) }
func (e *decodeError) Unwrap() error { return e.err }

func encodePreferences(entries []models.PreferenceEntry) ([]byte, error) {
	if entries == nil {
		entries = []models.PreferenceEntry{}
	}
	b, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("encode preferences: %w", err)
	}
	return b, nil
}

func decodePreferences(b []byte) ([]models.PreferenceEntry, error) {
	entries := []models.PreferenceEntry{}
	if len(b) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("decode preferences: %w", err)
	}
	return entries, nil
}

var _ domrepo.SymbolRepository = (*PGSymbolRepository)(nil)
