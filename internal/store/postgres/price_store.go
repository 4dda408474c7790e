package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/indexlab/internal/domain"
)

// PriceStore implements domain.PriceStore on the price_history table.
type PriceStore struct {
	pool *pgxpool.Pool
}

// NewPriceStore creates a PriceStore backed by pool.
func NewPriceStore(pool *pgxpool.Pool) *PriceStore {
	return &PriceStore{pool: pool}
}

// UpsertBatch writes points for symbol, replacing closes already stored for
// the same day.
func (s *PriceStore) UpsertBatch(ctx context.Context, symbol string, points []domain.PricePoint) error {
	if len(points) == 0 {
		return nil
	}

	const query = `
		INSERT INTO price_history (symbol, trade_date, close)
		VALUES ($1, $2, $3)
		ON CONFLICT (symbol, trade_date)
		DO UPDATE SET close = EXCLUDED.close, updated_at = NOW()`

	batch := &pgx.Batch{}
	for _, p := range points {
		batch.Queue(query, symbol, p.Date, p.Close)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range points {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert price %s item %d: %w", symbol, i, err)
		}
	}
	return nil
}

// ListRange returns the stored closes for symbol with from <= date <= to,
// oldest first.
func (s *PriceStore) ListRange(ctx context.Context, symbol string, from, to time.Time) ([]domain.PricePoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT trade_date, close FROM price_history
		WHERE symbol = $1 AND trade_date BETWEEN $2 AND $3
		ORDER BY trade_date ASC`, symbol, from, to)
	if err != nil {
		return nil, fmt.Errorf("postgres: list prices %s: %w", symbol, err)
	}
	defer rows.Close()

	var points []domain.PricePoint
	for rows.Next() {
		var p domain.PricePoint
		if err := rows.Scan(&p.Date, &p.Close); err != nil {
			return nil, fmt.Errorf("postgres: scan price %s: %w", symbol, err)
		}
		p.Date = domain.Day(p.Date)
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list prices %s: %w", symbol, err)
	}
	return points, nil
}

var _ domain.PriceStore = (*PriceStore)(nil)
