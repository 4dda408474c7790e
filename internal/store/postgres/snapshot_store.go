package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/indexlab/internal/domain"
)

// SnapshotStore implements domain.SnapshotStore on the market_snapshots
// table.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

// NewSnapshotStore creates a SnapshotStore backed by pool.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Save replaces every row stored for the snapshot's date.
func (s *SnapshotStore) Save(ctx context.Context, snap domain.MarketSnapshot) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: save snapshot: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM market_snapshots WHERE snapshot_date = $1`, snap.Date); err != nil {
		return fmt.Errorf("postgres: save snapshot: clear %s: %w", snap.Date.Format(domain.DateFormat), err)
	}

	batch := &pgx.Batch{}
	for _, c := range snap.Constituents {
		batch.Queue(`
			INSERT INTO market_snapshots (
				snapshot_date, symbol, security, sector, sub_industry,
				market_cap, percent_change, share_of_total
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			snap.Date, c.Symbol, c.Security, c.Sector, c.SubIndustry,
			c.MarketCap, c.PercentChange, c.ShareOfTotal,
		)
	}
	br := tx.SendBatch(ctx, batch)
	for i := range snap.Constituents {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("postgres: save snapshot row %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("postgres: save snapshot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: save snapshot: commit: %w", err)
	}
	return nil
}

// Load returns the snapshot stored for date or domain.ErrNotFound.
func (s *SnapshotStore) Load(ctx context.Context, date time.Time) (domain.MarketSnapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT symbol, security, sector, sub_industry, market_cap, percent_change, share_of_total
		FROM market_snapshots
		WHERE snapshot_date = $1
		ORDER BY market_cap DESC, symbol ASC`, date)
	if err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("postgres: load snapshot: %w", err)
	}
	defer rows.Close()

	snap := domain.MarketSnapshot{Date: domain.Day(date)}
	for rows.Next() {
		var c domain.ConstituentSnapshot
		if err := rows.Scan(&c.Symbol, &c.Security, &c.Sector, &c.SubIndustry,
			&c.MarketCap, &c.PercentChange, &c.ShareOfTotal); err != nil {
			return domain.MarketSnapshot{}, fmt.Errorf("postgres: scan snapshot row: %w", err)
		}
		snap.TotalMarketCap += c.MarketCap
		snap.Constituents = append(snap.Constituents, c)
	}
	if err := rows.Err(); err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("postgres: load snapshot: %w", err)
	}
	if len(snap.Constituents) == 0 {
		return domain.MarketSnapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

var _ domain.SnapshotStore = (*SnapshotStore)(nil)
