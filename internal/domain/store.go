package domain

import (
	"context"
	"time"
)

// PriceStore persists daily closes so that a series can be served when the
// upstream provider is unavailable.
type PriceStore interface {
	UpsertBatch(ctx context.Context, symbol string, points []PricePoint) error
	ListRange(ctx context.Context, symbol string, from, to time.Time) ([]PricePoint, error)
}

// SnapshotStore keeps one market snapshot per date.
type SnapshotStore interface {
	Save(ctx context.Context, snap MarketSnapshot) error
	Load(ctx context.Context, date time.Time) (MarketSnapshot, error)
}
