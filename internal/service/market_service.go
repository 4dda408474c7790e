package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/indexlab/internal/blob"
	"github.com/alanyoungcy/indexlab/internal/calendar"
	"github.com/alanyoungcy/indexlab/internal/domain"
	"github.com/alanyoungcy/indexlab/internal/observability"
)

// TickerAlias maps a listed symbol to the symbol its history lives under
// before a rename took effect.
type TickerAlias struct {
	Symbol string
	Before time.Time
	UseAs  string
}

// DefaultAliases covers renames where the provider has no history under the
// new ticker before the effective date.
var DefaultAliases = []TickerAlias{
	{Symbol: "MRSH", Before: time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC), UseAs: "MMC"},
}

// MarketConfig configures a MarketService.
type MarketConfig struct {
	// IndexSymbol is the index whose daily move is reported, e.g. "^GSPC".
	IndexSymbol string
	// ConstituentsPath is the blob key of the constituents CSV.
	ConstituentsPath string
	// ChangesPath is the blob key of the index change log CSV.
	ChangesPath string
	// Concurrency bounds the per-symbol history requests in flight.
	Concurrency int
	Aliases     []TickerAlias
}

// MarketService builds daily market composition snapshots.
type MarketService struct {
	cfg       MarketConfig
	provider  domain.MarketDataProvider
	stores    blob.Stores
	snapshots domain.SnapshotStore
	metrics   *observability.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewMarketService creates a MarketService. snapshots and metrics may be nil.
func NewMarketService(
	cfg MarketConfig,
	provider domain.MarketDataProvider,
	stores blob.Stores,
	snapshots domain.SnapshotStore,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *MarketService {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.Aliases == nil {
		cfg.Aliases = DefaultAliases
	}
	return &MarketService{
		cfg:       cfg,
		provider:  provider,
		stores:    stores,
		snapshots: snapshots,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// SnapshotPath is the blob key of the snapshot CSV for date.
func SnapshotPath(date time.Time) string {
	return "data/" + date.Format(domain.DateFormat) + ".csv"
}

// Constituents reads and normalizes the constituent list from the backend
// and rewinds it to the membership on date using the change log. A missing
// change log leaves the current list as is.
func (s *MarketService) Constituents(ctx context.Context, backend domain.StorageBackend, date time.Time) ([]domain.Constituent, error) {
	store, err := s.stores.For(backend)
	if err != nil {
		return nil, fmt.Errorf("market_service: constituents: %w", err)
	}
	rc, err := store.Get(ctx, s.cfg.ConstituentsPath)
	if err != nil {
		return nil, fmt.Errorf("market_service: open constituents %s: %w", s.cfg.ConstituentsPath, err)
	}
	defer rc.Close()

	list, err := ReadConstituents(rc)
	if err != nil {
		return nil, fmt.Errorf("market_service: %w", err)
	}

	changes, err := s.changes(ctx, store)
	if err != nil {
		return nil, err
	}
	members := RewindConstituents(list, changes, date)
	if len(changes) > 0 {
		s.logger.DebugContext(ctx, "market_service: constituents rewound",
			slog.String("date", domain.Day(date).Format(domain.DateFormat)),
			slog.Int("current", len(list)),
			slog.Int("as_of", len(members)),
		)
	}
	return members, nil
}

// changes reads the index change log. It returns nil when none is configured
// or the backend has none.
func (s *MarketService) changes(ctx context.Context, store domain.BlobStore) ([]ConstituentChange, error) {
	if s.cfg.ChangesPath == "" {
		return nil, nil
	}
	rc, err := store.Get(ctx, s.cfg.ChangesPath)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("market_service: open changes %s: %w", s.cfg.ChangesPath, err)
	}
	defer rc.Close()

	changes, err := ReadChanges(rc)
	if err != nil {
		return nil, fmt.Errorf("market_service: %w", err)
	}
	return changes, nil
}

// lookupSymbol returns the symbol to query the provider with on date.
func (s *MarketService) lookupSymbol(symbol string, date time.Time) string {
	for _, a := range s.cfg.Aliases {
		if a.Symbol == symbol && date.Before(a.Before) {
			return a.UseAs
		}
	}
	return symbol
}

// Snapshot returns the stored snapshot for date. The CSV on the backend is
// read first; when it is missing the snapshot store is consulted.
func (s *MarketService) Snapshot(ctx context.Context, date time.Time, backend domain.StorageBackend) (domain.MarketSnapshot, error) {
	date = domain.Day(date)
	store, err := s.stores.For(backend)
	if err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("market_service: snapshot: %w", err)
	}

	rc, err := store.Get(ctx, SnapshotPath(date))
	if err == nil {
		defer rc.Close()
		snap, err := ReadSnapshotCSV(rc, date)
		if err != nil {
			return domain.MarketSnapshot{}, fmt.Errorf("market_service: %w", err)
		}
		return snap, nil
	}
	if !errors.Is(err, domain.ErrNotFound) || s.snapshots == nil {
		return domain.MarketSnapshot{}, fmt.Errorf("market_service: open snapshot: %w", err)
	}

	snap, err := s.snapshots.Load(ctx, date)
	if err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("market_service: load snapshot: %w", err)
	}
	return snap, nil
}

// Collect builds the snapshot for date, writes it to data/{date}.csv on the
// backend and, when configured, to the snapshot store. Constituents whose
// data cannot be loaded are logged and left out.
func (s *MarketService) Collect(ctx context.Context, date time.Time, backend domain.StorageBackend) (domain.MarketSnapshot, error) {
	date = domain.Day(date)
	store, err := s.stores.For(backend)
	if err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("market_service: collect: %w", err)
	}

	members, err := s.Constituents(ctx, backend, date)
	if err != nil {
		return domain.MarketSnapshot{}, err
	}

	lookups := make([]string, len(members))
	for i, m := range members {
		lookups[i] = s.lookupSymbol(m.Symbol, date)
	}
	quotes, err := s.provider.Quotes(ctx, uniqueStrings(lookups))
	if err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("market_service: quotes: %w", err)
	}

	prev := calendar.PreviousTradingDay(date)
	historical := !date.Equal(calendar.Today(s.now()))

	var (
		mu   sync.Mutex
		rows = make([]domain.ConstituentSnapshot, 0, len(members))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, m := range members {
		g.Go(func() error {
			row, err := s.constituentSnapshot(gctx, m, lookups[i], quotes[lookups[i]], prev, date, historical)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.metrics.SymbolFailed()
				s.logger.WarnContext(gctx, "market_service: skipping constituent",
					slog.String("symbol", m.Symbol),
					slog.String("lookup", lookups[i]),
					slog.String("error", err.Error()),
				)
				return nil
			}
			mu.Lock()
			rows = append(rows, row)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("market_service: collect %s: %w", date.Format(domain.DateFormat), err)
	}
	if len(rows) == 0 {
		return domain.MarketSnapshot{}, fmt.Errorf("market_service: collect %s: no constituent data: %w",
			date.Format(domain.DateFormat), domain.ErrDataUnavailable)
	}

	snap := buildSnapshot(date, members, rows)

	var buf bytes.Buffer
	if err := WriteSnapshotCSV(&buf, snap); err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("market_service: encode snapshot: %w", err)
	}
	if err := store.Put(ctx, SnapshotPath(date), &buf, "text/csv"); err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("market_service: write snapshot: %w", err)
	}
	if s.snapshots != nil {
		if err := s.snapshots.Save(ctx, snap); err != nil {
			s.logger.WarnContext(ctx, "market_service: snapshot store write failed",
				slog.String("date", date.Format(domain.DateFormat)),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "market_service: snapshot collected",
		slog.String("date", date.Format(domain.DateFormat)),
		slog.String("storage", string(backend)),
		slog.Int("constituents", len(snap.Constituents)),
		slog.Int("skipped", len(members)-len(snap.Constituents)),
		slog.Float64("total_market_cap", snap.TotalMarketCap),
	)
	return snap, nil
}

func (s *MarketService) constituentSnapshot(
	ctx context.Context,
	m domain.Constituent,
	lookup string,
	quote domain.Quote,
	prev, date time.Time,
	historical bool,
) (domain.ConstituentSnapshot, error) {
	if quote.MarketCap <= 0 {
		return domain.ConstituentSnapshot{}, fmt.Errorf("no market cap for %s", lookup)
	}

	points, err := s.provider.DailyCloses(ctx, lookup, prev, date)
	if err != nil {
		return domain.ConstituentSnapshot{}, err
	}
	prevClose, hasPrev := closeOn(points, prev)
	dateClose, hasDate := closeOn(points, date)

	row := domain.ConstituentSnapshot{Constituent: m, MarketCap: quote.MarketCap}
	if historical {
		if !hasDate {
			return domain.ConstituentSnapshot{}, fmt.Errorf("no close for %s on %s", lookup, date.Format(domain.DateFormat))
		}
		row.MarketCap = scaleMarketCap(quote.MarketCap, dateClose, quote.Price)
	}
	if hasPrev && hasDate {
		pct := percentChange(prevClose, dateClose)
		row.PercentChange = &pct
	}
	return row, nil
}

// IndexChange returns the index's percent change on date versus the
// previous trading day.
func (s *MarketService) IndexChange(ctx context.Context, date time.Time) (*float64, error) {
	date = domain.Day(date)
	prev := calendar.PreviousTradingDay(date)
	points, err := s.provider.DailyCloses(ctx, s.cfg.IndexSymbol, prev, date)
	if err != nil {
		return nil, fmt.Errorf("market_service: index change: %w", err)
	}
	prevClose, ok1 := closeOn(points, prev)
	dateClose, ok2 := closeOn(points, date)
	if !ok1 || !ok2 {
		return nil, nil
	}
	pct := percentChange(prevClose, dateClose)
	return &pct, nil
}

// scaleMarketCap moves a current market cap back to a past close. A zero
// price on either side leaves the cap unchanged.
func scaleMarketCap(marketCap, closeOnDate, currentPrice float64) float64 {
	if closeOnDate == 0 || currentPrice == 0 {
		return marketCap
	}
	return marketCap * closeOnDate / currentPrice
}

// percentChange is the move from prev to cur in percent, or 0 when prev is 0.
func percentChange(prev, cur float64) float64 {
	if prev == 0 {
		return 0
	}
	return (cur - prev) / prev * 100
}

func closeOn(points []domain.PricePoint, d time.Time) (float64, bool) {
	for _, p := range points {
		if p.Date.Equal(d) {
			return p.Close, true
		}
	}
	return 0, false
}

// buildSnapshot orders rows as the constituent list does and fills in each
// share of the total market cap, in percent.
func buildSnapshot(date time.Time, members []domain.Constituent, rows []domain.ConstituentSnapshot) domain.MarketSnapshot {
	order := make(map[string]int, len(members))
	for i, m := range members {
		order[m.Symbol] = i
	}
	sort.Slice(rows, func(i, j int) bool { return order[rows[i].Symbol] < order[rows[j].Symbol] })

	var total float64
	for _, r := range rows {
		total += r.MarketCap
	}
	for i := range rows {
		if total > 0 {
			rows[i].ShareOfTotal = rows[i].MarketCap / total * 100
		}
	}
	return domain.MarketSnapshot{Date: date, Constituents: rows, TotalMarketCap: total}
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// NormalizeSymbol converts share-class dots to the provider's dashes, e.g.
// BRK.B -> BRK-B.
func NormalizeSymbol(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), ".", "-")
}
