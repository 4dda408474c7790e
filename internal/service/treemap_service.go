package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/indexlab/internal/blob"
	"github.com/alanyoungcy/indexlab/internal/calendar"
	"github.com/alanyoungcy/indexlab/internal/domain"
	"github.com/alanyoungcy/indexlab/internal/observability"
	"github.com/alanyoungcy/indexlab/internal/render/treemap"
)

// Blob key prefixes for treemap artifacts.
const (
	TreemapPrefix  = "treemaps/"
	MetadataPrefix = "treemap_metadata/"
	StatusPrefix   = "status_logs/"
)

// Daily job outcomes, used as the status log file suffix.
const (
	OutcomeSuccess        = "success"
	OutcomeSuccessToday   = "success_current_date"
	OutcomeNonTradingDay  = "valid_nontrading_day"
	OutcomeFuture         = "future_not_exist"
	OutcomeBadDate        = "value_error"
	OutcomeFailed         = "error"
	statusTimestampLayout = "2006-01-02_15-04-05"
)

var pageName = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}_treemap\.html$`)

// TreemapPath is the blob key of the rendered page for date.
func TreemapPath(date time.Time) string {
	return TreemapPrefix + date.Format(domain.DateFormat) + "_treemap.html"
}

// MetadataPath is the blob key of the metadata record for date.
func MetadataPath(date time.Time) string {
	return MetadataPrefix + date.Format(domain.DateFormat) + ".json"
}

// snapshotSource is the part of MarketService the treemap needs.
type snapshotSource interface {
	Collect(ctx context.Context, date time.Time, backend domain.StorageBackend) (domain.MarketSnapshot, error)
	Snapshot(ctx context.Context, date time.Time, backend domain.StorageBackend) (domain.MarketSnapshot, error)
	IndexChange(ctx context.Context, date time.Time) (*float64, error)
}

// TreemapService renders treemap pages from stored snapshots and runs the
// daily collection job.
type TreemapService struct {
	market      snapshotSource
	stores      blob.Stores
	locks       domain.LockManager
	useIndustry bool
	metrics     *observability.Metrics
	logger      *slog.Logger
	now         func() time.Time
}

// NewTreemapService creates a TreemapService. locks and metrics may be nil.
func NewTreemapService(
	market snapshotSource,
	stores blob.Stores,
	locks domain.LockManager,
	useIndustry bool,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *TreemapService {
	return &TreemapService{
		market:      market,
		stores:      stores,
		locks:       locks,
		useIndustry: useIndustry,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
	}
}

// Generate renders the treemap for an already collected snapshot and writes
// the page and its metadata. It never calls the market data provider for
// constituent prices.
func (s *TreemapService) Generate(ctx context.Context, date time.Time, backend domain.StorageBackend) (domain.TreemapMetadata, error) {
	date = domain.Day(date)
	store, err := s.stores.For(backend)
	if err != nil {
		return domain.TreemapMetadata{}, fmt.Errorf("treemap_service: %w", err)
	}

	snap, err := s.market.Snapshot(ctx, date, backend)
	if err != nil {
		return domain.TreemapMetadata{}, fmt.Errorf("treemap_service: %w", err)
	}
	return s.publish(ctx, store, snap)
}

func (s *TreemapService) publish(ctx context.Context, store domain.BlobStore, snap domain.MarketSnapshot) (domain.TreemapMetadata, error) {
	change, err := s.market.IndexChange(ctx, snap.Date)
	if err != nil {
		s.logger.WarnContext(ctx, "treemap_service: index change unavailable",
			slog.String("date", snap.Date.Format(domain.DateFormat)),
			slog.String("error", err.Error()),
		)
	}

	var page bytes.Buffer
	if err := treemap.Render(&page, snap, treemap.Options{UseIndustry: s.useIndustry, IndexChange: change}); err != nil {
		return domain.TreemapMetadata{}, fmt.Errorf("treemap_service: render: %w", err)
	}
	if err := store.Put(ctx, TreemapPath(snap.Date), &page, "text/html; charset=utf-8"); err != nil {
		return domain.TreemapMetadata{}, fmt.Errorf("treemap_service: write page: %w", err)
	}

	meta := domain.TreemapMetadata{
		Date:               snap.Date.Format(domain.DateFormat),
		SP500PercentChange: change,
		TotalMarketCap:     treemap.FormatTotalMarketCap(snap.TotalMarketCap),
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return domain.TreemapMetadata{}, fmt.Errorf("treemap_service: encode metadata: %w", err)
	}
	if err := store.Put(ctx, MetadataPath(snap.Date), bytes.NewReader(raw), "application/json"); err != nil {
		return domain.TreemapMetadata{}, fmt.Errorf("treemap_service: write metadata: %w", err)
	}

	s.logger.InfoContext(ctx, "treemap_service: treemap published",
		slog.String("date", meta.Date),
		slog.String("total_market_cap", meta.TotalMarketCap),
	)
	return meta, nil
}

// RunDaily validates dateStr, collects the snapshot, publishes the treemap
// and records the outcome under status_logs/. A valid non-trading day is
// not an error.
func (s *TreemapService) RunDaily(ctx context.Context, dateStr string, backend domain.StorageBackend) (outcome string, err error) {
	now := s.now()
	defer func() {
		if outcome == OutcomeNonTradingDay {
			return
		}
		s.metrics.ObserveTreemapRun(err, now)
	}()

	date, perr := domain.ParseDate(dateStr)
	switch {
	case perr != nil:
		outcome, err = OutcomeBadDate, perr
	case !calendar.IsTradingDay(date):
		outcome = OutcomeNonTradingDay
	case date.After(calendar.Today(now)):
		outcome, err = OutcomeFuture, fmt.Errorf("%w: %s is in the future", domain.ErrInvalidDate, dateStr)
	default:
		err = s.collectAndPublish(ctx, date, backend)
		switch {
		case err != nil:
			outcome = OutcomeFailed
		case date.Equal(calendar.Today(now)):
			outcome = OutcomeSuccessToday
		default:
			outcome = OutcomeSuccess
		}
	}

	if werr := s.writeStatus(ctx, backend, now, outcome, statusMessage(dateStr, outcome, err)); werr != nil {
		s.logger.WarnContext(ctx, "treemap_service: status log write failed", slog.String("error", werr.Error()))
	}
	if err != nil {
		return outcome, fmt.Errorf("treemap_service: daily %s: %w", dateStr, err)
	}
	return outcome, nil
}

func (s *TreemapService) collectAndPublish(ctx context.Context, date time.Time, backend domain.StorageBackend) error {
	if s.locks != nil {
		release, err := s.locks.Acquire(ctx, "treemap:"+string(backend)+":"+date.Format(domain.DateFormat), 30*time.Minute)
		if err != nil {
			return err
		}
		defer release()
	}

	store, err := s.stores.For(backend)
	if err != nil {
		return err
	}
	snap, err := s.market.Collect(ctx, date, backend)
	if err != nil {
		return err
	}
	_, err = s.publish(ctx, store, snap)
	return err
}

func statusMessage(dateStr, outcome string, err error) string {
	switch outcome {
	case OutcomeSuccess, OutcomeSuccessToday:
		return fmt.Sprintf("Successfully generated treemap for %s.", dateStr)
	case OutcomeNonTradingDay:
		return fmt.Sprintf("No issue: %s is not a trading day.", dateStr)
	case OutcomeFuture:
		return fmt.Sprintf("Invalid date: %s is in the future.", dateStr)
	case OutcomeBadDate:
		return fmt.Sprintf("Invalid date format: %s. Use yyyy-mm-dd format.", dateStr)
	default:
		return fmt.Sprintf("Treemap generation for %s failed: %v", dateStr, err)
	}
}

func (s *TreemapService) writeStatus(ctx context.Context, backend domain.StorageBackend, at time.Time, outcome, msg string) error {
	store, err := s.stores.For(backend)
	if err != nil {
		return err
	}
	key := StatusPrefix + at.Format(statusTimestampLayout) + "_" + outcome + ".txt"
	return store.Put(ctx, key, strings.NewReader(msg+"\n"), "text/plain; charset=utf-8")
}

// ListMetadata returns every metadata record on the backend, oldest first,
// with the index change rounded to two decimals.
func (s *TreemapService) ListMetadata(ctx context.Context, backend domain.StorageBackend) ([]domain.TreemapMetadata, error) {
	store, err := s.stores.For(backend)
	if err != nil {
		return nil, fmt.Errorf("treemap_service: %w", err)
	}
	infos, err := store.List(ctx, MetadataPrefix)
	if err != nil {
		return nil, fmt.Errorf("treemap_service: list metadata: %w", err)
	}

	out := make([]domain.TreemapMetadata, 0, len(infos))
	for _, info := range infos {
		if !strings.HasSuffix(info.Path, ".json") {
			continue
		}
		meta, err := readMetadata(ctx, store, info.Path)
		if err != nil {
			return nil, fmt.Errorf("treemap_service: %w", err)
		}
		if meta.SP500PercentChange != nil {
			v, _ := decimal.NewFromFloat(*meta.SP500PercentChange).Round(2).Float64()
			meta.SP500PercentChange = &v
		}
		out = append(out, meta)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func readMetadata(ctx context.Context, store domain.BlobReader, key string) (domain.TreemapMetadata, error) {
	rc, err := store.Get(ctx, key)
	if err != nil {
		return domain.TreemapMetadata{}, fmt.Errorf("read %s: %w", key, err)
	}
	defer rc.Close()
	var meta domain.TreemapMetadata
	if err := json.NewDecoder(rc).Decode(&meta); err != nil {
		return domain.TreemapMetadata{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return meta, nil
}

// ListPages returns the treemap page file names on the backend, newest first.
func (s *TreemapService) ListPages(ctx context.Context, backend domain.StorageBackend) ([]string, error) {
	store, err := s.stores.For(backend)
	if err != nil {
		return nil, fmt.Errorf("treemap_service: %w", err)
	}
	infos, err := store.List(ctx, TreemapPrefix)
	if err != nil {
		return nil, fmt.Errorf("treemap_service: list pages: %w", err)
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		name := path.Base(info.Path)
		if pageName.MatchString(name) {
			names = append(names, name)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

// OpenPage opens a page returned by ListPages. Names that are not treemap
// pages report domain.ErrNotFound.
func (s *TreemapService) OpenPage(ctx context.Context, backend domain.StorageBackend, name string) (io.ReadCloser, error) {
	if !pageName.MatchString(name) {
		return nil, fmt.Errorf("treemap_service: page %q: %w", name, domain.ErrNotFound)
	}
	store, err := s.stores.For(backend)
	if err != nil {
		return nil, fmt.Errorf("treemap_service: %w", err)
	}
	rc, err := store.Get(ctx, TreemapPrefix+name)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("treemap_service: page %q: %w", name, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("treemap_service: open page: %w", err)
	}
	return rc, nil
}
