package service

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/indexlab/internal/domain"
)

// Constituent list columns, as published for the index.
const (
	colSymbol      = "Symbol"
	colSecurity    = "Security"
	colSector      = "GICS Sector"
	colSubIndustry = "GICS Sub-Industry"
	colFounded     = "Founded"
	colDateAdded   = "Date added"

	colChangeDate      = "Date"
	colAdded           = "Added"
	colRemoved         = "Removed"
	colRemovedSecurity = "Removed Security"
	colRemovedSector   = "Removed Sector"
	colRemovedSubInd   = "Removed Sub-Industry"

	colMarketCap     = "market_cap"
	colPercentChange = "percent_change"
	colShare         = "%_of_total_market_cap"
)

var snapshotHeader = []string{
	colSymbol, colSecurity, colSector, colSubIndustry, colFounded, colDateAdded,
	colMarketCap, colPercentChange, colShare,
}

// columnIndex maps header names to positions and checks that every name in
// required is present.
func columnIndex(header []string, required ...string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	var missing []string
	for _, r := range required {
		if _, ok := idx[r]; !ok {
			missing = append(missing, r)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}
	return idx, nil
}

func field(rec []string, idx map[string]int, name string) string {
	i, ok := idx[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// ReadConstituents parses a constituent list CSV. Symbols are normalized and
// blank rows are skipped.
func ReadConstituents(r io.Reader) ([]domain.Constituent, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read constituents header: %w", err)
	}
	idx, err := columnIndex(header, colSymbol, colSecurity, colSector, colSubIndustry)
	if err != nil {
		return nil, fmt.Errorf("constituents: %w", err)
	}

	var out []domain.Constituent
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read constituents line %d: %w", line, err)
		}
		sym := NormalizeSymbol(field(rec, idx, colSymbol))
		if sym == "" {
			continue
		}
		out = append(out, domain.Constituent{
			Symbol:      sym,
			Security:    field(rec, idx, colSecurity),
			Sector:      field(rec, idx, colSector),
			SubIndustry: field(rec, idx, colSubIndustry),
			Founded:     field(rec, idx, colFounded),
			DateAdded:   field(rec, idx, colDateAdded),
		})
	}
	return out, nil
}

// ConstituentChange is one row of the index change log: on Date, Added joined
// the index and Removed left it. Either symbol may be empty.
type ConstituentChange struct {
	Date    time.Time
	Added   string
	Removed domain.Constituent
}

// ReadChanges parses an index change log CSV with columns Date, Added and
// Removed, plus optional Removed Security, Removed Sector and Removed
// Sub-Industry describing the departed company.
func ReadChanges(r io.Reader) ([]ConstituentChange, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read changes header: %w", err)
	}
	idx, err := columnIndex(header, colChangeDate, colAdded, colRemoved)
	if err != nil {
		return nil, fmt.Errorf("changes: %w", err)
	}

	var out []ConstituentChange
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read changes line %d: %w", line, err)
		}
		added := NormalizeSymbol(field(rec, idx, colAdded))
		removed := NormalizeSymbol(field(rec, idx, colRemoved))
		if added == "" && removed == "" {
			continue
		}
		raw := field(rec, idx, colChangeDate)
		d, err := time.Parse(domain.DateFormat, raw)
		if err != nil {
			return nil, fmt.Errorf("changes line %d: date %q: %w", line, raw, err)
		}
		out = append(out, ConstituentChange{
			Date:  d,
			Added: added,
			Removed: domain.Constituent{
				Symbol:      removed,
				Security:    field(rec, idx, colRemovedSecurity),
				Sector:      field(rec, idx, colRemovedSector),
				SubIndustry: field(rec, idx, colRemovedSubInd),
			},
		})
	}
	return out, nil
}

// RewindConstituents returns the membership as of date given the current
// list: every change effective on or after date is undone, newest first.
// Symbols added by those changes are dropped and symbols they removed are
// restored.
func RewindConstituents(current []domain.Constituent, changes []ConstituentChange, date time.Time) []domain.Constituent {
	date = domain.Day(date)
	pending := make([]ConstituentChange, 0, len(changes))
	for _, c := range changes {
		if !c.Date.Before(date) {
			pending = append(pending, c)
		}
	}
	if len(pending) == 0 {
		return current
	}
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].Date.After(pending[j].Date) })

	out := append([]domain.Constituent(nil), current...)
	for _, c := range pending {
		if c.Added != "" {
			out = slices.DeleteFunc(out, func(m domain.Constituent) bool { return m.Symbol == c.Added })
		}
		if sym := c.Removed.Symbol; sym != "" &&
			!slices.ContainsFunc(out, func(m domain.Constituent) bool { return m.Symbol == sym }) {
			out = append(out, c.Removed)
		}
	}
	return out
}

// WriteSnapshotCSV writes snap in the data/{date}.csv layout. A missing
// percent change is an empty cell.
func WriteSnapshotCSV(w io.Writer, snap domain.MarketSnapshot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(snapshotHeader); err != nil {
		return err
	}
	for _, c := range snap.Constituents {
		pct := ""
		if c.PercentChange != nil {
			pct = strconv.FormatFloat(*c.PercentChange, 'f', -1, 64)
		}
		if err := cw.Write([]string{
			c.Symbol, c.Security, c.Sector, c.SubIndustry, c.Founded, c.DateAdded,
			strconv.FormatFloat(c.MarketCap, 'f', -1, 64),
			pct,
			strconv.FormatFloat(c.ShareOfTotal, 'f', -1, 64),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadSnapshotCSV parses a file written by WriteSnapshotCSV. Rows without a
// market cap are dropped.
func ReadSnapshotCSV(r io.Reader, date time.Time) (domain.MarketSnapshot, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("read snapshot header: %w", err)
	}
	idx, err := columnIndex(header, colSymbol, colSecurity, colSector, colSubIndustry, colMarketCap, colPercentChange, colShare)
	if err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("snapshot: %w", err)
	}

	snap := domain.MarketSnapshot{Date: domain.Day(date)}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.MarketSnapshot{}, fmt.Errorf("read snapshot line %d: %w", line, err)
		}

		capStr := field(rec, idx, colMarketCap)
		if capStr == "" {
			continue
		}
		mcap, err := strconv.ParseFloat(capStr, 64)
		if err != nil {
			return domain.MarketSnapshot{}, fmt.Errorf("snapshot line %d: market_cap %q: %w", line, capStr, err)
		}
		row := domain.ConstituentSnapshot{
			Constituent: domain.Constituent{
				Symbol:      field(rec, idx, colSymbol),
				Security:    field(rec, idx, colSecurity),
				Sector:      field(rec, idx, colSector),
				SubIndustry: field(rec, idx, colSubIndustry),
				Founded:     field(rec, idx, colFounded),
				DateAdded:   field(rec, idx, colDateAdded),
			},
			MarketCap: mcap,
		}
		if s := field(rec, idx, colPercentChange); s != "" {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return domain.MarketSnapshot{}, fmt.Errorf("snapshot line %d: percent_change %q: %w", line, s, err)
			}
			row.PercentChange = &v
		}
		if s := field(rec, idx, colShare); s != "" {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return domain.MarketSnapshot{}, fmt.Errorf("snapshot line %d: share %q: %w", line, s, err)
			}
			row.ShareOfTotal = v
		}
		snap.TotalMarketCap += mcap
		snap.Constituents = append(snap.Constituents, row)
	}
	return snap, nil
}
