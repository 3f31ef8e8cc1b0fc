package data

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ducminhle1904/regime-optimizer/internal/errors"
	"github.com/ducminhle1904/regime-optimizer/pkg/types"
)

// Sources understood by DataManager.Load
const (
	SourceCSV   = "csv"
	SourceBybit = "bybit"
)

// Query describes the bars a run needs
type Query struct {
	Source   string
	File     string
	Root     string
	Exchange string
	Category string
	Symbol   string
	Interval string
	Start    time.Time
	End      time.Time
	Period   time.Duration // trailing window, zero keeps everything
	Limit    int
}

// DataManager combines loading, locating and filtering
type DataManager struct {
	provider DataProvider
	fetcher  KlineFetcher
	filter   *DefaultDataFilter
	locator  *DefaultFileLocator
	log      zerolog.Logger
}

// NewDataManager creates a data manager reading cached CSV files. fetcher
// serves the bybit source and may be nil.
func NewDataManager(log zerolog.Logger, fetcher KlineFetcher) *DataManager {
	return NewDataManagerWithProvider(NewCachedProvider(NewCSVProvider(log), log), fetcher, log)
}

// NewDataManagerWithProvider creates a data manager with a custom provider
func NewDataManagerWithProvider(provider DataProvider, fetcher KlineFetcher, log zerolog.Logger) *DataManager {
	return &DataManager{
		provider: provider,
		fetcher:  fetcher,
		filter:   NewDefaultDataFilter(),
		locator:  NewDefaultFileLocator(log),
		log:      log,
	}
}

// Load returns validated, chronologically ordered bars for q together with
// a description of where they came from
func (dm *DataManager) Load(ctx context.Context, q Query) ([]types.OHLCV, string, error) {
	var (
		bars   []types.OHLCV
		origin string
		err    error
	)
	switch q.Source {
	case "", SourceCSV:
		origin = q.File
		if origin == "" {
			origin = dm.locator.FindCategoryFile(q.Root, q.Exchange, q.Category, q.Symbol, q.Interval)
		}
		if origin == "" {
			return nil, "", errors.NewConfigError("data", "file",
				"no data file for %s %s under %s", q.Symbol, q.Interval, q.Root)
		}
		bars, err = dm.provider.LoadData(origin)
	case SourceBybit:
		if dm.fetcher == nil {
			return nil, "", errors.NewConfigError("data", "source", "bybit source is not configured")
		}
		origin = "bybit:" + strings.ToLower(q.Category) + ":" + strings.ToUpper(q.Symbol) + ":" + q.Interval
		bars, err = dm.fetcher.FetchKlines(ctx, KlineRequest{
			Category: q.Category,
			Symbol:   q.Symbol,
			Interval: q.Interval,
			Start:    q.Start,
			End:      q.End,
			Limit:    q.Limit,
		})
	default:
		return nil, "", errors.NewConfigError("data", "source", "unknown data source %q", q.Source)
	}
	if err != nil {
		return nil, origin, err
	}

	bars = dm.filter.Normalize(bars)
	if !q.Start.IsZero() || !q.End.IsZero() {
		bars = dm.filter.FilterByDateRange(bars, q.Start, q.End)
	}
	bars = dm.filter.FilterByPeriod(bars, q.Period)
	if err := ValidateBars(bars); err != nil {
		return nil, origin, err
	}

	dm.log.Info().Str("origin", origin).Int("bars", len(bars)).
		Time("from", bars[0].Timestamp).Time("to", bars[len(bars)-1].Timestamp).Msg("Bars loaded")
	return bars, origin, nil
}

// FindDataFile locates a candles file
func (dm *DataManager) FindDataFile(dataRoot, exchange, symbol, interval string) string {
	return dm.locator.FindDataFile(dataRoot, exchange, symbol, interval)
}

// ParseTrailingPeriod parses period strings like "7d", "30d", "180d"
func ParseTrailingPeriod(s string) (time.Duration, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if strings.HasSuffix(s, "days") {
		s = strings.TrimSuffix(s, "days") + "d"
	}
	if strings.HasSuffix(s, "d") {
		nStr := strings.TrimSuffix(s, "d")
		if nStr == "" {
			return 0, false
		}
		n, err := strconv.Atoi(nStr)
		if err != nil || n <= 0 {
			return 0, false
		}
		return time.Duration(n) * 24 * time.Hour, true
	}
	// allow raw durations too (e.g., 168h)
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d, true
	}
	return 0, false
}

// ParseDate parses YYYY-MM-DD as UTC midnight; an empty string is the zero time
func ParseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return time.Time{}, errors.NewConfigError("data", "date", "invalid date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}
