package data

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// CandlesFile is the file name inside a symbol/interval directory
const CandlesFile = "candles.csv"

// DefaultFileLocator implements FileLocator for the layout
// {root}/{exchange}/{category}/{SYMBOL}/{interval minutes}/candles.csv
type DefaultFileLocator struct {
	log zerolog.Logger
}

// NewDefaultFileLocator creates a new default file locator
func NewDefaultFileLocator(log zerolog.Logger) *DefaultFileLocator {
	return &DefaultFileLocator{log: log}
}

// ConvertIntervalToMinutes converts interval strings like "5m", "1h", "4h" to minute numbers
func (f *DefaultFileLocator) ConvertIntervalToMinutes(interval string) string {
	return IntervalMinutes(interval)
}

// IntervalMinutes converts "5m", "1h", "1d" and "1w" to minutes. Other
// inputs are returned unchanged.
func IntervalMinutes(interval string) string {
	// If it's already just a number, return as-is
	if _, err := strconv.Atoi(interval); err == nil {
		return interval
	}

	interval = strings.ToLower(strings.TrimSpace(interval))
	if len(interval) < 2 {
		return interval
	}
	num, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil {
		return interval
	}

	switch interval[len(interval)-1:] {
	case "m":
		return strconv.Itoa(num)
	case "h":
		return strconv.Itoa(num * 60)
	case "d":
		return strconv.Itoa(num * 24 * 60)
	case "w":
		return strconv.Itoa(num * 7 * 24 * 60)
	default:
		return interval
	}
}

// DataPath is where the fetch command stores a series
func DataPath(dataRoot, exchange, category, symbol, interval string) string {
	return filepath.Join(dataRoot, strings.ToLower(exchange), strings.ToLower(category),
		strings.ToUpper(symbol), IntervalMinutes(interval), CandlesFile)
}

// FindDataFile returns the first existing candles file across the
// categories of exchange, or "" when none exists
func (f *DefaultFileLocator) FindDataFile(dataRoot, exchange, symbol, interval string) string {
	var categories []string
	switch strings.ToLower(exchange) {
	case "bybit":
		categories = []string{"spot", "linear", "inverse"}
	case "binance":
		categories = []string{"spot", "futures"}
	default:
		categories = []string{"spot", "futures", "linear", "inverse"}
	}
	return f.find(dataRoot, exchange, symbol, interval, categories)
}

// FindCategoryFile checks the preferred category before the others
func (f *DefaultFileLocator) FindCategoryFile(dataRoot, exchange, category, symbol, interval string) string {
	if category != "" {
		path := DataPath(dataRoot, exchange, category, symbol, interval)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return f.FindDataFile(dataRoot, exchange, symbol, interval)
}

func (f *DefaultFileLocator) find(dataRoot, exchange, symbol, interval string, categories []string) string {
	attempted := make([]string, 0, len(categories))
	for _, category := range categories {
		path := DataPath(dataRoot, exchange, category, symbol, interval)
		attempted = append(attempted, path)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	f.log.Warn().Str("exchange", exchange).Str("symbol", symbol).Str("interval", interval).
		Strs("attempted", attempted).Msg("No data file found")
	return ""
}
