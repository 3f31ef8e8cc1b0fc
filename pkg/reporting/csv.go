package reporting

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ducminhle1904/regime-optimizer/internal/backtest"
	"github.com/ducminhle1904/regime-optimizer/pkg/types"
)

const csvTimeFormat = "2006-01-02 15:04:05"

// DefaultCSVReporter implements CSV output functionality
type DefaultCSVReporter struct {
	paths *DefaultPathManager
}

// NewDefaultCSVReporter creates a new CSV reporter
func NewDefaultCSVReporter() *DefaultCSVReporter {
	return &DefaultCSVReporter{paths: NewDefaultPathManager()}
}

// WriteTradesCSV writes one row per closed trade
func (r *DefaultCSVReporter) WriteTradesCSV(trades []backtest.Trade, path string) error {
	rows := make([][]string, 0, len(trades)+1)
	rows = append(rows, []string{
		"Trade", "Side", "Entry_Time", "Exit_Time", "Entry_Price", "Exit_Price",
		"Quantity", "Fees", "PnL", "Return_%", "Exit_Reason", "Regimes", "Win_Loss",
	})
	for i, t := range trades {
		result := "LOSS"
		if t.PnL > 0 {
			result = "WIN"
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			string(t.Side),
			t.EntryTime.UTC().Format(csvTimeFormat),
			t.ExitTime.UTC().Format(csvTimeFormat),
			formatFloat(t.EntryPrice, 8),
			formatFloat(t.ExitPrice, 8),
			formatFloat(t.Quantity, 8),
			formatFloat(t.Fees, 4),
			formatFloat(t.PnL, 4),
			formatFloat(t.ReturnPct, 4),
			string(t.ExitReason),
			strings.Join(t.RegimeIDs, "|"),
			result,
		})
	}
	return r.write(path, rows)
}

// WriteLabelsCSV writes the regime label of every bar next to its candle
func (r *DefaultCSVReporter) WriteLabelsCSV(bars []types.OHLCV, labels []string, path string) error {
	if len(bars) != len(labels) {
		return fmt.Errorf("got %d labels for %d bars", len(labels), len(bars))
	}
	rows := make([][]string, 0, len(bars)+1)
	rows = append(rows, []string{"timestamp", "open", "high", "low", "close", "volume", "regime"})
	for i, b := range bars {
		rows = append(rows, []string{
			b.Timestamp.UTC().Format(csvTimeFormat),
			formatFloat(b.Open, -1),
			formatFloat(b.High, -1),
			formatFloat(b.Low, -1),
			formatFloat(b.Close, -1),
			formatFloat(b.Volume, -1),
			labels[i],
		})
	}
	return r.write(path, rows)
}

func (r *DefaultCSVReporter) write(path string, rows [][]string) error {
	if err := r.paths.EnsureDirectoryExists(path); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func formatFloat(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}
