package reporting

import (
	"github.com/ducminhle1904/regime-optimizer/internal/backtest"
	"github.com/ducminhle1904/regime-optimizer/internal/regime"
	"github.com/ducminhle1904/regime-optimizer/pkg/results"
	"github.com/ducminhle1904/regime-optimizer/pkg/validation"
	"github.com/ducminhle1904/regime-optimizer/pkg/types"
)

// Package reporting renders optimization runs for people: console tables,
// Excel workbooks and trade CSVs. Machine-readable artifacts live in
// pkg/results.

// ConsoleReporter defines interface for console output
type ConsoleReporter interface {
	PrintRunInfo(meta results.Meta)
	PrintRankedResults(title string, ranked []results.RankedResult, top int)
	PrintRegimeSummary(summary regime.Summary)
	PrintPeriods(periods []regime.Period, limit int)
	PrintSelections(regimeID string, selections []results.SignalSelection)
	PrintMetrics(title string, m backtest.Metrics)
	PrintHoldout(summary *validation.Summary)
}

// FileReporter defines interface for file output
type FileReporter interface {
	WriteTradesCSV(trades []backtest.Trade, path string) error
	WriteLabelsCSV(bars []types.OHLCV, labels []string, path string) error
	WriteWorkbook(wb Workbook, path string) error
}

// PathManager defines interface for output path management
type PathManager interface {
	GetDefaultOutputDir(root, symbol, interval string) string
	EnsureDirectoryExists(path string) error
}

// Reporter combines all reporting interfaces
type Reporter interface {
	ConsoleReporter
	FileReporter
	PathManager
}

// Workbook is the content of an Excel report. Empty sections keep their
// header row.
type Workbook struct {
	Ranked  []results.RankedResult
	Periods []regime.Period
	Trades  []backtest.Trade
}

// ExcelStyles holds Excel formatting styles
type ExcelStyles struct {
	HeaderStyle       int
	BaseStyle         int
	NumberStyle       int
	CurrencyStyle     int
	PercentStyle      int
	RedPercentStyle   int
	GreenPercentStyle int
	SelectedStyle     int
}

// ReportingConfig holds configuration for reporting
type ReportingConfig struct {
	EnableConsole bool
	EnableFiles   bool
	// OutputDirectory is the results root; files go to <root>/<SYMBOL>_<interval>
	OutputDirectory string
	ExcelEnabled    bool
	CSVEnabled      bool
	Top             int
}
