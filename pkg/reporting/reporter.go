package reporting

import (
	"path/filepath"

	"github.com/ducminhle1904/regime-optimizer/internal/backtest"
	"github.com/ducminhle1904/regime-optimizer/internal/regime"
	"github.com/ducminhle1904/regime-optimizer/pkg/results"
	"github.com/ducminhle1904/regime-optimizer/pkg/types"
	"github.com/ducminhle1904/regime-optimizer/pkg/validation"
)

// Report file names inside the output directory
const (
	RegimeWorkbookFile = "regime_report.xlsx"
	TradesWorkbookFile = "trades.xlsx"
	TradesCSVFile      = "trades.csv"
	LabelsCSVFile      = "labels.csv"
)

// periodRows caps the periods printed to the console
const periodRows = 20

// DefaultReporter implements the complete Reporter interface
type DefaultReporter struct {
	*DefaultConsoleReporter
	csv   *DefaultCSVReporter
	excel *DefaultExcelReporter
	paths *DefaultPathManager
}

// NewDefaultReporter creates a new default reporter with all functionality
func NewDefaultReporter() *DefaultReporter {
	return NewReporter(NewDefaultConsoleReporter())
}

// NewReporter creates a reporter printing through console
func NewReporter(console *DefaultConsoleReporter) *DefaultReporter {
	return &DefaultReporter{
		DefaultConsoleReporter: console,
		csv:                    NewDefaultCSVReporter(),
		excel:                  NewDefaultExcelReporter(),
		paths:                  NewDefaultPathManager(),
	}
}

// File output methods
func (r *DefaultReporter) WriteTradesCSV(trades []backtest.Trade, path string) error {
	return r.csv.WriteTradesCSV(trades, path)
}

func (r *DefaultReporter) WriteLabelsCSV(bars []types.OHLCV, labels []string, path string) error {
	return r.csv.WriteLabelsCSV(bars, labels, path)
}

func (r *DefaultReporter) WriteWorkbook(wb Workbook, path string) error {
	return r.excel.WriteWorkbook(wb, path)
}

// Path management methods
func (r *DefaultReporter) GetDefaultOutputDir(root, symbol, interval string) string {
	return r.paths.GetDefaultOutputDir(root, symbol, interval)
}

func (r *DefaultReporter) EnsureDirectoryExists(path string) error {
	return r.paths.EnsureDirectoryExists(path)
}

// ReportingManager provides a high-level interface for all reporting needs
type ReportingManager struct {
	reporter Reporter
	config   ReportingConfig
}

// NewReportingManager creates a new reporting manager with configuration
func NewReportingManager(config ReportingConfig) *ReportingManager {
	return NewReportingManagerWithReporter(NewDefaultReporter(), config)
}

// NewReportingManagerWithReporter uses a custom reporter
func NewReportingManagerWithReporter(reporter Reporter, config ReportingConfig) *ReportingManager {
	return &ReportingManager{reporter: reporter, config: config}
}

// OutputDir is the directory a run's files are written to
func (m *ReportingManager) OutputDir(meta results.Meta) string {
	return m.reporter.GetDefaultOutputDir(m.config.OutputDirectory, meta.Symbol, meta.Interval)
}

// ReportClassification prints a labelling and optionally writes the
// per-bar labels. It returns the files written.
func (m *ReportingManager) ReportClassification(meta results.Meta, bars []types.OHLCV, labels []string, periods []regime.Period) ([]string, error) {
	if m.config.EnableConsole {
		m.reporter.PrintRunInfo(meta)
		m.reporter.PrintRegimeSummary(regime.Summarize(labels))
		m.reporter.PrintPeriods(periods, periodRows)
	}
	if !m.config.EnableFiles || !m.config.CSVEnabled {
		return nil, nil
	}
	path := filepath.Join(m.OutputDir(meta), LabelsCSVFile)
	if err := m.reporter.WriteLabelsCSV(bars, labels, path); err != nil {
		return nil, err
	}
	return []string{path}, nil
}

// ReportRegimeSearch prints the ranked Stage-1 trials and the periods of
// the selected configuration
func (m *ReportingManager) ReportRegimeSearch(meta results.Meta, ranked []results.RankedResult, periods []regime.Period) ([]string, error) {
	if m.config.EnableConsole {
		m.reporter.PrintRunInfo(meta)
		m.reporter.PrintRankedResults("REGIME TRIALS", ranked, m.config.Top)
		if meta.RegimeSummary != nil {
			m.reporter.PrintRegimeSummary(*meta.RegimeSummary)
		}
		if len(periods) > 0 {
			m.reporter.PrintPeriods(periods, periodRows)
		}
	}
	if !m.config.EnableFiles || !m.config.ExcelEnabled {
		return nil, nil
	}
	path := filepath.Join(m.OutputDir(meta), RegimeWorkbookFile)
	if err := m.reporter.WriteWorkbook(Workbook{Ranked: ranked, Periods: periods}, path); err != nil {
		return nil, err
	}
	return []string{path}, nil
}

// ReportSignalSearch prints the selected signals of one regime and the
// combined backtest of the selected entry and exit. result may be nil.
func (m *ReportingManager) ReportSignalSearch(meta results.Meta, regimeID string, selections []results.SignalSelection, periods []regime.Period, result *backtest.Result) ([]string, error) {
	if m.config.EnableConsole {
		m.reporter.PrintRunInfo(meta)
		m.reporter.PrintSelections(regimeID, selections)
		if result != nil {
			m.reporter.PrintMetrics("SELECTED SIGNALS BACKTEST", result.Metrics)
		}
	}
	if !m.config.EnableFiles {
		return nil, nil
	}

	var trades []backtest.Trade
	if result != nil {
		trades = result.Trades
	}
	dir := filepath.Join(m.OutputDir(meta), regimeID)
	var written []string
	if m.config.CSVEnabled {
		path := filepath.Join(dir, TradesCSVFile)
		if err := m.reporter.WriteTradesCSV(trades, path); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	if m.config.ExcelEnabled {
		path := filepath.Join(dir, TradesWorkbookFile)
		if err := m.reporter.WriteWorkbook(Workbook{Periods: periods, Trades: trades}, path); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

// ReportHoldout prints a holdout comparison
func (m *ReportingManager) ReportHoldout(summary *validation.Summary) {
	if m.config.EnableConsole {
		m.reporter.PrintHoldout(summary)
	}
}
