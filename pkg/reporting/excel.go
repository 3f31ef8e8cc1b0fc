package reporting

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ducminhle1904/regime-optimizer/internal/backtest"
	"github.com/ducminhle1904/regime-optimizer/internal/regime"
	"github.com/ducminhle1904/regime-optimizer/pkg/results"
)

// Sheet names of the workbook
const (
	RankedSheet  = "Ranked Trials"
	PeriodsSheet = "Regime Periods"
	TradesSheet  = "Trades"
)

// DefaultExcelReporter implements Excel output functionality
type DefaultExcelReporter struct {
	paths *DefaultPathManager
}

// NewDefaultExcelReporter creates a new Excel reporter
func NewDefaultExcelReporter() *DefaultExcelReporter {
	return &DefaultExcelReporter{paths: NewDefaultPathManager()}
}

// WriteWorkbook writes the three report sheets to path. Each sheet always
// has its header row so the layout does not depend on the stage.
func (r *DefaultExcelReporter) WriteWorkbook(wb Workbook, path string) error {
	if err := r.paths.EnsureDirectoryExists(path); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	fx := excelize.NewFile()
	defer fx.Close()

	if err := fx.SetSheetName(fx.GetSheetName(0), RankedSheet); err != nil {
		return err
	}
	for _, name := range []string{PeriodsSheet, TradesSheet} {
		if _, err := fx.NewSheet(name); err != nil {
			return err
		}
	}

	styles, err := r.createExcelStyles(fx)
	if err != nil {
		return err
	}

	if err := r.writeRankedSheet(fx, wb.Ranked, styles); err != nil {
		return err
	}
	if err := r.writePeriodsSheet(fx, wb.Periods, styles); err != nil {
		return err
	}
	if err := r.writeTradesSheet(fx, wb.Trades, styles); err != nil {
		return err
	}
	fx.SetActiveSheet(0)
	return fx.SaveAs(path)
}

// lightBorder is the thin grey grid used by body cells
var lightBorder = []excelize.Border{
	{Type: "left", Color: "E0E0E0", Style: 1},
	{Type: "right", Color: "E0E0E0", Style: 1},
	{Type: "bottom", Color: "E0E0E0", Style: 1},
}

func (r *DefaultExcelReporter) createExcelStyles(fx *excelize.File) (ExcelStyles, error) {
	var styles ExcelStyles
	var err error

	// Header style - dark slate background with white text
	styles.HeaderStyle, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11, Color: "FFFFFF", Family: "Calibri"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"2F4F4F"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return styles, err
	}

	styles.BaseStyle, err = fx.NewStyle(&excelize.Style{Border: lightBorder})
	if err != nil {
		return styles, err
	}

	// 0.0000 with right alignment
	styles.NumberStyle, err = fx.NewStyle(&excelize.Style{
		CustomNumFmt: stringPtr("0.0000"),
		Alignment:    &excelize.Alignment{Horizontal: "right"},
		Border:       lightBorder,
	})
	if err != nil {
		return styles, err
	}

	styles.CurrencyStyle, err = fx.NewStyle(&excelize.Style{
		NumFmt:    7,
		Alignment: &excelize.Alignment{Horizontal: "right"},
		Border:    lightBorder,
	})
	if err != nil {
		return styles, err
	}

	styles.PercentStyle, err = fx.NewStyle(&excelize.Style{
		NumFmt:    10,
		Alignment: &excelize.Alignment{Horizontal: "right"},
		Border:    lightBorder,
	})
	if err != nil {
		return styles, err
	}

	// Losing trades
	styles.RedPercentStyle, err = fx.NewStyle(&excelize.Style{
		NumFmt:    10,
		Font:      &excelize.Font{Color: "FF0000"},
		Alignment: &excelize.Alignment{Horizontal: "right"},
		Border:    lightBorder,
	})
	if err != nil {
		return styles, err
	}

	// Winning trades
	styles.GreenPercentStyle, err = fx.NewStyle(&excelize.Style{
		NumFmt:    10,
		Font:      &excelize.Font{Color: "008000"},
		Alignment: &excelize.Alignment{Horizontal: "right"},
		Border:    lightBorder,
	})
	if err != nil {
		return styles, err
	}

	// Selected trial row (light green background)
	styles.SelectedStyle, err = fx.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true},
		Fill:   excelize.Fill{Type: "pattern", Color: []string{"E6FFE6"}, Pattern: 1},
		Border: lightBorder,
	})
	return styles, err
}

func stringPtr(s string) *string { return &s }

// writeHeader writes the header row, freezes it and sets column widths
func writeHeader(fx *excelize.File, sheet string, headers []string, widths []float64, styles ExcelStyles) error {
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := fx.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
		if err := fx.SetCellStyle(sheet, cell, cell, styles.HeaderStyle); err != nil {
			return err
		}
		width := 14.0
		if i < len(widths) {
			width = widths[i]
		}
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := fx.SetColWidth(sheet, col, col, width); err != nil {
			return err
		}
	}
	return fx.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

// writeRow writes values to row; styles[i] applies to values[i], a missing
// entry falls back to the base style
func writeRow(fx *excelize.File, sheet string, row int, values []interface{}, styles []int, base int) error {
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if v != nil {
			if err := fx.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
		style := base
		if i < len(styles) && styles[i] != 0 {
			style = styles[i]
		}
		if err := fx.SetCellStyle(sheet, cell, cell, style); err != nil {
			return err
		}
	}
	return nil
}

func autoFilter(fx *excelize.File, sheet string, cols, rows int) error {
	if rows < 2 {
		return nil
	}
	last, err := excelize.CoordinatesToCellName(cols, rows)
	if err != nil {
		return err
	}
	return fx.AutoFilter(sheet, "A1:"+last, []excelize.AutoFilterOptions{})
}

// writeRankedSheet writes one row per trial with a column per parameter
// and per numeric metric
func (r *DefaultExcelReporter) writeRankedSheet(fx *excelize.File, ranked []results.RankedResult, styles ExcelStyles) error {
	params := map[string]bool{}
	metrics := map[string]bool{}
	for _, rr := range ranked {
		for k := range rr.Params {
			params[k] = true
		}
		for k, v := range rr.Metrics {
			if _, ok := metricValue(v); ok {
				metrics[k] = true
			}
		}
	}
	paramCols, metricCols := sortedKeys(params), sortedKeys(metrics)

	headers := []string{"Rank", "Trial", "Score", "State", "Selected"}
	widths := []float64{8, 8, 10, 10, 10}
	headers = append(headers, metricCols...)
	headers = append(headers, paramCols...)
	if err := writeHeader(fx, RankedSheet, headers, widths, styles); err != nil {
		return err
	}

	for i, rr := range ranked {
		selected := ""
		if rr.Selected {
			selected = "yes"
		}
		values := []interface{}{rr.Rank, rr.TrialNumber, rr.Score, rr.State, selected}
		cellStyles := []int{0, 0, styles.NumberStyle}
		for _, m := range metricCols {
			if f, ok := metricValue(rr.Metrics[m]); ok {
				values = append(values, f)
			} else {
				values = append(values, nil)
			}
			cellStyles = append(cellStyles, styles.NumberStyle)
		}
		for _, p := range paramCols {
			if v, ok := rr.Params[p]; ok {
				values = append(values, v)
			} else {
				values = append(values, nil)
			}
			cellStyles = append(cellStyles, styles.NumberStyle)
		}
		base := styles.BaseStyle
		if rr.Selected {
			base = styles.SelectedStyle
			cellStyles = nil
		}
		if err := writeRow(fx, RankedSheet, i+2, values, cellStyles, base); err != nil {
			return err
		}
	}
	return autoFilter(fx, RankedSheet, len(headers), len(ranked)+1)
}

func (r *DefaultExcelReporter) writePeriodsSheet(fx *excelize.File, periods []regime.Period, styles ExcelStyles) error {
	headers := []string{"#", "Regime", "Start", "End", "Start Index", "End Index", "Bars"}
	widths := []float64{6, 18, 20, 20, 12, 12, 8}
	if err := writeHeader(fx, PeriodsSheet, headers, widths, styles); err != nil {
		return err
	}
	for i, p := range periods {
		values := []interface{}{
			i + 1, p.RegimeID,
			p.StartTS.UTC().Format(csvTimeFormat), p.EndTS.UTC().Format(csvTimeFormat),
			p.StartIdx, p.EndIdx, p.Bars(),
		}
		if err := writeRow(fx, PeriodsSheet, i+2, values, nil, styles.BaseStyle); err != nil {
			return err
		}
	}
	return autoFilter(fx, PeriodsSheet, len(headers), len(periods)+1)
}

func (r *DefaultExcelReporter) writeTradesSheet(fx *excelize.File, trades []backtest.Trade, styles ExcelStyles) error {
	headers := []string{
		"Trade", "Side", "Entry Time", "Exit Time", "Entry Price", "Exit Price",
		"Quantity", "Fees", "PnL", "Return", "Exit Reason", "Regimes",
	}
	widths := []float64{8, 8, 20, 20, 14, 14, 12, 10, 12, 10, 14, 24}
	if err := writeHeader(fx, TradesSheet, headers, widths, styles); err != nil {
		return err
	}

	for i, t := range trades {
		returnStyle := styles.RedPercentStyle
		if t.PnL > 0 {
			returnStyle = styles.GreenPercentStyle
		}
		values := []interface{}{
			i + 1, string(t.Side),
			t.EntryTime.UTC().Format(csvTimeFormat), t.ExitTime.UTC().Format(csvTimeFormat),
			t.EntryPrice, t.ExitPrice, t.Quantity, t.Fees, t.PnL,
			t.ReturnPct / 100,
			string(t.ExitReason), strings.Join(t.RegimeIDs, ", "),
		}
		cellStyles := []int{
			0, 0, 0, 0,
			styles.NumberStyle, styles.NumberStyle, styles.NumberStyle,
			styles.CurrencyStyle, styles.CurrencyStyle,
			returnStyle,
		}
		if err := writeRow(fx, TradesSheet, i+2, values, cellStyles, styles.BaseStyle); err != nil {
			return err
		}
	}
	return autoFilter(fx, TradesSheet, len(headers), len(trades)+1)
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
