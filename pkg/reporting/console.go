package reporting

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ducminhle1904/regime-optimizer/internal/backtest"
	"github.com/ducminhle1904/regime-optimizer/internal/regime"
	"github.com/ducminhle1904/regime-optimizer/pkg/results"
	"github.com/ducminhle1904/regime-optimizer/pkg/validation"
)

// headlineMetrics are shown as columns when trials carry them
var headlineMetrics = []string{
	"coverage", "active_regimes", "transitions", "avg_run_length",
	"total_trades", "win_rate", "profit_factor", "avg_return", "net_pnl",
}

// DefaultConsoleReporter renders tables with go-pretty
type DefaultConsoleReporter struct {
	out io.Writer
}

// NewDefaultConsoleReporter writes to stdout
func NewDefaultConsoleReporter() *DefaultConsoleReporter {
	return NewConsoleReporter(os.Stdout)
}

// NewConsoleReporter writes to out
func NewConsoleReporter(out io.Writer) *DefaultConsoleReporter {
	return &DefaultConsoleReporter{out: out}
}

func (r *DefaultConsoleReporter) newTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle(title)
	t.SetStyle(table.StyleRounded)
	return t
}

// PrintRunInfo prints the data window of a run
func (r *DefaultConsoleReporter) PrintRunInfo(meta results.Meta) {
	t := r.newTable("RUN")
	t.AppendRows([]table.Row{
		{"Run ID", meta.RunID},
		{"Stage", meta.Stage},
		{"Study", meta.Study},
		{"Symbol", meta.Symbol},
		{"Interval", meta.Interval},
		{"Bars", meta.Bars},
		{"From", meta.DataStart.Format("2006-01-02 15:04")},
		{"To", meta.DataEnd.Format("2006-01-02 15:04")},
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 12, WidthMax: 12, Align: text.AlignLeft},
		{Number: 2, WidthMin: 30, WidthMax: 60, Align: text.AlignLeft},
	})
	t.Render()
	fmt.Fprintln(r.out)
}

// PrintRankedResults prints the top ranked trials; top <= 0 prints all
func (r *DefaultConsoleReporter) PrintRankedResults(title string, ranked []results.RankedResult, top int) {
	if top > 0 && len(ranked) > top {
		ranked = ranked[:top]
	}
	metrics := presentMetrics(ranked)

	t := r.newTable(title)
	header := table.Row{"Rank", "Trial", "Score", "State"}
	for _, m := range metrics {
		header = append(header, m)
	}
	header = append(header, "Params")
	t.AppendHeader(header)

	for _, rr := range ranked {
		rank := strconv.Itoa(rr.Rank)
		if rr.Selected {
			rank += " *"
		}
		row := table.Row{rank, rr.TrialNumber, fmt.Sprintf("%.2f", rr.Score), rr.State}
		for _, m := range metrics {
			row = append(row, formatMetric(rr.Metrics[m]))
		}
		row = append(row, formatParams(rr.Params))
		t.AppendRow(row)
	}
	if len(ranked) == 0 {
		t.AppendFooter(table.Row{"", "", "", "no trials"})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: len(header), WidthMax: 70},
	})
	t.Render()
	fmt.Fprintln(r.out)
}

// PrintRegimeSummary prints the label distribution of a classification
func (r *DefaultConsoleReporter) PrintRegimeSummary(summary regime.Summary) {
	t := r.newTable("REGIME DISTRIBUTION")
	t.AppendHeader(table.Row{"Regime", "Bars", "Share", "Periods"})

	ids := make([]string, 0, len(summary.Distribution))
	for id := range summary.Distribution {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		share := 0.0
		if summary.TotalBars > 0 {
			share = float64(summary.Distribution[id]) / float64(summary.TotalBars)
		}
		t.AppendRow(table.Row{id, summary.Distribution[id], fmt.Sprintf("%.1f%%", share*100), summary.PeriodCount[id]})
	}
	t.AppendFooter(table.Row{
		"Total", summary.TotalBars,
		fmt.Sprintf("%.1f%% classified", summary.Coverage*100),
		fmt.Sprintf("%d transitions", summary.Transitions),
	})
	t.Render()
	fmt.Fprintf(r.out, "Average run length: %.1f bars, entropy: %.3f\n\n", summary.AvgRunLength, summary.Entropy)
}

// PrintPeriods prints the first limit periods; limit <= 0 prints all
func (r *DefaultConsoleReporter) PrintPeriods(periods []regime.Period, limit int) {
	t := r.newTable("REGIME PERIODS")
	t.AppendHeader(table.Row{"#", "Regime", "Start", "End", "Bars"})
	shown := periods
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	for i, p := range shown {
		t.AppendRow(table.Row{i + 1, p.RegimeID, p.StartTS.Format("2006-01-02 15:04"), p.EndTS.Format("2006-01-02 15:04"), p.Bars()})
	}
	if len(shown) < len(periods) {
		t.AppendFooter(table.Row{"", fmt.Sprintf("%d more", len(periods)-len(shown))})
	}
	t.Render()
	fmt.Fprintln(r.out)
}

// PrintSelections prints the chosen signal per side and purpose
func (r *DefaultConsoleReporter) PrintSelections(regimeID string, selections []results.SignalSelection) {
	t := r.newTable("SIGNALS FOR " + strings.ToUpper(regimeID))
	t.AppendHeader(table.Row{"Side", "Purpose", "Indicator", "Score", "Trades", "Win Rate", "PF", "Params"})
	for _, s := range selections {
		params := make(map[string]float64, len(s.Signal.Params))
		for _, p := range s.Signal.Params {
			params[p.Name] = p.Value
		}
		t.AppendRow(table.Row{
			s.Side, s.Purpose, s.Signal.IndicatorType.String(),
			fmt.Sprintf("%.2f", s.Score),
			formatMetric(s.Metrics["total_trades"]),
			formatMetric(s.Metrics["win_rate"]),
			formatMetric(s.Metrics["profit_factor"]),
			formatParams(params),
		})
	}
	if len(selections) == 0 {
		t.AppendFooter(table.Row{"", "", "no signal traded"})
	}
	t.Render()
	fmt.Fprintln(r.out)
}

// PrintMetrics prints a backtest summary
func (r *DefaultConsoleReporter) PrintMetrics(title string, m backtest.Metrics) {
	t := r.newTable(title)
	t.AppendRows([]table.Row{
		{"Trades", m.TotalTrades},
		{"Wins / Losses", fmt.Sprintf("%d / %d", m.Wins, m.Losses)},
		{"Win Rate", fmt.Sprintf("%.1f%%", m.WinRate*100)},
		{"Profit Factor", fmt.Sprintf("%.2f", m.ProfitFactor)},
		{"Avg Return", fmt.Sprintf("%.2f%%", m.AvgReturn)},
		{"Net PnL", fmt.Sprintf("%.2f", m.NetPnL)},
		{"Max Drawdown", fmt.Sprintf("%.2f%%", m.MaxDrawdown*100)},
		{"Sharpe", fmt.Sprintf("%.2f", m.SharpeRatio)},
	})
	reasons := make([]string, 0, len(m.ExitReasons))
	for reason := range m.ExitReasons {
		reasons = append(reasons, string(reason))
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		t.AppendRow(table.Row{"Exit: " + reason, m.ExitReasons[backtest.ExitReason(reason)]})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 18, Align: text.AlignLeft},
		{Number: 2, WidthMin: 12, Align: text.AlignRight},
	})
	t.Render()
	fmt.Fprintln(r.out)
}

// PrintHoldout compares searched and held-out performance side by side
func (r *DefaultConsoleReporter) PrintHoldout(s *validation.Summary) {
	if s == nil {
		return
	}
	t := r.newTable("HOLDOUT " + strings.ToUpper(s.RegimeID))
	t.AppendHeader(table.Row{"", "Searched", "Holdout"})
	t.AppendRows([]table.Row{
		{"Bars", s.Split.TrainBars(), s.TestBars},
		{"From", s.Split.TrainStart.Format("2006-01-02"), s.Split.TestStart.Format("2006-01-02")},
		{"To", s.Split.TrainEnd.Format("2006-01-02"), s.Split.TestEnd.Format("2006-01-02")},
		{"Trades", s.Train.TotalTrades, s.Test.TotalTrades},
		{"Win Rate", fmt.Sprintf("%.1f%%", s.Train.WinRate*100), fmt.Sprintf("%.1f%%", s.Test.WinRate*100)},
		{"Profit Factor", fmt.Sprintf("%.2f", s.Train.ProfitFactor), fmt.Sprintf("%.2f", s.Test.ProfitFactor)},
		{"Avg Return", fmt.Sprintf("%.2f%%", s.Train.AvgReturn), fmt.Sprintf("%.2f%%", s.Test.AvgReturn)},
		{"Net PnL", fmt.Sprintf("%.2f", s.Train.NetPnL), fmt.Sprintf("%.2f", s.Test.NetPnL)},
	})
	t.AppendFooter(table.Row{"Risk", s.OverfittingRisk, fmt.Sprintf("%.1f%% degradation", s.ReturnDegradation)})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 14, Align: text.AlignLeft},
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
	})
	t.Render()
	fmt.Fprintln(r.out)
}

// presentMetrics returns the headline metrics carried by any trial
func presentMetrics(ranked []results.RankedResult) []string {
	var out []string
	for _, name := range headlineMetrics {
		for _, rr := range ranked {
			if _, ok := metricValue(rr.Metrics[name]); ok {
				out = append(out, name)
				break
			}
		}
	}
	return out
}

// metricValue reads numeric metrics whether they came from memory or JSON
func metricValue(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}

func formatMetric(v interface{}) string {
	f, ok := metricValue(v)
	if !ok {
		return "-"
	}
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', 3, 64)
}

// formatParams renders params as sorted name=value pairs
func formatParams(params map[string]float64) string {
	keys := paramKeys(params)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + strconv.FormatFloat(params[k], 'g', 6, 64)
	}
	return strings.Join(parts, " ")
}

func paramKeys(params map[string]float64) []string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
