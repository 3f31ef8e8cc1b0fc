package results

import (
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/regime-optimizer/internal/backtest"
	"github.com/ducminhle1904/regime-optimizer/internal/conditions"
	"github.com/ducminhle1904/regime-optimizer/internal/errors"
	"github.com/ducminhle1904/regime-optimizer/internal/indicators"
	"github.com/ducminhle1904/regime-optimizer/internal/regime"
	"github.com/ducminhle1904/regime-optimizer/pkg/types"
)

var exportedAt = regexp.MustCompile(`"exported_at": "[^"]*"`)

func sameExceptExportTime(t *testing.T, a, b string) {
	t.Helper()
	first, err := os.ReadFile(a)
	require.NoError(t, err)
	second, err := os.ReadFile(b)
	require.NoError(t, err)
	assert.Equal(t,
		exportedAt.ReplaceAllString(string(first), `"exported_at": ""`),
		exportedAt.ReplaceAllString(string(second), `"exported_at": ""`))
}

func risingBars(n int) []types.OHLCV {
	bars := make([]types.OHLCV, n)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		p := 100 + float64(i)
		bars[i] = types.OHLCV{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      p - 0.5, High: p + 0.5, Low: p - 1, Close: p, Volume: 10,
		}
	}
	return bars
}

func template() regime.Config {
	ref, param, cmp := conditions.Ref, conditions.Param, conditions.Compare
	spec := func(name string, v, min, max, step float64) indicators.ParameterSpec {
		return indicators.ParameterSpec{Name: name, Value: v, Range: indicators.Range{Min: min, Max: max, Step: step}}
	}
	return regime.Config{
		Indicators: []indicators.Definition{
			{ID: "adx1", Type: indicators.KindADX, Params: []indicators.ParameterSpec{
				spec("period", 14, 7, 30, 1), spec("threshold", 25, 15, 40, 1),
			}},
			{ID: "fast", Type: indicators.KindSMA, Params: []indicators.ParameterSpec{spec("period", 10, 5, 20, 1)}},
			{ID: "slow", Type: indicators.KindSMA, Params: []indicators.ParameterSpec{spec("period", 30, 25, 60, 5)}},
		},
		Regimes: []regime.Definition{
			{ID: "UP", Name: "Uptrend", Priority: 2, Scope: regime.ScopeBoth, Conditions: conditions.AllOf(
				cmp(ref("adx1", "value"), conditions.OpGT, param("adx1", "threshold")),
				cmp(ref("fast", "value"), conditions.OpGT, ref("slow", "value")),
			)},
			{ID: "DOWN", Name: "Downtrend", Priority: 1, Scope: regime.ScopeBoth, Conditions: conditions.AllOf(
				cmp(ref("fast", "value"), conditions.OpLT, ref("slow", "value")),
			)},
		},
	}
}

func populated() *Manager {
	m := NewManager()
	m.AddResult(12.5, map[string]float64{"adx1.period": 14, "adx1.threshold": 25, "fast.period": 10, "slow.period": 30},
		map[string]interface{}{"coverage": 0.8, "active_regimes": 1, "distribution": map[string]int{"UP": 80}})
	m.AddResult(40.25, map[string]float64{"adx1.period": 20, "adx1.threshold": 31.6, "fast.period": 8, "slow.period": 45},
		map[string]interface{}{"coverage": 0.9, "active_regimes": 2})
	m.AddTrial(Trial{TrialNumber: 2, Params: map[string]float64{"adx1.period": 9}, Score: 0, State: "failed",
		Metrics: map[string]interface{}{"error": "rejected"}, Timestamp: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)})
	return m
}

func TestOptimizationResultsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := populated()
	_, err := m.SelectResult(1)
	require.NoError(t, err)

	searchConfig := struct {
		Trials int     `json:"trials"`
		Seed   int64   `json:"seed"`
		Ratio  float64 `json:"ratio"`
	}{Trials: 150, Seed: 42, Ratio: 0.1}
	ranges := map[string]indicators.Range{"adx1.period": {Min: 7, Max: 30, Step: 1}}
	meta := Meta{RunID: "run-1", Stage: StageRegime, Study: "regimes", Symbol: "BTCUSDT"}.WithBars(risingBars(10))

	first := filepath.Join(dir, "first.json")
	_, err = m.ExportOptimizationResults(first, meta, searchConfig, ranges)
	require.NoError(t, err)

	loaded, err := LoadOptimizationResults(first)
	require.NoError(t, err)
	require.Len(t, loaded.Results, 3)
	assert.Equal(t, 1, loaded.Results[0].TrialNumber)
	assert.True(t, loaded.Results[0].Selected)
	assert.Equal(t, SchemaVersion, loaded.SchemaVersion)

	again, err := ManagerFromArtifact(loaded)
	require.NoError(t, err)
	second := filepath.Join(dir, "second.json")
	_, err = again.ExportOptimizationResults(second, loaded.Meta, loaded.OptimizationConfig, loaded.ParamRanges)
	require.NoError(t, err)
	sameExceptExportTime(t, first, second)
}

func TestManagerFromArtifactRejectsUnknownSelection(t *testing.T) {
	dir := t.TempDir()
	m := populated()
	_, err := m.SelectResult(2)
	require.NoError(t, err)

	path := filepath.Join(dir, "results.json")
	_, err = m.ExportOptimizationResults(path, Meta{RunID: "run-1", Stage: StageRegime, Study: "regimes"}, nil, nil)
	require.NoError(t, err)
	loaded, err := LoadOptimizationResults(path)
	require.NoError(t, err)

	restored, err := ManagerFromArtifact(loaded)
	require.NoError(t, err)
	sel, ok := restored.Selected()
	require.True(t, ok)
	assert.Equal(t, 2, sel.Rank)

	loaded.Results[1].Rank = 9
	_, err = ManagerFromArtifact(loaded)
	assert.ErrorIs(t, err, ErrInvalidRank)
}

func TestSelectedRegimeRoundTrip(t *testing.T) {
	dir := t.TempDir()
	bars := risingBars(120)
	m := populated()

	_, err := m.ExportSelectedRegime(filepath.Join(dir, "none.json"), Meta{}, template(), bars)
	assert.ErrorIs(t, err, ErrNoSelection)

	_, err = m.SelectResult(1)
	require.NoError(t, err)
	first := filepath.Join(dir, "regime.json")
	a, err := m.ExportSelectedRegime(first, Meta{RunID: "run-1"}, template(), bars)
	require.NoError(t, err)
	assert.Equal(t, StageRegime, a.Meta.Stage)
	assert.Equal(t, 120, a.Meta.Bars)
	assert.Equal(t, 40.25, a.Meta.OptimizationScore)
	require.NotNil(t, a.Meta.RegimeSummary)
	assert.True(t, m.RankResults()[0].Exported)

	// snapped onto the threshold grid
	threshold, ok := indicators.FindParam(a.Indicators[0].Params, "threshold")
	require.True(t, ok)
	assert.Equal(t, 32.0, threshold.Value)

	loaded, err := LoadRegimeArtifact(first)
	require.NoError(t, err)
	second := filepath.Join(dir, "regime-again.json")
	require.NoError(t, WriteArtifact(second, loaded))
	sameExceptExportTime(t, first, second)

	res, err := regime.Classify(loaded.Config(), bars, regime.Options{})
	require.NoError(t, err)
	assert.Equal(t, res.Periods, loaded.RegimePeriods)
}

func selection() SignalSelection {
	sig, err := backtest.DefaultSignalConfig(indicators.KindRSI, types.SideLong, types.PurposeEntry)
	if err != nil {
		panic(err)
	}
	return SignalSelection{
		Side: types.SideLong, Purpose: types.PurposeEntry, Signal: sig, Score: 61.5, Rank: 1,
		Study: "UP_rsi_long_entry", Metrics: map[string]interface{}{"total_trades": 12, "win_rate": 0.5},
	}
}

func TestIndicatorSetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	exit := selection()
	exit.Purpose, exit.Signal.Purpose, exit.Score = types.PurposeExit, types.PurposeExit, 38.5
	periods := []regime.Period{{RegimeID: "UP", StartIdx: 0, EndIdx: 49}, {RegimeID: regime.Unknown, StartIdx: 50, EndIdx: 99}}

	first := filepath.Join(dir, "UP.json")
	a, err := ExportIndicatorSet(first, Meta{Symbol: "ETHUSDT"}, "UP", []SignalSelection{selection(), exit}, periods)
	require.NoError(t, err)
	assert.Equal(t, StageSignal, a.Meta.Stage)
	assert.InDelta(t, 50, a.Meta.OptimizationScore, 1e-9)
	require.Len(t, a.Indicators, 2)
	assert.Equal(t, "rsi_long_entry", a.Indicators[0].ID)
	assert.Equal(t, "rsi_long_exit", a.Indicators[1].ID)

	loaded, err := LoadIndicatorSetArtifact(first)
	require.NoError(t, err)
	second := filepath.Join(dir, "UP-again.json")
	require.NoError(t, WriteArtifact(second, loaded))
	sameExceptExportTime(t, first, second)

	sma, err := backtest.DefaultSignalConfig(indicators.KindSMA, types.SideLong, types.PurposeEntry)
	require.NoError(t, err)
	dup := selection()
	dup.Signal = sma
	_, err = ExportIndicatorSet(filepath.Join(dir, "dup.json"), Meta{}, "UP", []SignalSelection{selection(), dup}, nil)
	var schemaErr *errors.SchemaValidationError
	require.True(t, stderrors.As(err, &schemaErr))
	assert.Equal(t, "unique", schemaErr.Rule)
}

// rewrite decodes path generically, applies edit and writes it back
func rewrite(t *testing.T, path string, edit func(doc map[string]interface{})) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	doc := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(data, &doc))
	edit(doc)
	data, err = json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func exportedResults(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "results.json")
	_, err := populated().ExportOptimizationResults(path, Meta{Stage: StageRegime}, nil, nil)
	require.NoError(t, err)
	return path
}

func requireSchemaError(t *testing.T, err error, path, rule string) {
	t.Helper()
	var schemaErr *errors.SchemaValidationError
	require.True(t, stderrors.As(err, &schemaErr), "got %v", err)
	assert.Equal(t, path, schemaErr.Path)
	assert.Equal(t, rule, schemaErr.Rule)
	assert.Equal(t, errors.ErrorCategorySchema, errors.CategoryOf(err))
}

func TestSchemaVersionMismatch(t *testing.T) {
	path := exportedResults(t)
	rewrite(t, path, func(doc map[string]interface{}) { doc["schema_version"] = "1.0" })
	_, err := LoadOptimizationResults(path)
	requireSchemaError(t, err, "$.schema_version", "eq")
}

func TestUnknownFieldRejected(t *testing.T) {
	path := exportedResults(t)
	rewrite(t, path, func(doc map[string]interface{}) { doc["extra"] = true })
	_, err := LoadOptimizationResults(path)
	requireSchemaError(t, err, "$", "json")
}

func TestTrailingDataRejected(t *testing.T) {
	path := exportedResults(t)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, append(data, []byte(`{"schema_version":"2.0"}`)...), 0644))
	_, err = LoadOptimizationResults(path)
	requireSchemaError(t, err, "$", "json")
}

func TestRankSequenceAndSelectionChecked(t *testing.T) {
	path := exportedResults(t)
	rewrite(t, path, func(doc map[string]interface{}) {
		doc["results"].([]interface{})[1].(map[string]interface{})["rank"] = 5
	})
	_, err := LoadOptimizationResults(path)
	requireSchemaError(t, err, "$.results[1].rank", "sequence")

	path = exportedResults(t)
	rewrite(t, path, func(doc map[string]interface{}) {
		for _, r := range doc["results"].([]interface{}) {
			r.(map[string]interface{})["selected"] = true
		}
	})
	_, err = LoadOptimizationResults(path)
	requireSchemaError(t, err, "$.results", "single_selection")
}

func TestRegimePeriodViolations(t *testing.T) {
	dir := t.TempDir()
	m := populated()
	_, err := m.SelectResult(2)
	require.NoError(t, err)
	path := filepath.Join(dir, "regime.json")
	_, err = m.ExportSelectedRegime(path, Meta{}, template(), risingBars(80))
	require.NoError(t, err)

	rewrite(t, path, func(doc map[string]interface{}) {
		p := doc["regime_periods"].([]interface{})[0].(map[string]interface{})
		p["end_idx"] = -1
	})
	_, err = LoadRegimeArtifact(path)
	requireSchemaError(t, err, "$.regime_periods[0].end_idx", "gtefield")

	_, err = m.ExportSelectedRegime(path, Meta{}, template(), risingBars(80))
	require.NoError(t, err)
	rewrite(t, path, func(doc map[string]interface{}) {
		p := doc["regime_periods"].([]interface{})[0].(map[string]interface{})
		p["regime_id"] = "SIDEWAYS"
	})
	_, err = LoadRegimeArtifact(path)
	requireSchemaError(t, err, "$.regime_periods[0].regime_id", "known_regime")
}

func TestWriteArtifactIsAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "results.json")
	_, err := populated().ExportOptimizationResults(path, Meta{Stage: StageRegime}, nil, nil)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// an invalid artifact leaves the previous file untouched
	before, err := os.ReadFile(path)
	require.NoError(t, err)
	_, err = populated().ExportOptimizationResults(path, Meta{Stage: "bogus"}, nil, nil)
	requireSchemaError(t, err, "$.meta.stage", "oneof")
	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
