package regime

import (
	stderrors "errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/regime-optimizer/internal/conditions"
	"github.com/ducminhle1904/regime-optimizer/internal/errors"
	"github.com/ducminhle1904/regime-optimizer/internal/indicators"
	"github.com/ducminhle1904/regime-optimizer/pkg/types"
)

func wave(n int) []types.OHLCV {
	bars := make([]types.OHLCV, n)
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		p := 100 + 15*math.Sin(float64(i)/25) + 0.05*float64(i)
		bars[i] = types.OHLCV{
			Timestamp: start.Add(time.Duration(i) * 15 * time.Minute),
			Open:      p - 0.2, High: p + 0.8, Low: p - 0.9, Close: p + 0.1*math.Sin(float64(i)),
			Volume: 500,
		}
	}
	return bars
}

func param(name string, v, min, max, step float64) indicators.ParameterSpec {
	return indicators.ParameterSpec{Name: name, Value: v, Range: indicators.Range{Min: min, Max: max, Step: step}}
}

func trendConfig() Config {
	return Config{
		Indicators: []indicators.Definition{
			{ID: "adx1", Type: indicators.KindADX, Params: []indicators.ParameterSpec{param("period", 14, 7, 30, 1)}},
			{ID: "fast", Type: indicators.KindSMA, Params: []indicators.ParameterSpec{param("period", 10, 5, 50, 1)}},
			{ID: "slow", Type: indicators.KindSMA, Params: []indicators.ParameterSpec{param("period", 30, 20, 100, 1)}},
		},
		Regimes: []Definition{
			{
				ID: "UP", Name: "Uptrend", Priority: 20, Scope: ScopeBoth,
				Conditions: conditions.AllOf(
					conditions.Compare(conditions.Ref("adx1", "value"), conditions.OpGT, conditions.Lit(20)),
					conditions.Compare(conditions.Ref("fast", "value"), conditions.OpGT, conditions.Ref("slow", "value")),
				),
			},
			{
				ID: "DOWN", Name: "Downtrend", Priority: 20, Scope: ScopeBoth,
				Conditions: conditions.AllOf(
					conditions.Compare(conditions.Ref("adx1", "value"), conditions.OpGT, conditions.Lit(20)),
					conditions.Compare(conditions.Ref("fast", "value"), conditions.OpLT, conditions.Ref("slow", "value")),
				),
			},
			{
				ID: "RANGE", Name: "Range", Priority: 10, Scope: ScopeEntry,
				Conditions: conditions.AllOf(
					conditions.Compare(conditions.Ref("adx1", "value"), conditions.OpLTE, conditions.Lit(20)),
				),
			},
		},
	}
}

func TestClassifyLabelsEveryBar(t *testing.T) {
	bars := wave(400)
	res, err := Classify(trendConfig(), bars, Options{})
	require.NoError(t, err)
	require.Len(t, res.Labels, len(bars))

	assert.Equal(t, Unknown, res.Labels[0], "warmup bars have no regime")
	s := Summarize(res.Labels)
	assert.Greater(t, s.Coverage, 0.5)
	assert.Subset(t, s.Active(), []string{"DOWN", "UP"})

	covered := 0
	for i, p := range res.Periods {
		covered += p.Bars()
		assert.Equal(t, bars[p.StartIdx].Timestamp, p.StartTS)
		assert.Equal(t, bars[p.EndIdx].Timestamp, p.EndTS)
		if i > 0 {
			assert.Equal(t, res.Periods[i-1].EndIdx+1, p.StartIdx)
			assert.NotEqual(t, res.Periods[i-1].RegimeID, p.RegimeID)
		}
	}
	assert.Equal(t, len(bars), covered)
	assert.Equal(t, res.Labels, Expand(res.Periods, len(bars)))
}

func TestBatchAndIncrementalAgree(t *testing.T) {
	bars := wave(260)
	cfg := trendConfig()

	batch, err := Classify(cfg, bars, Options{})
	require.NoError(t, err)

	tracker, err := NewTracker(cfg, Options{})
	require.NoError(t, err)
	for i, bar := range bars {
		label, err := tracker.Push(bar)
		require.NoError(t, err)
		require.Equal(t, batch.Labels[i], label, "bar %d", i)
	}
	assert.Equal(t, batch.Periods, tracker.Result().Periods)
}

func TestBatchAndIncrementalAgreeWithCrosses(t *testing.T) {
	bars := wave(200)
	cfg := trendConfig()
	cfg.Regimes = []Definition{{
		ID: "CROSS_UP", Priority: 1, Scope: ScopeBoth,
		Conditions: conditions.AllOf(
			conditions.Compare(conditions.Ref("fast", "value"), conditions.OpCrossesAbove, conditions.Ref("slow", "value")),
		),
	}}

	batch, err := Classify(cfg, bars, Options{})
	require.NoError(t, err)

	tracker, err := NewTracker(cfg, Options{})
	require.NoError(t, err)
	for _, bar := range bars {
		_, err := tracker.Push(bar)
		require.NoError(t, err)
	}
	assert.Equal(t, batch.Labels, tracker.Labels())
	assert.Contains(t, batch.Labels, "CROSS_UP")
}

func TestPriorityAndInsertionOrder(t *testing.T) {
	always := conditions.AllOf(conditions.Compare(conditions.Ref(indicators.PriceID, "close"), conditions.OpGT, conditions.Lit(0)))
	cfg := Config{Regimes: []Definition{
		{ID: "LOW", Priority: 1, Scope: ScopeBoth, Conditions: always},
		{ID: "FIRST", Priority: 5, Scope: ScopeBoth, Conditions: always},
		{ID: "SECOND", Priority: 5, Scope: ScopeBoth, Conditions: always},
	}}

	res, err := Classify(cfg, wave(5), Options{})
	require.NoError(t, err)
	for _, l := range res.Labels {
		assert.Equal(t, "FIRST", l)
	}
	require.Len(t, res.Periods, 1)
	assert.Equal(t, Period{RegimeID: "FIRST", StartIdx: 0, EndIdx: 4, StartTS: wave(5)[0].Timestamp, EndTS: wave(5)[4].Timestamp}, res.Periods[0])
}

func TestScopeFilter(t *testing.T) {
	cfg := trendConfig()
	ordered := cfg.Ordered(ScopeExit)
	ids := make([]string, len(ordered))
	for i, d := range ordered {
		ids[i] = d.ID
	}
	assert.Equal(t, []string{"UP", "DOWN"}, ids)

	res, err := Classify(cfg, wave(300), Options{Scope: ScopeExit})
	require.NoError(t, err)
	assert.NotContains(t, res.Labels, "RANGE")
}

func TestValidateRejectsUnknownIndicatorReference(t *testing.T) {
	cfg := trendConfig()
	cfg.Regimes[0].Conditions = conditions.AllOf(conditions.Compare(conditions.Ref("rsi9", "value"), conditions.OpGT, conditions.Lit(1)))

	_, err := Classify(cfg, wave(10), Options{})
	var cfgErr *errors.ConfigError
	require.True(t, stderrors.As(err, &cfgErr))
}

func TestValidateRejectsUnboundPlaceholders(t *testing.T) {
	cfg := trendConfig()
	cfg.Regimes[0].Conditions = conditions.AllOf(conditions.Compare(conditions.Ref("adx1", "value"), conditions.OpGT, conditions.Param("adx1", "threshold")))

	// the placeholder names no declared parameter yet
	assert.Error(t, cfg.ValidateTemplate())

	cfg.Indicators[0].Params = append(cfg.Indicators[0].Params, param("threshold", 25, 15, 40, 1))
	assert.Error(t, cfg.Validate())
	assert.NoError(t, cfg.ValidateTemplate())
}

func TestEvaluationErrorPropagates(t *testing.T) {
	c, err := NewClassifier(trendConfig(), Options{})
	require.NoError(t, err)

	// a snapshot produced elsewhere that lacks the slow average
	snap := indicators.Snapshot{
		"adx1": {Fields: []string{"value", "plus_di", "minus_di"}, Values: map[string]float64{"value": 30}},
		"fast": {Fields: []string{"value"}, Values: map[string]float64{"value": 1}},
	}
	_, err = c.Label(conditions.Context{Current: snap, Bar: 7})
	var evalErr *errors.EvaluationError
	require.True(t, stderrors.As(err, &evalErr))
	assert.Equal(t, "slow", evalErr.IndicatorID)
}

func TestRuntimeFaultIsIsolated(t *testing.T) {
	c, err := NewClassifier(trendConfig(), Options{})
	require.NoError(t, err)

	snap := indicators.Snapshot{
		"adx1": {Fields: []string{"value", "plus_di", "minus_di"}, Values: map[string]float64{"value": math.Inf(1)}},
		"fast": {Fields: []string{"value"}, Values: map[string]float64{"value": 1}},
		"slow": {Fields: []string{"value"}, Values: map[string]float64{"value": 2}},
	}
	label, err := c.Label(conditions.Context{Current: snap})
	require.NoError(t, err)
	assert.Equal(t, Unknown, label)
	assert.Equal(t, 2, c.Faults())
}

func TestSummarize(t *testing.T) {
	labels := []string{Unknown, "A", "A", "B", "B", "B", "A", Unknown}
	s := Summarize(labels)

	assert.Equal(t, 8, s.TotalBars)
	assert.Equal(t, 6, s.Classified)
	assert.InDelta(t, 0.75, s.Coverage, 1e-12)
	assert.Equal(t, 4, s.Transitions)
	assert.InDelta(t, 2.0, s.AvgRunLength, 1e-12)
	assert.InDelta(t, 1.0, s.Entropy, 1e-12)
	assert.Equal(t, []string{"A", "B"}, s.Active())

	mask := Mask(Periods(labels, nil), "B", len(labels))
	assert.Equal(t, []bool{false, false, false, true, true, true, false, false}, mask)
}
