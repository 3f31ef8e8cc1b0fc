package conditions

import (
	"encoding/json"
	stderrors "errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/regime-optimizer/internal/errors"
	"github.com/ducminhle1904/regime-optimizer/internal/indicators"
)

func macdSnapshot(t *testing.T, value, signal, hist float64) indicators.Snapshot {
	t.Helper()
	r, err := indicators.NormalizeReading(indicators.KindMACD, map[string]float64{
		"value": value, "signal": signal, "histogram": hist,
	})
	require.NoError(t, err)
	return indicators.Snapshot{"macd1": r}
}

func TestEvaluateMACDAboveZero(t *testing.T) {
	snap := macdSnapshot(t, 1.2, 0.9, 0.3)

	ok, err := Evaluate(Compare(Ref("macd1", "value"), OpGT, Lit(0)), Context{Current: snap})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluateUnknownFieldListsAvailableFields(t *testing.T) {
	snap := macdSnapshot(t, 1.2, 0.9, 0.3)

	_, err := Evaluate(Compare(Ref("macd1", "nonexistent"), OpGT, Lit(0)), Context{Current: snap})
	require.Error(t, err)

	var evalErr *errors.EvaluationError
	require.True(t, stderrors.As(err, &evalErr))
	assert.Equal(t, "macd1", evalErr.IndicatorID)
	assert.Equal(t, []string{"value", "signal", "histogram"}, evalErr.Available)
}

func TestEvaluateUnknownIndicator(t *testing.T) {
	snap := macdSnapshot(t, 1, 1, 0)

	_, err := Evaluate(Compare(Ref("rsi1", "value"), OpLT, Lit(30)), Context{Current: snap})
	var evalErr *errors.EvaluationError
	require.True(t, stderrors.As(err, &evalErr))
	assert.Equal(t, []string{"macd1"}, evalErr.Available)
}

func TestEvaluateFromJSON(t *testing.T) {
	var leaf Node
	require.NoError(t, json.Unmarshal([]byte(
		`{"left":{"indicator_id":"macd1","field":"value"},"op":"gt","right":{"value":0}}`), &leaf))

	ok, err := Evaluate(leaf, Context{Current: macdSnapshot(t, 1.2, 0.9, 0.3)})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGroupShortCircuit(t *testing.T) {
	snap := macdSnapshot(t, 1.2, 0.9, 0.3)
	bad := Compare(Ref("macd1", "nonexistent"), OpGT, Lit(0))

	ok, err := Evaluate(AllOf(Compare(Ref("macd1", "value"), OpLT, Lit(0)), bad), Context{Current: snap})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = Evaluate(AnyOf(Compare(Ref("macd1", "value"), OpGT, Lit(0)), bad), Context{Current: snap})
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = Evaluate(AllOf(Compare(Ref("macd1", "value"), OpGT, Lit(0)), bad), Context{Current: snap})
	assert.Error(t, err)
}

func TestWarmupIsDeferred(t *testing.T) {
	r, err := indicators.NormalizeReading(indicators.KindMACD, map[string]float64{"value": 1, "signal": math.NaN()})
	require.NoError(t, err)
	snap := indicators.Snapshot{"macd1": r}

	warming := Compare(Ref("macd1", "signal"), OpGT, Lit(0))
	falsy := Compare(Ref("macd1", "value"), OpLT, Lit(0))
	truthy := Compare(Ref("macd1", "value"), OpGT, Lit(0))

	_, err = Evaluate(warming, Context{Current: snap})
	assert.True(t, IsWarmup(err))

	ok, err := Evaluate(AllOf(warming, falsy), Context{Current: snap})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = Evaluate(AllOf(warming, truthy), Context{Current: snap})
	assert.True(t, IsWarmup(err))

	ok, err = Evaluate(AnyOf(warming, truthy), Context{Current: snap})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNonFiniteValueIsRuntimeFault(t *testing.T) {
	snap := macdSnapshot(t, math.Inf(1), 0, 0)

	_, err := Evaluate(Compare(Ref("macd1", "value"), OpGT, Lit(0)), Context{Current: snap})
	var fault *errors.RuntimeFault
	require.True(t, stderrors.As(err, &fault))
	assert.False(t, errors.IsFatal(err))
}

func TestCrossOperators(t *testing.T) {
	prev := macdSnapshot(t, -0.5, 0.1, -0.6)
	cur := macdSnapshot(t, 0.4, 0.2, 0.2)
	above := Compare(Ref("macd1", "value"), OpCrossesAbove, Ref("macd1", "signal"))
	below := Compare(Ref("macd1", "value"), OpCrossesBelow, Ref("macd1", "signal"))

	ok, err := Evaluate(above, Context{Current: cur, Previous: prev, Bar: 1})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Evaluate(below, Context{Current: prev, Previous: cur, Bar: 1})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Evaluate(above, Context{Current: cur, Previous: cur, Bar: 1})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = Evaluate(above, Context{Current: cur})
	assert.True(t, IsWarmup(err))
}

func TestBindReplacesPlaceholders(t *testing.T) {
	tree := AllOf(
		Compare(Ref("adx1", "value"), OpGT, Param("adx1", "threshold")),
		Compare(Ref("rsi1", "value"), OpLT, Param("rsi1", "upper")),
	)
	assert.Equal(t, []string{"adx1.threshold", "rsi1.upper"}, tree.ParamKeys())

	bound, err := Bind(tree, map[string]float64{"adx1.threshold": 25, "rsi1.upper": 70})
	require.NoError(t, err)
	assert.Empty(t, bound.ParamKeys())
	assert.Equal(t, 25.0, *bound.Children[0].Right.Value)
	assert.NotEmpty(t, tree.ParamKeys(), "original tree must not change")

	_, err = Bind(tree, map[string]float64{"adx1.threshold": 25})
	var cfgErr *errors.ConfigError
	assert.True(t, stderrors.As(err, &cfgErr))
}

func TestValidate(t *testing.T) {
	fields := map[string][]string{"adx1": {"value", "plus_di", "minus_di"}}

	assert.NoError(t, Validate(AllOf(Compare(Ref("adx1", "plus_di"), OpGT, Ref("adx1", "minus_di"))), fields))
	assert.Error(t, Validate(AllOf(Compare(Ref("sma1", "value"), OpGT, Lit(1))), fields))
	assert.Error(t, Validate(AllOf(Compare(Ref("adx1", "upper"), OpGT, Lit(1))), fields))
	assert.Error(t, Validate(AllOf(Compare(Lit(1), OpGT, Ref("adx1", "value"))), fields))
	assert.Error(t, Validate(AllOf(Compare(Ref("adx1", "value"), Op("between"), Lit(1))), fields))
	assert.Error(t, Validate(AllOf(), fields))
}

func TestNodeString(t *testing.T) {
	tree := AnyOf(Compare(Ref("adx1", "value"), OpGT, Lit(25)), Compare(Ref("adx1", "value"), OpLT, Param("adx1", "low")))
	assert.Equal(t, "(adx1.value gt 25 OR adx1.value lt $adx1.low)", tree.String())
}
