package regime

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/regime-optimizer/internal/conditions"
	"github.com/ducminhle1904/regime-optimizer/internal/errors"
)

func thresholdTemplate() Config {
	cfg := trendConfig()
	cfg.Indicators[0].Params = append(cfg.Indicators[0].Params, param("threshold", 25, 15, 40, 1))
	cfg.Regimes[0].Conditions = conditions.AllOf(
		conditions.Compare(conditions.Ref("adx1", "value"), conditions.OpGT, conditions.Param("adx1", "threshold")),
		conditions.Compare(conditions.Ref("fast", "value"), conditions.OpGT, conditions.Ref("slow", "value")),
	)
	return cfg
}

func TestParameters(t *testing.T) {
	cfg := thresholdTemplate()
	keys := make([]string, 0)
	for _, p := range cfg.Parameters() {
		keys = append(keys, p.Key)
	}
	assert.Equal(t, []string{"adx1.period", "adx1.threshold", "fast.period", "slow.period"}, keys)
	assert.Equal(t, 25.0, cfg.ParamValues()["adx1.threshold"])
}

func TestBindSnapsAndResolvesPlaceholders(t *testing.T) {
	tmpl := thresholdTemplate()
	bound, err := tmpl.Bind(map[string]float64{"adx1.threshold": 31.6, "fast.period": 12})
	require.NoError(t, err)

	assert.Equal(t, 32.0, bound.ParamValues()["adx1.threshold"])
	assert.Equal(t, 12.0, bound.ParamValues()["fast.period"])
	assert.Equal(t, 30.0, bound.ParamValues()["slow.period"])
	assert.Empty(t, bound.Regimes[0].Conditions.ParamKeys())
	assert.Equal(t, "(adx1.value gt 32 AND fast.value gt slow.value)", bound.Regimes[0].Conditions.String())

	// the template is untouched
	assert.Equal(t, 25.0, tmpl.ParamValues()["adx1.threshold"])
	assert.NotEmpty(t, tmpl.Regimes[0].Conditions.ParamKeys())

	_, err = Classify(bound, wave(120), Options{})
	assert.NoError(t, err)
}

func TestBindRejectsMissingPlaceholder(t *testing.T) {
	tmpl := trendConfig()
	tmpl.Regimes[0].Conditions = conditions.AllOf(
		conditions.Compare(conditions.Ref("adx1", "value"), conditions.OpGT, conditions.Param("adx1", "threshold")),
	)
	_, err := tmpl.Bind(nil)
	var cfgErr *errors.ConfigError
	require.True(t, stderrors.As(err, &cfgErr))
}

func TestUnknownParams(t *testing.T) {
	cfg := thresholdTemplate()
	assert.Equal(t, []string{"rsi1.period"}, cfg.UnknownParams(map[string]float64{"rsi1.period": 3, "fast.period": 10}))
}
