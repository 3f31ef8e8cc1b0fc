package optimization

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/regime-optimizer/internal/indicators"
)

func testSpace(t *testing.T) SearchSpace {
	space, err := NewSearchSpace(
		Dimension{Key: "b.period", Range: indicators.Range{Min: 5, Max: 50, Step: 1}},
		Dimension{Key: "a.threshold", Range: indicators.Range{Min: 0.1, Max: 2, Step: 0.1}},
	)
	require.NoError(t, err)
	return space
}

func finished(number int, value float64, params map[string]float64) FrozenTrial {
	return FrozenTrial{Number: number, State: TrialComplete, Value: value, Params: params, Finished: time.Now()}
}

func TestSearchSpaceIsSortedAndValidated(t *testing.T) {
	space := testSpace(t)
	assert.Equal(t, "a.threshold", space[0].Key)
	assert.Equal(t, 20*46, space.Size())

	_, err := NewSearchSpace(
		Dimension{Key: "x", Range: indicators.Range{Min: 1, Max: 2, Step: 1}},
		Dimension{Key: "x", Range: indicators.Range{Min: 1, Max: 2, Step: 1}},
	)
	assert.Error(t, err)

	_, err = NewSearchSpace(Dimension{Key: "y", Range: indicators.Range{Min: 3, Max: 2, Step: 1}})
	assert.Error(t, err)
}

func TestStartupSamplesStayOnGrid(t *testing.T) {
	space := testSpace(t)
	s := NewTPESampler(DefaultTPEConfig())
	for n := 0; n < 50; n++ {
		params := s.Sample(space, nil, n)
		require.Len(t, params, 2)
		for _, d := range space {
			assert.True(t, d.Range.OnGrid(params[d.Key]), "%s=%v off grid", d.Key, params[d.Key])
		}
	}
}

func TestSampleIsDeterministic(t *testing.T) {
	space := testSpace(t)
	var history []FrozenTrial
	s := NewTPESampler(DefaultTPEConfig())
	for n := 0; n < 40; n++ {
		p := s.Sample(space, history, n)
		history = append(history, finished(n, -math.Abs(p["b.period"]-30), p))
	}

	a := NewTPESampler(DefaultTPEConfig()).Sample(space, history, 40)
	b := NewTPESampler(DefaultTPEConfig()).Sample(space, history, 40)
	assert.Equal(t, a, b)

	cfg := DefaultTPEConfig()
	cfg.Seed = 7
	other := NewTPESampler(cfg)
	differs := false
	for n := 40; n < 45 && !differs; n++ {
		differs = !assert.ObjectsAreEqual(s.Sample(space, history, n), other.Sample(space, history, n))
	}
	assert.True(t, differs)
}

func TestModelSamplesStayOnGrid(t *testing.T) {
	space := testSpace(t)
	var history []FrozenTrial
	s := NewTPESampler(DefaultTPEConfig())
	for n := 0; n < 60; n++ {
		p := s.Sample(space, history, n)
		for _, d := range space {
			require.True(t, d.Range.OnGrid(p[d.Key]), "trial %d: %s=%v off grid", n, d.Key, p[d.Key])
		}
		history = append(history, finished(n, p["a.threshold"], p))
	}
}

func TestModelConcentratesOnGoodRegion(t *testing.T) {
	space, err := NewSearchSpace(Dimension{Key: "x", Range: indicators.Range{Min: 0, Max: 100, Step: 1}})
	require.NoError(t, err)

	var history []FrozenTrial
	for i := 0; i <= 20; i++ {
		x := float64(i * 5)
		history = append(history, finished(i, -math.Abs(x-70), map[string]float64{"x": x}))
	}
	s := NewTPESampler(DefaultTPEConfig())
	for n := 21; n < 26; n++ {
		p := s.Sample(space, history, n)
		assert.InDelta(t, 70, p["x"], 25, "trial %d", n)
	}
}

func TestObservationsSkipFailedAndIncompleteTrials(t *testing.T) {
	space := testSpace(t)
	full := map[string]float64{"a.threshold": 1, "b.period": 10}
	history := []FrozenTrial{
		finished(0, 1, full),
		{Number: 1, State: TrialFailed, Value: 0, Params: full},
		{Number: 2, State: TrialPruned, Value: 0.5, Params: full},
		finished(3, math.NaN(), full),
		finished(4, 2, map[string]float64{"a.threshold": 1}),
	}
	obs := observations(space, history)
	require.Len(t, obs, 2)
	assert.Equal(t, 0, obs[0].Number)
	assert.Equal(t, 2, obs[1].Number)
}

func TestGamma(t *testing.T) {
	s := NewTPESampler(DefaultTPEConfig())
	assert.Equal(t, 1, s.gamma(1))
	assert.Equal(t, 2, s.gamma(20))
	assert.Equal(t, 3, s.gamma(21))
	assert.Equal(t, 25, s.gamma(1000))
}

func TestTruncatedNormalIntegratesToOne(t *testing.T) {
	const steps = 10000
	sum := 0.0
	for i := 0; i < steps; i++ {
		x := (float64(i) + 0.5) / steps
		sum += math.Exp(truncatedNormalLogPDF(x, 0.8, 0.3)) / steps
	}
	assert.InDelta(t, 1, sum, 1e-3)
}
