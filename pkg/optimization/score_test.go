package optimization

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/regime-optimizer/internal/backtest"
	"github.com/ducminhle1904/regime-optimizer/internal/regime"
)

func repeat(label string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = label
	}
	return out
}

func TestScoreRegimesBalancedLabelling(t *testing.T) {
	labels := append(repeat("UP", 20), repeat("DOWN", 20)...)
	s := ScoreRegimes(labels, []string{"UP", "DOWN"}, DefaultRegimeScoreConfig())

	assert.False(t, s.Degenerate)
	assert.Equal(t, 1.0, s.Count)
	assert.Equal(t, 1.0, s.Stability)
	assert.InDelta(t, 1, s.Quality, 1e-12)
	assert.Equal(t, 1.0, s.Coverage)
	assert.InDelta(t, 100, s.Score, 1e-9)
}

func TestScoreRegimesDegenerate(t *testing.T) {
	cfg := DefaultRegimeScoreConfig()

	single := ScoreRegimes(repeat("UP", 40), []string{"UP", "DOWN"}, cfg)
	assert.True(t, single.Degenerate)
	assert.InDelta(t, 0.3, single.Count, 1e-12)
	assert.InDelta(t, (25*0.3+30+25)*0.05, single.Score, 1e-9)
	assert.Greater(t, single.Score, 0.0)

	none := ScoreRegimes(repeat(regime.Unknown, 40), []string{"UP"}, cfg)
	assert.True(t, none.Degenerate)
	assert.Equal(t, 0.0, none.Score)
}

func TestScoreRegimesTooManyRegimes(t *testing.T) {
	ids := []string{"A", "B", "C", "D", "E", "F", "G"}
	var labels []string
	for _, id := range ids {
		labels = append(labels, repeat(id, 20)...)
	}
	s := ScoreRegimes(labels, ids, DefaultRegimeScoreConfig())
	assert.False(t, s.Degenerate)
	assert.InDelta(t, math.Exp(-1), s.Count, 1e-12)
	assert.Less(t, s.Score, 100.0)
}

func TestScoreRegimesShortRunsLoseStability(t *testing.T) {
	var labels []string
	for i := 0; i < 20; i++ {
		labels = append(labels, "UP", "DOWN")
	}
	s := ScoreRegimes(labels, []string{"UP", "DOWN"}, DefaultRegimeScoreConfig())
	assert.InDelta(t, 0.05, s.Stability, 1e-12)
	assert.Equal(t, 39, s.Summary.Transitions)
}

func TestRegimeScoreConfigValidate(t *testing.T) {
	require.NoError(t, DefaultRegimeScoreConfig().Validate())

	cfg := DefaultRegimeScoreConfig()
	cfg.Weights.Count = 40
	assert.Error(t, cfg.Validate())

	cfg = DefaultRegimeScoreConfig()
	cfg.MaxRegimes = 1
	assert.Error(t, cfg.Validate())
}

func TestScoreSignal(t *testing.T) {
	assert.Equal(t, NoTradeScore, ScoreSignal(backtest.Metrics{}))

	perfect := backtest.Metrics{TotalTrades: 50, WinRate: 1, ProfitFactor: 999, AvgReturn: 5}
	assert.InDelta(t, 100, ScoreSignal(perfect), 1e-9)

	poor := backtest.Metrics{TotalTrades: 1, WinRate: 0, ProfitFactor: 0, AvgReturn: -10}
	assert.InDelta(t, 0.2, ScoreSignal(poor), 1e-9)
	assert.Greater(t, ScoreSignal(poor), NoTradeScore)
}
