package optimization

import (
	"context"
	"math"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/regime-optimizer/internal/errors"
	"github.com/ducminhle1904/regime-optimizer/internal/indicators"
	"github.com/ducminhle1904/regime-optimizer/internal/regime"
	"github.com/ducminhle1904/regime-optimizer/pkg/results"
	"github.com/ducminhle1904/regime-optimizer/pkg/types"
)

func waveBars(n int) []types.OHLCV {
	bars := make([]types.OHLCV, n)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		p := 100 + 10*math.Sin(float64(i)/10)
		bars[i] = types.OHLCV{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      p, High: p + 1, Low: p - 1, Close: p, Volume: 10,
		}
	}
	return bars
}

func wholeSeries(id string, n int) []regime.Period {
	return []regime.Period{{RegimeID: id, StartIdx: 0, EndIdx: n - 1}}
}

func signalConfig(kind indicators.Kind, trials int) SignalSearchConfig {
	cfg := DefaultSignalSearchConfig()
	cfg.Trials = trials
	cfg.Workers = 2
	cfg.Indicators = []indicators.Kind{kind}
	cfg.Sides = []types.Side{types.SideLong}
	cfg.Purposes = []types.Purpose{types.PurposeEntry}
	return cfg
}

func TestNoTradeSignalScoresSentinel(t *testing.T) {
	bars := risingBars(300)
	opt, err := NewIndicatorSetOptimizer(signalConfig(indicators.KindRSI, 25))
	require.NoError(t, err)

	res, err := opt.Optimize(context.Background(), bars, "TREND_UP", wholeSeries("TREND_UP", len(bars)))
	require.NoError(t, err)
	require.Len(t, res.Runs, 1)

	run := res.Runs[0]
	assert.Equal(t, "TREND_UP_rsi_long_entry", run.Study)
	assert.Equal(t, 25, run.Results.Len())
	assert.Equal(t, NoTradeScore, run.BestScore)
	for _, r := range run.Results.RankResults() {
		assert.Equal(t, NoTradeScore, r.Score)
	}
	assert.Empty(t, res.Selections())
}

func TestSignalSearchSelectsTradingSignal(t *testing.T) {
	bars := waveBars(400)
	periods := wholeSeries("RANGE", len(bars))
	opt, err := NewIndicatorSetOptimizer(signalConfig(indicators.KindSMA, 20))
	require.NoError(t, err)

	res, err := opt.Optimize(context.Background(), bars, "RANGE", periods)
	require.NoError(t, err)
	require.Len(t, res.Runs, 1)

	run := res.Runs[0]
	require.True(t, run.HasBest)
	assert.Greater(t, run.BestMetrics.TotalTrades, 0)
	assert.GreaterOrEqual(t, run.BestScore, 0.0)
	require.NoError(t, run.Best.Validate())

	best, ok := res.Best(types.SideLong, types.PurposeEntry)
	require.True(t, ok)
	assert.Equal(t, run.Study, best.Study)
	_, ok = res.Best(types.SideShort, types.PurposeEntry)
	assert.False(t, ok)

	sels := res.Selections()
	require.Len(t, sels, 1)
	assert.Equal(t, types.SideLong, sels[0].Side)
	assert.Equal(t, types.PurposeEntry, sels[0].Purpose)
	assert.Equal(t, run.BestScore, sels[0].Score)
	selected, ok := run.Results.Selected()
	require.True(t, ok)
	assert.Equal(t, run.BestTrial, selected.TrialNumber)
	assert.Equal(t, selected.Rank, sels[0].Rank)

	path := filepath.Join(t.TempDir(), "RANGE.json")
	_, err = results.ExportIndicatorSet(path, results.Meta{Symbol: "BTCUSDT"}.WithBars(bars), "RANGE", sels, periods)
	require.NoError(t, err)
	loaded, err := results.LoadIndicatorSetArtifact(path)
	require.NoError(t, err)
	assert.Equal(t, "RANGE", loaded.RegimeID)
	require.Len(t, loaded.Indicators, 1)
	assert.Equal(t, "sma_long_entry", loaded.Indicators[0].ID)
	assert.InDelta(t, run.BestScore, loaded.Meta.OptimizationScore, 1e-9)
}

func TestSignalSearchRunsEveryCombination(t *testing.T) {
	bars := waveBars(300)
	cfg := DefaultSignalSearchConfig()
	cfg.Trials = 3
	cfg.Indicators = []indicators.Kind{indicators.KindSMA, indicators.KindRSI}
	opt, err := NewIndicatorSetOptimizer(cfg)
	require.NoError(t, err)

	res, err := opt.Optimize(context.Background(), bars, "RANGE", wholeSeries("RANGE", len(bars)))
	require.NoError(t, err)
	require.Len(t, res.Runs, 8)
	seen := map[string]bool{}
	for i, run := range res.Runs {
		assert.Equal(t, 3, run.Results.Len(), run.Study)
		seen[run.Study] = true
		if i > 0 {
			assert.Less(t, res.Runs[i-1].Study, run.Study)
		}
	}
	assert.Len(t, seen, 8)
	assert.True(t, seen["RANGE_sma_short_exit"])
}

func TestSignalSearchRejectsAbsentRegime(t *testing.T) {
	bars := waveBars(100)
	opt, err := NewIndicatorSetOptimizer(signalConfig(indicators.KindSMA, 5))
	require.NoError(t, err)

	_, err = opt.Optimize(context.Background(), bars, "MISSING", wholeSeries("RANGE", len(bars)))
	require.Error(t, err)
	assert.Equal(t, errors.ErrorCategoryConfiguration, errors.CategoryOf(err))
}

func TestSignalSearchRejectsUnsearchableKind(t *testing.T) {
	_, err := NewIndicatorSetOptimizer(signalConfig(indicators.KindATR, 5))
	assert.Error(t, err)

	cfg := signalConfig(indicators.KindSMA, 5)
	cfg.Sides = []types.Side{"sideways"}
	_, err = NewIndicatorSetOptimizer(cfg)
	assert.Error(t, err)
}

func TestSignalSearchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bars := waveBars(200)
	opt, err := NewIndicatorSetOptimizer(signalConfig(indicators.KindSMA, 5))
	require.NoError(t, err)

	res, err := opt.Optimize(ctx, bars, "RANGE", wholeSeries("RANGE", len(bars)))
	require.NoError(t, err)
	assert.True(t, res.Cancelled)
	require.Len(t, res.Runs, 1)
	assert.Equal(t, 0, res.Runs[0].Results.Len())
}

// cancelAfterSaves cancels the search once it has stored a number of trials
type cancelAfterSaves struct {
	Storage
	after  int32
	saved  int32
	cancel context.CancelFunc
}

func (s *cancelAfterSaves) SaveTrial(ctx context.Context, study string, t FrozenTrial) error {
	if err := s.Storage.SaveTrial(ctx, study, t); err != nil {
		return err
	}
	if atomic.AddInt32(&s.saved, 1) == s.after {
		s.cancel()
	}
	return nil
}

func TestSignalSearchCancelledMidRunKeepsFinishedTrials(t *testing.T) {
	bars := waveBars(300)
	periods := wholeSeries("RANGE", len(bars))
	for rep := 0; rep < 40; rep++ {
		ctx, cancel := context.WithCancel(context.Background())
		storage := &cancelAfterSaves{Storage: NewMemoryStorage(), after: 5, cancel: cancel}
		cfg := signalConfig(indicators.KindSMA, 20)
		cfg.Workers = 1
		opt, err := NewIndicatorSetOptimizer(cfg, WithStorage(storage))
		require.NoError(t, err)

		res, err := opt.Optimize(ctx, bars, "RANGE", periods)
		require.NoError(t, err)
		assert.True(t, res.Cancelled)
		require.Len(t, res.Runs, 1)
		run := res.Runs[0]
		assert.True(t, run.Cancelled)
		require.Equal(t, 5, run.Results.Len(), "repetition %d", rep)
		for i, trial := range run.Results.Trials() {
			assert.Equal(t, i, trial.TrialNumber)
		}
	}
}

func TestSignalSearchCancelledLeavesLaterRunsEmpty(t *testing.T) {
	bars := waveBars(300)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	storage := &cancelAfterSaves{Storage: NewMemoryStorage(), after: 3, cancel: cancel}
	cfg := signalConfig(indicators.KindSMA, 10)
	cfg.Indicators = []indicators.Kind{indicators.KindSMA, indicators.KindRSI}
	cfg.Workers = 1
	opt, err := NewIndicatorSetOptimizer(cfg, WithStorage(storage))
	require.NoError(t, err)

	res, err := opt.Optimize(ctx, bars, "RANGE", wholeSeries("RANGE", len(bars)))
	require.NoError(t, err)
	assert.True(t, res.Cancelled)
	require.Len(t, res.Runs, 2)

	byStudy := map[string]SignalRun{}
	for _, run := range res.Runs {
		byStudy[run.Study] = run
		assert.True(t, run.Cancelled, run.Study)
		require.NotNil(t, run.Results, run.Study)
	}
	assert.Equal(t, 3, byStudy["RANGE_sma_long_entry"].Results.Len())
	assert.Equal(t, 0, byStudy["RANGE_rsi_long_entry"].Results.Len())
}

func TestSignalSearchReportsEveryTrial(t *testing.T) {
	var mu sync.Mutex
	var seen []Progress
	cfg := signalConfig(indicators.KindSMA, 12)
	opt, err := NewIndicatorSetOptimizer(cfg, WithProgress(func(p Progress) {
		mu.Lock()
		seen = append(seen, p)
		mu.Unlock()
	}))
	require.NoError(t, err)

	bars := waveBars(300)
	_, err = opt.Optimize(context.Background(), bars, "RANGE", wholeSeries("RANGE", len(bars)))
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	last := seen[len(seen)-1]
	assert.Equal(t, StageSignal, last.Stage)
	assert.Equal(t, 12, last.Trial)
	assert.Equal(t, 12, last.Total)
	for i := 1; i < len(seen); i++ {
		assert.Less(t, seen[i-1].Trial, seen[i].Trial)
	}
}
