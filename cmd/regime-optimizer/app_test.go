package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/regime-optimizer/internal/backtest"
	"github.com/ducminhle1904/regime-optimizer/internal/indicators"
	"github.com/ducminhle1904/regime-optimizer/internal/regime"
	"github.com/ducminhle1904/regime-optimizer/pkg/config"
	"github.com/ducminhle1904/regime-optimizer/pkg/results"
	"github.com/ducminhle1904/regime-optimizer/pkg/types"
)

func TestLoadConfigAppliesFlagOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(config.EnvLogLevel, "warn")
	t.Setenv(config.EnvResultsDir, filepath.Join(dir, "from-env"))

	cfg, err := loadConfig(rootFlags{
		envFile:   filepath.Join(dir, "missing.env"),
		logLevel:  "DEBUG",
		dataFile:  filepath.Join(dir, "bars.csv"),
		symbol:    "ethusdt",
		interval:  "4h",
		outputDir: filepath.Join(dir, "out"),
	})
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, config.SourceCSV, cfg.Data.Source)
	assert.Equal(t, filepath.Join(dir, "bars.csv"), cfg.Data.File)
	assert.Equal(t, "ETHUSDT", cfg.Data.Symbol)
	assert.Equal(t, "4h", cfg.Data.Interval)
	assert.Equal(t, filepath.Join(dir, "out"), cfg.Output.Dir)
}

func TestLoadConfigEnvironmentWithoutFlags(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(config.EnvResultsDir, filepath.Join(dir, "from-env"))

	cfg, err := loadConfig(rootFlags{envFile: filepath.Join(dir, "missing.env"), symbol: "BTCUSDT"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "from-env"), cfg.Output.Dir)
}

func TestLoadConfigRejectsInvalidOverride(t *testing.T) {
	_, err := loadConfig(rootFlags{envFile: filepath.Join(t.TempDir(), "missing.env"), symbol: "BTCUSDT", source: "ftp"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data.source")
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := loadConfig(rootFlags{
		envFile:    filepath.Join(t.TempDir(), "missing.env"),
		configFile: filepath.Join(t.TempDir(), "nope.yaml"),
	})
	assert.Error(t, err)
}

func TestPeriodsOf(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	periods := []regime.Period{
		{RegimeID: "bull", StartIdx: 0, EndIdx: 2, StartTS: t0, EndTS: t0.Add(2 * time.Hour)},
		{RegimeID: regime.Unknown, StartIdx: 3, EndIdx: 3, StartTS: t0.Add(3 * time.Hour), EndTS: t0.Add(3 * time.Hour)},
		{RegimeID: "bull", StartIdx: 4, EndIdx: 6, StartTS: t0.Add(4 * time.Hour), EndTS: t0.Add(6 * time.Hour)},
	}
	got := periodsOf(periods, "bull")
	require.Len(t, got, 2)
	assert.Equal(t, 4, got[1].StartIdx)
	assert.Empty(t, periodsOf(periods, "bear"))
}

func TestCommandsAreRegistered(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"classify", "optimize-regimes", "optimize-signals", "pipeline", "fetch", "version"} {
		assert.Contains(t, names, want)
	}
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, optimizeRegimesCmd.Flags().Lookup("select"))
	assert.NotNil(t, optimizeSignalsCmd.Flags().Lookup("regime"))
}

func TestFetchRequiresStart(t *testing.T) {
	fetchFlags.start = ""
	fetchFlags.limit = 1000
	defer func() { fetchFlags.start = "" }()

	err := runFetch(fetchCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start is required")
}

func TestClassifyRejectsMissingRegimeFile(t *testing.T) {
	classifyRegimeFile = filepath.Join(os.TempDir(), "does-not-exist", "regime_config.json")
	defer func() { classifyRegimeFile = "" }()

	err := runClassify(classifyCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestLegsOfPairsEntryWithExit(t *testing.T) {
	entry, err := backtest.DefaultSignalConfig(indicators.KindRSI, types.SideLong, types.PurposeEntry)
	require.NoError(t, err)
	exit, err := backtest.DefaultSignalConfig(indicators.KindEMA, types.SideLong, types.PurposeExit)
	require.NoError(t, err)
	shortExit, err := backtest.DefaultSignalConfig(indicators.KindEMA, types.SideShort, types.PurposeExit)
	require.NoError(t, err)

	legs := legsOf([]results.SignalSelection{
		{Side: types.SideLong, Purpose: types.PurposeExit, Signal: exit, Rank: 1},
		{Side: types.SideLong, Purpose: types.PurposeEntry, Signal: entry, Rank: 1},
		{Side: types.SideShort, Purpose: types.PurposeExit, Signal: shortExit, Rank: 1},
	})
	require.Len(t, legs, 1, "a side without an entry has no leg")
	assert.Equal(t, indicators.KindRSI, legs[0].Entry.IndicatorType)
	require.NotNil(t, legs[0].Exit)
	assert.Equal(t, indicators.KindEMA, legs[0].Exit.IndicatorType)

	assert.Empty(t, legsOf(nil))
}
