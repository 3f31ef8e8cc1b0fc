package data

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/regime-optimizer/internal/errors"
	"github.com/ducminhle1904/regime-optimizer/pkg/types"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func hourly(n int) []types.OHLCV {
	bars := make([]types.OHLCV, n)
	for i := range bars {
		p := 100 + float64(i)
		bars[i] = types.OHLCV{
			Timestamp: t0.Add(time.Duration(i) * time.Hour),
			Open:      p, High: p + 2, Low: p - 1, Close: p + 1, Volume: 5.5,
		}
	}
	return bars
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestCSVProviderSkipsMalformedRows(t *testing.T) {
	path := writeFile(t, "candles.csv", `timestamp,open,high,low,close,volume,turnover
2024-03-01 00:00:00,100,102,99,101,10,1000
not-a-time,100,102,99,101,10,1000
2024-03-01 02:00:00,100,98,99,101,10,1000
2024-03-01 03:00:00,100,102
2024-03-01 04:00:00,abc,102,99,101,10,1000
1709269200000,101,103,100,102,11,1100
`)
	bars, err := NewCSVProvider(zerolog.Nop()).LoadData(path)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, t0, bars[0].Timestamp)
	assert.Equal(t, 101.0, bars[0].Close)
	assert.Equal(t, t0.Add(5*time.Hour), bars[1].Timestamp)
	assert.Equal(t, 11.0, bars[1].Volume)
}

func TestCSVProviderMissingFile(t *testing.T) {
	_, err := NewCSVProvider(zerolog.Nop()).LoadData(filepath.Join(t.TempDir(), "absent.csv"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrorCategoryConfiguration, errors.CategoryOf(err))
}

func TestWriteCSVRoundTrip(t *testing.T) {
	bars := hourly(30)
	path := filepath.Join(t.TempDir(), "nested", "dir", "candles.csv")
	require.NoError(t, WriteCSV(path, bars))

	loaded, err := NewCSVProvider(zerolog.Nop()).LoadData(path)
	require.NoError(t, err)
	assert.Equal(t, bars, loaded)
}

func TestParseTimestamp(t *testing.T) {
	layout := DefaultCSVFormat.DateFormat
	for _, in := range []string{"2024-03-01 00:00:00", "2024-03-01T00:00:00Z", "1709251200", "1709251200000"} {
		ts, err := ParseTimestamp(in, layout)
		require.NoError(t, err, in)
		assert.True(t, ts.Equal(t0), in)
	}
	_, err := ParseTimestamp("yesterday", layout)
	assert.Error(t, err)
}

func TestValidateBars(t *testing.T) {
	require.NoError(t, ValidateBars(hourly(3)))
	assert.Error(t, ValidateBars(nil))

	bars := hourly(3)
	bars[2].Timestamp = bars[1].Timestamp
	assert.Error(t, ValidateBars(bars))

	bars = hourly(3)
	bars[1].Low = bars[1].High + 1
	assert.Error(t, ValidateBars(bars))
}

func TestFilters(t *testing.T) {
	f := NewDefaultDataFilter()
	bars := hourly(48)

	recent := f.FilterByPeriod(bars, 24*time.Hour)
	require.Len(t, recent, 25)
	assert.Equal(t, bars[23].Timestamp, recent[0].Timestamp)
	assert.Len(t, f.FilterByPeriod(bars, 0), 48)

	ranged := f.FilterByDateRange(bars, time.Time{}, t0.Add(4*time.Hour))
	assert.Len(t, ranged, 5)
	ranged = f.FilterByDateRange(bars, t0.Add(40*time.Hour), time.Time{})
	assert.Len(t, ranged, 8)

	shuffled := []types.OHLCV{bars[2], bars[0], bars[1], bars[0]}
	assert.Error(t, f.ValidateTimeSequence(shuffled))
	normal := f.Normalize(shuffled)
	require.Len(t, normal, 3)
	assert.NoError(t, f.ValidateTimeSequence(normal))
	assert.Equal(t, bars[:3], normal)
}

func TestLocator(t *testing.T) {
	root := t.TempDir()
	assert.Equal(t, filepath.Join(root, "bybit", "linear", "BTCUSDT", "60", CandlesFile),
		DataPath(root, "Bybit", "LINEAR", "btcusdt", "1h"))
	assert.Equal(t, "240", IntervalMinutes("4h"))
	assert.Equal(t, "1440", IntervalMinutes("1d"))
	assert.Equal(t, "15", IntervalMinutes("15"))
	assert.Equal(t, "x", IntervalMinutes("x"))

	loc := NewDefaultFileLocator(zerolog.Nop())
	assert.Equal(t, "", loc.FindDataFile(root, "bybit", "BTCUSDT", "1h"))

	path := DataPath(root, "bybit", "spot", "BTCUSDT", "1h")
	require.NoError(t, WriteCSV(path, hourly(2)))
	assert.Equal(t, path, loc.FindDataFile(root, "bybit", "btcusdt", "60"))
	assert.Equal(t, path, loc.FindCategoryFile(root, "bybit", "linear", "BTCUSDT", "1h"))

	preferred := DataPath(root, "bybit", "linear", "BTCUSDT", "1h")
	require.NoError(t, WriteCSV(preferred, hourly(2)))
	assert.Equal(t, preferred, loc.FindCategoryFile(root, "bybit", "linear", "BTCUSDT", "1h"))
}

func TestParseTrailingPeriod(t *testing.T) {
	d, ok := ParseTrailingPeriod("30d")
	require.True(t, ok)
	assert.Equal(t, 30*24*time.Hour, d)
	d, ok = ParseTrailingPeriod("7days")
	require.True(t, ok)
	assert.Equal(t, 7*24*time.Hour, d)
	d, ok = ParseTrailingPeriod("168h")
	require.True(t, ok)
	assert.Equal(t, 168*time.Hour, d)
	for _, bad := range []string{"", "d", "-3d", "soon"} {
		_, ok := ParseTrailingPeriod(bad)
		assert.False(t, ok, bad)
	}
}

func TestMemoryCacheReturnsCopies(t *testing.T) {
	c := NewMemoryCache()
	bars := hourly(2)
	c.Set("k", bars)
	bars[0].Close = -1

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 101.0, got[0].Close)
	got[1].Close = -1
	again, _ := c.Get("k")
	assert.Equal(t, 102.0, again[1].Close)
	assert.Equal(t, 1, c.Size())
	c.Clear()
	assert.Equal(t, 0, c.Size())
}
