package data

import (
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ducminhle1904/regime-optimizer/internal/errors"
	"github.com/ducminhle1904/regime-optimizer/pkg/types"
)

// CSVProvider implements DataProvider for CSV files
type CSVProvider struct {
	format CSVColumnMapping
	log    zerolog.Logger
}

// NewCSVProvider creates a new CSV data provider with default format
func NewCSVProvider(log zerolog.Logger) *CSVProvider {
	return NewCSVProviderWithFormat(DefaultCSVFormat, log)
}

// NewCSVProviderWithFormat creates a new CSV data provider with custom format
func NewCSVProviderWithFormat(format CSVColumnMapping, log zerolog.Logger) *CSVProvider {
	return &CSVProvider{format: format, log: log.With().Str("component", "csv").Logger()}
}

// GetName returns the name of the data provider
func (p *CSVProvider) GetName() string {
	return "CSV Provider"
}

// LoadData loads historical data from a CSV file. Malformed rows are skipped
// with a warning; a missing file is a configuration error.
func (p *CSVProvider) LoadData(source string) ([]types.OHLCV, error) {
	file, err := os.Open(source)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewConfigError("data", "file", "data file %s not found", source)
		}
		return nil, err
	}
	defer file.Close()
	return p.read(file, source)
}

func (p *CSVProvider) read(r io.Reader, source string) ([]types.OHLCV, error) {
	format := p.format
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	// Skip header
	if _, err := reader.Read(); err != nil {
		if stderrors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("error reading CSV header of %s: %w", source, err)
	}

	var data []types.OHLCV
	skipped := 0
	lineNum := 1
	for {
		record, err := reader.Read()
		if err != nil {
			if stderrors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("error reading CSV at line %d: %w", lineNum, err)
		}
		lineNum++

		bar, reason := parseRecord(record, format)
		if reason != "" {
			skipped++
			p.log.Warn().Int("line", lineNum).Str("reason", reason).Msg("Skipping CSV row")
			continue
		}
		data = append(data, bar)
	}

	p.log.Debug().Str("file", filepath.Base(source)).Int("bars", len(data)).Int("skipped", skipped).Msg("CSV loaded")
	return data, nil
}

// parseRecord returns the bar of a row or the reason it was rejected
func parseRecord(record []string, format CSVColumnMapping) (types.OHLCV, string) {
	if len(record) < format.MinColumns {
		return types.OHLCV{}, fmt.Sprintf("expected %d columns, got %d", format.MinColumns, len(record))
	}
	timestamp, err := ParseTimestamp(record[format.TimestampCol], format.DateFormat)
	if err != nil {
		return types.OHLCV{}, err.Error()
	}

	cols := []int{format.OpenCol, format.HighCol, format.LowCol, format.CloseCol, format.VolumeCol}
	var values [5]float64
	for i, col := range cols {
		v, err := strconv.ParseFloat(strings.TrimSpace(record[col]), 64)
		if err != nil {
			return types.OHLCV{}, fmt.Sprintf("invalid number %q in column %d", record[col], col)
		}
		values[i] = v
	}
	bar := types.OHLCV{
		Timestamp: timestamp,
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
	}
	if err := checkBar(bar); err != nil {
		return types.OHLCV{}, err.Error()
	}
	return bar, ""
}

// ParseTimestamp accepts the configured layout, RFC 3339 and epoch
// seconds or milliseconds. Results are in UTC.
func ParseTimestamp(s, layout string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if layout != "" {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e11 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

func checkBar(candle types.OHLCV) error {
	if candle.Open <= 0 || candle.High <= 0 || candle.Low <= 0 || candle.Close <= 0 {
		return fmt.Errorf("prices must be positive")
	}
	if candle.High < candle.Low {
		return fmt.Errorf("high (%.4f) cannot be less than low (%.4f)", candle.High, candle.Low)
	}
	if candle.High < candle.Open || candle.High < candle.Close {
		return fmt.Errorf("high (%.4f) must be >= open (%.4f) and close (%.4f)", candle.High, candle.Open, candle.Close)
	}
	if candle.Low > candle.Open || candle.Low > candle.Close {
		return fmt.Errorf("low (%.4f) must be <= open (%.4f) and close (%.4f)", candle.Low, candle.Open, candle.Close)
	}
	if candle.Volume < 0 {
		return fmt.Errorf("volume cannot be negative")
	}
	return nil
}

// ValidateData validates the integrity of loaded data
func (p *CSVProvider) ValidateData(data []types.OHLCV) error {
	return ValidateBars(data)
}

// ValidateBars checks prices and chronological order
func ValidateBars(data []types.OHLCV) error {
	if len(data) == 0 {
		return errors.NewConfigError("data", "bars", "no data provided")
	}
	for i, candle := range data {
		if err := checkBar(candle); err != nil {
			return errors.NewConfigError("data", "bars", "invalid price data at index %d: %v", i, err)
		}
		if i > 0 && !candle.Timestamp.After(data[i-1].Timestamp) {
			return errors.NewConfigError("data", "bars", "invalid timestamp sequence at index %d: timestamps must be strictly increasing", i)
		}
	}
	return nil
}

// WriteCSV stores bars in DefaultCSVFormat, creating parent directories
func WriteCSV(path string, bars []types.OHLCV) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to prepare output directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"timestamp", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	for _, b := range bars {
		record := []string{
			b.Timestamp.UTC().Format(DefaultCSVFormat.DateFormat),
			f(b.Open), f(b.High), f(b.Low), f(b.Close), f(b.Volume),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
