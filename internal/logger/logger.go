package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config controls the process logger
type Config struct {
	Level      string `yaml:"level" json:"level" default:"info" validate:"oneof=trace debug info warn error"`
	Format     string `yaml:"format" json:"format" default:"console" validate:"oneof=console json"`
	Output     string `yaml:"output" json:"output" default:"stderr"`
	TimeFormat string `yaml:"time_format" json:"time_format"`
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New builds a zerolog logger from cfg. The returned closer releases the
// log file when Output is a path.
func New(cfg Config) (zerolog.Logger, io.Closer, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("invalid log level: %w", err)
		}
		level = parsed
	}

	var (
		output io.Writer
		closer io.Closer = nopCloser{}
	)
	switch cfg.Output {
	case "", "stderr":
		output = os.Stderr
	case "stdout":
		output = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("could not open log file: %w", err)
		}
		output, closer = file, file
	}

	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339
	}
	if cfg.Format != "json" {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: cfg.TimeFormat}
	}

	return zerolog.New(output).Level(level).With().Timestamp().Logger(), closer, nil
}

// ConsoleWriter is the formatted stderr or stdout writer New uses, for
// mirroring the process log next to a RunLog
func ConsoleWriter(cfg Config) zerolog.LevelWriter {
	var out io.Writer = os.Stderr
	if cfg.Output == "stdout" {
		out = os.Stdout
	}
	if cfg.Format != "json" {
		timeFormat := cfg.TimeFormat
		if timeFormat == "" {
			timeFormat = time.RFC3339
		}
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: timeFormat}
	}
	return zerolog.LevelWriterAdapter{Writer: out}
}

// Nop returns a disabled logger for library defaults and tests
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
