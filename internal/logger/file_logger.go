package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// RunLog is a per-run JSON log file mirrored next to the console logger
type RunLog struct {
	file *os.File
	path string
}

// OpenRunLog creates <dir>/<name>_<date>.log and writes a session header
func OpenRunLog(dir, name string) (*RunLog, error) {
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_%s.log", name, time.Now().Format("2006-01-02")))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	r := &RunLog{file: file, path: path}
	header := zerolog.New(file)
	header.Info().Timestamp().Str("session", name).Msg("session started")
	return r, nil
}

// Path returns the log file location
func (r *RunLog) Path() string { return r.path }

// Attach returns a logger that writes to both base output and the run file
func (r *RunLog) Attach(base zerolog.Logger, console zerolog.LevelWriter) zerolog.Logger {
	multi := zerolog.MultiLevelWriter(console, r.file)
	return base.Output(multi)
}

// Close writes a footer and closes the file
func (r *RunLog) Close() error {
	footer := zerolog.New(r.file)
	footer.Info().Timestamp().Msg("session ended")
	return r.file.Close()
}
