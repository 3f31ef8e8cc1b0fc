package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ducminhle1904/regime-optimizer/internal/logger"
	"github.com/ducminhle1904/regime-optimizer/internal/monitoring"
	"github.com/ducminhle1904/regime-optimizer/internal/notifications"
	"github.com/ducminhle1904/regime-optimizer/pkg/config"
	"github.com/ducminhle1904/regime-optimizer/pkg/data"
	"github.com/ducminhle1904/regime-optimizer/pkg/optimization"
	"github.com/ducminhle1904/regime-optimizer/pkg/reporting"
	"github.com/ducminhle1904/regime-optimizer/pkg/results"
	"github.com/ducminhle1904/regime-optimizer/pkg/types"
)

// app holds everything a command needs for one run
type app struct {
	cfg      *config.SearchConfig
	log      zerolog.Logger
	runID    string
	storage  optimization.Storage
	data     *data.DataManager
	progress *monitoring.ProgressTracker
	reports  *reporting.ReportingManager
	notifier notifications.Notifier

	closers []io.Closer
	server  *http.Server
}

// loadConfig reads the configuration file (or defaults), then applies the
// command-line overrides on top of file and environment values
func loadConfig(f rootFlags) (*config.SearchConfig, error) {
	if err := config.LoadEnvFile(f.envFile); err != nil {
		return nil, err
	}

	var cfg *config.SearchConfig
	if f.configFile != "" {
		loaded, err := config.Load(f.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
		if err := config.Finalize(cfg, os.LookupEnv); err != nil {
			return nil, err
		}
	}

	if f.logLevel != "" {
		cfg.Logging.Level = strings.ToLower(f.logLevel)
	}
	if f.dataFile != "" {
		cfg.Data.File = f.dataFile
		cfg.Data.Source = config.SourceCSV
	}
	if f.source != "" {
		cfg.Data.Source = f.source
	}
	if f.symbol != "" {
		cfg.Data.Symbol = strings.ToUpper(f.symbol)
	}
	if f.interval != "" {
		cfg.Data.Interval = f.interval
	}
	if f.outputDir != "" {
		cfg.Output.Dir = f.outputDir
	}
	return cfg, config.Validate(cfg)
}

// newApp wires configuration, logging, storage, data and reporting
func newApp(ctx context.Context, f rootFlags) (*app, error) {
	cfg, err := loadConfig(f)
	if err != nil {
		return nil, err
	}

	log, closer, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:      cfg,
		log:      log,
		runID:    uuid.NewString(),
		progress: monitoring.NewProgressTracker(),
		notifier: notifications.New(cfg.Notifications),
		closers:  []io.Closer{closer},
	}

	if cfg.Output.RunLog {
		runLog, err := logger.OpenRunLog(filepath.Join(cfg.Output.Dir, "logs"), "regime-optimizer")
		if err != nil {
			a.Close()
			return nil, err
		}
		log = runLog.Attach(log, logger.ConsoleWriter(cfg.Logging))
		a.closers = append(a.closers, runLog)
	}
	a.log = log.With().Str("run_id", a.runID).Logger()

	switch cfg.Storage.Backend {
	case config.BackendRedis:
		storage, err := optimization.DialRedisStorage(ctx, cfg.Storage.Redis)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.storage = storage
		a.closers = append(a.closers, storage)
		a.log.Info().Str("addr", cfg.Storage.Redis.Addr).Msg("Study trials stored in redis")
	default:
		a.storage = optimization.NewMemoryStorage()
	}

	var fetcher data.KlineFetcher
	if cfg.Data.Source == config.SourceBybit {
		fetcher = data.NewBybitProvider(bybitConfig(cfg.Data), a.log)
	}
	a.data = data.NewDataManager(a.log, fetcher)

	a.reports = reporting.NewReportingManager(reporting.ReportingConfig{
		EnableConsole:   true,
		EnableFiles:     !f.noFiles,
		OutputDirectory: cfg.Output.Dir,
		ExcelEnabled:    cfg.Output.Excel,
		CSVEnabled:      cfg.Output.TradesCSV,
		Top:             cfg.Output.Top,
	})

	if f.metricsAddr != "" {
		a.serveMetrics(f.metricsAddr)
	}
	return a, nil
}

func bybitConfig(d config.DataConfig) data.BybitConfig {
	bc := data.DefaultBybitConfig()
	bc.APIKey = d.APIKey
	bc.APISecret = d.APISecret
	bc.Testnet = d.Testnet
	return bc
}

// serveMetrics exposes prometheus metrics and the progress document
func (a *app) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", monitoring.NewMetricsHandler())
	mux.Handle("/progress", a.progress)
	a.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := a.server.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			a.log.Error().Err(err).Str("addr", addr).Msg("Metrics server stopped")
		}
	}()
	a.log.Info().Str("addr", addr).Msg("Serving /metrics and /progress")
}

// Close stops the metrics server and releases storage and log files
func (a *app) Close() {
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.server.Shutdown(ctx)
		cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.log.Warn().Err(err).Msg("close failed")
		}
	}
}

// optimizerOptions passes storage, logging and progress to an optimizer
func (a *app) optimizerOptions() []optimization.Option {
	return []optimization.Option{
		optimization.WithStorage(a.storage),
		optimization.WithLogger(a.log),
		optimization.WithProgress(func(p optimization.Progress) {
			a.progress.Update(p.Stage, p.Study, p.Trial, p.Total, p.BestScore)
		}),
	}
}

// loadBars loads the configured data window
func (a *app) loadBars(ctx context.Context) ([]types.OHLCV, error) {
	d := a.cfg.Data
	start, err := data.ParseDate(d.Start)
	if err != nil {
		return nil, err
	}
	end, err := data.ParseDate(d.End)
	if err != nil {
		return nil, err
	}
	if !end.IsZero() {
		// the end date is inclusive
		end = end.Add(24*time.Hour - time.Nanosecond)
	}
	var period time.Duration
	if d.Period != "" {
		period, _ = data.ParseTrailingPeriod(d.Period)
	}

	bars, _, err := a.data.Load(ctx, data.Query{
		Source:   d.Source,
		File:     d.File,
		Root:     d.Root,
		Exchange: d.Exchange,
		Category: d.Category,
		Symbol:   d.Symbol,
		Interval: d.Interval,
		Start:    start,
		End:      end,
		Period:   period,
		Limit:    d.Limit,
	})
	if err != nil {
		a.progress.RecordError(err)
		return nil, err
	}
	return bars, nil
}

// meta describes the run for artifacts and reports
func (a *app) meta(stage, study string, bars []types.OHLCV) results.Meta {
	symbol := a.cfg.Data.Symbol
	if symbol == "" && a.cfg.Data.File != "" {
		symbol = strings.TrimSuffix(filepath.Base(a.cfg.Data.File), filepath.Ext(a.cfg.Data.File))
	}
	return results.Meta{
		RunID:    a.runID,
		Stage:    stage,
		Study:    study,
		Exchange: a.cfg.Data.Exchange,
		Symbol:   strings.ToUpper(symbol),
		Interval: a.cfg.Data.Interval,
	}.WithBars(bars)
}

// artifactPath places an artifact next to the run's reports
func (a *app) artifactPath(meta results.Meta, name string) string {
	return filepath.Join(a.reports.OutputDir(meta), name)
}

// fail records err on the progress page and alerts before returning it
func (a *app) fail(err error) error {
	if err != nil {
		a.progress.RecordError(err)
		a.notify(notifications.LevelError, "run %s failed: %v", a.runID, err)
	}
	return err
}

// notify sends an alert; delivery failures are only logged
func (a *app) notify(level, format string, args ...interface{}) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.notifier.SendAlert(ctx, level, fmt.Sprintf(format, args...)); err != nil {
		a.log.Warn().Err(err).Msg("Alert not delivered")
	}
}

func (a *app) printf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stdout, format, args...)
}
