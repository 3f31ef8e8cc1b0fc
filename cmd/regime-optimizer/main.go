package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// rootFlags are shared by every command
type rootFlags struct {
	configFile  string
	envFile     string
	metricsAddr string
	logLevel    string

	// data overrides
	dataFile string
	symbol   string
	interval string
	source   string

	outputDir string
	noFiles   bool
}

var flags rootFlags

// rootCmd is the base command for the regime-optimizer CLI
var rootCmd = &cobra.Command{
	Use:   "regime-optimizer",
	Short: "Market regime classification and two-stage parameter optimization",
	Long: `regime-optimizer labels OHLCV bars with market regimes, searches the
regime template parameters that give a stable, well-covered labelling
(Stage 1), then searches per-regime entry and exit signals (Stage 2).

Example usage:
  regime-optimizer classify --config search.yaml
  regime-optimizer optimize-regimes --config search.yaml --metrics-addr :9090
  regime-optimizer optimize-signals --config search.yaml --regime TREND_UP
  regime-optimizer pipeline --config search.yaml
  regime-optimizer fetch --symbol BTCUSDT --interval 1h --start 2024-01-01`,
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configFile, "config", "c", "", "Search configuration file (YAML or JSON)")
	pf.StringVar(&flags.envFile, "env-file", ".env", "Environment file with credentials and overrides")
	pf.StringVar(&flags.metricsAddr, "metrics-addr", "", "Serve /metrics and /progress on this address")
	pf.StringVar(&flags.logLevel, "log-level", "", "Override logging.level")
	pf.StringVar(&flags.dataFile, "data-file", "", "Override data.file")
	pf.StringVar(&flags.symbol, "symbol", "", "Override data.symbol")
	pf.StringVar(&flags.interval, "interval", "", "Override data.interval")
	pf.StringVar(&flags.source, "source", "", "Override data.source (csv|bybit)")
	pf.StringVarP(&flags.outputDir, "output", "o", "", "Override output.dir")
	pf.BoolVar(&flags.noFiles, "console-only", false, "Print reports without writing Excel or CSV files")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
