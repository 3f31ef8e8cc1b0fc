package config

import (
	"github.com/ducminhle1904/regime-optimizer/internal/logger"
	"github.com/ducminhle1904/regime-optimizer/internal/notifications"
	"github.com/ducminhle1904/regime-optimizer/internal/regime"
	"github.com/ducminhle1904/regime-optimizer/pkg/optimization"
	"github.com/ducminhle1904/regime-optimizer/pkg/validation"
)

// Configuration constants
const (
	DefaultDataRoot = "data"
	DefaultExchange = "bybit" // Default exchange for data
	ResultsDir      = "results"

	OptimizationResultsFile = "optimization_results.json"
	SelectedRegimeFile      = "regime_config.json"
	IndicatorSetFile        = "indicator_set_%s.json" // per regime id
)

// Data sources
const (
	SourceCSV   = "csv"
	SourceBybit = "bybit"
)

// Storage backends
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// SearchConfig is the complete configuration of a regime-optimizer run
type SearchConfig struct {
	SchemaVersion string     `yaml:"schema_version" json:"schema_version" default:"2.0" validate:"eq=2.0"`
	Data          DataConfig `yaml:"data" json:"data"`

	// Template is the regime template searched in Stage 1. Nil selects the
	// built-in template; TemplateFile loads it from a separate document.
	Template     *regime.Config `yaml:"template,omitempty" json:"template,omitempty"`
	TemplateFile string         `yaml:"template_file,omitempty" json:"template_file,omitempty"`

	RegimeSearch  optimization.RegimeSearchConfig `yaml:"regime_search" json:"regime_search"`
	SignalSearch  optimization.SignalSearchConfig `yaml:"signal_search" json:"signal_search"`
	Validation    validation.Config               `yaml:"validation" json:"validation"`
	Output        OutputConfig                    `yaml:"output" json:"output"`
	Logging       logger.Config                   `yaml:"logging" json:"logging"`
	Storage       StorageConfig                   `yaml:"storage" json:"storage"`
	Notifications notifications.Config            `yaml:"notifications" json:"notifications"`
}

// DataConfig selects the bars a run works on
type DataConfig struct {
	Source string `yaml:"source" json:"source" default:"csv" validate:"oneof=csv bybit"`
	// File is a CSV path; when empty it is located under Root
	File     string `yaml:"file,omitempty" json:"file,omitempty"`
	Root     string `yaml:"root" json:"root" default:"data"`
	Exchange string `yaml:"exchange" json:"exchange" default:"bybit"`
	Category string `yaml:"category" json:"category" default:"linear" validate:"oneof=linear spot inverse"`
	Symbol   string `yaml:"symbol" json:"symbol" validate:"required_without=File"`
	Interval string `yaml:"interval" json:"interval" default:"1h" validate:"required"`

	Start string `yaml:"start,omitempty" json:"start,omitempty" validate:"omitempty,datetime=2006-01-02"`
	End   string `yaml:"end,omitempty" json:"end,omitempty" validate:"omitempty,datetime=2006-01-02"`
	// Period keeps only the trailing window, e.g. "180d"
	Period string `yaml:"period,omitempty" json:"period,omitempty"`

	Limit     int    `yaml:"limit" json:"limit" default:"1000" validate:"gte=1,lte=1000"`
	Testnet   bool   `yaml:"testnet" json:"testnet"`
	APIKey    string `yaml:"api_key,omitempty" json:"-"`
	APISecret string `yaml:"api_secret,omitempty" json:"-"`
}

// OutputConfig controls where artifacts and reports go
type OutputConfig struct {
	Dir       string `yaml:"dir" json:"dir" default:"results" validate:"required"`
	Top       int    `yaml:"top" json:"top" default:"10" validate:"gte=1"`
	Excel     bool   `yaml:"excel" json:"excel"`
	TradesCSV bool   `yaml:"trades_csv" json:"trades_csv"`
	RunLog    bool   `yaml:"run_log" json:"run_log"`
}

// StorageConfig selects where study trials are persisted
type StorageConfig struct {
	Backend string                   `yaml:"backend" json:"backend" default:"memory" validate:"oneof=memory redis"`
	Redis   optimization.RedisConfig `yaml:"redis" json:"redis"`
}
