package config

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ducminhle1904/regime-optimizer/internal/errors"
	"github.com/ducminhle1904/regime-optimizer/internal/regime"
	"github.com/ducminhle1904/regime-optimizer/pkg/optimization"
)

// Environment variables that override file settings
const (
	EnvLogLevel   = "LOG_LEVEL"
	EnvAPIKey     = "BYBIT_API_KEY"
	EnvAPISecret  = "BYBIT_API_SECRET"
	EnvRedisAddr  = "REDIS_ADDR"
	EnvRedisPass  = "REDIS_PASSWORD"
	EnvDataRoot   = "DATA_ROOT"
	EnvResultsDir = "RESULTS_DIR"
	EnvTelegram   = "TELEGRAM_TOKEN"
	EnvTelegramID = "TELEGRAM_CHAT_ID"
)

// Default returns a configuration with every default applied
func Default() *SearchConfig {
	cfg := &SearchConfig{
		RegimeSearch: optimization.DefaultRegimeSearchConfig(),
		SignalSearch: optimization.DefaultSignalSearchConfig(),
	}
	if err := defaults.Set(cfg); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return cfg
}

// Load reads a YAML or JSON configuration file, applies defaults and
// environment overrides and validates the result
func Load(path string) (*SearchConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewConfigError("config", path, "read config: %v", err)
	}
	return Parse(data, filepath.Dir(path))
}

// Parse decodes a configuration document. Relative template files are
// resolved against baseDir.
func Parse(data []byte, baseDir string) (*SearchConfig, error) {
	cfg := &SearchConfig{}
	if err := decodeStrict(data, cfg); err != nil {
		return nil, errors.NewConfigError("config", "", "parse config: %v", err)
	}
	if cfg.Template == nil && cfg.TemplateFile != "" {
		tmpl, err := LoadTemplate(resolve(baseDir, cfg.TemplateFile))
		if err != nil {
			return nil, err
		}
		cfg.Template = &tmpl
	}
	if err := Finalize(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Finalize applies defaults and environment overrides, then validates
func Finalize(cfg *SearchConfig, lookup func(string) (string, bool)) error {
	if err := defaults.Set(cfg); err != nil {
		return errors.NewConfigError("config", "", "apply defaults: %v", err)
	}
	fillSignalDefaults(cfg)
	if lookup != nil {
		ApplyEnv(cfg, lookup)
	}
	return Validate(cfg)
}

// LoadTemplate reads a regime template document
func LoadTemplate(path string) (regime.Config, error) {
	var tmpl regime.Config
	data, err := os.ReadFile(path)
	if err != nil {
		return tmpl, errors.NewConfigError("config", "template_file", "read template: %v", err)
	}
	if err := decodeStrict(data, &tmpl); err != nil {
		return tmpl, errors.NewConfigError("config", "template_file", "parse template: %v", err)
	}
	return tmpl, nil
}

// LoadEnvFile loads a dotenv file into the process environment. A missing
// file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return errors.NewConfigError("config", path, "load env file: %v", err)
	}
	return nil
}

// ApplyEnv overrides secrets and deployment settings from the environment
func ApplyEnv(cfg *SearchConfig, lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set(EnvLogLevel, &cfg.Logging.Level)
	set(EnvAPIKey, &cfg.Data.APIKey)
	set(EnvAPISecret, &cfg.Data.APISecret)
	set(EnvRedisAddr, &cfg.Storage.Redis.Addr)
	set(EnvRedisPass, &cfg.Storage.Redis.Password)
	set(EnvDataRoot, &cfg.Data.Root)
	set(EnvResultsDir, &cfg.Output.Dir)
	set(EnvTelegram, &cfg.Notifications.TelegramToken)
	set(EnvTelegramID, &cfg.Notifications.TelegramChat)
}

// RegimeTemplate returns the configured template or the built-in one
func (c *SearchConfig) RegimeTemplate() regime.Config {
	if c.Template != nil {
		return c.Template.Clone()
	}
	return optimization.DefaultRegimeTemplate()
}

// Save writes cfg as YAML
func Save(cfg *SearchConfig, path string) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

// decodeStrict decodes YAML (and therefore JSON) rejecting unknown keys
func decodeStrict(data []byte, v interface{}) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil && !stderrors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func fillSignalDefaults(cfg *SearchConfig) {
	def := optimization.DefaultSignalSearchConfig()
	if len(cfg.SignalSearch.Indicators) == 0 {
		cfg.SignalSearch.Indicators = def.Indicators
	}
	if len(cfg.SignalSearch.Sides) == 0 {
		cfg.SignalSearch.Sides = def.Sides
	}
	if len(cfg.SignalSearch.Purposes) == 0 {
		cfg.SignalSearch.Purposes = def.Purposes
	}
}

func resolve(baseDir, path string) string {
	if filepath.IsAbs(path) || baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}
