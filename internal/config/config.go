// Package config loads shaker's project configuration from .shaker/config.json.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"shaker/internal/bundle"
	"shaker/internal/edges"
	"shaker/internal/jsfront"
	"shaker/internal/optimizer"
	"shaker/internal/slogutil"
)

// CurrentVersion is the config schema version this build writes.
const CurrentVersion = 1

// EnvPrefix prefixes every environment override, e.g. SHAKER_OPTIMIZER_SPLITCHUNKS.
const EnvPrefix = "SHAKER"

// Config represents the complete shaker configuration
type Config struct {
	Version int `json:"version" mapstructure:"version"`

	Optimizer OptimizerConfig `json:"optimizer" mapstructure:"optimizer"`
	Output    OutputConfig    `json:"output" mapstructure:"output"`
	Storage   StorageConfig   `json:"storage" mapstructure:"storage"`
	Logging   LoggingConfig   `json:"logging" mapstructure:"logging"`
	Frontend  FrontendConfig  `json:"frontend" mapstructure:"frontend"`
}

// OptimizerConfig contains pass settings
type OptimizerConfig struct {
	SplitChunks      bool   `json:"splitChunks" mapstructure:"splitChunks"`
	AsyncRequirePath string `json:"asyncRequirePath" mapstructure:"asyncRequirePath"`
	EmitHashes       bool   `json:"emitHashes" mapstructure:"emitHashes"`
}

// OutputConfig contains bundle and report settings
type OutputConfig struct {
	Format      string `json:"format" mapstructure:"format"`
	Compression string `json:"compression" mapstructure:"compression"`
	RunModule   bool   `json:"runModule" mapstructure:"runModule"`
	Prelude     bool   `json:"prelude" mapstructure:"prelude"`
}

// StorageConfig contains run history settings
type StorageConfig struct {
	Enabled  bool `json:"enabled" mapstructure:"enabled"`
	KeepRuns int  `json:"keepRuns" mapstructure:"keepRuns"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format"`
	Level  string `json:"level" mapstructure:"level"`
}

// FrontendConfig contains source parsing settings
type FrontendConfig struct {
	Extensions []string `json:"extensions" mapstructure:"extensions"`
	Entries    []string `json:"entries" mapstructure:"entries"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentVersion,
		Optimizer: OptimizerConfig{
			SplitChunks:      false,
			AsyncRequirePath: edges.DefaultAsyncRequirePath,
			EmitHashes:       true,
		},
		Output: OutputConfig{
			Format:      "human",
			Compression: "none",
			RunModule:   true,
			Prelude:     true,
		},
		Storage: StorageConfig{
			Enabled:  true,
			KeepRuns: 50,
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "warn",
		},
		Frontend: FrontendConfig{
			Extensions: jsfront.DefaultOptions().Extensions,
		},
	}
}

// Path returns the config file location for a project root.
func Path(root string) string {
	return filepath.Join(root, ".shaker", "config.json")
}

// LoadConfig loads configuration from .shaker/config.json. A missing file
// yields the defaults; SHAKER_* environment variables override both.
func LoadConfig(root string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(filepath.Join(root, ".shaker"))

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, &ConfigError{Field: "file", Message: err.Error()}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &ConfigError{Field: "file", Message: err.Error()}
	}
	return &cfg, nil
}

// setDefaults registers every key so environment overrides apply even
// without a config file.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("version", d.Version)
	v.SetDefault("optimizer.splitChunks", d.Optimizer.SplitChunks)
	v.SetDefault("optimizer.asyncRequirePath", d.Optimizer.AsyncRequirePath)
	v.SetDefault("optimizer.emitHashes", d.Optimizer.EmitHashes)
	v.SetDefault("output.format", d.Output.Format)
	v.SetDefault("output.compression", d.Output.Compression)
	v.SetDefault("output.runModule", d.Output.RunModule)
	v.SetDefault("output.prelude", d.Output.Prelude)
	v.SetDefault("storage.enabled", d.Storage.Enabled)
	v.SetDefault("storage.keepRuns", d.Storage.KeepRuns)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("frontend.extensions", d.Frontend.Extensions)
	v.SetDefault("frontend.entries", d.Frontend.Entries)
}

// Save writes the configuration to .shaker/config.json
func (c *Config) Save(root string) error {
	configPath := Path(root)
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(configPath, data, 0644)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return &ConfigError{Field: "version", Message: fmt.Sprintf("unsupported version %d", c.Version)}
	}

	switch c.Output.Format {
	case "human", "json", "toml", "yaml":
	default:
		return &ConfigError{Field: "output.format", Message: fmt.Sprintf("unknown format %q", c.Output.Format)}
	}
	switch c.Output.Compression {
	case "none", "zstd":
	default:
		return &ConfigError{Field: "output.compression", Message: fmt.Sprintf("unknown compression %q", c.Output.Compression)}
	}
	if c.Storage.KeepRuns < 0 {
		return &ConfigError{Field: "storage.keepRuns", Message: "must not be negative"}
	}

	switch c.Logging.Format {
	case "human", "json":
	default:
		return &ConfigError{Field: "logging.format", Message: fmt.Sprintf("unknown format %q", c.Logging.Format)}
	}
	if !validLevel(c.Logging.Level) {
		return &ConfigError{Field: "logging.level", Message: fmt.Sprintf("unknown level %q", c.Logging.Level)}
	}

	for _, ext := range c.Frontend.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return &ConfigError{Field: "frontend.extensions", Message: fmt.Sprintf("extension %q must start with a dot", ext)}
		}
	}
	return nil
}

func validLevel(level string) bool {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "warning", "error", "off", "silent":
		return true
	}
	return false
}

// OptimizerOptions converts the optimizer section to pass options.
func (c *Config) OptimizerOptions() optimizer.Options {
	return optimizer.Options{
		SplitChunks:      c.Optimizer.SplitChunks,
		AsyncRequirePath: c.Optimizer.AsyncRequirePath,
		EmitHashes:       c.Optimizer.EmitHashes,
	}
}

// BundleOptions converts the output section to bundle options. The section
// stays "all"; callers writing a separate deferred file narrow it.
func (c *Config) BundleOptions() bundle.Options {
	opts := bundle.DefaultOptions()
	opts.Prelude = c.Output.Prelude
	opts.RunEntries = c.Output.RunModule
	return opts
}

// FrontendOptions converts the frontend section to parser options.
func (c *Config) FrontendOptions() jsfront.Options {
	return jsfront.Options{Extensions: c.Frontend.Extensions}
}

// Logger builds the logger described by the logging section.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	return slogutil.NewFormattedLogger(w, c.Logging.Format, slogutil.LevelFromString(c.Logging.Level))
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
