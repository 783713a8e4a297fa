package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete phyloflow configuration.
// Tool locations and environments are explicit configuration rather than
// ambient shell state, so the stage runner never depends on a pre-activated
// environment.
type Config struct {
	Tools     ToolsConfig     `mapstructure:"tools"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Filter    FilterConfig    `mapstructure:"filter"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ToolConfig describes how to invoke one external tool.
type ToolConfig struct {
	// Path is the binary name or absolute path (default: the bare tool name,
	// resolved on PATH).
	Path string `mapstructure:"path"`
	// Env holds additional KEY=VALUE environment entries for the tool,
	// e.g. a conda environment's bin directory prepended to PATH.
	Env []string `mapstructure:"env"`
}

// ToolsConfig holds the invocation configuration for each wrapped tool.
type ToolsConfig struct {
	Busco  ToolConfig `mapstructure:"busco"`
	Mafft  ToolConfig `mapstructure:"mafft"`
	Trimal ToolConfig `mapstructure:"trimal"`
	Iqtree ToolConfig `mapstructure:"iqtree"`
}

// ExecutionConfig controls how stage units are executed
type ExecutionConfig struct {
	// Parallel runs independent units (loci) concurrently where the stage
	// allows it (alignment, trimming, model selection).
	Parallel bool `mapstructure:"parallel"`
	// UnitTimeoutMinutes kills a unit's subprocess after this many minutes.
	// 0 disables the timeout; a hung tool then blocks the run indefinitely.
	UnitTimeoutMinutes int `mapstructure:"unit_timeout_minutes"`
	// KeepIntermediates keeps the per-species working copies BUSCO leaves
	// behind. When false they are removed after ortholog detection succeeds.
	KeepIntermediates bool `mapstructure:"keep_intermediates"`
	// Bootstrap is the number of ultrafast bootstrap replicates for the final
	// tree inference (IQ-TREE requires at least 1000; 0 disables bootstrap).
	Bootstrap int `mapstructure:"bootstrap"`
}

// FilterConfig controls the ortholog filtering stage
type FilterConfig struct {
	// KeepFailed retains below-threshold loci under Filtered_BUSCOs/Failed.
	// They are never consumed by later stages; retention exists so a rerun
	// with a lower threshold can be sanity-checked against them.
	KeepFailed bool `mapstructure:"keep_failed"`
}

// LoggingConfig controls the run log
type LoggingConfig struct {
	// Enabled controls whether the JSON run log is written (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// MaxSizeMB rotates phyloflow.log once it grows past this size.
	// 0 disables rotation and the log grows without bound (default: 0,
	// which preserves the append-across-reruns history).
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of rotated log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups"`
	// Compress gzips rotated log files (default: false)
	Compress bool `mapstructure:"compress"`
}

// UnitTimeout returns the per-unit timeout as a time.Duration (0 means disabled)
func (c *ExecutionConfig) UnitTimeout() time.Duration {
	return time.Duration(c.UnitTimeoutMinutes) * time.Minute
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Tools: ToolsConfig{
			Busco:  ToolConfig{Path: "busco"},
			Mafft:  ToolConfig{Path: "mafft"},
			Trimal: ToolConfig{Path: "trimal"},
			Iqtree: ToolConfig{Path: "iqtree2"},
		},
		Execution: ExecutionConfig{
			Parallel:           true,
			UnitTimeoutMinutes: 0,    // No timeout by default
			KeepIntermediates:  true, // Deletion is opt-in
			Bootstrap:          1000,
		},
		Filter: FilterConfig{
			KeepFailed: true,
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  0, // Rotation is opt-in
			MaxBackups: 3,
			Compress:   false,
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Tool defaults
	viper.SetDefault("tools.busco.path", defaults.Tools.Busco.Path)
	viper.SetDefault("tools.busco.env", defaults.Tools.Busco.Env)
	viper.SetDefault("tools.mafft.path", defaults.Tools.Mafft.Path)
	viper.SetDefault("tools.mafft.env", defaults.Tools.Mafft.Env)
	viper.SetDefault("tools.trimal.path", defaults.Tools.Trimal.Path)
	viper.SetDefault("tools.trimal.env", defaults.Tools.Trimal.Env)
	viper.SetDefault("tools.iqtree.path", defaults.Tools.Iqtree.Path)
	viper.SetDefault("tools.iqtree.env", defaults.Tools.Iqtree.Env)

	// Execution defaults
	viper.SetDefault("execution.parallel", defaults.Execution.Parallel)
	viper.SetDefault("execution.unit_timeout_minutes", defaults.Execution.UnitTimeoutMinutes)
	viper.SetDefault("execution.keep_intermediates", defaults.Execution.KeepIntermediates)
	viper.SetDefault("execution.bootstrap", defaults.Execution.Bootstrap)

	// Filter defaults
	viper.SetDefault("filter.keep_failed", defaults.Filter.KeepFailed)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	viper.SetDefault("logging.compress", defaults.Logging.Compress)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "phyloflow")
	}
	// Fall back to ~/.config/phyloflow
	home, err := os.UserHomeDir()
	if err != nil {
		return ".phyloflow"
	}
	return filepath.Join(home, ".config", "phyloflow")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ValidModes returns the list of valid analysis modes
func ValidModes() []string {
	return []string{"genome", "proteins"}
}

// IsValidMode checks if the given analysis mode is valid
func IsValidMode(mode string) bool {
	for _, valid := range ValidModes() {
		if mode == valid {
			return true
		}
	}
	return false
}
