package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/brettbedarf/layerfs/internal/util"
)

// Default configuration constants. See [Config] for field descriptions.
const (
	// DefaultMaxFileObjects bounds resident decoded file-object handles per
	// resolver context. Deep chains hold one handle per ancestor layer, so
	// the bound is sized for workloads enumerating many siblings over a
	// handful of shared ancestor chains.
	DefaultMaxFileObjects = 128

	// DefaultMaxFileSystems bounds resident opened file systems per
	// resolver context.
	DefaultMaxFileSystems = 64
)

// LogVerbosity values accepted in configuration files.
type LogVerbosity = string

const (
	TraceVerbosity LogVerbosity = "trace"
	DebugVerbosity LogVerbosity = "debug"
	InfoVerbosity  LogVerbosity = "info"
	WarnVerbosity  LogVerbosity = "warn"
	ErrorVerbosity LogVerbosity = "error"
)

// Config contains runtime configuration values for the resolution engine.
type Config struct {
	MaxFileObjects int           // Maximum resident file-object handles per context (Default 128)
	MaxFileSystems int           // Maximum resident file-system handles per context (Default 64)
	LogLvl         util.LogLevel // Log level derived from the configured verbosity (Default info)
}

// ConfigOverride uses pointer fields to distinguish between unset and zero
// values when loading partial configuration. See [Config] for field
// descriptions.
type ConfigOverride struct {
	MaxFileObjects *int          `yaml:"max_file_objects,omitempty" json:"max_file_objects,omitempty"`
	MaxFileSystems *int          `yaml:"max_file_systems,omitempty" json:"max_file_systems,omitempty"`
	LogVerbosity   *LogVerbosity `yaml:"log_verbosity,omitempty" json:"log_verbosity,omitempty"`
}

// NewDefaultConfig creates a new Config with all default values.
func NewDefaultConfig() *Config {
	return &Config{
		MaxFileObjects: DefaultMaxFileObjects,
		MaxFileSystems: DefaultMaxFileSystems,
		LogLvl:         util.InfoLevel,
	}
}

// NewConfig creates a Config from defaults with the override applied.
// A nil override yields the defaults.
func NewConfig(override *ConfigOverride) *Config {
	cfg := NewDefaultConfig()
	if override != nil {
		cfg.Merge(override)
	}
	return cfg
}

// Merge applies non-nil values from override onto this Config.
// This allows partial configuration updates while preserving existing values.
func (c *Config) Merge(override *ConfigOverride) {
	if override.MaxFileObjects != nil {
		c.MaxFileObjects = *override.MaxFileObjects
	}
	if override.MaxFileSystems != nil {
		c.MaxFileSystems = *override.MaxFileSystems
	}
	if override.LogVerbosity != nil {
		c.LogLvl = verbosityToLevel(*override.LogVerbosity)
	}
}

func verbosityToLevel(v LogVerbosity) util.LogLevel {
	switch v {
	case TraceVerbosity:
		return util.TraceLevel
	case DebugVerbosity:
		return util.DebugLevel
	case InfoVerbosity:
		return util.InfoLevel
	case WarnVerbosity:
		return util.WarnLevel
	case ErrorVerbosity:
		return util.ErrorLevel
	default:
		return util.InfoLevel
	}
}

// LoadConfigOverrideFile loads configuration overrides from a file without merging.
// Supports both YAML (.yaml, .yml) and JSON (.json) formats.
func LoadConfigOverrideFile(path string) (*ConfigOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var override ConfigOverride

	// Determine format by file extension
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown config file extension: %s", path)
	}

	return &override, nil
}

// NewConfigFromFile creates a new Config by merging file overrides with defaults.
// This is a convenience function that combines NewDefaultConfig, LoadConfigOverrideFile, and Merge.
func NewConfigFromFile(path string) (*Config, error) {
	cfg := NewDefaultConfig()
	override, err := LoadConfigOverrideFile(path)
	if err != nil {
		return nil, err
	}
	cfg.Merge(override)
	return cfg, nil
}
