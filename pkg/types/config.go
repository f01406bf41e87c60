package types

import (
	"errors"
	"time"
)

// Config selects the store backend and the ambient settings of a catalog.
type Config struct {
	Backend  string        `json:"backend" yaml:"backend" mapstructure:"backend"`
	DataDir  string        `json:"data_dir" yaml:"data_dir" mapstructure:"data_dir"`
	PageSize int           `json:"page_size" yaml:"page_size" mapstructure:"page_size"` // records per cleanup page
	Timeout  time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`       // per-operation store timeout, 0 disables
	Log      LogConfig     `json:"log" yaml:"log" mapstructure:"log"`
	Tracing  TracingConfig `json:"tracing" yaml:"tracing" mapstructure:"tracing"`
	// MetricsFile receives Prometheus counters in textfile-collector
	// format on Close. Empty disables the export.
	MetricsFile string `json:"metrics_file" yaml:"metrics_file" mapstructure:"metrics_file"`
	// TemplateFiles are YAML template catalogs registered after the
	// built-in templates.
	TemplateFiles []string `json:"template_files,omitempty" yaml:"template_files,omitempty" mapstructure:"template_files"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level      string `json:"level" yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format     string `json:"format" yaml:"format" mapstructure:"format"` // text or json
	File       string `json:"file" yaml:"file" mapstructure:"file"`       // empty logs to stderr
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups" mapstructure:"max_backups"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Exporter    string `json:"exporter" yaml:"exporter" mapstructure:"exporter"` // stdout or otlp
	Endpoint    string `json:"endpoint" yaml:"endpoint" mapstructure:"endpoint"`
	ServiceName string `json:"service_name" yaml:"service_name" mapstructure:"service_name"`
}

// Supported backend names.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// DefaultPageSize is the cleanup page size used when Config.PageSize is 0.
const DefaultPageSize = 500

// Config validation errors.
var (
	ErrBackendEmpty     = errors.New("backend must not be empty")
	ErrBackendUnknown   = errors.New("unknown backend")
	ErrDataDirRequired  = errors.New("data dir is required for the sqlite backend")
	ErrPageSizeInvalid  = errors.New("page size must not be negative")
	ErrTimeoutInvalid   = errors.New("timeout must not be negative")
	ErrLogLevelUnknown  = errors.New("unknown log level")
	ErrLogFormatUnknown = errors.New("unknown log format")
	ErrExporterUnknown  = errors.New("unknown trace exporter")
)

// knownBackends lists the backends that Validate accepts.
var knownBackends = map[string]bool{
	BackendSQLite: true,
	BackendMemory: true,
}

var (
	knownLevels    = map[string]bool{"": true, "debug": true, "info": true, "warn": true, "error": true}
	knownFormats   = map[string]bool{"": true, "text": true, "json": true}
	knownExporters = map[string]bool{"": true, "stdout": true, "otlp": true}
)

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return ErrBackendUnknown
	}
	if c.Backend == BackendSQLite && c.DataDir == "" {
		return ErrDataDirRequired
	}
	if c.PageSize < 0 {
		return ErrPageSizeInvalid
	}
	if c.Timeout < 0 {
		return ErrTimeoutInvalid
	}
	if !knownLevels[c.Log.Level] {
		return ErrLogLevelUnknown
	}
	if !knownFormats[c.Log.Format] {
		return ErrLogFormatUnknown
	}
	if c.Tracing.Enabled && !knownExporters[c.Tracing.Exporter] {
		return ErrExporterUnknown
	}
	return nil
}

// EffectivePageSize returns PageSize or DefaultPageSize when unset.
func (c Config) EffectivePageSize() int {
	if c.PageSize > 0 {
		return c.PageSize
	}
	return DefaultPageSize
}
