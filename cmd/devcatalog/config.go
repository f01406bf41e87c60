package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/devcatalog/internal/paths"
	"github.com/mesh-intelligence/devcatalog/pkg/types"
)

const envPrefix = "DEVCATALOG"

// configDefaults registers every key so DEVCATALOG_* variables can
// override it.
var configDefaults = map[string]any{
	"backend":              types.BackendSQLite,
	"data_dir":             "",
	"page_size":            types.DefaultPageSize,
	"timeout":              "0s",
	"log.level":            "warn",
	"log.format":           "text",
	"log.file":             "",
	"log.max_size_mb":      0,
	"log.max_backups":      0,
	"tracing.enabled":      false,
	"tracing.exporter":     "stdout",
	"tracing.endpoint":     "",
	"tracing.service_name": "devcatalog",
	"metrics_file":         "",
	"template_files":       []string{},
}

// loadConfig reads config.yaml from configDir, applies DEVCATALOG_*
// overrides and resolves the data directory. A missing config.yaml is not
// an error.
func loadConfig(configDir, dataDirFlag string) (types.Config, error) {
	v := viper.New()
	for k, val := range configDefaults {
		v.SetDefault(k, val)
	}
	v.SetConfigName(strings.TrimSuffix(paths.ConfigFileName, ".yaml"))
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return types.Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return types.Config{}, fmt.Errorf("decode config: %w", err)
	}
	dataDir, err := paths.ResolveDataDir(dataDirFlag, configDir, v.GetString("data_dir"))
	if err != nil {
		return types.Config{}, fmt.Errorf("resolve data dir: %w", err)
	}
	cfg.DataDir = dataDir
	return cfg, nil
}

// writeConfigIfMissing writes cfg to path unless the file exists. It
// reports whether it wrote.
func writeConfigIfMissing(path string, cfg types.Config) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("stat config: %w", err)
	}
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return false, fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, fmt.Errorf("write config: %w", err)
	}
	return true, nil
}

// decodeFile reads a YAML or JSON document into v.
func decodeFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return usageError{err}
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return usageError{fmt.Errorf("%s: %w", path, err)}
	}
	return nil
}
