package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// configName is the config file name without extension.
const configName = ".treelint"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix for treelint settings.
const envPrefix = "TREELINT"

// envKeySeparator is the nested key separator in environment variable names.
const envKeySeparator = "_"

// LoadConfig loads configuration from file, env vars, and defaults.
// If configPath is non-empty, it is used as the explicit config file path.
// Otherwise, the config file is searched in CWD and $HOME.
// Missing config file is not an error; defaults are used.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	applyDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	var cfg Config

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return &cfg, nil
}

func applyDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("rules.enabled", []string{})
	viperCfg.SetDefault("rules.disabled", []string{})
	viperCfg.SetDefault("rules.paths", []string{})

	viperCfg.SetDefault("run.workers", DefaultRunWorkers)
	viperCfg.SetDefault("run.rule_timeout", DefaultRunRuleTimeout)
	viperCfg.SetDefault("run.max_file_size", DefaultRunMaxFileSize)
	viperCfg.SetDefault("run.exclude", []string{})
	viperCfg.SetDefault("run.include_vendored", DefaultRunIncludeVendored)

	viperCfg.SetDefault("output.format", DefaultOutputFormat)
	viperCfg.SetDefault("output.color", DefaultOutputColor)
	viperCfg.SetDefault("output.summary", DefaultOutputSummary)
	viperCfg.SetDefault("output.max_severity_exit", DefaultOutputMaxSeverityExit)

	viperCfg.SetDefault("cache.enabled", DefaultCacheEnabled)
	viperCfg.SetDefault("cache.dir", DefaultCacheDir)

	viperCfg.SetDefault("observability.enabled", DefaultObservabilityEnabled)
	viperCfg.SetDefault("observability.service_name", DefaultObservabilityServiceName)
}
