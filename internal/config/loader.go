package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// configName is the config file name without extension.
const configName = "metricplot"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix for metricplot settings.
const envPrefix = "METRICPLOT"

// envKeySeparator is the nested key separator in environment variable names.
const envKeySeparator = "_"

// searchPaths are the directories searched for metricplot.yaml.
var searchPaths = []string{".", "./config", "/etc/metricplot"}

// LoadConfig loads configuration from file, env vars, and defaults.
// If configPath is non-empty, it is used as the explicit config file path.
// Otherwise, the config file is searched in the working directory, ./config
// and /etc/metricplot. A missing config file is not an error; defaults are used.
func LoadConfig(configPath string) (*Config, error) {
	return LoadWith(viper.New(), configPath)
}

// LoadWith is LoadConfig over a caller-provided viper instance, so command
// flags bound to it take precedence over file and environment values.
func LoadWith(viperCfg *viper.Viper, configPath string) (*Config, error) {
	applyDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)

		for _, path := range searchPaths {
			viperCfg.AddConfigPath(path)
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
	viperCfg.SetDefault("eval.begin", 0)
	viperCfg.SetDefault("eval.end", 0)
	viperCfg.SetDefault("eval.step", DefaultEvalStep)
	viperCfg.SetDefault("eval.metrics", DefaultEvalMetrics)
	viperCfg.SetDefault("eval.part_size", 0)

	viperCfg.SetDefault("spill.backend", DefaultSpillBackend)
	viperCfg.SetDefault("spill.dir", "")
	viperCfg.SetDefault("spill.compress", false)
	viperCfg.SetDefault("spill.buffer_size", DefaultSpillBufferSize)
	viperCfg.SetDefault("spill.prefix", "")

	viperCfg.SetDefault("executor.workers", 0)
	viperCfg.SetDefault("executor.block_size", 0)

	viperCfg.SetDefault("output.dir", DefaultOutputDir)
	viperCfg.SetDefault("output.metrics_file", DefaultOutputMetricsFile)
	viperCfg.SetDefault("output.html", DefaultOutputHTML)
	viperCfg.SetDefault("output.theme", DefaultOutputTheme)
	viperCfg.SetDefault("output.telemetry", false)

	viperCfg.SetDefault("logging.level", DefaultLoggingLevel)
	viperCfg.SetDefault("logging.json", false)

	viperCfg.SetDefault("telemetry.otlp_endpoint", "")
	viperCfg.SetDefault("telemetry.otlp_insecure", false)
	viperCfg.SetDefault("telemetry.sample_ratio", DefaultSampleRatio)
}
