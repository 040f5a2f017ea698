// Package config loads metricplot settings from defaults, an optional YAML
// file and METRICPLOT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/dustin/go-humanize"

	"github.com/Sumatoshi-tech/metricplot/pkg/plotpage"
	"github.com/Sumatoshi-tech/metricplot/pkg/spillstore"
)

// Config is the top-level configuration struct for metricplot.
// Field tags use mapstructure for viper unmarshalling.
type Config struct {
	Eval      EvalConfig      `mapstructure:"eval"`
	Spill     SpillConfig     `mapstructure:"spill"`
	Executor  ExecutorConfig  `mapstructure:"executor"`
	Output    OutputConfig    `mapstructure:"output"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// EvalConfig selects the iteration range and the metrics.
type EvalConfig struct {
	Begin   int      `mapstructure:"begin"`
	End     int      `mapstructure:"end"`
	Step    int      `mapstructure:"step"`
	Metrics []string `mapstructure:"metrics"`
	// PartSize splits the dataset into parts of this many documents; 0 keeps it whole.
	PartSize int `mapstructure:"part_size"`
}

// SpillConfig configures the snapshot store used by non-additive metrics.
type SpillConfig struct {
	Backend    string `mapstructure:"backend"`
	Dir        string `mapstructure:"dir"`
	Compress   bool   `mapstructure:"compress"`
	BufferSize string `mapstructure:"buffer_size"`
	Prefix     string `mapstructure:"prefix"`
}

// ExecutorConfig holds the data-parallel loop knobs.
type ExecutorConfig struct {
	Workers   int `mapstructure:"workers"`
	BlockSize int `mapstructure:"block_size"`
}

// OutputConfig controls the report files.
type OutputConfig struct {
	Dir         string `mapstructure:"dir"`
	MetricsFile string `mapstructure:"metrics_file"`
	HTML        bool   `mapstructure:"html"`
	Theme       string `mapstructure:"theme"`
	// Telemetry writes a Prometheus text snapshot of the run's metrics.
	Telemetry bool `mapstructure:"telemetry"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool    `mapstructure:"otlp_insecure"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

// Default values.
const (
	DefaultEvalStep          = 1
	DefaultSpillBackend      = spillstore.BackendFile
	DefaultSpillBufferSize   = "1MB"
	DefaultOutputDir         = "metricplot-out"
	DefaultOutputMetricsFile = "eval_metrics.tsv"
	DefaultOutputHTML        = true
	DefaultOutputTheme       = string(plotpage.ThemeDark)
	DefaultLoggingLevel      = "info"
	DefaultSampleRatio       = 1.0
)

// DefaultEvalMetrics is the metric list used when none is configured.
var DefaultEvalMetrics = []string{"RMSE"}

// Sentinel errors for configuration validation.
var (
	// ErrInvalidStep indicates the step is not positive.
	ErrInvalidStep = errors.New("eval.step must be positive")
	// ErrInvalidRange indicates a negative iteration bound.
	ErrInvalidRange = errors.New("eval.begin and eval.end must be non-negative")
	// ErrNoMetrics indicates an empty metric list.
	ErrNoMetrics = errors.New("eval.metrics must not be empty")
	// ErrInvalidPartSize indicates the part size is negative.
	ErrInvalidPartSize = errors.New("eval.part_size must be non-negative")
	// ErrInvalidBackend indicates an unsupported spill backend.
	ErrInvalidBackend = errors.New("spill.backend must be file, memory or badger")
	// ErrInvalidBufferSize indicates an unparsable buffer size.
	ErrInvalidBufferSize = errors.New("spill.buffer_size must be a byte size")
	// ErrInvalidWorkers indicates the workers value is negative.
	ErrInvalidWorkers = errors.New("executor.workers must be non-negative")
	// ErrInvalidBlockSize indicates the block size is negative.
	ErrInvalidBlockSize = errors.New("executor.block_size must be non-negative")
	// ErrInvalidTheme indicates an unknown page theme.
	ErrInvalidTheme = errors.New("output.theme must be dark or light")
	// ErrInvalidLogLevel indicates an unknown log level.
	ErrInvalidLogLevel = errors.New("logging.level must be debug, info, warn or error")
	// ErrInvalidSampleRatio indicates the sample ratio is out of range.
	ErrInvalidSampleRatio = errors.New("telemetry.sample_ratio must be between 0 and 1")
)

var (
	backends  = []string{spillstore.BackendFile, spillstore.BackendMemory, spillstore.BackendBadger}
	themes    = []string{string(plotpage.ThemeDark), string(plotpage.ThemeLight)}
	logLevels = []string{"debug", "info", "warn", "error"}
)

// Validate checks that all config values are within acceptable ranges.
func (c *Config) Validate() error {
	evalErr := c.validateEval()
	if evalErr != nil {
		return evalErr
	}

	runtimeErr := c.validateRuntime()
	if runtimeErr != nil {
		return runtimeErr
	}

	return c.validateOutput()
}

func (c *Config) validateEval() error {
	if c.Eval.Step <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidStep, c.Eval.Step)
	}

	// An end at or before begin is a single checkpoint at begin.
	if c.Eval.Begin < 0 || c.Eval.End < 0 {
		return fmt.Errorf("%w: [%d, %d)", ErrInvalidRange, c.Eval.Begin, c.Eval.End)
	}

	if len(c.Eval.Metrics) == 0 {
		return ErrNoMetrics
	}

	if c.Eval.PartSize < 0 {
		return ErrInvalidPartSize
	}

	return nil
}

func (c *Config) validateRuntime() error {
	if c.Spill.Backend != "" && !slices.Contains(backends, c.Spill.Backend) {
		return fmt.Errorf("%w: got %q", ErrInvalidBackend, c.Spill.Backend)
	}

	if c.Spill.BufferSize != "" {
		_, err := humanize.ParseBytes(c.Spill.BufferSize)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidBufferSize, err)
		}
	}

	if c.Executor.Workers < 0 {
		return ErrInvalidWorkers
	}

	if c.Executor.BlockSize < 0 {
		return ErrInvalidBlockSize
	}

	return nil
}

func (c *Config) validateOutput() error {
	if c.Output.Theme != "" && !slices.Contains(themes, c.Output.Theme) {
		return fmt.Errorf("%w: got %q", ErrInvalidTheme, c.Output.Theme)
	}

	if c.Logging.Level != "" && !slices.Contains(logLevels, c.Logging.Level) {
		return fmt.Errorf("%w: got %q", ErrInvalidLogLevel, c.Logging.Level)
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("%w: got %g", ErrInvalidSampleRatio, c.Telemetry.SampleRatio)
	}

	return nil
}

// SpillOptions converts the spill section into store options.
func (c *Config) SpillOptions() spillstore.Options {
	return spillstore.Options{
		Backend:    c.Spill.Backend,
		Dir:        c.Spill.Dir,
		Compress:   c.Spill.Compress,
		BufferSize: c.Spill.BufferSize,
		Prefix:     c.Spill.Prefix,
	}
}
