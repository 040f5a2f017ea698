package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/metricplot/internal/config"
)

func TestLoadConfig_EmptyFile_UsesDefaults(t *testing.T) {
	t.Parallel()

	emptyPath := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(emptyPath, []byte(""), 0o600))

	cfg, err := config.LoadConfig(emptyPath)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, config.DefaultEvalStep, cfg.Eval.Step)
	assert.Equal(t, config.DefaultEvalMetrics, cfg.Eval.Metrics)
	assert.Zero(t, cfg.Eval.End)
	assert.Equal(t, config.DefaultSpillBackend, cfg.Spill.Backend)
	assert.Equal(t, config.DefaultSpillBufferSize, cfg.Spill.BufferSize)
	assert.Equal(t, config.DefaultOutputDir, cfg.Output.Dir)
	assert.Equal(t, config.DefaultOutputMetricsFile, cfg.Output.MetricsFile)
	assert.Equal(t, config.DefaultOutputHTML, cfg.Output.HTML)
	assert.Equal(t, config.DefaultOutputTheme, cfg.Output.Theme)
	assert.Equal(t, config.DefaultLoggingLevel, cfg.Logging.Level)
	assert.InDelta(t, config.DefaultSampleRatio, cfg.Telemetry.SampleRatio, 1e-12)
}

func TestLoadConfig_ValidFile_Unmarshals(t *testing.T) {
	t.Parallel()

	cfgPath := filepath.Join(t.TempDir(), "metricplot.yaml")
	content := `eval:
  begin: 10
  end: 200
  step: 25
  metrics:
    - MAE
    - PairAccuracy
  part_size: 5000
spill:
  backend: badger
  dir: /var/tmp/spill
  compress: true
  buffer_size: 4MB
executor:
  workers: 6
  block_size: 1024
output:
  dir: results
  metrics_file: curve.tsv
  html: false
  theme: light
  telemetry: true
logging:
  level: warn
  json: true
telemetry:
  otlp_endpoint: localhost:4317
  otlp_insecure: true
  sample_ratio: 0.25
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o600))

	cfg, err := config.LoadConfig(cfgPath)
	require.NoError(t, err)

	assert.Equal(t, config.EvalConfig{
		Begin: 10, End: 200, Step: 25,
		Metrics:  []string{"MAE", "PairAccuracy"},
		PartSize: 5000,
	}, cfg.Eval)
	assert.Equal(t, config.SpillConfig{
		Backend: "badger", Dir: "/var/tmp/spill", Compress: true, BufferSize: "4MB",
	}, cfg.Spill)
	assert.Equal(t, config.ExecutorConfig{Workers: 6, BlockSize: 1024}, cfg.Executor)
	assert.Equal(t, config.OutputConfig{
		Dir: "results", MetricsFile: "curve.tsv", HTML: false, Theme: "light", Telemetry: true,
	}, cfg.Output)
	assert.Equal(t, config.LoggingConfig{Level: "warn", JSON: true}, cfg.Logging)
	assert.Equal(t, "localhost:4317", cfg.Telemetry.OTLPEndpoint)
	assert.True(t, cfg.Telemetry.OTLPInsecure)
	assert.InDelta(t, 0.25, cfg.Telemetry.SampleRatio, 1e-12)
}

func TestLoadConfig_InvalidValues_ReturnsError(t *testing.T) {
	t.Parallel()

	cfgPath := filepath.Join(t.TempDir(), "metricplot.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("eval:\n  step: 0\n"), 0o600))

	_, err := config.LoadConfig(cfgPath)
	require.ErrorIs(t, err, config.ErrInvalidStep)
}

func TestLoadConfig_MalformedYAML_ReturnsError(t *testing.T) {
	t.Parallel()

	cfgPath := filepath.Join(t.TempDir(), "metricplot.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("eval: [unclosed\n"), 0o600))

	_, err := config.LoadConfig(cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

//nolint:paralleltest // t.Setenv.
func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "metricplot.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("eval:\n  step: 5\nspill:\n  backend: file\n"), 0o600))

	t.Setenv("METRICPLOT_EVAL_STEP", "7")
	t.Setenv("METRICPLOT_SPILL_BACKEND", "memory")

	cfg, err := config.LoadConfig(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Eval.Step)
	assert.Equal(t, "memory", cfg.Spill.Backend)
}

func TestLoadWith_OverridesWin(t *testing.T) {
	t.Parallel()

	cfgPath := filepath.Join(t.TempDir(), "metricplot.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("eval:\n  step: 5\n"), 0o600))

	v := viper.New()
	v.Set("eval.step", 3)

	cfg, err := config.LoadWith(v, cfgPath)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Eval.Step)
}
