// Package commands implements the metricplot CLI commands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Sumatoshi-tech/metricplot/internal/config"
	"github.com/Sumatoshi-tech/metricplot/pkg/executor"
	"github.com/Sumatoshi-tech/metricplot/pkg/metric"
	"github.com/Sumatoshi-tech/metricplot/pkg/model"
	"github.com/Sumatoshi-tech/metricplot/pkg/observability"
	"github.com/Sumatoshi-tech/metricplot/pkg/plot"
	"github.com/Sumatoshi-tech/metricplot/pkg/plotpage"
	"github.com/Sumatoshi-tech/metricplot/pkg/pool"
	"github.com/Sumatoshi-tech/metricplot/pkg/report"
	"github.com/Sumatoshi-tech/metricplot/pkg/version"
)

// TelemetryFile is the Prometheus text snapshot written with --telemetry.
const TelemetryFile = "telemetry.prom"

// Sentinel errors for command arguments.
var (
	ErrMissingInput  = errors.New("--model and --pool are required")
	ErrUnknownFormat = errors.New("unknown output format")
)

// EvalCommand holds the flags of the eval command that are not config keys.
type EvalCommand struct {
	configPath string
	modelPath  string
	poolPath   string
	pairsPath  string
	quiet      bool
	noColor    bool

	viper *viper.Viper
}

// flagKeys maps eval flags onto config keys.
var flagKeys = map[string]string{
	"begin":          "eval.begin",
	"end":            "eval.end",
	"step":           "eval.step",
	"metrics":        "eval.metrics",
	"part-size":      "eval.part_size",
	"spill-backend":  "spill.backend",
	"spill-dir":      "spill.dir",
	"spill-compress": "spill.compress",
	"spill-buffer":   "spill.buffer_size",
	"spill-prefix":   "spill.prefix",
	"workers":        "executor.workers",
	"block-size":     "executor.block_size",
	"output":         "output.dir",
	"metrics-file":   "output.metrics_file",
	"html":           "output.html",
	"theme":          "output.theme",
	"telemetry":      "output.telemetry",
	"log-level":      "logging.level",
	"log-json":       "logging.json",
}

// NewEvalCommand creates the eval command.
func NewEvalCommand() *cobra.Command {
	ec := &EvalCommand{viper: viper.New()}

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate metrics along the model iterations",
		Long: `Evaluate metrics at every checkpoint of the iteration range [begin, end)
of a model over a dataset, then write the score table, raw statistics,
an event log, run metadata and a learning-curve page.`,
		Args: cobra.NoArgs,
		RunE: ec.run,
	}

	flags := cmd.Flags()
	flags.StringVarP(&ec.configPath, "config", "c", "", "Config file (default: metricplot.yaml in ., ./config, /etc/metricplot)")
	flags.StringVar(&ec.modelPath, "model", "", "Model file (YAML or JSON)")
	flags.StringVar(&ec.poolPath, "pool", "", "Dataset CSV with a target column")
	flags.StringVar(&ec.pairsPath, "pairs", "", "Pairs CSV with winner, loser and optional weight columns")
	flags.BoolVarP(&ec.quiet, "quiet", "q", false, "Do not print the score table")
	flags.BoolVar(&ec.noColor, "no-color", false, "Disable colored output")

	flags.Int("begin", 0, "First model iteration")
	flags.Int("end", 0, "End of the iteration range (0 = all trees)")
	flags.Int("step", config.DefaultEvalStep, "Iterations between checkpoints")
	flags.StringSliceP("metrics", "m", config.DefaultEvalMetrics, "Metric descriptions (example: RMSE,Accuracy:border=0.7)")
	flags.Int("part-size", 0, "Process the dataset in parts of this many documents (0 = whole)")
	flags.String("spill-backend", config.DefaultSpillBackend, "Snapshot store for non-additive metrics: file, memory, badger")
	flags.String("spill-dir", "", "Snapshot directory (default: fresh temp directory)")
	flags.Bool("spill-compress", false, "LZ4-compress spilled snapshots")
	flags.String("spill-buffer", config.DefaultSpillBufferSize, "Snapshot I/O buffer size (e.g., '64KB', '4MB')")
	flags.String("spill-prefix", "", "Snapshot file name prefix (default: random per run)")
	flags.Int("workers", 0, "Number of parallel workers (0 = use CPU count)")
	flags.Int("block-size", 0, "Documents per parallel task (0 = default)")
	flags.StringP("output", "o", config.DefaultOutputDir, "Report directory")
	flags.String("metrics-file", config.DefaultOutputMetricsFile, "Score table file name")
	flags.Bool("html", config.DefaultOutputHTML, "Write the learning-curve page")
	flags.String("theme", config.DefaultOutputTheme, "Learning-curve theme: dark, light")
	flags.Bool("telemetry", false, "Write a Prometheus snapshot of run metrics")
	flags.String("log-level", config.DefaultLoggingLevel, "Log level: debug, info, warn, error")
	flags.Bool("log-json", false, "Log as JSON")

	return cmd
}

func (ec *EvalCommand) run(cmd *cobra.Command, _ []string) error {
	if ec.modelPath == "" || ec.poolPath == "" {
		return ErrMissingInput
	}

	if ec.noColor {
		color.NoColor = true //nolint:reassign // intentional override of library global
	}

	cfg, err := ec.loadConfig(cmd)
	if err != nil {
		return err
	}

	providers, err := initObservability(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	defer func() {
		shutdownErr := providers.Shutdown(context.Background())
		if shutdownErr != nil {
			providers.Logger.Warn("observability shutdown failed", "error", shutdownErr)
		}
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	res, err := ec.evaluate(ctx, cfg, providers)
	if err != nil {
		return err
	}

	_, err = report.Save(ctx, cfg.Output.Dir, res, report.Options{
		MetricsFile: cfg.Output.MetricsFile,
		HTML:        cfg.Output.HTML,
		Theme:       plotpage.ParseTheme(cfg.Output.Theme),
		Title:       fmt.Sprintf("%s on %s", filepath.Base(ec.modelPath), filepath.Base(ec.poolPath)),
		Logger:      providers.Logger,
	})
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}

	if cfg.Output.Telemetry {
		err = providers.WriteTextfile(filepath.Join(cfg.Output.Dir, TelemetryFile))
		if err != nil {
			return err
		}
	}

	if ec.quiet {
		return nil
	}

	out := cmd.OutOrStdout()

	err = report.RenderTable(out, res)
	if err != nil {
		return err
	}

	report.PrintSummary(out, res.Summarize())

	return nil
}

// loadConfig binds the flags the user set to config keys, then loads the
// config so that flags override file and environment values.
func (ec *EvalCommand) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	for flag, key := range flagKeys {
		f := cmd.Flags().Lookup(flag)
		if f == nil || !f.Changed {
			continue
		}

		err := ec.viper.BindPFlag(key, f)
		if err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}

	return config.LoadWith(ec.viper, ec.configPath)
}

func initObservability(cfg *config.Config, logWriter io.Writer) (observability.Providers, error) {
	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	obsCfg.OTLPInsecure = cfg.Telemetry.OTLPInsecure
	obsCfg.SampleRatio = cfg.Telemetry.SampleRatio
	obsCfg.Prometheus = cfg.Output.Telemetry
	obsCfg.LogLevel = observability.ParseLevel(cfg.Logging.Level)
	obsCfg.LogJSON = cfg.Logging.JSON
	obsCfg.LogWriter = logWriter

	return observability.Init(obsCfg)
}

// evaluate runs the calculator over every dataset part and assembles the
// result. The calculator is closed, and its spilled snapshots removed, on
// every path.
func (ec *EvalCommand) evaluate(ctx context.Context, cfg *config.Config, providers observability.Providers) (res *report.Result, err error) {
	logger := providers.Logger

	ensemble, err := model.Load(ec.modelPath)
	if err != nil {
		return nil, err
	}

	parts, err := ec.loadParts(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	metrics, err := metric.ParseAll(cfg.Eval.Metrics)
	if err != nil {
		return nil, err
	}

	telemetry, err := observability.NewCalcMetrics(providers.Meter)
	if err != nil {
		return nil, err
	}

	spill := cfg.SpillOptions()
	spill.Logger = logger

	calc, err := plot.NewForModel(ensemble, metrics, cfg.Eval.Begin, cfg.Eval.End, cfg.Eval.Step, plot.Options{
		Spill:     spill,
		Executor:  executor.New(cfg.Executor.Workers).WithBlockSize(cfg.Executor.BlockSize),
		Logger:    logger,
		Tracer:    providers.Tracer,
		Telemetry: telemetry,
	})
	if err != nil {
		return nil, err
	}

	defer func() {
		err = errors.Join(err, calc.Close())
	}()

	logger.InfoContext(ctx, "eval: starting",
		"model", ec.modelPath,
		"trees", ensemble.TreeCount(),
		"first", calc.First(),
		"last", calc.Last(),
		"step", calc.Step(),
		"metrics", len(metrics),
		"parts", len(parts),
	)

	for _, part := range parts {
		err = calc.ProcessDataset(ctx, part)
		if err != nil {
			return nil, err
		}
	}

	scores, err := calc.Scores(ctx)
	if err != nil {
		return nil, err
	}

	return report.NewResult(calc.Metrics(), calc.Iterations(), scores, calc.PartialStats())
}

func (ec *EvalCommand) loadParts(ctx context.Context, cfg *config.Config, logger *slog.Logger) ([]*pool.Pool, error) {
	dataset, err := pool.LoadCSV(ec.poolPath)
	if err != nil {
		return nil, err
	}

	if ec.pairsPath != "" {
		err = dataset.LoadPairs(ec.pairsPath)
		if err != nil {
			return nil, err
		}
	}

	err = dataset.Validate()
	if err != nil {
		return nil, err
	}

	if cfg.Eval.PartSize == 0 {
		return []*pool.Pool{dataset}, nil
	}

	parts, dropped, err := dataset.Split(cfg.Eval.PartSize)
	if err != nil {
		return nil, err
	}

	if dropped > 0 {
		logger.WarnContext(ctx, "eval: pairs crossing part boundaries dropped",
			"dropped", dropped,
			"pairs", len(dataset.Pairs),
			"part_size", cfg.Eval.PartSize,
		)
	}

	return parts, nil
}
