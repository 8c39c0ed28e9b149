package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/kelomina/ADGHRuleTool/pkg/config"
	"github.com/kelomina/ADGHRuleTool/pkg/cycle"
	"github.com/kelomina/ADGHRuleTool/pkg/fetch"
	"github.com/kelomina/ADGHRuleTool/pkg/logger"
	"github.com/kelomina/ADGHRuleTool/pkg/metrics"
	"github.com/kelomina/ADGHRuleTool/pkg/rules"
	"github.com/kelomina/ADGHRuleTool/pkg/sources"
)

func main() {
	if err := newRootCommand(os.Stdin, os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries what every command shares.
type app struct {
	configPath string
	in         io.Reader
	out        io.Writer
	fs         afero.Fs
}

// pipeline is the wired fetch cycle for one configuration.
type pipeline struct {
	cfg       *config.Config
	log       *slog.Logger
	metrics   *metrics.Metrics
	scheduler *cycle.Scheduler
	closeLog  func() error
}

func newRootCommand(in io.Reader, out io.Writer) *cobra.Command {
	a := &app{in: in, out: out, fs: afero.NewOsFs()}

	root := &cobra.Command{
		Use:          "adghruletool",
		Short:        "Aggregates remote blocklists into a single rule file",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         a.runCommand,
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file path (TOML), defaults to $"+config.ConfigEnvVar)
	root.SetIn(in)
	root.SetOut(out)

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Fetch all sources every interval until interrupted",
			Args:  cobra.NoArgs,
			RunE:  a.runCommand,
		},
		&cobra.Command{
			Use:   "once",
			Short: "Run a single fetch cycle followed by cleanup",
			Args:  cobra.NoArgs,
			RunE:  a.onceCommand,
		},
		&cobra.Command{
			Use:   "clean <path>",
			Short: "Remove lines starting with the exclusion marker from a rule file",
			Args:  cobra.ExactArgs(1),
			RunE:  a.cleanCommand,
		},
		&cobra.Command{
			Use:   "inspect <path>",
			Short: "Report rule kinds, duplicates and malformed hosts of a rule file",
			Args:  cobra.ExactArgs(1),
			RunE:  a.inspectCommand,
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Args:  cobra.NoArgs,
			Run:   a.versionCommand,
		},
	)
	return root
}

// setup loads the configuration and installs the logger. The returned func
// closes the log file.
func (a *app) setup() (*config.Config, *slog.Logger, func() error, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		return nil, nil, nil, err
	}

	log, closeLog, err := logger.Setup(cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		slog.Error("failed to set up logging", "error", err)
		return nil, nil, nil, err
	}
	return cfg, log, closeLog, nil
}

// newPipeline loads the source list and wires fetcher, output and scheduler.
// The caller closes the log through the pipeline once it is done.
func (a *app) newPipeline() (p *pipeline, err error) {
	cfg, log, closeLog, err := a.setup()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = closeLog()
		}
	}()

	list, err := sources.Load(a.fs, cfg.Sources.File)
	if err != nil {
		log.Error("failed to load source list", "path", cfg.Sources.File, "error", err)
		return nil, err
	}
	log.Info("loaded source list", "path", cfg.Sources.File, "sources", len(list))

	m := metrics.New()
	fetcher, err := fetch.New(fetch.Options{
		Proxy:         cfg.Fetch.Proxy,
		Attempts:      cfg.Fetch.Attempts,
		RetryInterval: cfg.Fetch.RetryInterval,
		Timeout:       cfg.Fetch.Timeout,
		UserAgent:     cfg.Fetch.UserAgent,
		MaxBytes:      cfg.Fetch.MaxBytes,
		Fs:            a.fs,
		Log:           log,
		Metrics:       m,
	})
	if err != nil {
		log.Error("failed to create fetcher", "error", err)
		return nil, err
	}

	output := rules.NewOutput(a.fs, cfg.Output.Path, rules.OutputOptions{
		Sorted:              cfg.Output.Sorted,
		DedupeAcrossSources: cfg.Output.DedupeAcrossSources,
	})
	scheduler, err := cycle.New(cycle.Options{
		Sources:         list,
		Fetcher:         fetcher,
		Output:          output,
		Fs:              a.fs,
		ScratchDir:      cfg.Output.ScratchDir,
		Interval:        cfg.Schedule.Interval,
		ExclusionMarker: config.ExclusionMarker,
		Log:             log,
		Metrics:         m,
	})
	if err != nil {
		return nil, err
	}

	return &pipeline{cfg: cfg, log: log, metrics: m, scheduler: scheduler, closeLog: closeLog}, nil
}
