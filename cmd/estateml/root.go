package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/estateml/estateml/config"
	"github.com/estateml/estateml/dataset"
	"github.com/estateml/estateml/pkg/errors"
	"github.com/estateml/estateml/pkg/log"
	"github.com/estateml/estateml/tracking"
	"github.com/estateml/estateml/training"
)

var version = "dev"

// app carries what every subcommand needs once the root has loaded the
// configuration.
type app struct {
	cfgFile   string
	envFile   string
	logLevel  string
	logFormat string

	cfg    *config.Config
	out    io.Writer
	logger log.Logger
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}
	root := &cobra.Command{
		Use:   "estateml",
		Short: "Dubai real-estate price per sqm model",
		Long: `estateml builds features from Dubai Land Department transactions, searches
hyperparameters for a gradient-boosted price model, records versioned runs
and quotes prices for new properties.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.init,
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "YAML config file")
	flags.StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	flags.StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&a.logFormat, "log-format", "", "log format (json, console)")

	root.AddCommand(
		a.trainCmd(),
		a.predictCmd(),
		a.featuresCmd(),
		a.inspectCmd(),
		a.runsCmd(),
		a.exportCmd(),
		versionCmd(),
	)
	return root
}

func (a *app) init(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "version" {
		return nil
	}
	cfg, err := config.Load(a.cfgFile, a.envFile)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	if err := log.SetupLogger(cfg.Log.Level, cfg.Log.Format); err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = log.GetLoggerWithName("cli")
	return nil
}

// openTracker returns the configured tracker and a function releasing it.
func (a *app) openTracker(ctx context.Context) (tracking.Tracker, func(), error) {
	switch a.cfg.Tracking.Backend {
	case "memory":
		return tracking.NewMemoryTracker(), func() {}, nil
	default:
		t, err := tracking.NewSQLiteTracker(ctx, a.cfg.Tracking.DBPath, log.GetLoggerWithName("tracking"))
		if err != nil {
			return nil, nil, err
		}
		return t, func() {
			if err := t.Close(); err != nil {
				a.logger.Warn("closing tracker failed", err)
			}
		}, nil
	}
}

func (a *app) store() *training.FSStore {
	return training.NewFSStore(a.cfg.Artifacts.Dir)
}

func (a *app) readRecords(path string, forTraining bool) ([]dataset.Record, error) {
	if path == "" {
		path = a.cfg.Data.Path
	}
	if path == "" {
		return nil, errors.NewValidationError("data", "no input file, pass --data or set data.path", path)
	}
	opts := []dataset.ReadOption{dataset.WithReadLogger(log.GetLoggerWithName("dataset"))}
	if forTraining {
		opts = append(opts, dataset.ForTraining())
	}
	if a.cfg.Data.Strict {
		opts = append(opts, dataset.Strict())
	}
	records, stats, err := dataset.ReadCSVFile(path, opts...)
	if err != nil {
		return nil, err
	}
	a.logger.Info("read transactions",
		log.SamplesKey, len(records),
		"skipped", stats.Skipped,
		"path", path,
	)
	return records, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := cmd.OutOrStdout().Write([]byte("estateml " + version + "\n"))
			return err
		},
	}
}
