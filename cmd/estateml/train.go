package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/estateml/estateml/analysis"
	"github.com/estateml/estateml/dataset"
	"github.com/estateml/estateml/pkg/log"
	"github.com/estateml/estateml/training"
	"github.com/estateml/estateml/tuning"
)

type trainFlags struct {
	data        string
	metricsFile string
	trials      int
	timeout     time.Duration
	jobs        int
	noProgress  bool
}

func (a *app) trainCmd() *cobra.Command {
	var f trainFlags
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Search hyperparameters, fit the final model and record a versioned run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tc := a.cfg.TrainerConfig()
			if cmd.Flags().Changed("trials") {
				tc.NTrials = f.trials
			}
			if cmd.Flags().Changed("timeout") {
				tc.Timeout = f.timeout
			}
			if cmd.Flags().Changed("jobs") {
				tc.NJobs = f.jobs
			}
			return a.runTrain(cmd, tc, f)
		},
	}
	cmd.Flags().StringVar(&f.data, "data", "", "transactions CSV (default data.path)")
	cmd.Flags().StringVar(&f.metricsFile, "metrics-file", "", "write search metrics in Prometheus text format to this file")
	cmd.Flags().IntVar(&f.trials, "trials", 0, "number of search trials")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "search time budget")
	cmd.Flags().IntVar(&f.jobs, "jobs", 1, "parallel trial workers")
	cmd.Flags().BoolVar(&f.noProgress, "no-progress", false, "hide the progress bar")
	return cmd
}

func (a *app) runTrain(cmd *cobra.Command, tc training.Config, f trainFlags) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if f.metricsFile == "" {
		f.metricsFile = a.cfg.Metrics.TextfilePath
	}

	records, err := a.readRecords(f.data, true)
	if err != nil {
		return err
	}
	if w := a.cfg.Data.OutlierIQRWeight; w > 0 {
		if records, _, err = analysis.FilterOutliers(records, w, log.GetLoggerWithName("analysis")); err != nil {
			return err
		}
	}
	trainRecs, testRecs, err := dataset.ChronologicalSplit(records, a.cfg.Data.TestFraction)
	if err != nil {
		return err
	}

	builder, err := a.cfg.Builder(log.GetLoggerWithName("features"))
	if err != nil {
		return err
	}
	trainTable, _, err := builder.Build(trainRecs)
	if err != nil {
		return err
	}
	testTable, _, err := builder.Build(testRecs)
	if err != nil {
		return err
	}

	tracker, release, err := a.openTracker(ctx)
	if err != nil {
		return err
	}
	defer release()

	reg := prometheus.NewRegistry()
	studyMetrics, err := tuning.NewStudyMetrics(reg)
	if err != nil {
		return err
	}
	callbacks := []tuning.Callback{studyMetrics.Callback()}
	if !f.noProgress && tc.NTrials > 0 {
		bar := progressbar.NewOptions(tc.NTrials,
			progressbar.OptionSetWriter(cmd.ErrOrStderr()),
			progressbar.OptionSetDescription("searching hyperparameters"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(cmd.ErrOrStderr()) }),
		)
		callbacks = append(callbacks, func(*tuning.Study, tuning.FrozenTrial) {
			if err := bar.Add(1); err != nil {
				a.logger.Warn("progress bar update failed", err)
			}
		})
	}

	trainer, err := training.NewTrainer(tc,
		training.WithTracker(tracker),
		training.WithArtifactStore(a.store()),
		training.WithStudyCallbacks(callbacks...),
		training.WithLookupVersions(builder.Lookups().Versions()),
		training.WithLogger(log.GetLoggerWithName("training")),
	)
	if err != nil {
		return err
	}
	res, err := trainer.Train(ctx, trainTable, dataset.Targets(trainRecs), testTable, dataset.Targets(testRecs))
	if err != nil {
		return err
	}

	if f.metricsFile != "" {
		if err := tuning.WriteTextfile(f.metricsFile, reg); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	m := res.Metrics
	fmt.Fprintf(out, "Training summary (%s)\n", res.Run.Name)
	fmt.Fprintf(out, "  best trial:   #%d\n", res.BestTrial.Number)
	fmt.Fprintf(out, "  CV RMSE:      %.4f (log1p scale)\n", m.CVRMSE)
	fmt.Fprintf(out, "  train RMSE:   %.4f\n", m.TrainRMSE)
	fmt.Fprintf(out, "  test RMSE:    %.4f\n", m.TestRMSE)
	fmt.Fprintf(out, "  test MAE:     %.4f\n", m.TestMAE)
	fmt.Fprintf(out, "  test R2:      %.4f\n", m.TestR2)
	fmt.Fprintf(out, "  test MAPE:    %.2f%%\n", m.TestMAPE)
	fmt.Fprintf(out, "  artifact:     %s\n", res.ArtifactURI)
	return nil
}
