package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/estateml/estateml/tracking"
)

func (a *app) runsCmd() *cobra.Command {
	var experiment string
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List the recorded training runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if experiment == "" {
				experiment = a.cfg.Training.Experiment
			}
			tracker, release, err := a.openTracker(ctx)
			if err != nil {
				return err
			}
			defer release()

			var runs []*tracking.Run
			if lister, ok := tracker.(tracking.RunLister); ok {
				if runs, err = lister.ListRuns(ctx, experiment); err != nil {
					return err
				}
			} else {
				latest, err := tracker.LatestRun(ctx, experiment, "")
				if err != nil {
					return err
				}
				runs = []*tracking.Run{latest}
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSTATUS\tCV_RMSE\tTEST_RMSE\tTEST_R2\tSTARTED")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%.4f\t%.2f\t%.4f\t%s\n",
					r.Name, r.Status,
					r.Metrics["cv_rmse"], r.Metrics["test_rmse"], r.Metrics["test_r2"],
					r.StartTime.Local().Format(time.DateTime),
				)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&experiment, "experiment", "", "experiment name (default training.experiment)")
	return cmd
}
