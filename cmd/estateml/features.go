package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/estateml/estateml/pkg/errors"
	"github.com/estateml/estateml/pkg/log"
)

func (a *app) featuresCmd() *cobra.Command {
	var data, out string
	cmd := &cobra.Command{
		Use:   "features",
		Short: "Build the feature table and write it as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			records, err := a.readRecords(data, false)
			if err != nil {
				return err
			}
			builder, err := a.cfg.Builder(log.GetLoggerWithName("features"))
			if err != nil {
				return err
			}
			table, stats, err := builder.Build(records)
			if err != nil {
				return err
			}
			a.logger.Info("built feature table",
				log.SamplesKey, stats.Rows,
				"unmapped_procedures", stats.UnmappedProcedures,
				"unmapped_areas", stats.UnmappedAreas,
			)

			if out == "" || out == "-" {
				return table.WriteCSV(cmd.OutOrStdout())
			}
			f, err := os.Create(out)
			if err != nil {
				return errors.Wrapf(err, "create %s", out)
			}
			if err := table.WriteCSV(f); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		},
	}
	cmd.Flags().StringVar(&data, "data", "", "transactions CSV (default data.path)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output CSV (default stdout)")
	return cmd
}
