package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/estateml/estateml/analysis"
	"github.com/estateml/estateml/dataset"
	"github.com/estateml/estateml/pkg/log"
	"github.com/estateml/estateml/preprocessing"
)

type inspectReport struct {
	Rows         int                      `json:"rows"`
	Target       analysis.ColumnSummary   `json:"target"`
	Outliers     int                      `json:"outliers"`
	Bounds       analysis.OutlierBounds   `json:"outlier_bounds"`
	Correlations []analysis.Correlation   `json:"correlations"`
	Columns      []analysis.ColumnSummary `json:"columns"`
}

func (a *app) inspectCmd() *cobra.Command {
	var (
		data   string
		top    int
		weight float64
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Summarize the feature table, target outliers and correlations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			records, err := a.readRecords(data, true)
			if err != nil {
				return err
			}
			builder, err := a.cfg.Builder(log.GetLoggerWithName("features"))
			if err != nil {
				return err
			}
			table, _, err := builder.Build(records)
			if err != nil {
				return err
			}
			target := dataset.Targets(records)

			if !cmd.Flags().Changed("iqr-weight") && a.cfg.Data.OutlierIQRWeight > 0 {
				weight = a.cfg.Data.OutlierIQRWeight
			}
			outliers, bounds, err := analysis.DetectOutliers(target, weight)
			if err != nil {
				return err
			}
			corr, err := analysis.Correlations(table, target)
			if err != nil {
				return err
			}
			if top > 0 && len(corr) > top {
				corr = corr[:top]
			}
			cols, err := analysis.DescribeAll(table, top)
			if err != nil {
				return err
			}

			rep := inspectReport{
				Rows:         table.Len(),
				Target:       describeTarget(target),
				Outliers:     len(outliers),
				Bounds:       bounds,
				Correlations: corr,
				Columns:      cols,
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		},
	}
	cmd.Flags().StringVar(&data, "data", "", "transactions CSV (default data.path)")
	cmd.Flags().IntVar(&top, "top", 10, "number of correlations and category values to show")
	cmd.Flags().Float64Var(&weight, "iqr-weight", analysis.DefaultIQRWeight, "IQR multiplier for outlier fences")
	return cmd
}

func describeTarget(target []float64) analysis.ColumnSummary {
	t := preprocessing.NewTable(len(target))
	if err := t.SetNumeric(dataset.ColPricePerSqm, target); err != nil {
		return analysis.ColumnSummary{Name: dataset.ColPricePerSqm}
	}
	s, _ := analysis.Describe(t, dataset.ColPricePerSqm, 0)
	return s
}
