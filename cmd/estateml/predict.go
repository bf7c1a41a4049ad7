package main

import (
	"context"
	"encoding/json"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/estateml/estateml/dataset"
	"github.com/estateml/estateml/inference"
	"github.com/estateml/estateml/pkg/errors"
	"github.com/estateml/estateml/pkg/log"
	"github.com/estateml/estateml/tracking"
	"github.com/estateml/estateml/training"
)

type predictFlags struct {
	model    string
	run      string
	input    string
	date     string
	group    string
	proc     string
	regType  string
	project  string
	master   string
	areaName string
	area     float64
}

func (a *app) predictCmd() *cobra.Command {
	var f predictFlags
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Quote the price per sqm and total price of a property",
		Example: `  estateml predict --area 85 --area-name "Marsa Dubai" --procedure Sell \
    --reg-type "Off-Plan Properties" --project "Marina Gate"
  estateml predict --run catboost_dubai_property_model_v3 --input listings.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runPredict(cmd, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.model, "model", "", "path to a model.gob artifact")
	fl.StringVar(&f.run, "run", "", "run name whose artifact to use (default: latest run)")
	fl.StringVar(&f.input, "input", "", "CSV of transactions to quote instead of the flags below")
	fl.StringVar(&f.date, "date", "", "transaction date (default today)")
	fl.StringVar(&f.group, "group", "Sales", "transaction group (trans_group_en)")
	fl.StringVar(&f.proc, "procedure", "Sell", "procedure name (procedure_name_en)")
	fl.StringVar(&f.regType, "reg-type", "Existing Properties", "registration type (reg_type_en)")
	fl.StringVar(&f.project, "project", "", "project name, blank if unknown")
	fl.StringVar(&f.master, "master", "", "master project (developer) name, blank if unknown")
	fl.StringVar(&f.areaName, "area-name", "", "DLD area name (area_name_en)")
	fl.Float64Var(&f.area, "area", 0, "property area in sqm")
	return cmd
}

func (a *app) runPredict(cmd *cobra.Command, f predictFlags) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	path, err := a.resolveArtifact(ctx, f.model, f.run)
	if err != nil {
		return err
	}
	builder, err := a.cfg.Builder(log.GetLoggerWithName("features"))
	if err != nil {
		return err
	}
	p, err := inference.Load(path, inference.WithBuilder(builder), inference.WithLogger(log.GetLoggerWithName("inference")))
	if err != nil {
		return err
	}

	var records []dataset.Record
	if f.input != "" {
		if records, err = a.readRecords(f.input, false); err != nil {
			return err
		}
	} else {
		r := dataset.Record{
			TransactionGroup: f.group,
			ProcedureName:    f.proc,
			RegistrationType: f.regType,
			ProjectName:      f.project,
			MasterProject:    f.master,
			Area:             f.area,
			AreaName:         f.areaName,
		}
		if f.date != "" {
			if r.Date, err = dataset.ParseDate(f.date); err != nil {
				return err
			}
		}
		records = []dataset.Record{r}
	}

	quotes, err := p.PredictBatch(ctx, records)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if len(quotes) == 1 {
		return enc.Encode(quotes[0])
	}
	return enc.Encode(quotes)
}

// resolveArtifact picks the model file: an explicit path, the artifact of a
// named run, or the artifact of the latest run of the experiment.
func (a *app) resolveArtifact(ctx context.Context, model, run string) (string, error) {
	if model != "" {
		return model, nil
	}
	if run != "" {
		return filepath.Join(a.store().Path(run), training.ModelFile), nil
	}
	tracker, release, err := a.openTracker(ctx)
	if err != nil {
		return "", err
	}
	defer release()
	latest, err := tracker.LatestRun(ctx, a.cfg.Training.Experiment, tracking.VersionPrefix(a.cfg.Training.ModelBaseName))
	if err != nil {
		return "", errors.Wrap(err, "no model given and no recorded run to fall back to")
	}
	if latest.ArtifactURI == "" {
		return filepath.Join(a.store().Path(latest.Name), training.ModelFile), nil
	}
	return filepath.Join(latest.ArtifactURI, training.ModelFile), nil
}
