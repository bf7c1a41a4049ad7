// Package estateml estimates the price per square meter of Dubai property
// transactions with a gradient-boosted regression model.
//
// The module is organized as a batch pipeline:
//
//   - dataset: reads Dubai Land Department transaction exports and splits
//     them chronologically
//   - preprocessing: builds the fixed feature table (procedure and district
//     grouping, calendar features, missingness flags) and encodes categories
//   - sklearn/boosting: the gradient-boosted tree regressor
//   - sklearn/model_selection: time-ordered cross-validation
//   - tuning: the TPE hyperparameter search with median pruning
//   - training: search, final fit, evaluation and artifact persistence
//   - tracking: versioned run records in memory or SQLite
//   - inference: price quotes from a saved artifact
//   - analysis: outlier, correlation and column diagnostics
//   - config: YAML, .env and environment configuration
//   - metrics: regression metrics
//   - core/model, core/parallel: estimator interfaces, gob persistence and
//     row-parallel helpers
//   - pkg/errors, pkg/log: typed errors on cockroachdb/errors and structured
//     logging on zerolog
//
// # Quick Start
//
// Train on a transactions export and quote a property:
//
//	estateml train --data transactions.csv
//	estateml predict --area 85 --area-name "Marsa Dubai" --procedure Sell \
//	    --reg-type "Off-Plan Properties" --project "Marina Gate"
//
// The same pipeline from Go:
//
//	records, _, err := dataset.ReadCSVFile("transactions.csv", dataset.ForTraining())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	trainRecs, testRecs, err := dataset.ChronologicalSplit(records, 0.2)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	b := preprocessing.NewBuilder()
//	trainTable, _, _ := b.Build(trainRecs)
//	testTable, _, _ := b.Build(testRecs)
//
//	trainer, err := training.NewTrainer(training.DefaultConfig(),
//	    training.WithArtifactStore(training.NewFSStore("artifacts")))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res, err := trainer.Train(ctx, trainTable, dataset.Targets(trainRecs),
//	    testTable, dataset.Targets(testRecs))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.Run.Name, res.Metrics.TestRMSE)
//
// Targets are modeled on the log1p scale; every reported price and every
// metric except cv_rmse is in native units.
package estateml
