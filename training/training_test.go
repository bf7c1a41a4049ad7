package training

import (
	"context"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/estateml/estateml/dataset"
	"github.com/estateml/estateml/pkg/errors"
	"github.com/estateml/estateml/pkg/log"
	"github.com/estateml/estateml/preprocessing"
	"github.com/estateml/estateml/sklearn/boosting"
	"github.com/estateml/estateml/tracking"
	"github.com/estateml/estateml/tuning"
)

func syntheticRecords(n int) []dataset.Record {
	rng := rand.New(rand.NewPCG(7, 11))
	areas := []struct {
		name string
		base float64
	}{
		{"Naif", 6000},
		{"Al Karama", 9000},
		{"Jumeirah First", 18000},
	}
	procedures := []string{"Sell", "Mortgage Registration", "Sell - Pre registration"}
	projects := []string{"Marina Gate", "Creek Views", ""}
	start := time.Date(2022, time.January, 1, 0, 0, 0, 0, time.UTC)

	out := make([]dataset.Record, n)
	for i := range out {
		a := areas[rng.IntN(len(areas))]
		size := 40 + rng.Float64()*160
		price := a.base * (1 + 0.002*size) * (1 + 0.05*rng.NormFloat64())
		regType := "Existing Properties"
		if rng.IntN(3) == 0 {
			regType = "Off-Plan Properties"
			price *= 0.9
		}
		out[i] = dataset.Record{
			TransactionGroup: "Sales",
			ProcedureName:    procedures[rng.IntN(len(procedures))],
			RegistrationType: regType,
			Date:             start.AddDate(0, 0, i),
			ProjectName:      projects[rng.IntN(len(projects))],
			MasterProject:    "Dubai Marina",
			Area:             size,
			AreaName:         a.name,
			PricePerSqm:      price,
		}
	}
	return out
}

type partitions struct {
	train, test               *preprocessing.Table
	trainTargets, testTargets []float64
}

func buildPartitions(t *testing.T, n int) partitions {
	t.Helper()
	trainRecs, testRecs, err := dataset.ChronologicalSplit(syntheticRecords(n), 0.2)
	require.NoError(t, err)

	b := preprocessing.NewBuilder(preprocessing.WithLogger(log.NewTestLogger(log.LevelError)))
	train, _, err := b.Build(trainRecs)
	require.NoError(t, err)
	test, _, err := b.Build(testRecs)
	require.NoError(t, err)
	return partitions{
		train:        train,
		test:         test,
		trainTargets: dataset.Targets(trainRecs),
		testTargets:  dataset.Targets(testRecs),
	}
}

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.NTrials = 3
	cfg.NStartupTrials = 2
	cfg.CVSplits = 2
	cfg.Timeout = 0
	cfg.Space = SearchSpace{
		Iterations:     []int{60, 80},
		LearningRate:   [2]float64{0.1, 0.3},
		Depth:          [2]int{2, 4},
		L2LeafReg:      [2]float64{0.01, 5},
		BorderCount:    []int{16, 32},
		RandomStrength: [2]float64{0.01, 1},
	}
	return cfg
}

func TestTrainRecordsVersionedRuns(t *testing.T) {
	data := buildPartitions(t, 240)
	tracker := tracking.NewMemoryTracker()
	store := NewFSStore(t.TempDir())
	logger := log.NewTestLogger(log.LevelInfo)

	var finished int
	trainer, err := NewTrainer(smallConfig(),
		WithTracker(tracker),
		WithArtifactStore(store),
		WithLogger(logger),
		WithLookupVersions(preprocessing.DefaultLookups().Versions()),
		WithStudyCallbacks(func(*tuning.Study, tuning.FrozenTrial) { finished++ }),
	)
	require.NoError(t, err)

	ctx := context.Background()
	res, err := trainer.Train(ctx, data.train, data.trainTargets, data.test, data.testTargets)
	require.NoError(t, err)

	assert.Equal(t, 3, finished)
	assert.Equal(t, "catboost_dubai_property_model_v1", res.Run.Name)
	assert.Equal(t, 1, res.Run.Version)
	assert.Equal(t, tracking.StatusFinished, res.Run.Status)
	assert.Equal(t, "v1", res.Run.Tags["model_version_tag"])
	assert.Equal(t, "catboost_dubai_property_model", res.Run.Tags["model_base_name"])
	assert.Equal(t, "2", res.Run.Params["cv_splits"])
	assert.Equal(t, "42", res.Run.Params["random_seed"])
	assert.Contains(t, res.Run.Params, "learning_rate")
	assert.Contains(t, res.Run.Params, "n_trials_completed")
	for _, key := range []string{"cv_rmse", "train_rmse", "test_rmse", "test_mae", "test_r2", "test_mape"} {
		v, ok := res.Run.Metrics[key]
		require.True(t, ok, key)
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), key)
	}
	assert.Equal(t, res.BestTrial.Value, res.Metrics.CVRMSE)
	// prices are in the thousands; a log-scale RMSE would be far below 1
	assert.Greater(t, res.Metrics.TestRMSE, 1.0)
	assert.Greater(t, res.Metrics.TestR2, 0.0)

	assert.FileExists(t, filepath.Join(res.ArtifactURI, ModelFile))
	assert.FileExists(t, filepath.Join(res.ArtifactURI, ManifestFile))
	assert.Equal(t, res.ArtifactURI, res.Run.ArtifactURI)
	assert.True(t, logger.ContainsMessage("training run recorded"))

	second, err := trainer.Train(ctx, data.train, data.trainTargets, data.test, data.testTargets)
	require.NoError(t, err)
	assert.Equal(t, "catboost_dubai_property_model_v2", second.Run.Name)

	runs, err := tracker.ListRuns(ctx, "CatBoost_Dubai_Real_Estate")
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestTrainIsDeterministic(t *testing.T) {
	data := buildPartitions(t, 200)
	run := func() *Result {
		trainer, err := NewTrainer(smallConfig(), WithLogger(log.NewTestLogger(log.LevelError)))
		require.NoError(t, err)
		res, err := trainer.Train(context.Background(), data.train, data.trainTargets, data.test, data.testTargets)
		require.NoError(t, err)
		return res
	}
	a, b := run(), run()
	assert.Equal(t, a.BestTrial.Params, b.BestTrial.Params)
	assert.Equal(t, a.Metrics, b.Metrics)
}

func TestTrainRejectsEmptyTestPartition(t *testing.T) {
	data := buildPartitions(t, 60)
	trainer, err := NewTrainer(smallConfig(), WithLogger(log.NewTestLogger(log.LevelError)))
	require.NoError(t, err)

	_, err = trainer.Train(context.Background(), data.train, data.trainTargets, preprocessing.NewTable(0), nil)
	require.Error(t, err)
	var valueErr *errors.ValueError
	assert.True(t, errors.As(err, &valueErr))
}

func TestTrainRejectsMismatchedTargets(t *testing.T) {
	data := buildPartitions(t, 60)
	trainer, err := NewTrainer(smallConfig(), WithLogger(log.NewTestLogger(log.LevelError)))
	require.NoError(t, err)

	_, err = trainer.Train(context.Background(), data.train, data.trainTargets[1:], data.test, data.testTargets)
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr))
}

func TestTrainRejectsInvalidTestTargets(t *testing.T) {
	data := buildPartitions(t, 60)
	tests := []struct {
		name  string
		value float64
	}{
		{"nan", math.NaN()},
		{"negative", -5},
		{"zero", 0},
		{"inf", math.Inf(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := tracking.NewMemoryTracker()
			store := NewFSStore(t.TempDir())
			trainer, err := NewTrainer(smallConfig(),
				WithTracker(tracker),
				WithArtifactStore(store),
				WithLogger(log.NewTestLogger(log.LevelError)),
			)
			require.NoError(t, err)

			bad := append([]float64(nil), data.testTargets...)
			bad[len(bad)-1] = tt.value
			res, err := trainer.Train(context.Background(), data.train, data.trainTargets, data.test, bad)
			require.Error(t, err)
			assert.Nil(t, res)
			var valErr *errors.ValidationError
			assert.True(t, errors.As(err, &valErr), "got %T", err)

			runs, err := tracker.ListRuns(context.Background(), smallConfig().Experiment)
			require.NoError(t, err)
			assert.Empty(t, runs)
			entries, err := os.ReadDir(store.Dir)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestEvaluateRejectsInvalidTestTargets(t *testing.T) {
	data := buildPartitions(t, 60)
	trainer, err := NewTrainer(smallConfig(), WithLogger(log.NewTestLogger(log.LevelError)))
	require.NoError(t, err)
	artifact, err := trainer.Fit(context.Background(), tuning.Params{"iterations": 20}, data.train, data.trainTargets)
	require.NoError(t, err)

	bad := append([]float64(nil), data.testTargets...)
	bad[0] = math.NaN()
	_, err = trainer.Evaluate(artifact, data.train, data.trainTargets, data.test, bad)
	var valErr *errors.ValidationError
	assert.True(t, errors.As(err, &valErr))
}

func TestFitFailureIsModelError(t *testing.T) {
	data := buildPartitions(t, 60)
	trainer, err := NewTrainer(smallConfig(), WithLogger(log.NewTestLogger(log.LevelError)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = trainer.Fit(ctx, tuning.Params{"iterations": 10}, data.train, data.trainTargets)
	require.Error(t, err)
	var modelErr *errors.ModelError
	assert.True(t, errors.As(err, &modelErr))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestFitRejectsUnknownHyperparameter(t *testing.T) {
	data := buildPartitions(t, 60)
	trainer, err := NewTrainer(smallConfig(), WithLogger(log.NewTestLogger(log.LevelError)))
	require.NoError(t, err)

	_, err = trainer.Fit(context.Background(), tuning.Params{"bagging_fraction": 0.5}, data.train, data.trainTargets)
	var valErr *errors.ValidationError
	assert.True(t, errors.As(err, &valErr))
}

func TestSearchReportsEveryFold(t *testing.T) {
	data := buildPartitions(t, 120)
	cfg := smallConfig()
	cfg.Pruning = false
	cfg.CVSplits = 3
	trainer, err := NewTrainer(cfg, WithLogger(log.NewTestLogger(log.LevelError)))
	require.NoError(t, err)

	study, err := trainer.Search(context.Background(), data.train, data.trainTargets)
	require.NoError(t, err)
	trials := study.Trials()
	require.Len(t, trials, 3)
	for _, tr := range trials {
		require.Equal(t, tuning.TrialComplete, tr.State)
		require.Len(t, tr.IntermediateValues, 3)
		var sum float64
		for _, v := range tr.IntermediateValues {
			sum += v
		}
		assert.InDelta(t, sum/3, tr.Value, 1e-9)
	}
}

func TestHoldOutTail(t *testing.T) {
	X := mat.NewDense(10, 2, nil)
	y := mat.NewDense(10, 1, nil)
	for i := 0; i < 10; i++ {
		X.Set(i, 0, float64(i))
		y.Set(i, 0, float64(i))
	}

	fitX, fitY, evalX, evalY, ok := holdOutTail(X, y, EarlyStopping{Rounds: 5, Fraction: 0.2})
	require.True(t, ok)
	fr, _ := fitX.Dims()
	er, _ := evalX.Dims()
	assert.Equal(t, 8, fr)
	assert.Equal(t, 2, er)
	// held-out rows are the most recent ones
	assert.Equal(t, 8.0, evalX.At(0, 0))
	assert.Equal(t, 9.0, evalY.At(1, 0))
	assert.Equal(t, 7.0, fitY.At(7, 0))

	_, _, _, _, ok = holdOutTail(X, y, EarlyStopping{Rounds: 0, Fraction: 0.2})
	assert.False(t, ok, "disabled")
	_, _, _, _, ok = holdOutTail(X, y, EarlyStopping{Rounds: 5, Fraction: 0.05})
	assert.False(t, ok, "window too short to hold anything out")
}

func TestFitWithEarlyStoppingStopsBeforeIterations(t *testing.T) {
	data := buildPartitions(t, 200)
	enc := preprocessing.NewCategoryEncoder()
	X, err := enc.FitTransform(data.train)
	require.NoError(t, err)
	y, err := logTargets(data.trainTargets)
	require.NoError(t, err)

	params := boosting.DefaultParams()
	params.Iterations = 500
	params.LearningRate = 0.5
	params.Depth = 3
	params.CategoricalFeatures = enc.CategoricalIndices()

	stopped, err := fitWithEarlyStopping(context.Background(), params, X, y, EarlyStopping{Rounds: 3, Fraction: 0.2})
	require.NoError(t, err)
	assert.Less(t, stopped.TreeCount(), 500)

	full, err := fitWithEarlyStopping(context.Background(), params, X, y, EarlyStopping{})
	require.NoError(t, err)
	assert.Equal(t, 500, full.TreeCount())
}

func TestArtifactRejectsNonFiniteFeatures(t *testing.T) {
	data := buildPartitions(t, 120)
	trainer, err := NewTrainer(smallConfig(), WithLogger(log.NewTestLogger(log.LevelError)))
	require.NoError(t, err)
	a, err := trainer.Fit(context.Background(), tuning.Params{"iterations": 20}, data.train, data.trainTargets)
	require.NoError(t, err)

	col, ok := data.test.Column(preprocessing.ColArea)
	require.True(t, ok)
	areas := col.Floats()
	areas[0] = math.Inf(1)
	bad, err := data.test.Select(data.test.Columns())
	require.NoError(t, err)
	require.NoError(t, bad.SetNumeric(preprocessing.ColArea, areas))

	_, err = a.Predict(bad)
	var numErr *errors.NumericalInstabilityError
	assert.True(t, errors.As(err, &numErr), "got %v", err)

	_, err = a.Predict(data.test)
	assert.NoError(t, err, "source table is left untouched")
}

func TestArtifactRoundTripAndColumnContract(t *testing.T) {
	data := buildPartitions(t, 120)
	trainer, err := NewTrainer(smallConfig(), WithLogger(log.NewTestLogger(log.LevelError)))
	require.NoError(t, err)

	a, err := trainer.Fit(context.Background(), tuning.Params{"iterations": 40, "depth": 3}, data.train, data.trainTargets)
	require.NoError(t, err)
	a.RunName = "catboost_dubai_property_model_v7"
	assert.Equal(t, preprocessing.FeatureColumns(), a.FeatureColumns)
	assert.Len(t, a.FeatureImportance, len(a.FeatureColumns))

	want, err := a.Predict(data.test)
	require.NoError(t, err)
	for _, v := range want {
		assert.Greater(t, v, 0.0)
	}

	store := NewFSStore(t.TempDir())
	uri, err := store.Save(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, store.Path(a.RunName), uri)

	loaded, err := store.Load(context.Background(), a.RunName)
	require.NoError(t, err)
	got, err := loaded.Predict(data.test)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, a.CategoricalIndices, loaded.CategoricalIndices)

	dst := filepath.Join(t.TempDir(), "export")
	require.NoError(t, store.Export(context.Background(), a.RunName, dst))
	assert.FileExists(t, filepath.Join(dst, ModelFile))
	manifest, err := os.ReadFile(filepath.Join(dst, ManifestFile))
	require.NoError(t, err)
	assert.Contains(t, string(manifest), `"target_transform": "log1p"`)

	reordered, err := data.test.Select(append([]string{preprocessing.ColArea}, a.FeatureColumns[:4]...))
	require.NoError(t, err)
	_, err = a.Predict(reordered)
	var orderErr *errors.FeatureOrderError
	assert.True(t, errors.As(err, &orderErr))
}

func TestLoadMissingArtifact(t *testing.T) {
	store := NewFSStore(t.TempDir())
	_, err := store.Load(context.Background(), "nope_v1")
	assert.Error(t, err)
	assert.Error(t, store.Export(context.Background(), "nope_v1", t.TempDir()))
}

func TestSearchSpaceSuggestStaysInBounds(t *testing.T) {
	space := DefaultSearchSpace()
	study := tuning.NewStudy("space", tuning.WithSampler(tuning.NewRandomSampler(3)),
		tuning.WithLogger(log.NewTestLogger(log.LevelError)))
	err := study.Optimize(context.Background(), func(_ context.Context, trial *tuning.Trial) (float64, error) {
		p, err := space.Suggest(trial)
		if err != nil {
			return 0, err
		}
		assert.Contains(t, []interface{}{500, 1000}, p["iterations"])
		assert.Contains(t, []interface{}{64, 128}, p["border_count"])
		lr := p["learning_rate"].(float64)
		assert.True(t, lr >= 0.01 && lr <= 0.06)
		d := p["depth"].(int)
		assert.True(t, d >= 5 && d <= 10)
		l2 := p["l2_leaf_reg"].(float64)
		assert.True(t, l2 >= 1e-2 && l2 <= 20)
		rs := p["random_strength"].(float64)
		assert.True(t, rs >= 1e-2 && rs <= 5)
		return lr, nil
	}, tuning.OptimizeOptions{NTrials: 20})
	require.NoError(t, err)
	assert.Equal(t, 20, study.CountByState()[tuning.TrialComplete])
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.CVSplits = 1
	_, err := NewTrainer(cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.ModelBaseName = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.EarlyStopping.Fraction = 1
	var valErr *errors.ValidationError
	assert.True(t, errors.As(cfg.Validate(), &valErr))
	cfg.EarlyStopping.Rounds = 0
	assert.NoError(t, cfg.Validate())
}
