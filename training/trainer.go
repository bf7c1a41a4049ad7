// Package training runs the hyperparameter search, fits the final model on
// the full training partition, evaluates it on the held-out partition and
// records the result as a versioned run with a saved artifact.
package training

import (
	"context"
	"fmt"
	"maps"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/estateml/estateml/metrics"
	"github.com/estateml/estateml/pkg/errors"
	"github.com/estateml/estateml/pkg/log"
	"github.com/estateml/estateml/preprocessing"
	"github.com/estateml/estateml/sklearn/boosting"
	"github.com/estateml/estateml/sklearn/model_selection"
	"github.com/estateml/estateml/tracking"
	"github.com/estateml/estateml/tuning"
)

// Config controls one training run.
type Config struct {
	Experiment    string
	ModelBaseName string

	NTrials        int
	Timeout        time.Duration
	NJobs          int
	CVSplits       int
	Seed           uint64
	NStartupTrials int
	Multivariate   bool

	// Pruning enables the median pruner over per-fold RMSE.
	Pruning             bool
	PrunerStartupTrials int
	PrunerWarmupSteps   int

	// EarlyStopping applies to the cross-validation fits only. The final
	// model is fitted on the whole training partition.
	EarlyStopping EarlyStopping

	Space      SearchSpace
	BaseParams boosting.Params
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Experiment:          "CatBoost_Dubai_Real_Estate",
		ModelBaseName:       "catboost_dubai_property_model",
		NTrials:             10,
		Timeout:             3 * time.Hour,
		NJobs:               1,
		CVSplits:            3,
		Seed:                42,
		NStartupTrials:      10,
		Multivariate:        true,
		Pruning:             true,
		PrunerStartupTrials: 5,
		PrunerWarmupSteps:   0,
		EarlyStopping:       DefaultEarlyStopping(),
		Space:               DefaultSearchSpace(),
		BaseParams:          boosting.DefaultParams(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case c.Experiment == "":
		return errors.NewValidationError("experiment", "must not be empty", c.Experiment)
	case c.ModelBaseName == "":
		return errors.NewValidationError("model_base_name", "must not be empty", c.ModelBaseName)
	case c.NTrials <= 0 && c.Timeout <= 0:
		return errors.NewValidationError("n_trials", "either n_trials or timeout is required", c.NTrials)
	case c.CVSplits < 2:
		return errors.NewValidationError("cv_splits", "must be >= 2", c.CVSplits)
	}
	if err := c.EarlyStopping.Validate(); err != nil {
		return err
	}
	return c.BaseParams.Validate()
}

// Metrics are the evaluation results of one run. CVRMSE is on the log1p
// scale; every other value is computed on prices.
type Metrics struct {
	CVRMSE    float64 `json:"cv_rmse"`
	TrainRMSE float64 `json:"train_rmse"`
	TestRMSE  float64 `json:"test_rmse"`
	TestMAE   float64 `json:"test_mae"`
	TestR2    float64 `json:"test_r2"`
	TestMAPE  float64 `json:"test_mape"`
}

// Map returns the metrics keyed by their run record names.
func (m Metrics) Map() map[string]float64 {
	return map[string]float64{
		"cv_rmse":    m.CVRMSE,
		"train_rmse": m.TrainRMSE,
		"test_rmse":  m.TestRMSE,
		"test_mae":   m.TestMAE,
		"test_r2":    m.TestR2,
		"test_mape":  m.TestMAPE,
	}
}

// Result is the outcome of Train.
type Result struct {
	Study       *tuning.Study
	BestTrial   tuning.FrozenTrial
	Artifact    *Artifact
	Metrics     Metrics
	Run         *tracking.Run
	ArtifactURI string
}

// Trainer wires the search, the final fit and run tracking together.
type Trainer struct {
	cfg            Config
	tracker        tracking.Tracker
	store          ArtifactStore
	logger         log.Logger
	studyCallbacks []tuning.Callback
	lookupVersions map[string]string
}

// Option configures a Trainer.
type Option func(*Trainer)

// WithTracker sets the run tracker. The default keeps runs in memory.
func WithTracker(t tracking.Tracker) Option { return func(tr *Trainer) { tr.tracker = t } }

// WithArtifactStore sets where artifacts are written. Without a store the
// artifact is only returned.
func WithArtifactStore(s ArtifactStore) Option { return func(tr *Trainer) { tr.store = s } }

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option { return func(tr *Trainer) { tr.logger = l } }

// WithStudyCallbacks adds callbacks invoked after every finished trial.
func WithStudyCallbacks(cbs ...tuning.Callback) Option {
	return func(tr *Trainer) { tr.studyCallbacks = append(tr.studyCallbacks, cbs...) }
}

// WithLookupVersions records the lookup table versions used to build the
// features.
func WithLookupVersions(v map[string]string) Option {
	return func(tr *Trainer) { tr.lookupVersions = maps.Clone(v) }
}

// NewTrainer creates a Trainer.
func NewTrainer(cfg Config, opts ...Option) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t := &Trainer{cfg: cfg}
	for _, opt := range opts {
		opt(t)
	}
	if t.tracker == nil {
		t.tracker = tracking.NewMemoryTracker()
	}
	if t.logger == nil {
		t.logger = log.GetLoggerWithName("training")
	}
	t.logger = t.logger.With(log.ExperimentKey, cfg.Experiment)
	return t, nil
}

// Config returns the trainer configuration.
func (t *Trainer) Config() Config { return t.cfg }

// Train runs the whole pipeline. An empty partition, a target that is not
// a finite positive price, or a failed final fit is fatal. A version lookup failure is not: the run becomes version 1.
func (t *Trainer) Train(ctx context.Context, trainTable *preprocessing.Table, trainTargets []float64, testTable *preprocessing.Table, testTargets []float64) (*Result, error) {
	if err := checkPartition("train", trainTable, trainTargets); err != nil {
		return nil, err
	}
	if err := checkPartition("test", testTable, testTargets); err != nil {
		return nil, err
	}

	study, err := t.Search(ctx, trainTable, trainTargets)
	if err != nil {
		return nil, err
	}
	best, err := study.BestTrial()
	if err != nil {
		return nil, errors.Wrap(err, "training: hyperparameter search")
	}

	artifact, err := t.Fit(ctx, best.Params, trainTable, trainTargets)
	if err != nil {
		return nil, err
	}
	m, err := t.Evaluate(artifact, trainTable, trainTargets, testTable, testTargets)
	if err != nil {
		return nil, err
	}
	m.CVRMSE = best.Value

	version := tracking.NextVersion(ctx, t.tracker, t.cfg.Experiment, t.cfg.ModelBaseName, t.logger)
	artifact.RunName = tracking.RunName(t.cfg.ModelBaseName, version)

	res := &Result{Study: study, BestTrial: best, Artifact: artifact, Metrics: m}
	if t.store != nil {
		if res.ArtifactURI, err = t.store.Save(ctx, artifact); err != nil {
			return nil, err
		}
	}

	run := tracking.NewRun(t.cfg.Experiment, t.cfg.ModelBaseName, version)
	run.ArtifactURI = res.ArtifactURI
	run.SetParams(best.Params)
	run.SetParam("random_seed", t.cfg.Seed)
	run.SetParam("n_trials", t.cfg.NTrials)
	run.SetParam("n_trials_completed", study.CountByState()[tuning.TrialComplete])
	run.SetParam("cv_splits", t.cfg.CVSplits)
	run.SetParam("target_transform", artifact.TargetTransform)
	for k, v := range m.Map() {
		run.SetMetric(k, v)
	}
	run.SetTag("model_base_name", t.cfg.ModelBaseName)
	run.SetTag("model_version_tag", fmt.Sprintf("v%d", version))
	for name, v := range artifact.LookupVersions {
		run.SetTag("lookup."+name, v)
	}
	run.Finish(nil)
	if err := t.tracker.PutRun(ctx, run); err != nil {
		return nil, errors.Wrapf(err, "training: record run %s", run.Name)
	}
	res.Run = run

	t.logger.Info("training run recorded",
		log.RunNameKey, run.Name,
		log.RunIDKey, run.ID,
		log.VersionKey, version,
		log.ArtifactKey, res.ArtifactURI,
		"test_rmse", m.TestRMSE,
		"test_r2", m.TestR2,
	)
	return res, nil
}

// Search runs the hyperparameter study on the training partition.
func (t *Trainer) Search(ctx context.Context, table *preprocessing.Table, targets []float64) (*tuning.Study, error) {
	if err := checkPartition("train", table, targets); err != nil {
		return nil, err
	}
	enc := preprocessing.NewCategoryEncoder()
	X, err := enc.FitTransform(table)
	if err != nil {
		return nil, err
	}
	y, err := logTargets(targets)
	if err != nil {
		return nil, err
	}

	base := t.baseParams(enc.CategoricalIndices())
	objective := CVObjective(t.cfg.Space, base, X, y, model_selection.NewTimeSeriesSplit(t.cfg.CVSplits), t.cfg.EarlyStopping)

	sampler := tuning.NewTPESampler(t.cfg.Seed,
		tuning.WithStartupTrials(t.cfg.NStartupTrials),
		tuning.WithMultivariate(t.cfg.Multivariate),
	)
	opts := []tuning.StudyOption{
		tuning.WithSampler(sampler),
		tuning.WithLogger(t.logger.With(log.StudyKey, t.cfg.ModelBaseName)),
		tuning.WithCallbacks(t.studyCallbacks...),
	}
	if t.cfg.Pruning {
		opts = append(opts, tuning.WithPruner(&tuning.MedianPruner{
			NStartupTrials: t.cfg.PrunerStartupTrials,
			NWarmupSteps:   t.cfg.PrunerWarmupSteps,
			IntervalSteps:  1,
		}))
	}
	study := tuning.NewStudy(t.cfg.ModelBaseName, opts...)

	t.logger.Info("searching hyperparameters",
		log.SamplesKey, table.Len(),
		log.FeaturesKey, len(table.Columns()),
		"cv_splits", t.cfg.CVSplits,
	)
	err = study.Optimize(ctx, objective, tuning.OptimizeOptions{
		NTrials: t.cfg.NTrials,
		Timeout: t.cfg.Timeout,
		NJobs:   t.cfg.NJobs,
	})
	return study, err
}

// Fit trains the final model with params on the full training partition.
func (t *Trainer) Fit(ctx context.Context, params tuning.Params, table *preprocessing.Table, targets []float64) (*Artifact, error) {
	if err := checkPartition("train", table, targets); err != nil {
		return nil, err
	}
	enc := preprocessing.NewCategoryEncoder()
	X, err := enc.FitTransform(table)
	if err != nil {
		return nil, err
	}
	y, err := logTargets(targets)
	if err != nil {
		return nil, err
	}
	p, err := t.baseParams(enc.CategoricalIndices()).With(params)
	if err != nil {
		return nil, err
	}

	reg := boosting.NewRegressor(p, boosting.WithLogger(t.logger))
	if err := reg.FitContext(ctx, X, y); err != nil {
		return nil, errors.NewModelError("training.Fit", "final fit failed", err)
	}
	importance, err := reg.FeatureImportance()
	if err != nil {
		return nil, errors.NewModelError("training.Fit", "feature importance", err)
	}

	return &Artifact{
		Model:              reg,
		Encoder:            enc,
		FeatureColumns:     table.Columns(),
		CategoricalIndices: enc.CategoricalIndices(),
		TargetTransform:    preprocessing.TargetTransformLog1p,
		LookupVersions:     maps.Clone(t.lookupVersions),
		FeatureImportance:  importance,
		Params:             p,
		TrainedAt:          time.Now().UTC(),
	}, nil
}

// Evaluate scores artifact on both partitions in price units.
func (t *Trainer) Evaluate(a *Artifact, trainTable *preprocessing.Table, trainTargets []float64, testTable *preprocessing.Table, testTargets []float64) (Metrics, error) {
	if err := checkPartition("test", testTable, testTargets); err != nil {
		return Metrics{}, err
	}
	trainPred, err := a.Predict(trainTable)
	if err != nil {
		return Metrics{}, err
	}
	trainRMSE, err := metrics.RMSE(vec(trainTargets), vec(trainPred))
	if err != nil {
		return Metrics{}, err
	}
	testPred, err := a.Predict(testTable)
	if err != nil {
		return Metrics{}, err
	}
	report, err := metrics.Regression(testTargets, testPred)
	if err != nil {
		return Metrics{}, err
	}
	return Metrics{
		TrainRMSE: trainRMSE,
		TestRMSE:  report.RMSE,
		TestMAE:   report.MAE,
		TestR2:    report.R2,
		TestMAPE:  report.MAPE,
	}, nil
}

func (t *Trainer) baseParams(catIdx []int) boosting.Params {
	p := t.cfg.BaseParams
	p.Seed = t.cfg.Seed
	p.CategoricalFeatures = catIdx
	p.Verbose = 0
	return p
}

func checkPartition(name string, table *preprocessing.Table, targets []float64) error {
	if table == nil || table.Len() == 0 {
		return errors.NewValueError("training."+name, name+" partition is empty")
	}
	if table.Len() != len(targets) {
		return errors.NewDimensionError("training."+name, table.Len(), len(targets), 0)
	}
	for i, v := range targets {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return errors.NewValidationError(fmt.Sprintf("%s target[%d]", name, i), "must be finite and > 0", v)
		}
	}
	return nil
}

func logTargets(targets []float64) (*mat.VecDense, error) {
	y, err := preprocessing.Log1p(targets)
	if err != nil {
		return nil, err
	}
	return mat.NewVecDense(len(y), y), nil
}

func vec(v []float64) *mat.VecDense {
	return mat.NewVecDense(len(v), v)
}
