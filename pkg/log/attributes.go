package log

// Model and Operation Context
const (
	// ModelNameKey identifies the type of model, e.g. "GBDTRegressor".
	ModelNameKey = "model.name"

	// OperationKey specifies the operation being performed ("fit", "predict", "build").
	OperationKey = "ml.operation"

	// ComponentKey identifies which package emitted the record.
	ComponentKey = "component"

	// PhaseKey indicates the pipeline phase ("training", "inference", ...).
	PhaseKey = "ml.phase"
)

// Data Shape
const (
	SamplesKey  = "data.samples"
	FeaturesKey = "data.features"
	ColumnKey   = "data.column"
	CountKey    = "data.count"
)

// Performance and metrics
const (
	DurationMsKey = "perf.duration_ms"
	IterationKey  = "training.iteration"
	LossKey       = "metrics.loss"
	RMSEKey       = "metrics.rmse"
	R2ScoreKey    = "metrics.r2_score"
)

// Hyperparameter search
const (
	StudyKey       = "tuning.study"
	TrialKey       = "tuning.trial"
	TrialStateKey  = "tuning.state"
	TrialValueKey  = "tuning.value"
	FoldKey        = "tuning.fold"
	HyperParamsKey = "model.hyperparams"
	RandomSeedKey  = "config.random_seed"
)

// Run tracking and artifacts
const (
	ExperimentKey    = "run.experiment"
	RunNameKey       = "run.name"
	RunIDKey         = "run.id"
	VersionKey       = "run.version"
	ArtifactKey      = "artifact.uri"
	LookupVersionKey = "lookup.version"
)

// Error context
const (
	ErrorKey      = "error"
	StacktraceKey = "stacktrace"
)

// Standard attribute values.
const (
	OperationFit       = "fit"
	OperationPredict   = "predict"
	OperationTransform = "transform"
	OperationBuild     = "build"
	OperationSearch    = "search"
	OperationEvaluate  = "evaluate"

	PhaseTraining      = "training"
	PhaseValidation    = "validation"
	PhaseTesting       = "testing"
	PhaseInference     = "inference"
	PhasePreprocessing = "preprocessing"
)
