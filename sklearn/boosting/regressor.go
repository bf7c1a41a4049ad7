package boosting

import (
	"context"

	"gonum.org/v1/gonum/mat"

	"github.com/estateml/estateml/core/model"
	"github.com/estateml/estateml/core/parallel"
	"github.com/estateml/estateml/metrics"
	"github.com/estateml/estateml/pkg/errors"
	"github.com/estateml/estateml/pkg/log"
)

// Regressor is a gradient-boosted decision tree regressor with native
// support for integer-coded categorical columns.
//
// Exported fields are gob-encoded by model.SaveModel.
type Regressor struct {
	model.BaseEstimator

	Params Params
	Model  *Ensemble

	logger    log.Logger
	callbacks []Callback
}

var _ model.Regressor = (*Regressor)(nil)

// Option configures a Regressor.
type Option func(*Regressor)

// WithLogger sets the logger used during training.
func WithLogger(l log.Logger) Option {
	return func(r *Regressor) { r.logger = l }
}

// WithCallbacks adds callbacks that run after every boosting iteration.
func WithCallbacks(cbs ...Callback) Option {
	return func(r *Regressor) { r.callbacks = append(r.callbacks, cbs...) }
}

// NewRegressor creates an unfitted regressor.
func NewRegressor(params Params, opts ...Option) *Regressor {
	r := &Regressor{Params: params}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FitOption configures a single FitContext call.
type FitOption func(*fitConfig)

type fitConfig struct {
	evalX, evalY mat.Matrix
}

// WithEvalSet scores X, y after every iteration under the "valid" key.
func WithEvalSet(X, y mat.Matrix) FitOption {
	return func(c *fitConfig) {
		c.evalX = X
		c.evalY = y
	}
}

// Fit trains the model. y must be a single column.
func (r *Regressor) Fit(X, y mat.Matrix) error {
	return r.FitContext(context.Background(), X, y)
}

// FitContext trains the model and stops with ctx's error when ctx is done.
func (r *Regressor) FitContext(ctx context.Context, X, y mat.Matrix, opts ...FitOption) (err error) {
	defer errors.Recover(&err, "boosting.Fit")

	if err := r.Params.Validate(); err != nil {
		return err
	}
	rows, cols := X.Dims()
	yRows, yCols := y.Dims()
	if rows == 0 {
		return errors.ErrEmptyData
	}
	if rows != yRows {
		return errors.NewDimensionError("Fit", rows, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewDimensionError("Fit", 1, yCols, 1)
	}
	for _, j := range r.Params.CategoricalFeatures {
		if j < 0 || j >= cols {
			return errors.NewValidationError("cat_features", "index out of range", j)
		}
	}
	target := mat.Col(nil, 0, y)
	if err := errors.CheckNumericalStability("boosting.Fit", target, 0); err != nil {
		return err
	}

	cfg := fitConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := r.logger
	if logger == nil {
		logger = log.GetLoggerWithName("boosting.regressor")
	}
	logger.Debug("training regressor",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, rows,
		log.FeaturesKey, cols,
		log.HyperParamsKey, r.Params.Map(),
	)

	callbacks := r.callbacks
	if r.Params.Verbose > 0 {
		callbacks = append(callbacks[:len(callbacks):len(callbacks)], LogEvaluation(logger, r.Params.Verbose))
	}
	t := newTrainer(r.Params, logger, callbacks)
	if cfg.evalX != nil && cfg.evalY != nil {
		er, ec := cfg.evalX.Dims()
		if ec != cols {
			return errors.NewDimensionError("Fit", cols, ec, 1)
		}
		if ey, _ := cfg.evalY.Dims(); ey != er {
			return errors.NewDimensionError("Fit", er, ey, 0)
		}
		t.eval = &evalSet{rows: denseRows(cfg.evalX), y: mat.Col(nil, 0, cfg.evalY)}
	}

	ens, err := t.train(ctx, denseRows(X), target, cols)
	if err != nil {
		return err
	}
	r.Model = ens
	r.SetFitted()
	return nil
}

// Predict returns an n×1 column of predictions.
func (r *Regressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	preds, err := r.PredictValues(X)
	if err != nil {
		return nil, err
	}
	return mat.NewVecDense(len(preds), preds), nil
}

// PredictValues is Predict returning a plain slice.
func (r *Regressor) PredictValues(X mat.Matrix) ([]float64, error) {
	if !r.IsFitted() || r.Model == nil {
		return nil, errors.NewNotFittedError("boosting.Regressor", "Predict")
	}
	rows, cols := X.Dims()
	if cols != r.Model.NumFeatures {
		return nil, errors.NewDimensionError("Predict", r.Model.NumFeatures, cols, 1)
	}
	out := make([]float64, rows)
	parallel.ParallelizeWithThreshold(rows, 1000, func(start, end int) {
		row := make([]float64, cols)
		for i := start; i < end; i++ {
			mat.Row(row, i, X)
			out[i] = r.Model.PredictRow(row)
		}
	})
	return out, nil
}

// Score returns the coefficient of determination R^2 of the prediction
func (r *Regressor) Score(X, y mat.Matrix) (float64, error) {
	preds, err := r.PredictValues(X)
	if err != nil {
		return 0, err
	}
	return metrics.R2Score(mat.NewVecDense(len(preds), mat.Col(nil, 0, y)), mat.NewVecDense(len(preds), preds))
}

// GetParams returns the parameters of the regressor
func (r *Regressor) GetParams() map[string]interface{} {
	params := r.Params.Map()
	params["random_seed"] = r.Params.Seed
	params["cat_features"] = append([]int(nil), r.Params.CategoricalFeatures...)
	return params
}

// FeatureImportance returns the gain-based importance of every feature,
// normalised to sum to 100.
func (r *Regressor) FeatureImportance() ([]float64, error) {
	if !r.IsFitted() || r.Model == nil {
		return nil, errors.NewNotFittedError("boosting.Regressor", "FeatureImportance")
	}
	return r.Model.FeatureImportance(), nil
}

// TreeCount returns the number of trees in the fitted ensemble.
func (r *Regressor) TreeCount() int {
	if r.Model == nil {
		return 0
	}
	return len(r.Model.Trees)
}

func denseRows(X mat.Matrix) [][]float64 {
	rows, cols := X.Dims()
	out := make([][]float64, rows)
	for i := range out {
		out[i] = mat.Row(make([]float64, cols), i, X)
	}
	return out
}
