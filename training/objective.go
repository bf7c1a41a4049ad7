package training

import (
	"context"

	"gonum.org/v1/gonum/mat"

	"github.com/estateml/estateml/core/model"
	"github.com/estateml/estateml/pkg/errors"
	"github.com/estateml/estateml/sklearn/boosting"
	"github.com/estateml/estateml/sklearn/model_selection"
	"github.com/estateml/estateml/tuning"
)

// EarlyStopping holds out the most recent Fraction of every training window
// and stops boosting once Rounds iterations pass without improvement on it.
// Rounds <= 0 disables it.
type EarlyStopping struct {
	Rounds   int     `mapstructure:"rounds" json:"rounds"`
	Fraction float64 `mapstructure:"fraction" json:"fraction"`
}

// DefaultEarlyStopping returns 50 rounds on the last tenth of each window.
func DefaultEarlyStopping() EarlyStopping {
	return EarlyStopping{Rounds: 50, Fraction: 0.1}
}

// Validate checks the rounds and fraction ranges.
func (e EarlyStopping) Validate() error {
	if e.Rounds < 0 {
		return errors.NewValidationError("early_stopping.rounds", "must be >= 0", e.Rounds)
	}
	if e.Rounds > 0 && (e.Fraction <= 0 || e.Fraction >= 1) {
		return errors.NewValidationError("early_stopping.fraction", "must be in (0, 1)", e.Fraction)
	}
	return nil
}

// CVObjective scores one hyperparameter configuration by time-ordered
// cross-validation on X and the log1p-scaled targets y. Every fold's RMSE is
// reported to the trial, and a pruned trial stops before its remaining folds.
func CVObjective(space SearchSpace, base boosting.Params, X, y mat.Matrix, splitter model_selection.Splitter, es EarlyStopping) tuning.Objective {
	return func(ctx context.Context, trial *tuning.Trial) (float64, error) {
		suggested, err := space.Suggest(trial)
		if err != nil {
			return 0, err
		}
		params, err := base.With(suggested)
		if err != nil {
			return 0, err
		}

		fit := func(ctx context.Context, Xtr, ytr mat.Matrix) (model.Predictor, error) {
			return fitWithEarlyStopping(ctx, params, Xtr, ytr, es)
		}
		onFold := func(fold int, rmse float64) error {
			trial.Report(fold, rmse)
			if trial.ShouldPrune() {
				return tuning.ErrTrialPruned
			}
			return nil
		}

		result, err := model_selection.CrossValidate(ctx, fit, X, y, splitter, onFold)
		if err != nil {
			if errors.Is(err, tuning.ErrTrialPruned) {
				return 0, tuning.ErrTrialPruned
			}
			return 0, errors.Wrapf(err, "cross-validation of trial %d", trial.Number())
		}
		return result.Mean(), nil
	}
}

// fitWithEarlyStopping trains on the older part of X and validates on its
// tail. Windows too short to split are fitted in full.
func fitWithEarlyStopping(ctx context.Context, params boosting.Params, X, y mat.Matrix, es EarlyStopping) (*boosting.Regressor, error) {
	fitX, fitY, evalX, evalY, ok := holdOutTail(X, y, es)
	if !ok {
		reg := boosting.NewRegressor(params)
		if err := reg.FitContext(ctx, X, y); err != nil {
			return nil, err
		}
		return reg, nil
	}
	reg := boosting.NewRegressor(params,
		boosting.WithCallbacks(boosting.EarlyStopping(es.Rounds, boosting.EvalValid)))
	if err := reg.FitContext(ctx, fitX, fitY, boosting.WithEvalSet(evalX, evalY)); err != nil {
		return nil, err
	}
	return reg, nil
}

// holdOutTail splits the last es.Fraction rows off X and y. Rows are in time
// order, so the held-out rows are the most recent ones.
func holdOutTail(X, y mat.Matrix, es EarlyStopping) (fitX, fitY, evalX, evalY mat.Matrix, ok bool) {
	if es.Rounds <= 0 {
		return nil, nil, nil, nil, false
	}
	n, c := X.Dims()
	k := int(float64(n) * es.Fraction)
	if k < 1 || n-k < 2 {
		return nil, nil, nil, nil, false
	}
	Xd, yd := mat.DenseCopyOf(X), mat.DenseCopyOf(y)
	return Xd.Slice(0, n-k, 0, c), yd.Slice(0, n-k, 0, 1),
		Xd.Slice(n-k, n, 0, c), yd.Slice(n-k, n, 0, 1), true
}
