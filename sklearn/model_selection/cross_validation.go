package model_selection

import (
	"context"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/estateml/estateml/core/model"
	"github.com/estateml/estateml/metrics"
	"github.com/estateml/estateml/pkg/errors"
)

// FitFunc builds and fits a fresh model on one training window.
type FitFunc func(ctx context.Context, X, y mat.Matrix) (model.Predictor, error)

// FoldHook is called after each fold with the fold index and its RMSE.
// A non-nil error stops cross-validation and is returned unchanged.
type FoldHook func(fold int, rmse float64) error

// CVResult stores cross-validation results
type CVResult struct {
	TestScores []float64
	FitTimes   []time.Duration
}

// Mean returns the mean test score.
func (r *CVResult) Mean() float64 {
	if len(r.TestScores) == 0 {
		return 0
	}
	return stat.Mean(r.TestScores, nil)
}

// Std returns the sample standard deviation of the test scores.
func (r *CVResult) Std() float64 {
	if len(r.TestScores) <= 1 {
		return 0
	}
	return stat.StdDev(r.TestScores, nil)
}

// CrossValidate fits one model per fold and scores it with RMSE on the
// fold's test window. Folds run in order so that onFold sees them in order.
func CrossValidate(ctx context.Context, fit FitFunc, X, y mat.Matrix, splitter Splitter, onFold FoldHook) (*CVResult, error) {
	rows, _ := X.Dims()
	if yRows, _ := y.Dims(); yRows != rows {
		return nil, errors.NewDimensionError("CrossValidate", rows, yRows, 0)
	}
	folds, err := splitter.Split(rows)
	if err != nil {
		return nil, err
	}

	result := &CVResult{
		TestScores: make([]float64, 0, len(folds)),
		FitTimes:   make([]time.Duration, 0, len(folds)),
	}
	for idx, fold := range folds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		trainX, trainY := extractSubset(X, y, fold.TrainIndices)
		testX, testY := extractSubset(X, y, fold.TestIndices)

		start := time.Now()
		m, err := fit(ctx, trainX, trainY)
		if err != nil {
			return nil, errors.Wrapf(err, "fold %d training failed", idx)
		}
		result.FitTimes = append(result.FitTimes, time.Since(start))

		pred, err := m.Predict(testX)
		if err != nil {
			return nil, errors.Wrapf(err, "fold %d prediction failed", idx)
		}
		score, err := metrics.RMSE(vec(testY), vec(pred))
		if err != nil {
			return nil, err
		}
		result.TestScores = append(result.TestScores, score)

		if onFold != nil {
			if err := onFold(idx, score); err != nil {
				return result, err
			}
		}
	}
	return result, nil
}

// extractSubset extracts subset of data based on indices
func extractSubset(X, y mat.Matrix, indices []int) (*mat.Dense, *mat.Dense) {
	_, xCols := X.Dims()
	xSubset := mat.NewDense(len(indices), xCols, nil)
	ySubset := mat.NewDense(len(indices), 1, nil)
	for i, idx := range indices {
		for j := 0; j < xCols; j++ {
			xSubset.Set(i, j, X.At(idx, j))
		}
		ySubset.Set(i, 0, y.At(idx, 0))
	}
	return xSubset, ySubset
}

func vec(m mat.Matrix) *mat.VecDense {
	rows, _ := m.Dims()
	return mat.NewVecDense(rows, mat.Col(nil, 0, m))
}
