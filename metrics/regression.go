// Package metrics は回帰モデルの評価指標を提供します。
package metrics

import (
	"math"

	"github.com/estateml/estateml/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// checkPair は入力ベクトルの長さを検証し、生のスライスを返す
func checkPair(op string, yTrue, yPred *mat.VecDense) ([]float64, []float64, error) {
	n := yTrue.Len()
	if n == 0 {
		return nil, nil, errors.NewValueError(op, "empty vector")
	}
	if yPred.Len() != n {
		return nil, nil, errors.NewDimensionError(op, n, yPred.Len(), 0)
	}
	return rawVec(yTrue), rawVec(yPred), nil
}

func rawVec(v *mat.VecDense) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}

// MSE は平均二乗誤差（Mean Squared Error）を計算する
func MSE(yTrue, yPred *mat.VecDense) (float64, error) {
	t, p, err := checkPair("MSE", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	// MSE = ||yTrue - yPred||² / n
	d := floats.Distance(t, p, 2)
	return d * d / float64(len(t)), nil
}

// RMSE は平方根平均二乗誤差（Root Mean Squared Error）を計算する
func RMSE(yTrue, yPred *mat.VecDense) (float64, error) {
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// MAE は平均絶対誤差（Mean Absolute Error）を計算する
func MAE(yTrue, yPred *mat.VecDense) (float64, error) {
	t, p, err := checkPair("MAE", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return floats.Distance(t, p, 1) / float64(len(t)), nil
}

// R2Score は決定係数（R²）を計算する
//
// yTrue に分散が無い場合、予測が完全一致なら 1、そうでなければ 0 を返す。
func R2Score(yTrue, yPred *mat.VecDense) (float64, error) {
	t, p, err := checkPair("R2Score", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	mean := stat.Mean(t, nil)
	var tss, rss float64
	for i := range t {
		tss += (t[i] - mean) * (t[i] - mean)
		rss += (t[i] - p[i]) * (t[i] - p[i])
	}

	if tss == 0 {
		if rss == 0 {
			return 1, nil
		}
		return 0, nil
	}
	return 1 - rss/tss, nil
}

// MAPE は平均絶対パーセンテージ誤差を計算する（単位: %）。yTrue が 0 の行は除外する。
func MAPE(yTrue, yPred *mat.VecDense) (float64, error) {
	t, p, err := checkPair("MAPE", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	var sum float64
	validCount := 0
	for i := range t {
		if t[i] != 0 {
			sum += math.Abs(t[i]-p[i]) / math.Abs(t[i])
			validCount++
		}
	}
	if validCount == 0 {
		return 0, errors.NewValueError("MAPE", "all yTrue values are zero")
	}
	return sum / float64(validCount) * 100, nil
}

// RegressionReport は回帰評価指標の一式
type RegressionReport struct {
	RMSE float64 `json:"rmse"`
	MAE  float64 `json:"mae"`
	R2   float64 `json:"r2"`
	MAPE float64 `json:"mape"`
}

// Regression は RMSE、MAE、R²、MAPE をまとめて計算する
//
// MAPE は yTrue がすべて 0 の場合 NaN になる。他の指標の計算は妨げない。
func Regression(yTrue, yPred []float64) (RegressionReport, error) {
	if len(yTrue) == 0 {
		return RegressionReport{}, errors.NewValueError("Regression", "empty vector")
	}
	if len(yPred) != len(yTrue) {
		return RegressionReport{}, errors.NewDimensionError("Regression", len(yTrue), len(yPred), 0)
	}

	t := mat.NewVecDense(len(yTrue), yTrue)
	p := mat.NewVecDense(len(yPred), yPred)

	var report RegressionReport
	var err error
	if report.RMSE, err = RMSE(t, p); err != nil {
		return report, err
	}
	if report.MAE, err = MAE(t, p); err != nil {
		return report, err
	}
	if report.R2, err = R2Score(t, p); err != nil {
		return report, err
	}
	if report.MAPE, err = MAPE(t, p); err != nil {
		report.MAPE = math.NaN()
	}
	return report, nil
}
