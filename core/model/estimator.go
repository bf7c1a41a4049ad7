package model

import "gonum.org/v1/gonum/mat"

// Estimator は学習可能なモデルのインターフェース
type Estimator interface {
	// Fit はモデルを訓練データで学習させる
	Fit(X, y mat.Matrix) error
	// IsFitted は学習済みかどうかを返す
	IsFitted() bool
}

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	// Predict は入力データに対する予測を行う（n×1 の列ベクトルを返す）
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Scorer はスコアを計算できるモデルのインターフェース
type Scorer interface {
	// Score は決定係数 R² を返す
	Score(X, y mat.Matrix) (float64, error)
}

// ParameterGetter はハイパーパラメータを公開するモデルのインターフェース
type ParameterGetter interface {
	GetParams() map[string]interface{}
}

// Regressor は回帰モデルのインターフェース
type Regressor interface {
	Estimator
	Predictor
	Scorer
	ParameterGetter
}
