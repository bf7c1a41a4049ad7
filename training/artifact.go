package training

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/estateml/estateml/pkg/errors"
	"github.com/estateml/estateml/preprocessing"
	"github.com/estateml/estateml/sklearn/boosting"
)

// Artifact is everything needed to turn a feature table back into prices:
// the fitted model, the fitted category vocabularies and the column contract
// the model was trained on.
type Artifact struct {
	RunName            string
	Model              *boosting.Regressor
	Encoder            *preprocessing.CategoryEncoder
	FeatureColumns     []string
	CategoricalIndices []int
	TargetTransform    string
	LookupVersions     map[string]string
	FeatureImportance  []float64
	Params             boosting.Params
	TrainedAt          time.Time
}

// Predict scores table and returns prices in native units.
func (a *Artifact) Predict(table *preprocessing.Table) ([]float64, error) {
	if a.Model == nil || a.Encoder == nil {
		return nil, errors.NewNotFittedError("Artifact", "Predict")
	}
	if err := preprocessing.AssertSameColumns("predict", a.FeatureColumns, table.Columns()); err != nil {
		return nil, err
	}
	X, err := a.Encoder.Transform(table)
	if err != nil {
		return nil, err
	}
	return a.PredictMatrix(X)
}

// PredictMatrix scores an already encoded matrix. NaN or Inf cells are
// rejected: every feature the builder produces is finite.
func (a *Artifact) PredictMatrix(X mat.Matrix) ([]float64, error) {
	rows, cols := X.Dims()
	if err := errors.CheckMatrix("Artifact.PredictMatrix", X, rows, cols); err != nil {
		return nil, err
	}
	pred, err := a.Model.PredictValues(X)
	if err != nil {
		return nil, err
	}
	switch a.TargetTransform {
	case preprocessing.TargetTransformLog1p:
		return preprocessing.Expm1(pred), nil
	case "":
		return pred, nil
	default:
		return nil, errors.NewValidationError("target_transform", "unsupported transform", a.TargetTransform)
	}
}

// Importance is one feature's share of the total split gain.
type Importance struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"importance"`
}

// RankedImportance returns feature importances sorted from most to least
// important.
func (a *Artifact) RankedImportance() []Importance {
	out := make([]Importance, 0, len(a.FeatureImportance))
	for i, v := range a.FeatureImportance {
		if i < len(a.FeatureColumns) {
			out = append(out, Importance{Feature: a.FeatureColumns[i], Value: v})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value > out[j].Value })
	return out
}

// Manifest is the human-readable description written next to the model.
type Manifest struct {
	RunName            string            `json:"run_name"`
	FeatureColumns     []string          `json:"feature_columns"`
	CategoricalIndices []int             `json:"categorical_indices"`
	Cardinality        map[string]int    `json:"cardinality"`
	TargetTransform    string            `json:"target_transform"`
	LookupVersions     map[string]string `json:"lookup_versions"`
	FeatureImportance  []Importance      `json:"feature_importance"`
	Params             boosting.Params   `json:"params"`
	Trees              int               `json:"trees"`
	TrainedAt          time.Time         `json:"trained_at"`
}

// Manifest describes the artifact.
func (a *Artifact) Manifest() Manifest {
	m := Manifest{
		RunName:            a.RunName,
		FeatureColumns:     a.FeatureColumns,
		CategoricalIndices: a.CategoricalIndices,
		TargetTransform:    a.TargetTransform,
		LookupVersions:     a.LookupVersions,
		FeatureImportance:  a.RankedImportance(),
		Params:             a.Params,
		TrainedAt:          a.TrainedAt,
	}
	if a.Encoder != nil {
		m.Cardinality = a.Encoder.Cardinality()
	}
	if a.Model != nil {
		m.Trees = a.Model.TreeCount()
	}
	return m
}
