package boosting

import (
	"fmt"
	"math"

	"github.com/estateml/estateml/pkg/errors"
)

// Params are the hyperparameters of the gradient-boosted regressor.
type Params struct {
	Iterations     int     `json:"iterations"`       // number of trees
	LearningRate   float64 `json:"learning_rate"`    // shrinkage applied to each tree
	Depth          int     `json:"depth"`            // maximum tree depth
	L2LeafReg      float64 `json:"l2_leaf_reg"`      // L2 regularization of leaf values
	BorderCount    int     `json:"border_count"`     // number of quantile borders per numeric feature
	RandomStrength float64 `json:"random_strength"`  // scale of the noise added to split scores
	MinDataInLeaf  int     `json:"min_data_in_leaf"` // minimum samples in a leaf
	Seed           uint64  `json:"random_seed"`

	// CategoricalFeatures are column indices holding integer category codes.
	CategoricalFeatures []int `json:"cat_features"`

	// Verbose logs the training loss every Verbose iterations. 0 disables it.
	Verbose int `json:"verbose"`
}

// DefaultParams returns the default hyperparameters.
func DefaultParams() Params {
	return Params{
		Iterations:     1000,
		LearningRate:   0.03,
		Depth:          6,
		L2LeafReg:      3,
		BorderCount:    254,
		RandomStrength: 1,
		MinDataInLeaf:  1,
	}
}

// Validate checks parameter ranges.
func (p Params) Validate() error {
	switch {
	case p.Iterations < 1:
		return errors.NewValidationError("iterations", "must be >= 1", p.Iterations)
	case p.LearningRate <= 0 || p.LearningRate > 1:
		return errors.NewValidationError("learning_rate", "must be in (0, 1]", p.LearningRate)
	case p.Depth < 1 || p.Depth > 16:
		return errors.NewValidationError("depth", "must be in [1, 16]", p.Depth)
	case p.L2LeafReg < 0:
		return errors.NewValidationError("l2_leaf_reg", "must be >= 0", p.L2LeafReg)
	case p.BorderCount < 1 || p.BorderCount > 65535:
		return errors.NewValidationError("border_count", "must be in [1, 65535]", p.BorderCount)
	case p.RandomStrength < 0:
		return errors.NewValidationError("random_strength", "must be >= 0", p.RandomStrength)
	case p.MinDataInLeaf < 1:
		return errors.NewValidationError("min_data_in_leaf", "must be >= 1", p.MinDataInLeaf)
	}
	return nil
}

// With returns a copy of p with the named values applied. Keys use the
// json names above; integer parameters accept whole floats.
func (p Params) With(values map[string]interface{}) (Params, error) {
	out := p
	out.CategoricalFeatures = append([]int(nil), p.CategoricalFeatures...)
	for name, v := range values {
		var err error
		switch name {
		case "iterations":
			out.Iterations, err = toInt(name, v)
		case "learning_rate":
			out.LearningRate, err = toFloat(name, v)
		case "depth":
			out.Depth, err = toInt(name, v)
		case "l2_leaf_reg":
			out.L2LeafReg, err = toFloat(name, v)
		case "border_count":
			out.BorderCount, err = toInt(name, v)
		case "random_strength":
			out.RandomStrength, err = toFloat(name, v)
		case "min_data_in_leaf":
			out.MinDataInLeaf, err = toInt(name, v)
		default:
			err = errors.NewValidationError(name, "unknown hyperparameter", v)
		}
		if err != nil {
			return p, err
		}
	}
	return out, nil
}

// Map returns the tunable hyperparameters keyed by their json names.
func (p Params) Map() map[string]interface{} {
	return map[string]interface{}{
		"iterations":       p.Iterations,
		"learning_rate":    p.LearningRate,
		"depth":            p.Depth,
		"l2_leaf_reg":      p.L2LeafReg,
		"border_count":     p.BorderCount,
		"random_strength":  p.RandomStrength,
		"min_data_in_leaf": p.MinDataInLeaf,
	}
}

func toFloat(name string, v interface{}) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	}
	return 0, errors.NewValidationError(name, fmt.Sprintf("expected a number, got %T", v), v)
}

func toInt(name string, v interface{}) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case float64:
		if x != math.Trunc(x) {
			return 0, errors.NewValidationError(name, "expected an integer", v)
		}
		return int(x), nil
	}
	return 0, errors.NewValidationError(name, fmt.Sprintf("expected an integer, got %T", v), v)
}
