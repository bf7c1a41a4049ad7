package training

import (
	"github.com/estateml/estateml/pkg/errors"
	"github.com/estateml/estateml/tuning"
)

// SearchSpace declares the hyperparameter domains explored by the search.
type SearchSpace struct {
	Iterations     []int      `mapstructure:"iterations" json:"iterations"`
	LearningRate   [2]float64 `mapstructure:"learning_rate" json:"learning_rate"`
	Depth          [2]int     `mapstructure:"depth" json:"depth"`
	L2LeafReg      [2]float64 `mapstructure:"l2_leaf_reg" json:"l2_leaf_reg"`
	BorderCount    []int      `mapstructure:"border_count" json:"border_count"`
	RandomStrength [2]float64 `mapstructure:"random_strength" json:"random_strength"`
}

// DefaultSearchSpace is the search space used for the Dubai price model.
func DefaultSearchSpace() SearchSpace {
	return SearchSpace{
		Iterations:     []int{500, 1000},
		LearningRate:   [2]float64{0.01, 0.06},
		Depth:          [2]int{5, 10},
		L2LeafReg:      [2]float64{1e-2, 20},
		BorderCount:    []int{64, 128},
		RandomStrength: [2]float64{1e-2, 5},
	}
}

// Suggest draws one configuration from the space through trial. The draw
// order is fixed so that seeded searches are reproducible.
func (s SearchSpace) Suggest(trial *tuning.Trial) (tuning.Params, error) {
	if len(s.Iterations) == 0 || len(s.BorderCount) == 0 {
		return nil, errors.NewValidationError("search_space", "iterations and border_count need at least one choice", s)
	}
	params := tuning.Params{}

	v, err := trial.SuggestCategorical("iterations", intsToChoices(s.Iterations)...)
	if err != nil {
		return nil, err
	}
	params["iterations"] = v

	if params["learning_rate"], err = trial.SuggestFloat("learning_rate", s.LearningRate[0], s.LearningRate[1], false); err != nil {
		return nil, err
	}
	if params["depth"], err = trial.SuggestInt("depth", s.Depth[0], s.Depth[1]); err != nil {
		return nil, err
	}
	if params["l2_leaf_reg"], err = trial.SuggestFloat("l2_leaf_reg", s.L2LeafReg[0], s.L2LeafReg[1], true); err != nil {
		return nil, err
	}
	if v, err = trial.SuggestCategorical("border_count", intsToChoices(s.BorderCount)...); err != nil {
		return nil, err
	}
	params["border_count"] = v
	if params["random_strength"], err = trial.SuggestFloat("random_strength", s.RandomStrength[0], s.RandomStrength[1], true); err != nil {
		return nil, err
	}
	return params, nil
}

func intsToChoices(values []int) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
