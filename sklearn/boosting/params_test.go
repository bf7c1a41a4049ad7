package boosting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estateml/estateml/pkg/errors"
)

func TestDefaultParamsValid(t *testing.T) {
	p := DefaultParams()
	require.NoError(t, p.Validate())
	assert.Equal(t, 1000, p.Iterations)
	assert.Equal(t, 6, p.Depth)
	assert.InDelta(t, 0.03, p.LearningRate, 1e-12)
}

func TestParamsWith(t *testing.T) {
	p, err := DefaultParams().With(map[string]interface{}{
		"iterations":    float64(300),
		"learning_rate": 0.1,
		"depth":         4,
		"l2_leaf_reg":   int64(5),
	})
	require.NoError(t, err)
	assert.Equal(t, 300, p.Iterations)
	assert.Equal(t, 4, p.Depth)
	assert.InDelta(t, 0.1, p.LearningRate, 1e-12)
	assert.InDelta(t, 5.0, p.L2LeafReg, 1e-12)
}

func TestParamsWithRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]interface{}
	}{
		{"unknown key", map[string]interface{}{"num_leaves": 31}},
		{"fractional int", map[string]interface{}{"depth": 4.5}},
		{"string", map[string]interface{}{"learning_rate": "fast"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DefaultParams().With(tt.values)
			var ve *errors.ValidationError
			require.ErrorAs(t, err, &ve)
		})
	}
}

func TestParamsValidateRanges(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"zero iterations", func(p *Params) { p.Iterations = 0 }},
		{"learning rate", func(p *Params) { p.LearningRate = 0 }},
		{"depth", func(p *Params) { p.Depth = 17 }},
		{"l2", func(p *Params) { p.L2LeafReg = -1 }},
		{"borders", func(p *Params) { p.BorderCount = 0 }},
		{"random strength", func(p *Params) { p.RandomStrength = -0.5 }},
		{"min data", func(p *Params) { p.MinDataInLeaf = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			assert.Error(t, p.Validate())
		})
	}
}
