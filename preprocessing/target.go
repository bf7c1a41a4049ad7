package preprocessing

import (
	"math"

	"github.com/estateml/estateml/pkg/errors"
)

// TargetTransformLog1p names the log1p/expm1 target transform in artifacts.
const TargetTransformLog1p = "log1p"

// Log1p maps prices onto the training scale. Values must be > -1 and finite.
func Log1p(y []float64) ([]float64, error) {
	out := make([]float64, len(y))
	for i, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= -1 {
			return nil, errors.NewValidationError("target", "log1p requires finite values > -1", v)
		}
		out[i] = math.Log1p(v)
	}
	return out, nil
}

// Expm1 maps predictions back to native price units.
func Expm1(y []float64) []float64 {
	out := make([]float64, len(y))
	for i, v := range y {
		out[i] = math.Expm1(v)
	}
	return out
}
