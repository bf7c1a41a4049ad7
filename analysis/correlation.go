package analysis

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/estateml/estateml/pkg/errors"
	"github.com/estateml/estateml/preprocessing"
)

// Correlation is the Pearson correlation of one numeric column with the target.
type Correlation struct {
	Feature string  `json:"feature"`
	Pearson float64 `json:"pearson"`
}

// Correlations ranks the numeric columns of t by their Pearson correlation
// with target, highest first. Constant columns have no correlation and are
// left out.
func Correlations(t *preprocessing.Table, target []float64) ([]Correlation, error) {
	if t.Len() != len(target) {
		return nil, errors.NewDimensionError("Correlations", t.Len(), len(target), 0)
	}
	if t.Len() < 2 {
		return nil, errors.NewValueError("Correlations", "need at least two rows")
	}

	var out []Correlation
	for _, f := range t.Schema() {
		if f.Kind != preprocessing.Numeric {
			continue
		}
		c, _ := t.Column(f.Name)
		x, y := pairwiseComplete(c.Floats(), target)
		if len(x) < 2 {
			continue
		}
		r := stat.Correlation(x, y, nil)
		if math.IsNaN(r) || math.IsInf(r, 0) {
			continue
		}
		out = append(out, Correlation{Feature: f.Name, Pearson: r})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Pearson > out[j].Pearson })
	return out, nil
}

func pairwiseComplete(x, y []float64) ([]float64, []float64) {
	xs := make([]float64, 0, len(x))
	ys := make([]float64, 0, len(y))
	for i := range x {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) {
			continue
		}
		xs = append(xs, x[i])
		ys = append(ys, y[i])
	}
	return xs, ys
}
